package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospitalflow/logistics/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const itemCols = `id, name, category, department, unit, current_stock,
	min_threshold, max_capacity, version_id, created_at, updated_at`

func (r *repoPG) scanItem(row pgx.Row) (*Item, error) {
	var i Item
	err := row.Scan(&i.ID, &i.Name, &i.Category, &i.Department, &i.Unit, &i.CurrentStock,
		&i.MinThreshold, &i.MaxCapacity, &i.VersionID, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	return &i, err
}

func (r *repoPG) CreateItem(ctx context.Context, item *Item) error {
	item.ID = uuid.New()
	item.VersionID = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO inventory_item (id, name, category, department, unit,
			current_stock, min_threshold, max_capacity, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		item.ID, item.Name, item.Category, item.Department, item.Unit,
		item.CurrentStock, item.MinThreshold, item.MaxCapacity, item.VersionID)
	return err
}

func (r *repoPG) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	return r.scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM inventory_item WHERE id = $1`, id))
}

func (r *repoPG) ListItems(ctx context.Context, department string, limit, offset int) ([]*Item, int, error) {
	query := `SELECT ` + itemCols + ` FROM inventory_item WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM inventory_item WHERE 1=1`
	var args []interface{}
	idx := 1

	if department != "" {
		query += fmt.Sprintf(` AND department = $%d`, idx)
		countQuery += fmt.Sprintf(` AND department = $%d`, idx)
		args = append(args, department)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
		args = append(args, limit, offset)
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		i, err := r.scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, i)
	}
	return items, total, rows.Err()
}

// AdjustStock applies the delta atomically. Stock never goes below zero; with
// clampToCapacity it also never exceeds max_capacity. The returned clamped
// flag reports whether either bound truncated the delta.
func (r *repoPG) AdjustStock(ctx context.Context, id uuid.UUID, delta int, clampToCapacity bool) (int, bool, error) {
	var newStock, prevStock int
	err := r.conn(ctx).QueryRow(ctx, `
		WITH prev AS (
			SELECT current_stock FROM inventory_item WHERE id = $1 FOR UPDATE
		)
		UPDATE inventory_item i
		SET current_stock = GREATEST(0, CASE
				WHEN $3 THEN LEAST(i.max_capacity, i.current_stock + $2)
				ELSE i.current_stock + $2
			END),
			version_id = version_id + 1,
			updated_at = NOW()
		FROM prev
		WHERE i.id = $1
		RETURNING i.current_stock, prev.current_stock`,
		id, delta, clampToCapacity).Scan(&newStock, &prevStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, ErrItemNotFound
	}
	if err != nil {
		return 0, false, err
	}
	return newStock, newStock != prevStock+delta, nil
}

func (r *repoPG) RecordConsumption(ctx context.Context, rec *ConsumptionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO inventory_consumption (id, item_id, amount, activity_factor, recorded_at)
		VALUES ($1,$2,$3,$4,$5)`,
		rec.ID, rec.ItemID, rec.Amount, rec.ActivityFactor, rec.RecordedAt)
	return err
}

func (r *repoPG) ConsumptionSince(ctx context.Context, itemID uuid.UUID, since time.Time) ([]ConsumptionRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, item_id, amount, activity_factor, recorded_at
		FROM inventory_consumption
		WHERE item_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at`,
		itemID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []ConsumptionRecord
	for rows.Next() {
		var rec ConsumptionRecord
		if err := rows.Scan(&rec.ID, &rec.ItemID, &rec.Amount, &rec.ActivityFactor, &rec.RecordedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

const orderCols = `id, item_id, quantity, department, status, order_date,
	expected_delivery, transport_id, version_id, created_at, updated_at`

func (r *repoPG) scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.ItemID, &o.Quantity, &o.Department, &o.Status, &o.OrderDate,
		&o.ExpectedDelivery, &o.TransportID, &o.VersionID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return &o, err
}

func (r *repoPG) CreateOrder(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	o.VersionID = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO inventory_order (id, item_id, quantity, department, status,
			order_date, expected_delivery, transport_id, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.ItemID, o.Quantity, o.Department, o.Status,
		o.OrderDate, o.ExpectedDelivery, o.TransportID, o.VersionID)
	return err
}

func (r *repoPG) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.scanOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM inventory_order WHERE id = $1`, id))
}

func (r *repoPG) ListOrders(ctx context.Context, status string, limit, offset int) ([]*Order, int, error) {
	query := `SELECT ` + orderCols + ` FROM inventory_order WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM inventory_order WHERE 1=1`
	var args []interface{}
	idx := 1

	if status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY order_date DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var orders []*Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

// UpdateOrderStatus transitions an order only when it is still in the from
// status. The conditional is what keeps deliveries exactly-once when a sweep
// retries a transition.
func (r *repoPG) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE inventory_order
		SET status = $3, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) LinkTransport(ctx context.Context, orderID, transportID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE inventory_order
		SET transport_id = $2, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1`,
		orderID, transportID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
