package transport

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

const requestCols = `id, request_type, priority, from_location, to_location, status,
	requested_start, requested_end, planned_start_time, estimated_time_minutes,
	start_time, expected_completion_time, delay_minutes, actual_time_minutes,
	related_entity_type, related_entity_id, version_id, created_at, updated_at`

func (r *repoPG) scanRequest(row pgx.Row) (*Request, error) {
	var t Request
	err := row.Scan(&t.ID, &t.RequestType, &t.Priority, &t.FromLocation, &t.ToLocation, &t.Status,
		&t.RequestedStart, &t.RequestedEnd, &t.PlannedStartTime, &t.EstimatedTimeMinutes,
		&t.StartTime, &t.ExpectedCompletionTime, &t.DelayMinutes, &t.ActualTimeMinutes,
		&t.RelatedEntityType, &t.RelatedEntityID, &t.VersionID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &t, err
}

func (r *repoPG) Create(ctx context.Context, t *Request) error {
	t.ID = uuid.New()
	t.VersionID = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO transport_request (id, request_type, priority, from_location, to_location,
			status, requested_start, requested_end, planned_start_time, estimated_time_minutes,
			delay_minutes, related_entity_type, related_entity_id, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		t.ID, t.RequestType, t.Priority, t.FromLocation, t.ToLocation,
		t.Status, t.RequestedStart, t.RequestedEnd, t.PlannedStartTime, t.EstimatedTimeMinutes,
		t.DelayMinutes, t.RelatedEntityType, t.RelatedEntityID, t.VersionID)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM transport_request WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, status string, limit, offset int) ([]*Request, int, error) {
	query := `SELECT ` + requestCols + ` FROM transport_request WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM transport_request WHERE 1=1`
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

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Request
	for rows.Next() {
		t, err := r.scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListNonTerminal(ctx context.Context) ([]*Request, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+requestCols+` FROM transport_request
		WHERE status IN ($1, $2, $3) ORDER BY created_at`,
		StatusPending, StatusPlanned, StatusInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Request
	for rows.Next() {
		t, err := r.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *repoPG) ConditionalUpdate(ctx context.Context, id uuid.UUID, expectedVersion int, expectedStatus string, tr Transition) (bool, error) {
	set := `version_id = version_id + 1, updated_at = NOW()`
	args := []interface{}{id, expectedVersion, expectedStatus}
	idx := 4

	if tr.Status != nil {
		set += fmt.Sprintf(`, status = $%d`, idx)
		args = append(args, *tr.Status)
		idx++
	}
	if tr.StartTime != nil {
		set += fmt.Sprintf(`, start_time = $%d`, idx)
		args = append(args, *tr.StartTime)
		idx++
	}
	if tr.ExpectedCompletionTime != nil {
		set += fmt.Sprintf(`, expected_completion_time = $%d`, idx)
		args = append(args, *tr.ExpectedCompletionTime)
		idx++
	}
	if tr.DelayMinutes != nil {
		set += fmt.Sprintf(`, delay_minutes = $%d`, idx)
		args = append(args, *tr.DelayMinutes)
		idx++
	}
	if tr.ActualTimeMinutes != nil {
		set += fmt.Sprintf(`, actual_time_minutes = $%d`, idx)
		args = append(args, *tr.ActualTimeMinutes)
		idx++
	}

	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE transport_request SET `+set+` WHERE id = $1 AND version_id = $2 AND status = $3`,
		args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) UpdateSchedule(ctx context.Context, id uuid.UUID, expectedVersion int, plannedStart time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE transport_request
		SET planned_start_time = $4, status = $5, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $2 AND status IN ($3, $5)`,
		id, expectedVersion, StatusPending, plannedStart, StatusPlanned)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM transport_request WHERE id = $1 AND status IN ($2, $3)`,
		id, StatusPending, StatusPlanned)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
