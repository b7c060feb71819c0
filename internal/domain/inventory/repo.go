package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrItemNotFound is returned when an inventory item does not exist.
var ErrItemNotFound = errors.New("inventory item not found")

// ErrOrderNotFound is returned when an inventory order does not exist.
var ErrOrderNotFound = errors.New("inventory order not found")

// Repository is the store contract for items, consumption history and orders.
// AdjustStock is atomic: concurrent deliveries and consumption never lose an
// update or take stock outside [0, max_capacity]. UpdateOrderStatus is
// conditional on the current status, which is what makes delivery exactly-once
// under sweep retries.
type Repository interface {
	CreateItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, id uuid.UUID) (*Item, error)
	ListItems(ctx context.Context, department string, limit, offset int) ([]*Item, int, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int, clampToCapacity bool) (newStock int, clamped bool, err error)

	RecordConsumption(ctx context.Context, rec *ConsumptionRecord) error
	ConsumptionSince(ctx context.Context, itemID uuid.UUID, since time.Time) ([]ConsumptionRecord, error)

	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, status string, limit, offset int) ([]*Order, int, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	LinkTransport(ctx context.Context, orderID, transportID uuid.UUID) error
}
