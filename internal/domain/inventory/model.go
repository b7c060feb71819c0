package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Order statuses. An order is created ordered, moves to in_transit when its
// transport activates, and to delivered when the transport completes.
// Delivered is terminal; delivered orders are kept as history.
const (
	OrderStatusOrdered   = "ordered"
	OrderStatusInTransit = "in_transit"
	OrderStatusDelivered = "delivered"
)

// Supply categories, used by the activity fallback when an item has no
// recorded consumption.
const (
	CategoryOxygen   = "oxygen"
	CategoryInfusion = "infusion"
	CategoryMask     = "mask"
	CategoryFilter   = "filter"
	CategoryGeneral  = "general"
)

// Reorder urgencies.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// Consumption trends.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

var validOrderStatuses = map[string]bool{
	OrderStatusOrdered: true, OrderStatusInTransit: true, OrderStatusDelivered: true,
}

var validCategories = map[string]bool{
	CategoryOxygen: true, CategoryInfusion: true, CategoryMask: true,
	CategoryFilter: true, CategoryGeneral: true,
}

// Item maps to the inventory_item table. Items are never destroyed; stock
// moves between 0 and MaxCapacity.
type Item struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Category     string    `db:"category" json:"category"`
	Department   string    `db:"department" json:"department"`
	Unit         string    `db:"unit" json:"unit"`
	CurrentStock int       `db:"current_stock" json:"current_stock"`
	MinThreshold int       `db:"min_threshold" json:"min_threshold"`
	MaxCapacity  int       `db:"max_capacity" json:"max_capacity"`
	VersionID    int       `db:"version_id" json:"version_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// BelowThreshold reports whether stock has fallen under the minimum.
func (i *Item) BelowThreshold() bool { return i.CurrentStock < i.MinThreshold }

// ConsumptionRecord is one observed draw against an item's stock.
type ConsumptionRecord struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ItemID         uuid.UUID `db:"item_id" json:"item_id"`
	Amount         float64   `db:"amount" json:"amount"`
	ActivityFactor float64   `db:"activity_factor" json:"activity_factor"`
	RecordedAt     time.Time `db:"recorded_at" json:"recorded_at"`
}

// Order maps to the inventory_order table.
type Order struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	ItemID           uuid.UUID  `db:"item_id" json:"item_id"`
	Quantity         int        `db:"quantity" json:"quantity"`
	Department       string     `db:"department" json:"department"`
	Status           string     `db:"status" json:"status"`
	OrderDate        time.Time  `db:"order_date" json:"order_date"`
	ExpectedDelivery *time.Time `db:"expected_delivery" json:"expected_delivery,omitempty"`
	TransportID      *uuid.UUID `db:"transport_id" json:"transport_id,omitempty"`
	VersionID        int        `db:"version_id" json:"version_id"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Delivered reports whether the order has reached its terminal status.
func (o *Order) Delivered() bool { return o.Status == OrderStatusDelivered }

// Suggestion is the engine's reorder recommendation for one item.
type Suggestion struct {
	ItemID            uuid.UUID `json:"item_id"`
	ItemName          string    `json:"item_name"`
	Department        string    `json:"department"`
	CurrentStock      int       `json:"current_stock"`
	MinThreshold      int       `json:"min_threshold"`
	DailyRate         float64   `json:"daily_rate"`
	DaysUntilStockout *float64  `json:"days_until_stockout,omitempty"`
	Trend             string    `json:"trend"`
	Urgency           string    `json:"urgency"`
	SuggestedQuantity int       `json:"suggested_quantity"`
	OrderByDays       int       `json:"order_by_days"`
	BelowThreshold    bool      `json:"below_threshold"`
	Visible           bool      `json:"visible"`
	RateSource        string    `json:"rate_source"`
}
