package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospitalflow/logistics/internal/domain/inventory"
	"github.com/hospitalflow/logistics/internal/domain/transport"
	"github.com/hospitalflow/logistics/internal/platform/clock"
)

// Supplier deliveries always run the same route.
const (
	SupplierLocation  = "External Supplier"
	WarehouseLocation = "Central Warehouse"
)

// deliveryEstimateMinutes is the transport estimate for a supplier run.
const deliveryEstimateMinutes = 30

// ErrNothingToOrder is returned when neither the caller nor the engine can
// name a positive quantity for the item.
var ErrNothingToOrder = errors.New("item needs no restock")

// TxRunner runs fn atomically; the production wiring backs it with a
// database transaction carried on the context.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// AcceptRequest is an operator accepting a reorder suggestion. Quantity and
// the planned start are optional: quantity defaults to the engine's
// suggestion, the start to a queue-aware estimate.
type AcceptRequest struct {
	ItemID           uuid.UUID  `json:"item_id"`
	Quantity         int        `json:"quantity,omitempty"`
	PlannedStartTime *time.Time `json:"planned_start_time,omitempty"`
}

// AcceptResult is the order and the transport that will carry it.
type AcceptResult struct {
	Order     *inventory.Order   `json:"order"`
	Transport *transport.Request `json:"transport"`
}

type Service struct {
	inventory  *inventory.Service
	repo       inventory.Repository
	transports *transport.Service
	tx         TxRunner
	clock      clock.Clock
	rng        transport.Rand
	logger     zerolog.Logger
}

func NewService(inv *inventory.Service, repo inventory.Repository, transports *transport.Service, tx TxRunner, clk clock.Clock, rng transport.Rand, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	if rng == nil {
		rng = transport.NewSeededRand(time.Now().UnixNano())
	}
	return &Service{
		inventory:  inv,
		repo:       repo,
		transports: transports,
		tx:         tx,
		clock:      clk,
		rng:        rng,
		logger:     logger.With().Str("component", "fulfillment-service").Logger(),
	}
}

// AcceptSuggestion turns a reorder suggestion into an inventory order and a
// planned supplier transport linked to it.
func (s *Service) AcceptSuggestion(ctx context.Context, req AcceptRequest) (*AcceptResult, error) {
	item, err := s.inventory.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	qty := req.Quantity
	if qty <= 0 {
		sug, err := s.inventory.SuggestionFor(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		qty = sug.SuggestedQuantity
	}
	if qty <= 0 {
		return nil, ErrNothingToOrder
	}
	if item.CurrentStock+qty > item.MaxCapacity {
		return nil, fmt.Errorf("quantity %d exceeds remaining capacity %d", qty, item.MaxCapacity-item.CurrentStock)
	}

	plannedStart := s.plannedStart(ctx, req.PlannedStartTime)
	expected := plannedStart.Add(deliveryEstimateMinutes * time.Minute)

	order := &inventory.Order{
		ItemID:           item.ID,
		Quantity:         qty,
		Department:       item.Department,
		Status:           inventory.OrderStatusOrdered,
		OrderDate:        s.clock.Now(),
		ExpectedDelivery: &expected,
	}

	relType := transport.RelatedInventoryOrder
	tr := &transport.Request{
		RequestType:          transport.TypeEquipment,
		Priority:             transport.PriorityMedium,
		FromLocation:         SupplierLocation,
		ToLocation:           WarehouseLocation,
		PlannedStartTime:     &plannedStart,
		EstimatedTimeMinutes: deliveryEstimateMinutes,
		RelatedEntityType:    &relType,
	}

	// The order, its transport and the link land together or not at all.
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateOrder(ctx, order); err != nil {
			return err
		}
		relID := order.ID
		tr.RelatedEntityID = &relID
		if err := s.transports.Create(ctx, tr); err != nil {
			return err
		}
		return s.repo.LinkTransport(ctx, order.ID, tr.ID)
	})
	if err != nil {
		return nil, err
	}
	tid := tr.ID
	order.TransportID = &tid

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("item_id", item.ID.String()).
		Str("transport_id", tr.ID.String()).
		Int("quantity", qty).
		Msg("reorder suggestion accepted")

	return &AcceptResult{Order: order, Transport: tr}, nil
}

// plannedStart honors an explicit start, otherwise estimates one from how
// many transports are already waiting.
func (s *Service) plannedStart(ctx context.Context, explicit *time.Time) time.Time {
	if explicit != nil {
		return *explicit
	}
	queued := 0
	for _, status := range []string{transport.StatusPlanned, transport.StatusInProgress} {
		if _, total, err := s.transports.List(ctx, status, 1, 0); err == nil {
			queued += total
		}
	}
	return s.transports.PlannedStartIn(s.rng, queued)
}
