// Package fulfillment couples inventory orders to the transports that carry
// them: accepting a reorder suggestion creates an order with a linked
// transport, and transport lifecycle transitions drive the order through
// in_transit to delivered.
package fulfillment

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/hospitalflow/logistics/internal/domain/inventory"
	"github.com/hospitalflow/logistics/internal/domain/transport"
	"github.com/hospitalflow/logistics/internal/platform/metrics"
)

// Coupling reacts to transport transitions for transports that carry an
// inventory order. It satisfies the sweeper's hook contract; transports
// related to anything else pass through untouched.
type Coupling struct {
	repo    inventory.Repository
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewCoupling(repo inventory.Repository, logger zerolog.Logger) *Coupling {
	return &Coupling{
		repo:   repo,
		logger: logger.With().Str("component", "fulfillment-coupling").Logger(),
	}
}

// SetMetrics attaches optional Prometheus instrumentation.
func (c *Coupling) SetMetrics(m *metrics.Metrics) { c.metrics = m }

// OnActivate marks the carried order in_transit. An order already past
// ordered is left alone, so sweep retries are harmless.
func (c *Coupling) OnActivate(ctx context.Context, t *transport.Request) error {
	if !t.RelatesTo(transport.RelatedInventoryOrder) || t.RelatedEntityID == nil {
		return nil
	}
	ok, err := c.repo.UpdateOrderStatus(ctx, *t.RelatedEntityID,
		inventory.OrderStatusOrdered, inventory.OrderStatusInTransit)
	if err != nil {
		return err
	}
	if ok {
		c.logger.Info().
			Str("order_id", t.RelatedEntityID.String()).
			Str("transport_id", t.ID.String()).
			Msg("inventory order in transit")
	}
	return nil
}

// OnComplete delivers the carried order exactly once: the conditional status
// flip decides the winner, and only the winner credits stock. Stock is capped
// at the item's capacity; overflow is dropped with a warning.
func (c *Coupling) OnComplete(ctx context.Context, t *transport.Request) error {
	if !t.RelatesTo(transport.RelatedInventoryOrder) || t.RelatedEntityID == nil {
		return nil
	}

	order, err := c.repo.GetOrder(ctx, *t.RelatedEntityID)
	if errors.Is(err, inventory.ErrOrderNotFound) {
		c.logger.Warn().
			Str("order_id", t.RelatedEntityID.String()).
			Str("transport_id", t.ID.String()).
			Msg("completed transport references a missing order")
		return nil
	}
	if err != nil {
		return err
	}
	if order.Delivered() {
		return nil
	}

	// The status flips before the stock credit. A failure between the two
	// loses the credit rather than risking a double one; it is logged below
	// for operator reconciliation.
	ok, err := c.repo.UpdateOrderStatus(ctx, order.ID, order.Status, inventory.OrderStatusDelivered)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race to a concurrent delivery.
		return nil
	}

	newStock, clamped, err := c.repo.AdjustStock(ctx, order.ItemID, order.Quantity, true)
	if err != nil {
		c.logger.Error().Err(err).
			Str("order_id", order.ID.String()).
			Str("item_id", order.ItemID.String()).
			Int("quantity", order.Quantity).
			Msg("order marked delivered but stock credit failed, manual adjustment required")
		return err
	}
	if clamped {
		c.logger.Warn().
			Str("order_id", order.ID.String()).
			Str("item_id", order.ItemID.String()).
			Int("quantity", order.Quantity).
			Int("stock", newStock).
			Msg("delivery clamped at item capacity, overflow dropped")
		if c.metrics != nil {
			c.metrics.DeliveryClamped.Inc()
		}
	}

	c.logger.Info().
		Str("order_id", order.ID.String()).
		Str("item_id", order.ItemID.String()).
		Int("stock", newStock).
		Msg("inventory order delivered")
	return nil
}
