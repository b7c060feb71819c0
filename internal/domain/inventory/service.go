package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospitalflow/logistics/internal/platform/clock"
	"github.com/hospitalflow/logistics/internal/platform/loadsignal"
)

// historyWindow is how far back consumption history feeds the engine.
const historyWindow = 24 * time.Hour

type Service struct {
	repo   Repository
	engine *Engine
	load   loadsignal.Provider
	clock  clock.Clock
	logger zerolog.Logger
}

func NewService(repo Repository, engine *Engine, load loadsignal.Provider, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		engine: engine,
		load:   load,
		clock:  clk,
		logger: logger.With().Str("component", "inventory-service").Logger(),
	}
}

func (s *Service) CreateItem(ctx context.Context, item *Item) error {
	if item.Name == "" {
		return fmt.Errorf("name is required")
	}
	if item.Category == "" {
		item.Category = CategoryGeneral
	}
	if !validCategories[item.Category] {
		return fmt.Errorf("invalid category: %s", item.Category)
	}
	if item.MaxCapacity <= 0 {
		return fmt.Errorf("max_capacity must be positive")
	}
	if item.MinThreshold < 0 || item.MinThreshold > item.MaxCapacity {
		return fmt.Errorf("min_threshold must be between 0 and max_capacity")
	}
	if item.CurrentStock < 0 || item.CurrentStock > item.MaxCapacity {
		return fmt.Errorf("current_stock must be between 0 and max_capacity")
	}
	return s.repo.CreateItem(ctx, item)
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.repo.GetItem(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, department string, limit, offset int) ([]*Item, int, error) {
	return s.repo.ListItems(ctx, department, limit, offset)
}

// Consume draws quantity units from an item's stock and records the event for
// the reorder engine. Stock floors at zero; over-draws are not an error, the
// shelf was simply emptier than the request.
func (s *Service) Consume(ctx context.Context, itemID uuid.UUID, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("quantity must be positive")
	}

	newStock, _, err := s.repo.AdjustStock(ctx, itemID, -quantity, false)
	if err != nil {
		return 0, err
	}

	rec := &ConsumptionRecord{
		ItemID:         itemID,
		Amount:         float64(quantity),
		ActivityFactor: s.currentLoad(ctx).EDLoadPercent / 100,
		RecordedAt:     s.clock.Now(),
	}
	if err := s.repo.RecordConsumption(ctx, rec); err != nil {
		// Stock already moved; a missing history sample only degrades the
		// engine toward its activity fallback.
		s.logger.Warn().Err(err).Str("item_id", itemID.String()).Msg("consumption record not persisted")
	}
	return newStock, nil
}

// SuggestionFor computes the reorder suggestion for one item.
func (s *Service) SuggestionFor(ctx context.Context, itemID uuid.UUID) (Suggestion, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return Suggestion{}, err
	}
	return s.suggest(ctx, item, s.currentLoad(ctx)), nil
}

// Suggestions evaluates every item (optionally one department's) and returns
// the suggestions the engine deems worth surfacing.
func (s *Service) Suggestions(ctx context.Context, department string) ([]Suggestion, error) {
	items, _, err := s.repo.ListItems(ctx, department, 0, 0)
	if err != nil {
		return nil, err
	}
	load := s.currentLoad(ctx)

	var out []Suggestion
	for _, item := range items {
		if sug := s.suggest(ctx, item, load); sug.Visible {
			out = append(out, sug)
		}
	}
	return out, nil
}

func (s *Service) suggest(ctx context.Context, item *Item, load loadsignal.Signal) Suggestion {
	since := s.clock.Now().Add(-historyWindow)
	history, err := s.repo.ConsumptionSince(ctx, item.ID, since)
	if err != nil {
		// Degrade to the activity fallback rather than failing the suggestion.
		s.logger.Warn().Err(err).Str("item_id", item.ID.String()).Msg("consumption history unavailable")
		history = nil
	}
	return s.engine.ComputeSuggestion(item, history, load)
}

func (s *Service) currentLoad(ctx context.Context) loadsignal.Signal {
	sig, err := s.load.CurrentLoad(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("load signal unavailable, using default")
		return loadsignal.Signal{}.Normalize()
	}
	return sig.Normalize()
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, status string, limit, offset int) ([]*Order, int, error) {
	if status != "" && !validOrderStatuses[status] {
		return nil, 0, fmt.Errorf("invalid status: %s", status)
	}
	return s.repo.ListOrders(ctx, status, limit, offset)
}
