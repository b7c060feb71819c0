package inventory

import (
	"math"
	"strings"

	"github.com/hospitalflow/logistics/internal/platform/loadsignal"
)

// Rate sources reported on a suggestion.
const (
	RateSourceHistory  = "history"
	RateSourceActivity = "activity"
)

// categoryBaseFraction is the assumed daily burn as a fraction of the minimum
// threshold, used when an item has no consumption history.
var categoryBaseFraction = map[string]float64{
	CategoryOxygen:   0.15,
	CategoryInfusion: 0.20,
	CategoryMask:     0.10,
	CategoryFilter:   0.12,
}

const defaultBaseFraction = 0.10

// departmentMultiplier scales the activity fallback by how hard a department
// burns through supplies.
var departmentMultiplier = map[string]float64{
	"icu":        1.5,
	"surgery":    1.2,
	"cardiology": 1.1,
	"er":         1.3,
}

// trendWindow is the number of most recent samples compared against the rest.
const trendWindow = 6

// Engine turns an item's stock position, consumption history and the current
// hospital load into a reorder suggestion. It is a pure computation; callers
// own loading the inputs and acting on the output.
type Engine struct {
	leadTimeDays int
}

func NewEngine(leadTimeDays int) *Engine {
	if leadTimeDays < 0 {
		leadTimeDays = 0
	}
	return &Engine{leadTimeDays: leadTimeDays}
}

// ComputeSuggestion evaluates one item. history is the item's consumption
// over the trailing 24 hours; nil or empty history falls back to an
// activity-derived rate from the load signal.
func (e *Engine) ComputeSuggestion(item *Item, history []ConsumptionRecord, load loadsignal.Signal) Suggestion {
	s := Suggestion{
		ItemID:         item.ID,
		ItemName:       item.Name,
		Department:     item.Department,
		CurrentStock:   item.CurrentStock,
		MinThreshold:   item.MinThreshold,
		Trend:          trend(history),
		BelowThreshold: item.BelowThreshold(),
	}

	if len(history) > 0 {
		s.DailyRate = historicalRate(history)
		s.RateSource = RateSourceHistory
	} else {
		s.DailyRate = e.activityRate(item, load.Normalize())
		s.RateSource = RateSourceActivity
	}

	if s.DailyRate > 0 {
		days := float64(item.CurrentStock) / s.DailyRate
		s.DaysUntilStockout = &days
	}

	s.Urgency = urgency(s.DaysUntilStockout, s.BelowThreshold)
	s.SuggestedQuantity = suggestedQuantity(item, s.Urgency)
	s.OrderByDays = e.orderByDays(s.DaysUntilStockout, s.BelowThreshold)
	s.Visible = visible(item, s)
	return s
}

// historicalRate extrapolates a daily rate from the trailing-window samples.
func historicalRate(history []ConsumptionRecord) float64 {
	var sum float64
	for _, r := range history {
		sum += r.Amount
	}
	rate := sum * (24 / float64(len(history)))
	if rate < 0 {
		return 0
	}
	return rate
}

// activityRate estimates a daily rate for an item with no history: a
// category-specific fraction of its minimum threshold, scaled by emergency
// load, bed occupancy and department intensity.
func (e *Engine) activityRate(item *Item, load loadsignal.Signal) float64 {
	base, ok := categoryBaseFraction[item.Category]
	if !ok {
		base = defaultBaseFraction
	}
	rate := base * float64(item.MinThreshold)

	rate *= 0.5 + load.EDLoadPercent/100

	util := float64(load.OccupiedBeds) / 50
	if util > 1 {
		util = 1
	}
	rate *= 0.7 + util*0.6

	if m, ok := departmentMultiplier[strings.ToLower(item.Department)]; ok {
		rate *= m
	}
	return rate
}

// trend compares the most recent samples against the earlier ones.
// Informational only; it never changes urgency.
func trend(history []ConsumptionRecord) string {
	if len(history) <= trendWindow {
		return TrendStable
	}
	recent := history[len(history)-trendWindow:]
	earlier := history[:len(history)-trendWindow]

	recentAvg := avgAmount(recent)
	earlierAvg := avgAmount(earlier)
	if earlierAvg == 0 {
		return TrendStable
	}
	switch {
	case recentAvg > earlierAvg*1.1:
		return TrendIncreasing
	case recentAvg < earlierAvg*0.9:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func avgAmount(records []ConsumptionRecord) float64 {
	var sum float64
	for _, r := range records {
		sum += r.Amount
	}
	return sum / float64(len(records))
}

// urgency applies the days-until-stockout ladder. Items burning nothing are
// never urgent on rate alone, but a breached threshold always lifts the
// urgency to at least medium.
func urgency(days *float64, belowThreshold bool) string {
	u := UrgencyLow
	if days != nil {
		switch {
		case *days <= 2:
			u = UrgencyHigh
		case *days <= 7:
			u = UrgencyMedium
		}
	}
	if belowThreshold && u == UrgencyLow {
		u = UrgencyMedium
	}
	return u
}

// suggestedQuantity restores stock toward capacity, scaled by urgency: a high
// urgency item is topped up fully, lower urgencies get a partial top-up.
func suggestedQuantity(item *Item, urgency string) int {
	frac := 0.6
	switch urgency {
	case UrgencyHigh:
		frac = 1.0
	case UrgencyMedium:
		frac = 0.8
	}
	target := int(frac * float64(item.MaxCapacity))
	qty := target - item.CurrentStock
	if qty < 0 {
		return 0
	}
	if item.CurrentStock+qty > item.MaxCapacity {
		qty = item.MaxCapacity - item.CurrentStock
	}
	return qty
}

// orderByDays is how long ordering can wait while still landing before the
// projected stockout, given the supplier lead time.
func (e *Engine) orderByDays(days *float64, belowThreshold bool) int {
	if belowThreshold || days == nil {
		return 0
	}
	d := int(math.Floor(*days)) - e.leadTimeDays
	if d < 0 {
		return 0
	}
	return d
}

// visible decides whether the suggestion surfaces to operators: anything
// medium or worse, anything under threshold, and near-threshold items that
// warrant a top-up.
func visible(item *Item, s Suggestion) bool {
	if s.Urgency == UrgencyHigh || s.Urgency == UrgencyMedium {
		return true
	}
	if s.BelowThreshold {
		return true
	}
	return s.SuggestedQuantity > 0 && float64(item.CurrentStock) < 1.2*float64(item.MinThreshold)
}
