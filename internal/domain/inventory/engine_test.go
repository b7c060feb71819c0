package inventory

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hospitalflow/logistics/internal/platform/loadsignal"
)

func testItem(stock, min, max int) *Item {
	return &Item{
		ID:           uuid.New(),
		Name:         "IV Infusion Set",
		Category:     CategoryInfusion,
		Department:   "ICU",
		Unit:         "pieces",
		CurrentStock: stock,
		MinThreshold: min,
		MaxCapacity:  max,
	}
}

func makeHistory(n int, each float64) []ConsumptionRecord {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	recs := make([]ConsumptionRecord, n)
	for i := range recs {
		recs[i] = ConsumptionRecord{Amount: each, RecordedAt: base.Add(time.Duration(i) * time.Hour)}
	}
	return recs
}

func TestComputeSuggestionUrgentLowStock(t *testing.T) {
	e := NewEngine(1)
	// Stock covers one day at the observed rate and sits under threshold:
	// high urgency, full top-up, order immediately.
	item := testItem(5, 10, 100)
	history := makeHistory(24, 5.0/24)

	s := e.ComputeSuggestion(item, history, loadsignal.Signal{})
	if s.RateSource != RateSourceHistory {
		t.Fatalf("rate_source = %s, want history", s.RateSource)
	}
	if math.Abs(s.DailyRate-5) > 1e-6 {
		t.Fatalf("daily_rate = %f, want 5", s.DailyRate)
	}
	if s.DaysUntilStockout == nil || math.Abs(*s.DaysUntilStockout-1) > 1e-6 {
		t.Fatalf("days_until_stockout = %v, want 1", s.DaysUntilStockout)
	}
	if s.Urgency != UrgencyHigh {
		t.Fatalf("urgency = %s, want high", s.Urgency)
	}
	if !s.BelowThreshold {
		t.Fatal("below_threshold not set")
	}
	if s.OrderByDays != 0 {
		t.Fatalf("order_by_days = %d, want 0", s.OrderByDays)
	}
	if s.SuggestedQuantity != 95 {
		t.Fatalf("suggested_quantity = %d, want 95", s.SuggestedQuantity)
	}
	if !s.Visible {
		t.Fatal("urgent suggestion not visible")
	}
}

func TestActivityFallbackMultipliers(t *testing.T) {
	e := NewEngine(1)
	item := testItem(50, 40, 100)
	item.Category = CategoryOxygen

	load := loadsignal.Signal{EDLoadPercent: 65, OccupiedBeds: 25}
	s := e.ComputeSuggestion(item, nil, load)
	if s.RateSource != RateSourceActivity {
		t.Fatalf("rate_source = %s, want activity", s.RateSource)
	}
	// 0.15*40 base, *1.15 ED load, *1.0 bed occupancy, *1.5 ICU.
	want := 6.0 * 1.15 * 1.0 * 1.5
	if math.Abs(s.DailyRate-want) > 1e-9 {
		t.Fatalf("daily_rate = %f, want %f", s.DailyRate, want)
	}
}

func TestActivityFallbackDefaultsZeroSignal(t *testing.T) {
	e := NewEngine(1)
	item := testItem(50, 40, 100)
	item.Category = CategoryGeneral
	item.Department = "Pharmacy"

	// Zero signal normalizes to the default ED load; no beds reported.
	s := e.ComputeSuggestion(item, nil, loadsignal.Signal{})
	want := 0.10 * 40 * (0.5 + loadsignal.DefaultEDLoadPercent/100) * 0.7
	if math.Abs(s.DailyRate-want) > 1e-9 {
		t.Fatalf("daily_rate = %f, want %f", s.DailyRate, want)
	}
}

func TestActivityFallbackBedUtilizationCap(t *testing.T) {
	e := NewEngine(1)
	item := testItem(50, 40, 100)
	item.Category = CategoryMask
	item.Department = "Pharmacy"

	// 120 occupied beds caps utilization at 1.
	s := e.ComputeSuggestion(item, nil, loadsignal.Signal{EDLoadPercent: 50, OccupiedBeds: 120})
	want := 0.10 * 40 * 1.0 * 1.3
	if math.Abs(s.DailyRate-want) > 1e-9 {
		t.Fatalf("daily_rate = %f, want %f", s.DailyRate, want)
	}
}

func TestZeroActivityItemNeverUrgent(t *testing.T) {
	e := NewEngine(1)
	item := testItem(50, 0, 100)
	item.Category = CategoryGeneral
	item.Department = "Storage"

	// MinThreshold 0 zeroes the fallback rate: no stockout projection, low
	// urgency, nothing to surface.
	s := e.ComputeSuggestion(item, nil, loadsignal.Signal{})
	if s.DailyRate != 0 {
		t.Fatalf("daily_rate = %f, want 0", s.DailyRate)
	}
	if s.DaysUntilStockout != nil {
		t.Fatalf("days_until_stockout = %v, want nil", s.DaysUntilStockout)
	}
	if s.Urgency != UrgencyLow {
		t.Fatalf("urgency = %s, want low", s.Urgency)
	}
	if s.Visible {
		t.Fatal("zero-activity item surfaced")
	}
}

func TestUrgencyLadder(t *testing.T) {
	days := func(d float64) *float64 { return &d }
	cases := []struct {
		name  string
		days  *float64
		below bool
		want  string
	}{
		{"half day", days(0.5), true, UrgencyHigh},
		{"exactly two days", days(2), false, UrgencyHigh},
		{"five days", days(5), false, UrgencyMedium},
		{"exactly seven days", days(7), false, UrgencyMedium},
		{"comfortable", days(30), false, UrgencyLow},
		{"no rate above threshold", nil, false, UrgencyLow},
		{"no rate below threshold", nil, true, UrgencyMedium},
		{"comfortable but below threshold", days(30), true, UrgencyMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := urgency(tc.days, tc.below); got != tc.want {
				t.Fatalf("urgency(%v, %v) = %s, want %s", tc.days, tc.below, got, tc.want)
			}
		})
	}
}

func TestSuggestedQuantityScalesWithUrgency(t *testing.T) {
	item := testItem(20, 30, 100)
	if got := suggestedQuantity(item, UrgencyHigh); got != 80 {
		t.Errorf("high = %d, want 80", got)
	}
	if got := suggestedQuantity(item, UrgencyMedium); got != 60 {
		t.Errorf("medium = %d, want 60", got)
	}
	if got := suggestedQuantity(item, UrgencyLow); got != 40 {
		t.Errorf("low = %d, want 40", got)
	}

	// Already above the low-urgency target: nothing to order.
	full := testItem(70, 30, 100)
	if got := suggestedQuantity(full, UrgencyLow); got != 0 {
		t.Errorf("above target = %d, want 0", got)
	}
}

func TestOrderByDaysRespectsLeadTime(t *testing.T) {
	e := NewEngine(2)
	days := func(d float64) *float64 { return &d }

	if got := e.orderByDays(days(5.8), false); got != 3 {
		t.Errorf("5.8 days = %d, want 3", got)
	}
	if got := e.orderByDays(days(1.5), false); got != 0 {
		t.Errorf("1.5 days = %d, want 0", got)
	}
	if got := e.orderByDays(days(30), true); got != 0 {
		t.Errorf("below threshold = %d, want 0", got)
	}
	if got := e.orderByDays(nil, false); got != 0 {
		t.Errorf("no projection = %d, want 0", got)
	}
}

func TestVisibilityNearThreshold(t *testing.T) {
	e := NewEngine(1)

	// Low urgency but within the 1.2x threshold band with a useful top-up.
	near := testItem(115, 100, 200)
	s := e.ComputeSuggestion(near, makeHistory(24, 0.1), loadsignal.Signal{})
	if s.Urgency != UrgencyLow {
		t.Fatalf("urgency = %s, want low", s.Urgency)
	}
	if !s.Visible {
		t.Fatal("near-threshold item not surfaced")
	}

	// Same consumption, comfortably stocked: stays hidden.
	far := testItem(130, 100, 200)
	s = e.ComputeSuggestion(far, makeHistory(24, 0.1), loadsignal.Signal{})
	if s.Visible {
		t.Fatal("well-stocked item surfaced")
	}
}

func TestTrendDetection(t *testing.T) {
	base := makeHistory(12, 1.0)

	ramp := makeHistory(12, 1.0)
	for i := 6; i < 12; i++ {
		ramp[i].Amount = 2.0
	}
	if got := trend(ramp); got != TrendIncreasing {
		t.Errorf("ramp up = %s, want increasing", got)
	}

	drop := makeHistory(12, 1.0)
	for i := 6; i < 12; i++ {
		drop[i].Amount = 0.4
	}
	if got := trend(drop); got != TrendDecreasing {
		t.Errorf("ramp down = %s, want decreasing", got)
	}

	if got := trend(base); got != TrendStable {
		t.Errorf("flat = %s, want stable", got)
	}
	if got := trend(makeHistory(4, 1.0)); got != TrendStable {
		t.Errorf("short history = %s, want stable", got)
	}
}
