package fulfillment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospitalflow/logistics/internal/domain/inventory"
	"github.com/hospitalflow/logistics/internal/domain/transport"
	"github.com/hospitalflow/logistics/internal/platform/clock"
	"github.com/hospitalflow/logistics/internal/platform/loadsignal"
)

type invRepo struct {
	items       map[uuid.UUID]*inventory.Item
	consumption map[uuid.UUID][]inventory.ConsumptionRecord
	orders      map[uuid.UUID]*inventory.Order
	adjustErr   error
}

func newInvRepo() *invRepo {
	return &invRepo{
		items:       make(map[uuid.UUID]*inventory.Item),
		consumption: make(map[uuid.UUID][]inventory.ConsumptionRecord),
		orders:      make(map[uuid.UUID]*inventory.Order),
	}
}

func (m *invRepo) CreateItem(_ context.Context, item *inventory.Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.VersionID = 1
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *invRepo) GetItem(_ context.Context, id uuid.UUID) (*inventory.Item, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, inventory.ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *invRepo) ListItems(_ context.Context, department string, limit, offset int) ([]*inventory.Item, int, error) {
	var out []*inventory.Item
	for _, item := range m.items {
		if department != "" && item.Department != department {
			continue
		}
		cp := *item
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *invRepo) AdjustStock(_ context.Context, id uuid.UUID, delta int, clampToCapacity bool) (int, bool, error) {
	if m.adjustErr != nil {
		return 0, false, m.adjustErr
	}
	item, ok := m.items[id]
	if !ok {
		return 0, false, inventory.ErrItemNotFound
	}
	next := item.CurrentStock + delta
	if clampToCapacity && next > item.MaxCapacity {
		next = item.MaxCapacity
	}
	if next < 0 {
		next = 0
	}
	clamped := next != item.CurrentStock+delta
	item.CurrentStock = next
	item.VersionID++
	return next, clamped, nil
}

func (m *invRepo) RecordConsumption(_ context.Context, rec *inventory.ConsumptionRecord) error {
	m.consumption[rec.ItemID] = append(m.consumption[rec.ItemID], *rec)
	return nil
}

func (m *invRepo) ConsumptionSince(_ context.Context, itemID uuid.UUID, since time.Time) ([]inventory.ConsumptionRecord, error) {
	var out []inventory.ConsumptionRecord
	for _, rec := range m.consumption[itemID] {
		if !rec.RecordedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *invRepo) CreateOrder(_ context.Context, o *inventory.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.VersionID = 1
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *invRepo) GetOrder(_ context.Context, id uuid.UUID) (*inventory.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, inventory.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *invRepo) ListOrders(_ context.Context, status string, limit, offset int) ([]*inventory.Order, int, error) {
	var out []*inventory.Order
	for _, o := range m.orders {
		if status != "" && o.Status != status {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *invRepo) UpdateOrderStatus(_ context.Context, id uuid.UUID, from, to string) (bool, error) {
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.VersionID++
	return true, nil
}

func (m *invRepo) LinkTransport(_ context.Context, orderID, transportID uuid.UUID) error {
	o, ok := m.orders[orderID]
	if !ok {
		return inventory.ErrOrderNotFound
	}
	tid := transportID
	o.TransportID = &tid
	o.VersionID++
	return nil
}

type trRepo struct {
	order    []uuid.UUID
	requests map[uuid.UUID]*transport.Request
}

func newTrRepo() *trRepo {
	return &trRepo{requests: make(map[uuid.UUID]*transport.Request)}
}

func (m *trRepo) Create(_ context.Context, r *transport.Request) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.VersionID = 1
	cp := *r
	m.requests[r.ID] = &cp
	m.order = append(m.order, r.ID)
	return nil
}

func (m *trRepo) GetByID(_ context.Context, id uuid.UUID) (*transport.Request, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, transport.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *trRepo) List(_ context.Context, status string, limit, offset int) ([]*transport.Request, int, error) {
	var out []*transport.Request
	for _, id := range m.order {
		r := m.requests[id]
		if status != "" && r.Status != status {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *trRepo) ListNonTerminal(_ context.Context) ([]*transport.Request, error) {
	var out []*transport.Request
	for _, id := range m.order {
		r := m.requests[id]
		if r.Terminal() {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *trRepo) ConditionalUpdate(_ context.Context, id uuid.UUID, expectedVersion int, expectedStatus string, tr transport.Transition) (bool, error) {
	r, ok := m.requests[id]
	if !ok || r.VersionID != expectedVersion || r.Status != expectedStatus {
		return false, nil
	}
	if tr.Status != nil {
		r.Status = *tr.Status
	}
	if tr.StartTime != nil {
		r.StartTime = tr.StartTime
	}
	if tr.ExpectedCompletionTime != nil {
		r.ExpectedCompletionTime = tr.ExpectedCompletionTime
	}
	if tr.DelayMinutes != nil {
		r.DelayMinutes = *tr.DelayMinutes
	}
	if tr.ActualTimeMinutes != nil {
		r.ActualTimeMinutes = tr.ActualTimeMinutes
	}
	r.VersionID++
	return true, nil
}

func (m *trRepo) UpdateSchedule(_ context.Context, id uuid.UUID, expectedVersion int, plannedStart time.Time) (bool, error) {
	r, ok := m.requests[id]
	if !ok || r.VersionID != expectedVersion {
		return false, nil
	}
	if r.Status != transport.StatusPending && r.Status != transport.StatusPlanned {
		return false, nil
	}
	r.PlannedStartTime = &plannedStart
	r.Status = transport.StatusPlanned
	r.VersionID++
	return true, nil
}

func (m *trRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r, ok := m.requests[id]
	if !ok {
		return false, nil
	}
	if r.Status != transport.StatusPending && r.Status != transport.StatusPlanned {
		return false, nil
	}
	delete(m.requests, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// fixedRand pins every draw, so computed planned starts are deterministic and
// sweep delay draws never fire.
type fixedRand struct{ v float64 }

func (f fixedRand) Float64() float64 { return f.v }

type fixture struct {
	inv      *invRepo
	tr       *trRepo
	clk      *clock.Manual
	invSvc   *inventory.Service
	trSvc    *transport.Service
	svc      *Service
	coupling *Coupling
}

func newFixture() *fixture {
	inv := newInvRepo()
	tr := newTrRepo()
	clk := clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	load := loadsignal.Static{Signal: loadsignal.Signal{EDLoadPercent: 65, OccupiedBeds: 25}}

	invSvc := inventory.NewService(inv, inventory.NewEngine(1), load, clk, zerolog.Nop())
	trSvc := transport.NewService(tr, clk)
	svc := NewService(invSvc, inv, trSvc, nil, clk, fixedRand{v: 1.0}, zerolog.Nop())
	return &fixture{
		inv:      inv,
		tr:       tr,
		clk:      clk,
		invSvc:   invSvc,
		trSvc:    trSvc,
		svc:      svc,
		coupling: NewCoupling(inv, zerolog.Nop()),
	}
}

func (f *fixture) seedItem(t *testing.T, stock, min, max int) *inventory.Item {
	t.Helper()
	item := &inventory.Item{
		Name:         "Oxygen Cylinder",
		Category:     inventory.CategoryOxygen,
		Department:   "ICU",
		Unit:         "cylinders",
		CurrentStock: stock,
		MinThreshold: min,
		MaxCapacity:  max,
	}
	if err := f.inv.CreateItem(context.Background(), item); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

func (f *fixture) sweeper(hook transport.Hook) *transport.Sweeper {
	return transport.NewSweeper(f.tr, f.clk, transport.DefaultDelayPolicy(), fixedRand{v: 1.0}, hook, zerolog.Nop())
}

func TestAcceptSuggestionCreatesLinkedOrderAndTransport(t *testing.T) {
	f := newFixture()
	item := f.seedItem(t, 10, 20, 100)

	res, err := f.svc.AcceptSuggestion(context.Background(), AcceptRequest{ItemID: item.ID, Quantity: 40})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	o := res.Order
	if o.Status != inventory.OrderStatusOrdered {
		t.Errorf("order status = %s, want ordered", o.Status)
	}
	if o.Quantity != 40 || o.ItemID != item.ID || o.Department != "ICU" {
		t.Errorf("order = %+v", o)
	}

	tr := res.Transport
	if tr.RequestType != transport.TypeEquipment || tr.Priority != transport.PriorityMedium {
		t.Errorf("transport type/priority = %s/%s", tr.RequestType, tr.Priority)
	}
	if tr.FromLocation != SupplierLocation || tr.ToLocation != WarehouseLocation {
		t.Errorf("transport route = %s -> %s", tr.FromLocation, tr.ToLocation)
	}
	if tr.Status != transport.StatusPlanned || tr.PlannedStartTime == nil {
		t.Errorf("transport status = %s, planned_start = %v", tr.Status, tr.PlannedStartTime)
	}
	if !tr.RelatesTo(transport.RelatedInventoryOrder) || tr.RelatedEntityID == nil || *tr.RelatedEntityID != o.ID {
		t.Errorf("transport not linked to order: %+v", tr)
	}

	stored, err := f.inv.GetOrder(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.TransportID == nil || *stored.TransportID != tr.ID {
		t.Errorf("order.transport_id = %v, want %s", stored.TransportID, tr.ID)
	}
	if stored.ExpectedDelivery == nil || !stored.ExpectedDelivery.Equal(tr.PlannedStartTime.Add(deliveryEstimateMinutes*time.Minute)) {
		t.Errorf("expected_delivery = %v", stored.ExpectedDelivery)
	}
}

func TestAcceptSuggestionDefaultsQuantityFromEngine(t *testing.T) {
	f := newFixture()
	// Below threshold: the engine suggests a full top-up to capacity.
	item := f.seedItem(t, 10, 20, 100)

	res, err := f.svc.AcceptSuggestion(context.Background(), AcceptRequest{ItemID: item.ID})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Order.Quantity != 90 {
		t.Fatalf("quantity = %d, want 90", res.Order.Quantity)
	}
}

func TestAcceptSuggestionRejections(t *testing.T) {
	f := newFixture()
	full := f.seedItem(t, 100, 20, 100)

	if _, err := f.svc.AcceptSuggestion(context.Background(), AcceptRequest{ItemID: uuid.New()}); !errors.Is(err, inventory.ErrItemNotFound) {
		t.Errorf("unknown item err = %v", err)
	}
	if _, err := f.svc.AcceptSuggestion(context.Background(), AcceptRequest{ItemID: full.ID}); !errors.Is(err, ErrNothingToOrder) {
		t.Errorf("full item err = %v", err)
	}
	if _, err := f.svc.AcceptSuggestion(context.Background(), AcceptRequest{ItemID: full.ID, Quantity: 10}); err == nil {
		t.Error("expected capacity error for explicit over-order")
	}
}

func TestCouplingActivationMovesOrderInTransit(t *testing.T) {
	f := newFixture()
	item := f.seedItem(t, 10, 20, 100)
	res, err := f.svc.AcceptSuggestion(context.Background(), AcceptRequest{ItemID: item.ID, Quantity: 40})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := f.coupling.OnActivate(context.Background(), res.Transport); err != nil {
		t.Fatalf("on activate: %v", err)
	}
	o, _ := f.inv.GetOrder(context.Background(), res.Order.ID)
	if o.Status != inventory.OrderStatusInTransit {
		t.Fatalf("order status = %s, want in_transit", o.Status)
	}

	// Retried activation is a no-op.
	if err := f.coupling.OnActivate(context.Background(), res.Transport); err != nil {
		t.Fatalf("retried activate: %v", err)
	}
	o, _ = f.inv.GetOrder(context.Background(), res.Order.ID)
	if o.Status != inventory.OrderStatusInTransit {
		t.Fatalf("order status after retry = %s", o.Status)
	}
}

func TestCouplingIgnoresUnrelatedTransports(t *testing.T) {
	f := newFixture()
	patient := &transport.Request{
		RequestType: transport.TypePatient, Priority: transport.PriorityHigh,
		FromLocation: "ER", ToLocation: "ICU", Status: transport.StatusInProgress,
	}
	if err := f.coupling.OnActivate(context.Background(), patient); err != nil {
		t.Fatalf("on activate: %v", err)
	}
	if err := f.coupling.OnComplete(context.Background(), patient); err != nil {
		t.Fatalf("on complete: %v", err)
	}
}

func TestCouplingDeliversExactlyOnce(t *testing.T) {
	f := newFixture()
	item := f.seedItem(t, 10, 20, 100)
	res, err := f.svc.AcceptSuggestion(context.Background(), AcceptRequest{ItemID: item.ID, Quantity: 40})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := f.coupling.OnActivate(context.Background(), res.Transport); err != nil {
		t.Fatalf("on activate: %v", err)
	}

	if err := f.coupling.OnComplete(context.Background(), res.Transport); err != nil {
		t.Fatalf("on complete: %v", err)
	}
	got, _ := f.inv.GetItem(context.Background(), item.ID)
	if got.CurrentStock != 50 {
		t.Fatalf("stock = %d, want 50", got.CurrentStock)
	}
	o, _ := f.inv.GetOrder(context.Background(), res.Order.ID)
	if o.Status != inventory.OrderStatusDelivered {
		t.Fatalf("order status = %s, want delivered", o.Status)
	}

	// A sweep retry completes the same transport again: no double credit.
	if err := f.coupling.OnComplete(context.Background(), res.Transport); err != nil {
		t.Fatalf("retried complete: %v", err)
	}
	got, _ = f.inv.GetItem(context.Background(), item.ID)
	if got.CurrentStock != 50 {
		t.Fatalf("stock after retry = %d, want 50", got.CurrentStock)
	}
}

func TestCouplingStockCreditFailureSurfacesAndNeverDoubleCredits(t *testing.T) {
	f := newFixture()
	item := f.seedItem(t, 10, 20, 100)
	res, err := f.svc.AcceptSuggestion(context.Background(), AcceptRequest{ItemID: item.ID, Quantity: 40})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := f.coupling.OnActivate(context.Background(), res.Transport); err != nil {
		t.Fatalf("on activate: %v", err)
	}

	boom := errors.New("stock write failed")
	f.inv.adjustErr = boom
	if err := f.coupling.OnComplete(context.Background(), res.Transport); !errors.Is(err, boom) {
		t.Fatalf("on complete err = %v, want %v", err, boom)
	}
	// The order flipped before the credit failed; the credit is lost, not
	// applied twice on a later invocation.
	o, _ := f.inv.GetOrder(context.Background(), res.Order.ID)
	if o.Status != inventory.OrderStatusDelivered {
		t.Fatalf("order status = %s, want delivered", o.Status)
	}

	f.inv.adjustErr = nil
	if err := f.coupling.OnComplete(context.Background(), res.Transport); err != nil {
		t.Fatalf("retried complete: %v", err)
	}
	got, _ := f.inv.GetItem(context.Background(), item.ID)
	if got.CurrentStock != 10 {
		t.Fatalf("stock = %d, want 10", got.CurrentStock)
	}
}

func TestCouplingClampsDeliveryAtCapacity(t *testing.T) {
	f := newFixture()
	item := f.seedItem(t, 20, 20, 100)
	res, err := f.svc.AcceptSuggestion(context.Background(), AcceptRequest{ItemID: item.ID, Quantity: 80})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	// Stock moves between order and delivery; the delivery lands on a fuller
	// shelf than it was sized for.
	if _, _, err := f.inv.AdjustStock(context.Background(), item.ID, 50, false); err != nil {
		t.Fatalf("restock: %v", err)
	}

	if err := f.coupling.OnActivate(context.Background(), res.Transport); err != nil {
		t.Fatalf("on activate: %v", err)
	}
	if err := f.coupling.OnComplete(context.Background(), res.Transport); err != nil {
		t.Fatalf("on complete: %v", err)
	}
	got, _ := f.inv.GetItem(context.Background(), item.ID)
	if got.CurrentStock != 100 {
		t.Fatalf("stock = %d, want capacity 100", got.CurrentStock)
	}
}

func TestCancelPendingTransportLeavesOrderOrdered(t *testing.T) {
	f := newFixture()
	item := f.seedItem(t, 10, 20, 100)
	res, err := f.svc.AcceptSuggestion(context.Background(), AcceptRequest{ItemID: item.ID, Quantity: 40})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := f.trSvc.Cancel(context.Background(), res.Transport.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	o, err := f.inv.GetOrder(context.Background(), res.Order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != inventory.OrderStatusOrdered {
		t.Fatalf("order status = %s, want ordered", o.Status)
	}

	// With its transport gone the order never progresses.
	sw := f.sweeper(f.coupling)
	f.clk.Advance(24 * time.Hour)
	if _, err := sw.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	o, _ = f.inv.GetOrder(context.Background(), res.Order.ID)
	if o.Status != inventory.OrderStatusOrdered {
		t.Fatalf("order status after sweep = %s, want ordered", o.Status)
	}
	got, _ := f.inv.GetItem(context.Background(), item.ID)
	if got.CurrentStock != 10 {
		t.Fatalf("stock = %d, want 10", got.CurrentStock)
	}
}

func TestSweepDrivesOrderThroughDelivery(t *testing.T) {
	f := newFixture()
	item := f.seedItem(t, 10, 20, 100)
	start := f.clk.Now().Add(10 * time.Minute)
	res, err := f.svc.AcceptSuggestion(context.Background(), AcceptRequest{
		ItemID: item.ID, Quantity: 40, PlannedStartTime: &start,
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	sw := f.sweeper(f.coupling)

	// Before the planned start: nothing moves.
	if _, err := sw.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	o, _ := f.inv.GetOrder(context.Background(), res.Order.ID)
	if o.Status != inventory.OrderStatusOrdered {
		t.Fatalf("order status = %s, want ordered", o.Status)
	}

	// Past the planned start: transport activates, order rides along.
	f.clk.Advance(11 * time.Minute)
	r, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if r.Activated != 1 {
		t.Fatalf("sweep result = %+v", r)
	}
	o, _ = f.inv.GetOrder(context.Background(), res.Order.ID)
	if o.Status != inventory.OrderStatusInTransit {
		t.Fatalf("order status = %s, want in_transit", o.Status)
	}

	// Past the expected completion: delivery lands and restocks the item.
	f.clk.Advance(deliveryEstimateMinutes*time.Minute + time.Minute)
	r, err = sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if r.Completed != 1 {
		t.Fatalf("sweep result = %+v", r)
	}
	o, _ = f.inv.GetOrder(context.Background(), res.Order.ID)
	if o.Status != inventory.OrderStatusDelivered {
		t.Fatalf("order status = %s, want delivered", o.Status)
	}
	got, _ := f.inv.GetItem(context.Background(), item.ID)
	if got.CurrentStock != 50 {
		t.Fatalf("stock = %d, want 50", got.CurrentStock)
	}
}
