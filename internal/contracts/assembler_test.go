package contracts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/fleet-pricing/internal/catalog"
	"github.com/example/fleet-pricing/internal/distance"
	"github.com/example/fleet-pricing/internal/events"
	"github.com/example/fleet-pricing/internal/models"
	"github.com/example/fleet-pricing/internal/pricing"
	"github.com/example/fleet-pricing/internal/reservation"
	"github.com/example/fleet-pricing/internal/storage"
)

func dec(v int64) decimal.Decimal   { return decimal.NewFromInt(v) }
func decs(s string) decimal.Decimal { d, _ := decimal.NewFromString(s); return d }

type fixedDistance struct{ q distance.Quote }

func (f fixedDistance) Quote(ctx context.Context, from, to models.Coord) (distance.Quote, error) {
	return f.q, nil
}

type fakeGateway struct {
	held     []string
	captured []string
	released []string
	failHold bool
}

func (g *fakeGateway) HoldDeposit(ctx context.Context, amount decimal.Decimal, currency, customerID string) (string, error) {
	if g.failHold {
		return "", errors.New("card declined")
	}
	id := fmt.Sprintf("pi_%d", len(g.held)+1)
	g.held = append(g.held, id)
	return id, nil
}

func (g *fakeGateway) CaptureDeposit(ctx context.Context, id string) error {
	g.captured = append(g.captured, id)
	return nil
}

func (g *fakeGateway) ReleaseDeposit(ctx context.Context, id string) error {
	g.released = append(g.released, id)
	return nil
}

type recordingPublisher struct{ events []events.Event }

func (r *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

type harness struct {
	a       *Assembler
	ledger  *reservation.MemoryLedger
	gateway *fakeGateway
	pub     *recordingPublisher
	ruleID  uuid.UUID
	typeID  uuid.UUID
	catID   uuid.UUID
	now     *time.Time
}

func newHarness(t *testing.T, vehicles int) *harness {
	t.Helper()

	cat := catalog.NewMemory()
	typeID := uuid.New()
	to := dec(100)
	rule := models.SizeRule{
		ID:            uuid.New(),
		VehicleTypeID: typeID,
		Name:          "truck-1t",
		MaxWeightKg:   dec(1000),
		MaxLengthCm:   dec(300),
		MaxWidthCm:    dec(180),
		MaxHeightCm:   dec(180),
		EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:        models.RuleStatusActive,
	}
	err := cat.AddSizeRule(rule,
		models.DistanceTier{ID: uuid.New(), SizeRuleID: rule.ID, FromKm: dec(0), ToKm: &to, BasePrice: dec(50000)},
		models.DistanceTier{ID: uuid.New(), SizeRuleID: rule.ID, FromKm: dec(100), BasePrice: dec(40000)},
	)
	if err != nil {
		t.Fatal(err)
	}
	catID := uuid.New()
	cat.AddCategoryRule(models.CategoryRule{CategoryID: catID, Name: "general", Multiplier: dec(1), ExtraFee: dec(0)})
	for i := 0; i < vehicles; i++ {
		cat.AddVehicle(models.Vehicle{ID: uuid.New(), VehicleTypeID: typeID, LicensePlate: fmt.Sprintf("51C-%03d", i), Operational: true})
	}
	if err := cat.SetSettings(models.ContractSetting{
		DepositPercent:              dec(30),
		DepositDeadlineHours:        24,
		SigningDeadlineHours:        48,
		FullPaymentDaysBeforePickup: 3,
		InsuranceRateNormal:         decs("0.0008"),
		InsuranceRateFragile:        decs("0.0015"),
		VATRate:                     decs("0.10"),
		Version:                     "settings-1",
	}); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	h := &harness{
		ledger:  reservation.NewMemoryLedger(),
		gateway: &fakeGateway{},
		pub:     &recordingPublisher{},
		ruleID:  rule.ID,
		typeID:  typeID,
		catID:   catID,
		now:     &now,
	}
	clock := func() time.Time { return *h.now }
	h.a = &Assembler{
		Rules:    cat,
		Settings: cat,
		Vehicles: cat,
		Pricer:   &pricing.Engine{Tiers: cat, Categories: cat, Clock: clock},
		Ledger:   h.ledger,
		Store:    storage.NewMemoryStore(),
		Distance: fixedDistance{q: distance.Quote{DistanceKm: dec(120), TollTotal: dec(100000)}},
		Gateway:  h.gateway,
		Events:   h.pub,
		Currency: "vnd",
		Clock:    clock,
	}
	return h
}

func (h *harness) quoteRequest() QuoteRequest {
	return QuoteRequest{
		OrderID: uuid.New(),
		Packages: []models.Package{
			{ID: uuid.New(), WeightKg: dec(700), LengthCm: dec(200), WidthCm: dec(100), HeightCm: dec(100), DeclaredValue: dec(5000000)},
			{ID: uuid.New(), WeightKg: dec(600), LengthCm: dec(200), WidthCm: dec(100), HeightCm: dec(100), DeclaredValue: dec(3000000)},
		},
		Pickup:     models.Coord{Lat: 10.776, Lon: 106.700},
		Dropoff:    models.Coord{Lat: 10.045, Lon: 105.746},
		CategoryID: h.catID,
		TripDate:   time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateContractFreezesSnapshotAndDeadlines(t *testing.T) {
	h := newHarness(t, 2)
	c, err := h.a.CreateContract(context.Background(), h.quoteRequest())
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != models.ContractPendingDeposit {
		t.Fatalf("status = %s", c.Status)
	}
	// two 100km-capable packages over weight 1000 pack into two trucks:
	// 2 x (120 x 40000) + toll 100000 = 9,700,000
	want := dec(9700000)
	if !c.Snapshot.GrandTotal.Equal(want) {
		t.Fatalf("grand total = %s, want %s", c.Snapshot.GrandTotal, want)
	}
	if !c.Snapshot.DepositAmount.Add(c.Snapshot.RemainingAmount).Equal(c.Snapshot.GrandTotal) {
		t.Fatal("deposit split does not sum back to grand total")
	}
	if got := c.DepositDeadline.Sub(*h.now); got != 24*time.Hour {
		t.Fatalf("deposit deadline offset = %s", got)
	}
	if !c.FullPaymentDue.Equal(time.Date(2026, 9, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("full payment due = %s", c.FullPaymentDue)
	}

	// repricing the world later must not touch the stored snapshot
	stored, err := h.a.Store.ContractByID(context.Background(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Snapshot.GrandTotal.Equal(want) || stored.Snapshot.SettingsVersion != "settings-1" {
		t.Fatalf("stored snapshot drifted: %+v", stored.Snapshot)
	}
}

func TestConfirmDepositReservesAndHolds(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	c, err := h.a.CreateContract(ctx, h.quoteRequest())
	if err != nil {
		t.Fatal(err)
	}
	buckets, err := BucketsFromSnapshot(c.Snapshot)
	if err != nil {
		t.Fatal(err)
	}
	picks, err := h.a.SuggestVehicles(ctx, buckets, c.TripDate, c.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if len(picks) != 2 || picks[0] == picks[1] {
		t.Fatalf("expected 2 distinct vehicles, got %v", picks)
	}

	got, err := h.a.ConfirmDeposit(ctx, c.ID, picks, "cus_42")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.ContractDepositPaid || got.PaymentIntentID == "" {
		t.Fatalf("contract after deposit: %+v", got)
	}
	if len(h.gateway.held) != 1 {
		t.Fatalf("expected one hold, got %d", len(h.gateway.held))
	}
	for _, v := range picks {
		held, err := h.ledger.IsReserved(ctx, v, c.TripDate, nil)
		if err != nil || !held {
			t.Fatalf("vehicle %s not reserved: held=%v err=%v", v, held, err)
		}
	}

	// a second confirmation attempt is refused by status
	_, err = h.a.ConfirmDeposit(ctx, c.ID, picks, "cus_42")
	var status *StatusError
	if !errors.As(err, &status) {
		t.Fatalf("expected StatusError, got %v", err)
	}
}

func TestConfirmDepositConflictRollsBackOwnReservations(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	c, err := h.a.CreateContract(ctx, h.quoteRequest())
	if err != nil {
		t.Fatal(err)
	}
	buckets, _ := BucketsFromSnapshot(c.Snapshot)
	picks, err := h.a.SuggestVehicles(ctx, buckets, c.TripDate, c.OrderID)
	if err != nil {
		t.Fatal(err)
	}

	// a rival order grabs the second vehicle between suggestion and deposit
	rival := uuid.New()
	if _, err := h.ledger.Reserve(ctx, picks[1], c.TripDate, rival, nil, ""); err != nil {
		t.Fatal(err)
	}

	_, err = h.a.ConfirmDeposit(ctx, c.ID, picks, "cus_42")
	var conflict *reservation.AlreadyReservedError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected AlreadyReservedError, got %v", err)
	}
	if conflict.HeldByOrderID != rival {
		t.Fatalf("conflict names %s, want rival %s", conflict.HeldByOrderID, rival)
	}

	// the first vehicle must be free again and no money held
	held, err := h.ledger.IsReserved(ctx, picks[0], c.TripDate, nil)
	if err != nil || held {
		t.Fatalf("own reservation not rolled back: held=%v err=%v", held, err)
	}
	if len(h.gateway.held) != 0 {
		t.Fatalf("deposit was held despite conflict")
	}

	stored, _ := h.a.Store.ContractByID(ctx, c.ID)
	if stored.Status != models.ContractPendingDeposit {
		t.Fatalf("contract left in %s after failed deposit", stored.Status)
	}
}

func TestConfirmDepositGatewayFailureRollsBack(t *testing.T) {
	h := newHarness(t, 2)
	h.gateway.failHold = true
	ctx := context.Background()
	c, err := h.a.CreateContract(ctx, h.quoteRequest())
	if err != nil {
		t.Fatal(err)
	}
	buckets, _ := BucketsFromSnapshot(c.Snapshot)
	picks, _ := h.a.SuggestVehicles(ctx, buckets, c.TripDate, c.OrderID)

	if _, err := h.a.ConfirmDeposit(ctx, c.ID, picks, "cus_42"); err == nil {
		t.Fatal("expected hold failure")
	}
	for _, v := range picks {
		held, err := h.ledger.IsReserved(ctx, v, c.TripDate, nil)
		if err != nil || held {
			t.Fatalf("reservation survived gateway failure: held=%v err=%v", held, err)
		}
	}
}

func TestSuggestVehiclesNoneFree(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	tripDate := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)

	// the only vehicle is held by someone else
	vehicles, err := h.a.Vehicles.VehiclesByType(ctx, h.typeID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.ledger.Reserve(ctx, vehicles[0].ID, tripDate, uuid.New(), nil, ""); err != nil {
		t.Fatal(err)
	}

	buckets := []models.PackedBucket{{SizeRuleID: h.ruleID, SizeRuleName: "truck-1t"}}
	_, err = h.a.SuggestVehicles(ctx, buckets, tripDate, uuid.New())
	var none *NoVehicleAvailableError
	if !errors.As(err, &none) {
		t.Fatalf("expected NoVehicleAvailableError, got %v", err)
	}
	if none.SizeRuleName != "truck-1t" {
		t.Fatalf("error names wrong rule: %+v", none)
	}
}

func TestConsumeThenCancelLeavesConsumed(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	c, err := h.a.CreateContract(ctx, h.quoteRequest())
	if err != nil {
		t.Fatal(err)
	}
	buckets, _ := BucketsFromSnapshot(c.Snapshot)
	picks, _ := h.a.SuggestVehicles(ctx, buckets, c.TripDate, c.OrderID)
	if _, err := h.a.ConfirmDeposit(ctx, c.ID, picks, ""); err != nil {
		t.Fatal(err)
	}

	n, err := h.a.ConsumeForAssignment(ctx, c.OrderID)
	if err != nil || n != 2 {
		t.Fatalf("consume: n=%d err=%v", n, err)
	}
	// repeat is a no-op
	n, err = h.a.ConsumeForAssignment(ctx, c.OrderID)
	if err != nil || n != 0 {
		t.Fatalf("repeat consume: n=%d err=%v", n, err)
	}

	freed, err := h.a.CancelOrder(ctx, c.OrderID, "customer changed mind")
	if err != nil {
		t.Fatal(err)
	}
	if freed != 0 {
		t.Fatalf("cancel freed %d consumed reservations", freed)
	}
	rs, _ := h.ledger.ReservationsByOrder(ctx, c.OrderID)
	for _, r := range rs {
		if r.Status != models.ReservationConsumed {
			t.Fatalf("reservation %s is %s, want CONSUMED", r.ID, r.Status)
		}
	}
}

func TestCancelReleasesDepositAndFreesSlots(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	c, err := h.a.CreateContract(ctx, h.quoteRequest())
	if err != nil {
		t.Fatal(err)
	}
	buckets, _ := BucketsFromSnapshot(c.Snapshot)
	picks, _ := h.a.SuggestVehicles(ctx, buckets, c.TripDate, c.OrderID)
	if _, err := h.a.ConfirmDeposit(ctx, c.ID, picks, ""); err != nil {
		t.Fatal(err)
	}

	freed, err := h.a.CancelOrder(ctx, c.OrderID, "out of stock")
	if err != nil || freed != 2 {
		t.Fatalf("cancel: freed=%d err=%v", freed, err)
	}
	if len(h.gateway.released) != 1 {
		t.Fatalf("deposit hold not released: %v", h.gateway.released)
	}
	stored, _ := h.a.Store.ContractByID(ctx, c.ID)
	if stored.Status != models.ContractCancelled {
		t.Fatalf("contract status = %s", stored.Status)
	}
	// freed slots are reusable immediately
	if _, err := h.ledger.Reserve(ctx, picks[0], c.TripDate, uuid.New(), nil, ""); err != nil {
		t.Fatalf("slot not reusable after cancel: %v", err)
	}
}

func TestExpireOverdueDeposits(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	c, err := h.a.CreateContract(ctx, h.quoteRequest())
	if err != nil {
		t.Fatal(err)
	}

	// nothing to expire before the deadline
	n, err := h.a.ExpireOverdueDeposits(ctx, 10)
	if err != nil || n != 0 {
		t.Fatalf("early sweep: n=%d err=%v", n, err)
	}

	*h.now = h.now.Add(25 * time.Hour)
	n, err = h.a.ExpireOverdueDeposits(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}
	stored, _ := h.a.Store.ContractByID(ctx, c.ID)
	if stored.Status != models.ContractExpired {
		t.Fatalf("contract status = %s, want EXPIRED", stored.Status)
	}

	var sawExpired bool
	for _, e := range h.pub.events {
		if e.Type == events.EventExpired && e.OrderID == c.OrderID {
			sawExpired = true
		}
	}
	if !sawExpired {
		t.Fatal("no EXPIRED event published")
	}
}

func TestExpireOverdueFullPayments(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	c, err := h.a.CreateContract(ctx, h.quoteRequest())
	if err != nil {
		t.Fatal(err)
	}
	buckets, _ := BucketsFromSnapshot(c.Snapshot)
	picks, _ := h.a.SuggestVehicles(ctx, buckets, c.TripDate, c.OrderID)
	if _, err := h.a.ConfirmDeposit(ctx, c.ID, picks, "cus_42"); err != nil {
		t.Fatal(err)
	}

	// deposit is in; the deposit sweep must leave the contract alone even
	// after its full-payment date passes
	*h.now = time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)
	n, err := h.a.ExpireOverdueDeposits(ctx, 10)
	if err != nil || n != 0 {
		t.Fatalf("deposit sweep touched a paid contract: n=%d err=%v", n, err)
	}

	n, err = h.a.ExpireOverdueFullPayments(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("full-payment sweep: n=%d err=%v", n, err)
	}
	stored, _ := h.a.Store.ContractByID(ctx, c.ID)
	if stored.Status != models.ContractExpired {
		t.Fatalf("contract status = %s, want EXPIRED", stored.Status)
	}
	if len(h.gateway.released) != 1 {
		t.Fatalf("deposit hold not released: %v", h.gateway.released)
	}
	for _, v := range picks {
		held, err := h.ledger.IsReserved(ctx, v, c.TripDate, nil)
		if err != nil || held {
			t.Fatalf("vehicle %s still reserved after expiry: held=%v err=%v", v, held, err)
		}
	}
	var sawExpired bool
	for _, e := range h.pub.events {
		if e.Type == events.EventExpired && e.OrderID == c.OrderID {
			sawExpired = true
		}
	}
	if !sawExpired {
		t.Fatal("no EXPIRED event published")
	}

	// a repeat sweep finds nothing
	n, err = h.a.ExpireOverdueFullPayments(ctx, 10)
	if err != nil || n != 0 {
		t.Fatalf("repeat sweep: n=%d err=%v", n, err)
	}
}

type countingSettings struct {
	inner catalog.SettingsSource
	calls int
}

func (c *countingSettings) CurrentSettings(ctx context.Context) (models.ContractSetting, error) {
	c.calls++
	return c.inner.CurrentSettings(ctx)
}

func TestCreateContractReadsSettingsOnce(t *testing.T) {
	h := newHarness(t, 2)
	counter := &countingSettings{inner: h.a.Settings}
	h.a.Settings = counter

	if _, err := h.a.CreateContract(context.Background(), h.quoteRequest()); err != nil {
		t.Fatal(err)
	}
	// deadlines and the priced snapshot must come from the same settings row
	if counter.calls != 1 {
		t.Fatalf("settings read %d times during contract creation, want 1", counter.calls)
	}
}

func TestBuildQuotePublishesQuotedEvent(t *testing.T) {
	h := newHarness(t, 2)
	req := h.quoteRequest()
	res, err := h.a.BuildQuote(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(res.Buckets))
	}
	if len(h.pub.events) != 1 || h.pub.events[0].Type != events.EventQuoted {
		t.Fatalf("expected one QUOTED event, got %+v", h.pub.events)
	}
}
