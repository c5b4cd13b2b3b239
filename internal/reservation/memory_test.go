package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/fleet-pricing/internal/models"
)

var tripDate = time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)

func TestReserveConcurrentSingleWinner(t *testing.T) {
	ledger := NewMemoryLedger()
	vehicle := uuid.New()

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan uuid.UUID, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order := uuid.New()
			_, err := ledger.Reserve(context.Background(), vehicle, tripDate, order, nil, "")
			if err == nil {
				wins <- order
				return
			}
			var conflict *AlreadyReservedError
			if !errors.As(err, &conflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []uuid.UUID
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(winners))
	}
	held, err := ledger.IsReserved(context.Background(), vehicle, tripDate, nil)
	if err != nil || !held {
		t.Fatalf("slot should be held by the winner: held=%v err=%v", held, err)
	}
}

func TestReserveIdempotentPerOrder(t *testing.T) {
	ledger := NewMemoryLedger()
	vehicle := uuid.New()
	order := uuid.New()

	first, err := ledger.Reserve(context.Background(), vehicle, tripDate, order, nil, "deposit")
	if err != nil {
		t.Fatal(err)
	}
	again, err := ledger.Reserve(context.Background(), vehicle, tripDate, order, nil, "deposit")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID {
		t.Fatalf("repeat reserve created a second row: %s vs %s", again.ID, first.ID)
	}
}

func TestReserveNormalizesTripDate(t *testing.T) {
	ledger := NewMemoryLedger()
	vehicle := uuid.New()

	morning := time.Date(2026, 9, 14, 8, 30, 0, 0, time.UTC)
	evening := time.Date(2026, 9, 14, 22, 0, 0, 0, time.UTC)
	if _, err := ledger.Reserve(context.Background(), vehicle, morning, uuid.New(), nil, ""); err != nil {
		t.Fatal(err)
	}
	_, err := ledger.Reserve(context.Background(), vehicle, evening, uuid.New(), nil, "")
	var conflict *AlreadyReservedError
	if !errors.As(err, &conflict) {
		t.Fatalf("same calendar day must conflict, got %v", err)
	}
}

func TestConflictNamesHolder(t *testing.T) {
	ledger := NewMemoryLedger()
	vehicle := uuid.New()
	holder := uuid.New()

	if _, err := ledger.Reserve(context.Background(), vehicle, tripDate, holder, nil, ""); err != nil {
		t.Fatal(err)
	}
	_, err := ledger.Reserve(context.Background(), vehicle, tripDate, uuid.New(), nil, "")
	var conflict *AlreadyReservedError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if conflict.HeldByOrderID != holder {
		t.Fatalf("conflict names %s, want %s", conflict.HeldByOrderID, holder)
	}
}

func TestCancelFreesSlotForNextOrder(t *testing.T) {
	ledger := NewMemoryLedger()
	vehicle := uuid.New()
	first := uuid.New()

	if _, err := ledger.Reserve(context.Background(), vehicle, tripDate, first, nil, ""); err != nil {
		t.Fatal(err)
	}
	n, err := ledger.CancelByOrder(context.Background(), first)
	if err != nil || n != 1 {
		t.Fatalf("cancel: n=%d err=%v", n, err)
	}
	if _, err := ledger.Reserve(context.Background(), vehicle, tripDate, uuid.New(), nil, ""); err != nil {
		t.Fatalf("slot should be free after cancel: %v", err)
	}
}

func TestConsumeIsOneWay(t *testing.T) {
	ledger := NewMemoryLedger()
	vehicle := uuid.New()
	order := uuid.New()

	r, err := ledger.Reserve(context.Background(), vehicle, tripDate, order, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := ledger.Consume(context.Background(), r.ID); err != nil {
		t.Fatal(err)
	}

	// consuming twice is a settled conflict, not a hard failure
	err = ledger.Consume(context.Background(), r.ID)
	var state *StateConflictError
	if !errors.As(err, &state) || !state.AlreadyResolved() {
		t.Fatalf("expected settled StateConflictError, got %v", err)
	}

	// cancel must not touch the consumed row
	n, err := ledger.CancelByOrder(context.Background(), order)
	if err != nil || n != 0 {
		t.Fatalf("cancel after consume: n=%d err=%v", n, err)
	}
	rs, err := ledger.ReservationsByOrder(context.Background(), order)
	if err != nil || len(rs) != 1 || rs[0].Status != models.ReservationConsumed {
		t.Fatalf("consumed row changed: %+v err=%v", rs, err)
	}
}

func TestConsumedSlotStillBlocksButIsNotReserved(t *testing.T) {
	ledger := NewMemoryLedger()
	vehicle := uuid.New()
	order := uuid.New()

	r, err := ledger.Reserve(context.Background(), vehicle, tripDate, order, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := ledger.Consume(context.Background(), r.ID); err != nil {
		t.Fatal(err)
	}

	// IsReserved reports live RESERVED holds only
	held, err := ledger.IsReserved(context.Background(), vehicle, tripDate, nil)
	if err != nil || held {
		t.Fatalf("consumed slot must not report as reserved: held=%v err=%v", held, err)
	}
	// but the slot itself stays occupied
	_, err = ledger.Reserve(context.Background(), vehicle, tripDate, uuid.New(), nil, "")
	var conflict *AlreadyReservedError
	if !errors.As(err, &conflict) {
		t.Fatalf("consumed slot must still block new reservations, got %v", err)
	}
}

func TestConsumeUnknownReservation(t *testing.T) {
	ledger := NewMemoryLedger()
	err := ledger.Consume(context.Background(), uuid.New())
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestIsReservedExcludesOwnOrder(t *testing.T) {
	ledger := NewMemoryLedger()
	vehicle := uuid.New()
	order := uuid.New()

	if _, err := ledger.Reserve(context.Background(), vehicle, tripDate, order, nil, ""); err != nil {
		t.Fatal(err)
	}
	held, err := ledger.IsReserved(context.Background(), vehicle, tripDate, &order)
	if err != nil || held {
		t.Fatalf("own hold must be excluded: held=%v err=%v", held, err)
	}
	other := uuid.New()
	held, err = ledger.IsReserved(context.Background(), vehicle, tripDate, &other)
	if err != nil || !held {
		t.Fatalf("foreign hold must count: held=%v err=%v", held, err)
	}
}

func TestDifferentDatesDoNotConflict(t *testing.T) {
	ledger := NewMemoryLedger()
	vehicle := uuid.New()

	if _, err := ledger.Reserve(context.Background(), vehicle, tripDate, uuid.New(), nil, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.Reserve(context.Background(), vehicle, tripDate.AddDate(0, 0, 1), uuid.New(), nil, ""); err != nil {
		t.Fatalf("next day must be a different slot: %v", err)
	}
}
