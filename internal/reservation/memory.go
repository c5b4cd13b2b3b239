package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/fleet-pricing/internal/models"
	"github.com/example/fleet-pricing/internal/observability"
)

// MemoryLedger keeps reservations in memory behind a single mutex. The mutex
// stands in for the database transaction: check-then-insert runs atomically,
// so the slot invariant holds under concurrent Reserve calls just as the
// partial unique index guarantees it for the Postgres ledger.
type MemoryLedger struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*models.Reservation
	clock func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{rows: make(map[uuid.UUID]*models.Reservation), clock: time.Now}
}

// WithClock fixes the ledger's clock, for tests.
func (m *MemoryLedger) WithClock(clock func() time.Time) *MemoryLedger {
	m.clock = clock
	return m
}

func (m *MemoryLedger) Reserve(ctx context.Context, vehicleID uuid.UUID, tripDate time.Time, orderID uuid.UUID, contractID *uuid.UUID, notes string) (models.Reservation, error) {
	date := models.DateOf(tripDate)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows {
		if r.VehicleID != vehicleID || !r.TripDate.Equal(date) || r.Status == models.ReservationCancelled {
			continue
		}
		if r.OrderID == orderID {
			return *r, nil // idempotent repeat for the same order
		}
		observability.ReservationConflictsTotal.Inc()
		return models.Reservation{}, &AlreadyReservedError{VehicleID: vehicleID, TripDate: date, HeldByOrderID: r.OrderID}
	}

	now := m.clock().UTC()
	r := &models.Reservation{
		ID:         uuid.New(),
		VehicleID:  vehicleID,
		TripDate:   date,
		OrderID:    orderID,
		ContractID: contractID,
		Status:     models.ReservationReserved,
		Notes:      notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.rows[r.ID] = r
	observability.ReservationsTotal.Inc()
	return *r, nil
}

func (m *MemoryLedger) Consume(ctx context.Context, reservationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[reservationID]
	if !ok {
		return &NotFoundError{ReservationID: reservationID}
	}
	if r.Status != models.ReservationReserved {
		return &StateConflictError{ReservationID: reservationID, Current: r.Status}
	}
	r.Status = models.ReservationConsumed
	r.UpdatedAt = m.clock().UTC()
	return nil
}

func (m *MemoryLedger) CancelByOrder(ctx context.Context, orderID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.rows {
		if r.OrderID == orderID && r.Status == models.ReservationReserved {
			r.Status = models.ReservationCancelled
			r.UpdatedAt = m.clock().UTC()
			n++
		}
	}
	return n, nil
}

func (m *MemoryLedger) IsReserved(ctx context.Context, vehicleID uuid.UUID, tripDate time.Time, excludeOrderID *uuid.UUID) (bool, error) {
	date := models.DateOf(tripDate)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows {
		if r.VehicleID != vehicleID || !r.TripDate.Equal(date) || r.Status != models.ReservationReserved {
			continue
		}
		if excludeOrderID != nil && r.OrderID == *excludeOrderID {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (m *MemoryLedger) ReservationsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Reservation
	for _, r := range m.rows {
		if r.OrderID == orderID {
			out = append(out, *r)
		}
	}
	return out, nil
}
