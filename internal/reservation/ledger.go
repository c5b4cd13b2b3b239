// Package reservation owns the vehicle-reservation ledger: the one place in
// the core with mutable, transactional state. A slot is the pair
// (vehicle, trip date); at most one RESERVED or CONSUMED reservation may hold
// a slot at any time, which is what protects the "last available vehicle"
// from being sold twice.
package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/fleet-pricing/internal/models"
)

// Ledger is the transactional reservation store.
//
// Reserve is idempotent per (vehicle, trip date, order): repeating the call
// for the same order returns the existing live reservation. A live slot held
// by a different order yields *AlreadyReservedError, an expected and
// recoverable outcome; callers re-run vehicle suggestion excluding the
// conflicting vehicle.
type Ledger interface {
	Reserve(ctx context.Context, vehicleID uuid.UUID, tripDate time.Time, orderID uuid.UUID, contractID *uuid.UUID, notes string) (models.Reservation, error)

	// Consume marks a RESERVED reservation CONSUMED when the operational
	// vehicle assignment is created. Any other current status yields
	// *StateConflictError; consumption is a one-way terminal transition.
	Consume(ctx context.Context, reservationID uuid.UUID) error

	// CancelByOrder cancels every RESERVED reservation of the order and
	// returns how many rows it flipped. CONSUMED rows are left untouched:
	// cancellation after consumption needs manual operational handling and
	// must not silently reopen the slot.
	CancelByOrder(ctx context.Context, orderID uuid.UUID) (int, error)

	// IsReserved reports whether a RESERVED reservation holds the slot,
	// optionally ignoring reservations of one order. Cancelled rows free the
	// slot immediately.
	IsReserved(ctx context.Context, vehicleID uuid.UUID, tripDate time.Time, excludeOrderID *uuid.UUID) (bool, error)

	ReservationsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error)
}

// AlreadyReservedError: another order holds a live reservation for the slot.
type AlreadyReservedError struct {
	VehicleID     uuid.UUID
	TripDate      time.Time
	HeldByOrderID uuid.UUID // zero when the holder could not be resolved
}

func (e *AlreadyReservedError) Error() string {
	return fmt.Sprintf("reservation: vehicle %s already reserved on %s",
		e.VehicleID, e.TripDate.Format("2006-01-02"))
}

// StateConflictError: the reservation was not in the status the transition
// requires. When the current status is terminal the caller may treat this as
// an "already resolved" no-op rather than a failure.
type StateConflictError struct {
	ReservationID uuid.UUID
	Current       models.ReservationStatus
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("reservation: %s is %s, transition not allowed", e.ReservationID, e.Current)
}

// AlreadyResolved reports whether the losing side of a Consume/Cancel race
// can treat the conflict as settled.
func (e *StateConflictError) AlreadyResolved() bool {
	return e.Current.Terminal()
}

// NotFoundError: no reservation with the given ID exists.
type NotFoundError struct {
	ReservationID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("reservation: %s not found", e.ReservationID)
}
