package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/example/fleet-pricing/internal/models"
	"github.com/example/fleet-pricing/internal/observability"
)

// uniqueViolation is the Postgres SQLSTATE raised when an insert collides
// with the partial unique index over live reservations.
const uniqueViolation = "23505"

const liveSlotIndex = "uniq_vehicle_reservation_live_slot"

// PostgresLedger enforces the slot invariant with a partial unique index on
// (vehicle_id, trip_date) filtered to non-terminal statuses (see
// migrations/001_create_fleet.sql). The constraint violation is the
// authoritative conflict signal: correct under any isolation level, no lock
// contention across unrelated vehicles or dates.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (p *PostgresLedger) Reserve(ctx context.Context, vehicleID uuid.UUID, tripDate time.Time, orderID uuid.UUID, contractID *uuid.UUID, notes string) (models.Reservation, error) {
	date := models.DateOf(tripDate)

	// idempotency: an existing live reservation for the same order wins
	existing, err := p.findLive(ctx, vehicleID, date, orderID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Reservation{}, err
	}

	var r models.Reservation
	var contract uuid.NullUUID
	if contractID != nil {
		contract = uuid.NullUUID{UUID: *contractID, Valid: true}
	}
	err = p.db.QueryRowContext(ctx, `
		INSERT INTO vehicle_reservations (id, vehicle_id, trip_date, order_id, contract_id, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'RESERVED', $6, now(), now())
		RETURNING id, vehicle_id, trip_date, order_id, contract_id, status, notes, created_at, updated_at`,
		uuid.New(), vehicleID, date, orderID, contract, notes).
		Scan(&r.ID, &r.VehicleID, &r.TripDate, &r.OrderID, &contract, &r.Status, &r.Notes, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == liveSlotIndex {
			observability.ReservationConflictsTotal.Inc()
			conflict := &AlreadyReservedError{VehicleID: vehicleID, TripDate: date}
			// best effort: name the holder for the caller's messaging
			_ = p.db.QueryRowContext(ctx, `
				SELECT order_id FROM vehicle_reservations
				WHERE vehicle_id = $1 AND trip_date = $2 AND status IN ('RESERVED', 'CONSUMED')`,
				vehicleID, date).Scan(&conflict.HeldByOrderID)
			return models.Reservation{}, conflict
		}
		return models.Reservation{}, fmt.Errorf("reservation: insert: %w", err)
	}
	if contract.Valid {
		c := contract.UUID
		r.ContractID = &c
	}
	observability.ReservationsTotal.Inc()
	return r, nil
}

func (p *PostgresLedger) findLive(ctx context.Context, vehicleID uuid.UUID, date time.Time, orderID uuid.UUID) (models.Reservation, error) {
	var r models.Reservation
	var contract uuid.NullUUID
	err := p.db.QueryRowContext(ctx, `
		SELECT id, vehicle_id, trip_date, order_id, contract_id, status, notes, created_at, updated_at
		FROM vehicle_reservations
		WHERE vehicle_id = $1 AND trip_date = $2 AND order_id = $3
		  AND status IN ('RESERVED', 'CONSUMED')`,
		vehicleID, date, orderID).
		Scan(&r.ID, &r.VehicleID, &r.TripDate, &r.OrderID, &contract, &r.Status, &r.Notes, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Reservation{}, err
		}
		return models.Reservation{}, fmt.Errorf("reservation: query live slot: %w", err)
	}
	if contract.Valid {
		c := contract.UUID
		r.ContractID = &c
	}
	return r, nil
}

func (p *PostgresLedger) Consume(ctx context.Context, reservationID uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE vehicle_reservations
		SET status = 'CONSUMED', updated_at = now()
		WHERE id = $1 AND status = 'RESERVED'`, reservationID)
	if err != nil {
		return fmt.Errorf("reservation: consume: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reservation: consume rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	// the guarded update missed: report the current state so the caller can
	// distinguish a race loss from a missing row
	var status string
	err = p.db.QueryRowContext(ctx, `SELECT status FROM vehicle_reservations WHERE id = $1`, reservationID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{ReservationID: reservationID}
	}
	if err != nil {
		return fmt.Errorf("reservation: consume status check: %w", err)
	}
	return &StateConflictError{ReservationID: reservationID, Current: models.ReservationStatus(status)}
}

func (p *PostgresLedger) CancelByOrder(ctx context.Context, orderID uuid.UUID) (int, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE vehicle_reservations
		SET status = 'CANCELLED', updated_at = now()
		WHERE order_id = $1 AND status = 'RESERVED'`, orderID)
	if err != nil {
		return 0, fmt.Errorf("reservation: cancel by order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reservation: cancel rows: %w", err)
	}
	return int(n), nil
}

func (p *PostgresLedger) IsReserved(ctx context.Context, vehicleID uuid.UUID, tripDate time.Time, excludeOrderID *uuid.UUID) (bool, error) {
	date := models.DateOf(tripDate)
	var reserved bool
	var err error
	if excludeOrderID != nil {
		err = p.db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM vehicle_reservations
				WHERE vehicle_id = $1 AND trip_date = $2 AND status = 'RESERVED' AND order_id != $3
			)`, vehicleID, date, *excludeOrderID).Scan(&reserved)
	} else {
		err = p.db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM vehicle_reservations
				WHERE vehicle_id = $1 AND trip_date = $2 AND status = 'RESERVED'
			)`, vehicleID, date).Scan(&reserved)
	}
	if err != nil {
		return false, fmt.Errorf("reservation: availability check: %w", err)
	}
	return reserved, nil
}

func (p *PostgresLedger) ReservationsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, vehicle_id, trip_date, order_id, contract_id, status, notes, created_at, updated_at
		FROM vehicle_reservations
		WHERE order_id = $1
		ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("reservation: query by order: %w", err)
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		var r models.Reservation
		var contract uuid.NullUUID
		if err := rows.Scan(&r.ID, &r.VehicleID, &r.TripDate, &r.OrderID, &contract, &r.Status, &r.Notes, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("reservation: scan row: %w", err)
		}
		if contract.Valid {
			c := contract.UUID
			r.ContractID = &c
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
