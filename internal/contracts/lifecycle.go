package contracts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/fleet-pricing/internal/events"
	"github.com/example/fleet-pricing/internal/models"
	"github.com/example/fleet-pricing/internal/reservation"
	"github.com/example/fleet-pricing/internal/storage"
)

// ConfirmDeposit reserves the given vehicles for the contract's trip date and
// places the deposit hold. Reservation happens before the payment hold; if any
// slot is lost to a concurrent order, the order's own reservations are rolled
// back and the conflict is returned for the caller to re-suggest. The payment
// hold failing likewise rolls the reservations back, so a customer is never
// charged for vehicles they do not hold.
func (a *Assembler) ConfirmDeposit(ctx context.Context, contractID uuid.UUID, vehicleIDs []uuid.UUID, customerID string) (models.Contract, error) {
	c, err := a.Store.ContractByID(ctx, contractID)
	if err != nil {
		return models.Contract{}, err
	}
	if c.Status != models.ContractPendingDeposit {
		return models.Contract{}, &StatusError{ContractID: c.ID, Current: c.Status, Required: models.ContractPendingDeposit}
	}
	if len(vehicleIDs) == 0 {
		return models.Contract{}, fmt.Errorf("contracts: no vehicles to reserve for %s", c.ID)
	}
	if a.now().After(c.DepositDeadline) {
		return models.Contract{}, fmt.Errorf("contracts: deposit deadline for %s passed at %s", c.ID, c.DepositDeadline.Format("2006-01-02 15:04"))
	}

	for _, vehicleID := range vehicleIDs {
		if _, err := a.Ledger.Reserve(ctx, vehicleID, c.TripDate, c.OrderID, &c.ID, "deposit confirmation"); err != nil {
			a.rollbackReservations(ctx, c.OrderID)
			var conflict *reservation.AlreadyReservedError
			if errors.As(err, &conflict) {
				a.log().Info("reservation conflict during deposit confirmation",
					"contract_id", c.ID, "vehicle_id", vehicleID, "trip_date", c.TripDate)
				return models.Contract{}, err
			}
			return models.Contract{}, fmt.Errorf("contracts: reserve vehicle %s: %w", vehicleID, err)
		}
	}

	if a.Gateway != nil {
		intentID, err := a.Gateway.HoldDeposit(ctx, c.Snapshot.DepositAmount, a.Currency, customerID)
		if err != nil {
			a.rollbackReservations(ctx, c.OrderID)
			return models.Contract{}, fmt.Errorf("contracts: hold deposit for %s: %w", c.ID, err)
		}
		c.PaymentIntentID = intentID
	}

	c.Status = models.ContractDepositPaid
	c.UpdatedAt = a.now()
	if err := a.Store.UpdateContract(ctx, &c); err != nil {
		return models.Contract{}, fmt.Errorf("contracts: update contract %s: %w", c.ID, err)
	}

	a.publish(ctx, events.EventDepositConfirmed, c.OrderID, &c.ID, c.Snapshot.DepositAmount.String())
	a.publish(ctx, events.EventReserved, c.OrderID, &c.ID, fmt.Sprintf("%d vehicle(s) on %s", len(vehicleIDs), c.TripDate.Format("2006-01-02")))
	a.notifyStatus(c.OrderID, &c.ID, string(c.Status), "deposit received, vehicles reserved")
	a.log().Info("deposit confirmed", "contract_id", c.ID, "order_id", c.OrderID, "vehicles", len(vehicleIDs))
	return c, nil
}

func (a *Assembler) rollbackReservations(ctx context.Context, orderID uuid.UUID) {
	n, err := a.Ledger.CancelByOrder(ctx, orderID)
	if err != nil {
		a.log().Error("rollback reservations failed", "order_id", orderID, "error", err)
		return
	}
	if n > 0 {
		a.log().Info("rolled back reservations", "order_id", orderID, "count", n)
	}
}

// ConsumeForAssignment flips every RESERVED reservation of the order to
// CONSUMED once the operational vehicle assignment exists. Reservations that
// already reached a terminal state are skipped rather than failed, so a
// repeated call is harmless.
func (a *Assembler) ConsumeForAssignment(ctx context.Context, orderID uuid.UUID) (int, error) {
	rs, err := a.Ledger.ReservationsByOrder(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("contracts: list reservations for %s: %w", orderID, err)
	}
	consumed := 0
	for _, r := range rs {
		if r.Status != models.ReservationReserved {
			continue
		}
		if err := a.Ledger.Consume(ctx, r.ID); err != nil {
			var conflict *reservation.StateConflictError
			if errors.As(err, &conflict) && conflict.AlreadyResolved() {
				continue
			}
			return consumed, fmt.Errorf("contracts: consume reservation %s: %w", r.ID, err)
		}
		consumed++
	}
	if consumed > 0 {
		a.publish(ctx, events.EventConsumed, orderID, nil, fmt.Sprintf("%d reservation(s)", consumed))
	}
	a.log().Info("reservations consumed", "order_id", orderID, "count", consumed)
	return consumed, nil
}

// ConfirmFullPayment captures the held deposit and completes the contract.
func (a *Assembler) ConfirmFullPayment(ctx context.Context, contractID uuid.UUID) (models.Contract, error) {
	c, err := a.Store.ContractByID(ctx, contractID)
	if err != nil {
		return models.Contract{}, err
	}
	if c.Status != models.ContractDepositPaid {
		return models.Contract{}, &StatusError{ContractID: c.ID, Current: c.Status, Required: models.ContractDepositPaid}
	}

	if a.Gateway != nil && c.PaymentIntentID != "" {
		if err := a.Gateway.CaptureDeposit(ctx, c.PaymentIntentID); err != nil {
			return models.Contract{}, fmt.Errorf("contracts: capture deposit for %s: %w", c.ID, err)
		}
	}

	c.Status = models.ContractCompleted
	c.UpdatedAt = a.now()
	if err := a.Store.UpdateContract(ctx, &c); err != nil {
		return models.Contract{}, fmt.Errorf("contracts: update contract %s: %w", c.ID, err)
	}
	a.notifyStatus(c.OrderID, &c.ID, string(c.Status), "payment complete")
	a.log().Info("contract completed", "contract_id", c.ID, "order_id", c.OrderID)
	return c, nil
}

// CancelOrder cancels the order's RESERVED reservations and, when a contract
// exists, releases any deposit hold and marks the contract CANCELLED. CONSUMED
// reservations stay untouched; a cancellation after operational assignment is
// a manual process, not a ledger write.
func (a *Assembler) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (int, error) {
	n, err := a.Ledger.CancelByOrder(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("contracts: cancel reservations for %s: %w", orderID, err)
	}

	var contractID *uuid.UUID
	c, err := a.Store.ContractByOrder(ctx, orderID)
	switch {
	case err == nil:
		contractID = &c.ID
		if c.Status == models.ContractPendingDeposit || c.Status == models.ContractDepositPaid {
			if a.Gateway != nil && c.PaymentIntentID != "" {
				if err := a.Gateway.ReleaseDeposit(ctx, c.PaymentIntentID); err != nil {
					a.log().Error("release deposit failed", "contract_id", c.ID, "error", err)
				}
			}
			c.Status = models.ContractCancelled
			c.UpdatedAt = a.now()
			if err := a.Store.UpdateContract(ctx, &c); err != nil {
				return n, fmt.Errorf("contracts: update contract %s: %w", c.ID, err)
			}
		}
	case errors.Is(err, storage.ErrNotFound):
		// order never reached contract stage; cancelling reservations is all
	default:
		return n, fmt.Errorf("contracts: load contract for order %s: %w", orderID, err)
	}

	a.publish(ctx, events.EventCancelled, orderID, contractID, reason)
	a.notifyStatus(orderID, contractID, string(models.ContractCancelled), reason)
	a.log().Info("order cancelled", "order_id", orderID, "freed_reservations", n, "reason", reason)
	return n, nil
}

// ExpireOverdueDeposits cancels contracts whose deposit deadline passed while
// still PENDING_DEPOSIT, freeing any reservations they held. Returns how many
// contracts were expired; used by the sweeper.
func (a *Assembler) ExpireOverdueDeposits(ctx context.Context, limit int) (int, error) {
	list, err := a.Store.ExpiredPendingDeposits(ctx, a.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("contracts: list expired deposits: %w", err)
	}
	return a.expireAll(ctx, list, "deposit deadline passed"), nil
}

// ExpireOverdueFullPayments cancels DEPOSIT_PAID contracts whose full-payment
// due date passed: reservations are freed and the held deposit is released
// back to the customer. Returns how many contracts were expired; used by the
// sweeper alongside ExpireOverdueDeposits.
func (a *Assembler) ExpireOverdueFullPayments(ctx context.Context, limit int) (int, error) {
	list, err := a.Store.ExpiredFullPayments(ctx, a.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("contracts: list overdue full payments: %w", err)
	}
	return a.expireAll(ctx, list, "full payment deadline passed"), nil
}

// expireAll runs the shared expiry path per contract: free reservations,
// release any payment hold, mark EXPIRED. Per-item failures are logged and
// skipped so one bad row never stalls the whole sweep.
func (a *Assembler) expireAll(ctx context.Context, list []models.Contract, reason string) int {
	expired := 0
	for _, c := range list {
		if _, err := a.Ledger.CancelByOrder(ctx, c.OrderID); err != nil {
			a.log().Error("free reservations for expired contract failed", "contract_id", c.ID, "error", err)
			continue
		}
		if a.Gateway != nil && c.PaymentIntentID != "" {
			if err := a.Gateway.ReleaseDeposit(ctx, c.PaymentIntentID); err != nil {
				a.log().Error("release deposit for expired contract failed", "contract_id", c.ID, "error", err)
				continue
			}
		}
		c.Status = models.ContractExpired
		c.UpdatedAt = a.now()
		if err := a.Store.UpdateContract(ctx, &c); err != nil {
			a.log().Error("mark contract expired failed", "contract_id", c.ID, "error", err)
			continue
		}
		expired++
		a.publish(ctx, events.EventExpired, c.OrderID, &c.ID, reason)
		a.notifyStatus(c.OrderID, &c.ID, string(models.ContractExpired), reason)
	}
	return expired
}
