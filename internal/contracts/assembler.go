// Package contracts drives the order lifecycle: quote, contract issuance,
// deposit confirmation with vehicle reservation, consumption and cancellation.
// The engines stay pure; everything stateful happens here.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/fleet-pricing/internal/catalog"
	"github.com/example/fleet-pricing/internal/distance"
	"github.com/example/fleet-pricing/internal/events"
	"github.com/example/fleet-pricing/internal/models"
	"github.com/example/fleet-pricing/internal/notify"
	"github.com/example/fleet-pricing/internal/packing"
	"github.com/example/fleet-pricing/internal/payments"
	"github.com/example/fleet-pricing/internal/pricing"
	"github.com/example/fleet-pricing/internal/reservation"
	"github.com/example/fleet-pricing/internal/storage"
)

// Assembler wires the catalog, engines, ledger and external collaborators into
// the contract workflow. Gateway, Events and Notifier may be nil; the workflow
// degrades to storage-only behavior without them.
type Assembler struct {
	Rules    catalog.SizeRuleSource
	Settings catalog.SettingsSource
	Vehicles catalog.VehicleSource
	Pricer   *pricing.Engine
	Ledger   reservation.Ledger
	Store    storage.ContractStore
	Distance distance.Provider
	Gateway  payments.DepositGateway
	Events   events.Publisher
	Notifier notify.Notifier
	Logger   *slog.Logger
	Currency string
	Clock    func() time.Time
}

// QuoteRequest carries everything needed to price one order.
type QuoteRequest struct {
	OrderID           uuid.UUID
	Packages          []models.Package
	Pickup            models.Coord
	Dropoff           models.Coord
	CategoryID        uuid.UUID
	HasInsurance      bool
	PromotionDiscount decimal.Decimal
	TripDate          time.Time
}

// QuoteResult pairs the packing outcome with its price breakdown.
type QuoteResult struct {
	OrderID   uuid.UUID             `json:"order_id"`
	Buckets   []models.PackedBucket `json:"buckets"`
	Breakdown models.PriceBreakdown `json:"breakdown"`
	TollCount int                   `json:"toll_count"`
}

func (a *Assembler) now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now().UTC()
}

func (a *Assembler) log() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// BuildQuote runs the full quote pipeline: resolve distance, pack the
// packages into size-rule buckets, then price the result. Pure read path; no
// state changes besides the published QUOTED event.
func (a *Assembler) BuildQuote(ctx context.Context, req QuoteRequest) (QuoteResult, error) {
	settings, err := a.Settings.CurrentSettings(ctx)
	if err != nil {
		return QuoteResult{}, fmt.Errorf("contracts: load settings: %w", err)
	}
	return a.buildQuote(ctx, req, settings)
}

// buildQuote prices against the given settings so a caller that also derives
// deadlines from them works off one settings read, not two racing ones.
func (a *Assembler) buildQuote(ctx context.Context, req QuoteRequest, settings models.ContractSetting) (QuoteResult, error) {
	if len(req.Packages) == 0 {
		return QuoteResult{}, &pricing.InvalidInputError{Field: "packages", Reason: "must not be empty"}
	}

	rules, err := a.Rules.ActiveSizeRules(ctx, a.now())
	if err != nil {
		return QuoteResult{}, fmt.Errorf("contracts: load size rules: %w", err)
	}

	buckets, err := packing.Pack(req.Packages, rules)
	if err != nil {
		return QuoteResult{}, err
	}

	q, err := a.Distance.Quote(ctx, req.Pickup, req.Dropoff)
	if err != nil {
		return QuoteResult{}, fmt.Errorf("contracts: resolve distance: %w", err)
	}

	breakdown, err := a.Pricer.Calculate(ctx, pricing.Input{
		Buckets:           buckets,
		DistanceKm:        q.DistanceKm,
		CategoryID:        req.CategoryID,
		HasInsurance:      req.HasInsurance,
		TollTotal:         q.TollTotal,
		PromotionDiscount: req.PromotionDiscount,
		Settings:          settings,
	})
	if err != nil {
		return QuoteResult{}, err
	}

	a.publish(ctx, events.EventQuoted, req.OrderID, nil,
		fmt.Sprintf("%d vehicle(s), grand total %s", len(buckets), breakdown.GrandTotal))

	return QuoteResult{OrderID: req.OrderID, Buckets: buckets, Breakdown: breakdown, TollCount: q.TollCount}, nil
}

// CreateContract quotes the order and persists a PENDING_DEPOSIT contract
// whose snapshot is the breakdown frozen as calculated. Deadlines derive from
// the settings in force at creation time.
func (a *Assembler) CreateContract(ctx context.Context, req QuoteRequest) (models.Contract, error) {
	if req.TripDate.IsZero() {
		return models.Contract{}, &pricing.InvalidInputError{Field: "trip_date", Reason: "must be set"}
	}

	settings, err := a.Settings.CurrentSettings(ctx)
	if err != nil {
		return models.Contract{}, fmt.Errorf("contracts: load settings: %w", err)
	}

	quote, err := a.buildQuote(ctx, req, settings)
	if err != nil {
		return models.Contract{}, err
	}

	now := a.now()
	tripDate := models.DateOf(req.TripDate)
	c := models.Contract{
		ID:              uuid.New(),
		OrderID:         req.OrderID,
		Status:          models.ContractPendingDeposit,
		Snapshot:        quote.Breakdown,
		TripDate:        tripDate,
		DepositDeadline: now.Add(time.Duration(settings.DepositDeadlineHours) * time.Hour),
		SigningDeadline: now.Add(time.Duration(settings.SigningDeadlineHours) * time.Hour),
		FullPaymentDue:  tripDate.AddDate(0, 0, -settings.FullPaymentDaysBeforePickup),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.Store.SaveContract(ctx, &c); err != nil {
		return models.Contract{}, fmt.Errorf("contracts: save contract: %w", err)
	}

	a.publish(ctx, events.EventContractCreated, c.OrderID, &c.ID, "deposit due "+c.DepositDeadline.Format(time.RFC3339))
	a.notifyStatus(c.OrderID, &c.ID, string(c.Status), "contract issued, awaiting deposit")
	a.log().Info("contract created",
		"contract_id", c.ID, "order_id", c.OrderID,
		"grand_total", c.Snapshot.GrandTotal, "deposit", c.Snapshot.DepositAmount)
	return c, nil
}

// publish emits a lifecycle event. Best-effort: a broker outage is logged and
// never fails the workflow.
func (a *Assembler) publish(ctx context.Context, t events.EventType, orderID uuid.UUID, contractID *uuid.UUID, detail string) {
	if a.Events == nil {
		return
	}
	e := events.Event{Type: t, OrderID: orderID, ContractID: contractID, At: a.now(), Detail: detail}
	if err := a.Events.Publish(ctx, e); err != nil {
		a.log().Warn("publish event failed", "type", t, "order_id", orderID, "error", err)
	}
}

// notifyStatus pushes a status update to the customer. Best-effort.
func (a *Assembler) notifyStatus(orderID uuid.UUID, contractID *uuid.UUID, status, message string) {
	if a.Notifier == nil {
		return
	}
	u := notify.StatusUpdate{OrderID: orderID, ContractID: contractID, Status: status, Message: message, At: a.now()}
	if err := a.Notifier.Notify(orderID, u); err != nil && !errors.Is(err, notify.ErrNoSession) {
		a.log().Warn("notify failed", "order_id", orderID, "error", err)
	}
}
