package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Package is a single immutable order line. Weight and dimensions are already
// normalized to kilograms/centimeters before the engine ever sees them.
type Package struct {
	ID            uuid.UUID       `json:"id"`
	WeightKg      decimal.Decimal `json:"weight_kg"`
	LengthCm      decimal.Decimal `json:"length_cm"`
	WidthCm       decimal.Decimal `json:"width_cm"`
	HeightCm      decimal.Decimal `json:"height_cm"`
	DeclaredValue decimal.Decimal `json:"declared_value"`
	TrackingCode  string          `json:"tracking_code"`
}

// Volume returns the declared volume in cubic centimeters.
func (p Package) Volume() decimal.Decimal {
	return p.LengthCm.Mul(p.WidthCm).Mul(p.HeightCm)
}

type RuleStatus string

const (
	RuleStatusActive   RuleStatus = "ACTIVE"
	RuleStatusInactive RuleStatus = "INACTIVE"
)

// SizeRule is one capacity bucket of a vehicle type: a weight and dimension
// envelope. Rules are versioned; only ACTIVE rules whose effective window
// contains "now" are eligible for packing.
type SizeRule struct {
	ID            uuid.UUID       `json:"id"`
	VehicleTypeID uuid.UUID       `json:"vehicle_type_id"`
	Name          string          `json:"name"`
	MinWeightKg   decimal.Decimal `json:"min_weight_kg"`
	MaxWeightKg   decimal.Decimal `json:"max_weight_kg"`
	MinLengthCm   decimal.Decimal `json:"min_length_cm"`
	MaxLengthCm   decimal.Decimal `json:"max_length_cm"`
	MinWidthCm    decimal.Decimal `json:"min_width_cm"`
	MaxWidthCm    decimal.Decimal `json:"max_width_cm"`
	MinHeightCm   decimal.Decimal `json:"min_height_cm"`
	MaxHeightCm   decimal.Decimal `json:"max_height_cm"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	Status        RuleStatus      `json:"status"`
}

// ActiveAt reports whether the rule is ACTIVE and its effective window
// contains the given instant. A nil EffectiveTo means open-ended.
func (r SizeRule) ActiveAt(t time.Time) bool {
	if r.Status != RuleStatusActive {
		return false
	}
	if t.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !t.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// DistanceTier prices one kilometer range for one size rule. A nil ToKm marks
// the open-ended long-haul tier. IsFlatRate tiers contribute BasePrice once;
// per-km tiers contribute BasePrice multiplied by the trip distance.
type DistanceTier struct {
	ID         uuid.UUID        `json:"id"`
	SizeRuleID uuid.UUID        `json:"size_rule_id"`
	FromKm     decimal.Decimal  `json:"from_km"`
	ToKm       *decimal.Decimal `json:"to_km,omitempty"`
	BasePrice  decimal.Decimal  `json:"base_price"`
	IsFlatRate bool             `json:"is_flat_rate"`
}

// Contains reports whether km falls in [FromKm, ToKm).
func (t DistanceTier) Contains(km decimal.Decimal) bool {
	if km.LessThan(t.FromKm) {
		return false
	}
	if t.ToKm != nil && km.GreaterThanOrEqual(*t.ToKm) {
		return false
	}
	return true
}

// CategoryRule carries the pricing adjustment for one cargo category. Every
// category must have a rule; "no special treatment" is an explicit multiplier
// of 1 and fee of 0, never an assumed default.
type CategoryRule struct {
	CategoryID uuid.UUID       `json:"category_id"`
	Name       string          `json:"name"`
	Multiplier decimal.Decimal `json:"multiplier"`
	ExtraFee   decimal.Decimal `json:"extra_fee"`
	IsFragile  bool            `json:"is_fragile"`
}

// ContractSetting is the admin-tunable singleton, passed into the pricing
// engine as an explicit snapshot so calculations stay pure. Insurance and VAT
// rates are decimal fractions (0.0008 = 0.08%).
type ContractSetting struct {
	DepositPercent              decimal.Decimal `json:"deposit_percent"`
	DepositDeadlineHours        int             `json:"deposit_deadline_hours"`
	SigningDeadlineHours        int             `json:"signing_deadline_hours"`
	FullPaymentDaysBeforePickup int             `json:"full_payment_days_before_pickup"`
	InsuranceRateNormal         decimal.Decimal `json:"insurance_rate_normal"`
	InsuranceRateFragile        decimal.Decimal `json:"insurance_rate_fragile"`
	VATRate                     decimal.Decimal `json:"vat_rate"`
	Version                     string          `json:"version"`
}

// PackedBucket is one vehicle instance produced by a packing run. It lives
// only within a single Pack call and is never mutated afterwards.
type PackedBucket struct {
	SizeRuleID    uuid.UUID       `json:"size_rule_id"`
	SizeRuleName  string          `json:"size_rule_name"`
	Packages      []Package       `json:"packages"`
	PackageIDs    []uuid.UUID     `json:"package_ids"`
	CurrentLoadKg decimal.Decimal `json:"current_load_kg"`
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationConsumed  ReservationStatus = "CONSUMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transition.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationConsumed || s == ReservationCancelled
}

// Reservation locks one vehicle for one trip date on behalf of an order.
// Lifecycle: RESERVED on deposit confirmation, then exactly one transition to
// CONSUMED (operational assignment created) or CANCELLED (order cancelled or
// payment deadline passed). Terminal rows are never reused.
type Reservation struct {
	ID         uuid.UUID         `json:"id"`
	VehicleID  uuid.UUID         `json:"vehicle_id"`
	TripDate   time.Time         `json:"trip_date"`
	OrderID    uuid.UUID         `json:"order_id"`
	ContractID *uuid.UUID        `json:"contract_id,omitempty"`
	Status     ReservationStatus `json:"status"`
	Notes      string            `json:"notes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type Vehicle struct {
	ID            uuid.UUID `json:"id"`
	VehicleTypeID uuid.UUID `json:"vehicle_type_id"`
	LicensePlate  string    `json:"license_plate"`
	Operational   bool      `json:"operational"`
}

type ContractStatus string

const (
	ContractPendingDeposit ContractStatus = "PENDING_DEPOSIT"
	ContractDepositPaid    ContractStatus = "DEPOSIT_PAID"
	ContractCompleted      ContractStatus = "COMPLETED"
	ContractCancelled      ContractStatus = "CANCELLED"
	ContractExpired        ContractStatus = "EXPIRED"
)

// Contract is the persisted outcome of the contract-creation workflow. The
// embedded snapshot is frozen at creation time; later rate or setting changes
// never reprice an issued contract.
type Contract struct {
	ID              uuid.UUID      `json:"id"`
	OrderID         uuid.UUID      `json:"order_id"`
	Status          ContractStatus `json:"status"`
	Snapshot        PriceBreakdown `json:"snapshot"`
	PaymentIntentID string         `json:"payment_intent_id,omitempty"`
	TripDate        time.Time      `json:"trip_date"`
	DepositDeadline time.Time      `json:"deposit_deadline"`
	SigningDeadline time.Time      `json:"signing_deadline"`
	FullPaymentDue  time.Time      `json:"full_payment_due"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// DateOf truncates an instant to its UTC calendar date. Reservation slots are
// keyed by date, not by instant.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
