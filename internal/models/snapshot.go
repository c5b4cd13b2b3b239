package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundingHalfUp is the single rounding mode used for money in this system,
// recorded in every snapshot so an audit can reproduce the numbers.
const RoundingHalfUp = "HALF_UP"

// PriceStep records how one packed vehicle was priced.
type PriceStep struct {
	SizeRuleID   string          `json:"size_rule_id"`
	SizeRuleName string          `json:"size_rule_name"`
	TierRange    string          `json:"tier_range"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	IsFlatRate   bool            `json:"is_flat_rate"`
	AppliedKm    decimal.Decimal `json:"applied_km"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// PriceBreakdown is the immutable snapshot of a price calculation. It carries
// every intermediate number and every rate that produced the final total, so
// the exact figure can be reproduced from historical inputs regardless of any
// later change to tiers or settings.
type PriceBreakdown struct {
	Steps                 []PriceStep     `json:"steps"`
	DistanceKm            decimal.Decimal `json:"distance_km"`
	TotalBeforeAdjustment decimal.Decimal `json:"total_before_adjustment"`

	CategoryID         string          `json:"category_id"`
	CategoryMultiplier decimal.Decimal `json:"category_multiplier"`
	CategoryExtraFee   decimal.Decimal `json:"category_extra_fee"`
	TotalAfterCategory decimal.Decimal `json:"total_after_category"`

	HasInsurance       bool            `json:"has_insurance"`
	TotalDeclaredValue decimal.Decimal `json:"total_declared_value"`
	InsuranceRate      decimal.Decimal `json:"insurance_rate"`
	VATRate            decimal.Decimal `json:"vat_rate"`
	InsuranceFee       decimal.Decimal `json:"insurance_fee"`

	TollTotal         decimal.Decimal `json:"toll_total"`
	PromotionDiscount decimal.Decimal `json:"promotion_discount"`
	GrandTotal        decimal.Decimal `json:"grand_total"`

	DepositPercent  decimal.Decimal `json:"deposit_percent"`
	DepositAmount   decimal.Decimal `json:"deposit_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`

	RoundingMode    string    `json:"rounding_mode"`
	SettingsVersion string    `json:"settings_version"`
	SnapshotVersion string    `json:"snapshot_version"`
	SnapshotDate    time.Time `json:"snapshot_date"`
}
