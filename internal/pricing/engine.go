package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/fleet-pricing/internal/models"
	"github.com/example/fleet-pricing/internal/observability"
)

// SnapshotVersion identifies the pricing formula that produced a breakdown.
// Bump it whenever the formula changes so old snapshots stay interpretable.
const SnapshotVersion = "v2"

// TierSource supplies the distance tiers configured for a size rule.
type TierSource interface {
	TiersForSizeRule(ctx context.Context, sizeRuleID uuid.UUID) ([]models.DistanceTier, error)
}

// CategorySource supplies the pricing rule for a cargo category. The boolean
// reports whether a rule exists at all.
type CategorySource interface {
	CategoryRule(ctx context.Context, categoryID uuid.UUID) (models.CategoryRule, bool, error)
}

// Input gathers everything Calculate needs. Settings are an explicit snapshot
// of the admin-tunable singleton, never read from ambient state, so the
// calculation is a pure function of its arguments.
type Input struct {
	Buckets           []models.PackedBucket
	DistanceKm        decimal.Decimal
	CategoryID        uuid.UUID
	HasInsurance      bool
	TollTotal         decimal.Decimal
	PromotionDiscount decimal.Decimal
	Settings          models.ContractSetting
}

// Engine combines packed buckets with tier, category, insurance and deposit
// rules into an itemized, reproducible price breakdown. Stateless and safe
// for concurrent use.
type Engine struct {
	Tiers      TierSource
	Categories CategorySource
	Clock      func() time.Time // defaults to time.Now; fixed in tests
}

// Calculate prices one order. Every failure is surfaced, never defaulted:
// a missing tier or category rule aborts the calculation so a contract can
// never be issued with partial or best-guess pricing.
func (e *Engine) Calculate(ctx context.Context, in Input) (models.PriceBreakdown, error) {
	var zero models.PriceBreakdown

	if !in.DistanceKm.IsPositive() {
		return zero, &InvalidInputError{Field: "distance_km", Reason: "must be > 0"}
	}
	if len(in.Buckets) == 0 {
		return zero, &InvalidInputError{Field: "buckets", Reason: "must not be empty"}
	}
	if in.TollTotal.IsNegative() {
		return zero, &InvalidInputError{Field: "toll_total", Reason: "must not be negative"}
	}
	if in.PromotionDiscount.IsNegative() {
		return zero, &InvalidInputError{Field: "promotion_discount", Reason: "must not be negative"}
	}
	if in.Settings.DepositPercent.IsNegative() || in.Settings.DepositPercent.GreaterThan(decimal.NewFromInt(100)) {
		return zero, &InvalidInputError{Field: "deposit_percent", Reason: "must be within [0, 100]"}
	}

	// per-bucket tier subtotals
	tierCache := make(map[uuid.UUID][]models.DistanceTier)
	steps := make([]models.PriceStep, 0, len(in.Buckets))
	totalBefore := decimal.Zero
	for _, b := range in.Buckets {
		tiers, ok := tierCache[b.SizeRuleID]
		if !ok {
			var err error
			tiers, err = e.Tiers.TiersForSizeRule(ctx, b.SizeRuleID)
			if err != nil {
				return zero, fmt.Errorf("pricing: load tiers for size rule %s: %w", b.SizeRuleID, err)
			}
			tierCache[b.SizeRuleID] = tiers
		}

		tier, found := matchTier(tiers, in.DistanceKm)
		if !found {
			observability.PricingFailuresTotal.WithLabelValues("no_tier").Inc()
			return zero, &NoPricingTierError{SizeRuleID: b.SizeRuleID, SizeRuleName: b.SizeRuleName, DistanceKm: in.DistanceKm}
		}

		subtotal := tier.BasePrice
		appliedKm := decimal.Zero
		if !tier.IsFlatRate {
			appliedKm = in.DistanceKm
			subtotal = tier.BasePrice.Mul(in.DistanceKm)
		}
		subtotal = roundMoney(subtotal)
		totalBefore = totalBefore.Add(subtotal)

		steps = append(steps, models.PriceStep{
			SizeRuleID:   b.SizeRuleID.String(),
			SizeRuleName: b.SizeRuleName,
			TierRange:    tierRange(tier),
			UnitPrice:    tier.BasePrice,
			IsFlatRate:   tier.IsFlatRate,
			AppliedKm:    appliedKm,
			Subtotal:     subtotal,
		})
	}

	// category adjustment
	rule, found, err := e.Categories.CategoryRule(ctx, in.CategoryID)
	if err != nil {
		return zero, fmt.Errorf("pricing: load category rule %s: %w", in.CategoryID, err)
	}
	if !found {
		observability.PricingFailuresTotal.WithLabelValues("no_category_rule").Inc()
		return zero, &NoCategoryRuleError{CategoryID: in.CategoryID}
	}
	totalAfterCategory := roundMoney(totalBefore.Mul(rule.Multiplier).Add(rule.ExtraFee))

	// insurance: declared value x rate x (1 + VAT), over every packed package
	insuranceRate := decimal.Zero
	insuranceFee := decimal.Zero
	totalDeclared := decimal.Zero
	for _, b := range in.Buckets {
		for _, p := range b.Packages {
			totalDeclared = totalDeclared.Add(p.DeclaredValue)
		}
	}
	if in.HasInsurance {
		insuranceRate = in.Settings.InsuranceRateNormal
		if rule.IsFragile {
			insuranceRate = in.Settings.InsuranceRateFragile
		}
		insuranceFee = roundMoney(totalDeclared.Mul(insuranceRate).Mul(decimal.NewFromInt(1).Add(in.Settings.VATRate)))
	}

	grand := totalAfterCategory.Add(insuranceFee).Add(in.TollTotal).Sub(in.PromotionDiscount)

	// deposit split: remaining is derived by subtraction, so the two halves
	// always sum back to the grand total with no rounding drift
	deposit := roundMoney(grand.Mul(in.Settings.DepositPercent).Div(decimal.NewFromInt(100)))
	remaining := grand.Sub(deposit)

	now := time.Now
	if e.Clock != nil {
		now = e.Clock
	}

	observability.PricingCalculationsTotal.Inc()
	return models.PriceBreakdown{
		Steps:                 steps,
		DistanceKm:            in.DistanceKm,
		TotalBeforeAdjustment: totalBefore,
		CategoryID:            in.CategoryID.String(),
		CategoryMultiplier:    rule.Multiplier,
		CategoryExtraFee:      rule.ExtraFee,
		TotalAfterCategory:    totalAfterCategory,
		HasInsurance:          in.HasInsurance,
		TotalDeclaredValue:    totalDeclared,
		InsuranceRate:         insuranceRate,
		VATRate:               in.Settings.VATRate,
		InsuranceFee:          insuranceFee,
		TollTotal:             in.TollTotal,
		PromotionDiscount:     in.PromotionDiscount,
		GrandTotal:            grand,
		DepositPercent:        in.Settings.DepositPercent,
		DepositAmount:         deposit,
		RemainingAmount:       remaining,
		RoundingMode:          models.RoundingHalfUp,
		SettingsVersion:       in.Settings.Version,
		SnapshotVersion:       SnapshotVersion,
		SnapshotDate:          now().UTC(),
	}, nil
}

// matchTier finds the tier whose [FromKm, ToKm) range contains km.
func matchTier(tiers []models.DistanceTier, km decimal.Decimal) (models.DistanceTier, bool) {
	for _, t := range tiers {
		if t.Contains(km) {
			return t, true
		}
	}
	return models.DistanceTier{}, false
}

func tierRange(t models.DistanceTier) string {
	if t.ToKm == nil {
		return fmt.Sprintf(">=%s km", t.FromKm)
	}
	return fmt.Sprintf("%s-%s km", t.FromKm, t.ToKm)
}

// roundMoney rounds to the currency's smallest unit, half up.
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}
