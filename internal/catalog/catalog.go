// Package catalog provides read-only access to the pricing master data: size
// rules, distance tiers, category rules and the contract-setting singleton.
// The engines treat these as immutable inputs resolved at call time.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/fleet-pricing/internal/models"
)

var ErrNoSettings = errors.New("catalog: no contract settings configured")

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// SizeRuleSource yields the rules eligible for packing at a given instant.
type SizeRuleSource interface {
	ActiveSizeRules(ctx context.Context, at time.Time) ([]models.SizeRule, error)
}

// SettingsSource yields the current contract-setting snapshot.
type SettingsSource interface {
	CurrentSettings(ctx context.Context) (models.ContractSetting, error)
}

// VehicleSource lists operational vehicles of one vehicle type.
type VehicleSource interface {
	VehiclesByType(ctx context.Context, vehicleTypeID uuid.UUID) ([]models.Vehicle, error)
}

// ValidateSizeRule enforces the min <= max invariant on every axis.
func ValidateSizeRule(r models.SizeRule) error {
	axes := []struct {
		name     string
		min, max decimal.Decimal
	}{
		{"weight", r.MinWeightKg, r.MaxWeightKg},
		{"length", r.MinLengthCm, r.MaxLengthCm},
		{"width", r.MinWidthCm, r.MaxWidthCm},
		{"height", r.MinHeightCm, r.MaxHeightCm},
	}
	for _, a := range axes {
		if a.min.GreaterThan(a.max) {
			return fmt.Errorf("catalog: size rule %s (%s): min %s exceeds max on %s", r.Name, r.ID, a.min, a.name)
		}
	}
	return nil
}

// ValidateTiers checks that the tiers of one size rule are ordered,
// non-overlapping, and that only the last tier may be open-ended.
func ValidateTiers(sizeRuleID uuid.UUID, tiers []models.DistanceTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("catalog: size rule %s has no distance tiers", sizeRuleID)
	}
	sorted := make([]models.DistanceTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FromKm.LessThan(sorted[j].FromKm) })

	for i, t := range sorted {
		if t.BasePrice.IsNegative() {
			return fmt.Errorf("catalog: tier %s: base price must not be negative", t.ID)
		}
		if t.ToKm == nil {
			if i != len(sorted)-1 {
				return fmt.Errorf("catalog: tier %s: only the last tier may be open-ended", t.ID)
			}
			continue
		}
		if !t.FromKm.LessThan(*t.ToKm) {
			return fmt.Errorf("catalog: tier %s: from_km %s must be below to_km %s", t.ID, t.FromKm, t.ToKm)
		}
		if i+1 < len(sorted) && sorted[i+1].FromKm.LessThan(*t.ToKm) {
			return fmt.Errorf("catalog: tiers %s and %s overlap", t.ID, sorted[i+1].ID)
		}
	}
	return nil
}

// ValidateSettings normalizes expectations on the singleton: rates are decimal
// fractions, never percent values, and the deposit percent stays in range.
func ValidateSettings(s models.ContractSetting) error {
	if s.DepositPercent.IsNegative() || s.DepositPercent.GreaterThan(hundred) {
		return fmt.Errorf("catalog: deposit percent %s out of range [0, 100]", s.DepositPercent)
	}
	rates := []struct {
		name string
		rate decimal.Decimal
	}{
		{"insurance_rate_normal", s.InsuranceRateNormal},
		{"insurance_rate_fragile", s.InsuranceRateFragile},
		{"vat_rate", s.VATRate},
	}
	for _, r := range rates {
		if r.rate.IsNegative() || r.rate.GreaterThan(one) {
			return fmt.Errorf("catalog: %s %s must be a decimal fraction in [0, 1]", r.name, r.rate)
		}
	}
	return nil
}
