package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	_ "github.com/lib/pq"

	"github.com/example/fleet-pricing/internal/models"
)

// Postgres reads the master data tables. All methods are read-only; rule and
// tier administration happens outside this core.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) ActiveSizeRules(ctx context.Context, at time.Time) ([]models.SizeRule, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, vehicle_type_id, name,
		       min_weight_kg, max_weight_kg,
		       min_length_cm, max_length_cm,
		       min_width_cm, max_width_cm,
		       min_height_cm, max_height_cm,
		       effective_from, effective_to, status
		FROM size_rules
		WHERE status = 'ACTIVE'
		  AND effective_from <= $1
		  AND (effective_to IS NULL OR effective_to > $1)
		ORDER BY max_weight_kg, max_length_cm, max_width_cm, max_height_cm`, at)
	if err != nil {
		return nil, fmt.Errorf("catalog: query size rules: %w", err)
	}
	defer rows.Close()

	var out []models.SizeRule
	for rows.Next() {
		var r models.SizeRule
		var effectiveTo sql.NullTime
		var status string
		if err := rows.Scan(&r.ID, &r.VehicleTypeID, &r.Name,
			&r.MinWeightKg, &r.MaxWeightKg,
			&r.MinLengthCm, &r.MaxLengthCm,
			&r.MinWidthCm, &r.MaxWidthCm,
			&r.MinHeightCm, &r.MaxHeightCm,
			&r.EffectiveFrom, &effectiveTo, &status); err != nil {
			return nil, fmt.Errorf("catalog: scan size rule: %w", err)
		}
		if effectiveTo.Valid {
			t := effectiveTo.Time
			r.EffectiveTo = &t
		}
		r.Status = models.RuleStatus(status)
		if err := ValidateSizeRule(r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) TiersForSizeRule(ctx context.Context, sizeRuleID uuid.UUID) ([]models.DistanceTier, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, size_rule_id, from_km, to_km, base_price, is_flat_rate
		FROM distance_tiers
		WHERE size_rule_id = $1
		ORDER BY from_km`, sizeRuleID)
	if err != nil {
		return nil, fmt.Errorf("catalog: query distance tiers: %w", err)
	}
	defer rows.Close()

	var out []models.DistanceTier
	for rows.Next() {
		var t models.DistanceTier
		var toKm decimal.NullDecimal
		if err := rows.Scan(&t.ID, &t.SizeRuleID, &t.FromKm, &toKm, &t.BasePrice, &t.IsFlatRate); err != nil {
			return nil, fmt.Errorf("catalog: scan distance tier: %w", err)
		}
		if toKm.Valid {
			v := toKm.Decimal
			t.ToKm = &v
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) > 0 {
		if err := ValidateTiers(sizeRuleID, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Postgres) CategoryRule(ctx context.Context, categoryID uuid.UUID) (models.CategoryRule, bool, error) {
	var r models.CategoryRule
	err := p.db.QueryRowContext(ctx, `
		SELECT category_id, name, multiplier, extra_fee, is_fragile
		FROM category_rules
		WHERE category_id = $1`, categoryID).
		Scan(&r.CategoryID, &r.Name, &r.Multiplier, &r.ExtraFee, &r.IsFragile)
	if err == sql.ErrNoRows {
		return models.CategoryRule{}, false, nil
	}
	if err != nil {
		return models.CategoryRule{}, false, fmt.Errorf("catalog: query category rule: %w", err)
	}
	return r, true, nil
}

func (p *Postgres) VehiclesByType(ctx context.Context, vehicleTypeID uuid.UUID) ([]models.Vehicle, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, vehicle_type_id, license_plate, operational
		FROM vehicles
		WHERE vehicle_type_id = $1 AND operational
		ORDER BY license_plate`, vehicleTypeID)
	if err != nil {
		return nil, fmt.Errorf("catalog: query vehicles: %w", err)
	}
	defer rows.Close()

	var out []models.Vehicle
	for rows.Next() {
		var v models.Vehicle
		if err := rows.Scan(&v.ID, &v.VehicleTypeID, &v.LicensePlate, &v.Operational); err != nil {
			return nil, fmt.Errorf("catalog: scan vehicle: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CurrentSettings loads the singleton row. Following the original data model
// the oldest row wins when more than one exists.
func (p *Postgres) CurrentSettings(ctx context.Context) (models.ContractSetting, error) {
	var s models.ContractSetting
	err := p.db.QueryRowContext(ctx, `
		SELECT deposit_percent, deposit_deadline_hours, signing_deadline_hours,
		       full_payment_days_before_pickup,
		       insurance_rate_normal, insurance_rate_fragile, vat_rate, version
		FROM contract_settings
		ORDER BY created_at
		LIMIT 1`).
		Scan(&s.DepositPercent, &s.DepositDeadlineHours, &s.SigningDeadlineHours,
			&s.FullPaymentDaysBeforePickup,
			&s.InsuranceRateNormal, &s.InsuranceRateFragile, &s.VATRate, &s.Version)
	if err == sql.ErrNoRows {
		return models.ContractSetting{}, ErrNoSettings
	}
	if err != nil {
		return models.ContractSetting{}, fmt.Errorf("catalog: query contract settings: %w", err)
	}
	if err := ValidateSettings(s); err != nil {
		return models.ContractSetting{}, err
	}
	return s, nil
}
