package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/fleet-pricing/internal/models"
)

// Memory is an in-memory catalog used in tests and for local runs without a
// database. Contents are validated once at construction and read-only after.
type Memory struct {
	rules      []models.SizeRule
	tiers      map[uuid.UUID][]models.DistanceTier
	categories map[uuid.UUID]models.CategoryRule
	vehicles   map[uuid.UUID][]models.Vehicle
	settings   *models.ContractSetting
}

func NewMemory() *Memory {
	return &Memory{
		tiers:      make(map[uuid.UUID][]models.DistanceTier),
		categories: make(map[uuid.UUID]models.CategoryRule),
		vehicles:   make(map[uuid.UUID][]models.Vehicle),
	}
}

func (m *Memory) AddSizeRule(r models.SizeRule, tiers ...models.DistanceTier) error {
	if err := ValidateSizeRule(r); err != nil {
		return err
	}
	if len(tiers) > 0 {
		if err := ValidateTiers(r.ID, tiers); err != nil {
			return err
		}
	}
	m.rules = append(m.rules, r)
	m.tiers[r.ID] = append(m.tiers[r.ID], tiers...)
	return nil
}

func (m *Memory) AddCategoryRule(r models.CategoryRule) {
	m.categories[r.CategoryID] = r
}

func (m *Memory) AddVehicle(v models.Vehicle) {
	m.vehicles[v.VehicleTypeID] = append(m.vehicles[v.VehicleTypeID], v)
}

func (m *Memory) SetSettings(s models.ContractSetting) error {
	if err := ValidateSettings(s); err != nil {
		return err
	}
	m.settings = &s
	return nil
}

func (m *Memory) ActiveSizeRules(ctx context.Context, at time.Time) ([]models.SizeRule, error) {
	out := make([]models.SizeRule, 0, len(m.rules))
	for _, r := range m.rules {
		if r.ActiveAt(at) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) TiersForSizeRule(ctx context.Context, sizeRuleID uuid.UUID) ([]models.DistanceTier, error) {
	return m.tiers[sizeRuleID], nil
}

func (m *Memory) CategoryRule(ctx context.Context, categoryID uuid.UUID) (models.CategoryRule, bool, error) {
	r, ok := m.categories[categoryID]
	return r, ok, nil
}

func (m *Memory) VehiclesByType(ctx context.Context, vehicleTypeID uuid.UUID) ([]models.Vehicle, error) {
	all := m.vehicles[vehicleTypeID]
	out := make([]models.Vehicle, 0, len(all))
	for _, v := range all {
		if v.Operational {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *Memory) CurrentSettings(ctx context.Context) (models.ContractSetting, error) {
	if m.settings == nil {
		return models.ContractSetting{}, ErrNoSettings
	}
	return *m.settings, nil
}
