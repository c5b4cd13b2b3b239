package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/fleet-pricing/internal/models"
)

func dec(v int64) decimal.Decimal         { return decimal.NewFromInt(v) }
func decs(s string) decimal.Decimal       { d, _ := decimal.NewFromString(s); return d }
func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

func validRule() models.SizeRule {
	return models.SizeRule{
		ID:            uuid.New(),
		VehicleTypeID: uuid.New(),
		Name:          "truck-1t",
		MaxWeightKg:   dec(1000),
		MaxLengthCm:   dec(300),
		MaxWidthCm:    dec(180),
		MaxHeightCm:   dec(180),
		EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:        models.RuleStatusActive,
	}
}

func TestValidateSizeRuleMinAboveMax(t *testing.T) {
	r := validRule()
	r.MinWeightKg = dec(2000)
	if err := ValidateSizeRule(r); err == nil {
		t.Fatal("expected error for min weight above max")
	}
}

func TestActiveSizeRulesHonorsWindow(t *testing.T) {
	m := NewMemory()

	active := validRule()
	if err := m.AddSizeRule(active); err != nil {
		t.Fatal(err)
	}

	retired := validRule()
	retired.Name = "truck-1t-old"
	end := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	retired.EffectiveTo = &end
	if err := m.AddSizeRule(retired); err != nil {
		t.Fatal(err)
	}

	inactive := validRule()
	inactive.Status = models.RuleStatusInactive
	if err := m.AddSizeRule(inactive); err != nil {
		t.Fatal(err)
	}

	got, err := m.ActiveSizeRules(context.Background(), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		t.Fatalf("expected only the open-ended active rule, got %d rules", len(got))
	}

	// before retirement both windows were open
	got, err = m.ActiveSizeRules(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rules in March, got %d", len(got))
	}
}

func TestValidateTiers(t *testing.T) {
	ruleID := uuid.New()
	ok := []models.DistanceTier{
		{ID: uuid.New(), FromKm: dec(0), ToKm: ptr(dec(100)), BasePrice: dec(60000)},
		{ID: uuid.New(), FromKm: dec(100), ToKm: ptr(dec(150)), BasePrice: dec(50000)},
		{ID: uuid.New(), FromKm: dec(150), BasePrice: dec(40000)},
	}
	if err := ValidateTiers(ruleID, ok); err != nil {
		t.Fatal(err)
	}

	cases := map[string][]models.DistanceTier{
		"empty": nil,
		"overlap": {
			{ID: uuid.New(), FromKm: dec(0), ToKm: ptr(dec(120)), BasePrice: dec(1)},
			{ID: uuid.New(), FromKm: dec(100), BasePrice: dec(1)},
		},
		"open-ended not last": {
			{ID: uuid.New(), FromKm: dec(0), BasePrice: dec(1)},
			{ID: uuid.New(), FromKm: dec(100), ToKm: ptr(dec(200)), BasePrice: dec(1)},
		},
		"inverted range": {
			{ID: uuid.New(), FromKm: dec(100), ToKm: ptr(dec(50)), BasePrice: dec(1)},
		},
		"negative price": {
			{ID: uuid.New(), FromKm: dec(0), BasePrice: dec(-1)},
		},
	}
	for name, tiers := range cases {
		if err := ValidateTiers(ruleID, tiers); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestValidateSettings(t *testing.T) {
	good := models.ContractSetting{
		DepositPercent:       dec(30),
		InsuranceRateNormal:  decs("0.0008"),
		InsuranceRateFragile: decs("0.0015"),
		VATRate:              decs("0.10"),
	}
	if err := ValidateSettings(good); err != nil {
		t.Fatal(err)
	}

	bad := good
	bad.DepositPercent = dec(130)
	if err := ValidateSettings(bad); err == nil {
		t.Error("deposit percent above 100 must fail")
	}

	// a percent value where a fraction belongs is the classic mistake
	bad = good
	bad.VATRate = dec(10)
	if err := ValidateSettings(bad); err == nil {
		t.Error("vat rate above 1 must fail")
	}
}

func TestVehiclesByTypeFiltersNonOperational(t *testing.T) {
	m := NewMemory()
	typeID := uuid.New()
	m.AddVehicle(models.Vehicle{ID: uuid.New(), VehicleTypeID: typeID, LicensePlate: "51C-001", Operational: true})
	m.AddVehicle(models.Vehicle{ID: uuid.New(), VehicleTypeID: typeID, LicensePlate: "51C-002", Operational: false})

	got, err := m.VehiclesByType(context.Background(), typeID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].LicensePlate != "51C-001" {
		t.Fatalf("expected only the operational vehicle, got %+v", got)
	}
}

func TestCurrentSettingsRequiresConfiguration(t *testing.T) {
	m := NewMemory()
	if _, err := m.CurrentSettings(context.Background()); err != ErrNoSettings {
		t.Fatalf("expected ErrNoSettings, got %v", err)
	}
}
