package contracts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/fleet-pricing/internal/models"
)

// BucketsFromSnapshot rebuilds the per-vehicle buckets recorded in a frozen
// breakdown, one bucket per price step. Package contents are not retained in
// the snapshot; only the size-rule identity needed for vehicle suggestion is.
func BucketsFromSnapshot(b models.PriceBreakdown) ([]models.PackedBucket, error) {
	out := make([]models.PackedBucket, 0, len(b.Steps))
	for _, s := range b.Steps {
		id, err := uuid.Parse(s.SizeRuleID)
		if err != nil {
			return nil, fmt.Errorf("contracts: snapshot step has bad size rule id %q: %w", s.SizeRuleID, err)
		}
		out = append(out, models.PackedBucket{SizeRuleID: id, SizeRuleName: s.SizeRuleName})
	}
	return out, nil
}

// SuggestVehicles picks one free operational vehicle per packed bucket for the
// trip date. Vehicles the order already holds count as free, so re-running the
// suggestion after a partial reservation converges instead of drifting to new
// vehicles. A read-time pick can still lose the race at Reserve time; callers
// handle *reservation.AlreadyReservedError by excluding the loser and
// retrying.
func (a *Assembler) SuggestVehicles(ctx context.Context, buckets []models.PackedBucket, tripDate time.Time, orderID uuid.UUID) ([]uuid.UUID, error) {
	rules, err := a.Rules.ActiveSizeRules(ctx, a.now())
	if err != nil {
		return nil, fmt.Errorf("contracts: load size rules: %w", err)
	}
	typeOf := make(map[uuid.UUID]uuid.UUID, len(rules))
	for _, r := range rules {
		typeOf[r.ID] = r.VehicleTypeID
	}

	date := models.DateOf(tripDate)
	picked := make(map[uuid.UUID]bool)
	out := make([]uuid.UUID, 0, len(buckets))
	for _, b := range buckets {
		typeID, ok := typeOf[b.SizeRuleID]
		if !ok {
			return nil, fmt.Errorf("contracts: size rule %s no longer active", b.SizeRuleID)
		}
		vehicles, err := a.Vehicles.VehiclesByType(ctx, typeID)
		if err != nil {
			return nil, fmt.Errorf("contracts: list vehicles for type %s: %w", typeID, err)
		}

		var chosen *models.Vehicle
		for i := range vehicles {
			v := vehicles[i]
			if picked[v.ID] {
				continue
			}
			held, err := a.Ledger.IsReserved(ctx, v.ID, date, &orderID)
			if err != nil {
				return nil, fmt.Errorf("contracts: check slot %s/%s: %w", v.ID, date.Format("2006-01-02"), err)
			}
			if !held {
				chosen = &v
				break
			}
		}
		if chosen == nil {
			return nil, &NoVehicleAvailableError{SizeRuleID: b.SizeRuleID, SizeRuleName: b.SizeRuleName, TripDate: date}
		}
		picked[chosen.ID] = true
		out = append(out, chosen.ID)
	}
	return out, nil
}
