package packing

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/fleet-pricing/internal/models"
	"github.com/example/fleet-pricing/internal/observability"
)

type openBucket struct {
	rule     models.SizeRule
	packages []models.Package
	load     decimal.Decimal
}

// Pack assigns packages to the fewest vehicle buckets honoring per-rule
// capacity. First-fit-decreasing: packages are taken heaviest first and each
// goes into the most-recently-opened bucket of the smallest size rule whose
// envelope fits it, opening a new bucket when the load would overflow.
//
// Greedy on purpose. Fleets have a handful of discrete size classes, so
// near-optimal packing is enough, and the run must stay deterministic and
// auditable: identical input always yields identical bucket assignment.
//
// All-or-nothing: if any package fits no rule at all, Pack returns a
// *PackageTooLargeError and no buckets.
func Pack(packages []models.Package, candidateRules []models.SizeRule) ([]models.PackedBucket, error) {
	if len(packages) == 0 {
		return []models.PackedBucket{}, nil
	}

	sorted := make([]models.Package, len(packages))
	copy(sorted, packages)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].WeightKg.Cmp(sorted[j].WeightKg); c != 0 {
			return c > 0
		}
		if c := sorted[i].Volume().Cmp(sorted[j].Volume()); c != 0 {
			return c > 0
		}
		return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0
	})

	rules := make([]models.SizeRule, len(candidateRules))
	copy(rules, candidateRules)
	sort.SliceStable(rules, func(i, j int) bool {
		return compareRules(rules[i], rules[j]) < 0
	})

	open := make([][]*openBucket, len(rules))

	for _, pkg := range sorted {
		placed := false
		for ri := range rules {
			if !fitsEnvelope(pkg, rules[ri]) {
				continue
			}
			if bs := open[ri]; len(bs) > 0 {
				last := bs[len(bs)-1]
				if last.load.Add(pkg.WeightKg).LessThanOrEqual(rules[ri].MaxWeightKg) {
					last.packages = append(last.packages, pkg)
					last.load = last.load.Add(pkg.WeightKg)
					placed = true
					break
				}
			}
			open[ri] = append(open[ri], &openBucket{
				rule:     rules[ri],
				packages: []models.Package{pkg},
				load:     pkg.WeightKg,
			})
			placed = true
			break
		}
		if !placed {
			observability.PackingFailuresTotal.Inc()
			return nil, &PackageTooLargeError{
				PackageID:    pkg.ID,
				TrackingCode: pkg.TrackingCode,
				WeightKg:     pkg.WeightKg,
				LengthCm:     pkg.LengthCm,
				WidthCm:      pkg.WidthCm,
				HeightCm:     pkg.HeightCm,
			}
		}
	}

	// emit grouped by rule, ascending capacity, open order within a rule
	out := make([]models.PackedBucket, 0)
	for ri := range rules {
		for _, b := range open[ri] {
			ids := make([]uuid.UUID, 0, len(b.packages))
			for _, p := range b.packages {
				ids = append(ids, p.ID)
			}
			out = append(out, models.PackedBucket{
				SizeRuleID:    b.rule.ID,
				SizeRuleName:  b.rule.Name,
				Packages:      b.packages,
				PackageIDs:    ids,
				CurrentLoadKg: b.load,
			})
		}
	}
	observability.PackingRunsTotal.Inc()
	observability.PackedVehicles.Observe(float64(len(out)))
	return out, nil
}

// fitsEnvelope checks a single package against a rule's weight and dimension
// maxima. Packages are not rotated; dimensions are compared axis by axis.
func fitsEnvelope(p models.Package, r models.SizeRule) bool {
	if p.WeightKg.GreaterThan(r.MaxWeightKg) {
		return false
	}
	if p.LengthCm.GreaterThan(r.MaxLengthCm) {
		return false
	}
	if p.WidthCm.GreaterThan(r.MaxWidthCm) {
		return false
	}
	return !p.HeightCm.GreaterThan(r.MaxHeightCm)
}

// compareRules orders rules by ascending capacity: max weight first, then the
// dimension maxima, with the rule ID as a final deterministic tiebreak.
func compareRules(a, b models.SizeRule) int {
	if c := a.MaxWeightKg.Cmp(b.MaxWeightKg); c != 0 {
		return c
	}
	if c := a.MaxLengthCm.Cmp(b.MaxLengthCm); c != 0 {
		return c
	}
	if c := a.MaxWidthCm.Cmp(b.MaxWidthCm); c != 0 {
		return c
	}
	if c := a.MaxHeightCm.Cmp(b.MaxHeightCm); c != 0 {
		return c
	}
	return bytes.Compare(a.ID[:], b.ID[:])
}
