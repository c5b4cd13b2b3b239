package pricing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NoPricingTierError is fatal: no distance tier for the size rule covers the
// trip distance. This is a configuration gap an operator must fix; the system
// never silently prices a vehicle at zero or guesses a neighboring tier.
type NoPricingTierError struct {
	SizeRuleID   uuid.UUID
	SizeRuleName string
	DistanceKm   decimal.Decimal
}

func (e *NoPricingTierError) Error() string {
	return fmt.Sprintf("pricing: no distance tier for size rule %s (%s) covers %s km",
		e.SizeRuleName, e.SizeRuleID, e.DistanceKm)
}

// NoCategoryRuleError is fatal: the category has no pricing detail configured.
// A category with no special treatment must carry an explicit multiplier of 1
// and fee of 0; the engine never assumes one.
type NoCategoryRuleError struct {
	CategoryID uuid.UUID
}

func (e *NoCategoryRuleError) Error() string {
	return fmt.Sprintf("pricing: no category rule configured for category %s", e.CategoryID)
}

// InvalidInputError rejects malformed input at the boundary.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("pricing: invalid %s: %s", e.Field, e.Reason)
}
