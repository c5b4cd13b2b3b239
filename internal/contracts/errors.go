package contracts

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/fleet-pricing/internal/models"
)

// NoVehicleAvailableError: every operational vehicle of the required class is
// reserved for the trip date. Recoverable: the caller re-suggests with a
// different date or class mix.
type NoVehicleAvailableError struct {
	SizeRuleID   uuid.UUID
	SizeRuleName string
	TripDate     time.Time
}

func (e *NoVehicleAvailableError) Error() string {
	return fmt.Sprintf("contracts: no vehicle available for %s on %s",
		e.SizeRuleName, e.TripDate.Format("2006-01-02"))
}

// StatusError: the contract is not in the status the operation requires.
type StatusError struct {
	ContractID uuid.UUID
	Current    models.ContractStatus
	Required   models.ContractStatus
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("contracts: %s is %s, operation requires %s", e.ContractID, e.Current, e.Required)
}
