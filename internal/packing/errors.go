package packing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PackageTooLargeError is fatal: the named package exceeds the capacity of
// every configured size rule on at least one axis. The order line must be
// rejected; there is no fallback.
type PackageTooLargeError struct {
	PackageID    uuid.UUID
	TrackingCode string
	WeightKg     decimal.Decimal
	LengthCm     decimal.Decimal
	WidthCm      decimal.Decimal
	HeightCm     decimal.Decimal
}

func (e *PackageTooLargeError) Error() string {
	return fmt.Sprintf("packing: package %s (%s kg, %sx%sx%s cm) does not fit any configured size rule",
		e.PackageID, e.WeightKg, e.LengthCm, e.WidthCm, e.HeightCm)
}
