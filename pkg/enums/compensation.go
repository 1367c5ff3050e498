package enums

import "slices"

// CompensationStatus tracks the lifecycle of an escrow debit intent.
type CompensationStatus string

const (
	CompensationStatusPending     CompensationStatus = "pending"
	CompensationStatusApplied     CompensationStatus = "applied"
	CompensationStatusSettled     CompensationStatus = "settled"
	CompensationStatusCompensated CompensationStatus = "compensated"
	CompensationStatusFailed      CompensationStatus = "failed"
)

var validCompensationStatuses = []CompensationStatus{
	CompensationStatusPending,
	CompensationStatusApplied,
	CompensationStatusSettled,
	CompensationStatusCompensated,
	CompensationStatusFailed,
}

// String implements fmt.Stringer.
func (c CompensationStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CompensationStatus.
func (c CompensationStatus) IsValid() bool {
	return slices.Contains(validCompensationStatuses, c)
}

// ParseCompensationStatus converts raw input into a CompensationStatus.
func ParseCompensationStatus(value string) (CompensationStatus, error) {
	return parse(validCompensationStatuses, value, "compensation status")
}
