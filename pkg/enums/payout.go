package enums

import "slices"

// PayoutStatus maps to the payout_status enum.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusProcessing,
	PayoutStatusCompleted,
	PayoutStatusFailed,
}

// String implements fmt.Stringer.
func (p PayoutStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutStatus.
func (p PayoutStatus) IsValid() bool {
	return slices.Contains(validPayoutStatuses, p)
}

// IsTerminal reports whether the payout can no longer change state.
func (p PayoutStatus) IsTerminal() bool {
	return p == PayoutStatusCompleted || p == PayoutStatusFailed
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	return parse(validPayoutStatuses, value, "payout status")
}

// PayoutMode distinguishes the scheduled batch from member-initiated payouts.
type PayoutMode string

const (
	PayoutModeScheduled PayoutMode = "scheduled"
	PayoutModeInstant   PayoutMode = "instant"
)

var validPayoutModes = []PayoutMode{
	PayoutModeScheduled,
	PayoutModeInstant,
}

// String implements fmt.Stringer.
func (p PayoutMode) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutMode.
func (p PayoutMode) IsValid() bool {
	return slices.Contains(validPayoutModes, p)
}

// ParsePayoutMode converts raw input into a PayoutMode.
func ParsePayoutMode(value string) (PayoutMode, error) {
	return parse(validPayoutModes, value, "payout mode")
}

// ScheduleStatus maps to the payout_schedule_status enum.
type ScheduleStatus string

const (
	ScheduleStatusPending   ScheduleStatus = "pending"
	ScheduleStatusProcessed ScheduleStatus = "processed"
	ScheduleStatusFailed    ScheduleStatus = "failed"
)

var validScheduleStatuses = []ScheduleStatus{
	ScheduleStatusPending,
	ScheduleStatusProcessed,
	ScheduleStatusFailed,
}

// String implements fmt.Stringer.
func (s ScheduleStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ScheduleStatus.
func (s ScheduleStatus) IsValid() bool {
	return slices.Contains(validScheduleStatuses, s)
}

// FailureCategory is the member-facing reason attached to a failed payout.
type FailureCategory string

const (
	FailureNoPaymentMethod   FailureCategory = "no_payment_method"
	FailureInsufficientFunds FailureCategory = "insufficient_funds"
	FailureGatewayDeclined   FailureCategory = "gateway_declined"
	FailureProcessingError   FailureCategory = "processing_error"
)

var validFailureCategories = []FailureCategory{
	FailureNoPaymentMethod,
	FailureInsufficientFunds,
	FailureGatewayDeclined,
	FailureProcessingError,
}

// String implements fmt.Stringer.
func (f FailureCategory) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FailureCategory.
func (f FailureCategory) IsValid() bool {
	return slices.Contains(validFailureCategories, f)
}
