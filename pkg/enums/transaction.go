package enums

import "slices"

// TransactionType maps to the transaction_type enum.
type TransactionType string

const (
	TransactionTypeContribution  TransactionType = "contribution"
	TransactionTypePayout        TransactionType = "payout"
	TransactionTypeInstantPayout TransactionType = "instant_payout"
	TransactionTypeReversal      TransactionType = "reversal"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeContribution,
	TransactionTypePayout,
	TransactionTypeInstantPayout,
	TransactionTypeReversal,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionType.
func (t TransactionType) IsValid() bool {
	return slices.Contains(validTransactionTypes, t)
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	return parse(validTransactionTypes, value, "transaction type")
}

// TransactionStatus maps to the transaction_status enum.
type TransactionStatus string

const (
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusProcessing,
	TransactionStatusCompleted,
	TransactionStatusFailed,
}

// String implements fmt.Stringer.
func (t TransactionStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionStatus.
func (t TransactionStatus) IsValid() bool {
	return slices.Contains(validTransactionStatuses, t)
}

// RevenueType classifies platform revenue rows.
type RevenueType string

const (
	RevenueTypeFee        RevenueType = "fee"
	RevenueTypeInstantFee RevenueType = "instant_fee"
)

// String implements fmt.Stringer.
func (r RevenueType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RevenueType.
func (r RevenueType) IsValid() bool {
	return r == RevenueTypeFee || r == RevenueTypeInstantFee
}

// ReserveEntryType tags reserve wallet movements.
type ReserveEntryType string

const (
	ReserveEntryFeeSlice         ReserveEntryType = "fee_slice"
	ReserveEntryShortfallCover   ReserveEntryType = "shortfall_cover"
	ReserveEntryManualAdjustment ReserveEntryType = "manual_adjustment"
)

var validReserveEntryTypes = []ReserveEntryType{
	ReserveEntryFeeSlice,
	ReserveEntryShortfallCover,
	ReserveEntryManualAdjustment,
}

// String implements fmt.Stringer.
func (r ReserveEntryType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReserveEntryType.
func (r ReserveEntryType) IsValid() bool {
	return slices.Contains(validReserveEntryTypes, r)
}
