package gateway

import "github.com/angelmondragon/rosca-settlement/pkg/enums"

const requestTypePayout = "payout"

// Destination carries the rail specific fields of a recipient.
type Destination struct {
	PhoneNumber   string `json:"phone_number,omitempty"`
	Provider      string `json:"provider,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	BankCode      string `json:"bank_code,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
}

// DisburseRequest is one outbound payout instruction. ChargeID is generated by
// the caller and doubles as the gateway idempotency key.
type DisburseRequest struct {
	Method   enums.PaymentMethod
	Amount   int64
	ChargeID string
	Currency string
	Destination
}

type disbursePayload struct {
	Type     string              `json:"type"`
	Method   enums.PaymentMethod `json:"method"`
	Amount   int64               `json:"amount"`
	ChargeID string              `json:"chargeId"`
	Currency string              `json:"currency"`
	Destination
}

type transactionPayload struct {
	Status  string `json:"status"`
	RefID   string `json:"ref_id"`
	TraceID string `json:"trace_id"`
}

type responsePayload struct {
	Success     bool               `json:"success"`
	Transaction transactionPayload `json:"transaction"`
	Error       string             `json:"error"`
}

// Result is the normalized view of a gateway transaction.
type Result struct {
	RawStatus string
	Status    enums.PayoutStatus
	RefID     string
	TraceID   string
}

// IsPending reports whether the gateway has not reached a terminal verdict yet.
func (r Result) IsPending() bool {
	return r.Status == enums.PayoutStatusProcessing
}
