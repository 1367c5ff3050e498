package payouts

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

// ListFilters narrow the admin payout list.
type ListFilters struct {
	Status  *enums.PayoutStatus
	GroupID *uuid.UUID
}

// PayoutDTO is the API view of a payout. Failure reasons are not exposed to members.
type PayoutDTO struct {
	ID              uuid.UUID              `json:"id"`
	GroupID         uuid.UUID              `json:"group_id"`
	RecipientID     uuid.UUID              `json:"recipient_id"`
	CycleNumber     int                    `json:"cycle_number"`
	GrossAmount     int64                  `json:"gross_amount"`
	NetAmount       int64                  `json:"net_amount"`
	FeeAmount       int64                  `json:"fee_amount"`
	Currency        string                 `json:"currency"`
	Status          enums.PayoutStatus     `json:"status"`
	Mode            enums.PayoutMode       `json:"mode"`
	ScheduledDate   time.Time              `json:"scheduled_date"`
	ProcessedAt     *time.Time             `json:"processed_at,omitempty"`
	FailureCategory *enums.FailureCategory `json:"failure_category,omitempty"`
	RetryOfID       *uuid.UUID             `json:"retry_of_id,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// AdminPayoutDTO adds the operator-only gateway references.
type AdminPayoutDTO struct {
	PayoutDTO
	ChargeID          *string `json:"charge_id,omitempty"`
	ExternalReference *string `json:"external_reference,omitempty"`
	TraceID           *string `json:"trace_id,omitempty"`
	FailureReason     *string `json:"failure_reason,omitempty"`
}

type AdminPayoutList struct {
	Payouts    []AdminPayoutDTO `json:"payouts"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// ReversalResult describes an operator escrow reversal.
type ReversalResult struct {
	PayoutID      uuid.UUID `json:"payout_id"`
	Amount        int64     `json:"amount"`
	TransactionID uuid.UUID `json:"transaction_id"`
}

func toDTO(p models.Payout) PayoutDTO {
	return PayoutDTO{
		ID:              p.ID,
		GroupID:         p.GroupID,
		RecipientID:     p.RecipientID,
		CycleNumber:     p.CycleNumber,
		GrossAmount:     p.GrossAmount,
		NetAmount:       p.NetAmount,
		FeeAmount:       p.FeeAmount,
		Currency:        p.Currency,
		Status:          p.Status,
		Mode:            p.Mode,
		ScheduledDate:   p.ScheduledDate,
		ProcessedAt:     p.ProcessedAt,
		FailureCategory: p.FailureCategory,
		RetryOfID:       p.RetryOfID,
		CreatedAt:       p.CreatedAt,
	}
}

func toAdminDTO(p models.Payout) AdminPayoutDTO {
	return AdminPayoutDTO{
		PayoutDTO:         toDTO(p),
		ChargeID:          p.ChargeID,
		ExternalReference: p.ExternalReference,
		TraceID:           p.TraceID,
		FailureReason:     p.FailureReason,
	}
}
