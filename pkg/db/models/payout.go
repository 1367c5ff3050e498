package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

// Payout is one rotation's disbursement to the recipient. Rows are never deleted;
// a retry creates a new payout pointing back through RetryOfID.
type Payout struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID           uuid.UUID              `gorm:"column:group_id;type:uuid;not null"`
	RecipientID       uuid.UUID              `gorm:"column:recipient_id;type:uuid;not null"`
	CycleNumber       int                    `gorm:"column:cycle_number;not null"`
	GrossAmount       int64                  `gorm:"column:gross_amount;not null"`
	NetAmount         int64                  `gorm:"column:net_amount;not null;default:0"`
	FeeAmount         int64                  `gorm:"column:fee_amount;not null;default:0"`
	Currency          string                 `gorm:"column:currency;not null"`
	Status            enums.PayoutStatus     `gorm:"column:status;type:payout_status;not null"`
	Mode              enums.PayoutMode       `gorm:"column:mode;type:payout_mode;not null"`
	ScheduledDate     time.Time              `gorm:"column:scheduled_date;not null"`
	ProcessedAt       *time.Time             `gorm:"column:processed_at"`
	ChargeID          *string                `gorm:"column:charge_id"`
	ExternalReference *string                `gorm:"column:external_reference"`
	TraceID           *string                `gorm:"column:trace_id"`
	FailureCategory   *enums.FailureCategory `gorm:"column:failure_category"`
	FailureReason     *string                `gorm:"column:failure_reason"`
	RetryOfID         *uuid.UUID             `gorm:"column:retry_of_id;type:uuid"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// PayoutScheduleEntry places a payout on the settlement calendar.
type PayoutScheduleEntry struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PayoutID      uuid.UUID            `gorm:"column:payout_id;type:uuid;not null"`
	GroupID       uuid.UUID            `gorm:"column:group_id;type:uuid;not null"`
	UserID        uuid.UUID            `gorm:"column:user_id;type:uuid;not null"`
	Amount        int64                `gorm:"column:amount;not null"`
	ScheduledDate time.Time            `gorm:"column:scheduled_date;not null"`
	PayoutTime    string               `gorm:"column:payout_time;not null"`
	Status        enums.ScheduleStatus `gorm:"column:status;type:payout_schedule_status;not null"`
	ProcessedAt   *time.Time           `gorm:"column:processed_at"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the schedule table name.
func (PayoutScheduleEntry) TableName() string {
	return "payout_schedule"
}
