package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

// Transaction is the append-only money movement log. Only Status and UpdatedAt
// change after insert.
type Transaction struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID               `gorm:"column:user_id;type:uuid;not null"`
	PayoutID       *uuid.UUID              `gorm:"column:payout_id;type:uuid"`
	ContributionID *uuid.UUID              `gorm:"column:contribution_id;type:uuid"`
	Type           enums.TransactionType   `gorm:"column:type;type:transaction_type;not null"`
	Amount         int64                   `gorm:"column:amount;not null"`
	Status         enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null"`
	ChargeID       *string                 `gorm:"column:charge_id"`
	Details        json.RawMessage         `gorm:"column:details;type:jsonb"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// RevenueTransaction is one platform revenue line per payout and type.
type RevenueTransaction struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PayoutID  uuid.UUID         `gorm:"column:payout_id;type:uuid;not null"`
	GroupID   uuid.UUID         `gorm:"column:group_id;type:uuid;not null"`
	Type      enums.RevenueType `gorm:"column:type;type:revenue_type;not null"`
	Amount    int64             `gorm:"column:amount;not null"`
	Currency  string            `gorm:"column:currency;not null"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}
