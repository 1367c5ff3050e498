package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

// CompensationIntent is written before every escrow debit so a crash or a failed
// downstream write can be undone.
type CompensationIntent struct {
	ID         uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PayoutID   uuid.UUID                `gorm:"column:payout_id;type:uuid;not null"`
	UserID     uuid.UUID                `gorm:"column:user_id;type:uuid;not null"`
	Amount     int64                    `gorm:"column:amount;not null"`
	ChargeID   string                   `gorm:"column:charge_id;not null"`
	Status     enums.CompensationStatus `gorm:"column:status;type:compensation_status;not null"`
	Reason     *string                  `gorm:"column:reason"`
	ResolvedAt *time.Time               `gorm:"column:resolved_at"`
	CreatedAt  time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
