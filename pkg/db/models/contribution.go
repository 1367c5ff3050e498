package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

// Contribution is a member's pay-in toward the current cycle.
type Contribution struct {
	ID                uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID           uuid.UUID                `gorm:"column:group_id;type:uuid;not null"`
	UserID            uuid.UUID                `gorm:"column:user_id;type:uuid;not null"`
	CycleNumber       int                      `gorm:"column:cycle_number;not null"`
	Amount            int64                    `gorm:"column:amount;not null"`
	Status            enums.ContributionStatus `gorm:"column:status;type:contribution_status;not null"`
	ChargeID          string                   `gorm:"column:charge_id;not null;uniqueIndex"`
	ExternalReference *string                  `gorm:"column:external_reference"`
	FailureReason     *string                  `gorm:"column:failure_reason"`
	CompletedAt       *time.Time               `gorm:"column:completed_at"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// GroupMembership is the slice of membership state the reconciler updates.
type GroupMembership struct {
	GroupID        uuid.UUID `gorm:"column:group_id;type:uuid;primaryKey"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	HasContributed bool      `gorm:"column:has_contributed;not null;default:false"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
