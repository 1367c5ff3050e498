package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

// PaymentDestination is where a member receives payouts.
type PaymentDestination struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	Method        enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	IsPrimary     bool                `gorm:"column:is_primary;not null;default:false"`
	PhoneNumber   *string             `gorm:"column:phone_number"`
	Provider      *string             `gorm:"column:provider"`
	AccountNumber *string             `gorm:"column:account_number"`
	BankCode      *string             `gorm:"column:bank_code"`
	AccountName   *string             `gorm:"column:account_name"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
