package models

import (
	"time"

	"github.com/google/uuid"
)

// User carries the two balance buckets the settlement engine moves money between.
type User struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DisplayName   string    `gorm:"column:display_name;not null"`
	WalletBalance int64     `gorm:"column:wallet_balance;not null;default:0"`
	EscrowBalance int64     `gorm:"column:escrow_balance;not null;default:0"`
	TrustScore    int       `gorm:"column:trust_score;not null;default:50"`
	PINHash       *string   `gorm:"column:pin_hash"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
