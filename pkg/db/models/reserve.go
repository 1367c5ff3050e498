package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

// ReserveWallet holds a group's shortfall buffer.
type ReserveWallet struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID   uuid.UUID `gorm:"column:group_id;type:uuid;not null;uniqueIndex"`
	Balance   int64     `gorm:"column:balance;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// ReserveWalletEntry records one signed movement of a reserve wallet.
type ReserveWalletEntry struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID     uuid.UUID              `gorm:"column:wallet_id;type:uuid;not null"`
	GroupID      uuid.UUID              `gorm:"column:group_id;type:uuid;not null"`
	PayoutID     *uuid.UUID             `gorm:"column:payout_id;type:uuid"`
	UserID       *uuid.UUID             `gorm:"column:user_id;type:uuid"`
	Type         enums.ReserveEntryType `gorm:"column:type;type:reserve_entry_type;not null"`
	Amount       int64                  `gorm:"column:amount;not null"`
	BalanceAfter int64                  `gorm:"column:balance_after;not null"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
}
