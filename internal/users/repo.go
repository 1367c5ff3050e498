package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
)

// Repository reads member rows and owns the payout PIN column. Wallet and
// escrow balances are written only by the ledger.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID returns gorm.ErrRecordNotFound for an unknown member.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := new(models.User)
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// UpdatePINHash stores hash and reports whether the member exists.
func (r *Repository) UpdatePINHash(ctx context.Context, id uuid.UUID, hash string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"pin_hash": hash, "updated_at": at})
	return res.RowsAffected == 1, res.Error
}
