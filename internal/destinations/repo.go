package destinations

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
)

// Repository reads member payment destinations.
type Repository interface {
	Primary(ctx context.Context, userID uuid.UUID) (*models.PaymentDestination, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Primary returns the user's primary destination, falling back to the most
// recently created one when none is flagged.
func (r *repository) Primary(ctx context.Context, userID uuid.UUID) (*models.PaymentDestination, error) {
	var dest models.PaymentDestination
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_primary DESC").
		Order("created_at DESC").
		First(&dest).Error
	if err != nil {
		return nil, err
	}
	return &dest, nil
}
