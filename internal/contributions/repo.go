// Package contributions persists member pay-ins reconciled from gateway callbacks.
package contributions

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByChargeID(ctx context.Context, chargeID string) (*models.Contribution, error)
	TransitionStatus(ctx context.Context, chargeID string, from []enums.ContributionStatus, to enums.ContributionStatus, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByChargeID(ctx context.Context, chargeID string) (*models.Contribution, error) {
	var row models.Contribution
	if err := r.db.WithContext(ctx).Where("charge_id = ?", chargeID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// TransitionStatus moves the contribution to `to` only while it is in one of from.
func (r *repository) TransitionStatus(ctx context.Context, chargeID string, from []enums.ContributionStatus, to enums.ContributionStatus, updates map[string]any) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("no source statuses for transition to %s", to)
	}
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Contribution{}).
		Where("charge_id = ? AND status IN ?", chargeID, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
