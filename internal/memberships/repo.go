package memberships

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
)

// Repository exposes group membership persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// GetMembership retrieves a membership by group and user.
func (r *Repository) GetMembership(ctx context.Context, groupID, userID uuid.UUID) (*models.GroupMembership, error) {
	var membership models.GroupMembership
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// MarkContributed flags the member as paid up for the cycle, creating the row if needed.
func (r *Repository) MarkContributed(ctx context.Context, groupID, userID uuid.UUID, at time.Time) error {
	row := models.GroupMembership{GroupID: groupID, UserID: userID, HasContributed: true, UpdatedAt: at}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{"has_contributed": true, "updated_at": at}),
		}).
		Create(&row).Error
}
