package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

// Repository owns the SQL behind balance mutations. Every balance change is a
// conditional UPDATE so concurrent writers can never drive a balance negative.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	AddEscrow(ctx context.Context, userID uuid.UUID, delta int64, at time.Time) (bool, error)
	EscrowBalance(ctx context.Context, userID uuid.UUID) (int64, bool, error)
	EnsureReserveWallet(ctx context.Context, groupID uuid.UUID) error
	AddReserve(ctx context.Context, groupID uuid.UUID, delta int64, at time.Time) (bool, error)
	ReserveWallet(ctx context.Context, groupID uuid.UUID) (*models.ReserveWallet, error)
	CreateReserveEntry(ctx context.Context, entry *models.ReserveWalletEntry) error
	CreateIntent(ctx context.Context, intent *models.CompensationIntent) error
	TransitionIntent(ctx context.Context, id uuid.UUID, from []enums.CompensationStatus, to enums.CompensationStatus, reason *string, at time.Time) (bool, error)
	FindIntent(ctx context.Context, id uuid.UUID) (*models.CompensationIntent, error)
	LatestIntentForPayout(ctx context.Context, payoutID uuid.UUID) (*models.CompensationIntent, error)
	ListIntents(ctx context.Context, status enums.CompensationStatus, olderThan time.Time, limit int) ([]models.CompensationIntent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) AddEscrow(ctx context.Context, userID uuid.UUID, delta int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND escrow_balance + ? >= 0", userID, delta).
		Updates(map[string]any{
			"escrow_balance": gorm.Expr("escrow_balance + ?", delta),
			"updated_at":     at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) EscrowBalance(ctx context.Context, userID uuid.UUID) (int64, bool, error) {
	var balances []int64
	if err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Limit(1).
		Pluck("escrow_balance", &balances).Error; err != nil {
		return 0, false, err
	}
	if len(balances) == 0 {
		return 0, false, nil
	}
	return balances[0], true, nil
}

func (r *repository) EnsureReserveWallet(ctx context.Context, groupID uuid.UUID) error {
	wallet := models.ReserveWallet{ID: uuid.New(), GroupID: groupID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "group_id"}}, DoNothing: true}).
		Create(&wallet).Error
}

func (r *repository) AddReserve(ctx context.Context, groupID uuid.UUID, delta int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReserveWallet{}).
		Where("group_id = ? AND balance + ? >= 0", groupID, delta).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", delta),
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReserveWallet(ctx context.Context, groupID uuid.UUID) (*models.ReserveWallet, error) {
	var wallet models.ReserveWallet
	if err := r.db.WithContext(ctx).Where("group_id = ?", groupID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) CreateReserveEntry(ctx context.Context, entry *models.ReserveWalletEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) CreateIntent(ctx context.Context, intent *models.CompensationIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) TransitionIntent(ctx context.Context, id uuid.UUID, from []enums.CompensationStatus, to enums.CompensationStatus, reason *string, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	if to != enums.CompensationStatusApplied {
		updates["resolved_at"] = at
	}
	if reason != nil {
		updates["reason"] = *reason
	}
	res := r.db.WithContext(ctx).
		Model(&models.CompensationIntent{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindIntent(ctx context.Context, id uuid.UUID) (*models.CompensationIntent, error) {
	var intent models.CompensationIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) LatestIntentForPayout(ctx context.Context, payoutID uuid.UUID) (*models.CompensationIntent, error) {
	var intent models.CompensationIntent
	if err := r.db.WithContext(ctx).
		Where("payout_id = ?", payoutID).
		Order("created_at DESC").
		First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) ListIntents(ctx context.Context, status enums.CompensationStatus, olderThan time.Time, limit int) ([]models.CompensationIntent, error) {
	var intents []models.CompensationIntent
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", status, olderThan).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}
