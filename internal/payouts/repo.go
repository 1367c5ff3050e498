package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	"github.com/angelmondragon/rosca-settlement/pkg/pagination"
)

// DueEntry pairs a pending schedule row with its payout.
type DueEntry struct {
	Schedule models.PayoutScheduleEntry
	Payout   models.Payout
}

// Repository persists payouts and their schedule rows. Status writes are
// compare-and-set on the current status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	CreateSchedule(ctx context.Context, entry *models.PayoutScheduleEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindByChargeID(ctx context.Context, chargeID string) (*models.Payout, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.PayoutStatus, updates map[string]any) (bool, error)
	UpdateIfStatus(ctx context.Context, id uuid.UUID, status enums.PayoutStatus, updates map[string]any) (bool, error)
	MarkSchedule(ctx context.Context, payoutID uuid.UUID, status enums.ScheduleStatus, at time.Time) error
	ListDue(ctx context.Context, dayStart, dayEnd time.Time, cutoff string, limit int) ([]DueEntry, error)
	ListProcessingBefore(ctx context.Context, before time.Time, limit int) ([]models.Payout, error)
	ListTerminalBetween(ctx context.Context, from, to time.Time, limit int) ([]models.Payout, error)
	CountActiveRetries(ctx context.Context, originalID uuid.UUID) (int64, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Payout, error)
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

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) CreateSchedule(ctx context.Context, entry *models.PayoutScheduleEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindByChargeID(ctx context.Context, chargeID string) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where("charge_id = ?", chargeID).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// TransitionStatus moves the payout only if it is still in from. A false result
// means another writer got there first.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.PayoutStatus, updates map[string]any) (bool, error) {
	if !CanTransition(from, to) {
		return false, fmt.Errorf("payout transition %s -> %s not allowed", from, to)
	}
	values := map[string]any{}
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = to
	if _, ok := values["updated_at"]; !ok {
		values["updated_at"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateIfStatus writes non-status fields while the payout is still in status.
func (r *repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, status enums.PayoutStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"updated_at": time.Now().UTC()}
	for k, v := range updates {
		if k == "status" {
			continue
		}
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, status).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkSchedule(ctx context.Context, payoutID uuid.UUID, status enums.ScheduleStatus, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutScheduleEntry{}).
		Where("payout_id = ? AND status = ?", payoutID, enums.ScheduleStatusPending).
		Updates(map[string]any{
			"status":       status,
			"processed_at": at,
			"updated_at":   at,
		}).Error
}

// ListDue returns pending schedule rows dated within [dayStart, dayEnd) whose
// payout_time (HH:MM) is at or before cutoff and whose payout is still pending.
func (r *repository) ListDue(ctx context.Context, dayStart, dayEnd time.Time, cutoff string, limit int) ([]DueEntry, error) {
	var schedule []models.PayoutScheduleEntry
	q := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_date >= ? AND scheduled_date < ? AND payout_time <= ?",
			enums.ScheduleStatusPending, dayStart.UTC(), dayEnd.UTC(), cutoff).
		Order("payout_time ASC").
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&schedule).Error; err != nil {
		return nil, err
	}
	if len(schedule) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(schedule))
	for _, entry := range schedule {
		ids = append(ids, entry.PayoutID)
	}
	var rows []models.Payout
	if err := r.db.WithContext(ctx).
		Where("id IN ? AND status = ?", ids, enums.PayoutStatusPending).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Payout, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}

	due := make([]DueEntry, 0, len(schedule))
	for _, entry := range schedule {
		payout, ok := byID[entry.PayoutID]
		if !ok {
			continue
		}
		due = append(due, DueEntry{Schedule: entry, Payout: payout})
	}
	return due, nil
}

func (r *repository) ListProcessingBefore(ctx context.Context, before time.Time, limit int) ([]models.Payout, error) {
	var rows []models.Payout
	q := r.db.WithContext(ctx).
		Where("status = ? AND charge_id IS NOT NULL AND updated_at < ?", enums.PayoutStatusProcessing, before.UTC()).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListTerminalBetween returns completed and failed payouts last updated in [from, to).
func (r *repository) ListTerminalBetween(ctx context.Context, from, to time.Time, limit int) ([]models.Payout, error) {
	var rows []models.Payout
	q := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at >= ? AND updated_at < ?",
			[]enums.PayoutStatus{enums.PayoutStatusCompleted, enums.PayoutStatusFailed}, from.UTC(), to.UTC()).
		Order("updated_at ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountActiveRetries(ctx context.Context, originalID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("retry_of_id = ? AND status <> ?", originalID, enums.PayoutStatusFailed).
		Count(&count).Error
	return count, err
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Payout, error) {
	q := r.db.WithContext(ctx).Model(&models.Payout{})
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if filters.GroupID != nil {
		q = q.Where("group_id = ?", *filters.GroupID)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Payout
	err = q.Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}
