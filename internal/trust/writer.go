package trust

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
)

const (
	MinScore = 0
	MaxScore = 100
)

// Writer adjusts member trust scores, clamped to [MinScore, MaxScore].
type Writer struct {
	now func() time.Time
}

func NewWriter() *Writer {
	return &Writer{now: func() time.Time { return time.Now().UTC() }}
}

func (w *Writer) BumpTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID, delta int) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if delta == 0 {
		return nil
	}
	expr := gorm.Expr(
		"CASE WHEN trust_score + ? > ? THEN ? WHEN trust_score + ? < ? THEN ? ELSE trust_score + ? END",
		delta, MaxScore, MaxScore, delta, MinScore, MinScore, delta,
	)
	return tx.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"trust_score": expr, "updated_at": w.now()}).Error
}
