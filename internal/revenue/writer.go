package revenue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

// Line is one platform revenue amount attributed to a payout.
type Line struct {
	Type   enums.RevenueType
	Amount int64
}

type Writer struct {
	now func() time.Time
}

func NewWriter() *Writer {
	return &Writer{now: func() time.Time { return time.Now().UTC() }}
}

// RecordTx inserts one revenue row per non-zero line. (payout_id, type) is unique,
// so a replayed settlement fails instead of double counting.
func (w *Writer) RecordTx(ctx context.Context, tx *gorm.DB, payoutID, groupID uuid.UUID, currency string, lines ...Line) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	rows := make([]models.RevenueTransaction, 0, len(lines))
	now := w.now()
	for _, line := range lines {
		if line.Amount == 0 {
			continue
		}
		if !line.Type.IsValid() {
			return errors.New("invalid revenue type")
		}
		rows = append(rows, models.RevenueTransaction{
			ID:        uuid.New(),
			PayoutID:  payoutID,
			GroupID:   groupID,
			Type:      line.Type,
			Amount:    line.Amount,
			Currency:  currency,
			CreatedAt: now,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&rows).Error
}
