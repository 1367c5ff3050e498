// Package transactions appends to the money movement log. Rows are never
// rewritten; reconciliation only moves their status.
package transactions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

type Writer struct {
	now func() time.Time
}

func NewWriter() *Writer {
	return &Writer{now: func() time.Time { return time.Now().UTC() }}
}

// Entry is the input for one log row. Details is marshalled to JSON.
type Entry struct {
	UserID         uuid.UUID
	PayoutID       *uuid.UUID
	ContributionID *uuid.UUID
	Type           enums.TransactionType
	Amount         int64
	Status         enums.TransactionStatus
	ChargeID       string
	Details        any
}

func (w *Writer) RecordTx(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if !entry.Type.IsValid() || !entry.Status.IsValid() {
		return nil, errors.New("invalid transaction type or status")
	}
	var details json.RawMessage
	if entry.Details != nil {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return nil, err
		}
		details = raw
	}
	var chargeID *string
	if entry.ChargeID != "" {
		chargeID = &entry.ChargeID
	}
	now := w.now()
	row := &models.Transaction{
		ID:             uuid.New(),
		UserID:         entry.UserID,
		PayoutID:       entry.PayoutID,
		ContributionID: entry.ContributionID,
		Type:           entry.Type,
		Amount:         entry.Amount,
		Status:         entry.Status,
		ChargeID:       chargeID,
		Details:        details,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// SetStatusByChargeTx moves every non-terminal row for chargeID of the given types to status.
func (w *Writer) SetStatusByChargeTx(ctx context.Context, tx *gorm.DB, chargeID string, types []enums.TransactionType, status enums.TransactionStatus) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	res := tx.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("charge_id = ? AND type IN ? AND status = ?", chargeID, types, enums.TransactionStatusProcessing).
		Updates(map[string]any{"status": status, "updated_at": w.now()})
	return res.RowsAffected, res.Error
}
