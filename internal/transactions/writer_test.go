package transactions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rosca-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

func TestRecordAndSetStatus(t *testing.T) {
	client := dbtest.New(t)
	w := NewWriter()
	ctx := context.Background()
	payoutID := uuid.New()

	row, err := w.RecordTx(ctx, client.DB(), Entry{
		UserID:   uuid.New(),
		PayoutID: &payoutID,
		Type:     enums.TransactionTypePayout,
		Amount:   44500,
		Status:   enums.TransactionStatusProcessing,
		ChargeID: "payout_1",
		Details:  map[string]int64{"fee": 5500},
	})
	require.NoError(t, err)

	n, err := w.SetStatusByChargeTx(ctx, client.DB(), "payout_1", []enums.TransactionType{enums.TransactionTypePayout}, enums.TransactionStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// terminal rows do not move again
	n, err = w.SetStatusByChargeTx(ctx, client.DB(), "payout_1", []enums.TransactionType{enums.TransactionTypePayout}, enums.TransactionStatusFailed)
	require.NoError(t, err)
	assert.Zero(t, n)

	var stored models.Transaction
	require.NoError(t, client.DB().First(&stored, "id = ?", row.ID).Error)
	assert.Equal(t, enums.TransactionStatusCompleted, stored.Status)
	var details map[string]int64
	require.NoError(t, json.Unmarshal(stored.Details, &details))
	assert.Equal(t, int64(5500), details["fee"])
}

func TestRecordRejectsInvalidType(t *testing.T) {
	client := dbtest.New(t)
	_, err := NewWriter().RecordTx(context.Background(), client.DB(), Entry{Type: "bogus", Status: enums.TransactionStatusCompleted})
	assert.Error(t, err)
	_, err = NewWriter().RecordTx(context.Background(), nil, Entry{})
	assert.Error(t, err)
}
