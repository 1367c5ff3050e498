package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	gatewaywebhook "github.com/angelmondragon/rosca-settlement/internal/webhooks/gateway"
	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	"github.com/angelmondragon/rosca-settlement/pkg/gateway"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
)

type fakeProcessingLister struct {
	rows   []models.Payout
	before time.Time
}

func (f *fakeProcessingLister) ListProcessingBefore(_ context.Context, before time.Time, _ int) ([]models.Payout, error) {
	f.before = before
	return f.rows, nil
}

type fakeStatusChecker struct {
	results map[string]*gateway.Result
	errs    map[string]error
}

func (f *fakeStatusChecker) Status(_ context.Context, chargeID string) (*gateway.Result, error) {
	if err := f.errs[chargeID]; err != nil {
		return nil, err
	}
	return f.results[chargeID], nil
}

type fakeReconciler struct {
	updates []gatewaywebhook.PayoutUpdate
}

func (f *fakeReconciler) ApplyPayoutStatus(_ context.Context, update gatewaywebhook.PayoutUpdate) (bool, error) {
	f.updates = append(f.updates, update)
	return true, nil
}

func processingPayout(chargeID string) models.Payout {
	return models.Payout{ID: uuid.New(), Status: enums.PayoutStatusProcessing, ChargeID: &chargeID}
}

func TestPayoutPollJobAppliesOnlyTerminalStatuses(t *testing.T) {
	lister := &fakeProcessingLister{rows: []models.Payout{
		processingPayout("payout_done"),
		processingPayout("payout_waiting"),
		processingPayout("payout_bad"),
		processingPayout("payout_err"),
	}}
	checker := &fakeStatusChecker{
		results: map[string]*gateway.Result{
			"payout_done":    {RawStatus: "success", Status: enums.PayoutStatusCompleted, RefID: "r1"},
			"payout_waiting": {RawStatus: "pending", Status: enums.PayoutStatusProcessing},
			"payout_bad":     {RawStatus: "rejected", Status: enums.PayoutStatusFailed},
		},
		errs: map[string]error{"payout_err": errors.New("timeout")},
	}
	reconciler := &fakeReconciler{}
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	jobIface, err := NewPayoutPollJob(PayoutPollJobParams{
		Logger:     logger.Nop(),
		Payouts:    lister,
		Gateway:    checker,
		Reconciler: reconciler,
		MinAge:     time.Hour,
	})
	require.NoError(t, err)
	job := jobIface.(*payoutPollJob)
	job.now = func() time.Time { return now }

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Equal(t, now.Add(-time.Hour), lister.before)

	require.Len(t, reconciler.updates, 2)
	assert.Equal(t, gatewaywebhook.PayoutUpdate{ChargeID: "payout_done", Status: enums.PayoutStatusCompleted, RefID: "r1"}, reconciler.updates[0])
	assert.Equal(t, "payout_bad", reconciler.updates[1].ChargeID)
	assert.Equal(t, enums.PayoutStatusFailed, reconciler.updates[1].Status)
}
