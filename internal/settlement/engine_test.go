package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/internal/destinations"
	"github.com/angelmondragon/rosca-settlement/internal/fees"
	"github.com/angelmondragon/rosca-settlement/internal/ledger"
	"github.com/angelmondragon/rosca-settlement/internal/notifications"
	"github.com/angelmondragon/rosca-settlement/internal/payouts"
	"github.com/angelmondragon/rosca-settlement/internal/reserve"
	"github.com/angelmondragon/rosca-settlement/pkg/config"
	"github.com/angelmondragon/rosca-settlement/pkg/db"
	"github.com/angelmondragon/rosca-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
	"github.com/angelmondragon/rosca-settlement/pkg/gateway"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Disburse(ctx context.Context, req gateway.DisburseRequest) (*gateway.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*gateway.Result)
	return res, args.Error(1)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifications.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notifications.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) all() []notifications.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Notification(nil), r.sent...)
}

type decliningCoverer struct {
	err error
}

func (d decliningCoverer) Cover(context.Context, reserve.CoverRequest) (bool, error) {
	return false, d.err
}

type harness struct {
	client   *db.Client
	ledger   ledger.Service
	payouts  payouts.Repository
	gateway  *mockGateway
	notifier *recordingNotifier
	engine   *Engine
}

func newHarness(t *testing.T, coverer func(ledger.Service, *db.Client) reserve.Coverer) *harness {
	t.Helper()
	client := dbtest.New(t)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(client.DB()), client)
	require.NoError(t, err)
	calc, err := fees.NewCalculator(config.FeeConfig{PlatformBPS: 1000, ReserveBPS: 100, InstantFlat: 500})
	require.NoError(t, err)
	dests, err := destinations.NewService(destinations.NewRepository(client.DB()))
	require.NoError(t, err)

	h := &harness{
		client:   client,
		ledger:   ledgerSvc,
		payouts:  payouts.NewRepository(client.DB()),
		gateway:  &mockGateway{},
		notifier: &recordingNotifier{},
	}
	var cov reserve.Coverer
	if coverer != nil {
		cov = coverer(ledgerSvc, client)
	} else {
		local, err := reserve.NewLocalCoverer(ledgerSvc, client, logger.Nop())
		require.NoError(t, err)
		cov = local
	}
	h.engine, err = NewEngine(EngineParams{
		TxRunner:     client,
		Payouts:      h.payouts,
		Ledger:       ledgerSvc,
		Reserve:      cov,
		Fees:         calc,
		Destinations: dests,
		Gateway:      h.gateway,
		Notifier:     h.notifier,
		Logger:       logger.Nop(),
		TrustBump:    2,
		CallTimeout:  time.Second,
	})
	require.NoError(t, err)
	return h
}

type seeded struct {
	payout models.Payout
	userID uuid.UUID
}

func (h *harness) seed(t *testing.T, gross, escrow int64, withDestination bool) seeded {
	t.Helper()
	conn := h.client.DB()
	user := models.User{ID: uuid.New(), DisplayName: "recipient", EscrowBalance: escrow, TrustScore: 50}
	require.NoError(t, conn.Create(&user).Error)
	if withDestination {
		phone, provider := "+237670000000", "mtn"
		require.NoError(t, conn.Create(&models.PaymentDestination{
			ID:          uuid.New(),
			UserID:      user.ID,
			Method:      enums.PaymentMethodMobileMoney,
			IsPrimary:   true,
			PhoneNumber: &phone,
			Provider:    &provider,
		}).Error)
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	payout := models.Payout{
		ID:            uuid.New(),
		GroupID:       uuid.New(),
		RecipientID:   user.ID,
		CycleNumber:   1,
		GrossAmount:   gross,
		Currency:      "XAF",
		Status:        enums.PayoutStatusPending,
		Mode:          enums.PayoutModeScheduled,
		ScheduledDate: today,
	}
	require.NoError(t, conn.Create(&payout).Error)
	require.NoError(t, conn.Create(&models.PayoutScheduleEntry{
		ID:            uuid.New(),
		PayoutID:      payout.ID,
		GroupID:       payout.GroupID,
		UserID:        user.ID,
		Amount:        gross,
		ScheduledDate: today,
		PayoutTime:    "00:00",
		Status:        enums.ScheduleStatusPending,
	}).Error)
	return seeded{payout: payout, userID: user.ID}
}

func (h *harness) reload(t *testing.T, id uuid.UUID) models.Payout {
	t.Helper()
	var p models.Payout
	require.NoError(t, h.client.DB().First(&p, "id = ?", id).Error)
	return p
}

func (h *harness) user(t *testing.T, id uuid.UUID) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, h.client.DB().First(&u, "id = ?", id).Error)
	return u
}

func (h *harness) schedule(t *testing.T, payoutID uuid.UUID) models.PayoutScheduleEntry {
	t.Helper()
	var s models.PayoutScheduleEntry
	require.NoError(t, h.client.DB().First(&s, "payout_id = ?", payoutID).Error)
	return s
}

func count(t *testing.T, conn *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func TestSettleScheduledEndToEnd(t *testing.T) {
	h := newHarness(t, nil)
	s := h.seed(t, 50000, 50000, true)
	chargeID := "payout_" + s.payout.ID.String()

	h.gateway.On("Disburse", mock.Anything, mock.MatchedBy(func(req gateway.DisburseRequest) bool {
		return req.Amount == 44500 && req.ChargeID == chargeID && req.Method == enums.PaymentMethodMobileMoney && req.PhoneNumber == "+237670000000"
	})).Return(&gateway.Result{RawStatus: "successful", Status: enums.PayoutStatusCompleted, RefID: "ref-1", TraceID: "trace-1"}, nil).Once()

	res, err := h.engine.Settle(context.Background(), s.payout, enums.PayoutModeScheduled)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, int64(5500), res.Fees.TotalFees)
	h.gateway.AssertExpectations(t)

	payout := h.reload(t, s.payout.ID)
	assert.Equal(t, enums.PayoutStatusCompleted, payout.Status)
	assert.Equal(t, int64(44500), payout.NetAmount)
	assert.Equal(t, int64(5500), payout.FeeAmount)
	require.NotNil(t, payout.ChargeID)
	assert.Equal(t, chargeID, *payout.ChargeID)
	require.NotNil(t, payout.ExternalReference)
	assert.Equal(t, "ref-1", *payout.ExternalReference)
	assert.NotNil(t, payout.ProcessedAt)

	user := h.user(t, s.userID)
	assert.Zero(t, user.EscrowBalance)
	assert.Equal(t, 52, user.TrustScore)

	reserveBalance, err := h.ledger.ReserveBalance(context.Background(), s.payout.GroupID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), reserveBalance)

	var revenue []models.RevenueTransaction
	require.NoError(t, h.client.DB().Where("payout_id = ?", s.payout.ID).Find(&revenue).Error)
	require.Len(t, revenue, 1)
	assert.Equal(t, enums.RevenueTypeFee, revenue[0].Type)
	assert.Equal(t, int64(5000), revenue[0].Amount)

	var txs []models.Transaction
	require.NoError(t, h.client.DB().Where("payout_id = ?", s.payout.ID).Find(&txs).Error)
	require.Len(t, txs, 1)
	assert.Equal(t, enums.TransactionTypePayout, txs[0].Type)
	assert.Equal(t, enums.TransactionStatusCompleted, txs[0].Status)
	assert.Equal(t, int64(50000), txs[0].Amount, "the log row carries the gross debited from escrow")

	assert.Equal(t, enums.ScheduleStatusProcessed, h.schedule(t, s.payout.ID).Status)

	intent, err := h.ledger.IntentForPayout(context.Background(), s.payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CompensationStatusSettled, intent.Status)

	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, []uuid.UUID{s.userID}, sent[0].UserIDs)
}

func TestSettlePendingGatewayLeavesProcessing(t *testing.T) {
	h := newHarness(t, nil)
	s := h.seed(t, 50000, 50000, true)
	h.gateway.On("Disburse", mock.Anything, mock.Anything).
		Return(&gateway.Result{RawStatus: "queued", Status: enums.PayoutStatusProcessing, RefID: "ref-2"}, nil).Once()

	res, err := h.engine.Settle(context.Background(), s.payout, enums.PayoutModeScheduled)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessing, res.Outcome)

	payout := h.reload(t, s.payout.ID)
	assert.Equal(t, enums.PayoutStatusProcessing, payout.Status)
	assert.Nil(t, payout.ProcessedAt)
	assert.Zero(t, h.user(t, s.userID).EscrowBalance)
	assert.Equal(t, int64(1), count(t, h.client.DB(), &models.Transaction{}, "payout_id = ? AND status = ?", s.payout.ID, enums.TransactionStatusProcessing))
}

func TestSettleReserveDeclineFailsWithoutDispatch(t *testing.T) {
	for name, cov := range map[string]reserve.Coverer{
		"decline":     decliningCoverer{},
		"unavailable": decliningCoverer{err: errors.New("reserve down")},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, func(ledger.Service, *db.Client) reserve.Coverer { return cov })
			s := h.seed(t, 50000, 20000, true)

			res, err := h.engine.Settle(context.Background(), s.payout, enums.PayoutModeScheduled)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFunding))
			assert.Equal(t, OutcomeFailed, res.Outcome)
			h.gateway.AssertNotCalled(t, "Disburse", mock.Anything, mock.Anything)

			payout := h.reload(t, s.payout.ID)
			assert.Equal(t, enums.PayoutStatusFailed, payout.Status)
			require.NotNil(t, payout.FailureCategory)
			assert.Equal(t, enums.FailureInsufficientFunds, *payout.FailureCategory)
			assert.Equal(t, int64(20000), h.user(t, s.userID).EscrowBalance)
			assert.Equal(t, enums.ScheduleStatusFailed, h.schedule(t, s.payout.ID).Status)
			assert.Len(t, h.notifier.all(), 1)
		})
	}
}

func TestSettleUsesLocalReserveToCoverShortfall(t *testing.T) {
	h := newHarness(t, nil)
	s := h.seed(t, 50000, 45000, true)
	require.NoError(t, h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := h.ledger.AdjustReserveTx(context.Background(), tx, ledger.ReserveAdjustment{
			GroupID: s.payout.GroupID, Amount: 8000, Type: enums.ReserveEntryManualAdjustment,
		})
		return err
	}))
	h.gateway.On("Disburse", mock.Anything, mock.Anything).
		Return(&gateway.Result{RawStatus: "success", Status: enums.PayoutStatusCompleted}, nil).Once()

	res, err := h.engine.Settle(context.Background(), s.payout, enums.PayoutModeScheduled)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)

	balance, err := h.ledger.ReserveBalance(context.Background(), s.payout.GroupID)
	require.NoError(t, err)
	// 8000 - 5000 shortfall + 500 fee slice
	assert.Equal(t, int64(3500), balance)
	assert.Zero(t, h.user(t, s.userID).EscrowBalance)
}

func TestSettleGatewayDeclineKeepsEscrow(t *testing.T) {
	h := newHarness(t, nil)
	s := h.seed(t, 50000, 50000, true)
	h.gateway.On("Disburse", mock.Anything, mock.Anything).
		Return(nil, errors.New("declined by provider")).Once()

	res, err := h.engine.Settle(context.Background(), s.payout, enums.PayoutModeScheduled)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	assert.Equal(t, OutcomeFailed, res.Outcome)

	payout := h.reload(t, s.payout.ID)
	assert.Equal(t, enums.PayoutStatusFailed, payout.Status)
	require.NotNil(t, payout.FailureCategory)
	assert.Equal(t, enums.FailureGatewayDeclined, *payout.FailureCategory)
	assert.Equal(t, int64(50000), h.user(t, s.userID).EscrowBalance)
	assert.Zero(t, count(t, h.client.DB(), &models.RevenueTransaction{}, "payout_id = ?", s.payout.ID))
	assert.Zero(t, count(t, h.client.DB(), &models.CompensationIntent{}, "payout_id = ?", s.payout.ID))
	assert.Equal(t, 50, h.user(t, s.userID).TrustScore)

	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.NotContains(t, sent[0].Body, "declined by provider")
}

func TestSettleMissingDestinationFailsScheduled(t *testing.T) {
	h := newHarness(t, nil)
	s := h.seed(t, 50000, 50000, false)

	res, err := h.engine.Settle(context.Background(), s.payout, enums.PayoutModeScheduled)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	h.gateway.AssertNotCalled(t, "Disburse", mock.Anything, mock.Anything)

	payout := h.reload(t, s.payout.ID)
	require.NotNil(t, payout.FailureCategory)
	assert.Equal(t, enums.FailureNoPaymentMethod, *payout.FailureCategory)
	assert.Nil(t, payout.ChargeID)
}

func TestSettleInstantShortEscrowLeavesPending(t *testing.T) {
	h := newHarness(t, nil)
	s := h.seed(t, 50000, 10000, true)

	res, err := h.engine.Settle(context.Background(), s.payout, enums.PayoutModeInstant)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFunding))
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, enums.PayoutStatusPending, h.reload(t, s.payout.ID).Status)
	assert.Empty(t, h.notifier.all())
}

func TestSettleInstantRecordsInstantFee(t *testing.T) {
	h := newHarness(t, nil)
	s := h.seed(t, 50000, 50000, true)
	h.gateway.On("Disburse", mock.Anything, mock.MatchedBy(func(req gateway.DisburseRequest) bool {
		return req.Amount == 44000
	})).Return(&gateway.Result{RawStatus: "success", Status: enums.PayoutStatusCompleted}, nil).Once()

	res, err := h.engine.Settle(context.Background(), s.payout, enums.PayoutModeInstant)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)

	payout := h.reload(t, s.payout.ID)
	assert.Equal(t, enums.PayoutModeInstant, payout.Mode)
	assert.Equal(t, int64(1), count(t, h.client.DB(), &models.RevenueTransaction{}, "payout_id = ? AND type = ? AND amount = ?", s.payout.ID, enums.RevenueTypeInstantFee, 500))
	assert.Equal(t, int64(1), count(t, h.client.DB(), &models.Transaction{}, "payout_id = ? AND type = ? AND amount = ?", s.payout.ID, enums.TransactionTypeInstantPayout, 50000))
}

func TestSettleRejectsNonPending(t *testing.T) {
	h := newHarness(t, nil)
	s := h.seed(t, 50000, 50000, true)
	stale := s.payout
	require.NoError(t, h.client.DB().Model(&models.Payout{}).Where("id = ?", s.payout.ID).Update("status", enums.PayoutStatusCompleted).Error)

	_, err := h.engine.Settle(context.Background(), stale, enums.PayoutModeScheduled)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	h.gateway.AssertNotCalled(t, "Disburse", mock.Anything, mock.Anything)
}

func TestSettleCompensatesWhenPostDispatchWritesFail(t *testing.T) {
	h := newHarness(t, nil)
	s := h.seed(t, 50000, 50000, true)
	// A pre-existing revenue row trips the (payout_id, type) unique index.
	require.NoError(t, h.client.DB().Create(&models.RevenueTransaction{
		ID: uuid.New(), PayoutID: s.payout.ID, GroupID: s.payout.GroupID, Type: enums.RevenueTypeFee, Amount: 1, Currency: "XAF",
	}).Error)
	h.gateway.On("Disburse", mock.Anything, mock.Anything).
		Return(&gateway.Result{RawStatus: "success", Status: enums.PayoutStatusCompleted}, nil).Once()

	res, err := h.engine.Settle(context.Background(), s.payout, enums.PayoutModeScheduled)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLedger))
	assert.Equal(t, OutcomeFailed, res.Outcome)

	assert.Equal(t, enums.PayoutStatusFailed, h.reload(t, s.payout.ID).Status)
	assert.Equal(t, int64(50000), h.user(t, s.userID).EscrowBalance)
	intent, err := h.ledger.IntentForPayout(context.Background(), s.payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CompensationStatusCompensated, intent.Status)
	assert.Zero(t, count(t, h.client.DB(), &models.Transaction{}, "payout_id = ?", s.payout.ID))
}

func TestSettleWritesLedgerRowsWhenCallbackCompletesFirst(t *testing.T) {
	for _, gw := range []gateway.Result{
		{RawStatus: "success", Status: enums.PayoutStatusCompleted, RefID: "ref-early"},
		{RawStatus: "pending", Status: enums.PayoutStatusProcessing, RefID: "ref-early"},
	} {
		t.Run(gw.RawStatus, func(t *testing.T) {
			h := newHarness(t, nil)
			s := h.seed(t, 50000, 50000, true)
			result := gw
			h.gateway.On("Disburse", mock.Anything, mock.Anything).
				Run(func(mock.Arguments) {
					// the gateway confirms over the webhook before Disburse returns
					require.NoError(t, h.client.DB().Model(&models.Payout{}).
						Where("id = ?", s.payout.ID).Update("status", enums.PayoutStatusCompleted).Error)
				}).
				Return(&result, nil).Once()

			res, err := h.engine.Settle(context.Background(), s.payout, enums.PayoutModeScheduled)
			require.NoError(t, err)
			assert.Equal(t, OutcomeCompleted, res.Outcome)

			payout := h.reload(t, s.payout.ID)
			assert.Equal(t, enums.PayoutStatusCompleted, payout.Status)
			require.NotNil(t, payout.ExternalReference)
			assert.Equal(t, "ref-early", *payout.ExternalReference)

			user := h.user(t, s.userID)
			assert.Zero(t, user.EscrowBalance)
			assert.Equal(t, 52, user.TrustScore)
			assert.Equal(t, int64(1), count(t, h.client.DB(), &models.Transaction{},
				"payout_id = ? AND status = ? AND amount = ?", s.payout.ID, enums.TransactionStatusCompleted, 50000))
			assert.Equal(t, int64(1), count(t, h.client.DB(), &models.RevenueTransaction{}, "payout_id = ?", s.payout.ID))
			reserveBalance, err := h.ledger.ReserveBalance(context.Background(), s.payout.GroupID)
			require.NoError(t, err)
			assert.Equal(t, int64(500), reserveBalance)
			assert.Equal(t, enums.ScheduleStatusProcessed, h.schedule(t, s.payout.ID).Status)

			intent, err := h.ledger.IntentForPayout(context.Background(), s.payout.ID)
			require.NoError(t, err)
			assert.Equal(t, enums.CompensationStatusSettled, intent.Status)
			assert.Len(t, h.notifier.all(), 1)
		})
	}
}

func TestSettleLeavesIntentAppliedWhenCallbackFailsFirst(t *testing.T) {
	h := newHarness(t, nil)
	s := h.seed(t, 50000, 50000, true)
	h.gateway.On("Disburse", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			require.NoError(t, h.client.DB().Model(&models.Payout{}).
				Where("id = ?", s.payout.ID).Update("status", enums.PayoutStatusFailed).Error)
		}).
		Return(&gateway.Result{RawStatus: "success", Status: enums.PayoutStatusCompleted}, nil).Once()

	res, err := h.engine.Settle(context.Background(), s.payout, enums.PayoutModeScheduled)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLedger))
	assert.Equal(t, OutcomeFailed, res.Outcome)

	assert.Zero(t, count(t, h.client.DB(), &models.Transaction{}, "payout_id = ?", s.payout.ID))
	assert.Zero(t, count(t, h.client.DB(), &models.RevenueTransaction{}, "payout_id = ?", s.payout.ID))
	intent, err := h.ledger.IntentForPayout(context.Background(), s.payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CompensationStatusApplied, intent.Status, "the sweeper compensates it")
}

func TestSettleInstantStaleSnapshotIsStateConflict(t *testing.T) {
	h := newHarness(t, nil)
	s := h.seed(t, 50000, 50000, true)
	h.gateway.On("Disburse", mock.Anything, mock.Anything).
		Return(&gateway.Result{RawStatus: "success", Status: enums.PayoutStatusCompleted}, nil).Once()

	_, err := h.engine.Settle(context.Background(), s.payout, enums.PayoutModeInstant)
	require.NoError(t, err)

	// the snapshot still says pending, but escrow is already spent
	_, err = h.engine.Settle(context.Background(), s.payout, enums.PayoutModeInstant)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
	h.gateway.AssertNumberOfCalls(t, "Disburse", 1)
}
