package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/internal/destinations"
	"github.com/angelmondragon/rosca-settlement/internal/fees"
	"github.com/angelmondragon/rosca-settlement/internal/ledger"
	"github.com/angelmondragon/rosca-settlement/internal/notifications"
	"github.com/angelmondragon/rosca-settlement/internal/payouts"
	"github.com/angelmondragon/rosca-settlement/internal/reserve"
	"github.com/angelmondragon/rosca-settlement/internal/revenue"
	"github.com/angelmondragon/rosca-settlement/internal/transactions"
	"github.com/angelmondragon/rosca-settlement/internal/trust"
	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
	"github.com/angelmondragon/rosca-settlement/pkg/gateway"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
	"github.com/angelmondragon/rosca-settlement/pkg/metrics"
)

const defaultCallTimeout = 15 * time.Second

// Outcome is how a single settlement attempt ended.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeProcessing Outcome = "processing"
	OutcomeFailed     Outcome = "failed"
	// OutcomeSkipped means the payout was not settled and was left untouched.
	OutcomeSkipped Outcome = "skipped"
)

// Disburser sends payout instructions to the payment gateway.
type Disburser interface {
	Disburse(ctx context.Context, req gateway.DisburseRequest) (*gateway.Result, error)
}

type destinationResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (*destinations.Resolved, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type EngineParams struct {
	TxRunner     txRunner
	Payouts      payouts.Repository
	Ledger       ledger.Service
	Reserve      reserve.Coverer
	Fees         *fees.Calculator
	Destinations destinationResolver
	Gateway      Disburser
	Transactions *transactions.Writer
	Revenue      *revenue.Writer
	Trust        *trust.Writer
	Notifier     notifications.Notifier
	Metrics      *metrics.SettlementMetrics
	Logger       *logger.Logger
	TrustBump    int
	CallTimeout  time.Duration
}

// Result reports one settlement attempt.
type Result struct {
	PayoutID        uuid.UUID
	Outcome         Outcome
	ChargeID        string
	Fees            fees.Breakdown
	FailureCategory enums.FailureCategory
}

// Engine runs the settle pipeline for one payout. The scheduled batch and the
// instant flow share it; mode decides reserve use and the instant fee.
type Engine struct {
	tx           txRunner
	payouts      payouts.Repository
	ledger       ledger.Service
	reserve      reserve.Coverer
	fees         *fees.Calculator
	destinations destinationResolver
	gateway      Disburser
	txs          *transactions.Writer
	revenue      *revenue.Writer
	trust        *trust.Writer
	notifier     notifications.Notifier
	metrics      *metrics.SettlementMetrics
	logg         *logger.Logger
	trustBump    int
	callTimeout  time.Duration
	now          func() time.Time
}

func NewEngine(p EngineParams) (*Engine, error) {
	switch {
	case p.TxRunner == nil:
		return nil, errors.New("transaction runner required")
	case p.Payouts == nil:
		return nil, errors.New("payout repository required")
	case p.Ledger == nil:
		return nil, errors.New("ledger service required")
	case p.Fees == nil:
		return nil, errors.New("fee calculator required")
	case p.Destinations == nil:
		return nil, errors.New("destination resolver required")
	case p.Gateway == nil:
		return nil, errors.New("gateway client required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	}
	e := &Engine{
		tx:           p.TxRunner,
		payouts:      p.Payouts,
		ledger:       p.Ledger,
		reserve:      p.Reserve,
		fees:         p.Fees,
		destinations: p.Destinations,
		gateway:      p.Gateway,
		txs:          p.Transactions,
		revenue:      p.Revenue,
		trust:        p.Trust,
		notifier:     p.Notifier,
		metrics:      p.Metrics,
		logg:         p.Logger,
		trustBump:    p.TrustBump,
		callTimeout:  p.CallTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
	if e.txs == nil {
		e.txs = transactions.NewWriter()
	}
	if e.revenue == nil {
		e.revenue = revenue.NewWriter()
	}
	if e.trust == nil {
		e.trust = trust.NewWriter()
	}
	if e.notifier == nil {
		e.notifier = notifications.Nop{}
	}
	if e.callTimeout <= 0 {
		e.callTimeout = defaultCallTimeout
	}
	return e, nil
}

// Settle moves one pending payout through funding, fees, destination, claim,
// dispatch and the post-dispatch writes. The returned error is non-nil for every
// outcome other than completed or processing; Result is always populated.
func (e *Engine) Settle(ctx context.Context, payout models.Payout, mode enums.PayoutMode) (*Result, error) {
	res := &Result{PayoutID: payout.ID, Outcome: OutcomeSkipped}
	payout.Mode = mode
	ctx = e.logg.WithPayoutID(ctx, payout.ID.String())
	ctx = e.logg.WithField(ctx, "mode", mode.String())
	flow := mode.String()

	if payout.Status != enums.PayoutStatusPending {
		e.metrics.IncPayout(flow, string(OutcomeSkipped))
		return res, pkgerrors.New(pkgerrors.CodeStateConflict, "payout already processed")
	}

	if err := e.ensureFunded(ctx, payout, mode); err != nil {
		if mode == enums.PayoutModeInstant || !pkgerrors.IsCode(err, pkgerrors.CodeFunding) {
			return e.reject(ctx, res, payout, err)
		}
		return e.failPending(ctx, res, payout, enums.FailureInsufficientFunds, err)
	}

	var (
		breakdown fees.Breakdown
		err       error
	)
	if mode == enums.PayoutModeInstant {
		breakdown, err = e.fees.ComputeInstant(payout.GrossAmount)
	} else {
		breakdown, err = e.fees.Compute(payout.GrossAmount)
	}
	if err != nil {
		if mode == enums.PayoutModeInstant {
			return e.reject(ctx, res, payout, err)
		}
		return e.failPending(ctx, res, payout, enums.FailureProcessingError, err)
	}
	res.Fees = breakdown

	dest, err := e.destinations.Resolve(ctx, payout.RecipientID)
	if err != nil {
		if mode == enums.PayoutModeInstant || !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			return e.reject(ctx, res, payout, err)
		}
		return e.failPending(ctx, res, payout, enums.FailureNoPaymentMethod, err)
	}

	chargeID := payouts.ChargeIDFor(payout.ID.String())
	res.ChargeID = chargeID
	ctx = e.logg.WithChargeID(ctx, chargeID)
	claimed, err := e.payouts.TransitionStatus(ctx, payout.ID, enums.PayoutStatusPending, enums.PayoutStatusProcessing, map[string]any{
		"charge_id":  chargeID,
		"mode":       mode,
		"net_amount": breakdown.NetAmount,
		"fee_amount": breakdown.TotalFees,
	})
	if err != nil {
		e.metrics.IncPayout(flow, string(OutcomeSkipped))
		return res, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim payout")
	}
	if !claimed {
		e.metrics.IncPayout(flow, string(OutcomeSkipped))
		return res, pkgerrors.New(pkgerrors.CodeStateConflict, "payout already processed")
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	gwResult, dispatchErr := e.gateway.Disburse(callCtx, gateway.DisburseRequest{
		Method:      dest.Method,
		Amount:      breakdown.NetAmount,
		ChargeID:    chargeID,
		Currency:    payout.Currency,
		Destination: dest.Destination,
	})
	cancel()
	if dispatchErr == nil && gwResult == nil {
		dispatchErr = errors.New("gateway returned no result")
	}

	// Nothing after a dispatch may be abandoned because the caller went away.
	ctx = context.WithoutCancel(ctx)
	if dispatchErr != nil {
		return e.failDispatched(ctx, res, payout, enums.FailureGatewayDeclined, dispatchErr, gwResult)
	}
	return e.commit(ctx, res, payout, mode, breakdown, gwResult)
}

// reject returns a failure found before the claim without touching the payout.
// The caller's snapshot may be stale: when another flow has already moved the
// payout out of pending, that is reported instead of the local cause.
func (e *Engine) reject(ctx context.Context, res *Result, payout models.Payout, cause error) (*Result, error) {
	e.metrics.IncPayout(payout.Mode.String(), string(OutcomeSkipped))
	current, err := e.payouts.FindByID(ctx, payout.ID)
	if err != nil {
		return res, cause
	}
	if current.Status != enums.PayoutStatusPending {
		return res, pkgerrors.New(pkgerrors.CodeStateConflict, "payout already processed")
	}
	return res, cause
}

// ensureFunded checks the recipient's escrow and, for scheduled payouts, asks
// the reserve to cover a shortfall. Instant payouts never touch the reserve.
func (e *Engine) ensureFunded(ctx context.Context, payout models.Payout, mode enums.PayoutMode) error {
	balance, err := e.ledger.EscrowBalance(ctx, payout.RecipientID)
	if err != nil {
		return err
	}
	if balance >= payout.GrossAmount {
		return nil
	}
	if mode == enums.PayoutModeInstant {
		return pkgerrors.Wrap(pkgerrors.CodeFunding, ledger.ErrInsufficientBalance, "insufficient escrow balance for instant payout")
	}
	if e.reserve == nil {
		return pkgerrors.New(pkgerrors.CodeFunding, "escrow short and no reserve configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	covered, err := e.reserve.Cover(callCtx, reserve.CoverRequest{
		GroupID:        payout.GroupID,
		UserID:         payout.RecipientID,
		ExpectedAmount: payout.GrossAmount,
		PayoutID:       payout.ID,
	})
	if err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "reserve cover unavailable")
		return pkgerrors.Wrap(pkgerrors.CodeFunding, err, "reserve coverage unavailable")
	}
	if !covered {
		return pkgerrors.New(pkgerrors.CodeFunding, "reserve declined to cover shortfall")
	}
	return nil
}

// failPending ends a payout that never reached the gateway.
func (e *Engine) failPending(ctx context.Context, res *Result, payout models.Payout, category enums.FailureCategory, cause error) (*Result, error) {
	now := e.now()
	reason := cause.Error()
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.payouts.WithTx(tx)
		moved, err := repo.TransitionStatus(ctx, payout.ID, enums.PayoutStatusPending, enums.PayoutStatusFailed, map[string]any{
			"failure_category": category,
			"failure_reason":   reason,
			"processed_at":     now,
		})
		if err != nil {
			return err
		}
		if !moved {
			return errLostRace
		}
		return repo.MarkSchedule(ctx, payout.ID, enums.ScheduleStatusFailed, now)
	})
	if errors.Is(err, errLostRace) {
		e.metrics.IncPayout(payout.Mode.String(), string(OutcomeSkipped))
		return res, pkgerrors.New(pkgerrors.CodeStateConflict, "payout already processed")
	}
	if err != nil {
		e.logg.Error(ctx, "failed to mark payout failed", err)
		e.metrics.IncPayout(payout.Mode.String(), string(OutcomeSkipped))
		return res, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout failed")
	}
	res.Outcome = OutcomeFailed
	res.FailureCategory = category
	e.metrics.IncPayout(payout.Mode.String(), string(OutcomeFailed))
	e.logg.Warn(e.logg.WithFields(ctx, map[string]any{"failure_category": category, "reason": reason}), "payout failed before dispatch")
	e.notifier.Notify(ctx, notifications.PayoutFailed(payout.ID, payout.RecipientID, category))
	return res, cause
}

// failDispatched ends a claimed payout whose dispatch failed. No escrow was debited.
func (e *Engine) failDispatched(ctx context.Context, res *Result, payout models.Payout, category enums.FailureCategory, cause error, gwResult *gateway.Result) (*Result, error) {
	now := e.now()
	updates := map[string]any{
		"failure_category": category,
		"failure_reason":   truncate(cause.Error()),
		"processed_at":     now,
	}
	if gwResult != nil {
		if gwResult.RefID != "" {
			updates["external_reference"] = gwResult.RefID
		}
		if gwResult.TraceID != "" {
			updates["trace_id"] = gwResult.TraceID
		}
	}
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.payouts.WithTx(tx)
		if _, err := repo.TransitionStatus(ctx, payout.ID, enums.PayoutStatusProcessing, enums.PayoutStatusFailed, updates); err != nil {
			return err
		}
		return repo.MarkSchedule(ctx, payout.ID, enums.ScheduleStatusFailed, now)
	})
	if err != nil {
		e.logg.Escalate(ctx, "dispatch failed and payout could not be marked failed", err)
	}
	res.Outcome = OutcomeFailed
	res.FailureCategory = category
	e.metrics.IncPayout(payout.Mode.String(), string(OutcomeFailed))
	e.logg.Warn(e.logg.WithField(ctx, "reason", cause.Error()), "gateway dispatch failed")
	e.notifier.Notify(ctx, notifications.PayoutFailed(payout.ID, payout.RecipientID, category))
	return res, pkgerrors.Wrap(pkgerrors.CodeGateway, cause, "payout dispatch failed")
}

// commit applies the escrow debit behind a compensation intent, then writes the
// outcome, log row, reserve slice, revenue, trust bump and schedule update in one
// transaction. Any failure after the debit compensates and escalates.
func (e *Engine) commit(ctx context.Context, res *Result, payout models.Payout, mode enums.PayoutMode, breakdown fees.Breakdown, gw *gateway.Result) (*Result, error) {
	intent, err := e.ledger.DebitEscrow(ctx, ledger.DebitInput{
		PayoutID: payout.ID,
		UserID:   payout.RecipientID,
		Amount:   payout.GrossAmount,
		ChargeID: res.ChargeID,
	})
	if err != nil {
		e.logg.Escalate(ctx, "escrow debit failed after successful dispatch", err)
		return e.failAfterDispatch(ctx, res, payout, err)
	}

	status := enums.PayoutStatusCompleted
	if gw.IsPending() {
		status = enums.PayoutStatusProcessing
	}
	txType := enums.TransactionTypePayout
	lines := []revenue.Line{{Type: enums.RevenueTypeFee, Amount: breakdown.RevenueAmount()}}
	if mode == enums.PayoutModeInstant {
		txType = enums.TransactionTypeInstantPayout
		lines = append(lines, revenue.Line{Type: enums.RevenueTypeInstantFee, Amount: breakdown.InstantFee})
	}

	now := e.now()
	fields := map[string]any{}
	if gw.RefID != "" {
		fields["external_reference"] = gw.RefID
	}
	if gw.TraceID != "" {
		fields["trace_id"] = gw.TraceID
	}

	var lostTo enums.PayoutStatus
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.payouts.WithTx(tx)
		var moved bool
		var err error
		if status == enums.PayoutStatusProcessing {
			moved, err = repo.UpdateIfStatus(ctx, payout.ID, enums.PayoutStatusProcessing, fields)
		} else {
			fields["processed_at"] = now
			moved, err = repo.TransitionStatus(ctx, payout.ID, enums.PayoutStatusProcessing, enums.PayoutStatusCompleted, fields)
		}
		if err != nil {
			return err
		}
		if !moved {
			// The gateway's callback can land before this write. A confirmed
			// payout still gets its ledger rows; the applied intent keeps them single.
			current, err := repo.FindByID(ctx, payout.ID)
			if err != nil {
				return err
			}
			if current.Status != enums.PayoutStatusCompleted {
				lostTo = current.Status
				return errLostRace
			}
			status = enums.PayoutStatusCompleted
			if _, err := repo.UpdateIfStatus(ctx, payout.ID, enums.PayoutStatusCompleted, fields); err != nil {
				return err
			}
		}
		txStatus := enums.TransactionStatusCompleted
		if status == enums.PayoutStatusProcessing {
			txStatus = enums.TransactionStatusProcessing
		}
		if _, err := e.txs.RecordTx(ctx, tx, transactions.Entry{
			UserID:   payout.RecipientID,
			PayoutID: &payout.ID,
			Type:     txType,
			Amount:   payout.GrossAmount,
			Status:   txStatus,
			ChargeID: res.ChargeID,
			Details: map[string]any{
				"fees":          breakdown,
				"netAmount":     breakdown.NetAmount,
				"gatewayStatus": gw.RawStatus,
				"refId":         gw.RefID,
			},
		}); err != nil {
			return err
		}
		if breakdown.ReserveFee > 0 {
			if _, err := e.ledger.AdjustReserveTx(ctx, tx, ledger.ReserveAdjustment{
				GroupID:  payout.GroupID,
				Amount:   breakdown.ReserveFee,
				Type:     enums.ReserveEntryFeeSlice,
				PayoutID: &payout.ID,
			}); err != nil {
				return err
			}
		}
		if err := e.revenue.RecordTx(ctx, tx, payout.ID, payout.GroupID, payout.Currency, lines...); err != nil {
			return err
		}
		if err := e.trust.BumpTx(ctx, tx, payout.RecipientID, e.trustBump); err != nil {
			return err
		}
		if err := repo.MarkSchedule(ctx, payout.ID, enums.ScheduleStatusProcessed, now); err != nil {
			return err
		}
		return e.ledger.SettleIntentTx(ctx, tx, intent.ID)
	})
	if errors.Is(err, errLostRace) {
		// Only a failed callback can get here. The reconciler owns that path and
		// the sweeper compensates the applied intent.
		return e.handleRaceAfterDebit(ctx, res, payout, lostTo)
	}
	if err != nil {
		e.logg.Escalate(ctx, "post-dispatch ledger write failed", err)
		if _, compErr := e.ledger.Compensate(ctx, intent.ID, truncate(err.Error())); compErr != nil {
			e.logg.Escalate(ctx, "compensating escrow credit failed", compErr)
		}
		return e.failAfterDispatch(ctx, res, payout, err)
	}

	outcome := OutcomeCompleted
	if status == enums.PayoutStatusProcessing {
		outcome = OutcomeProcessing
	}
	res.Outcome = outcome
	e.metrics.IncPayout(mode.String(), string(outcome))
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"net_amount":     breakdown.NetAmount,
		"total_fees":     breakdown.TotalFees,
		"gateway_status": gw.RawStatus,
	}), "payout dispatched")
	e.notifier.Notify(ctx, notifications.PayoutSent(payout.ID, payout.RecipientID, breakdown.NetAmount, payout.Currency, mode == enums.PayoutModeInstant))
	return res, nil
}

func (e *Engine) failAfterDispatch(ctx context.Context, res *Result, payout models.Payout, cause error) (*Result, error) {
	now := e.now()
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.payouts.WithTx(tx)
		if _, err := repo.TransitionStatus(ctx, payout.ID, enums.PayoutStatusProcessing, enums.PayoutStatusFailed, map[string]any{
			"failure_category": enums.FailureProcessingError,
			"failure_reason":   truncate(cause.Error()),
			"processed_at":     now,
		}); err != nil {
			return err
		}
		return repo.MarkSchedule(ctx, payout.ID, enums.ScheduleStatusFailed, now)
	})
	if err != nil {
		e.logg.Escalate(ctx, "could not mark payout failed after ledger error", err)
	}
	res.Outcome = OutcomeFailed
	res.FailureCategory = enums.FailureProcessingError
	e.metrics.IncPayout(payout.Mode.String(), string(OutcomeFailed))
	e.notifier.Notify(ctx, notifications.PayoutFailed(payout.ID, payout.RecipientID, enums.FailureProcessingError))
	return res, pkgerrors.Wrap(pkgerrors.CodeLedger, cause, "payout ledger update failed")
}

func (e *Engine) handleRaceAfterDebit(ctx context.Context, res *Result, payout models.Payout, current enums.PayoutStatus) (*Result, error) {
	e.logg.Escalate(e.logg.WithField(ctx, "status", current.String()), "payout left processing during settlement with escrow debited", nil)
	res.Outcome = OutcomeFailed
	e.metrics.IncPayout(payout.Mode.String(), string(OutcomeFailed))
	return res, pkgerrors.New(pkgerrors.CodeLedger, fmt.Sprintf("payout moved to %s during settlement", current))
}

var errLostRace = errors.New("payout status changed concurrently")

func truncate(s string) string {
	if len(s) > 512 {
		return s[:512]
	}
	return s
}
