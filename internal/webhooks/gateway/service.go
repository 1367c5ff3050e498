// Package gatewaywebhook reconciles asynchronous gateway callbacks against
// payouts and contributions.
package gatewaywebhook

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/internal/contributions"
	"github.com/angelmondragon/rosca-settlement/internal/ledger"
	"github.com/angelmondragon/rosca-settlement/internal/memberships"
	"github.com/angelmondragon/rosca-settlement/internal/notifications"
	"github.com/angelmondragon/rosca-settlement/internal/payouts"
	"github.com/angelmondragon/rosca-settlement/internal/transactions"
	"github.com/angelmondragon/rosca-settlement/internal/trust"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
)

var (
	payoutTxTypes       = []enums.TransactionType{enums.TransactionTypePayout, enums.TransactionTypeInstantPayout}
	contributionTxTypes = []enums.TransactionType{enums.TransactionTypeContribution}
	openContribution    = []enums.ContributionStatus{enums.ContributionStatusPending, enums.ContributionStatusProcessing}
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	TxRunner      txRunner
	Payouts       payouts.Repository
	Contributions contributions.Repository
	Memberships   *memberships.Repository
	Ledger        ledger.Service
	Transactions  *transactions.Writer
	Trust         *trust.Writer
	Notifier      notifications.Notifier
	Logger        *logger.Logger
	TrustBump     int
}

type Service struct {
	tx            txRunner
	payouts       payouts.Repository
	contributions contributions.Repository
	memberships   *memberships.Repository
	ledger        ledger.Service
	txs           *transactions.Writer
	trust         *trust.Writer
	notifier      notifications.Notifier
	logg          *logger.Logger
	trustBump     int
	now           func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Payouts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout repo required")
	}
	if params.Contributions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "contribution repo required")
	}
	if params.Memberships == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "membership repo required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	s := &Service{
		tx:            params.TxRunner,
		payouts:       params.Payouts,
		contributions: params.Contributions,
		memberships:   params.Memberships,
		ledger:        params.Ledger,
		txs:           params.Transactions,
		trust:         params.Trust,
		notifier:      params.Notifier,
		logg:          params.Logger,
		trustBump:     params.TrustBump,
		now:           func() time.Time { return time.Now().UTC() },
	}
	if s.txs == nil {
		s.txs = transactions.NewWriter()
	}
	if s.trust == nil {
		s.trust = trust.NewWriter()
	}
	if s.notifier == nil {
		s.notifier = notifications.Nop{}
	}
	return s, nil
}

// PayoutUpdate is a gateway verdict for one payout charge.
type PayoutUpdate struct {
	ChargeID      string
	Status        enums.PayoutStatus
	RefID         string
	FailureReason string
}

func (s *Service) HandleEvent(ctx context.Context, evt *Event) error {
	if evt == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event required")
	}
	txn := evt.Data.Transaction
	ctx = s.logg.WithChargeID(ctx, txn.ChargeID)
	ctx = s.logg.WithFields(ctx, map[string]any{"event_type": evt.EventType, "gateway_status": txn.Status})

	switch evt.Type() {
	case enums.GatewayEventPayout:
		_, err := s.ApplyPayoutStatus(ctx, PayoutUpdate{
			ChargeID:      txn.ChargeID,
			Status:        evt.MappedStatus(),
			RefID:         txn.RefID,
			FailureReason: txn.FailureReason,
		})
		return err
	case enums.GatewayEventChargePayment:
		return s.applyContribution(ctx, txn, evt.MappedStatus())
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown webhook event type")
	}
}

// ApplyPayoutStatus moves a processing payout to the terminal status reported by
// the gateway. It returns true only when this call changed the payout.
func (s *Service) ApplyPayoutStatus(ctx context.Context, update PayoutUpdate) (bool, error) {
	if update.Status == enums.PayoutStatusProcessing || update.Status == enums.PayoutStatusPending {
		s.logg.Debug(ctx, "non-terminal payout status ignored")
		return false, nil
	}
	payout, err := s.payouts.FindByChargeID(ctx, update.ChargeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found for charge")
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	ctx = s.logg.WithPayoutID(ctx, payout.ID.String())

	if payout.Status == update.Status {
		return false, nil
	}
	if payout.Status.IsTerminal() {
		s.logg.Warn(s.logg.WithField(ctx, "stored_status", payout.Status.String()), "conflicting terminal payout callback ignored")
		return false, nil
	}

	now := s.now()
	updates := map[string]any{"processed_at": now}
	if update.RefID != "" {
		updates["external_reference"] = update.RefID
	}
	txStatus := enums.TransactionStatusCompleted
	if update.Status == enums.PayoutStatusFailed {
		txStatus = enums.TransactionStatusFailed
		reason := update.FailureReason
		if reason == "" {
			reason = "gateway reported failure"
		}
		if len(reason) > 512 {
			reason = reason[:512]
		}
		updates["failure_category"] = enums.FailureGatewayDeclined
		updates["failure_reason"] = reason
	}

	var moved bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		moved, err = s.payouts.WithTx(tx).TransitionStatus(ctx, payout.ID, enums.PayoutStatusProcessing, update.Status, updates)
		if err != nil || !moved {
			return err
		}
		_, err = s.txs.SetStatusByChargeTx(ctx, tx, update.ChargeID, payoutTxTypes, txStatus)
		return err
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile payout")
	}
	if !moved {
		s.logg.Info(ctx, "payout changed concurrently; callback is a no-op")
		return false, nil
	}

	if update.Status == enums.PayoutStatusFailed {
		s.logg.Warn(ctx, "gateway reported payout failure after dispatch; escrow stays debited pending review")
		s.notifier.Notify(ctx, notifications.PayoutFailed(payout.ID, payout.RecipientID, enums.FailureGatewayDeclined))
	} else {
		s.logg.Info(ctx, "payout confirmed by gateway")
	}
	return true, nil
}

func (s *Service) applyContribution(ctx context.Context, txn EventTransaction, status enums.PayoutStatus) error {
	if status == enums.PayoutStatusProcessing {
		s.logg.Debug(ctx, "non-terminal contribution status ignored")
		return nil
	}
	contribution, err := s.contributions.FindByChargeID(ctx, txn.ChargeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "contribution not found for charge")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contribution")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"contribution_id": contribution.ID.String()})
	if contribution.Status.IsTerminal() {
		if string(contribution.Status) != string(status) {
			s.logg.Warn(s.logg.WithField(ctx, "stored_status", contribution.Status.String()), "conflicting terminal contribution callback ignored")
		}
		return nil
	}

	now := s.now()
	var moved bool
	if status == enums.PayoutStatusCompleted {
		updates := map[string]any{"completed_at": now}
		if txn.RefID != "" {
			updates["external_reference"] = txn.RefID
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			moved, err = s.contributions.WithTx(tx).TransitionStatus(ctx, txn.ChargeID, openContribution, enums.ContributionStatusCompleted, updates)
			if err != nil || !moved {
				return err
			}
			if _, err := s.ledger.AdjustEscrowTx(ctx, tx, contribution.UserID, contribution.Amount); err != nil {
				return err
			}
			if err := s.memberships.WithTx(tx).MarkContributed(ctx, contribution.GroupID, contribution.UserID, now); err != nil {
				return err
			}
			if err := s.trust.BumpTx(ctx, tx, contribution.UserID, s.trustBump); err != nil {
				return err
			}
			_, err = s.txs.SetStatusByChargeTx(ctx, tx, txn.ChargeID, contributionTxTypes, enums.TransactionStatusCompleted)
			return err
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeLedger, err, "reconcile contribution")
		}
		if moved {
			s.logg.Info(ctx, "contribution confirmed; escrow credited")
		}
		return nil
	}

	reason := txn.FailureReason
	if reason == "" {
		reason = "gateway reported failure"
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		moved, err = s.contributions.WithTx(tx).TransitionStatus(ctx, txn.ChargeID, openContribution, enums.ContributionStatusFailed, map[string]any{"failure_reason": reason})
		if err != nil || !moved {
			return err
		}
		_, err = s.txs.SetStatusByChargeTx(ctx, tx, txn.ChargeID, contributionTxTypes, enums.TransactionStatusFailed)
		return err
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile contribution")
	}
	if moved {
		s.notifier.Notify(ctx, notifications.ContributionFailed(contribution.ID, contribution.UserID))
	}
	return nil
}
