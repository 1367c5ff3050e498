package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
)

var (
	// ErrInsufficientBalance means a debit would have taken a balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccountNotFound     = errors.New("account not found")
	ErrIntentNotApplied    = errors.New("compensation intent is not applied")
)

// Service is the single writer of escrow and reserve balances.
type Service interface {
	AdjustEscrow(ctx context.Context, userID uuid.UUID, delta int64) (int64, error)
	AdjustEscrowTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID, delta int64) (int64, error)
	EscrowBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	EscrowBalanceTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
	AdjustReserveTx(ctx context.Context, tx *gorm.DB, input ReserveAdjustment) (*models.ReserveWalletEntry, error)
	ReserveBalance(ctx context.Context, groupID uuid.UUID) (int64, error)
	DebitEscrow(ctx context.Context, input DebitInput) (*models.CompensationIntent, error)
	SettleIntentTx(ctx context.Context, tx *gorm.DB, intentID uuid.UUID) error
	Compensate(ctx context.Context, intentID uuid.UUID, reason string) (bool, error)
	CompensateTx(ctx context.Context, tx *gorm.DB, intentID uuid.UUID, reason string) (bool, error)
	FailIntent(ctx context.Context, intentID uuid.UUID, reason string) (bool, error)
	IntentForPayout(ctx context.Context, payoutID uuid.UUID) (*models.CompensationIntent, error)
	ListStaleIntents(ctx context.Context, status enums.CompensationStatus, olderThan time.Time, limit int) ([]models.CompensationIntent, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ReserveAdjustment moves Amount (signed) in or out of a group's reserve wallet.
type ReserveAdjustment struct {
	GroupID  uuid.UUID
	Amount   int64
	Type     enums.ReserveEntryType
	PayoutID *uuid.UUID
	UserID   *uuid.UUID
}

// DebitInput describes an escrow debit backed by a compensation intent.
type DebitInput struct {
	PayoutID uuid.UUID
	UserID   uuid.UUID
	Amount   int64
	ChargeID string
}

type service struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

// NewService wires the ledger with its repository and transaction runner.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) AdjustEscrow(ctx context.Context, userID uuid.UUID, delta int64) (int64, error) {
	var balance int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		balance, err = s.AdjustEscrowTx(ctx, tx, userID, delta)
		return err
	})
	return balance, err
}

// AdjustEscrowTx applies delta to the user's escrow inside tx and returns the new balance.
// A rejected debit leaves the row untouched.
func (s *service) AdjustEscrowTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID, delta int64) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	repo := s.repo.WithTx(tx)
	ok, err := repo.AddEscrow(ctx, userID, delta, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeLedger, err, "adjust escrow")
	}
	balance, found, err := repo.EscrowBalance(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeLedger, err, "read escrow balance")
	}
	if !found {
		return 0, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrAccountNotFound, "user not found")
	}
	if !ok {
		return balance, pkgerrors.Wrap(pkgerrors.CodeFunding, ErrInsufficientBalance, "insufficient escrow balance")
	}
	return balance, nil
}

func (s *service) EscrowBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.EscrowBalanceTx(ctx, nil, userID)
}

func (s *service) EscrowBalanceTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	balance, found, err := s.repo.WithTx(tx).EscrowBalance(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read escrow balance")
	}
	if !found {
		return 0, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrAccountNotFound, "user not found")
	}
	return balance, nil
}

// AdjustReserveTx credits or debits a group reserve wallet and appends the entry.
// Credits create the wallet on first use.
func (s *service) AdjustReserveTx(ctx context.Context, tx *gorm.DB, input ReserveAdjustment) (*models.ReserveWalletEntry, error) {
	if input.GroupID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id is required")
	}
	if input.Amount == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reserve adjustment must be non-zero")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid reserve entry type")
	}
	repo := s.repo.WithTx(tx)
	now := s.now()
	if input.Amount > 0 {
		if err := repo.EnsureReserveWallet(ctx, input.GroupID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeLedger, err, "create reserve wallet")
		}
	}
	ok, err := repo.AddReserve(ctx, input.GroupID, input.Amount, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLedger, err, "adjust reserve")
	}
	if !ok {
		return nil, pkgerrors.Wrap(pkgerrors.CodeFunding, ErrInsufficientBalance, "insufficient reserve balance")
	}
	wallet, err := repo.ReserveWallet(ctx, input.GroupID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLedger, err, "read reserve wallet")
	}
	entry := &models.ReserveWalletEntry{
		ID:           uuid.New(),
		WalletID:     wallet.ID,
		GroupID:      input.GroupID,
		PayoutID:     input.PayoutID,
		UserID:       input.UserID,
		Type:         input.Type,
		Amount:       input.Amount,
		BalanceAfter: wallet.Balance,
		CreatedAt:    now,
	}
	if err := repo.CreateReserveEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLedger, err, "append reserve entry")
	}
	return entry, nil
}

func (s *service) ReserveBalance(ctx context.Context, groupID uuid.UUID) (int64, error) {
	wallet, err := s.repo.ReserveWallet(ctx, groupID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read reserve wallet")
	}
	return wallet.Balance, nil
}

// DebitEscrow records a pending intent, then debits escrow and marks the intent
// applied in a second transaction. A rejected debit closes the intent as failed.
func (s *service) DebitEscrow(ctx context.Context, input DebitInput) (*models.CompensationIntent, error) {
	if input.PayoutID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout and user ids are required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debit amount must be positive")
	}
	now := s.now()
	intent := &models.CompensationIntent{
		ID:        uuid.New(),
		PayoutID:  input.PayoutID,
		UserID:    input.UserID,
		Amount:    input.Amount,
		ChargeID:  input.ChargeID,
		Status:    enums.CompensationStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateIntent(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLedger, err, "record compensation intent")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.AdjustEscrowTx(ctx, tx, input.UserID, -input.Amount); err != nil {
			return err
		}
		ok, err := s.repo.WithTx(tx).TransitionIntent(ctx, intent.ID,
			[]enums.CompensationStatus{enums.CompensationStatusPending},
			enums.CompensationStatusApplied, nil, s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeLedger, err, "apply compensation intent")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeLedger, "compensation intent changed before apply")
		}
		return nil
	})
	if err != nil {
		if _, failErr := s.FailIntent(ctx, intent.ID, err.Error()); failErr != nil {
			return intent, errors.Join(err, failErr)
		}
		intent.Status = enums.CompensationStatusFailed
		return intent, err
	}
	intent.Status = enums.CompensationStatusApplied
	return intent, nil
}

func (s *service) SettleIntentTx(ctx context.Context, tx *gorm.DB, intentID uuid.UUID) error {
	ok, err := s.repo.WithTx(tx).TransitionIntent(ctx, intentID,
		[]enums.CompensationStatus{enums.CompensationStatusApplied},
		enums.CompensationStatusSettled, nil, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeLedger, err, "settle compensation intent")
	}
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeLedger, ErrIntentNotApplied, "settle compensation intent")
	}
	return nil
}

// Compensate credits the intent's amount back to escrow and marks it compensated.
// Only applied or settled intents move; repeat calls return false without side effects.
func (s *service) Compensate(ctx context.Context, intentID uuid.UUID, reason string) (bool, error) {
	var compensated bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		compensated, err = s.CompensateTx(ctx, tx, intentID, reason)
		return err
	})
	return compensated, err
}

func (s *service) CompensateTx(ctx context.Context, tx *gorm.DB, intentID uuid.UUID, reason string) (bool, error) {
	repo := s.repo.WithTx(tx)
	intent, err := repo.FindIntent(ctx, intentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "compensation intent not found")
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeLedger, err, "load compensation intent")
	}
	reasonPtr := optionalReason(reason)
	ok, err := repo.TransitionIntent(ctx, intentID,
		[]enums.CompensationStatus{enums.CompensationStatusApplied, enums.CompensationStatusSettled},
		enums.CompensationStatusCompensated, reasonPtr, s.now())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeLedger, err, "compensate intent")
	}
	if !ok {
		return false, nil
	}
	if _, err := s.AdjustEscrowTx(ctx, tx, intent.UserID, intent.Amount); err != nil {
		return false, err
	}
	return true, nil
}

// FailIntent closes a pending intent whose debit never happened.
func (s *service) FailIntent(ctx context.Context, intentID uuid.UUID, reason string) (bool, error) {
	ok, err := s.repo.TransitionIntent(ctx, intentID,
		[]enums.CompensationStatus{enums.CompensationStatusPending},
		enums.CompensationStatusFailed, optionalReason(reason), s.now())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeLedger, err, "fail compensation intent")
	}
	return ok, nil
}

func (s *service) IntentForPayout(ctx context.Context, payoutID uuid.UUID) (*models.CompensationIntent, error) {
	intent, err := s.repo.LatestIntentForPayout(ctx, payoutID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no escrow debit recorded for payout")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load compensation intent")
	}
	return intent, nil
}

func (s *service) ListStaleIntents(ctx context.Context, status enums.CompensationStatus, olderThan time.Time, limit int) ([]models.CompensationIntent, error) {
	intents, err := s.repo.ListIntents(ctx, status, olderThan.UTC(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list compensation intents")
	}
	return intents, nil
}

func optionalReason(reason string) *string {
	if reason == "" {
		return nil
	}
	if len(reason) > 512 {
		reason = reason[:512]
	}
	return &reason
}
