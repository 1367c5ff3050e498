package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/internal/ledger"
	"github.com/angelmondragon/rosca-settlement/internal/transactions"
	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
	"github.com/angelmondragon/rosca-settlement/pkg/pagination"
)

// Service exposes payout reads and operator interventions.
type Service interface {
	Get(ctx context.Context, requesterID, payoutID uuid.UUID) (*PayoutDTO, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*AdminPayoutList, error)
	Reverse(ctx context.Context, payoutID uuid.UUID, reason string) (*ReversalResult, error)
	Retry(ctx context.Context, payoutID uuid.UUID) (*AdminPayoutDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo         Repository
	Ledger       ledger.Service
	Transactions *transactions.Writer
	TxRunner     txRunner
	Logger       *logger.Logger
}

type service struct {
	repo   Repository
	ledger ledger.Service
	txs    *transactions.Writer
	tx     txRunner
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout repo required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	txs := params.Transactions
	if txs == nil {
		txs = transactions.NewWriter()
	}
	return &service{
		repo:   params.Repo,
		ledger: params.Ledger,
		txs:    txs,
		tx:     params.TxRunner,
		logg:   params.Logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) load(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.FindByID(ctx, payoutID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return payout, nil
}

func (s *service) Get(ctx context.Context, requesterID, payoutID uuid.UUID) (*PayoutDTO, error) {
	payout, err := s.load(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.RecipientID != requesterID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payout belongs to another member")
	}
	dto := toDTO(*payout)
	return &dto, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, filters ListFilters) (*AdminPayoutList, error) {
	rows, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "list payouts")
	}
	page, next := pagination.Trim(rows, params.Limit, func(p models.Payout) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	out := &AdminPayoutList{Payouts: make([]AdminPayoutDTO, 0, len(page)), NextCursor: next}
	for _, p := range page {
		out.Payouts = append(out.Payouts, toAdminDTO(p))
	}
	return out, nil
}

// Reverse credits back the escrow debit of a failed payout and logs a reversal row.
func (s *service) Reverse(ctx context.Context, payoutID uuid.UUID, reason string) (*ReversalResult, error) {
	payout, err := s.load(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != enums.PayoutStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only failed payouts can be reversed")
	}
	intent, err := s.ledger.IntentForPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "operator reversal"
	}

	result := &ReversalResult{PayoutID: payoutID, Amount: intent.Amount}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		done, err := s.ledger.CompensateTx(ctx, tx, intent.ID, reason)
		if err != nil {
			return err
		}
		if !done {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "escrow debit already reversed or never applied")
		}
		row, err := s.txs.RecordTx(ctx, tx, transactions.Entry{
			UserID:   payout.RecipientID,
			PayoutID: &payout.ID,
			Type:     enums.TransactionTypeReversal,
			Amount:   intent.Amount,
			Status:   enums.TransactionStatusCompleted,
			ChargeID: intent.ChargeID,
			Details:  map[string]string{"reason": reason},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeLedger, err, "record reversal")
		}
		result.TransactionID = row.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithPayoutID(ctx, payoutID.String())
		logCtx = s.logg.WithField(logCtx, "amount", intent.Amount)
		s.logg.Info(logCtx, "payout escrow reversed")
	}
	return result, nil
}

// Retry schedules a new pending payout for a failed one. The failed row keeps
// its id and history; the new row points back through retry_of_id.
func (s *service) Retry(ctx context.Context, payoutID uuid.UUID) (*AdminPayoutDTO, error) {
	original, err := s.load(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if original.Status != enums.PayoutStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only failed payouts can be retried")
	}
	intent, err := s.ledger.IntentForPayout(ctx, payoutID)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	if intent != nil && (intent.Status == enums.CompensationStatusApplied || intent.Status == enums.CompensationStatusSettled) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reverse the escrow debit before retrying")
	}
	active, err := s.repo.CountActiveRetries(ctx, payoutID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check retries")
	}
	if active > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payout already has an active retry")
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	retry := &models.Payout{
		ID:            uuid.New(),
		GroupID:       original.GroupID,
		RecipientID:   original.RecipientID,
		CycleNumber:   original.CycleNumber,
		GrossAmount:   original.GrossAmount,
		Currency:      original.Currency,
		Status:        enums.PayoutStatusPending,
		Mode:          enums.PayoutModeScheduled,
		ScheduledDate: today,
		RetryOfID:     &original.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, retry); err != nil {
			return err
		}
		return repo.CreateSchedule(ctx, &models.PayoutScheduleEntry{
			ID:            uuid.New(),
			PayoutID:      retry.ID,
			GroupID:       retry.GroupID,
			UserID:        retry.RecipientID,
			Amount:        retry.GrossAmount,
			ScheduledDate: today,
			PayoutTime:    "00:00",
			Status:        enums.ScheduleStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create retry payout")
	}
	dto := toAdminDTO(*retry)
	return &dto, nil
}
