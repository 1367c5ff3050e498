package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/internal/ledger"
	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
)

const (
	defaultSweepMinAge = 10 * time.Minute
	defaultSweepLimit  = 200
)

type payoutLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
}

type CompensationSweepJobParams struct {
	Logger  *logger.Logger
	DB      txRunner
	Ledger  ledger.Service
	Payouts payoutLoader
	MinAge  time.Duration
	Limit   int
}

// NewCompensationSweepJob closes compensation intents left open by a crash or
// a failed post-dispatch write:
//   - applied intents whose payout failed are compensated (escrow credited back)
//   - applied intents whose payout completed are settled
//   - pending intents past MinAge never moved money and are marked failed
func NewCompensationSweepJob(params CompensationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	job := &compensationSweepJob{
		logg:    params.Logger,
		db:      params.DB,
		ledger:  params.Ledger,
		payouts: params.Payouts,
		minAge:  params.MinAge,
		limit:   params.Limit,
		now:     time.Now,
	}
	if job.minAge <= 0 {
		job.minAge = defaultSweepMinAge
	}
	if job.limit <= 0 {
		job.limit = defaultSweepLimit
	}
	return job, nil
}

type compensationSweepJob struct {
	logg    *logger.Logger
	db      txRunner
	ledger  ledger.Service
	payouts payoutLoader
	minAge  time.Duration
	limit   int
	now     func() time.Time
}

func (j *compensationSweepJob) Name() string { return "compensation-sweep" }

func (j *compensationSweepJob) Run(ctx context.Context) error {
	olderThan := j.now().UTC().Add(-j.minAge)
	var errs []error
	counts := map[string]int{}

	applied, err := j.ledger.ListStaleIntents(ctx, enums.CompensationStatusApplied, olderThan, j.limit)
	if err != nil {
		return fmt.Errorf("list applied intents: %w", err)
	}
	for _, intent := range applied {
		outcome, err := j.resolveApplied(ctx, intent)
		if err != nil {
			errs = append(errs, fmt.Errorf("intent %s: %w", intent.ID, err))
			continue
		}
		counts[outcome]++
	}

	pending, err := j.ledger.ListStaleIntents(ctx, enums.CompensationStatusPending, olderThan, j.limit)
	if err != nil {
		errs = append(errs, fmt.Errorf("list pending intents: %w", err))
	}
	for _, intent := range pending {
		failed, err := j.ledger.FailIntent(ctx, intent.ID, "stale pending intent closed by sweeper")
		if err != nil {
			errs = append(errs, fmt.Errorf("intent %s: %w", intent.ID, err))
			continue
		}
		if failed {
			counts["failed"]++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"compensated": counts["compensated"],
		"settled":     counts["settled"],
		"failed":      counts["failed"],
		"left_open":   counts["open"],
		"errors":      len(errs),
	}), "compensation sweep complete")
	return multierr.Combine(errs...)
}

func (j *compensationSweepJob) resolveApplied(ctx context.Context, intent models.CompensationIntent) (string, error) {
	payout, err := j.payouts.FindByID(ctx, intent.PayoutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			j.logg.Escalate(j.logg.WithPayoutID(ctx, intent.PayoutID.String()), "applied compensation intent has no payout", nil)
			return "open", nil
		}
		return "", err
	}
	switch payout.Status {
	case enums.PayoutStatusFailed:
		ok, err := j.ledger.Compensate(ctx, intent.ID, "payout failed after escrow debit")
		if err != nil {
			return "", err
		}
		if ok {
			j.logg.Warn(j.logg.WithPayoutID(ctx, payout.ID.String()), "escrow debit compensated by sweeper")
			return "compensated", nil
		}
		return "open", nil
	case enums.PayoutStatusCompleted:
		if err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			return j.ledger.SettleIntentTx(ctx, tx, intent.ID)
		}); err != nil {
			return "", err
		}
		return "settled", nil
	default:
		return "open", nil
	}
}
