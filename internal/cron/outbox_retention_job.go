package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/pkg/logger"
)

const (
	defaultOutboxRetention   = 30 * 24 * time.Hour
	defaultOutboxMaxAttempts = 10
	outboxDeleteBatch        = 500
	outboxRetentionEvery     = time.Hour
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
	DeleteExhaustedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPruner
	// RetentionDays defaults to 30.
	RetentionDays int
	// MaxAttempts is the publisher's attempt limit. Undelivered rows at or
	// above it are dead and pruned on the same schedule as delivered ones.
	MaxAttempts int
	BatchSize   int
}

// OutboxRetentionJob prunes delivered and dead outbox rows past retention. It
// deletes in short transactions so a large backlog never holds one long lock.
type OutboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxPruner
	retention   time.Duration
	maxAttempts int
	batch       int
	now         func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (*OutboxRetentionJob, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &OutboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		retention:   time.Duration(params.RetentionDays) * 24 * time.Hour,
		maxAttempts: params.MaxAttempts,
		batch:       params.BatchSize,
		now:         time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.maxAttempts <= 0 {
		job.maxAttempts = defaultOutboxMaxAttempts
	}
	if job.batch <= 0 {
		job.batch = outboxDeleteBatch
	}
	return job, nil
}

func (j *OutboxRetentionJob) Name() string { return "outbox-retention" }

func (j *OutboxRetentionJob) Every() time.Duration { return outboxRetentionEvery }

func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	published, err := j.drain(ctx, func(tx *gorm.DB) (int64, error) {
		return j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.batch)
	})
	if err != nil {
		return fmt.Errorf("prune published outbox rows: %w", err)
	}
	exhausted, err := j.drain(ctx, func(tx *gorm.DB) (int64, error) {
		return j.repo.DeleteExhaustedBefore(ctx, tx, cutoff, j.maxAttempts, j.batch)
	})
	if err != nil {
		return fmt.Errorf("prune exhausted outbox rows: %w", err)
	}

	if published+exhausted > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff":            cutoff.Format(time.RFC3339),
			"published_deleted": published,
			"exhausted_deleted": exhausted,
		}), "outbox retention pruned rows")
	}
	return nil
}

// drain repeats one batched delete until a batch comes back short.
func (j *OutboxRetentionJob) drain(ctx context.Context, deleteBatch func(tx *gorm.DB) (int64, error)) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = deleteBatch(tx)
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(j.batch) {
			return total, nil
		}
	}
}
