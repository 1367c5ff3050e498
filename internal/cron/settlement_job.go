package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/rosca-settlement/internal/settlement"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
)

type batchRunner interface {
	Run(ctx context.Context) (settlement.BatchResult, error)
}

type SettlementJobParams struct {
	Logger *logger.Logger
	Batch  batchRunner
}

// NewSettlementJob runs the scheduled payout batch. Before the cutoff each run is a no-op.
func NewSettlementJob(params SettlementJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Batch == nil {
		return nil, fmt.Errorf("settlement batch required")
	}
	return &settlementJob{logg: params.Logger, batch: params.Batch}, nil
}

type settlementJob struct {
	logg  *logger.Logger
	batch batchRunner
}

func (j *settlementJob) Name() string { return "settlement" }

func (j *settlementJob) Run(ctx context.Context) error {
	res, err := j.batch.Run(ctx)
	if err != nil {
		return fmt.Errorf("settlement batch: %w", err)
	}
	if res.Selected > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"selected":  res.Selected,
			"processed": res.Processed,
			"failed":    res.Failed,
			"skipped":   res.Skipped,
		}), "settlement job complete")
	}
	return nil
}
