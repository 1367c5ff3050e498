package settlement

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/rosca-settlement/internal/payouts"
	"github.com/angelmondragon/rosca-settlement/pkg/config"
	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
)

const (
	defaultWorkers      = 4
	defaultEntryTimeout = 60 * time.Second
)

type settler interface {
	Settle(ctx context.Context, payout models.Payout, mode enums.PayoutMode) (*Result, error)
}

type BatchParams struct {
	Engine  settler
	Payouts payouts.Repository
	Config  config.SettlementConfig
	Logger  *logger.Logger
	Clock   func() time.Time
}

// BatchResult aggregates one run. Processed counts completed and processing outcomes.
type BatchResult struct {
	Selected  int
	Processed int
	Failed    int
	Skipped   int
}

// Batch settles the day's due schedule entries after the cutoff.
type Batch struct {
	engine       settler
	payouts      payouts.Repository
	logg         *logger.Logger
	cutoff       time.Duration
	loc          *time.Location
	workers      int
	limit        int
	entryTimeout time.Duration
	clock        func() time.Time
}

func NewBatch(p BatchParams) (*Batch, error) {
	if p.Engine == nil {
		return nil, errors.New("settlement engine required")
	}
	if p.Payouts == nil {
		return nil, errors.New("payout repository required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	cutoff, err := p.Config.CutoffClock()
	if err != nil {
		return nil, err
	}
	b := &Batch{
		engine:       p.Engine,
		payouts:      p.Payouts,
		logg:         p.Logger,
		cutoff:       cutoff,
		loc:          p.Config.Location(),
		workers:      p.Config.Workers,
		limit:        p.Config.BatchLimit,
		entryTimeout: p.Config.EntryTimeout,
		clock:        p.Clock,
	}
	if b.workers <= 0 {
		b.workers = defaultWorkers
	}
	if b.entryTimeout <= 0 {
		b.entryTimeout = defaultEntryTimeout
	}
	if b.clock == nil {
		b.clock = time.Now
	}
	return b, nil
}

// Run never fails because of a single entry. The error is reserved for selection.
func (b *Batch) Run(ctx context.Context) (BatchResult, error) {
	var result BatchResult

	now := b.clock().In(b.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, b.loc)
	if now.Sub(midnight) < b.cutoff {
		b.logg.Debug(ctx, "settlement cutoff not reached")
		return result, nil
	}

	// scheduled_date holds the calendar date at UTC midnight.
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	cutoff := midnight.Add(b.cutoff).Format("15:04")

	due, err := b.payouts.ListDue(ctx, dayStart, dayEnd, cutoff, b.limit)
	if err != nil {
		return result, err
	}
	result.Selected = len(due)
	if len(due) == 0 {
		return result, nil
	}

	var processed, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for _, entry := range due {
		payout := entry.Payout
		g.Go(func() error {
			entryCtx, cancel := context.WithTimeout(gctx, b.entryTimeout)
			defer cancel()

			res, err := b.engine.Settle(entryCtx, payout, enums.PayoutModeScheduled)
			outcome := OutcomeSkipped
			if res != nil {
				outcome = res.Outcome
			}
			switch outcome {
			case OutcomeCompleted, OutcomeProcessing:
				processed.Add(1)
			case OutcomeFailed:
				failed.Add(1)
			default:
				skipped.Add(1)
			}
			if err != nil {
				b.logg.Warn(b.logg.WithFields(entryCtx, map[string]any{
					"payout_id": payout.ID.String(),
					"outcome":   string(outcome),
					"error":     err.Error(),
				}), "settlement entry did not complete")
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Processed = int(processed.Load())
	result.Failed = int(failed.Load())
	result.Skipped = int(skipped.Load())
	b.logg.Info(b.logg.WithFields(ctx, map[string]any{
		"selected":  result.Selected,
		"processed": result.Processed,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	}), "settlement batch finished")
	return result, nil
}
