package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/angelmondragon/rosca-settlement/pkg/logger"
	"github.com/angelmondragon/rosca-settlement/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

var errLeaseLost = errors.New("cron lock lost mid-cycle")

// Periodic jobs run at most once per Every(). Jobs without it run every cycle.
type Periodic interface {
	Every() time.Duration
}

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Interval is the cycle cadence. Defaults to five minutes.
	Interval time.Duration
	// JobTimeout bounds each job run. Defaults to Interval.
	JobTimeout time.Duration
	Now        func() time.Time
}

// Service runs the registered jobs in order once per cycle. A cycle only runs
// on the replica holding the lock; a failing or panicking job never stops the
// jobs after it.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
		now:        params.Now,
		lastRun:    map[string]time.Time{},
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = s.interval
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"jobs":     s.registry.Names(),
		"interval": s.interval.String(),
	})
	s.logg.Info(ctx, "cron service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes one locked cycle. Only lock problems and cancellation are
// returned; job failures are logged and counted.
func (s *Service) RunOnce(ctx context.Context) error {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lock: %w", err)
	}
	if !held {
		s.metrics.IncSkippedCycle()
		s.logg.Info(ctx, "cron lock held elsewhere; skipping cycle")
		return nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "release cron lock", err)
		}
	}()

	for i, job := range s.registry.Jobs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.due(job) {
			continue
		}
		if i > 0 {
			if err := s.keepLease(ctx); err != nil {
				return err
			}
		}
		s.runJob(ctx, job)
	}
	return nil
}

// keepLease extends the lock between jobs so a long cycle does not outlive it.
func (s *Service) keepLease(ctx context.Context) error {
	r, ok := s.lock.(refresher)
	if !ok {
		return nil
	}
	held, err := r.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh cron lock: %w", err)
	}
	if !held {
		return errLeaseLost
	}
	return nil
}

func (s *Service) due(job Job) bool {
	p, ok := job.(Periodic)
	if !ok || p.Every() <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, seen := s.lastRun[job.Name()]
	return !seen || s.now().Sub(last) >= p.Every()
}

func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	jobCtx := s.logg.WithField(ctx, "job", name)
	started := s.now()

	err := s.invoke(jobCtx, job)
	s.metrics.ObserveRun(name, started, err)

	s.mu.Lock()
	s.lastRun[name] = started
	s.mu.Unlock()

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", s.now().Sub(started).Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron job failed", err)
		return
	}
	s.logg.Debug(jobCtx, "cron job finished")
}

func (s *Service) invoke(ctx context.Context, job Job) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v\n%s", job.Name(), rec, debug.Stack())
		}
	}()
	return job.Run(ctx)
}
