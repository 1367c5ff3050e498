package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	gatewaywebhook "github.com/angelmondragon/rosca-settlement/internal/webhooks/gateway"
	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/gateway"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
)

const (
	defaultPollMinAge = 30 * time.Minute
	defaultPollLimit  = 100
	defaultPollCall   = 15 * time.Second
)

type processingLister interface {
	ListProcessingBefore(ctx context.Context, before time.Time, limit int) ([]models.Payout, error)
}

type statusChecker interface {
	Status(ctx context.Context, chargeID string) (*gateway.Result, error)
}

type payoutReconciler interface {
	ApplyPayoutStatus(ctx context.Context, update gatewaywebhook.PayoutUpdate) (bool, error)
}

type PayoutPollJobParams struct {
	Logger      *logger.Logger
	Payouts     processingLister
	Gateway     statusChecker
	Reconciler  payoutReconciler
	MinAge      time.Duration
	Limit       int
	CallTimeout time.Duration
}

// NewPayoutPollJob asks the gateway about payouts stuck in processing and
// applies terminal answers through the webhook reconciler. Payouts the gateway
// still reports as pending are left alone.
func NewPayoutPollJob(params PayoutPollJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	job := &payoutPollJob{
		logg:        params.Logger,
		payouts:     params.Payouts,
		gateway:     params.Gateway,
		reconciler:  params.Reconciler,
		minAge:      params.MinAge,
		limit:       params.Limit,
		callTimeout: params.CallTimeout,
		now:         time.Now,
	}
	if job.minAge <= 0 {
		job.minAge = defaultPollMinAge
	}
	if job.limit <= 0 {
		job.limit = defaultPollLimit
	}
	if job.callTimeout <= 0 {
		job.callTimeout = defaultPollCall
	}
	return job, nil
}

type payoutPollJob struct {
	logg        *logger.Logger
	payouts     processingLister
	gateway     statusChecker
	reconciler  payoutReconciler
	minAge      time.Duration
	limit       int
	callTimeout time.Duration
	now         func() time.Time
}

func (j *payoutPollJob) Name() string { return "payout-status-poll" }

func (j *payoutPollJob) Run(ctx context.Context) error {
	stuck, err := j.payouts.ListProcessingBefore(ctx, j.now().UTC().Add(-j.minAge), j.limit)
	if err != nil {
		return fmt.Errorf("list processing payouts: %w", err)
	}

	var errs []error
	applied, pending := 0, 0
	for _, payout := range stuck {
		if payout.ChargeID == nil {
			continue
		}
		chargeID := *payout.ChargeID
		callCtx, cancel := context.WithTimeout(ctx, j.callTimeout)
		res, err := j.gateway.Status(callCtx, chargeID)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("status %s: %w", chargeID, err))
			continue
		}
		if res.IsPending() {
			pending++
			continue
		}
		changed, err := j.reconciler.ApplyPayoutStatus(ctx, gatewaywebhook.PayoutUpdate{
			ChargeID: chargeID,
			Status:   res.Status,
			RefID:    res.RefID,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("apply %s: %w", chargeID, err))
			continue
		}
		if changed {
			applied++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"checked":       len(stuck),
		"applied":       applied,
		"still_pending": pending,
		"errors":        len(errs),
	}), "payout status poll complete")
	return multierr.Combine(errs...)
}
