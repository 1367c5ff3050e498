package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/rosca-settlement/pkg/bigquery"
	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
)

const (
	defaultExportWindow = 2 * time.Hour
	defaultExportLimit  = 1000
)

type terminalLister interface {
	ListTerminalBetween(ctx context.Context, from, to time.Time, limit int) ([]models.Payout, error)
}

type settlementSink interface {
	InsertSettlements(ctx context.Context, rows []bigquery.SettlementRow) error
}

type SettlementExportJobParams struct {
	Logger  *logger.Logger
	Payouts terminalLister
	Sink    settlementSink
	// Window is how far back each run looks. It should exceed the cron interval
	// so consecutive runs overlap.
	Window time.Duration
	Limit  int
}

// NewSettlementExportJob streams recently settled payouts to the reporting warehouse.
func NewSettlementExportJob(params SettlementExportJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if params.Sink == nil {
		return nil, fmt.Errorf("settlement sink required")
	}
	job := &settlementExportJob{
		logg:    params.Logger,
		payouts: params.Payouts,
		sink:    params.Sink,
		window:  params.Window,
		limit:   params.Limit,
		now:     time.Now,
	}
	if job.window <= 0 {
		job.window = defaultExportWindow
	}
	if job.limit <= 0 {
		job.limit = defaultExportLimit
	}
	return job, nil
}

type settlementExportJob struct {
	logg    *logger.Logger
	payouts terminalLister
	sink    settlementSink
	window  time.Duration
	limit   int
	now     func() time.Time
}

func (j *settlementExportJob) Name() string { return "settlement-export" }

func (j *settlementExportJob) Run(ctx context.Context) error {
	to := j.now().UTC()
	from := to.Add(-j.window)

	rows, err := j.payouts.ListTerminalBetween(ctx, from, to, j.limit)
	if err != nil {
		return fmt.Errorf("list settled payouts: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	export := make([]bigquery.SettlementRow, 0, len(rows))
	for _, p := range rows {
		export = append(export, settlementRow(p))
	}
	if err := j.sink.InsertSettlements(ctx, export); err != nil {
		return err
	}

	fields := map[string]any{"exported": len(export), "from": from, "to": to}
	if len(rows) == j.limit {
		j.logg.Warn(j.logg.WithFields(ctx, fields), "settlement export hit row limit")
		return nil
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "settlement export complete")
	return nil
}

func settlementRow(p models.Payout) bigquery.SettlementRow {
	row := bigquery.SettlementRow{
		PayoutID:      p.ID.String(),
		GroupID:       p.GroupID.String(),
		RecipientID:   p.RecipientID.String(),
		CycleNumber:   p.CycleNumber,
		Mode:          string(p.Mode),
		Status:        string(p.Status),
		Currency:      p.Currency,
		GrossAmount:   p.GrossAmount,
		FeeAmount:     p.FeeAmount,
		NetAmount:     p.NetAmount,
		ScheduledDate: p.ScheduledDate,
		ProcessedAt:   p.ProcessedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.ChargeID != nil {
		row.ChargeID = *p.ChargeID
	}
	if p.FailureCategory != nil {
		row.FailureCategory = string(*p.FailureCategory)
	}
	return row
}
