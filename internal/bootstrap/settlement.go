// Package bootstrap assembles the settlement components shared by the api and
// cron-worker binaries.
package bootstrap

import (
	"fmt"

	"github.com/angelmondragon/rosca-settlement/internal/contributions"
	"github.com/angelmondragon/rosca-settlement/internal/destinations"
	"github.com/angelmondragon/rosca-settlement/internal/fees"
	"github.com/angelmondragon/rosca-settlement/internal/ledger"
	"github.com/angelmondragon/rosca-settlement/internal/memberships"
	"github.com/angelmondragon/rosca-settlement/internal/notifications"
	"github.com/angelmondragon/rosca-settlement/internal/payouts"
	"github.com/angelmondragon/rosca-settlement/internal/reserve"
	"github.com/angelmondragon/rosca-settlement/internal/revenue"
	"github.com/angelmondragon/rosca-settlement/internal/settlement"
	"github.com/angelmondragon/rosca-settlement/internal/transactions"
	"github.com/angelmondragon/rosca-settlement/internal/trust"
	"github.com/angelmondragon/rosca-settlement/internal/users"
	gatewaywebhook "github.com/angelmondragon/rosca-settlement/internal/webhooks/gateway"
	"github.com/angelmondragon/rosca-settlement/pkg/config"
	"github.com/angelmondragon/rosca-settlement/pkg/db"
	"github.com/angelmondragon/rosca-settlement/pkg/gateway"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
	"github.com/angelmondragon/rosca-settlement/pkg/metrics"
	"github.com/angelmondragon/rosca-settlement/pkg/outbox"
)

// Settlement bundles everything built on top of the database and the gateway.
type Settlement struct {
	Users         *users.Repository
	Payouts       payouts.Repository
	PayoutService payouts.Service
	Ledger        ledger.Service
	Gateway       *gateway.Client
	Engine        *settlement.Engine
	Batch         *settlement.Batch
	Webhooks      *gatewaywebhook.Service
}

// NewSettlement wires repositories, writers, the reserve coverer and the gateway
// client into the engine, the batch and the webhook reconciler.
func NewSettlement(cfg *config.Config, logg *logger.Logger, client *db.Client, m *metrics.SettlementMetrics) (*Settlement, error) {
	conn := client.DB()

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), client)
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	notifier, err := notifications.NewService(outbox.NewService(outbox.NewRepository(conn), logg), client, logg)
	if err != nil {
		return nil, fmt.Errorf("notification service: %w", err)
	}

	feeCalc, err := fees.NewCalculator(cfg.Fees)
	if err != nil {
		return nil, fmt.Errorf("fee calculator: %w", err)
	}

	destinationSvc, err := destinations.NewService(destinations.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("destination service: %w", err)
	}

	var coverer reserve.Coverer
	if cfg.Reserve.IsRemote() {
		remote, err := reserve.NewClient(cfg.Reserve, nil)
		if err != nil {
			return nil, fmt.Errorf("reserve client: %w", err)
		}
		coverer = remote
	} else {
		local, err := reserve.NewLocalCoverer(ledgerSvc, client, logg)
		if err != nil {
			return nil, fmt.Errorf("local reserve: %w", err)
		}
		coverer = local
	}

	gatewayClient, err := gateway.NewClient(cfg.Gateway, gateway.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("gateway client: %w", err)
	}

	payoutRepo := payouts.NewRepository(conn)
	txWriter := transactions.NewWriter()
	trustWriter := trust.NewWriter()

	engine, err := settlement.NewEngine(settlement.EngineParams{
		TxRunner:     client,
		Payouts:      payoutRepo,
		Ledger:       ledgerSvc,
		Reserve:      coverer,
		Fees:         feeCalc,
		Destinations: destinationSvc,
		Gateway:      gatewayClient,
		Transactions: txWriter,
		Revenue:      revenue.NewWriter(),
		Trust:        trustWriter,
		Notifier:     notifier,
		Metrics:      m,
		Logger:       logg,
		TrustBump:    cfg.Fees.TrustScoreBump,
		CallTimeout:  cfg.Settlement.CallTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("settlement engine: %w", err)
	}

	batch, err := settlement.NewBatch(settlement.BatchParams{
		Engine:  engine,
		Payouts: payoutRepo,
		Config:  cfg.Settlement,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("settlement batch: %w", err)
	}

	payoutSvc, err := payouts.NewService(payouts.ServiceParams{
		Repo:         payoutRepo,
		Ledger:       ledgerSvc,
		Transactions: txWriter,
		TxRunner:     client,
		Logger:       logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payout service: %w", err)
	}

	webhookSvc, err := gatewaywebhook.NewService(gatewaywebhook.ServiceParams{
		TxRunner:      client,
		Payouts:       payoutRepo,
		Contributions: contributions.NewRepository(conn),
		Memberships:   memberships.NewRepository(conn),
		Ledger:        ledgerSvc,
		Transactions:  txWriter,
		Trust:         trustWriter,
		Notifier:      notifier,
		Logger:        logg,
		TrustBump:     cfg.Fees.TrustScoreBump,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook service: %w", err)
	}

	return &Settlement{
		Users:         users.NewRepository(conn),
		Payouts:       payoutRepo,
		PayoutService: payoutSvc,
		Ledger:        ledgerSvc,
		Gateway:       gatewayClient,
		Engine:        engine,
		Batch:         batch,
		Webhooks:      webhookSvc,
	}, nil
}
