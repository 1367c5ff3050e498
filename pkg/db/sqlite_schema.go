package db

import (
	"context"
	"fmt"
	"strings"
)

// sqliteSchema mirrors the goose migrations for the local sqlite driver. Postgres
// enum columns are plain text and partial indexes keep their predicates.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		wallet_balance INTEGER NOT NULL DEFAULT 0 CHECK (wallet_balance >= 0),
		escrow_balance INTEGER NOT NULL DEFAULT 0 CHECK (escrow_balance >= 0),
		trust_score INTEGER NOT NULL DEFAULT 50 CHECK (trust_score BETWEEN 0 AND 100),
		pin_hash TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS payouts (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		cycle_number INTEGER NOT NULL,
		gross_amount INTEGER NOT NULL CHECK (gross_amount > 0),
		net_amount INTEGER NOT NULL DEFAULT 0,
		fee_amount INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		mode TEXT NOT NULL,
		scheduled_date DATETIME NOT NULL,
		processed_at DATETIME,
		charge_id TEXT,
		external_reference TEXT,
		trace_id TEXT,
		failure_category TEXT,
		failure_reason TEXT,
		retry_of_id TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payouts_charge_id ON payouts (charge_id) WHERE charge_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS payout_schedule (
		id TEXT PRIMARY KEY,
		payout_id TEXT NOT NULL,
		group_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		scheduled_date DATETIME NOT NULL,
		payout_time TEXT NOT NULL,
		status TEXT NOT NULL,
		processed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		payout_id TEXT,
		contribution_id TEXT,
		type TEXT NOT NULL,
		amount INTEGER NOT NULL,
		status TEXT NOT NULL,
		charge_id TEXT,
		details TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS revenue_transactions (
		id TEXT PRIMARY KEY,
		payout_id TEXT NOT NULL,
		group_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		created_at DATETIME,
		UNIQUE (payout_id, type)
	)`,
	`CREATE TABLE IF NOT EXISTS reserve_wallets (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL UNIQUE,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS reserve_wallet_entries (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL,
		group_id TEXT NOT NULL,
		payout_id TEXT,
		user_id TEXT,
		type TEXT NOT NULL,
		amount INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS contributions (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		cycle_number INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		status TEXT NOT NULL,
		charge_id TEXT NOT NULL UNIQUE,
		external_reference TEXT,
		failure_reason TEXT,
		completed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS group_memberships (
		group_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		has_contributed BOOLEAN NOT NULL DEFAULT 0,
		updated_at DATETIME,
		PRIMARY KEY (group_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS payment_destinations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		method TEXT NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT 0,
		phone_number TEXT,
		provider TEXT,
		account_number TEXT,
		bank_code TEXT,
		account_name TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS compensation_intents (
		id TEXT PRIMARY KEY,
		payout_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		charge_id TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		resolved_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// EnsureSQLiteSchema creates the settlement tables on a sqlite connection.
func (c *Client) EnsureSQLiteSchema(ctx context.Context) error {
	if name := c.conn.Dialector.Name(); !strings.EqualFold(name, "sqlite") {
		return fmt.Errorf("sqlite schema requested on %s connection", name)
	}
	for _, stmt := range sqliteSchema {
		if err := c.conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
