// Package migrations applies the engine's database schema. Statements are
// ordered and idempotent so Apply can run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		locked_balance BIGINT NOT NULL DEFAULT 0 CHECK (locked_balance >= 0),
		points BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
		lifetime_points BIGINT NOT NULL DEFAULT 0,
		streak INT NOT NULL DEFAULT 0,
		last_active_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id UUID PRIMARY KEY,
		wallet_id UUID NOT NULL REFERENCES wallets(id),
		entry_type TEXT NOT NULL,
		amount BIGINT NOT NULL,
		points BIGINT NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		external_ref TEXT,
		balance_after BIGINT NOT NULL,
		locked_after BIGINT NOT NULL,
		points_after BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS ledger_entries_wallet_ref
		ON ledger_entries (wallet_id, external_ref)
		WHERE external_ref IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS contracts (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		goal TEXT NOT NULL,
		duration_days INT NOT NULL,
		stakes BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		days_completed INT NOT NULL DEFAULT 0,
		deadline TIMESTAMPTZ NOT NULL,
		settled_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS submissions (
		id UUID PRIMARY KEY,
		contract_id UUID NOT NULL REFERENCES contracts(id),
		status TEXT NOT NULL DEFAULT 'pending',
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		reviewed_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS platform_wallet (
		id TEXT PRIMARY KEY,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		total_revenue BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS platform_entries (
		id UUID PRIMARY KEY,
		entry_type TEXT NOT NULL,
		amount BIGINT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		balance_after BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS badge_grants (
		wallet_id UUID NOT NULL REFERENCES wallets(id),
		badge_key TEXT NOT NULL,
		earned_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (wallet_id, badge_key)
	)`,
}

// Apply executes every migration statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Count reports how many migration statements Apply runs. Exposed for tests.
func Count() int { return len(statements) }
