package pgstore

import (
	"context"
	"fmt"
)

// schema is applied on every start; each statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		user_id    TEXT NOT NULL,
		currency   TEXT NOT NULL,
		available  NUMERIC(38,8) NOT NULL DEFAULT 0 CHECK (available >= 0),
		escrow     NUMERIC(38,8) NOT NULL DEFAULT 0 CHECK (escrow >= 0),
		version    BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, currency)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		seq                     BIGSERIAL PRIMARY KEY,
		id                      TEXT NOT NULL UNIQUE,
		kind                    TEXT NOT NULL CHECK (kind IN ('credit','debit','hold','release','capture')),
		user_id                 TEXT NOT NULL,
		currency                TEXT NOT NULL,
		counter_user_id         TEXT,
		amount                  NUMERIC(38,8) NOT NULL CHECK (amount > 0),
		available_after         NUMERIC(38,8) NOT NULL,
		escrow_after            NUMERIC(38,8) NOT NULL,
		counter_available_after NUMERIC(38,8),
		cause_ref               TEXT NOT NULL,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (kind, cause_ref)
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_wallet_idx ON ledger_entries (user_id, currency, seq)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_counter_idx ON ledger_entries (counter_user_id, currency, seq) WHERE counter_user_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS deposit_requests (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL,
		currency       TEXT NOT NULL,
		amount         NUMERIC(38,8) NOT NULL CHECK (amount > 0),
		proof          TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','approved','rejected')),
		decided_by     TEXT NOT NULL DEFAULT '',
		decision_note  TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		decided_at     TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS deposit_requests_status_idx ON deposit_requests (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS withdrawal_requests (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		currency      TEXT NOT NULL,
		amount        NUMERIC(38,8) NOT NULL CHECK (amount > 0),
		destination   TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','approved','rejected')),
		decided_by    TEXT NOT NULL DEFAULT '',
		decision_note TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		decided_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS withdrawal_requests_status_idx ON withdrawal_requests (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS products (
		id            TEXT PRIMARY KEY,
		seller_id     TEXT NOT NULL,
		title         TEXT NOT NULL DEFAULT '',
		price         NUMERIC(38,8) NOT NULL,
		currency      TEXT NOT NULL,
		available     BOOLEAN NOT NULL DEFAULT TRUE,
		exchange_rate NUMERIC(38,8) NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id         TEXT PRIMARY KEY,
		buyer_id   TEXT NOT NULL,
		seller_id  TEXT NOT NULL,
		product_id TEXT NOT NULL,
		currency   TEXT NOT NULL,
		amount     NUMERIC(38,8) NOT NULL CHECK (amount > 0),
		state      TEXT NOT NULL CHECK (state IN ('created','funded','delivered','completed','cancelled','disputed','refunded')),
		review_id  TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS disputes (
		id          TEXT PRIMARY KEY,
		order_id    TEXT NOT NULL REFERENCES orders(id),
		filer_id    TEXT NOT NULL,
		reason      TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open','resolved')),
		resolution  TEXT NOT NULL DEFAULT '' CHECK (resolution IN ('','release','refund')),
		notes       TEXT NOT NULL DEFAULT '',
		resolved_by TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS disputes_one_open_per_order ON disputes (order_id) WHERE status = 'open'`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		type       TEXT NOT NULL,
		title      TEXT NOT NULL,
		body       TEXT NOT NULL,
		reference  TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		read_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_user_idx ON notifications (user_id, created_at DESC)`,
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
