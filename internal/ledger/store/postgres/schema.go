package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS balances (
	address    TEXT PRIMARY KEY,
	amount     BIGINT NOT NULL CHECK (amount >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS allowances (
	owner_address   TEXT NOT NULL,
	spender_address TEXT NOT NULL,
	amount          BIGINT NOT NULL CHECK (amount >= 0),
	expiry          BIGINT NOT NULL DEFAULT 0,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (owner_address, spender_address)
);

CREATE TABLE IF NOT EXISTS vesting_schedules (
	beneficiary TEXT NOT NULL,
	schedule_id INTEGER NOT NULL,
	total       BIGINT NOT NULL CHECK (total > 0),
	released    BIGINT NOT NULL DEFAULT 0 CHECK (released >= 0),
	start_seq   BIGINT NOT NULL,
	cliff_seq   BIGINT NOT NULL,
	duration    BIGINT NOT NULL,
	revocable   BOOLEAN NOT NULL,
	revoked     BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (beneficiary, schedule_id)
);

CREATE TABLE IF NOT EXISTS compliance_records (
	address              TEXT PRIMARY KEY,
	kyc_level            INTEGER NOT NULL DEFAULT 0,
	country_code         TEXT NOT NULL DEFAULT '',
	risk_score           INTEGER NOT NULL DEFAULT 0,
	blacklisted          BOOLEAN NOT NULL DEFAULT FALSE,
	daily_spent          BIGINT NOT NULL DEFAULT 0,
	daily_window_start   BIGINT NOT NULL DEFAULT 0,
	daily_limit_override BIGINT NOT NULL DEFAULT 0,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS allowed_countries (
	code TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS ledger_counters (
	name  TEXT PRIMARY KEY,
	value BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS admin_config (
	singleton     BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
	admin_address TEXT NOT NULL,
	fee_collector TEXT NOT NULL,
	paused        BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS token_metadata (
	singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
	name      TEXT NOT NULL,
	symbol    TEXT NOT NULL,
	decimals  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_events (
	ordinal   BIGSERIAL,
	id        UUID PRIMARY KEY,
	topic     TEXT NOT NULL,
	sequence  BIGINT NOT NULL,
	at        TIMESTAMPTZ NOT NULL,
	actor     TEXT NOT NULL DEFAULT '',
	subject   TEXT NOT NULL DEFAULT '',
	other     TEXT NOT NULL DEFAULT '',
	amount    BIGINT NOT NULL DEFAULT 0,
	meta      JSONB,
	published BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_ledger_events_unpublished
	ON ledger_events (ordinal) WHERE NOT published;
`

// Migrate creates the ledger schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}
