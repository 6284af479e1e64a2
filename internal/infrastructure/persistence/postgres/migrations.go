package postgres

import (
	"context"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE SETTINGS CORE
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create settings, admins and audit tables
-- Version: 001

-- Key/value settings consumed by handlers at runtime
CREATE TABLE IF NOT EXISTS settings (
    key VARCHAR(100) PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- Admins allowed to use the privileged command surface
CREATE TABLE IF NOT EXISTS admins (
    telegram_id BIGINT PRIMARY KEY,
    added_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- Audit trail for privileged operations
CREATE TABLE IF NOT EXISTS admin_actions (
    id UUID PRIMARY KEY,
    admin_id BIGINT NOT NULL,
    action VARCHAR(100) NOT NULL,
    details TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_admin_actions_admin_id ON admin_actions(admin_id);
CREATE INDEX IF NOT EXISTS idx_admin_actions_created_at ON admin_actions(created_at DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS admin_actions;
DROP TABLE IF EXISTS admins;
DROP TABLE IF EXISTS settings;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE CREDENTIALS AND COUNTRIES
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create API credential pool and country configuration
-- Version: 002

-- Credential rotation pool for downstream login flows.
-- Must hold at least one row once the bot has started.
CREATE TABLE IF NOT EXISTS api_credentials (
    api_id VARCHAR(50) NOT NULL,
    api_hash VARCHAR(100) NOT NULL,
    added_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (api_id, api_hash)
);

-- Country/pricing configuration shown to users
CREATE TABLE IF NOT EXISTS countries (
    code VARCHAR(10) PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    rate DECIMAL(10,2) NOT NULL DEFAULT 0.00,
    capacity INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT valid_rate CHECK (rate >= 0),
    CONSTRAINT valid_capacity CHECK (capacity >= 0)
);
`

const migration002Down = `
DROP TABLE IF EXISTS countries;
DROP TABLE IF EXISTS api_credentials;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE ACCOUNTS AND TOPICS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create managed accounts and daily topic tables
-- Version: 003

-- Accounts handled by the login collaborator
CREATE TABLE IF NOT EXISTS accounts (
    phone_number VARCHAR(32) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    job_id VARCHAR(100) NOT NULL DEFAULT '',
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    last_processed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_account_status CHECK (status IN ('pending', 'verified', 'failed'))
);

CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id);
CREATE INDEX IF NOT EXISTS idx_accounts_status ON accounts(status);
CREATE INDEX IF NOT EXISTS idx_accounts_last_processed ON accounts(last_processed_at);

-- Daily topic records subject to periodic cleanup
CREATE TABLE IF NOT EXISTS daily_topics (
    id SERIAL PRIMARY KEY,
    topic_date DATE NOT NULL,
    payload TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_daily_topics_date ON daily_topics(topic_date);
`

const migration003Down = `
DROP TABLE IF EXISTS daily_topics;
DROP TABLE IF EXISTS accounts;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// migrations in apply order. Every statement is idempotent, so the
// migrator can run on every startup without a version table.
var migrations = []struct {
	name string
	up   string
}{
	{"001_settings_core", migration001Up},
	{"002_credentials_countries", migration002Up},
	{"003_accounts_topics", migration003Up},
}

// Migrator applies the embedded schema migrations.
type Migrator struct {
	conn *Connection
}

// NewMigrator creates a new Migrator.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn}
}

// Up applies all migrations in order.
func (m *Migrator) Up(ctx context.Context) error {
	for _, mig := range migrations {
		if _, err := m.conn.Exec(ctx, mig.up); err != nil {
			return fmt.Errorf("postgres: migration %s failed: %w", mig.name, err)
		}
	}
	return nil
}
