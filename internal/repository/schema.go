package repository

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id            UUID PRIMARY KEY,
		kind          CHAR(1) NOT NULL CHECK (kind IN ('F', 'J')),
		tax_id        VARCHAR(14) NOT NULL UNIQUE,
		name          VARCHAR(255) NOT NULL,
		email         VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		confirmation_hash VARCHAR(255) NOT NULL DEFAULT '',
		confirmed     BOOLEAN NOT NULL DEFAULT FALSE,
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id          UUID PRIMARY KEY,
		identity_id UUID NOT NULL UNIQUE REFERENCES identities(id),
		branch      VARCHAR(10) NOT NULL,
		number      VARCHAR(20) NOT NULL UNIQUE,
		balance     NUMERIC(15,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS movements (
		seq        BIGSERIAL PRIMARY KEY,
		id         UUID NOT NULL UNIQUE,
		account_id UUID NOT NULL REFERENCES accounts(id),
		kind       CHAR(1) NOT NULL CHECK (kind IN ('D', 'C')),
		amount     NUMERIC(15,2) NOT NULL CHECK (amount > 0),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_account ON movements(account_id, seq)`,
	`CREATE TABLE IF NOT EXISTS investor_profiles (
		id                 UUID PRIMARY KEY,
		identity_id        UUID NOT NULL UNIQUE REFERENCES identities(id),
		risk_tier          VARCHAR(20) NOT NULL,
		declared_net_worth NUMERIC(15,2) NOT NULL DEFAULT 0,
		created_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		id              UUID PRIMARY KEY,
		profile_id      UUID NOT NULL REFERENCES investor_profiles(id),
		category        VARCHAR(20) NOT NULL,
		ticker          VARCHAR(20),
		quantity        NUMERIC(20,8) NOT NULL CHECK (quantity > 0),
		average_price   NUMERIC(15,2) NOT NULL,
		invested_amount NUMERIC(15,2) NOT NULL,
		active          BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_profile ON positions(profile_id)`,
}

// SQLite keeps decimals as TEXT so no value passes through a float.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id            TEXT PRIMARY KEY,
		kind          TEXT NOT NULL CHECK (kind IN ('F', 'J')),
		tax_id        TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		confirmation_hash TEXT NOT NULL DEFAULT '',
		confirmed     INTEGER NOT NULL DEFAULT 0,
		active        INTEGER NOT NULL DEFAULT 1,
		created_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id          TEXT PRIMARY KEY,
		identity_id TEXT NOT NULL UNIQUE REFERENCES identities(id),
		branch      TEXT NOT NULL,
		number      TEXT NOT NULL UNIQUE,
		balance     TEXT NOT NULL DEFAULT '0' CHECK (CAST(balance AS REAL) >= 0),
		active      INTEGER NOT NULL DEFAULT 1,
		created_at  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS movements (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		kind       TEXT NOT NULL CHECK (kind IN ('D', 'C')),
		amount     TEXT NOT NULL CHECK (CAST(amount AS REAL) > 0),
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_account ON movements(account_id, seq)`,
	`CREATE TABLE IF NOT EXISTS investor_profiles (
		id                 TEXT PRIMARY KEY,
		identity_id        TEXT NOT NULL UNIQUE REFERENCES identities(id),
		risk_tier          TEXT NOT NULL,
		declared_net_worth TEXT NOT NULL DEFAULT '0',
		created_at         TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		id              TEXT PRIMARY KEY,
		profile_id      TEXT NOT NULL REFERENCES investor_profiles(id),
		category        TEXT NOT NULL,
		ticker          TEXT,
		quantity        TEXT NOT NULL,
		average_price   TEXT NOT NULL,
		invested_amount TEXT NOT NULL,
		active          INTEGER NOT NULL DEFAULT 1,
		created_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_profile ON positions(profile_id)`,
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if s.dialect == SQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
