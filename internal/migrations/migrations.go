// Package migrations creates the ledger schema. Every statement is
// idempotent so Apply can run on each start.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                      BIGSERIAL PRIMARY KEY,
		account_number          VARCHAR(10) NOT NULL UNIQUE,
		username                VARCHAR(255) NOT NULL UNIQUE,
		email                   VARCHAR(255) UNIQUE,
		phone                   VARCHAR(32) UNIQUE,
		password_hash           VARCHAR(255) NOT NULL,
		balance                 NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		withdrawal_amount       NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (withdrawal_amount >= 0),
		direct_business         NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (direct_business >= 0),
		referrer_account_number VARCHAR(10) REFERENCES users(account_number),
		status                  VARCHAR(16) NOT NULL DEFAULT 'active',
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_referrer ON users(referrer_account_number)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id                      BIGSERIAL PRIMARY KEY,
		reference               VARCHAR(64) NOT NULL UNIQUE,
		sender_account_number   VARCHAR(10) NOT NULL REFERENCES users(account_number),
		receiver_account_number VARCHAR(10) NOT NULL REFERENCES users(account_number),
		amount                  NUMERIC(18,2) NOT NULL CHECK (amount > 0),
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions(sender_account_number, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_receiver ON transactions(receiver_account_number, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS deposits (
		id                BIGSERIAL PRIMARY KEY,
		user_id           BIGINT NOT NULL REFERENCES users(id),
		tx_hash           VARCHAR(255) NOT NULL UNIQUE,
		claimed_amount    NUMERIC(18,2) NOT NULL CHECK (claimed_amount > 0),
		approved_amount   NUMERIC(18,2) NOT NULL DEFAULT 0,
		referrer_override VARCHAR(10),
		status            VARCHAR(16) NOT NULL DEFAULT 'pending',
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at      TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS withdrawals (
		id           BIGSERIAL PRIMARY KEY,
		user_id      BIGINT NOT NULL REFERENCES users(id),
		wallet       VARCHAR(255) NOT NULL,
		amount       NUMERIC(18,2) NOT NULL CHECK (amount > 0),
		status       VARCHAR(16) NOT NULL DEFAULT 'pending',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id        BIGSERIAL PRIMARY KEY,
		name      VARCHAR(255) NOT NULL,
		price     NUMERIC(18,2) NOT NULL CHECK (price > 0),
		image_url TEXT,
		active    BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id           BIGSERIAL PRIMARY KEY,
		user_id      BIGINT NOT NULL REFERENCES users(id),
		product_id   BIGINT NOT NULL REFERENCES products(id),
		price        NUMERIC(18,2) NOT NULL,
		contact_name VARCHAR(255) NOT NULL,
		phone        VARCHAR(32) NOT NULL,
		address      TEXT NOT NULL,
		status       VARCHAR(32) NOT NULL DEFAULT 'pending',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id          BIGSERIAL PRIMARY KEY,
		entity_type VARCHAR(32) NOT NULL,
		entity_id   VARCHAR(64) NOT NULL,
		action      VARCHAR(32) NOT NULL,
		user_id     BIGINT,
		old_value   JSONB,
		new_value   JSONB,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		key          VARCHAR(255) PRIMARY KEY,
		user_id      BIGINT NOT NULL REFERENCES users(id),
		operation    VARCHAR(32) NOT NULL,
		request_hash VARCHAR(64) NOT NULL,
		response     JSONB,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_idempotency_created ON idempotency_keys(created_at)`,
}

// Apply runs the schema statements in order and stops at the first failure.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	slog.Info("schema migrations applied", "statements", len(statements))
	return nil
}
