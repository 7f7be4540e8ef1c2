// Package migrations owns the ledger schema. Statements are idempotent so
// Apply can run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// statements run in order inside Apply. Amounts are NUMERIC so money is
// stored and compared exactly; the infinite flag is the tagged form of the
// unbounded-balance sentinel and keeps it out of aggregate sums.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		account_id   BIGINT PRIMARY KEY,
		account_type SMALLINT NOT NULL,
		amount       NUMERIC(21,6) NOT NULL DEFAULT 0,
		infinite     BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS wallets (
		user_id       BIGINT PRIMARY KEY REFERENCES accounts (account_id),
		taxpaid       NUMERIC(21,6) NOT NULL DEFAULT 0,
		steal_uses    INTEGER NOT NULL DEFAULT 0,
		steal_success INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		idx      BIGSERIAL PRIMARY KEY,
		sender   BIGINT NOT NULL,
		receiver BIGINT NOT NULL,
		amount   NUMERIC(21,6) NOT NULL,
		sent_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS accounts_type_idx ON accounts (account_type)`,
	`CREATE INDEX IF NOT EXISTS transactions_sender_idx ON transactions (sender)`,
	`CREATE INDEX IF NOT EXISTS transactions_receiver_idx ON transactions (receiver)`,
}

// Apply executes every schema statement against db.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
