// Package sqlite implements the store interfaces on an embedded SQLite
// database. It serves dev setups and tests; production deployments use the
// postgres package against the same contracts.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	repo "github.com/dua-platform/credits-backend/internal/repository"
)

// Schema statements, one per string: SQLite executes a single statement at a
// time. The partial unique index on related_transaction_id is what makes
// refunds at-most-once; only refund entries set that column.
func schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS balances (
			user_id    TEXT PRIMARY KEY,
			credits    INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
			coins      INTEGER NOT NULL DEFAULT 0 CHECK (coins >= 0),
			updated_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id                     TEXT PRIMARY KEY,
			user_id                TEXT NOT NULL,
			direction              TEXT NOT NULL CHECK (direction IN ('debit','credit')),
			amount                 INTEGER NOT NULL CHECK (amount > 0),
			currency               TEXT NOT NULL DEFAULT 'credits',
			operation              TEXT NOT NULL,
			status                 TEXT NOT NULL DEFAULT 'completed',
			metadata               TEXT,
			related_transaction_id TEXT,
			created_at             TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS transactions_refund_once
		 ON transactions(related_transaction_id)
		 WHERE related_transaction_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS transactions_user_idx
		 ON transactions(user_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS invite_codes (
			code        TEXT PRIMARY KEY,
			active      INTEGER NOT NULL DEFAULT 1,
			owner_claim TEXT,
			claimed_at  TEXT,
			created_at  TEXT NOT NULL
		)`,
	}
}

// Open opens (creating if needed) the database at path and applies the
// schema. A single connection serializes all writers, which is how SQLite
// provides the row-level arbitration the guarded updates rely on.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	}
	for _, stmt := range schema() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return db, nil
}

func NewStores(db *sql.DB) repo.Stores {
	return repo.Stores{
		Balances: &balancesRepo{db},
		Ledger:   &ledgerRepo{db},
		Codes:    &codesRepo{db},
	}
}

// Fixed-width fraction so that lexical ordering of the TEXT column matches
// chronological order; RFC3339Nano trims zeros and breaks that.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func nowText() string { return time.Now().UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
