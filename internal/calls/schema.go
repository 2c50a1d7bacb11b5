package calls

import (
	"context"
	"database/sql"

	"call-screening/pkg/utils"
)

// schemaStatements is portable between Postgres and SQLite. Timestamps are
// TEXT in utils.TimestampLayout.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS calls (
  call_id               TEXT PRIMARY KEY,
  from_number           TEXT,
  to_number             TEXT,
  status                TEXT,
  started_at            TEXT,
  ended_at              TEXT,
  screened_at           TEXT,
  screening_verdict     TEXT,
  screening_summary     TEXT,
  transcript            TEXT,
  terminated_at         TEXT,
  transfer_initiated    INTEGER NOT NULL DEFAULT 0,
  transfer_target       TEXT,
  transfer_initiated_at TEXT,
  transferred_to        TEXT,
  transferred_at        TEXT,
  created_at            TEXT NOT NULL,
  updated_at            TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_calls_created_at ON calls (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_calls_status ON calls (status)`,
	`CREATE INDEX IF NOT EXISTS idx_calls_verdict ON calls (screening_verdict)`,
}

// EnsureSchema creates the calls table and its indexes if missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	return utils.WithTx(ctx, db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
