package audit

import (
	"context"
	"database/sql"
	"time"

	"call-screening/pkg/utils"
)

// SQLRepo stores events in audit_events. Insert-only.
type SQLRepo struct {
	db       *sql.DB
	postgres bool
}

// NewSQLRepo builds a repo. postgres selects $n placeholders.
func NewSQLRepo(db *sql.DB, postgres bool) *SQLRepo {
	return &SQLRepo{db: db, postgres: postgres}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
  id         TEXT PRIMARY KEY,
  type       TEXT NOT NULL,
  call_id    TEXT,
  actor      TEXT,
  ip_address TEXT,
  message    TEXT,
  metadata   TEXT,
  created_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_call_id ON audit_events (call_id)`,
}

// EnsureSchema creates the audit_events table if missing.
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

func (r *SQLRepo) Append(ctx context.Context, e Event) error {
	q := r.placeholders(`
INSERT INTO audit_events (id, type, call_id, actor, ip_address, message, metadata, created_at)
VALUES (?,?,?,?,?,?,?,?)
`)
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		e.CallID,
		e.Actor,
		e.IPAddress,
		e.Message,
		e.Metadata,
		e.CreatedAt.UTC().Format(utils.TimestampLayout),
	)
	return err
}

// ForCall returns a call's events, oldest first.
func (r *SQLRepo) ForCall(ctx context.Context, callID string) ([]Event, error) {
	q := r.placeholders(`
SELECT id, type, call_id, actor, ip_address, message, metadata, created_at
FROM audit_events
WHERE call_id = ?
ORDER BY created_at ASC, id ASC
`)
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                                  Event
			typ, created                       string
			call, actor, ip, message, metadata sql.NullString
		)
		if err := rows.Scan(&e.ID, &typ, &call, &actor, &ip, &message, &metadata, &created); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		e.CallID = call.String
		e.Actor = actor.String
		e.IPAddress = ip.String
		e.Message = message.String
		e.Metadata = metadata.String
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLRepo) placeholders(q string) string {
	if !r.postgres {
		return q
	}
	return utils.Rebind(q)
}
