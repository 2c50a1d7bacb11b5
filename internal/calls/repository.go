package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"call-screening/pkg/utils"
)

// Dialect selects placeholder syntax. Queries are written with '?' and
// rebound for Postgres.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func (d Dialect) rebind(q string) string {
	if d != DialectPostgres {
		return q
	}
	return utils.Rebind(q)
}

// SQLStore is the database/sql implementation of Store.
//
// NOTE: This store assumes the calls table created by EnsureSchema.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

const callColumns = `call_id, from_number, to_number, status, started_at, ended_at, screened_at,
       screening_verdict, screening_summary, transcript, terminated_at,
       transfer_initiated, transfer_target, transfer_initiated_at, transferred_to, transferred_at,
       created_at, updated_at`

func (s *SQLStore) Get(ctx context.Context, callID string) (CallRecord, error) {
	q := s.dialect.rebind(`
SELECT ` + callColumns + `
FROM calls
WHERE call_id = ?
`)
	rec, err := scanCall(s.db.QueryRowContext(ctx, q, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	return rec, nil
}

// Upsert writes the whole record in one statement. created_at keeps the
// stored value when one exists.
func (s *SQLStore) Upsert(ctx context.Context, rec CallRecord) error {
	if rec.CallID == "" {
		return ErrMissingCallID
	}
	q := s.dialect.rebind(`
INSERT INTO calls (
  ` + callColumns + `
) VALUES (
  ?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?
)
ON CONFLICT (call_id) DO UPDATE SET
  from_number = excluded.from_number,
  to_number = excluded.to_number,
  status = excluded.status,
  started_at = excluded.started_at,
  ended_at = excluded.ended_at,
  screened_at = excluded.screened_at,
  screening_verdict = excluded.screening_verdict,
  screening_summary = excluded.screening_summary,
  transcript = excluded.transcript,
  terminated_at = excluded.terminated_at,
  transfer_initiated = excluded.transfer_initiated,
  transfer_target = excluded.transfer_target,
  transfer_initiated_at = excluded.transfer_initiated_at,
  transferred_to = excluded.transferred_to,
  transferred_at = excluded.transferred_at,
  created_at = COALESCE(calls.created_at, excluded.created_at),
  updated_at = excluded.updated_at
`)
	now := time.Now().UTC()
	created := rec.CreatedAt
	if created == nil {
		created = &now
	}
	updated := rec.UpdatedAt
	if updated == nil {
		updated = &now
	}
	transferInitiated := 0
	if rec.TransferInitiated {
		transferInitiated = 1
	}

	_, err := s.db.ExecContext(ctx, q,
		rec.CallID,
		nullString(rec.FromNumber),
		nullString(rec.ToNumber),
		nullString(string(rec.Status)),
		nullTime(rec.StartedAt),
		nullTime(rec.EndedAt),
		nullTime(rec.ScreenedAt),
		nullString(string(rec.ScreeningVerdict)),
		nullString(rec.ScreeningSummary),
		nullString(rec.Transcript),
		nullTime(rec.TerminatedAt),
		transferInitiated,
		nullString(rec.TransferTarget),
		nullTime(rec.TransferInitiatedAt),
		nullString(rec.TransferredTo),
		nullTime(rec.TransferredAt),
		nullTime(created),
		nullTime(updated),
	)
	return err
}

func (s *SQLStore) List(ctx context.Context, f ListFilter) ([]CallRecord, error) {
	f = f.normalized()

	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Verdict != "" {
		where = append(where, "screening_verdict = ?")
		args = append(args, string(f.Verdict))
	}

	q := `SELECT ` + callColumns + ` FROM calls`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, call_id ASC LIMIT ?`
	args = append(args, f.Limit)

	return s.query(ctx, s.dialect.rebind(q), args...)
}

func (s *SQLStore) ListActive(ctx context.Context, limit int) ([]CallRecord, error) {
	limit = ListFilter{Limit: limit}.normalized().Limit
	// started_at is NULL for calls first seen via screening; those sort last.
	q := s.dialect.rebind(`
SELECT ` + callColumns + `
FROM calls
WHERE status = ? OR (status IS NULL AND ended_at IS NULL)
ORDER BY CASE WHEN started_at IS NULL THEN 1 ELSE 0 END, started_at DESC, call_id ASC
LIMIT ?
`)
	return s.query(ctx, q, string(CallStatusActive), limit)
}

func (s *SQLStore) query(ctx context.Context, q string, args ...any) ([]CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallRecord, 0)
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (CallRecord, error) {
	var (
		rec                                                    CallRecord
		from, to, status, verdict, summary, transcript         sql.NullString
		transferTarget, transferredTo                          sql.NullString
		startedAt, endedAt, screenedAt, terminatedAt           sql.NullString
		transferInitiatedAt, transferredAt, createdAt, updated sql.NullString
		transferInitiated                                      sql.NullInt64
	)
	if err := row.Scan(
		&rec.CallID,
		&from,
		&to,
		&status,
		&startedAt,
		&endedAt,
		&screenedAt,
		&verdict,
		&summary,
		&transcript,
		&terminatedAt,
		&transferInitiated,
		&transferTarget,
		&transferInitiatedAt,
		&transferredTo,
		&transferredAt,
		&createdAt,
		&updated,
	); err != nil {
		return CallRecord{}, err
	}

	rec.FromNumber = from.String
	rec.ToNumber = to.String
	rec.Status = CallStatus(status.String)
	rec.ScreeningVerdict = Verdict(verdict.String)
	rec.ScreeningSummary = summary.String
	rec.Transcript = transcript.String
	rec.TransferInitiated = transferInitiated.Int64 != 0
	rec.TransferTarget = transferTarget.String
	rec.TransferredTo = transferredTo.String

	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{startedAt, &rec.StartedAt},
		{endedAt, &rec.EndedAt},
		{screenedAt, &rec.ScreenedAt},
		{terminatedAt, &rec.TerminatedAt},
		{transferInitiatedAt, &rec.TransferInitiatedAt},
		{transferredAt, &rec.TransferredAt},
		{createdAt, &rec.CreatedAt},
		{updated, &rec.UpdatedAt},
	} {
		t, err := parseTime(f.src)
		if err != nil {
			return CallRecord{}, fmt.Errorf("call %s: %w", rec.CallID, err)
		}
		*f.dst = t
	}
	return rec, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(utils.TimestampLayout)
}

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", s.String, err)
	}
	return TimePtr(t), nil
}
