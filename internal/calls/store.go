package calls

import "context"

// Store is the durable call table. Writes are whole-record upserts keyed by
// call_id; there is no partial column update and no delete.
type Store interface {
	// Get returns ErrNotFound when no record exists.
	Get(ctx context.Context, callID string) (CallRecord, error)
	Upsert(ctx context.Context, rec CallRecord) error
	// List returns records newest first by created_at.
	List(ctx context.Context, f ListFilter) ([]CallRecord, error)
	// ListActive returns calls with status ACTIVE, or with no status and no
	// ended_at, newest first by started_at.
	ListActive(ctx context.Context, limit int) ([]CallRecord, error)
}

// isActive mirrors the ListActive predicate for non-SQL stores.
func isActive(r CallRecord) bool {
	if r.Status == CallStatusActive {
		return true
	}
	return r.Status == "" && r.EndedAt == nil
}
