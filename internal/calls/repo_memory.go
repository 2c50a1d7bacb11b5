package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store useful for tests.
// It is not intended for production use.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]CallRecord

	// FailUpsert, when set, is returned by Upsert instead of writing.
	FailUpsert error
	upserts    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]CallRecord)}
}

func (s *MemoryStore) Get(ctx context.Context, callID string) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Upsert(ctx context.Context, rec CallRecord) error {
	if rec.CallID == "" {
		return ErrMissingCallID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpsert != nil {
		return s.FailUpsert
	}
	if prev, ok := s.records[rec.CallID]; ok && prev.CreatedAt != nil {
		rec.CreatedAt = prev.CreatedAt
	}
	s.records[rec.CallID] = cloneRecord(rec)
	s.upserts++
	return nil
}

// Upserts reports how many writes succeeded.
func (s *MemoryStore) Upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

func (s *MemoryStore) List(ctx context.Context, f ListFilter) ([]CallRecord, error) {
	f = f.normalized()
	s.mu.Lock()
	out := make([]CallRecord, 0, len(s.records))
	for _, r := range s.records {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Verdict != "" && r.ScreeningVerdict != f.Verdict {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].CallID, out[j].CallID)
	})
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListActive(ctx context.Context, limit int) ([]CallRecord, error) {
	limit = ListFilter{Limit: limit}.normalized().Limit
	s.mu.Lock()
	out := make([]CallRecord, 0)
	for _, r := range s.records {
		if isActive(r) {
			out = append(out, cloneRecord(r))
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return newer(out[i].StartedAt, out[j].StartedAt, out[i].CallID, out[j].CallID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// newer orders descending by timestamp, nil last, then by call_id for a
// stable result.
func newer(a, b *time.Time, idA, idB string) bool {
	switch {
	case a != nil && b != nil && !a.Equal(*b):
		return a.After(*b)
	case a != nil && b == nil:
		return true
	case a == nil && b != nil:
		return false
	}
	return idA < idB
}
