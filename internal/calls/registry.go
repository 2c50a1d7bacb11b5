package calls

import "sync"

// Registry is the live, process-local view of calls believed to be in
// progress. It is a cache: a missing entry only means "nothing cached,
// consult the store", never "the call does not exist".
//
// Entries hold Merge output, so a Put never loses fields that were already
// cached for the call.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]CallRecord
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]CallRecord)}
}

func (r *Registry) Get(callID string) (CallRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.entries[callID]
	if !ok {
		return CallRecord{}, false
	}
	return cloneRecord(rec), true
}

func (r *Registry) Put(rec CallRecord) {
	if rec.CallID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[rec.CallID] = cloneRecord(rec)
}

func (r *Registry) Delete(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, callID)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
