package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"call-screening/internal/metrics"
	"call-screening/pkg/logger"
)

// Reconciler owns every write to call state. Each Apply runs one
// lock -> read store and registry -> Merge -> write both -> unlock sequence
// for a single call_id, so concurrent signals for the same call cannot lose
// each other's fields.
//
// Callers must not hold the lock across slow remote work: apply the input,
// do the remote call, then Apply its result.
type Reconciler struct {
	store  Store
	live   *Registry
	locker Locker
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewReconciler(store Store, live *Registry, locker Locker) *Reconciler {
	if live == nil {
		live = NewRegistry()
	}
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &Reconciler{store: store, live: live, locker: locker, clock: time.Now}
}

// WithClock replaces the reconciler clock. Intended for tests.
func (r *Reconciler) WithClock(clock func() time.Time) *Reconciler {
	r.clock = clock
	return r
}

// Apply merges u into the call's state and persists the result.
//
// A store failure is not fatal: the merged record is still returned (and
// kept in the live registry) together with an error wrapping ErrPersistence.
// When the store cannot even be read, nothing is written, since a whole-record
// upsert built without the stored base could erase durable fields.
func (r *Reconciler) Apply(ctx context.Context, u Update) (CallRecord, error) {
	_, _, merged, err := r.Exchange(ctx, u.CallID, func(time.Time) Update { return u })
	return merged, err
}

// Exchange is Apply with the update built under the call lock. build gets
// the reconciler clock read after the lock is taken, so updates for one
// call are stamped in the order they are merged. prev is the state the
// update was merged over; known is false when no source had the call.
func (r *Reconciler) Exchange(ctx context.Context, callID string, build func(now time.Time) Update) (prev CallRecord, known bool, merged CallRecord, err error) {
	if callID == "" {
		return CallRecord{}, false, CallRecord{}, ErrMissingCallID
	}
	log := logger.From(ctx).With("call_id", callID)

	unlock, err := r.locker.Lock(ctx, callID)
	if err != nil {
		return CallRecord{}, false, CallRecord{}, fmt.Errorf("calls: lock %s: %w", callID, err)
	}
	defer unlock()

	now := r.clock()
	u := build(now)
	u.CallID = callID
	if !u.At.IsZero() {
		now = u.At
	}

	var base *CallRecord
	stored, readErr := r.store.Get(ctx, callID)
	switch {
	case readErr == nil:
		base = &stored
	case errors.Is(readErr, ErrNotFound):
		readErr = nil
	default:
		metrics.StoreErrors.WithLabelValues("get").Inc()
		log.Error("call store read failed", "err_kind", "persistence", "err", readErr)
	}

	var live *CallRecord
	if cached, ok := r.live.Get(callID); ok {
		live = &cached
	}
	known = base != nil || live != nil
	prev = Overlay(callID, base, live)

	merged = Merge(base, live, u, now)
	r.live.Put(merged)
	defer func() { metrics.LiveCalls.Set(float64(r.live.Len())) }()

	if readErr != nil {
		return prev, known, merged, fmt.Errorf("%w: read %s: %w", ErrPersistence, callID, readErr)
	}

	if err := r.store.Upsert(ctx, merged); err != nil {
		metrics.StoreErrors.WithLabelValues("upsert").Inc()
		log.Error("call store write failed", "err_kind", "persistence", "err", err)
		return prev, known, merged, fmt.Errorf("%w: upsert %s: %w", ErrPersistence, callID, err)
	}

	// Durable copy is now current; terminal calls need no cached state.
	if merged.Status.Terminal() {
		r.live.Delete(callID)
	}
	return prev, known, merged, nil
}

// Current returns the merged view of store and registry without writing.
// found is false when neither source knows the call.
func (r *Reconciler) Current(ctx context.Context, callID string) (rec CallRecord, found bool, err error) {
	if callID == "" {
		return CallRecord{}, false, ErrMissingCallID
	}

	var base *CallRecord
	stored, err := r.store.Get(ctx, callID)
	switch {
	case err == nil:
		base = &stored
	case errors.Is(err, ErrNotFound):
		err = nil
	default:
		metrics.StoreErrors.WithLabelValues("get").Inc()
		logger.From(ctx).Error("call store read failed", "call_id", callID, "err_kind", "persistence", "err", err)
		err = fmt.Errorf("%w: read %s: %w", ErrPersistence, callID, err)
	}

	var live *CallRecord
	if cached, ok := r.live.Get(callID); ok {
		live = &cached
	}
	if base == nil && live == nil {
		return CallRecord{CallID: callID}, false, err
	}
	return Overlay(callID, base, live), true, err
}

// Store exposes the durable store for read paths, which always serve the
// durable view.
func (r *Reconciler) Store() Store { return r.store }

// Live exposes the registry. Intended for tests and diagnostics.
func (r *Reconciler) Live() *Registry { return r.live }
