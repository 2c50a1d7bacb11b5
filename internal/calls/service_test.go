package calls

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct {
	*MemoryStore
	getErr error
}

func (b brokenStore) Get(ctx context.Context, callID string) (CallRecord, error) {
	return CallRecord{}, b.getErr
}

func newReconciler(store Store) *Reconciler {
	return NewReconciler(store, NewRegistry(), NewKeyedMutex()).WithClock(func() time.Time { return at(100) })
}

func TestReconciler_RequiresCallID(t *testing.T) {
	r := newReconciler(NewMemoryStore())
	_, err := r.Apply(context.Background(), Update{})
	require.ErrorIs(t, err, ErrMissingCallID)
}

func TestReconciler_UsesClockWhenUpdateHasNoTime(t *testing.T) {
	store := NewMemoryStore()
	r := newReconciler(store)

	rec, err := r.Apply(context.Background(), Update{CallID: "c1", Status: StatusPtr(CallStatusActive)})
	require.NoError(t, err)
	requireTime(t, at(100), rec.CreatedAt)
	requireTime(t, at(100), rec.UpdatedAt)
}

func TestReconciler_EndToEndLifecycle(t *testing.T) {
	store := NewMemoryStore()
	r := newReconciler(store)
	ctx := context.Background()

	_, err := r.Apply(ctx, startedUpdate("X", at(0)))
	require.NoError(t, err)
	_, ok := r.Live().Get("X")
	assert.True(t, ok, "started call should be cached")

	_, err = r.Apply(ctx, screenedUpdate("X", VerdictScam, "caller requests gift card payment", at(3)))
	require.NoError(t, err)
	_, err = r.Apply(ctx, Update{CallID: "X", At: at(4), Status: StatusPtr(CallStatusTerminated), TerminatedAt: TimePtr(at(4))})
	require.NoError(t, err)
	_, err = r.Apply(ctx, endedUpdate("X", at(5)))
	require.NoError(t, err)

	got, err := store.Get(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, CallStatusEnded, got.Status)
	assert.Equal(t, VerdictScam, got.ScreeningVerdict)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.EndedAt)
	requireTime(t, at(0), got.CreatedAt)

	_, ok = r.Live().Get("X")
	assert.False(t, ok, "ended call should be evicted after a durable write")
}

func TestReconciler_ConcurrentVerdictAndEndKeepBoth(t *testing.T) {
	store := NewMemoryStore()
	r := newReconciler(store)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("call-%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := r.Apply(ctx, screenedUpdate(id, VerdictScam, "caller requests gift card payment", at(1)))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := r.Apply(ctx, endedUpdate(id, at(1)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		got, err := store.Get(ctx, fmt.Sprintf("call-%d", i))
		require.NoError(t, err)
		assert.Equal(t, VerdictScam, got.ScreeningVerdict)
		assert.Equal(t, CallStatusEnded, got.Status)
	}
}

func TestReconciler_PersistenceFailureStillReturnsMerged(t *testing.T) {
	store := NewMemoryStore()
	store.FailUpsert = errors.New("disk full")
	r := newReconciler(store)

	rec, err := r.Apply(context.Background(), screenedUpdate("c1", VerdictSafe, "caller asks about appointment", at(1)))
	require.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, VerdictSafe, rec.ScreeningVerdict)

	cached, ok := r.Live().Get("c1")
	require.True(t, ok, "unpersisted state must stay cached")
	assert.Equal(t, VerdictSafe, cached.ScreeningVerdict)

	// Later writes still see the cached verdict once the store recovers.
	store.FailUpsert = nil
	_, err = r.Apply(context.Background(), endedUpdate("c1", at(2)))
	require.NoError(t, err)
	got, err := store.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, VerdictSafe, got.ScreeningVerdict)
	assert.Equal(t, CallStatusEnded, got.Status)
}

func TestReconciler_ReadFailureSkipsWrite(t *testing.T) {
	mem := NewMemoryStore()
	r := newReconciler(brokenStore{MemoryStore: mem, getErr: errors.New("connection reset")})

	rec, err := r.Apply(context.Background(), endedUpdate("c1", at(1)))
	require.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, CallStatusEnded, rec.Status)
	assert.Equal(t, 0, mem.Upserts())
}

func TestReconciler_CurrentOverlaysLiveOnStore(t *testing.T) {
	store := NewMemoryStore()
	r := newReconciler(store)
	ctx := context.Background()

	_, found, err := r.Current(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Upsert(ctx, Merge(nil, nil, startedUpdate("c1", at(0)), at(0))))
	r.Live().Put(CallRecord{CallID: "c1", TransferInitiated: true, TransferTarget: "+15559999"})

	cur, found, err := r.Current(ctx, "c1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, CallStatusActive, cur.Status)
	assert.True(t, cur.TransferInitiated)
}

func TestReconciler_ExchangeReturnsPriorState(t *testing.T) {
	r := newReconciler(NewMemoryStore())
	ctx := context.Background()

	prev, known, merged, err := r.Exchange(ctx, "c1", func(now time.Time) Update {
		requireTime(t, at(100), &now)
		return screenedUpdate("ignored", VerdictSafe, "caller asks about appointment", time.Time{})
	})
	require.NoError(t, err)
	assert.False(t, known)
	assert.Equal(t, "c1", prev.CallID)
	assert.Equal(t, "c1", merged.CallID)
	requireTime(t, at(100), merged.CreatedAt)

	prev, known, merged, err = r.Exchange(ctx, "c1", func(now time.Time) Update {
		return screenedUpdate("c1", VerdictScam, "caller demands gift cards", now)
	})
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, VerdictSafe, prev.ScreeningVerdict)
	assert.Equal(t, "caller asks about appointment", prev.ScreeningSummary)
	assert.Equal(t, VerdictScam, merged.ScreeningVerdict)
}

func TestReconciler_ExchangeStampsInMergeOrder(t *testing.T) {
	var tick atomic.Int64
	store := NewMemoryStore()
	r := NewReconciler(store, NewRegistry(), NewKeyedMutex()).
		WithClock(func() time.Time { return at(int(tick.Add(1))) })
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _, err := r.Exchange(ctx, "c1", func(now time.Time) Update {
				return Update{At: now, Status: StatusPtr(CallStatusActive), StartedAt: TimePtr(now)}
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	requireTime(t, at(1), got.CreatedAt)
	requireTime(t, at(n), got.UpdatedAt)
	requireTime(t, at(n), got.StartedAt)
}
