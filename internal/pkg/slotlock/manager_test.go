package slotlock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
)

const (
	testLease     = 5 * time.Minute
	testHeartbeat = 4 * time.Minute
)

func newTestManager(t *testing.T) (*Manager, *MemoryStore, *fakeClock) {
	t.Helper()
	store := NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)}
	m, err := NewManager(store, testLease, testHeartbeat, WithClock(clock.Now))
	require.NoError(t, err)
	return m, store, clock
}

func testRequest() AcquireRequest {
	return AcquireRequest{VenueID: 1, ServiceID: 2, Date: "2026-03-20", Time: "19:30", PartySize: 4}
}

func TestNewManager_RejectsHeartbeatNotBelowLease(t *testing.T) {
	_, err := NewManager(NewMemoryStore(), time.Minute, time.Minute)
	assert.Error(t, err)

	_, err = NewManager(NewMemoryStore(), time.Minute, 2*time.Minute)
	assert.Error(t, err)

	_, err = NewManager(NewMemoryStore(), 0, 0)
	assert.Error(t, err)
}

func TestAcquire_ReturnsLeaseAndBlocksSameKey(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()

	lease, err := m.Acquire(ctx, testRequest())
	require.NoError(t, err)
	assert.Len(t, lease.Token, tokenLength)
	assert.Equal(t, clock.Now().Add(testLease), lease.ExpiresAt)
	assert.Equal(t, testHeartbeat, lease.HeartbeatInterval)

	_, err = m.Acquire(ctx, testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, "slot_unavailable", apperr.CodeOf(err))
}

func TestAcquire_DifferentKeysDoNotConflict(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, testRequest())
	require.NoError(t, err)

	other := testRequest()
	other.Time = "20:00"
	_, err = m.Acquire(ctx, other)
	assert.NoError(t, err)
}

func TestAcquire_ValidationErrors(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	cases := map[string]func(r *AcquireRequest){
		"zero party":    func(r *AcquireRequest) { r.PartySize = 0 },
		"bad date":      func(r *AcquireRequest) { r.Date = "20/03/2026" },
		"bad time":      func(r *AcquireRequest) { r.Time = "7pm" },
		"missing venue": func(r *AcquireRequest) { r.VenueID = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := testRequest()
			mutate(&req)
			_, err := m.Acquire(ctx, req)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestAcquire_StoreFailureIsUpstream(t *testing.T) {
	m, store, _ := newTestManager(t)
	store.Err = errors.New("connection refused")

	_, err := m.Acquire(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
}

func TestAcquire_MutualExclusion(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	const n = 32
	var wins, conflicts int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := m.Acquire(ctx, testRequest())
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, apperr.ErrConflict):
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(n-1), conflicts)
}

func TestLease_ExpiryIsAPredicate(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()
	req := testRequest()

	lease, err := m.Acquire(ctx, req)
	require.NoError(t, err)

	clock.Advance(testLease - time.Millisecond)
	locked, err := m.IsLocked(ctx, req.Key())
	require.NoError(t, err)
	assert.True(t, locked)
	_, err = m.Acquire(ctx, req)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	// No reaper has run; the row is still present but must read as absent.
	clock.Advance(2 * time.Millisecond)
	locked, err = m.IsLocked(ctx, req.Key())
	require.NoError(t, err)
	assert.False(t, locked)
	_, err = m.Validate(ctx, lease.Token, req.Key())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	second, err := m.Acquire(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, lease.Token, second.Token)
}

func TestExtend(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()

	lease, err := m.Acquire(ctx, testRequest())
	require.NoError(t, err)

	clock.Advance(testHeartbeat)
	extended, err := m.Extend(ctx, lease.Token)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(testLease), extended.ExpiresAt)

	// Past the original deadline, still held thanks to the heartbeat.
	clock.Advance(testLease - time.Second)
	_, err = m.Validate(ctx, lease.Token, testRequest().Key())
	assert.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = m.Extend(ctx, lease.Token)
	require.Error(t, err)
	assert.Equal(t, "lock_expired", apperr.CodeOf(err))
}

func TestExtend_ReleasedToken(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	lease, err := m.Acquire(ctx, testRequest())
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, lease.Token, ReasonClient))

	_, err = m.Extend(ctx, lease.Token)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestRelease_IdempotentAndScopedToToken(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()
	req := testRequest()

	first, err := m.Acquire(ctx, req)
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, first.Token, ReasonClient))
	require.NoError(t, m.Release(ctx, first.Token, ReasonClient))

	second, err := m.Acquire(ctx, req)
	require.NoError(t, err)

	// Releasing the stale token again must not drop the newer lock.
	require.NoError(t, m.Release(ctx, first.Token, ReasonClient))
	_, err = m.Validate(ctx, second.Token, req.Key())
	assert.NoError(t, err)

	clock.Advance(testLease + time.Second)
	assert.NoError(t, m.Release(ctx, second.Token, ReasonClient))
	assert.NoError(t, m.Release(ctx, "", ReasonClient))
}

func TestValidate_KeyMismatch(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	lease, err := m.Acquire(ctx, testRequest())
	require.NoError(t, err)

	other := testRequest().Key()
	other.Time = "21:00"
	_, err = m.Validate(ctx, lease.Token, other)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, "lock_mismatch", apperr.CodeOf(err))
}

func TestAcquire_OneLockPerSession(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()

	req := testRequest()
	req.SessionID = "sess-1"
	first, err := m.Acquire(ctx, req)
	require.NoError(t, err)

	req.Time = "20:30"
	_, err = m.Acquire(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Count())
	_, err = m.Validate(ctx, first.Token, testRequest().Key())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestReap_DeletesOnlyExpired(t *testing.T) {
	m, store, clock := newTestManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, testRequest())
	require.NoError(t, err)
	clock.Advance(testLease)

	later := testRequest()
	later.Time = "22:00"
	_, err = m.Acquire(ctx, later)
	require.NoError(t, err)

	n, err := m.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Count())
}

func TestAcquireWithRetry_SecondAttemptAfterRelease(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	holder, err := m.Acquire(ctx, testRequest())
	require.NoError(t, err)

	policy := RetryPolicy{MaxAttempts: 2, Delay: 50 * time.Millisecond}
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = m.Release(ctx, holder.Token, ReasonClient)
	}()

	lease, err := m.AcquireWithRetry(ctx, testRequest(), policy)
	require.NoError(t, err)
	assert.NotEqual(t, holder.Token, lease.Token)
}

// Two clients race within 50ms; the loser retries once after 300ms and is
// still told the slot is unavailable.
func TestAcquireWithRetry_RaceLoserStillConflicts(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i*25) * time.Millisecond)
			_, results[i] = m.AcquireWithRetry(ctx, testRequest(), DefaultRetryPolicy)
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range results {
		if err == nil {
			ok++
		} else if errors.Is(err, apperr.ErrConflict) {
			conflict++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflict)
}

func TestAcquireWithRetry_DoesNotRetryValidation(t *testing.T) {
	m, _, _ := newTestManager(t)
	req := testRequest()
	req.PartySize = 0

	start := time.Now()
	_, err := m.AcquireWithRetry(context.Background(), req, RetryPolicy{MaxAttempts: 3, Delay: time.Second})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestAcquireWithRetry_HonoursContext(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Acquire(context.Background(), testRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.AcquireWithRetry(ctx, testRequest(), RetryPolicy{MaxAttempts: 5, Delay: time.Second})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
