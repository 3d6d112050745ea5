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
	"github.com/ManuelReschke/TableFox/internal/pkg/cache"
)

const slotLockTestRedisDB = 13

func newRedisManager(t *testing.T) *Manager {
	t.Helper()
	client := cache.NewIsolatedTestClient(t, slotLockTestRedisDB)
	m, err := NewManager(NewRedisStore(client), 2*time.Second, time.Second)
	require.NoError(t, err)
	return m
}

func TestRedisStore_MutualExclusion(t *testing.T) {
	m := newRedisManager(t)
	ctx := context.Background()

	const n = 16
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Acquire(ctx, testRequest()); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestRedisStore_ExtendReleaseLifecycle(t *testing.T) {
	m := newRedisManager(t)
	ctx := context.Background()
	req := testRequest()
	req.SessionID = "redis-session"

	lease, err := m.Acquire(ctx, req)
	require.NoError(t, err)

	extended, err := m.Extend(ctx, lease.Token)
	require.NoError(t, err)
	assert.False(t, extended.ExpiresAt.Before(lease.ExpiresAt))

	lock, err := m.Validate(ctx, lease.Token, req.Key())
	require.NoError(t, err)
	assert.Equal(t, 4, lock.PartySize)

	require.NoError(t, m.Release(ctx, lease.Token, ReasonClient))
	require.NoError(t, m.Release(ctx, lease.Token, ReasonClient))

	_, err = m.Extend(ctx, lease.Token)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	locked, err := m.IsLocked(ctx, req.Key())
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestRedisStore_StaleReleaseKeepsNewerLock(t *testing.T) {
	m := newRedisManager(t)
	ctx := context.Background()
	req := testRequest()

	first, err := m.Acquire(ctx, req)
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, first.Token, ReasonClient))

	second, err := m.Acquire(ctx, req)
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, first.Token, ReasonClient))

	_, err = m.Validate(ctx, second.Token, req.Key())
	assert.NoError(t, err)
}

func TestRedisStore_LeaseExpires(t *testing.T) {
	m := newRedisManager(t)
	ctx := context.Background()

	lease, err := m.Acquire(ctx, testRequest())
	require.NoError(t, err)

	time.Sleep(2*time.Second + 100*time.Millisecond)
	_, err = m.Validate(ctx, lease.Token, testRequest().Key())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = m.Acquire(ctx, testRequest())
	assert.NoError(t, err)
}

func TestRedisStore_SessionSupersedes(t *testing.T) {
	m := newRedisManager(t)
	ctx := context.Background()

	req := testRequest()
	req.SessionID = "sess-redis"
	first, err := m.Acquire(ctx, req)
	require.NoError(t, err)

	req.Time = "21:15"
	_, err = m.Acquire(ctx, req)
	require.NoError(t, err)

	_, err = m.Validate(ctx, first.Token, testRequest().Key())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
