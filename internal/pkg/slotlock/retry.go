package slotlock

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
)

// RetryPolicy bounds how often a conflicting acquire is retried.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Jitter      time.Duration
}

// DefaultRetryPolicy is one retry after 300ms.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 2, Delay: 300 * time.Millisecond}

func (p RetryPolicy) wait(ctx context.Context) error {
	d := p.Delay
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AcquireWithRetry retries only on conflict. Other errors return at once.
func (m *Manager) AcquireWithRetry(ctx context.Context, req AcquireRequest, policy RetryPolicy) (*Lease, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lease, err := m.Acquire(ctx, req)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return nil, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if werr := policy.wait(ctx); werr != nil {
			return nil, werr
		}
	}
	return nil, lastErr
}
