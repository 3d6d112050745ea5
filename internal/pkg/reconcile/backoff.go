package reconcile

import "time"

// Backoff schedules retries of failed webhook processing: Base doubled per
// attempt up to MaxDoublings, then a flat Fallback cadence once MaxAttempts
// is exceeded.
type Backoff struct {
	Base         time.Duration
	MaxDoublings int
	MaxAttempts  int
	Fallback     time.Duration
}

var DefaultBackoff = Backoff{
	Base:         2 * time.Minute,
	MaxDoublings: 6,
	MaxAttempts:  10,
	Fallback:     24 * time.Hour,
}

// Delay returns the wait before attempt retryCount (1-based).
func (b Backoff) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	if b.MaxAttempts > 0 && retryCount > b.MaxAttempts {
		return b.Fallback
	}
	shift := retryCount - 1
	if shift > b.MaxDoublings {
		shift = b.MaxDoublings
	}
	return b.Base * time.Duration(1<<uint(shift))
}
