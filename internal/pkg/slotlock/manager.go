package slotlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TableFox/app/models"
	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
	"github.com/ManuelReschke/TableFox/internal/pkg/metrics"
	"github.com/ManuelReschke/TableFox/internal/pkg/shortener"
)

const tokenLength = 32

// Release reasons recorded in metrics and logs.
const (
	ReasonClient     = "client"
	ReasonBooked     = "booked"
	ReasonSuperseded = "superseded"
)

var validate = validator.New()

// AcquireRequest describes the slot a checkout session wants to hold.
type AcquireRequest struct {
	VenueID   uint   `json:"venue_id" validate:"required"`
	ServiceID uint   `json:"service_id" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Time      string `json:"time" validate:"required,datetime=15:04"`
	PartySize int    `json:"party_size" validate:"required,min=1,max=100"`
	SessionID string `json:"session_id" validate:"max=100"`
}

func (r AcquireRequest) Key() Key {
	return Key{VenueID: r.VenueID, ServiceID: r.ServiceID, Date: r.Date, Time: r.Time}
}

// Lease is what the client needs to keep the lock alive.
type Lease struct {
	Token             string        `json:"token"`
	ExpiresAt         time.Time     `json:"expires_at"`
	HeartbeatInterval time.Duration `json:"-"`
}

type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTokenGenerator replaces the random token source.
func WithTokenGenerator(gen func() (string, error)) Option {
	return func(m *Manager) { m.newToken = gen }
}

// Manager is the only writer of slot locks.
type Manager struct {
	store     Store
	lease     time.Duration
	heartbeat time.Duration
	now       func() time.Time
	newToken  func() (string, error)
}

// NewManager requires heartbeat < lease so a single missed heartbeat does not
// drop the lease.
func NewManager(store Store, lease, heartbeat time.Duration, opts ...Option) (*Manager, error) {
	if lease <= 0 {
		return nil, fmt.Errorf("lease must be positive, got %s", lease)
	}
	if heartbeat <= 0 || heartbeat >= lease {
		return nil, fmt.Errorf("heartbeat (%s) must be positive and shorter than lease (%s)", heartbeat, lease)
	}
	m := &Manager{
		store:     store,
		lease:     lease,
		heartbeat: heartbeat,
		now:       time.Now,
		newToken:  func() (string, error) { return shortener.GenerateSecureSlug(tokenLength) },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) LeaseDuration() time.Duration     { return m.lease }
func (m *Manager) HeartbeatInterval() time.Duration { return m.heartbeat }

// Acquire claims the slot. A held slot yields an apperr conflict; store
// failures are upstream errors.
func (m *Manager) Acquire(ctx context.Context, req AcquireRequest) (*Lease, error) {
	if err := validate.Struct(req); err != nil {
		metrics.LockAcquisitions.WithLabelValues("invalid").Inc()
		return nil, &apperr.Error{Kind: apperr.KindValidation, Code: "invalid_request", Message: "invalid lock request", Err: err}
	}

	if req.SessionID != "" {
		n, err := m.store.DeleteBySession(ctx, req.SessionID)
		if err != nil {
			metrics.LockAcquisitions.WithLabelValues("error").Inc()
			return nil, apperr.Upstream("lock_store_unavailable", err)
		}
		if n > 0 {
			metrics.LockReleases.WithLabelValues(ReasonSuperseded).Add(float64(n))
		}
	}

	token, err := m.newToken()
	if err != nil {
		return nil, fmt.Errorf("generate lock token: %w", err)
	}

	now := m.now().UTC()
	lock := &models.SlotLock{
		Token:          token,
		VenueID:        req.VenueID,
		ServiceID:      req.ServiceID,
		SlotDate:       req.Date,
		SlotTime:       req.Time,
		PartySize:      req.PartySize,
		SessionID:      req.SessionID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.lease),
		LastExtendedAt: now,
	}

	if err := m.store.Insert(ctx, lock, now); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			metrics.LockAcquisitions.WithLabelValues("conflict").Inc()
			return nil, apperr.Conflict("slot_unavailable", "slot "+req.Key().String()+" is being booked")
		}
		metrics.LockAcquisitions.WithLabelValues("error").Inc()
		return nil, apperr.Upstream("lock_store_unavailable", err)
	}

	metrics.LockAcquisitions.WithLabelValues("acquired").Inc()
	return &Lease{Token: token, ExpiresAt: lock.ExpiresAt, HeartbeatInterval: m.heartbeat}, nil
}

// Extend pushes the lease one full lease duration past now.
func (m *Manager) Extend(ctx context.Context, token string) (*Lease, error) {
	now := m.now().UTC()
	lock, err := m.store.Extend(ctx, token, now.Add(m.lease), now)
	if errors.Is(err, ErrLockNotFound) {
		return nil, apperr.NotFound("lock_expired", "slot lock expired or released")
	}
	if err != nil {
		return nil, apperr.Upstream("lock_store_unavailable", err)
	}
	return &Lease{Token: lock.Token, ExpiresAt: lock.ExpiresAt, HeartbeatInterval: m.heartbeat}, nil
}

// Release is idempotent: unknown, expired and already released tokens are
// not errors.
func (m *Manager) Release(ctx context.Context, token, reason string) error {
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, token); err != nil {
		log.Warnf("[SlotLock] Failed to release lock (reason=%s): %v", reason, err)
		return err
	}
	metrics.LockReleases.WithLabelValues(reason).Inc()
	return nil
}

// Validate returns the active lock for token if it covers key.
func (m *Manager) Validate(ctx context.Context, token string, key Key) (*models.SlotLock, error) {
	lock, err := m.store.Get(ctx, token, m.now().UTC())
	if errors.Is(err, ErrLockNotFound) {
		return nil, apperr.NotFound("lock_expired", "slot lock expired or released")
	}
	if err != nil {
		return nil, apperr.Upstream("lock_store_unavailable", err)
	}
	if KeyOf(lock) != key {
		return nil, apperr.Conflict("lock_mismatch", "slot lock covers "+KeyOf(lock).String()+", not "+key.String())
	}
	return lock, nil
}

// IsLocked reports whether another checkout currently holds the slot.
func (m *Manager) IsLocked(ctx context.Context, key Key) (bool, error) {
	_, err := m.store.ActiveForKey(ctx, key, m.now().UTC())
	if errors.Is(err, ErrLockNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Reap deletes expired rows. Reads never depend on it having run.
func (m *Manager) Reap(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.LocksReaped.Add(float64(n))
		log.Infof("[SlotLock] Reaped %d expired locks", n)
	}
	return n, nil
}
