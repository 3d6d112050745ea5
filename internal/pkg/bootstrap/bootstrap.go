// Package bootstrap builds the service graph shared by the HTTP server and
// the operator CLI from a loaded configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TableFox/app/repository"
	"github.com/ManuelReschke/TableFox/internal/pkg/allocation"
	"github.com/ManuelReschke/TableFox/internal/pkg/booking"
	"github.com/ManuelReschke/TableFox/internal/pkg/config"
	"github.com/ManuelReschke/TableFox/internal/pkg/env"
	"github.com/ManuelReschke/TableFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TableFox/internal/pkg/notify"
	"github.com/ManuelReschke/TableFox/internal/pkg/payment"
	"github.com/ManuelReschke/TableFox/internal/pkg/reconcile"
	"github.com/ManuelReschke/TableFox/internal/pkg/refund"
	"github.com/ManuelReschke/TableFox/internal/pkg/slotlock"
)

// Services is the wired reservation core.
type Services struct {
	Config     *config.Config
	Repos      *repository.Repositories
	Provider   payment.Provider
	Locks      *slotlock.Manager
	Pipeline   *booking.Pipeline
	Status     *booking.StatusService
	Reconciler *reconcile.Service
	Refunds    *refund.Processor
}

// NewServices wires every service over repos. notifier decides how guest
// messages leave the process.
func NewServices(cfg *config.Config, repos *repository.Repositories, lockStore slotlock.Store, provider payment.Provider, notifier notify.Dispatcher) (*Services, error) {
	locks, err := slotlock.NewManager(lockStore, cfg.Lock.Lease, cfg.Lock.Heartbeat)
	if err != nil {
		return nil, fmt.Errorf("slot lock manager: %w", err)
	}

	return &Services{
		Config:   cfg,
		Repos:    repos,
		Provider: provider,
		Locks:    locks,
		Pipeline: booking.NewPipeline(repos, locks, provider, notifier, booking.Options{
			Allocation:      AllocationOptions(cfg.Allocation),
			DefaultDuration: cfg.Allocation.DefaultDuration,
			Currency:        cfg.Payment.Currency,
		}),
		Status: booking.NewStatusService(repos, notifier),
		Reconciler: reconcile.NewService(repos, provider, notifier, reconcile.Options{
			Backoff:    RetryBackoff(cfg.Retry),
			DrainBatch: cfg.Retry.DrainBatch,
			SweepBatch: cfg.Reconcile.SweepBatch,
		}),
		Refunds: refund.NewProcessor(repos, provider, notifier),
	}, nil
}

func AllocationOptions(c config.AllocationConfig) allocation.Options {
	opts := allocation.DefaultOptions
	opts.LargePartyThreshold = c.LargePartyThreshold
	opts.VeryLargePartyThreshold = c.VeryLargePartyThreshold
	opts.MinViableDuration = c.MinViableDuration
	if c.MaxSuggestions > 0 {
		opts.MaxSuggestions = c.MaxSuggestions
	}
	return opts
}

func RetryBackoff(c config.RetryConfig) reconcile.Backoff {
	return reconcile.Backoff{
		Base:         c.BaseDelay,
		MaxDoublings: c.MaxDoublings,
		MaxAttempts:  c.MaxAttempts,
		Fallback:     c.FallbackDelay,
	}
}

func LockRetryPolicy(c config.LockConfig) slotlock.RetryPolicy {
	return slotlock.RetryPolicy{
		MaxAttempts: c.AcquireMaxAttempts,
		Delay:       c.AcquireRetryDelay,
		Jitter:      c.AcquireRetryJitter,
	}
}

// NewLockStore picks the slot lock backend named by LOCK_STORE.
func NewLockStore(c config.LockConfig, db *gorm.DB, client *redis.Client) (slotlock.Store, error) {
	switch c.Store {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("LOCK_STORE=redis needs a redis client")
		}
		log.Info("[Bootstrap] Using Redis slot lock store")
		return slotlock.NewRedisStore(client), nil
	case "memory":
		// Leases live in this process only, so a second replica would not see them.
		if !env.IsDev() {
			return nil, fmt.Errorf("LOCK_STORE=memory is only allowed in development")
		}
		log.Warn("[Bootstrap] Using in-memory slot lock store")
		return slotlock.NewMemoryStore(), nil
	default:
		log.Info("[Bootstrap] Using database slot lock store")
		return slotlock.NewGormStore(db), nil
	}
}

// NewNotifier routes notifications through the Redis job queue when Redis is
// reachable. Otherwise it returns no queue and an inline dispatcher, so no
// workers poll a Redis that is down.
func NewNotifier(client *redis.Client, redisUp bool, workers int, sender notify.Sender) (*jobqueue.Queue, notify.Dispatcher) {
	if !redisUp || client == nil {
		log.Warn("[Bootstrap] Redis unavailable, notifications are sent inline")
		return nil, notify.Inline{Sender: sender}
	}
	queue := jobqueue.NewQueue(client, workers)
	queue.Handle(jobqueue.JobTypeSendNotification, jobqueue.NotificationHandler(sender))
	return queue, jobqueue.NewDispatcher(queue)
}

// NewProvider returns the Stripe provider, or the in-memory one in
// development when no secret key is configured.
func NewProvider(c config.PaymentConfig) (payment.Provider, error) {
	if c.StripeSecretKey != "" {
		return payment.NewStripeProvider(c.StripeSecretKey), nil
	}
	if env.IsDev() {
		log.Warn("[Bootstrap] STRIPE_SECRET_KEY not set, using in-memory payment provider")
		return payment.NewMemoryProvider(), nil
	}
	return nil, fmt.Errorf("STRIPE_SECRET_KEY is required outside development")
}

// Tasks are the periodic jobs the server runs next to the job queue.
func (s *Services) Tasks() []jobqueue.Task {
	cfg := s.Config
	return []jobqueue.Task{
		{
			Name:     "slot-lock-reaper",
			Interval: cfg.Lock.ReapInterval,
			Run: func(ctx context.Context) error {
				_, err := s.Locks.Reap(ctx)
				return err
			},
		},
		{
			Name:     "webhook-retry-drain",
			Interval: cfg.Retry.DrainInterval,
			Run: func(ctx context.Context) error {
				if _, err := s.Reconciler.RecoverStuck(ctx, cfg.Retry.StuckAfter); err != nil {
					log.Warnf("[Bootstrap] Stuck webhook recovery failed: %v", err)
				}
				_, err := s.Reconciler.DrainRetryQueue(ctx)
				return err
			},
		},
		{
			Name:     "pending-payment-sweep",
			Interval: cfg.Reconcile.SweepInterval,
			Run: func(ctx context.Context) error {
				_, err := s.Reconciler.SweepPending(ctx, cfg.Reconcile.PendingAge)
				return err
			},
		},
	}
}
