package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TableFox/app/repository/repotest"
	"github.com/ManuelReschke/TableFox/internal/pkg/config"
	"github.com/ManuelReschke/TableFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TableFox/internal/pkg/notify"
	"github.com/ManuelReschke/TableFox/internal/pkg/notify/notifytest"
	"github.com/ManuelReschke/TableFox/internal/pkg/payment"
	"github.com/ManuelReschke/TableFox/internal/pkg/slotlock"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestAllocationOptionsKeepsDefaultSuggestionCap(t *testing.T) {
	opts := AllocationOptions(config.AllocationConfig{
		LargePartyThreshold:     6,
		VeryLargePartyThreshold: 10,
		MinViableDuration:       45 * time.Minute,
	})

	assert.Equal(t, 6, opts.LargePartyThreshold)
	assert.Equal(t, 10, opts.VeryLargePartyThreshold)
	assert.Equal(t, 45*time.Minute, opts.MinViableDuration)
	assert.Equal(t, 5, opts.MaxSuggestions)
}

func TestRetryBackoffFromConfig(t *testing.T) {
	cfg := loadConfig(t)
	b := RetryBackoff(cfg.Retry)

	assert.Equal(t, 2*time.Minute, b.Delay(1))
	assert.Equal(t, 4*time.Minute, b.Delay(2))
	assert.Equal(t, 24*time.Hour, b.Delay(11))
}

func TestNewProvider(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	p, err := NewProvider(config.PaymentConfig{})
	require.NoError(t, err)
	assert.IsType(t, &payment.MemoryProvider{}, p)

	p, err = NewProvider(config.PaymentConfig{StripeSecretKey: "sk_test_123"})
	require.NoError(t, err)
	assert.IsType(t, &payment.StripeProvider{}, p)

	t.Setenv("APP_ENV", "prod")
	_, err = NewProvider(config.PaymentConfig{})
	assert.Error(t, err)
}

func TestNewLockStoreRedisNeedsClient(t *testing.T) {
	_, err := NewLockStore(config.LockConfig{Store: "redis"}, nil, nil)
	assert.Error(t, err)

	store, err := NewLockStore(config.LockConfig{Store: "db"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &slotlock.GormStore{}, store)
}

func TestNewNotifierWithoutRedisHasNoQueue(t *testing.T) {
	rec := &notifytest.Recorder{}
	queue, dispatcher := NewNotifier(nil, false, 2, rec)
	assert.Nil(t, queue)
	assert.IsType(t, notify.Inline{}, dispatcher)

	require.NoError(t, dispatcher.Dispatch(context.Background(), notify.Message{Kind: notify.KindBookingConfirmed, Reference: "TF-AAAAAA"}))
	assert.Equal(t, 1, rec.Count(notify.KindBookingConfirmed))

	manager := jobqueue.NewManager(queue)
	manager.Start()
	manager.Stop()
}

func TestNewLockStoreMemoryOnlyInDev(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	_, err := NewLockStore(config.LockConfig{Store: "memory"}, nil, nil)
	assert.Error(t, err)

	t.Setenv("APP_ENV", "dev")
	store, err := NewLockStore(config.LockConfig{Store: "memory"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &slotlock.MemoryStore{}, store)
}

func TestServicesTasksRunOnEmptyStore(t *testing.T) {
	cfg := loadConfig(t)
	db := repotest.New()
	services, err := NewServices(cfg, db.Repositories(), slotlock.NewMemoryStore(), payment.NewMemoryProvider(), &notifytest.Recorder{})
	require.NoError(t, err)

	tasks := services.Tasks()
	require.Len(t, tasks, 3)

	names := make([]string, 0, len(tasks))
	for _, task := range tasks {
		names = append(names, task.Name)
		assert.Positive(t, task.Interval)
		assert.NoError(t, task.Run(context.Background()), task.Name)
	}
	assert.Equal(t, []string{"slot-lock-reaper", "webhook-retry-drain", "pending-payment-sweep"}, names)
}

func TestNewServicesRejectsBadLease(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Lock.Heartbeat = cfg.Lock.Lease
	_, err := NewServices(cfg, repotest.New().Repositories(), slotlock.NewMemoryStore(), payment.NewMemoryProvider(), &notifytest.Recorder{})
	assert.Error(t, err)
}
