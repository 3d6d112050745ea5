package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Lock.Lease)
	assert.Equal(t, 4*time.Minute, cfg.Lock.Heartbeat)
	assert.Equal(t, 2, cfg.Lock.AcquireMaxAttempts)
	assert.Equal(t, 300*time.Millisecond, cfg.Lock.AcquireRetryDelay)
	assert.Equal(t, 8, cfg.Allocation.LargePartyThreshold)
	assert.Equal(t, 12, cfg.Allocation.VeryLargePartyThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Retry.BaseDelay)
	assert.Equal(t, 6, cfg.Retry.MaxDoublings)
	assert.Equal(t, 10, cfg.Retry.MaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Retry.FallbackDelay)
}

func TestLoadRejectsHeartbeatNotShorterThanLease(t *testing.T) {
	t.Setenv("LOCK_LEASE", "2m")
	t.Setenv("LOCK_HEARTBEAT", "2m")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCK_HEARTBEAT")
}

func TestLoadRejectsUnknownLockStore(t *testing.T) {
	t.Setenv("LOCK_STORE", "etcd")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("LOCK_STORE", "memory")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Lock.Store)
}

func TestLoadAuditExportNeedsCredentials(t *testing.T) {
	t.Setenv("AUDIT_EXPORT_ENABLED", "true")
	t.Setenv("AUDIT_EXPORT_BUCKET", "audit")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUDIT_EXPORT")

	t.Setenv("AUDIT_EXPORT_ACCESS_KEY_ID", "key")
	t.Setenv("AUDIT_EXPORT_SECRET_ACCESS_KEY", "secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "audit", cfg.Audit.Prefix)
	assert.Equal(t, "4000", cfg.HTTP.Port)
}
