package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TableFox/app/models"
	"github.com/ManuelReschke/TableFox/app/repository/repotest"
	"github.com/ManuelReschke/TableFox/internal/pkg/auditexport"
	"github.com/ManuelReschke/TableFox/internal/pkg/bootstrap"
	"github.com/ManuelReschke/TableFox/internal/pkg/cache"
	"github.com/ManuelReschke/TableFox/internal/pkg/config"
	"github.com/ManuelReschke/TableFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TableFox/internal/pkg/notify/notifytest"
	"github.com/ManuelReschke/TableFox/internal/pkg/payment"
	"github.com/ManuelReschke/TableFox/internal/pkg/reconcile"
	"github.com/ManuelReschke/TableFox/internal/pkg/slotlock"
)

// useFakeServices points the commands at in-memory repositories.
func useFakeServices(t *testing.T) *repotest.DB {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	db := repotest.New()
	services, err := bootstrap.NewServices(cfg, db.Repositories(), slotlock.NewMemoryStore(), payment.NewMemoryProvider(), &notifytest.Recorder{})
	require.NoError(t, err)

	prev := loadServices
	loadServices = func() (*bootstrap.Services, error) { return services, nil }
	t.Cleanup(func() { loadServices = prev })
	return db
}

func run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReconcileCheckPrintsReport(t *testing.T) {
	db := useFakeServices(t)
	b := db.AddBooking(models.Booking{Reference: "TF-AAAAAA", Status: models.BookingStatusConfirmed})

	out, err := run("reconcile", "check", "--booking-id", "1")
	require.NoError(t, err)

	var report reconcile.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, b.ID, report.BookingID)
	assert.True(t, report.Consistent)
}

func TestReconcileRequiresBookingID(t *testing.T) {
	useFakeServices(t)

	_, err := run("reconcile", "repair")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--booking-id")
}

func TestRefundValidatesFlags(t *testing.T) {
	useFakeServices(t)

	_, err := run("refund", "--payment-id", "7", "--amount", "0", "--reason", "spilled wine")
	assert.Error(t, err)
}

func TestLocksReap(t *testing.T) {
	useFakeServices(t)

	out, err := run("locks", "reap")
	require.NoError(t, err)
	assert.Equal(t, "reaped 0 expired locks\n", out)
}

func TestRetryDrainOnEmptyQueue(t *testing.T) {
	useFakeServices(t)

	out, err := run("retry", "drain")
	require.NoError(t, err)
	assert.JSONEq(t, `{"attempted":0,"succeeded":0,"failed":0}`, out)
}

func TestAuditExportDisabled(t *testing.T) {
	useFakeServices(t)

	_, err := run("audit", "export", "--since", "2026-03-01", "--until", "2026-03-02")
	assert.True(t, errors.Is(err, auditexport.ErrDisabled))
}

func TestExportWindow(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	from, to, err := exportWindow("", "", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), from)
	assert.Equal(t, now, to)

	from, to, err = exportWindow("2026-03-01", "2026-03-02T06:00:00+01:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC), to)

	_, _, err = exportWindow("2026-03-02", "2026-03-01", now)
	assert.Error(t, err)

	_, _, err = exportWindow("yesterday", "", now)
	assert.Error(t, err)
}

func TestJobsStats(t *testing.T) {
	client := cache.NewIsolatedTestClient(t, 13)
	prev := openQueue
	openQueue = func() *jobqueue.Queue { return jobqueue.NewQueue(client, 1) }
	t.Cleanup(func() { openQueue = prev })

	_, err := jobqueue.NewQueue(client, 1).Enqueue(context.Background(), jobqueue.JobTypeSendNotification, map[string]string{"reference": "TF-AAAAAA"})
	require.NoError(t, err)

	out, err := run("jobs", "stats")
	require.NoError(t, err)
	assert.JSONEq(t, `{"pending":1,"processing":0,"delayed":0,"dead":0}`, out)
}
