// Package metrics exposes Prometheus collectors for the reservation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LockAcquisitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablefox_slot_lock_acquisitions_total",
			Help: "Slot lock acquire attempts by outcome",
		},
		[]string{"outcome"},
	)

	LockReleases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablefox_slot_lock_releases_total",
			Help: "Slot lock releases by reason",
		},
		[]string{"reason"},
	)

	LocksReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablefox_slot_locks_reaped_total",
			Help: "Expired slot lock rows deleted by the reaper",
		},
	)

	BookingSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablefox_booking_submissions_total",
			Help: "Booking submissions by outcome",
		},
		[]string{"outcome"},
	)

	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablefox_webhook_events_total",
			Help: "Payment webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	RetryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tablefox_webhook_retry_queue_depth",
			Help: "Webhook events waiting for a retry",
		},
	)

	Repairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablefox_reconcile_repairs_total",
			Help: "Reconciliation corrections by drift reason",
		},
		[]string{"reason"},
	)

	Refunds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablefox_refunds_total",
			Help: "Refund attempts by outcome",
		},
		[]string{"outcome"},
	)

	Jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablefox_jobs_total",
			Help: "Background job attempts by type and resulting status",
		},
		[]string{"type", "status"},
	)

	JobQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tablefox_job_queue_depth",
			Help: "Background jobs per queue list",
		},
		[]string{"list"},
	)
)

func init() {
	prometheus.MustRegister(
		LockAcquisitions,
		LockReleases,
		LocksReaped,
		BookingSubmissions,
		WebhookEvents,
		RetryQueueDepth,
		Repairs,
		Refunds,
		Jobs,
		JobQueueDepth,
	)
}
