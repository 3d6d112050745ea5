// Package reconcile keeps bookings consistent with the payment provider. It
// applies webhook events idempotently, retries failed processing with backoff
// and repairs drift by trusting the provider's view of each payment.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TableFox/app/models"
	"github.com/ManuelReschke/TableFox/app/repository"
	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
	"github.com/ManuelReschke/TableFox/internal/pkg/booking"
	"github.com/ManuelReschke/TableFox/internal/pkg/metrics"
	"github.com/ManuelReschke/TableFox/internal/pkg/notify"
	"github.com/ManuelReschke/TableFox/internal/pkg/payment"
)

const actorWebhook = "webhook"

type Options struct {
	Backoff    Backoff
	DrainBatch int
	SweepBatch int
}

type Service struct {
	bookings repository.BookingRepository
	payments repository.PaymentRepository
	webhooks repository.WebhookRepository
	provider payment.Provider
	notifier notify.Dispatcher
	opts     Options
	now      func() time.Time
}

func NewService(repos *repository.Repositories, provider payment.Provider, notifier notify.Dispatcher, opts Options) *Service {
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.DrainBatch <= 0 {
		opts.DrainBatch = 50
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = 100
	}
	return &Service{
		bookings: repos.Booking,
		payments: repos.Payment,
		webhooks: repos.Webhook,
		provider: provider,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

// HandleEvent records ev and applies it at most once. A processing failure is
// queued for retry and not returned; only a failure to record or queue is,
// so the provider redelivers.
func (s *Service) HandleEvent(ctx context.Context, ev *payment.Event, signatureValid bool) error {
	if ev == nil || ev.ID == "" {
		return apperr.Validation("invalid_event", "webhook event has no id")
	}

	created, stored, err := s.webhooks.CreateEventIfNotExists(ctx, &models.PaymentWebhookEvent{
		Provider:        models.PaymentProviderStripe,
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		PayloadJSON:     string(ev.Payload),
		SignatureValid:  signatureValid,
		Status:          models.WebhookStatusReceived,
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(ev.Type, "store_error").Inc()
		return apperr.Upstream("webhook_store_unavailable", err)
	}
	if !created {
		log.Infof("[Reconcile] Duplicate delivery of event %s (%s)", ev.ID, stored.Status)
	}

	return s.run(ctx, stored, ev)
}

// run claims the stored event, applies it and records the outcome. Events
// that are already terminal or claimed elsewhere are left alone.
func (s *Service) run(ctx context.Context, stored *models.PaymentWebhookEvent, ev *payment.Event) error {
	switch stored.Status {
	case models.WebhookStatusProcessed, models.WebhookStatusIgnored:
		metrics.WebhookEvents.WithLabelValues(ev.Type, "duplicate").Inc()
		return nil
	}

	claimed, err := s.webhooks.ClaimEvent(ctx, stored.Provider, stored.ProviderEventID)
	if err != nil {
		return apperr.Upstream("webhook_store_unavailable", err)
	}
	if !claimed {
		metrics.WebhookEvents.WithLabelValues(ev.Type, "in_flight").Inc()
		return nil
	}

	status, applyErr := s.apply(ctx, ev)
	if applyErr != nil {
		log.Warnf("[Reconcile] Processing event %s failed, queued for retry: %v", ev.ID, applyErr)
		metrics.WebhookEvents.WithLabelValues(ev.Type, "failed").Inc()
		if err := s.webhooks.MarkEvent(ctx, stored.Provider, stored.ProviderEventID, models.WebhookStatusFailed, applyErr.Error()); err != nil {
			log.Errorf("[Reconcile] Failed to mark event %s failed: %v", ev.ID, err)
		}
		return s.queueRetry(ctx, stored, applyErr)
	}

	if err := s.webhooks.MarkEvent(ctx, stored.Provider, stored.ProviderEventID, status, ""); err != nil {
		// The state change is applied; a stuck row is recovered and replays as a no-op.
		log.Errorf("[Reconcile] Failed to mark event %s %s: %v", ev.ID, status, err)
	}
	if err := s.webhooks.DeleteRetry(ctx, stored.Provider, stored.ProviderEventID); err != nil {
		log.Warnf("[Reconcile] Failed to remove retry entry for %s: %v", ev.ID, err)
	}
	metrics.WebhookEvents.WithLabelValues(ev.Type, status).Inc()
	s.updateQueueDepth(ctx)
	return nil
}

// apply performs the state change for ev and returns the terminal webhook
// status to record.
func (s *Service) apply(ctx context.Context, ev *payment.Event) (string, error) {
	switch ev.Type {
	case payment.EventIntentSucceeded, payment.EventIntentFailed, payment.EventIntentCanceled:
	default:
		return models.WebhookStatusIgnored, nil
	}

	pay, b, err := s.findByIntent(ctx, ev.IntentID, ev.BookingReference)
	if err != nil {
		return "", err
	}

	if ev.Type == payment.EventIntentSucceeded {
		err = s.markSucceeded(ctx, pay, b, actorWebhook, "provider event "+ev.ID)
		if errors.Is(err, errPaidAfterFailure) {
			// Settled and audited; replaying it would not change the outcome.
			return models.WebhookStatusProcessed, nil
		}
	} else {
		err = s.markFailed(ctx, pay, b, actorWebhook, "provider event "+ev.ID)
	}
	if err != nil {
		return "", err
	}
	return models.WebhookStatusProcessed, nil
}

// findByIntent resolves the payment and booking for an intent. A webhook can
// arrive before the booking transaction commits, so a miss is retryable.
func (s *Service) findByIntent(ctx context.Context, intentID, reference string) (*models.Payment, *models.Booking, error) {
	pay, err := s.payments.GetByIntentID(ctx, intentID)
	if errors.Is(err, gorm.ErrRecordNotFound) && reference != "" {
		b, berr := s.bookings.GetByReference(ctx, reference)
		if berr == nil {
			pay, err = s.payments.GetByBookingID(ctx, b.ID)
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperr.NotFound("payment_not_found", "no payment for intent "+intentID)
	}
	if err != nil {
		return nil, nil, err
	}

	b, err := s.bookings.GetByID(ctx, pay.BookingID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperr.NotFound("booking_not_found", fmt.Sprintf("no booking %d for payment %d", pay.BookingID, pay.ID))
	}
	if err != nil {
		return nil, nil, err
	}
	return pay, b, nil
}

// errPaidAfterFailure reports a success for a booking that already reached
// payment_failed. Its table may have been rebooked, so the booking is left
// alone and the payment needs a refund or an operator re-booking.
var errPaidAfterFailure = apperr.Inconsistent(ReasonPaymentSucceededBookingFailed, "payment succeeded after the booking failed; refund or re-book")

// markSucceeded moves the payment to succeeded and a pending_payment booking
// to confirmed, auditing each change and confirming the guest once. A
// payment_failed booking is never revived.
func (s *Service) markSucceeded(ctx context.Context, pay *models.Payment, b *models.Booking, actor, reason string) error {
	now := s.now().UTC()
	failed := b.Status == models.BookingStatusPaymentFailed
	if pay.Status != models.PaymentStatusSucceeded {
		entries := []*models.AuditLog{
			booking.AuditEntry(models.AuditEntityPayment, pay.ID, "payment_status", pay.Status, models.PaymentStatusSucceeded, actor, reason),
		}
		if failed {
			entries = append(entries, booking.AuditEntry(models.AuditEntityBooking, b.ID, "payment_after_failure",
				string(b.Status), string(b.Status), actor, reason+"; refund or re-book"))
		}
		ok, err := s.payments.UpdateStatus(ctx, pay.ID, []string{models.PaymentStatusPending, models.PaymentStatusFailed, models.PaymentStatusCancelled}, models.PaymentStatusSucceeded, &now, entries...)
		if err != nil {
			return err
		}
		if ok {
			pay.Status = models.PaymentStatusSucceeded
			pay.ProcessedAt = &now
		}
	} else if pay.ProcessedAt == nil {
		entry := booking.AuditEntry(models.AuditEntityPayment, pay.ID, "processed_at", "", now.Format(time.RFC3339), actor, reason)
		ok, err := s.payments.UpdateStatus(ctx, pay.ID, []string{models.PaymentStatusSucceeded}, models.PaymentStatusSucceeded, &now, entry)
		if err != nil {
			return err
		}
		if ok {
			pay.ProcessedAt = &now
		}
	}

	switch b.Status {
	case models.BookingStatusPendingPayment:
		from := b.Status
		entry := booking.AuditEntry(models.AuditEntityBooking, b.ID, "status_change", string(from), string(models.BookingStatusConfirmed), actor, reason)
		ok, err := s.bookings.UpdateStatus(ctx, b.ID, []models.BookingStatus{from}, models.BookingStatusConfirmed, entry)
		if err != nil {
			return err
		}
		if ok {
			b.Status = models.BookingStatusConfirmed
			log.Infof("[Reconcile] Booking %s confirmed after payment", b.Reference)
		}
	case models.BookingStatusPaymentFailed:
		log.Errorf("[Reconcile] Payment %d succeeded for failed booking %s; refund or re-book", pay.ID, b.Reference)
		return errPaidAfterFailure
	case models.BookingStatusCancelled:
		log.Warnf("[Reconcile] Payment %d succeeded for cancelled booking %s; refund may be due", pay.ID, b.Reference)
	}

	if b.Status == models.BookingStatusConfirmed {
		booking.SendConfirmationOnce(ctx, s.bookings, s.notifier, b, now)
	}
	return nil
}

// markFailed records a failed or cancelled intent. The booking becomes
// payment_failed, which is distinct from a guest or staff cancellation.
func (s *Service) markFailed(ctx context.Context, pay *models.Payment, b *models.Booking, actor, reason string) error {
	if pay.Status == models.PaymentStatusSucceeded {
		// A late failure event never overrides a settled success.
		log.Warnf("[Reconcile] Ignoring failure for succeeded payment %d", pay.ID)
		return nil
	}
	if pay.Status != models.PaymentStatusFailed {
		entry := booking.AuditEntry(models.AuditEntityPayment, pay.ID, "payment_status", pay.Status, models.PaymentStatusFailed, actor, reason)
		ok, err := s.payments.UpdateStatus(ctx, pay.ID, []string{models.PaymentStatusPending, models.PaymentStatusCancelled}, models.PaymentStatusFailed, nil, entry)
		if err != nil {
			return err
		}
		if ok {
			pay.Status = models.PaymentStatusFailed
		}
	}

	from := b.Status
	switch from {
	case models.BookingStatusPendingPayment, models.BookingStatusConfirmed, models.BookingStatusLate:
	default:
		return nil
	}
	entry := booking.AuditEntry(models.AuditEntityBooking, b.ID, "status_change", string(from), string(models.BookingStatusPaymentFailed), actor, reason)
	ok, err := s.bookings.UpdateStatus(ctx, b.ID, []models.BookingStatus{from}, models.BookingStatusPaymentFailed, entry)
	if err != nil {
		return err
	}
	if ok {
		b.Status = models.BookingStatusPaymentFailed
		if err := s.notifier.Dispatch(ctx, booking.MessageFor(notify.KindPaymentFailed, b)); err != nil {
			log.Errorf("[Reconcile] Failed to dispatch payment failure for %s: %v", b.Reference, err)
		}
	}
	return nil
}
