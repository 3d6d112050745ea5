package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TableFox/app/models"
	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
	"github.com/ManuelReschke/TableFox/internal/pkg/booking"
	"github.com/ManuelReschke/TableFox/internal/pkg/metrics"
	"github.com/ManuelReschke/TableFox/internal/pkg/payment"
)

// Drift reasons reported by Check.
const (
	ReasonBookingConfirmedPaymentNotSucceeded = "booking_confirmed_payment_not_succeeded"
	ReasonPaymentSucceededBookingNotConfirmed = "payment_succeeded_booking_not_confirmed"
	ReasonPaymentSucceededBookingFailed       = "payment_succeeded_booking_failed"
	ReasonMissingProcessedTimestamp           = "missing_processed_timestamp"
	ReasonMissingPaymentRecord                = "missing_payment_record"
	ReasonMissingBookingRecord                = "missing_booking_record"
)

// Report is the drift classification for one booking. An empty Reasons list
// means consistent.
type Report struct {
	BookingID      uint                 `json:"booking_id"`
	PaymentID      uint                 `json:"payment_id,omitempty"`
	BookingStatus  models.BookingStatus `json:"booking_status,omitempty"`
	PaymentStatus  string               `json:"payment_status,omitempty"`
	ProviderStatus payment.IntentStatus `json:"provider_status,omitempty"`
	Consistent     bool                 `json:"consistent"`
	Reasons        []string             `json:"reasons"`
}

// Change is one correction made by Repair.
type Change struct {
	Entity   string `json:"entity"`
	EntityID uint   `json:"entity_id"`
	Field    string `json:"field"`
	Old      string `json:"old"`
	New      string `json:"new"`
}

type RepairResult struct {
	Before           Report   `json:"before"`
	After            Report   `json:"after"`
	Changes          []Change `json:"changes"`
	ConfirmationSent bool     `json:"confirmation_sent"`
}

// confirmedLike statuses imply the guest was told the booking stands.
func confirmedLike(s models.BookingStatus) bool {
	switch s {
	case models.BookingStatusConfirmed, models.BookingStatusSeated, models.BookingStatusLate, models.BookingStatusFinished:
		return true
	}
	return false
}

// Check classifies drift between a booking and its payment. It is read-only.
// A locally pending payment is compared against the provider so a success
// whose webhook never arrived is reported.
func (s *Service) Check(ctx context.Context, bookingID uint) (Report, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Report{}, apperr.NotFound("booking_not_found", "booking not found")
	}
	if err != nil {
		return Report{}, apperr.Upstream("booking_store_unavailable", err)
	}
	return s.check(ctx, b)
}

// CheckPayment classifies drift starting from a payment, which is how a
// payment whose booking disappeared is found.
func (s *Service) CheckPayment(ctx context.Context, paymentID uint) (Report, error) {
	pay, err := s.payments.GetByID(ctx, paymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Report{}, apperr.NotFound("payment_not_found", "payment not found")
	}
	if err != nil {
		return Report{}, apperr.Upstream("booking_store_unavailable", err)
	}
	b, err := s.bookings.GetByID(ctx, pay.BookingID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Report{
			BookingID:     pay.BookingID,
			PaymentID:     pay.ID,
			PaymentStatus: pay.Status,
			Reasons:       []string{ReasonMissingBookingRecord},
		}, nil
	}
	if err != nil {
		return Report{}, apperr.Upstream("booking_store_unavailable", err)
	}
	return s.check(ctx, b)
}

func (s *Service) check(ctx context.Context, b *models.Booking) (Report, error) {
	r := Report{BookingID: b.ID, BookingStatus: b.Status, Reasons: []string{}}

	pay, err := s.payments.GetByBookingID(ctx, b.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if b.PaymentRequired || b.Status == models.BookingStatusPendingPayment || b.Status == models.BookingStatusPaymentFailed {
			r.Reasons = append(r.Reasons, ReasonMissingPaymentRecord)
		}
		r.Consistent = len(r.Reasons) == 0
		return r, nil
	}
	if err != nil {
		return r, apperr.Upstream("booking_store_unavailable", err)
	}
	r.PaymentID = pay.ID
	r.PaymentStatus = pay.Status

	succeeded := pay.Status == models.PaymentStatusSucceeded
	if !succeeded && pay.Status == models.PaymentStatusPending && pay.ProviderIntentID != "" {
		intent, err := s.provider.GetIntent(ctx, pay.ProviderIntentID)
		if err != nil {
			log.Warnf("[Reconcile] Could not read intent %s for booking %s: %v", pay.ProviderIntentID, b.Reference, err)
		} else {
			r.ProviderStatus = intent.Status
			succeeded = intent.Status == payment.IntentSucceeded
		}
	}

	if confirmedLike(b.Status) && !succeeded {
		r.Reasons = append(r.Reasons, ReasonBookingConfirmedPaymentNotSucceeded)
	}
	if succeeded && b.Status == models.BookingStatusPendingPayment {
		r.Reasons = append(r.Reasons, ReasonPaymentSucceededBookingNotConfirmed)
	}
	if succeeded && b.Status == models.BookingStatusPaymentFailed {
		r.Reasons = append(r.Reasons, ReasonPaymentSucceededBookingFailed)
	}
	if pay.Status == models.PaymentStatusSucceeded && pay.ProcessedAt == nil {
		r.Reasons = append(r.Reasons, ReasonMissingProcessedTimestamp)
	}
	r.Consistent = len(r.Reasons) == 0
	return r, nil
}

// Repair brings a booking and its payment in line with the provider. Every
// correction is audited and a first-time confirmation is sent exactly once.
func (s *Service) Repair(ctx context.Context, bookingID uint, actor string) (*RepairResult, error) {
	before, err := s.Check(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	res := &RepairResult{Before: before, Changes: []Change{}}
	// A cancelled intent is not drift yet, but the booking should stop holding its table.
	if before.Consistent && before.ProviderStatus != payment.IntentCanceled {
		res.After = before
		return res, nil
	}
	for _, reason := range before.Reasons {
		if reason == ReasonMissingPaymentRecord {
			return nil, apperr.Inconsistent(ReasonMissingPaymentRecord, "booking requires payment but has no payment record")
		}
	}

	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Upstream("booking_store_unavailable", err)
	}
	pay, err := s.payments.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Upstream("booking_store_unavailable", err)
	}

	intent, err := s.provider.GetIntent(ctx, pay.ProviderIntentID)
	if err != nil {
		return nil, err
	}

	oldBooking, oldPayment, oldProcessed := b.Status, pay.Status, pay.ProcessedAt
	confirmedBefore := b.ConfirmationSentAt != nil
	reason := "repair: provider reports " + string(intent.Status)

	switch intent.Status {
	case payment.IntentSucceeded:
		err = s.markSucceeded(ctx, pay, b, actor, reason)
	case payment.IntentCanceled:
		err = s.markFailed(ctx, pay, b, actor, reason)
	default:
		err = s.markAwaiting(ctx, pay, b, actor, reason)
	}
	if errors.Is(err, errPaidAfterFailure) {
		return nil, err
	}
	if err != nil {
		return nil, apperr.Upstream("booking_store_unavailable", err)
	}

	if b.Status != oldBooking {
		res.Changes = append(res.Changes, Change{Entity: models.AuditEntityBooking, EntityID: b.ID, Field: "status", Old: string(oldBooking), New: string(b.Status)})
	}
	if pay.Status != oldPayment {
		res.Changes = append(res.Changes, Change{Entity: models.AuditEntityPayment, EntityID: pay.ID, Field: "status", Old: oldPayment, New: pay.Status})
	}
	if oldProcessed == nil && pay.ProcessedAt != nil {
		res.Changes = append(res.Changes, Change{Entity: models.AuditEntityPayment, EntityID: pay.ID, Field: "processed_at", New: pay.ProcessedAt.Format(time.RFC3339)})
	}
	if !confirmedBefore {
		if after, err := s.bookings.GetByID(ctx, bookingID); err == nil && after.ConfirmationSentAt != nil {
			res.ConfirmationSent = true
		}
	}

	for _, reason := range before.Reasons {
		metrics.Repairs.WithLabelValues(reason).Inc()
	}
	if res.After, err = s.Check(ctx, bookingID); err != nil {
		return nil, err
	}
	log.Infof("[Reconcile] Repaired booking %s by %s: %d changes", b.Reference, actor, len(res.Changes))
	return res, nil
}

// markAwaiting handles a provider intent that has not settled. A booking that
// was confirmed without a successful payment goes back to pending_payment.
func (s *Service) markAwaiting(ctx context.Context, pay *models.Payment, b *models.Booking, actor, reason string) error {
	if b.Status != models.BookingStatusConfirmed {
		return nil
	}
	entry := booking.AuditEntry(models.AuditEntityBooking, b.ID, "status_change",
		string(models.BookingStatusConfirmed), string(models.BookingStatusPendingPayment), actor, reason)
	ok, err := s.bookings.UpdateStatus(ctx, b.ID, []models.BookingStatus{models.BookingStatusConfirmed}, models.BookingStatusPendingPayment, entry)
	if err != nil {
		return err
	}
	if ok {
		b.Status = models.BookingStatusPendingPayment
	}
	return nil
}

// SweepPending repairs pending_payment bookings older than olderThan whose
// webhook may have been lost.
func (s *Service) SweepPending(ctx context.Context, olderThan time.Duration) (int, error) {
	pending, err := s.bookings.ListPendingPaymentBefore(ctx, s.now().UTC().Add(-olderThan), s.opts.SweepBatch)
	if err != nil {
		return 0, apperr.Upstream("booking_store_unavailable", err)
	}
	repaired := 0
	for _, b := range pending {
		if ctx.Err() != nil {
			return repaired, ctx.Err()
		}
		res, err := s.Repair(ctx, b.ID, "sweeper")
		if err != nil {
			log.Warnf("[Reconcile] Sweep could not repair booking %s: %v", b.Reference, err)
			continue
		}
		if len(res.Changes) > 0 {
			repaired++
		}
	}
	if repaired > 0 {
		log.Infof("[Reconcile] Sweep repaired %d of %d pending bookings", repaired, len(pending))
	}
	return repaired, nil
}
