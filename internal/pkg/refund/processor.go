// Package refund issues refunds against succeeded payments.
package refund

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
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

var validate = validator.New()

type Request struct {
	PaymentID     uint   `json:"payment_id" validate:"required"`
	AmountCents   int64  `json:"amount_cents" validate:"required,gt=0"`
	Reason        string `json:"reason" validate:"required,max=500"`
	CancelBooking bool   `json:"cancel_booking"`
	Actor         string `json:"-"`
}

type Result struct {
	PaymentID         uint   `json:"payment_id"`
	ProviderRefundID  string `json:"provider_refund_id"`
	AmountCents       int64  `json:"amount_cents"`
	RefundAmountCents int64  `json:"refund_amount_cents"`
	RefundStatus      string `json:"refund_status"`
	BookingCancelled  bool   `json:"booking_cancelled"`
}

type Processor struct {
	payments repository.PaymentRepository
	bookings repository.BookingRepository
	provider payment.Provider
	notifier notify.Dispatcher
	now      func() time.Time
}

func NewProcessor(repos *repository.Repositories, provider payment.Provider, notifier notify.Dispatcher) *Processor {
	return &Processor{
		payments: repos.Payment,
		bookings: repos.Booking,
		provider: provider,
		notifier: notifier,
		now:      time.Now,
	}
}

// Refund calls the provider first and only then records the refund locally,
// so a rejected refund leaves no local trace. Cancelling the booking is a
// separate, separately audited write.
func (p *Processor) Refund(ctx context.Context, req Request) (*Result, error) {
	res, err := p.refund(ctx, req)
	outcome := "refunded"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	metrics.Refunds.WithLabelValues(outcome).Inc()
	return res, err
}

func (p *Processor) refund(ctx context.Context, req Request) (*Result, error) {
	if err := validate.Struct(req); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Code: "invalid_refund_amount", Message: "invalid refund request", Err: err}
	}
	if req.Actor == "" {
		req.Actor = booking.ActorSystem
	}

	pay, err := p.payments.GetByID(ctx, req.PaymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("payment_not_found", "payment not found")
	}
	if err != nil {
		return nil, apperr.Upstream("booking_store_unavailable", err)
	}
	if pay.Status != models.PaymentStatusSucceeded {
		return nil, apperr.Validation("payment_not_refundable", "only succeeded payments can be refunded")
	}
	remaining := pay.RemainingRefundableCents()
	if remaining <= 0 {
		return nil, apperr.Conflict("already_refunded", "payment is fully refunded")
	}
	if req.AmountCents > remaining {
		return nil, apperr.Validation("invalid_refund_amount", fmt.Sprintf("refund of %d exceeds remaining %d", req.AmountCents, remaining))
	}

	previous := pay.RefundAmountCents
	refunded, err := p.provider.Refund(ctx, payment.RefundParams{
		IntentID:       pay.ProviderIntentID,
		AmountCents:    req.AmountCents,
		Reason:         req.Reason,
		IdempotencyKey: fmt.Sprintf("refund-%d-%d-%d", pay.ID, previous, req.AmountCents),
	})
	if err != nil {
		log.Warnf("[Refund] Provider refused refund of %d on payment %d: %v", req.AmountCents, pay.ID, err)
		return nil, err
	}

	total := previous + req.AmountCents
	status := models.RefundStatusPartial
	if total >= pay.AmountCents {
		status = models.RefundStatusFull
	}
	now := p.now().UTC()
	entry := booking.AuditEntry(models.AuditEntityPayment, pay.ID, "refund",
		strconv.FormatInt(previous, 10), strconv.FormatInt(total, 10), req.Actor, req.Reason)
	ok, err := p.payments.ApplyRefund(ctx, pay.ID, previous, total, status, now, entry)
	if err != nil {
		// Retrying with the same request reuses the provider idempotency key.
		log.Errorf("[Refund] Provider refund %s succeeded but recording it on payment %d (%d -> %d by %s) failed: %v",
			refunded.ID, pay.ID, previous, total, req.Actor, err)
		return nil, apperr.Upstream("booking_store_unavailable", err)
	}
	if !ok {
		// Another refund landed between read and write; the provider already
		// moved money, so this needs an operator.
		log.Errorf("[Refund] Payment %d changed during refund %s", pay.ID, refunded.ID)
		return nil, apperr.Inconsistent("refund_conflict", "payment changed while refunding; reconcile refund "+refunded.ID)
	}

	log.Infof("[Refund] Refunded %d on payment %d (%s, total %d)", req.AmountCents, pay.ID, status, total)

	res := &Result{
		PaymentID:         pay.ID,
		ProviderRefundID:  refunded.ID,
		AmountCents:       req.AmountCents,
		RefundAmountCents: total,
		RefundStatus:      status,
	}

	b, err := p.bookings.GetByID(ctx, pay.BookingID)
	if err != nil {
		log.Warnf("[Refund] Could not load booking %d for payment %d: %v", pay.BookingID, pay.ID, err)
		return res, nil
	}
	if err := p.notifier.Dispatch(ctx, refundMessage(b, req.AmountCents, pay.Currency)); err != nil {
		log.Errorf("[Refund] Failed to dispatch refund notice for %s: %v", b.Reference, err)
	}

	if req.CancelBooking {
		cancelled, err := p.cancel(ctx, b, req)
		if err != nil {
			return res, err
		}
		res.BookingCancelled = cancelled
	}
	return res, nil
}

// cancel moves the booking to cancelled unless it already reached an end state.
func (p *Processor) cancel(ctx context.Context, b *models.Booking, req Request) (bool, error) {
	from := b.Status
	switch from {
	case models.BookingStatusCancelled:
		return true, nil
	case models.BookingStatusFinished, models.BookingStatusNoShow, models.BookingStatusPaymentFailed:
		return false, nil
	}
	entry := booking.AuditEntry(models.AuditEntityBooking, b.ID, "status_change",
		string(from), string(models.BookingStatusCancelled), req.Actor, req.Reason)
	ok, err := p.bookings.UpdateStatus(ctx, b.ID, []models.BookingStatus{from}, models.BookingStatusCancelled, entry)
	if err != nil {
		return false, apperr.Upstream("booking_store_unavailable", err)
	}
	if !ok {
		return false, apperr.Conflict("status_changed", "booking status changed concurrently; refund was recorded")
	}
	b.Status = models.BookingStatusCancelled
	if err := p.notifier.Dispatch(ctx, booking.MessageFor(notify.KindBookingCancelled, b)); err != nil {
		log.Errorf("[Refund] Failed to dispatch cancellation for %s: %v", b.Reference, err)
	}
	return true, nil
}

func refundMessage(b *models.Booking, amount int64, currency string) notify.Message {
	msg := booking.MessageFor(notify.KindRefundIssued, b)
	msg.AmountCents = amount
	msg.Currency = currency
	return msg
}
