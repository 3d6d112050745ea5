// Package booking turns a guest submission into a persisted booking, either
// confirmed outright or pending payment.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TableFox/app/models"
	"github.com/ManuelReschke/TableFox/app/repository"
	"github.com/ManuelReschke/TableFox/internal/pkg/allocation"
	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
	"github.com/ManuelReschke/TableFox/internal/pkg/metrics"
	"github.com/ManuelReschke/TableFox/internal/pkg/notify"
	"github.com/ManuelReschke/TableFox/internal/pkg/payment"
	"github.com/ManuelReschke/TableFox/internal/pkg/shortener"
	"github.com/ManuelReschke/TableFox/internal/pkg/slotlock"
)

const (
	referencePrefix = "TF"
	referenceLength = 6
)

var validate = validator.New()

// LockManager is the part of slotlock.Manager the pipeline needs.
type LockManager interface {
	Validate(ctx context.Context, token string, key slotlock.Key) (*models.SlotLock, error)
	Release(ctx context.Context, token, reason string) error
}

// SubmitRequest is a guest booking submission. LockToken is optional; the
// pipeline re-checks table conflicts whether or not a lock is presented.
type SubmitRequest struct {
	VenueID         uint   `json:"venue_id" validate:"required"`
	ServiceID       uint   `json:"service_id" validate:"required"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string `json:"time" validate:"required,datetime=15:04"`
	PartySize       int    `json:"party_size" validate:"required,min=1,max=100"`
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,min=15,max=480"`
	TableID         uint   `json:"table_id"`
	LockToken       string `json:"lock_token" validate:"omitempty,max=64"`
	GuestName       string `json:"guest_name" validate:"required,max=150"`
	GuestEmail      string `json:"guest_email" validate:"required,email,max=200"`
	GuestPhone      string `json:"guest_phone" validate:"omitempty,max=40"`
	Notes           string `json:"notes" validate:"omitempty,max=1000"`
}

func (r SubmitRequest) Key() slotlock.Key {
	return slotlock.Key{VenueID: r.VenueID, ServiceID: r.ServiceID, Date: r.Date, Time: r.Time}
}

// SubmitResult is a confirmed booking, or a pending one plus what the client
// needs to pay.
type SubmitResult struct {
	Booking         *models.Booking
	Allocation      allocation.Suggestion
	PaymentRequired bool
	AmountCents     int64
	Currency        string
	IntentID        string
	ClientSecret    string
}

type Options struct {
	Allocation      allocation.Options
	DefaultDuration time.Duration
	Currency        string
}

type Pipeline struct {
	venues   repository.VenueRepository
	bookings repository.BookingRepository
	locks    LockManager
	provider payment.Provider
	notifier notify.Dispatcher
	opts     Options

	now          func() time.Time
	newReference func() (string, error)
}

func NewPipeline(repos *repository.Repositories, locks LockManager, provider payment.Provider, notifier notify.Dispatcher, opts Options) *Pipeline {
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = 90 * time.Minute
	}
	return &Pipeline{
		venues:   repos.Venue,
		bookings: repos.Booking,
		locks:    locks,
		provider: provider,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
		newReference: func() (string, error) {
			return shortener.GenerateReference(referencePrefix, referenceLength)
		},
	}
}

// Submit runs validate lock, compute payment, choose tables, persist. Any
// error leaves no booking row behind.
func (p *Pipeline) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	res, err := p.submit(ctx, req)
	metrics.BookingSubmissions.WithLabelValues(outcome(res, err)).Inc()
	return res, err
}

func (p *Pipeline) submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Code: "invalid_request", Message: "invalid booking request", Err: err}
	}

	if req.LockToken != "" {
		if _, err := p.locks.Validate(ctx, req.LockToken, req.Key()); err != nil {
			return nil, err
		}
	}

	venue, service, err := p.loadVenue(ctx, req.VenueID, req.ServiceID)
	if err != nil {
		return nil, err
	}

	startsAt, err := slotStart(venue, req.Date, req.Time)
	if err != nil {
		return nil, err
	}
	duration := p.duration(req.DurationMinutes, venue, service)

	choice, err := p.chooseTables(ctx, req, venue, startsAt, duration)
	if err != nil {
		return nil, err
	}
	// A table blocked later in the window is still offered with a shorter sitting.
	if choice.AvailableDuration > 0 && choice.AvailableDuration < duration {
		duration = choice.AvailableDuration
	}

	reference, err := p.newReference()
	if err != nil {
		return nil, fmt.Errorf("generate booking reference: %w", err)
	}

	requirement := ComputePaymentRequirement(VenueRule(venue), ServiceRule(service), service.RequiresPayment, req.PartySize)

	b := &models.Booking{
		Reference:       reference,
		VenueID:         venue.ID,
		ServiceID:       service.ID,
		BookingDate:     req.Date,
		BookingTime:     req.Time,
		StartsAt:        startsAt,
		EndsAt:          startsAt.Add(duration),
		PartySize:       req.PartySize,
		DurationMinutes: int(duration / time.Minute),
		GuestName:       req.GuestName,
		GuestEmail:      req.GuestEmail,
		GuestPhone:      req.GuestPhone,
		Notes:           req.Notes,
		Status:          models.BookingStatusConfirmed,
		PaymentRequired: requirement.ShouldCharge,
	}
	for _, id := range choice.TableIDs {
		b.Tables = append(b.Tables, models.Table{ID: id})
	}

	result := &SubmitResult{Booking: b, Allocation: choice}

	var pay *models.Payment
	var intent *payment.Intent
	if requirement.ShouldCharge {
		currency := venue.Currency
		if currency == "" {
			currency = p.opts.Currency
		}
		intent, err = p.provider.CreateIntent(ctx, payment.CreateIntentParams{
			AmountCents:      requirement.AmountCents,
			Currency:         currency,
			Description:      requirement.Description,
			BookingReference: reference,
			ReceiptEmail:     req.GuestEmail,
			IdempotencyKey:   "booking-" + reference,
		})
		if err != nil {
			log.Errorf("[Booking] Failed to create payment intent for %s: %v", reference, err)
			return nil, err
		}

		b.Status = models.BookingStatusPendingPayment
		pay = &models.Payment{
			ProviderIntentID: intent.ID,
			AmountCents:      requirement.AmountCents,
			Currency:         currency,
			Description:      requirement.Description,
			Status:           models.PaymentStatusPending,
			RefundStatus:     models.RefundStatusNone,
		}
		result.PaymentRequired = true
		result.AmountCents = requirement.AmountCents
		result.Currency = currency
		result.IntentID = intent.ID
		result.ClientSecret = intent.ClientSecret
	}

	if err := p.bookings.CreateWithPayment(ctx, b, pay); err != nil {
		if intent != nil {
			p.cancelIntent(ctx, intent.ID, reference)
		}
		if errors.Is(err, repository.ErrTableUnavailable) {
			return nil, apperr.Conflict("slot_unavailable", "table no longer available")
		}
		log.Errorf("[Booking] Failed to persist booking %s: %v", reference, err)
		return nil, apperr.Upstream("booking_store_unavailable", err)
	}

	if req.LockToken != "" {
		// The slot is now booked or being paid for; the lease has done its job.
		if err := p.locks.Release(ctx, req.LockToken, slotlock.ReasonBooked); err != nil {
			log.Warnf("[Booking] Could not release lock for %s, it will expire: %v", reference, err)
		}
	}

	if b.Status == models.BookingStatusConfirmed {
		p.sendConfirmation(ctx, b)
	}

	log.Infof("[Booking] Created booking %s (%s) for %d guests at venue %d", reference, b.Status, b.PartySize, b.VenueID)
	return result, nil
}

func (p *Pipeline) loadVenue(ctx context.Context, venueID, serviceID uint) (*models.Venue, *models.Service, error) {
	venue, err := p.venues.GetByID(ctx, venueID)
	if err != nil {
		return nil, nil, p.venueErr(err)
	}
	service, err := p.venues.GetService(ctx, venueID, serviceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperr.NotFound("service_not_found", "service not found")
	}
	if err != nil {
		return nil, nil, apperr.Upstream("booking_store_unavailable", err)
	}
	if !service.IsActive {
		return nil, nil, apperr.Validation("service_unavailable", "service is not taking bookings")
	}
	return venue, service, nil
}

// slotStart reads date and time in the venue's timezone and returns UTC.
func slotStart(venue *models.Venue, date, clock string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, venue.Location())
	if err != nil {
		return time.Time{}, apperr.Validation("invalid_request", "invalid date or time")
	}
	return t.UTC(), nil
}

func (p *Pipeline) venueErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("venue_not_found", "venue not found")
	}
	return apperr.Upstream("booking_store_unavailable", err)
}

func (p *Pipeline) duration(requestedMinutes int, venue *models.Venue, service *models.Service) time.Duration {
	switch {
	case requestedMinutes > 0:
		return time.Duration(requestedMinutes) * time.Minute
	case service.DurationMinutes > 0:
		return time.Duration(service.DurationMinutes) * time.Minute
	case venue.DefaultDurationMinutes > 0:
		return time.Duration(venue.DefaultDurationMinutes) * time.Minute
	default:
		return p.opts.DefaultDuration
	}
}

// chooseTables runs the optimizer on a fresh snapshot. The requested table
// wins when available; otherwise the best suggestion is used.
func (p *Pipeline) chooseTables(ctx context.Context, req SubmitRequest, venue *models.Venue, start time.Time, duration time.Duration) (allocation.Suggestion, error) {
	snap, err := LoadSnapshot(ctx, p.venues, p.bookings, venue.ID, start, start.Add(duration))
	if err != nil {
		return allocation.Suggestion{}, apperr.Upstream("booking_store_unavailable", err)
	}

	res := allocation.Optimize(allocation.Request{
		RequestedTableID: req.TableID,
		PartySize:        req.PartySize,
		Start:            start,
		Duration:         duration,
	}, snap, VenueOptions(p.opts.Allocation, venue))

	if res.Primary != nil {
		return *res.Primary, nil
	}
	best, ok := res.Best()
	if !ok {
		return allocation.Suggestion{}, apperr.Conflict("slot_unavailable", "no table available for this party at this time")
	}
	return best, nil
}

func (p *Pipeline) cancelIntent(ctx context.Context, intentID, reference string) {
	if err := p.provider.CancelIntent(ctx, intentID); err != nil {
		log.Errorf("[Booking] Failed to cancel intent %s after persist failure for %s: %v", intentID, reference, err)
	}
}

// sendConfirmation claims confirmation_sent_at before dispatching so a
// confirmation goes out at most once per booking.
func (p *Pipeline) sendConfirmation(ctx context.Context, b *models.Booking) {
	SendConfirmationOnce(ctx, p.bookings, p.notifier, b, p.now().UTC())
}

// SendConfirmationOnce dispatches the confirmation if no earlier caller has.
// It reports whether this call sent it.
func SendConfirmationOnce(ctx context.Context, bookings repository.BookingRepository, notifier notify.Dispatcher, b *models.Booking, now time.Time) bool {
	claimed, err := bookings.MarkConfirmationSent(ctx, b.ID, now)
	if err != nil {
		log.Errorf("[Booking] Failed to claim confirmation for %s: %v", b.Reference, err)
		return false
	}
	if !claimed {
		return false
	}
	if err := notifier.Dispatch(ctx, MessageFor(notify.KindBookingConfirmed, b)); err != nil {
		log.Errorf("[Booking] Failed to dispatch confirmation for %s: %v", b.Reference, err)
	}
	return true
}

// MessageFor builds a guest notification about b.
func MessageFor(kind notify.Kind, b *models.Booking) notify.Message {
	return notify.Message{
		Kind:       kind,
		BookingID:  b.ID,
		Reference:  b.Reference,
		GuestName:  b.GuestName,
		GuestEmail: b.GuestEmail,
		PartySize:  b.PartySize,
		StartsAt:   b.StartsAt,
	}
}

func outcome(res *SubmitResult, err error) string {
	if err != nil {
		if k := apperr.KindOf(err); k != "" {
			return string(k)
		}
		return "error"
	}
	if res.PaymentRequired {
		return "pending_payment"
	}
	return "confirmed"
}
