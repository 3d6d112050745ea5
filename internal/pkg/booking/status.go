package booking

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TableFox/app/models"
	"github.com/ManuelReschke/TableFox/app/repository"
	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
	"github.com/ManuelReschke/TableFox/internal/pkg/notify"
)

// Staff-driven moves. Payment outcomes are applied by reconciliation, not here.
var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingStatusPendingPayment: {models.BookingStatusCancelled},
	models.BookingStatusConfirmed: {
		models.BookingStatusSeated,
		models.BookingStatusLate,
		models.BookingStatusCancelled,
		models.BookingStatusNoShow,
	},
	models.BookingStatusLate: {
		models.BookingStatusSeated,
		models.BookingStatusCancelled,
		models.BookingStatusNoShow,
	},
	models.BookingStatusSeated: {models.BookingStatusFinished},
}

// CanTransition reports whether staff may move a booking from one status to another.
func CanTransition(from, to models.BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type StatusService struct {
	bookings repository.BookingRepository
	notifier notify.Dispatcher
}

func NewStatusService(repos *repository.Repositories, notifier notify.Dispatcher) *StatusService {
	return &StatusService{bookings: repos.Booking, notifier: notifier}
}

// Transition moves a booking to status to on behalf of actor. The write only
// lands if the booking is still in the status that was read.
func (s *StatusService) Transition(ctx context.Context, id uint, to models.BookingStatus, actor, reason string) (*models.Booking, error) {
	if !to.Valid() {
		return nil, apperr.Validation("invalid_status", "unknown booking status")
	}
	b, err := s.bookings.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("booking_not_found", "booking not found")
	}
	if err != nil {
		return nil, apperr.Upstream("booking_store_unavailable", err)
	}

	from := b.Status
	if from == to {
		return b, nil
	}
	if !CanTransition(from, to) {
		if from == models.BookingStatusPendingPayment && (to == models.BookingStatusSeated || to == models.BookingStatusFinished) {
			return nil, apperr.Validation("payment_pending", "booking is awaiting payment")
		}
		return nil, apperr.Validation("invalid_transition", "cannot move booking from "+string(from)+" to "+string(to))
	}

	entry := AuditEntry(models.AuditEntityBooking, b.ID, "status_change", string(from), string(to), actor, reason)
	ok, err := s.bookings.UpdateStatus(ctx, id, []models.BookingStatus{from}, to, entry)
	if err != nil {
		log.Errorf("[Booking] %s not moved %s -> %s by %s (%s): %v", b.Reference, from, to, entry.Actor, reason, err)
		return nil, apperr.Upstream("booking_store_unavailable", err)
	}
	if !ok {
		return nil, apperr.Conflict("status_changed", "booking status changed concurrently")
	}
	b.Status = to

	if to == models.BookingStatusCancelled {
		if err := s.notifier.Dispatch(ctx, MessageFor(notify.KindBookingCancelled, b)); err != nil {
			log.Errorf("[Booking] Failed to dispatch cancellation for %s: %v", b.Reference, err)
		}
	}

	log.Infof("[Booking] %s moved %s -> %s by %s", b.Reference, from, to, actor)
	return b, nil
}
