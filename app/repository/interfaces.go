package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/TableFox/app/models"
	"gorm.io/gorm"
)

// ErrTableUnavailable is returned by BookingRepository.CreateWithPayment when
// one of the chosen tables was taken by an overlapping booking.
var ErrTableUnavailable = errors.New("table no longer available")

// VenueRepository reads venue configuration and floor layout
type VenueRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Venue, error)
	GetService(ctx context.Context, venueID, serviceID uint) (*models.Service, error)
	ListTables(ctx context.Context, venueID uint) ([]models.Table, error)
	ListJoinGroups(ctx context.Context, venueID uint) ([]models.JoinGroup, error)
}

// BookingRepository defines the booking operations. Status writes are
// compare-and-set on the expected previous statuses; audit rows passed with a
// write are inserted in the same transaction and only when the write lands.
type BookingRepository interface {
	CreateWithPayment(ctx context.Context, booking *models.Booking, payment *models.Payment) error
	GetByID(ctx context.Context, id uint) (*models.Booking, error)
	GetByReference(ctx context.Context, reference string) (*models.Booking, error)
	ListForVenueWindow(ctx context.Context, venueID uint, from, to time.Time) ([]models.Booking, error)
	ListPendingPaymentBefore(ctx context.Context, before time.Time, limit int) ([]models.Booking, error)
	UpdateStatus(ctx context.Context, id uint, from []models.BookingStatus, to models.BookingStatus, audit ...*models.AuditLog) (bool, error)
	MarkConfirmationSent(ctx context.Context, id uint, at time.Time) (bool, error)
}

// PaymentRepository defines payment operations. Refund fields are only
// written through ApplyRefund. Audit rows follow the same rule as bookings.
type PaymentRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Payment, error)
	GetByBookingID(ctx context.Context, bookingID uint) (*models.Payment, error)
	GetByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	UpdateStatus(ctx context.Context, id uint, from []string, to string, processedAt *time.Time, audit ...*models.AuditLog) (bool, error)
	ApplyRefund(ctx context.Context, id uint, previousRefunded, newRefunded int64, refundStatus string, at time.Time, audit ...*models.AuditLog) (bool, error)
}

// WebhookRepository persists webhook events and the retry queue
type WebhookRepository interface {
	CreateEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	GetEvent(ctx context.Context, provider, providerEventID string) (*models.PaymentWebhookEvent, error)
	ClaimEvent(ctx context.Context, provider, providerEventID string) (bool, error)
	MarkEvent(ctx context.Context, provider, providerEventID, status, processingError string) error
	ListStuckEvents(ctx context.Context, updatedBefore time.Time, limit int) ([]models.PaymentWebhookEvent, error)
	UpsertRetry(ctx context.Context, retry *models.WebhookRetry) error
	GetRetry(ctx context.Context, provider, providerEventID string) (*models.WebhookRetry, error)
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]models.WebhookRetry, error)
	DeleteRetry(ctx context.Context, provider, providerEventID string) error
	CountRetries(ctx context.Context) (int64, error)
}

// AuditRepository appends and reads audit rows
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	ListByEntity(ctx context.Context, entityType string, entityID uint) ([]models.AuditLog, error)
	ListBetween(ctx context.Context, since, until time.Time, offset, limit int) ([]models.AuditLog, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Venue   VenueRepository
	Booking BookingRepository
	Payment PaymentRepository
	Webhook WebhookRepository
	Audit   AuditRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Venue:   NewVenueRepository(db),
		Booking: NewBookingRepository(db),
		Payment: NewPaymentRepository(db),
		Webhook: NewWebhookRepository(db),
		Audit:   NewAuditRepository(db),
	}
}
