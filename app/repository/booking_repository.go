package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/TableFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type bookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository creates a new booking repository instance
func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

// CreateWithPayment inserts the booking, its table assignments and the
// optional payment in one transaction. The chosen tables are locked FOR UPDATE
// and re-checked for overlapping holding bookings before the insert.
func (r *bookingRepository) CreateWithPayment(ctx context.Context, booking *models.Booking, payment *models.Payment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := booking.TableIDs()
		if len(ids) == 0 {
			return ErrTableUnavailable
		}

		var tables []models.Table
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ? AND venue_id = ? AND is_active = ?", ids, booking.VenueID, true).
			Order("id ASC").
			Find(&tables).Error; err != nil {
			return err
		}
		if len(tables) != len(ids) {
			return ErrTableUnavailable
		}

		var clashes int64
		if err := tx.Model(&models.Booking{}).
			Joins("JOIN booking_tables ON booking_tables.booking_id = bookings.id").
			Where("booking_tables.table_id IN ?", ids).
			Where("bookings.status IN ?", models.HoldingStatuses()).
			Where("bookings.starts_at < ? AND bookings.ends_at > ?", booking.EndsAt, booking.StartsAt).
			Count(&clashes).Error; err != nil {
			return err
		}
		if clashes > 0 {
			return ErrTableUnavailable
		}

		booking.Tables = tables
		if err := tx.Omit("Tables.*").Create(booking).Error; err != nil {
			return err
		}

		if payment != nil {
			payment.BookingID = booking.ID
			if err := tx.Create(payment).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *bookingRepository) GetByID(ctx context.Context, id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Preload("Tables").First(&booking, id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) GetByReference(ctx context.Context, reference string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).Preload("Tables").
		Where("reference = ?", reference).
		First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListForVenueWindow returns every booking of the venue overlapping
// [from, to), whatever its status.
func (r *bookingRepository) ListForVenueWindow(ctx context.Context, venueID uint, from, to time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).Preload("Tables").
		Where("venue_id = ? AND starts_at < ? AND ends_at > ?", venueID, to, from).
		Order("starts_at ASC").
		Find(&bookings).Error
	return bookings, err
}

func (r *bookingRepository) ListPendingPaymentBefore(ctx context.Context, before time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.BookingStatusPendingPayment, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&bookings).Error
	return bookings, err
}

// UpdateStatus moves the booking to `to` only if it is currently in one of
// `from`. It reports whether a row changed. A failed audit insert rolls the
// status change back.
func (r *bookingRepository) UpdateStatus(ctx context.Context, id uint, from []models.BookingStatus, to models.BookingStatus, audit ...*models.AuditLog) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Booking{}).
			Where("id = ? AND status IN ?", id, from).
			Update("status", to)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		changed = true
		return createAudit(tx, audit)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// MarkConfirmationSent sets confirmation_sent_at once. A false return means
// another caller already claimed the confirmation.
func (r *bookingRepository) MarkConfirmationSent(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND confirmation_sent_at IS NULL", id).
		Update("confirmation_sent_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
