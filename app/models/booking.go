package models

import "time"

// BookingStatus is the closed set of booking states.
type BookingStatus string

const (
	BookingStatusPendingPayment BookingStatus = "pending_payment"
	BookingStatusConfirmed      BookingStatus = "confirmed"
	BookingStatusSeated         BookingStatus = "seated"
	BookingStatusFinished       BookingStatus = "finished"
	BookingStatusCancelled      BookingStatus = "cancelled"
	BookingStatusLate           BookingStatus = "late"
	BookingStatusNoShow         BookingStatus = "no_show"
	BookingStatusPaymentFailed  BookingStatus = "payment_failed"
)

var bookingStatuses = map[BookingStatus]struct{}{
	BookingStatusPendingPayment: {},
	BookingStatusConfirmed:      {},
	BookingStatusSeated:         {},
	BookingStatusFinished:       {},
	BookingStatusCancelled:      {},
	BookingStatusLate:           {},
	BookingStatusNoShow:         {},
	BookingStatusPaymentFailed:  {},
}

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	_, ok := bookingStatuses[s]
	return ok
}

// HoldsTable reports whether a booking in this status blocks its tables for
// allocation. pending_payment holds the table while the guest pays.
func (s BookingStatus) HoldsTable() bool {
	switch s {
	case BookingStatusPendingPayment, BookingStatusConfirmed, BookingStatusSeated, BookingStatusLate:
		return true
	default:
		return false
	}
}

// HoldingStatuses lists the statuses for which HoldsTable is true.
func HoldingStatuses() []BookingStatus {
	return []BookingStatus{BookingStatusPendingPayment, BookingStatusConfirmed, BookingStatusSeated, BookingStatusLate}
}

// OccupiesForStaff is the staff floor view of occupancy; unpaid holds are not
// shown as taken.
func (s BookingStatus) OccupiesForStaff() bool {
	return s.HoldsTable() && s != BookingStatusPendingPayment
}

// Booking is a guest reservation for one slot.
type Booking struct {
	ID                 uint          `gorm:"primaryKey" json:"id"`
	Reference          string        `gorm:"type:varchar(16);not null;uniqueIndex" json:"reference"`
	VenueID            uint          `gorm:"not null;index:idx_bookings_venue_date,priority:1" json:"venue_id"`
	ServiceID          uint          `gorm:"not null;index" json:"service_id"`
	BookingDate        string        `gorm:"type:varchar(10);not null;index:idx_bookings_venue_date,priority:2" json:"date"`
	BookingTime        string        `gorm:"type:varchar(5);not null" json:"time"`
	StartsAt           time.Time     `gorm:"not null;index" json:"starts_at"`
	EndsAt             time.Time     `gorm:"not null;index" json:"ends_at"`
	PartySize          int           `gorm:"not null" json:"party_size"`
	DurationMinutes    int           `gorm:"not null" json:"duration_minutes"`
	GuestName          string        `gorm:"type:varchar(150);not null" json:"guest_name"`
	GuestEmail         string        `gorm:"type:varchar(200);not null;index" json:"guest_email"`
	GuestPhone         string        `gorm:"type:varchar(40)" json:"guest_phone"`
	Notes              string        `gorm:"type:text" json:"notes,omitempty"`
	Status             BookingStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	PaymentRequired    bool          `gorm:"default:false" json:"payment_required"`
	ConfirmationSentAt *time.Time    `gorm:"type:timestamp;default:null" json:"confirmation_sent_at,omitempty"`
	Tables             []Table       `gorm:"many2many:booking_tables" json:"tables,omitempty"`
	CreatedAt          time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableIDs returns the ids of the tables assigned to the booking.
func (b *Booking) TableIDs() []uint {
	ids := make([]uint, 0, len(b.Tables))
	for _, t := range b.Tables {
		ids = append(ids, t.ID)
	}
	return ids
}
