package models

import "time"

// SlotLock is a short-lived lease on a (venue, service, date, time) slot held
// while a guest completes checkout. A row whose ExpiresAt has passed is treated
// as absent even before the reaper deletes it.
type SlotLock struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	Token          string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"token"`
	VenueID        uint      `gorm:"not null;index:ux_slot_locks_key,unique,priority:1" json:"venue_id"`
	ServiceID      uint      `gorm:"not null;index:ux_slot_locks_key,unique,priority:2" json:"service_id"`
	SlotDate       string    `gorm:"type:varchar(10);not null;index:ux_slot_locks_key,unique,priority:3" json:"date"`
	SlotTime       string    `gorm:"type:varchar(5);not null;index:ux_slot_locks_key,unique,priority:4" json:"time"`
	PartySize      int       `gorm:"not null" json:"party_size"`
	SessionID      string    `gorm:"type:varchar(100);not null;default:'';index" json:"-"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	ExpiresAt      time.Time `gorm:"not null;index" json:"expires_at"`
	LastExtendedAt time.Time `gorm:"not null" json:"last_extended_at"`
}

// ActiveAt reports whether the lease is still held at now.
func (l *SlotLock) ActiveAt(now time.Time) bool {
	return now.Before(l.ExpiresAt)
}
