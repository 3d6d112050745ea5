package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	PaymentRuleNone            = "none"
	PaymentRuleAllReservations = "all_reservations"
	PaymentRuleLargeGroups     = "large_groups"
)

// Venue is a bookable location. Payment and party-size thresholds set here act
// as venue-wide defaults; a zero threshold falls back to the service config.
type Venue struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	Name                    string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,max=150"`
	Timezone                string    `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`
	Currency                string    `gorm:"type:varchar(3);not null;default:'gbp'" json:"currency" validate:"len=3"`
	PaymentRule             string    `gorm:"type:varchar(32);not null;default:'none'" json:"payment_rule" validate:"oneof=none all_reservations large_groups"`
	AmountPerGuestCents     int64     `gorm:"not null;default:0" json:"amount_per_guest_cents" validate:"gte=0"`
	MinimumGuests           int       `gorm:"not null;default:0" json:"minimum_guests" validate:"gte=0"`
	LargePartyThreshold     int       `gorm:"not null;default:0" json:"large_party_threshold"`
	VeryLargePartyThreshold int       `gorm:"not null;default:0" json:"very_large_party_threshold"`
	DefaultDurationMinutes  int       `gorm:"not null;default:0" json:"default_duration_minutes"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (v *Venue) Validate() error {
	return validator.New().Struct(v)
}

// Location resolves the venue timezone, falling back to UTC for unknown zones.
func (v *Venue) Location() *time.Location {
	if v == nil || v.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(v.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Service is a sitting (lunch, dinner, tasting menu) offered by a venue.
type Service struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	VenueID             uint      `gorm:"not null;index" json:"venue_id"`
	Name                string    `gorm:"type:varchar(150);not null" json:"name"`
	RequiresPayment     bool      `gorm:"default:false" json:"requires_payment"`
	PaymentRule         string    `gorm:"type:varchar(32);not null;default:'none'" json:"payment_rule"`
	AmountPerGuestCents int64     `gorm:"not null;default:0" json:"amount_per_guest_cents"`
	MinimumGuests       int       `gorm:"not null;default:0" json:"minimum_guests"`
	DurationMinutes     int       `gorm:"not null;default:0" json:"duration_minutes"`
	IsActive            bool      `gorm:"default:true" json:"is_active"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
