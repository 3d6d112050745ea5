package models

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
)

const (
	RefundStatusNone    = "none"
	RefundStatusPartial = "partial"
	RefundStatusFull    = "full"
)

// Payment is the single payment attached to a booking that required one.
// RefundAmountCents never exceeds AmountCents and a succeeded payment always
// carries ProcessedAt.
type Payment struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	BookingID         uint       `gorm:"not null;uniqueIndex" json:"booking_id"`
	ProviderIntentID  string     `gorm:"type:varchar(191);not null;default:'';index" json:"provider_intent_id"`
	AmountCents       int64      `gorm:"not null" json:"amount_cents"`
	Currency          string     `gorm:"type:varchar(3);not null;default:'gbp'" json:"currency"`
	Description       string     `gorm:"type:varchar(255)" json:"description"`
	Status            string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	RefundAmountCents int64      `gorm:"not null;default:0" json:"refund_amount_cents"`
	RefundStatus      string     `gorm:"type:varchar(20);not null;default:'none'" json:"refund_status"`
	ProcessedAt       *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	RefundedAt        *time.Time `gorm:"type:timestamp;default:null" json:"refunded_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// RemainingRefundableCents is what can still be refunded.
func (p *Payment) RemainingRefundableCents() int64 {
	return p.AmountCents - p.RefundAmountCents
}
