// Package notify delivers guest notifications. Delivery is at-least-once and
// fire-and-forget from the booking core's point of view.
package notify

import (
	"context"
	"time"
)

type Kind string

const (
	KindBookingConfirmed Kind = "booking_confirmed"
	KindPaymentFailed    Kind = "payment_failed"
	KindBookingCancelled Kind = "booking_cancelled"
	KindRefundIssued     Kind = "refund_issued"
)

// Message is one templated notification to a guest.
type Message struct {
	Kind        Kind      `json:"kind"`
	BookingID   uint      `json:"booking_id"`
	Reference   string    `json:"reference"`
	GuestName   string    `json:"guest_name"`
	GuestEmail  string    `json:"guest_email"`
	PartySize   int       `json:"party_size"`
	StartsAt    time.Time `json:"starts_at"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Currency    string    `json:"currency,omitempty"`
}

// Sender delivers a message over one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher hands a message off for delivery without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// Inline dispatches by sending synchronously. Used where no job queue runs,
// such as the operator CLI.
type Inline struct {
	Sender Sender
}

func (d Inline) Dispatch(ctx context.Context, msg Message) error {
	return d.Sender.Send(ctx, msg)
}
