// Package payment wraps the payment provider the booking pipeline charges
// through. The provider is the source of truth for payment state.
package payment

import (
	"context"
)

// IntentStatus mirrors the provider's payment intent lifecycle.
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentProcessing            IntentStatus = "processing"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

// Settled reports whether the intent reached a final outcome.
func (s IntentStatus) Settled() bool {
	return s == IntentSucceeded || s == IntentCanceled
}

// Webhook event types the reconciler acts on.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventIntentCanceled  = "payment_intent.canceled"
)

// MetadataBookingReference links an intent back to its booking.
const MetadataBookingReference = "booking_reference"

type Intent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Currency     string
	Status       IntentStatus
	Metadata     map[string]string
	LastError    string
}

type CreateIntentParams struct {
	AmountCents      int64
	Currency         string
	Description      string
	BookingReference string
	ReceiptEmail     string
	IdempotencyKey   string
}

type RefundParams struct {
	IntentID       string
	AmountCents    int64
	Reason         string
	IdempotencyKey string
}

type Refund struct {
	ID          string
	AmountCents int64
	Status      string
}

// Event is a provider webhook event reduced to what reconciliation needs.
type Event struct {
	ID               string
	Type             string
	IntentID         string
	IntentStatus     IntentStatus
	AmountCents      int64
	BookingReference string
	FailureMessage   string
	Payload          []byte
}

// Provider is the subset of the payment provider API the pipeline uses.
// Errors are *apperr.Error values; rejections carry the provider's message.
type Provider interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
	Refund(ctx context.Context, params RefundParams) (*Refund, error)
}
