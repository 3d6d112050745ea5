package payment

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/webhook"
)

// ParseWebhook verifies the Stripe-Signature header and normalises the event.
func ParseWebhook(payload []byte, signatureHeader, secret string) (*Event, error) {
	ev, err := webhook.ConstructEvent(payload, signatureHeader, secret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return normalise(ev, payload)
}

// ParseStoredEvent rebuilds an Event from a payload that was verified when it
// was first received.
func ParseStoredEvent(payload []byte) (*Event, error) {
	var ev stripe.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode stored event: %w", err)
	}
	return normalise(ev, payload)
}

func normalise(ev stripe.Event, payload []byte) (*Event, error) {
	out := &Event{ID: ev.ID, Type: ev.Type, Payload: payload}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return out, nil
	}

	switch ev.Type {
	case EventIntentSucceeded, EventIntentFailed, EventIntentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.IntentID = pi.ID
		out.IntentStatus = IntentStatus(pi.Status)
		out.AmountCents = pi.Amount
		out.BookingReference = pi.Metadata[MetadataBookingReference]
		if pi.LastPaymentError != nil {
			out.FailureMessage = pi.LastPaymentError.Msg
		}
	}
	return out, nil
}
