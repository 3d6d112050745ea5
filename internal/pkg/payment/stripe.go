package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/client"

	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
)

// StripeProvider talks to Stripe through the stripe-go client.
type StripeProvider struct {
	api *client.API
}

func NewStripeProvider(secretKey string) *StripeProvider {
	return &StripeProvider{api: client.New(secretKey, nil)}
}

func (p *StripeProvider) CreateIntent(ctx context.Context, in CreateIntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(in.AmountCents),
		Currency:    stripe.String(in.Currency),
		Description: stripe.String(in.Description),
	}
	if in.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(in.ReceiptEmail)
	}
	params.Context = ctx
	params.AddMetadata(MetadataBookingReference, in.BookingReference)
	params.SetIdempotencyKey(idempotencyKey(in.IdempotencyKey))

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, mapStripeError("create_intent_failed", err)
	}
	log.Infof("[Payment] Created intent %s for booking %s", pi.ID, in.BookingReference)
	return intentFromStripe(pi), nil
}

func (p *StripeProvider) CancelIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := p.api.PaymentIntents.Cancel(intentID, params); err != nil {
		return mapStripeError("cancel_intent_failed", err)
	}
	return nil
}

func (p *StripeProvider) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, mapStripeError("get_intent_failed", err)
	}
	return intentFromStripe(pi), nil
}

func (p *StripeProvider) Refund(ctx context.Context, in RefundParams) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(in.IntentID),
		Amount:        stripe.Int64(in.AmountCents),
	}
	params.Context = ctx
	if in.Reason != "" {
		params.AddMetadata("reason", in.Reason)
	}
	params.SetIdempotencyKey(idempotencyKey(in.IdempotencyKey))

	r, err := p.api.Refunds.New(params)
	if err != nil {
		return nil, mapStripeError("refund_failed", err)
	}
	return &Refund{ID: r.ID, AmountCents: r.Amount, Status: string(r.Status)}, nil
}

func idempotencyKey(key string) string {
	if key != "" {
		return key
	}
	return uuid.New().String()
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	intent := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Status:       IntentStatus(pi.Status),
		Metadata:     pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		intent.LastError = pi.LastPaymentError.Msg
	}
	return intent
}

// mapStripeError keeps Stripe's own message. 4xx responses are rejections
// the caller can act on; everything else is an upstream failure.
func mapStripeError(code string, err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return apperr.Upstream(code, err)
	}
	if se.HTTPStatusCode >= http.StatusBadRequest && se.HTTPStatusCode < http.StatusInternalServerError &&
		se.HTTPStatusCode != http.StatusTooManyRequests {
		return &apperr.Error{Kind: apperr.KindConflict, Code: "provider_rejected", Message: se.Msg, Err: err}
	}
	return &apperr.Error{Kind: apperr.KindUpstream, Code: code, Message: se.Msg, Err: err}
}
