package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
)

// MemoryProvider is an in-process provider for local development without
// Stripe credentials. Intents stay in requires_payment_method until SetStatus
// is called.
type MemoryProvider struct {
	mu      sync.Mutex
	intents map[string]*Intent
	refunds map[string]int64
	// issued replays refunds by idempotency key, as Stripe does.
	issued map[string]Refund

	// FailNext makes the next call return this error.
	FailNext error
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{intents: map[string]*Intent{}, refunds: map[string]int64{}, issued: map[string]Refund{}}
}

func (p *MemoryProvider) takeFailure() error {
	err := p.FailNext
	p.FailNext = nil
	return err
}

func (p *MemoryProvider) CreateIntent(ctx context.Context, in CreateIntentParams) (*Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure(); err != nil {
		return nil, err
	}
	id := "pi_" + uuid.New().String()
	intent := &Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		AmountCents:  in.AmountCents,
		Currency:     in.Currency,
		Status:       IntentRequiresPaymentMethod,
		Metadata:     map[string]string{MetadataBookingReference: in.BookingReference},
	}
	p.intents[id] = intent
	cp := *intent
	return &cp, nil
}

func (p *MemoryProvider) CancelIntent(ctx context.Context, intentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure(); err != nil {
		return err
	}
	intent, ok := p.intents[intentID]
	if !ok {
		return apperr.NotFound("intent_not_found", "no such payment intent: "+intentID)
	}
	intent.Status = IntentCanceled
	return nil
}

func (p *MemoryProvider) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure(); err != nil {
		return nil, err
	}
	intent, ok := p.intents[intentID]
	if !ok {
		return nil, apperr.NotFound("intent_not_found", "no such payment intent: "+intentID)
	}
	cp := *intent
	return &cp, nil
}

func (p *MemoryProvider) Refund(ctx context.Context, in RefundParams) (*Refund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure(); err != nil {
		return nil, err
	}
	if prev, ok := p.issued[in.IdempotencyKey]; ok && in.IdempotencyKey != "" {
		return &prev, nil
	}
	intent, ok := p.intents[in.IntentID]
	if !ok {
		return nil, apperr.NotFound("intent_not_found", "no such payment intent: "+in.IntentID)
	}
	if intent.Status != IntentSucceeded {
		return nil, &apperr.Error{Kind: apperr.KindConflict, Code: "provider_rejected", Message: "This PaymentIntent has not succeeded."}
	}
	if p.refunds[in.IntentID]+in.AmountCents > intent.AmountCents {
		return nil, &apperr.Error{Kind: apperr.KindConflict, Code: "provider_rejected", Message: "Charge has already been refunded."}
	}
	p.refunds[in.IntentID] += in.AmountCents
	refund := Refund{ID: "re_" + uuid.New().String(), AmountCents: in.AmountCents, Status: "succeeded"}
	if in.IdempotencyKey != "" {
		p.issued[in.IdempotencyKey] = refund
	}
	return &refund, nil
}

// SetStatus moves an intent to status, as a customer or the provider would.
func (p *MemoryProvider) SetStatus(intentID string, status IntentStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if intent, ok := p.intents[intentID]; ok {
		intent.Status = status
	}
}

// Put registers an intent directly.
func (p *MemoryProvider) Put(intent Intent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := intent
	p.intents[intent.ID] = &cp
}

// Refunded returns the total refunded for an intent.
func (p *MemoryProvider) Refunded(intentID string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refunds[intentID]
}

// IntentCount returns how many intents were created or registered.
func (p *MemoryProvider) IntentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.intents)
}
