package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
)

func TestMemoryProvider_RefundBounds(t *testing.T) {
	p := NewMemoryProvider()
	ctx := context.Background()

	intent, err := p.CreateIntent(ctx, CreateIntentParams{AmountCents: 1000, Currency: "gbp", BookingReference: "TF-1"})
	require.NoError(t, err)
	assert.Equal(t, "TF-1", intent.Metadata[MetadataBookingReference])

	_, err = p.Refund(ctx, RefundParams{IntentID: intent.ID, AmountCents: 100})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	p.SetStatus(intent.ID, IntentSucceeded)
	_, err = p.Refund(ctx, RefundParams{IntentID: intent.ID, AmountCents: 600})
	require.NoError(t, err)
	_, err = p.Refund(ctx, RefundParams{IntentID: intent.ID, AmountCents: 500})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already been refunded")
	assert.Equal(t, int64(600), p.Refunded(intent.ID))
}

func TestMemoryProvider_FailNextIsOneShot(t *testing.T) {
	p := NewMemoryProvider()
	p.FailNext = apperr.Upstream("boom", errors.New("timeout"))

	_, err := p.CreateIntent(context.Background(), CreateIntentParams{AmountCents: 1})
	assert.Error(t, err)
	_, err = p.CreateIntent(context.Background(), CreateIntentParams{AmountCents: 1})
	assert.NoError(t, err)
}

func TestIntentStatus_Settled(t *testing.T) {
	assert.True(t, IntentSucceeded.Settled())
	assert.True(t, IntentCanceled.Settled())
	assert.False(t, IntentProcessing.Settled())
	assert.False(t, IntentRequiresAction.Settled())
}
