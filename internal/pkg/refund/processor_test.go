package refund

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TableFox/app/models"
	"github.com/ManuelReschke/TableFox/app/repository/repotest"
	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
	"github.com/ManuelReschke/TableFox/internal/pkg/notify"
	"github.com/ManuelReschke/TableFox/internal/pkg/notify/notifytest"
	"github.com/ManuelReschke/TableFox/internal/pkg/payment"
)

type fixture struct {
	db        *repotest.DB
	provider  *payment.MemoryProvider
	notes     *notifytest.Recorder
	processor *Processor
	booking   models.Booking
	payment   models.Payment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: repotest.New(), provider: payment.NewMemoryProvider(), notes: &notifytest.Recorder{}}
	f.booking = f.db.AddBooking(models.Booking{Reference: "TF-RRRRRR", Status: models.BookingStatusConfirmed, PaymentRequired: true})
	f.payment = f.db.AddPayment(models.Payment{
		BookingID:        f.booking.ID,
		ProviderIntentID: "pi_r",
		AmountCents:      5000,
		Currency:         "gbp",
		Status:           models.PaymentStatusSucceeded,
	})
	f.provider.Put(payment.Intent{ID: "pi_r", AmountCents: 5000, Status: payment.IntentSucceeded})
	f.processor = NewProcessor(f.db.Repositories(), f.provider, f.notes)
	return f
}

func (f *fixture) refund(amount int64, cancel bool) (*Result, error) {
	return f.processor.Refund(context.Background(), Request{
		PaymentID:     f.payment.ID,
		AmountCents:   amount,
		Reason:        "kitchen closed",
		CancelBooking: cancel,
		Actor:         "manager",
	})
}

func TestRefund_PartialThenFull(t *testing.T) {
	f := newFixture(t)

	res, err := f.refund(2000, false)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusPartial, res.RefundStatus)
	assert.Equal(t, int64(2000), res.RefundAmountCents)
	assert.False(t, res.BookingCancelled)

	res, err = f.refund(3000, false)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusFull, res.RefundStatus)

	got, _ := f.db.Payment(f.payment.ID)
	assert.Equal(t, int64(5000), got.RefundAmountCents)
	assert.Equal(t, models.RefundStatusFull, got.RefundStatus)
	assert.NotNil(t, got.RefundedAt)
	assert.Equal(t, int64(5000), f.provider.Refunded("pi_r"))

	_, err = f.refund(1, false)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	b, _ := f.db.Booking(f.booking.ID)
	assert.Equal(t, models.BookingStatusConfirmed, b.Status)
	assert.Equal(t, 2, f.notes.Count(notify.KindRefundIssued))

	audit := f.db.AuditEntries()
	require.Len(t, audit, 2)
	assert.Equal(t, "refund", audit[1].Action)
	assert.Equal(t, "2000", audit[1].OldValue)
	assert.Equal(t, "5000", audit[1].NewValue)
}

func TestRefund_Bounds(t *testing.T) {
	f := newFixture(t)

	_, err := f.refund(0, false)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.refund(5001, false)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "invalid_refund_amount", apperr.CodeOf(err))

	got, _ := f.db.Payment(f.payment.ID)
	assert.Zero(t, got.RefundAmountCents)
	assert.Zero(t, f.provider.Refunded("pi_r"))
}

func TestRefund_RequiresSucceededPayment(t *testing.T) {
	f := newFixture(t)
	pending := f.db.AddPayment(models.Payment{BookingID: 99, Status: models.PaymentStatusPending, AmountCents: 100})

	_, err := f.processor.Refund(context.Background(), Request{PaymentID: pending.ID, AmountCents: 50, Reason: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.processor.Refund(context.Background(), Request{PaymentID: 12345, AmountCents: 50, Reason: "x"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRefund_ProviderRejectionLeavesNoLocalChange(t *testing.T) {
	f := newFixture(t)
	f.provider.FailNext = &apperr.Error{Kind: apperr.KindConflict, Code: "provider_rejected", Message: "Charge has already been refunded."}

	_, err := f.refund(1000, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Charge has already been refunded.")

	got, _ := f.db.Payment(f.payment.ID)
	assert.Zero(t, got.RefundAmountCents)
	assert.Equal(t, models.RefundStatusNone, got.RefundStatus)
	b, _ := f.db.Booking(f.booking.ID)
	assert.Equal(t, models.BookingStatusConfirmed, b.Status)
	assert.Empty(t, f.db.AuditEntries())
}

func TestRefund_CancelBookingIsSeparatelyAudited(t *testing.T) {
	f := newFixture(t)

	res, err := f.refund(5000, true)
	require.NoError(t, err)
	assert.True(t, res.BookingCancelled)

	b, _ := f.db.Booking(f.booking.ID)
	assert.Equal(t, models.BookingStatusCancelled, b.Status)

	audit := f.db.AuditEntries()
	require.Len(t, audit, 2)
	assert.Equal(t, models.AuditEntityPayment, audit[0].EntityType)
	assert.Equal(t, models.AuditEntityBooking, audit[1].EntityType)
	assert.Equal(t, "cancelled", audit[1].NewValue)
	assert.Equal(t, 1, f.notes.Count(notify.KindBookingCancelled))
}

func TestRefund_LocalWriteFailureAfterProviderSuccess(t *testing.T) {
	f := newFixture(t)
	f.db.Fail["Payment.ApplyRefund"] = errors.New("connection reset")

	_, err := f.refund(1000, false)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestRefund_AuditFailureLeavesRefundUnrecordedAndRetrySafe(t *testing.T) {
	f := newFixture(t)
	f.db.Fail["Audit.Create"] = errors.New("audit table locked")

	_, err := f.refund(2000, false)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	got, _ := f.db.Payment(f.payment.ID)
	assert.Zero(t, got.RefundAmountCents)
	assert.Empty(t, f.db.AuditEntries())

	// The retry reuses the idempotency key, so the provider does not refund twice.
	delete(f.db.Fail, "Audit.Create")
	res, err := f.refund(2000, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), res.RefundAmountCents)
	assert.Equal(t, int64(2000), f.provider.Refunded("pi_r"))
	require.Len(t, f.db.AuditEntries(), 1)
}
