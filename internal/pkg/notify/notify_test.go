package notify

import (
	"context"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TableFox/internal/pkg/config"
)

func sampleMessage(kind Kind) Message {
	return Message{
		Kind:        kind,
		BookingID:   7,
		Reference:   "TF-XY23AB",
		GuestName:   "Ada",
		GuestEmail:  "ada@example.com",
		PartySize:   4,
		StartsAt:    time.Date(2026, 6, 5, 19, 30, 0, 0, time.UTC),
		AmountCents: 2050,
		Currency:    "gbp",
	}
}

func TestRender_AllKinds(t *testing.T) {
	for _, kind := range []Kind{KindBookingConfirmed, KindPaymentFailed, KindBookingCancelled, KindRefundIssued} {
		subject, body, err := Render(sampleMessage(kind))
		require.NoError(t, err, kind)
		assert.Contains(t, subject, "TF-XY23AB")
		assert.Contains(t, body, "Ada")
	}

	_, body, err := Render(sampleMessage(KindRefundIssued))
	require.NoError(t, err)
	assert.Contains(t, body, "20.50 gbp")

	_, body, err = Render(sampleMessage(KindBookingConfirmed))
	require.NoError(t, err)
	assert.Contains(t, body, "Fri 5 Jun 2026 at 19:30")
}

func TestRender_UnknownKind(t *testing.T) {
	_, _, err := Render(Message{Kind: "nope"})
	assert.Error(t, err)
}

func TestSMTPSender_BuildsMessage(t *testing.T) {
	var gotAddr string
	var gotTo []string
	var gotBody []byte
	s := &SMTPSender{host: "mail.local", port: "2525", sender: "bookings@tablefox.test",
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotTo, gotBody = addr, to, msg
			return nil
		}}

	require.NoError(t, s.Send(context.Background(), sampleMessage(KindBookingConfirmed)))
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, []string{"ada@example.com"}, gotTo)
	assert.Contains(t, string(gotBody), "Subject: Your booking TF-XY23AB is confirmed")
	assert.Contains(t, string(gotBody), "From: bookings@tablefox.test")
}

func TestNewSender_Drivers(t *testing.T) {
	s, err := NewSender(config.NotifyConfig{Driver: "log"})
	require.NoError(t, err)
	assert.IsType(t, LogSender{}, s)

	s, err = NewSender(config.NotifyConfig{Driver: "smtp"})
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, s)

	_, err = NewSender(config.NotifyConfig{Driver: "pigeon"})
	assert.Error(t, err)
}

type recordingSender struct{ got []Message }

func (r *recordingSender) Send(ctx context.Context, msg Message) error {
	r.got = append(r.got, msg)
	return nil
}

func TestInline_Dispatch(t *testing.T) {
	rec := &recordingSender{}
	require.NoError(t, Inline{Sender: rec}.Dispatch(context.Background(), sampleMessage(KindPaymentFailed)))
	require.Len(t, rec.got, 1)
	assert.Equal(t, KindPaymentFailed, rec.got[0].Kind)
}
