package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TableFox/app/models"
	"github.com/ManuelReschke/TableFox/app/repository/repotest"
	"github.com/ManuelReschke/TableFox/internal/pkg/allocation"
	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
	"github.com/ManuelReschke/TableFox/internal/pkg/notify"
	"github.com/ManuelReschke/TableFox/internal/pkg/notify/notifytest"
	"github.com/ManuelReschke/TableFox/internal/pkg/payment"
	"github.com/ManuelReschke/TableFox/internal/pkg/slotlock"
)

type fakeLocks struct {
	locks    map[string]slotlock.Key
	released []string
}

func newFakeLocks() *fakeLocks { return &fakeLocks{locks: map[string]slotlock.Key{}} }

func (f *fakeLocks) Validate(ctx context.Context, token string, key slotlock.Key) (*models.SlotLock, error) {
	k, ok := f.locks[token]
	if !ok {
		return nil, apperr.NotFound("lock_expired", "slot lock expired or released")
	}
	if k != key {
		return nil, apperr.Conflict("lock_mismatch", "wrong slot")
	}
	return &models.SlotLock{Token: token, VenueID: k.VenueID, ServiceID: k.ServiceID, SlotDate: k.Date, SlotTime: k.Time}, nil
}

func (f *fakeLocks) Release(ctx context.Context, token, reason string) error {
	delete(f.locks, token)
	f.released = append(f.released, token)
	return nil
}

type fixture struct {
	db       *repotest.DB
	locks    *fakeLocks
	provider *payment.MemoryProvider
	notes    *notifytest.Recorder
	pipeline *Pipeline

	venue       models.Venue
	freeService models.Service
	paidService models.Service
	small       models.Table
	medium      models.Table
	large       models.Table
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:       repotest.New(),
		locks:    newFakeLocks(),
		provider: payment.NewMemoryProvider(),
		notes:    &notifytest.Recorder{},
	}
	f.venue = f.db.AddVenue(models.Venue{Name: "Harbour Room", Timezone: "UTC", Currency: "gbp", PaymentRule: models.PaymentRuleNone})
	f.freeService = f.db.AddService(models.Service{VenueID: f.venue.ID, Name: "Lunch", IsActive: true, DurationMinutes: 90})
	f.paidService = f.db.AddService(models.Service{
		VenueID:             f.venue.ID,
		Name:                "Tasting menu",
		IsActive:            true,
		RequiresPayment:     true,
		PaymentRule:         models.PaymentRuleAllReservations,
		AmountPerGuestCents: 500,
		DurationMinutes:     120,
	})
	f.small = f.db.AddTable(models.Table{VenueID: f.venue.ID, Name: "T1", Seats: 2, PriorityRank: 1, IsActive: true})
	f.medium = f.db.AddTable(models.Table{VenueID: f.venue.ID, Name: "T2", Seats: 4, PriorityRank: 2, IsActive: true})
	f.large = f.db.AddTable(models.Table{VenueID: f.venue.ID, Name: "T3", Seats: 12, PriorityRank: 3, IsActive: true})

	f.pipeline = NewPipeline(f.db.Repositories(), f.locks, f.provider, f.notes, Options{
		Allocation: allocation.DefaultOptions,
		Currency:   "gbp",
	})
	return f
}

func (f *fixture) request(service models.Service, party int) SubmitRequest {
	return SubmitRequest{
		VenueID:    f.venue.ID,
		ServiceID:  service.ID,
		Date:       "2026-11-20",
		Time:       "19:00",
		PartySize:  party,
		GuestName:  "Ada Guest",
		GuestEmail: "ada@example.com",
	}
}

func (f *fixture) lock(req SubmitRequest) string {
	token := "tok-" + req.Time
	f.locks.locks[token] = req.Key()
	return token
}

func TestSubmit_FreeBookingConfirmedAndLockReleased(t *testing.T) {
	f := newFixture(t)
	req := f.request(f.freeService, 2)
	req.LockToken = f.lock(req)

	res, err := f.pipeline.Submit(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, res.PaymentRequired)
	assert.Empty(t, res.ClientSecret)
	assert.Equal(t, models.BookingStatusConfirmed, res.Booking.Status)
	assert.Equal(t, []uint{f.small.ID}, res.Allocation.TableIDs)
	assert.Equal(t, 0, f.db.PaymentCount())
	assert.Equal(t, []string{req.LockToken}, f.locks.released)
	assert.Equal(t, 1, f.notes.Count(notify.KindBookingConfirmed))

	stored, ok := f.db.Booking(res.Booking.ID)
	require.True(t, ok)
	assert.NotNil(t, stored.ConfirmationSentAt)
	assert.Equal(t, time.Date(2026, 11, 20, 19, 0, 0, 0, time.UTC), stored.StartsAt)
	assert.Equal(t, 90, stored.DurationMinutes)
	assert.Regexp(t, `^TF-[2-9A-HJ-NP-Z]{6}$`, stored.Reference)
}

func TestSubmit_RequestedTableOutsideTopSuggestionsIsHonoured(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"T4", "T5", "T6", "T7", "T8"} {
		f.db.AddTable(models.Table{VenueID: f.venue.ID, Name: name, Seats: 2, PriorityRank: 1, IsActive: true})
	}
	req := f.request(f.freeService, 2)
	req.TableID = f.large.ID
	req.LockToken = f.lock(req)

	res, err := f.pipeline.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []uint{f.large.ID}, res.Allocation.TableIDs)
}

func TestSubmit_PaidBookingPendingWithAmount(t *testing.T) {
	f := newFixture(t)
	req := f.request(f.paidService, 10)

	res, err := f.pipeline.Submit(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.PaymentRequired)
	assert.Equal(t, int64(5000), res.AmountCents)
	assert.Equal(t, "gbp", res.Currency)
	assert.NotEmpty(t, res.ClientSecret)
	assert.Equal(t, models.BookingStatusPendingPayment, res.Booking.Status)
	assert.Equal(t, []uint{f.large.ID}, res.Allocation.TableIDs)
	assert.Equal(t, 1, f.db.PaymentCount())
	assert.Zero(t, f.notes.Count(notify.KindBookingConfirmed))

	intent, err := f.provider.GetIntent(context.Background(), res.IntentID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), intent.AmountCents)
	assert.Equal(t, res.Booking.Reference, intent.Metadata[payment.MetadataBookingReference])
}

func TestSubmit_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	req := f.request(f.freeService, 0)

	_, err := f.pipeline.Submit(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "invalid_request", apperr.CodeOf(err))

	req = f.request(f.freeService, 2)
	req.Time = "7pm"
	_, err = f.pipeline.Submit(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.db.Bookings())
}

func TestSubmit_LockProblems(t *testing.T) {
	f := newFixture(t)
	req := f.request(f.freeService, 2)
	req.LockToken = "missing"

	_, err := f.pipeline.Submit(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "lock_expired", apperr.CodeOf(err))

	other := f.request(f.freeService, 2)
	other.Time = "20:00"
	req.LockToken = f.lock(other)
	_, err = f.pipeline.Submit(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "lock_mismatch", apperr.CodeOf(err))

	assert.Empty(t, f.db.Bookings())
}

func TestSubmit_UnknownVenueOrInactiveService(t *testing.T) {
	f := newFixture(t)
	req := f.request(f.freeService, 2)
	req.VenueID = 999
	_, err := f.pipeline.Submit(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	closed := f.db.AddService(models.Service{VenueID: f.venue.ID, Name: "Closed", IsActive: false})
	_, err = f.pipeline.Submit(context.Background(), f.request(closed, 2))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "service_unavailable", apperr.CodeOf(err))
}

func TestSubmit_RequestedTableHonouredWhenFree(t *testing.T) {
	f := newFixture(t)
	req := f.request(f.freeService, 2)
	req.TableID = f.medium.ID

	res, err := f.pipeline.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []uint{f.medium.ID}, res.Allocation.TableIDs)
}

func TestSubmit_NoTableFreeIsConflict(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 11, 20, 18, 30, 0, 0, time.UTC)
	f.db.AddBooking(models.Booking{
		VenueID:  f.venue.ID,
		Status:   models.BookingStatusConfirmed,
		StartsAt: start,
		EndsAt:   start.Add(3 * time.Hour),
		Tables:   []models.Table{f.large},
	})

	_, err := f.pipeline.Submit(context.Background(), f.request(f.freeService, 10))
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "slot_unavailable", apperr.CodeOf(err))
	assert.Len(t, f.db.Bookings(), 1)
}

func TestSubmit_ReducedDurationWhenLaterBookingBlocks(t *testing.T) {
	f := newFixture(t)
	later := time.Date(2026, 11, 20, 20, 0, 0, 0, time.UTC)
	f.db.AddBooking(models.Booking{
		VenueID:  f.venue.ID,
		Status:   models.BookingStatusConfirmed,
		StartsAt: later,
		EndsAt:   later.Add(2 * time.Hour),
		Tables:   []models.Table{f.large},
	})

	res, err := f.pipeline.Submit(context.Background(), f.request(f.freeService, 10))
	require.NoError(t, err)
	assert.True(t, res.Allocation.Reduced)
	assert.Equal(t, 60, res.Booking.DurationMinutes)
	assert.Equal(t, later, res.Booking.EndsAt)
}

type recordingProvider struct {
	*payment.MemoryProvider
	created []string
}

func (p *recordingProvider) CreateIntent(ctx context.Context, in payment.CreateIntentParams) (*payment.Intent, error) {
	intent, err := p.MemoryProvider.CreateIntent(ctx, in)
	if err == nil {
		p.created = append(p.created, intent.ID)
	}
	return intent, err
}

func TestSubmit_PersistFailureCancelsIntent(t *testing.T) {
	f := newFixture(t)
	rec := &recordingProvider{MemoryProvider: f.provider}
	f.pipeline.provider = rec
	f.db.Fail["Booking.CreateWithPayment"] = errors.New("deadlock")

	_, err := f.pipeline.Submit(context.Background(), f.request(f.paidService, 4))
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Empty(t, f.db.Bookings())
	assert.Zero(t, f.db.PaymentCount())

	require.Len(t, rec.created, 1)
	intent, err := f.provider.GetIntent(context.Background(), rec.created[0])
	require.NoError(t, err)
	assert.Equal(t, payment.IntentCanceled, intent.Status)
}

func TestSubmit_ProviderFailureLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	f.provider.FailNext = apperr.Upstream("provider_unavailable", errors.New("timeout"))

	_, err := f.pipeline.Submit(context.Background(), f.request(f.paidService, 4))
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Empty(t, f.db.Bookings())
}

func TestSubmit_SecondPartyForOnlyTableIsConflict(t *testing.T) {
	f := newFixture(t)

	first, err := f.pipeline.Submit(context.Background(), f.request(f.freeService, 12))
	require.NoError(t, err)
	require.Equal(t, []uint{f.large.ID}, first.Allocation.TableIDs)

	_, err = f.pipeline.Submit(context.Background(), f.request(f.freeService, 12))
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Len(t, f.db.Bookings(), 1)
}

func TestSubmit_PendingPaymentHoldsTable(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Submit(context.Background(), f.request(f.paidService, 12))
	require.NoError(t, err)

	_, err = f.pipeline.Submit(context.Background(), f.request(f.freeService, 12))
	assert.ErrorIs(t, err, apperr.ErrConflict)
}
