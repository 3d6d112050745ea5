package booking

import (
	"context"
	"time"

	"github.com/ManuelReschke/TableFox/internal/pkg/allocation"
	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
)

// AvailabilityQuery asks what the optimizer would offer for a slot without
// holding anything.
type AvailabilityQuery struct {
	VenueID         uint   `query:"-" validate:"required"`
	ServiceID       uint   `query:"service_id" validate:"required"`
	Date            string `query:"date" validate:"required,datetime=2006-01-02"`
	Time            string `query:"time" validate:"required,datetime=15:04"`
	PartySize       int    `query:"party_size" validate:"required,min=1,max=100"`
	DurationMinutes int    `query:"duration_minutes" validate:"omitempty,min=15,max=480"`
	TableID         uint   `query:"table_id"`
}

type Availability struct {
	StartsAt        time.Time         `json:"starts_at"`
	EndsAt          time.Time         `json:"ends_at"`
	DurationMinutes int               `json:"duration_minutes"`
	PaymentRequired bool              `json:"payment_required"`
	AmountCents     int64             `json:"amount_cents"`
	Currency        string            `json:"currency,omitempty"`
	Result          allocation.Result `json:"result"`
}

// Availability runs the optimizer on current state. The answer may be stale
// by the time the guest submits; Submit checks again.
func (p *Pipeline) Availability(ctx context.Context, q AvailabilityQuery) (*Availability, error) {
	if err := validate.Struct(q); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Code: "invalid_request", Message: "invalid availability query", Err: err}
	}
	venue, service, err := p.loadVenue(ctx, q.VenueID, q.ServiceID)
	if err != nil {
		return nil, err
	}
	start, err := slotStart(venue, q.Date, q.Time)
	if err != nil {
		return nil, err
	}
	duration := p.duration(q.DurationMinutes, venue, service)

	snap, err := LoadSnapshot(ctx, p.venues, p.bookings, venue.ID, start, start.Add(duration))
	if err != nil {
		return nil, apperr.Upstream("booking_store_unavailable", err)
	}
	res := allocation.Optimize(allocation.Request{
		RequestedTableID: q.TableID,
		PartySize:        q.PartySize,
		Start:            start,
		Duration:         duration,
	}, snap, VenueOptions(p.opts.Allocation, venue))

	requirement := ComputePaymentRequirement(VenueRule(venue), ServiceRule(service), service.RequiresPayment, q.PartySize)
	out := &Availability{
		StartsAt:        start,
		EndsAt:          start.Add(duration),
		DurationMinutes: int(duration / time.Minute),
		PaymentRequired: requirement.ShouldCharge,
		AmountCents:     requirement.AmountCents,
		Result:          res,
	}
	if requirement.ShouldCharge {
		out.Currency = venue.Currency
		if out.Currency == "" {
			out.Currency = p.opts.Currency
		}
	}
	return out, nil
}

// Occupancy is the staff floor view for one local day at the venue.
func (p *Pipeline) Occupancy(ctx context.Context, venueID uint, date string) ([]allocation.Occupancy, error) {
	venue, err := p.venues.GetByID(ctx, venueID)
	if err != nil {
		return nil, p.venueErr(err)
	}
	day, err := time.ParseInLocation("2006-01-02", date, venue.Location())
	if err != nil {
		return nil, apperr.Validation("invalid_request", "date must be YYYY-MM-DD")
	}
	from, to := day.UTC(), day.AddDate(0, 0, 1).UTC()

	snap, err := LoadSnapshot(ctx, p.venues, p.bookings, venue.ID, from, to)
	if err != nil {
		return nil, apperr.Upstream("booking_store_unavailable", err)
	}
	return allocation.OccupiedTables(snap, from, to), nil
}
