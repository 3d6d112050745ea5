package booking

import (
	"context"
	"time"

	"github.com/ManuelReschke/TableFox/app/models"
	"github.com/ManuelReschke/TableFox/app/repository"
	"github.com/ManuelReschke/TableFox/internal/pkg/allocation"
)

// LoadSnapshot reads the tables, join groups and bookings overlapping
// [from, to) for the optimizer.
func LoadSnapshot(ctx context.Context, venues repository.VenueRepository, bookings repository.BookingRepository, venueID uint, from, to time.Time) (allocation.Snapshot, error) {
	var snap allocation.Snapshot
	var err error
	if snap.Tables, err = venues.ListTables(ctx, venueID); err != nil {
		return snap, err
	}
	if snap.JoinGroups, err = venues.ListJoinGroups(ctx, venueID); err != nil {
		return snap, err
	}
	if snap.Bookings, err = bookings.ListForVenueWindow(ctx, venueID, from, to); err != nil {
		return snap, err
	}
	return snap, nil
}

// VenueOptions applies per-venue threshold overrides; zero keeps the default.
func VenueOptions(base allocation.Options, venue *models.Venue) allocation.Options {
	opts := base
	if venue.LargePartyThreshold > 0 {
		opts.LargePartyThreshold = venue.LargePartyThreshold
	}
	if venue.VeryLargePartyThreshold > 0 {
		opts.VeryLargePartyThreshold = venue.VeryLargePartyThreshold
	}
	return opts
}
