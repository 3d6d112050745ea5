package allocation

import (
	"sort"
	"time"

	"github.com/ManuelReschke/TableFox/app/models"
)

// Occupancy is one table held by one booking in the staff floor view.
type Occupancy struct {
	TableID   uint                 `json:"table_id"`
	TableName string               `json:"table_name"`
	BookingID uint                 `json:"booking_id"`
	Reference string               `json:"reference"`
	Status    models.BookingStatus `json:"status"`
	PartySize int                  `json:"party_size"`
	StartsAt  time.Time            `json:"starts_at"`
	EndsAt    time.Time            `json:"ends_at"`
}

// OccupiedTables lists table occupancy overlapping [from, to) for staff.
// Bookings still awaiting payment are left out here even though Optimize
// treats them as holding their tables.
func OccupiedTables(snap Snapshot, from, to time.Time) []Occupancy {
	names := make(map[uint]string, len(snap.Tables))
	for _, t := range snap.Tables {
		names[t.ID] = t.Name
	}

	out := []Occupancy{}
	for _, b := range snap.Bookings {
		if !b.Status.OccupiesForStaff() || !Overlaps(b.StartsAt, b.EndsAt, from, to) {
			continue
		}
		for _, t := range b.Tables {
			name := names[t.ID]
			if name == "" {
				name = t.Name
			}
			out = append(out, Occupancy{
				TableID:   t.ID,
				TableName: name,
				BookingID: b.ID,
				Reference: b.Reference,
				Status:    b.Status,
				PartySize: b.PartySize,
				StartsAt:  b.StartsAt,
				EndsAt:    b.EndsAt,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].TableID < out[j].TableID
	})
	return out
}
