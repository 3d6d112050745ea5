// Package allocation proposes tables for a party. Everything here is a pure
// function over a snapshot, so callers may run it speculatively without
// taking locks.
package allocation

import (
	"sort"
	"time"

	"github.com/ManuelReschke/TableFox/app/models"
)

const (
	KindTable     = "table"
	KindJoinGroup = "join_group"
	KindSplit     = "split"
)

// Snapshot is the venue state the optimizer reasons about. Bookings should
// cover the requested date; bookings in non-holding statuses are ignored.
type Snapshot struct {
	Tables     []models.Table
	JoinGroups []models.JoinGroup
	Bookings   []models.Booking
}

// Request asks for tables for PartySize guests over [Start, Start+Duration).
// RequestedTableID is optional.
type Request struct {
	RequestedTableID uint
	PartySize        int
	Start            time.Time
	Duration         time.Duration
}

func (r Request) End() time.Time { return r.Start.Add(r.Duration) }

// Options are the tunable thresholds. Parties above LargePartyThreshold get
// join group options; above VeryLargePartyThreshold a split may be offered.
type Options struct {
	LargePartyThreshold     int
	VeryLargePartyThreshold int
	MinViableDuration       time.Duration
	MaxSuggestions          int
}

// DefaultOptions matches the stock venue configuration.
var DefaultOptions = Options{
	LargePartyThreshold:     8,
	VeryLargePartyThreshold: 12,
	MinViableDuration:       30 * time.Minute,
	MaxSuggestions:          5,
}

type Suggestion struct {
	Kind              string        `json:"kind"`
	TableIDs          []uint        `json:"table_ids"`
	TableNames        []string      `json:"table_names"`
	Seats             int           `json:"seats"`
	PriorityRank      int           `json:"priority_rank"`
	Efficiency        float64       `json:"efficiency"`
	AvailableDuration time.Duration `json:"-"`
	AvailableMinutes  int           `json:"available_minutes"`
	Reduced           bool          `json:"reduced"`
	JoinGroupID       uint          `json:"join_group_id,omitempty"`
	JoinGroupName     string        `json:"join_group_name,omitempty"`
}

// Result holds the ranked options. Suggestions is capped; Primary is the
// requested table whenever it is free, even if it ranks below the cap.
type Result struct {
	PrimaryAvailable bool         `json:"primary_available"`
	Primary          *Suggestion  `json:"primary,omitempty"`
	Suggestions      []Suggestion `json:"suggestions"`
	JoinGroupOptions []Suggestion `json:"join_group_options"`
	SplitOptions     []Suggestion `json:"split_options"`
}

// Best returns the preferred allocation: a single table, then a join group,
// then a split.
func (r Result) Best() (Suggestion, bool) {
	for _, list := range [][]Suggestion{r.Suggestions, r.JoinGroupOptions, r.SplitOptions} {
		if len(list) > 0 {
			return list[0], true
		}
	}
	return Suggestion{}, false
}

// Overlaps is the half-open interval test: back-to-back intervals do not
// overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// TableAvailability returns how long tableID is free from start, capped at
// duration. A table blocked by a booking starting later in the window keeps a
// reduced duration, which must reach minViable. ok is false when the table is
// blocked at start or the reduced window is below minViable.
func TableAvailability(tableID uint, bookings []models.Booking, start time.Time, duration, minViable time.Duration) (time.Duration, bool) {
	end := start.Add(duration)
	available := duration

	for i := range bookings {
		b := &bookings[i]
		if !b.Status.HoldsTable() || !usesTable(b, tableID) {
			continue
		}
		if !Overlaps(b.StartsAt, b.EndsAt, start, end) {
			continue
		}
		if !b.StartsAt.After(start) {
			return 0, false
		}
		if gap := b.StartsAt.Sub(start); gap < available {
			available = gap
		}
	}

	if available < duration && available < minViable {
		return 0, false
	}
	return available, true
}

// Optimize ranks single tables, join groups and (for very large parties) a
// split across two tables.
func Optimize(req Request, snap Snapshot, opts Options) Result {
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = DefaultOptions.MaxSuggestions
	}
	result := Result{
		Suggestions:      []Suggestion{},
		JoinGroupOptions: []Suggestion{},
		SplitOptions:     []Suggestion{},
	}
	if req.PartySize <= 0 || req.Duration <= 0 {
		return result
	}

	tablesByID := make(map[uint]models.Table, len(snap.Tables))
	var free []Suggestion
	for _, t := range snap.Tables {
		tablesByID[t.ID] = t
		if !t.IsActive {
			continue
		}
		avail, ok := TableAvailability(t.ID, snap.Bookings, req.Start, req.Duration, opts.MinViableDuration)
		if !ok {
			continue
		}
		free = append(free, tableSuggestion(t, req, avail))
	}

	for _, s := range free {
		if s.Seats < req.PartySize {
			continue
		}
		if req.RequestedTableID != 0 && s.TableIDs[0] == req.RequestedTableID {
			primary := s
			result.PrimaryAvailable = true
			result.Primary = &primary
		}
		result.Suggestions = append(result.Suggestions, s)
	}
	sortTables(result.Suggestions)
	result.Suggestions = capList(result.Suggestions, opts.MaxSuggestions)

	if req.PartySize > opts.LargePartyThreshold {
		result.JoinGroupOptions = capList(joinGroups(req, snap, tablesByID, opts), opts.MaxSuggestions)
	}

	if req.PartySize > opts.VeryLargePartyThreshold && len(result.Suggestions) == 0 && len(result.JoinGroupOptions) == 0 {
		if split, ok := splitAcrossTwo(req, free); ok {
			result.SplitOptions = append(result.SplitOptions, split)
		}
	}

	return result
}

func tableSuggestion(t models.Table, req Request, avail time.Duration) Suggestion {
	return Suggestion{
		Kind:              KindTable,
		TableIDs:          []uint{t.ID},
		TableNames:        []string{t.Name},
		Seats:             t.Seats,
		PriorityRank:      t.PriorityRank,
		Efficiency:        efficiency(req.PartySize, t.Seats),
		AvailableDuration: avail,
		AvailableMinutes:  int(avail / time.Minute),
		Reduced:           avail < req.Duration,
	}
}

func joinGroups(req Request, snap Snapshot, tablesByID map[uint]models.Table, opts Options) []Suggestion {
	var out []Suggestion
	maxSize := make(map[uint]int)

groups:
	for _, g := range snap.JoinGroups {
		if req.PartySize < g.MinPartySize || req.PartySize > g.MaxPartySize || len(g.Tables) == 0 {
			continue
		}
		s := Suggestion{
			Kind:              KindJoinGroup,
			JoinGroupID:       g.ID,
			JoinGroupName:     g.Name,
			AvailableDuration: req.Duration,
			AvailableMinutes:  int(req.Duration / time.Minute),
		}
		for _, member := range g.Tables {
			t, ok := tablesByID[member.ID]
			if !ok {
				t = member
			}
			if !t.IsActive {
				continue groups
			}
			// Every member must be free for the whole window.
			avail, ok := TableAvailability(t.ID, snap.Bookings, req.Start, req.Duration, opts.MinViableDuration)
			if !ok || avail < req.Duration {
				continue groups
			}
			s.TableIDs = append(s.TableIDs, t.ID)
			s.TableNames = append(s.TableNames, t.Name)
			s.Seats += t.Seats
			if s.PriorityRank == 0 || t.PriorityRank < s.PriorityRank {
				s.PriorityRank = t.PriorityRank
			}
		}
		s.Efficiency = efficiency(req.PartySize, s.Seats)
		maxSize[g.ID] = g.MaxPartySize
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if maxSize[out[i].JoinGroupID] != maxSize[out[j].JoinGroupID] {
			return maxSize[out[i].JoinGroupID] < maxSize[out[j].JoinGroupID]
		}
		return out[i].JoinGroupID < out[j].JoinGroupID
	})
	return out
}

// splitAcrossTwo picks the first pair, in ranking order, of fully free tables
// whose seats cover the party.
func splitAcrossTwo(req Request, free []Suggestion) (Suggestion, bool) {
	var full []Suggestion
	for _, s := range free {
		if !s.Reduced {
			full = append(full, s)
		}
	}
	sort.SliceStable(full, func(i, j int) bool {
		if full[i].PriorityRank != full[j].PriorityRank {
			return full[i].PriorityRank < full[j].PriorityRank
		}
		if full[i].Seats != full[j].Seats {
			return full[i].Seats > full[j].Seats
		}
		return full[i].TableIDs[0] < full[j].TableIDs[0]
	})

	for i := 0; i < len(full); i++ {
		for j := i + 1; j < len(full); j++ {
			a, b := full[i], full[j]
			seats := a.Seats + b.Seats
			if seats < req.PartySize {
				continue
			}
			rank := a.PriorityRank
			if b.PriorityRank < rank {
				rank = b.PriorityRank
			}
			return Suggestion{
				Kind:              KindSplit,
				TableIDs:          []uint{a.TableIDs[0], b.TableIDs[0]},
				TableNames:        []string{a.TableNames[0], b.TableNames[0]},
				Seats:             seats,
				PriorityRank:      rank,
				Efficiency:        efficiency(req.PartySize, seats),
				AvailableDuration: req.Duration,
				AvailableMinutes:  int(req.Duration / time.Minute),
			}, true
		}
	}
	return Suggestion{}, false
}

// sortTables orders by priority rank, then by how closely seats match the
// party, then by full availability.
func sortTables(list []Suggestion) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.PriorityRank != b.PriorityRank {
			return a.PriorityRank < b.PriorityRank
		}
		if a.Efficiency != b.Efficiency {
			return a.Efficiency > b.Efficiency
		}
		if a.Reduced != b.Reduced {
			return !a.Reduced
		}
		return a.TableIDs[0] < b.TableIDs[0]
	})
}

func efficiency(partySize, seats int) float64 {
	if seats <= 0 {
		return 0
	}
	return float64(partySize) / float64(seats)
}

func capList(list []Suggestion, n int) []Suggestion {
	if len(list) > n {
		return list[:n]
	}
	return list
}

func usesTable(b *models.Booking, tableID uint) bool {
	for _, t := range b.Tables {
		if t.ID == tableID {
			return true
		}
	}
	return false
}
