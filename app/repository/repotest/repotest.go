// Package repotest provides in-memory repositories with the same
// compare-and-set semantics as the GORM ones, for service and handler tests.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TableFox/app/models"
	"github.com/ManuelReschke/TableFox/app/repository"
)

// DB is the shared in-memory state behind every repository view.
type DB struct {
	mu sync.Mutex

	venues     map[uint]models.Venue
	services   map[uint]models.Service
	tables     map[uint]models.Table
	joinGroups map[uint]models.JoinGroup
	bookings   map[uint]models.Booking
	payments   map[uint]models.Payment
	events     map[string]models.PaymentWebhookEvent
	retries    map[string]models.WebhookRetry
	audit      []models.AuditLog
	nextID     uint

	// Fail injects an error for the named operation, e.g. "Booking.CreateWithPayment".
	Fail map[string]error
	// Now stamps created_at/updated_at columns.
	Now func() time.Time
}

func New() *DB {
	return &DB{
		venues:     map[uint]models.Venue{},
		services:   map[uint]models.Service{},
		tables:     map[uint]models.Table{},
		joinGroups: map[uint]models.JoinGroup{},
		bookings:   map[uint]models.Booking{},
		payments:   map[uint]models.Payment{},
		events:     map[string]models.PaymentWebhookEvent{},
		retries:    map[string]models.WebhookRetry{},
		Fail:       map[string]error{},
		Now:        time.Now,
	}
}

// Repositories returns repository views over db.
func (db *DB) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Venue:   &venueRepo{db},
		Booking: &bookingRepo{db},
		Payment: &paymentRepo{db},
		Webhook: &webhookRepo{db},
		Audit:   &auditRepo{db},
	}
}

func (db *DB) id() uint {
	db.nextID++
	return db.nextID
}

func (db *DB) fail(op string) error {
	if err, ok := db.Fail[op]; ok {
		return err
	}
	return nil
}

// Seeding helpers. IDs are assigned when zero.

func (db *DB) AddVenue(v models.Venue) models.Venue {
	db.mu.Lock()
	defer db.mu.Unlock()
	if v.ID == 0 {
		v.ID = db.id()
	}
	db.venues[v.ID] = v
	return v
}

func (db *DB) AddService(s models.Service) models.Service {
	db.mu.Lock()
	defer db.mu.Unlock()
	if s.ID == 0 {
		s.ID = db.id()
	}
	db.services[s.ID] = s
	return s
}

func (db *DB) AddTable(t models.Table) models.Table {
	db.mu.Lock()
	defer db.mu.Unlock()
	if t.ID == 0 {
		t.ID = db.id()
	}
	db.tables[t.ID] = t
	return t
}

func (db *DB) AddJoinGroup(g models.JoinGroup) models.JoinGroup {
	db.mu.Lock()
	defer db.mu.Unlock()
	if g.ID == 0 {
		g.ID = db.id()
	}
	db.joinGroups[g.ID] = g
	return g
}

func (db *DB) AddBooking(b models.Booking) models.Booking {
	db.mu.Lock()
	defer db.mu.Unlock()
	if b.ID == 0 {
		b.ID = db.id()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = db.Now()
	}
	db.bookings[b.ID] = b
	return b
}

func (db *DB) AddPayment(p models.Payment) models.Payment {
	db.mu.Lock()
	defer db.mu.Unlock()
	if p.ID == 0 {
		p.ID = db.id()
	}
	if p.RefundStatus == "" {
		p.RefundStatus = models.RefundStatusNone
	}
	db.payments[p.ID] = p
	return p
}

func (db *DB) DeleteBooking(id uint) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.bookings, id)
}

// Inspection helpers.

func (db *DB) Booking(id uint) (models.Booking, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	b, ok := db.bookings[id]
	return b, ok
}

func (db *DB) Payment(id uint) (models.Payment, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, ok := db.payments[id]
	return p, ok
}

func (db *DB) Bookings() []models.Booking {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]models.Booking, 0, len(db.bookings))
	for _, b := range db.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (db *DB) PaymentCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.payments)
}

func (db *DB) AuditEntries() []models.AuditLog {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]models.AuditLog(nil), db.audit...)
}

func (db *DB) Event(providerEventID string) (models.PaymentWebhookEvent, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	e, ok := db.events[providerEventID]
	return e, ok
}

// SetEventStatus forces an event status, e.g. to simulate a crashed worker.
func (db *DB) SetEventStatus(providerEventID, status string, updatedAt time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if e, ok := db.events[providerEventID]; ok {
		e.Status = status
		e.UpdatedAt = updatedAt
		db.events[providerEventID] = e
	}
}

func (db *DB) Retry(providerEventID string) (models.WebhookRetry, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	r, ok := db.retries[providerEventID]
	return r, ok
}

type venueRepo struct{ db *DB }

func (r *venueRepo) GetByID(ctx context.Context, id uint) (*models.Venue, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("Venue.GetByID"); err != nil {
		return nil, err
	}
	v, ok := r.db.venues[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &v, nil
}

func (r *venueRepo) GetService(ctx context.Context, venueID, serviceID uint) (*models.Service, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.services[serviceID]
	if !ok || s.VenueID != venueID {
		return nil, gorm.ErrRecordNotFound
	}
	return &s, nil
}

func (r *venueRepo) ListTables(ctx context.Context, venueID uint) ([]models.Table, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Table
	for _, t := range r.db.tables {
		if t.VenueID == venueID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *venueRepo) ListJoinGroups(ctx context.Context, venueID uint) ([]models.JoinGroup, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.JoinGroup
	for _, g := range r.db.joinGroups {
		if g.VenueID == venueID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
