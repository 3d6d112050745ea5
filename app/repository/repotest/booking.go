package repotest

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TableFox/app/models"
	"github.com/ManuelReschke/TableFox/app/repository"
)

type bookingRepo struct{ db *DB }

func (r *bookingRepo) CreateWithPayment(ctx context.Context, booking *models.Booking, payment *models.Payment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("Booking.CreateWithPayment"); err != nil {
		return err
	}

	ids := booking.TableIDs()
	if len(ids) == 0 {
		return repository.ErrTableUnavailable
	}
	tables := make([]models.Table, 0, len(ids))
	for _, id := range ids {
		t, ok := r.db.tables[id]
		if !ok || t.VenueID != booking.VenueID || !t.IsActive {
			return repository.ErrTableUnavailable
		}
		tables = append(tables, t)
	}
	for _, existing := range r.db.bookings {
		if !existing.Status.HoldsTable() {
			continue
		}
		if !(existing.StartsAt.Before(booking.EndsAt) && booking.StartsAt.Before(existing.EndsAt)) {
			continue
		}
		for _, et := range existing.Tables {
			for _, id := range ids {
				if et.ID == id {
					return repository.ErrTableUnavailable
				}
			}
		}
	}
	for _, existing := range r.db.bookings {
		if existing.Reference == booking.Reference {
			return gorm.ErrDuplicatedKey
		}
	}

	now := r.db.Now()
	booking.ID = r.db.id()
	booking.Tables = tables
	booking.CreatedAt = now
	booking.UpdatedAt = now
	r.db.bookings[booking.ID] = *booking

	if payment != nil {
		payment.ID = r.db.id()
		payment.BookingID = booking.ID
		if payment.RefundStatus == "" {
			payment.RefundStatus = models.RefundStatusNone
		}
		payment.CreatedAt = now
		r.db.payments[payment.ID] = *payment
	}
	return nil
}

func (r *bookingRepo) GetByID(ctx context.Context, id uint) (*models.Booking, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("Booking.GetByID"); err != nil {
		return nil, err
	}
	b, ok := r.db.bookings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &b, nil
}

func (r *bookingRepo) GetByReference(ctx context.Context, reference string) (*models.Booking, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, b := range r.db.bookings {
		if b.Reference == reference {
			return &b, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *bookingRepo) ListForVenueWindow(ctx context.Context, venueID uint, from, to time.Time) ([]models.Booking, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Booking
	for _, b := range r.db.bookings {
		if b.VenueID == venueID && b.StartsAt.Before(to) && b.EndsAt.After(from) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (r *bookingRepo) ListPendingPaymentBefore(ctx context.Context, before time.Time, limit int) ([]models.Booking, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Booking
	for _, b := range r.db.bookings {
		if b.Status == models.BookingStatusPendingPayment && b.CreatedAt.Before(before) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *bookingRepo) UpdateStatus(ctx context.Context, id uint, from []models.BookingStatus, to models.BookingStatus, audit ...*models.AuditLog) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("Booking.UpdateStatus"); err != nil {
		return false, err
	}
	b, ok := r.db.bookings[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if b.Status == s {
			if err := r.db.appendAudit(audit); err != nil {
				return false, err
			}
			b.Status = to
			b.UpdatedAt = r.db.Now()
			r.db.bookings[id] = b
			return true, nil
		}
	}
	return false, nil
}

func (r *bookingRepo) MarkConfirmationSent(ctx context.Context, id uint, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.bookings[id]
	if !ok || b.ConfirmationSentAt != nil {
		return false, nil
	}
	b.ConfirmationSentAt = &at
	r.db.bookings[id] = b
	return true, nil
}

type paymentRepo struct{ db *DB }

func (r *paymentRepo) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r *paymentRepo) GetByBookingID(ctx context.Context, bookingID uint) (*models.Payment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.payments {
		if p.BookingID == bookingID {
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *paymentRepo) GetByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.payments {
		if p.ProviderIntentID == intentID {
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, id uint, from []string, to string, processedAt *time.Time, audit ...*models.AuditLog) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("Payment.UpdateStatus"); err != nil {
		return false, err
	}
	p, ok := r.db.payments[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if p.Status == s {
			if err := r.db.appendAudit(audit); err != nil {
				return false, err
			}
			p.Status = to
			if processedAt != nil {
				at := *processedAt
				p.ProcessedAt = &at
			}
			r.db.payments[id] = p
			return true, nil
		}
	}
	return false, nil
}

func (r *paymentRepo) ApplyRefund(ctx context.Context, id uint, previousRefunded, newRefunded int64, refundStatus string, at time.Time, audit ...*models.AuditLog) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("Payment.ApplyRefund"); err != nil {
		return false, err
	}
	p, ok := r.db.payments[id]
	if !ok || p.RefundAmountCents != previousRefunded || newRefunded > p.AmountCents {
		return false, nil
	}
	if err := r.db.appendAudit(audit); err != nil {
		return false, err
	}
	p.RefundAmountCents = newRefunded
	p.RefundStatus = refundStatus
	p.RefundedAt = &at
	r.db.payments[id] = p
	return true, nil
}

type auditRepo struct{ db *DB }

func (r *auditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.appendAudit([]*models.AuditLog{entry})
}

// appendAudit stores entries all or nothing. The caller holds db.mu.
func (db *DB) appendAudit(entries []*models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	if err := db.fail("Audit.Create"); err != nil {
		return err
	}
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		entry.ID = db.id()
		if entry.Actor == "" {
			entry.Actor = models.AuditActorSystem
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = db.Now()
		}
		db.audit = append(db.audit, *entry)
	}
	return nil
}

func (r *auditRepo) ListByEntity(ctx context.Context, entityType string, entityID uint) ([]models.AuditLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.AuditLog
	for _, e := range r.db.audit {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *auditRepo) ListBetween(ctx context.Context, since, until time.Time, offset, limit int) ([]models.AuditLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var matched []models.AuditLog
	for _, e := range r.db.audit {
		if !e.CreatedAt.Before(since) && e.CreatedAt.Before(until) {
			matched = append(matched, e)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
