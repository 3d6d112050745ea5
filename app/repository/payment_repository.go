package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/TableFox/app/models"
	"gorm.io/gorm"
)

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) GetByBookingID(ctx context.Context, bookingID uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) GetByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("provider_intent_id = ?", intentID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdateStatus is a compare-and-set on the current status. processedAt is
// written only when non-nil.
func (r *paymentRepository) UpdateStatus(ctx context.Context, id uint, from []string, to string, processedAt *time.Time, audit ...*models.AuditLog) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if processedAt != nil {
		updates["processed_at"] = processedAt
	}
	return r.casUpdate(ctx, audit, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id = ? AND status IN ?", id, from).Updates(updates)
	})
}

// ApplyRefund writes the new refund totals only if refund_amount_cents still
// equals previousRefunded, so concurrent refunds cannot both apply.
func (r *paymentRepository) ApplyRefund(ctx context.Context, id uint, previousRefunded, newRefunded int64, refundStatus string, at time.Time, audit ...*models.AuditLog) (bool, error) {
	return r.casUpdate(ctx, audit, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id = ? AND refund_amount_cents = ? AND amount_cents >= ?", id, previousRefunded, newRefunded).
			Updates(map[string]interface{}{
				"refund_amount_cents": newRefunded,
				"refund_status":       refundStatus,
				"refunded_at":         at,
			})
	})
}

// casUpdate runs a conditional payment update and, when a row changed, the
// audit inserts in one transaction.
func (r *paymentRepository) casUpdate(ctx context.Context, audit []*models.AuditLog, update func(tx *gorm.DB) *gorm.DB) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := update(tx.Model(&models.Payment{}))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		changed = true
		return createAudit(tx, audit)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}
