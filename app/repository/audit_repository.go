package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/TableFox/app/models"
	"gorm.io/gorm"
)

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository instance
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	return createAudit(r.db.WithContext(ctx), []*models.AuditLog{entry})
}

func createAudit(tx *gorm.DB, entries []*models.AuditLog) error {
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		if entry.Actor == "" {
			entry.Actor = models.AuditActorSystem
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *auditRepository) ListByEntity(ctx context.Context, entityType string, entityID uint) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

// ListBetween pages through entries created in [since, until).
func (r *auditRepository) ListBetween(ctx context.Context, since, until time.Time, offset, limit int) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", since, until).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
