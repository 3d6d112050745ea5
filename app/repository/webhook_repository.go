package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/TableFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a webhook event and retry queue repository
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

// CreateEventIfNotExists inserts the event keyed by (provider,
// provider_event_id) and returns the stored row. created is false for a
// redelivery.
func (r *webhookRepository) CreateEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.GetEvent(ctx, event.Provider, event.ProviderEventID)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

func (r *webhookRepository) GetEvent(ctx context.Context, provider, providerEventID string) (*models.PaymentWebhookEvent, error) {
	var stored models.PaymentWebhookEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// ClaimEvent moves a received or failed event to processing. Only one caller
// can win the claim for a given event.
func (r *webhookRepository) ClaimEvent(ctx context.Context, provider, providerEventID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).
		Where("provider = ? AND provider_event_id = ? AND status IN ?", provider, providerEventID,
			[]string{models.WebhookStatusReceived, models.WebhookStatusFailed}).
		Updates(map[string]interface{}{
			"status":   models.WebhookStatusProcessing,
			"attempts": gorm.Expr("attempts + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *webhookRepository) MarkEvent(ctx context.Context, provider, providerEventID, status, processingError string) error {
	updates := map[string]interface{}{
		"status":           status,
		"processing_error": processingError,
	}
	if status == models.WebhookStatusProcessed || status == models.WebhookStatusIgnored {
		now := time.Now().UTC()
		updates["processed_at"] = &now
	}
	return r.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Updates(updates).Error
}

// ListStuckEvents returns events left in processing, e.g. by a crashed worker.
func (r *webhookRepository) ListStuckEvents(ctx context.Context, updatedBefore time.Time, limit int) ([]models.PaymentWebhookEvent, error) {
	var events []models.PaymentWebhookEvent
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.WebhookStatusProcessing, updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *webhookRepository) UpsertRetry(ctx context.Context, retry *models.WebhookRetry) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"retry_count",
			"next_attempt_at",
			"last_error",
			"updated_at",
		}),
	}).Create(retry).Error
}

func (r *webhookRepository) GetRetry(ctx context.Context, provider, providerEventID string) (*models.WebhookRetry, error) {
	var retry models.WebhookRetry
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&retry).Error
	if err != nil {
		return nil, err
	}
	return &retry, nil
}

func (r *webhookRepository) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]models.WebhookRetry, error) {
	var retries []models.WebhookRetry
	err := r.db.WithContext(ctx).
		Where("next_attempt_at <= ?", now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&retries).Error
	return retries, err
}

func (r *webhookRepository) DeleteRetry(ctx context.Context, provider, providerEventID string) error {
	return r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Delete(&models.WebhookRetry{}).Error
}

func (r *webhookRepository) CountRetries(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WebhookRetry{}).Count(&count).Error
	return count, err
}
