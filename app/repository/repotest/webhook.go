package repotest

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TableFox/app/models"
)

type webhookRepo struct{ db *DB }

func (r *webhookRepo) CreateEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("Webhook.CreateEventIfNotExists"); err != nil {
		return false, nil, err
	}
	if stored, ok := r.db.events[event.ProviderEventID]; ok {
		return false, &stored, nil
	}
	now := r.db.Now()
	event.ID = r.db.id()
	if event.Status == "" {
		event.Status = models.WebhookStatusReceived
	}
	event.CreatedAt = now
	event.UpdatedAt = now
	r.db.events[event.ProviderEventID] = *event
	stored := *event
	return true, &stored, nil
}

func (r *webhookRepo) GetEvent(ctx context.Context, provider, providerEventID string) (*models.PaymentWebhookEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.events[providerEventID]
	if !ok || e.Provider != provider {
		return nil, gorm.ErrRecordNotFound
	}
	return &e, nil
}

func (r *webhookRepo) ClaimEvent(ctx context.Context, provider, providerEventID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.events[providerEventID]
	if !ok || e.Provider != provider {
		return false, nil
	}
	if e.Status != models.WebhookStatusReceived && e.Status != models.WebhookStatusFailed {
		return false, nil
	}
	e.Status = models.WebhookStatusProcessing
	e.Attempts++
	e.UpdatedAt = r.db.Now()
	r.db.events[providerEventID] = e
	return true, nil
}

func (r *webhookRepo) MarkEvent(ctx context.Context, provider, providerEventID, status, processingError string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("Webhook.MarkEvent"); err != nil {
		return err
	}
	e, ok := r.db.events[providerEventID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.Status = status
	e.ProcessingError = processingError
	e.UpdatedAt = r.db.Now()
	if status == models.WebhookStatusProcessed || status == models.WebhookStatusIgnored {
		now := r.db.Now()
		e.ProcessedAt = &now
	}
	r.db.events[providerEventID] = e
	return nil
}

func (r *webhookRepo) ListStuckEvents(ctx context.Context, updatedBefore time.Time, limit int) ([]models.PaymentWebhookEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.PaymentWebhookEvent
	for _, e := range r.db.events {
		if e.Status == models.WebhookStatusProcessing && e.UpdatedAt.Before(updatedBefore) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *webhookRepo) UpsertRetry(ctx context.Context, retry *models.WebhookRetry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("Webhook.UpsertRetry"); err != nil {
		return err
	}
	if existing, ok := r.db.retries[retry.ProviderEventID]; ok {
		existing.RetryCount = retry.RetryCount
		existing.NextAttemptAt = retry.NextAttemptAt
		existing.LastError = retry.LastError
		existing.UpdatedAt = r.db.Now()
		r.db.retries[retry.ProviderEventID] = existing
		return nil
	}
	retry.ID = r.db.id()
	retry.CreatedAt = r.db.Now()
	r.db.retries[retry.ProviderEventID] = *retry
	return nil
}

func (r *webhookRepo) GetRetry(ctx context.Context, provider, providerEventID string) (*models.WebhookRetry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.retries[providerEventID]
	if !ok || e.Provider != provider {
		return nil, gorm.ErrRecordNotFound
	}
	return &e, nil
}

func (r *webhookRepo) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]models.WebhookRetry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.WebhookRetry
	for _, e := range r.db.retries {
		if !e.NextAttemptAt.After(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *webhookRepo) DeleteRetry(ctx context.Context, provider, providerEventID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.retries, providerEventID)
	return nil
}

func (r *webhookRepo) CountRetries(ctx context.Context) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return int64(len(r.db.retries)), nil
}
