package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TableFox/app/models"
	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
	"github.com/ManuelReschke/TableFox/internal/pkg/metrics"
	"github.com/ManuelReschke/TableFox/internal/pkg/payment"
)

// DrainResult summarises one pass over the retry queue.
type DrainResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// queueRetry schedules the next attempt for a failed event. The retry count
// carries over from an existing entry.
func (s *Service) queueRetry(ctx context.Context, stored *models.PaymentWebhookEvent, cause error) error {
	count := 1
	existing, err := s.webhooks.GetRetry(ctx, stored.Provider, stored.ProviderEventID)
	switch {
	case err == nil:
		count = existing.RetryCount + 1
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.Upstream("webhook_store_unavailable", err)
	}

	next := s.now().UTC().Add(s.opts.Backoff.Delay(count))
	if err := s.webhooks.UpsertRetry(ctx, &models.WebhookRetry{
		Provider:        stored.Provider,
		ProviderEventID: stored.ProviderEventID,
		EventType:       stored.EventType,
		RetryCount:      count,
		NextAttemptAt:   next,
		LastError:       cause.Error(),
	}); err != nil {
		log.Errorf("[Reconcile] Failed to queue retry for %s: %v", stored.ProviderEventID, err)
		return apperr.Upstream("webhook_store_unavailable", err)
	}
	log.Infof("[Reconcile] Event %s retry #%d at %s", stored.ProviderEventID, count, next.Format(time.RFC3339))
	s.updateQueueDepth(ctx)
	return nil
}

// DrainRetryQueue re-runs every due entry through the same idempotent path as
// live webhooks.
func (s *Service) DrainRetryQueue(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	due, err := s.webhooks.ListDueRetries(ctx, s.now().UTC(), s.opts.DrainBatch)
	if err != nil {
		return res, apperr.Upstream("webhook_store_unavailable", err)
	}

	for _, entry := range due {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Attempted++
		if s.retryOne(ctx, entry) {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	if res.Attempted > 0 {
		log.Infof("[Reconcile] Drained retry queue: %d attempted, %d succeeded, %d failed", res.Attempted, res.Succeeded, res.Failed)
	}
	s.updateQueueDepth(ctx)
	return res, nil
}

func (s *Service) retryOne(ctx context.Context, entry models.WebhookRetry) bool {
	stored, err := s.webhooks.GetEvent(ctx, entry.Provider, entry.ProviderEventID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Reconcile] Retry entry %s has no stored event, dropping it", entry.ProviderEventID)
		_ = s.webhooks.DeleteRetry(ctx, entry.Provider, entry.ProviderEventID)
		return false
	}
	if err != nil {
		log.Errorf("[Reconcile] Failed to load event %s: %v", entry.ProviderEventID, err)
		return false
	}

	ev, err := payment.ParseStoredEvent([]byte(stored.PayloadJSON))
	if err != nil {
		log.Errorf("[Reconcile] Stored event %s is unreadable: %v", entry.ProviderEventID, err)
		_ = s.queueRetry(ctx, stored, err)
		return false
	}

	if err := s.run(ctx, stored, ev); err != nil {
		return false
	}
	after, err := s.webhooks.GetEvent(ctx, entry.Provider, entry.ProviderEventID)
	if err != nil {
		return false
	}
	switch after.Status {
	case models.WebhookStatusProcessed, models.WebhookStatusIgnored:
		return true
	}
	return false
}

// RecoverStuck returns events left in processing longer than olderThan, e.g.
// by a crashed worker, to the retry queue.
func (s *Service) RecoverStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	stuck, err := s.webhooks.ListStuckEvents(ctx, s.now().UTC().Add(-olderThan), s.opts.DrainBatch)
	if err != nil {
		return 0, apperr.Upstream("webhook_store_unavailable", err)
	}
	recovered := 0
	for i := range stuck {
		ev := &stuck[i]
		cause := errors.New("processing did not complete")
		if err := s.webhooks.MarkEvent(ctx, ev.Provider, ev.ProviderEventID, models.WebhookStatusFailed, cause.Error()); err != nil {
			log.Errorf("[Reconcile] Failed to reset stuck event %s: %v", ev.ProviderEventID, err)
			continue
		}
		if err := s.queueRetry(ctx, ev, cause); err != nil {
			continue
		}
		recovered++
	}
	if recovered > 0 {
		log.Warnf("[Reconcile] Recovered %d stuck webhook events", recovered)
	}
	return recovered, nil
}

func (s *Service) updateQueueDepth(ctx context.Context) {
	n, err := s.webhooks.CountRetries(ctx)
	if err != nil {
		return
	}
	metrics.RetryQueueDepth.Set(float64(n))
}
