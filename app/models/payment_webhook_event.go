package models

import "time"

const PaymentProviderStripe = "stripe"

const (
	WebhookStatusReceived   = "received"
	WebhookStatusProcessing = "processing"
	WebhookStatusProcessed  = "processed"
	WebhookStatusFailed     = "failed"
	WebhookStatusIgnored    = "ignored"
)

// PaymentWebhookEvent stores provider webhook payloads with deduplication
// metadata for idempotent processing. Rows are never deleted.
type PaymentWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_payment_webhook_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;index:ux_payment_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false" json:"signature_valid"`
	Status          string     `gorm:"type:varchar(20);not null;default:'received';index" json:"status"`
	Attempts        int        `gorm:"not null;default:0" json:"attempts"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// WebhookRetry is a pending re-run of a webhook event whose local processing
// failed. Entries are deleted once the event processes successfully.
type WebhookRetry struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"type:varchar(20);not null" json:"provider"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_event_id"`
	EventType       string    `gorm:"type:varchar(100);not null" json:"event_type"`
	RetryCount      int       `gorm:"not null;default:0" json:"retry_count"`
	NextAttemptAt   time.Time `gorm:"not null;index" json:"next_attempt_at"`
	LastError       string    `gorm:"type:text" json:"last_error"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
