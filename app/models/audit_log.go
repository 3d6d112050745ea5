package models

import "time"

const (
	AuditEntityBooking = "booking"
	AuditEntityPayment = "payment"

	AuditActorSystem = "system"
)

// AuditLog records every correction, refund and status change with the values
// before and after.
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EntityType string    `gorm:"type:varchar(32);not null;index:idx_audit_logs_entity,priority:1" json:"entity_type"`
	EntityID   uint      `gorm:"not null;index:idx_audit_logs_entity,priority:2" json:"entity_id"`
	Action     string    `gorm:"type:varchar(64);not null" json:"action"`
	OldValue   string    `gorm:"type:varchar(255)" json:"old_value"`
	NewValue   string    `gorm:"type:varchar(255)" json:"new_value"`
	Actor      string    `gorm:"type:varchar(100);not null;default:'system'" json:"actor"`
	Reason     string    `gorm:"type:text" json:"reason"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
