package booking

import (
	"github.com/ManuelReschke/TableFox/app/models"
)

// ActorSystem marks changes made by background reconciliation.
const ActorSystem = models.AuditActorSystem

// AuditEntry builds the audit row for a change. Repositories insert it in the
// same transaction as the write it describes, so a change never lands without
// its trail.
func AuditEntry(entity string, id uint, action, oldValue, newValue, actor, reason string) *models.AuditLog {
	if actor == "" {
		actor = ActorSystem
	}
	return &models.AuditLog{
		EntityType: entity,
		EntityID:   id,
		Action:     action,
		OldValue:   oldValue,
		NewValue:   newValue,
		Actor:      actor,
		Reason:     reason,
	}
}
