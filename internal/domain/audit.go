package domain

import (
	"context"

	"fieldstock/internal/core/id"
)

// Audit actions recorded by workflow services.
const (
	AuditOverride   = "override"
	AuditTransition = "transition"
)

// AuditRecorder writes entity changes to the audit trail. Services
// call it inside their transactions, so a failed record rolls the
// change back with it.
type AuditRecorder interface {
	Record(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error
}
