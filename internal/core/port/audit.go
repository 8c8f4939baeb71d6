package port

import (
	"context"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
)

// AuditLogger is the audit sink. Callers treat it as fire-and-forget: a
// failed AddEvent is logged locally and never aborts the operation that
// produced the event.
type AuditLogger interface {
	AddEvent(ctx context.Context, event domain.AuditEvent) error
}
