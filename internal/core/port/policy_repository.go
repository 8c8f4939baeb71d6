package port

import (
	"context"
	"time"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
)

// PolicyRepository persists security policies and their role assignments.
// Assignment reads come back sorted ascending by principal id so the
// merge-join in policy evaluation can consume them directly.
type PolicyRepository interface {
	// GetByResource returns the stored policy snapshot, or
	// repository.ErrNotFound when the resource has no policy row.
	GetByResource(ctx context.Context, resourceID string) (*domain.SecurityPolicy, error)
	// Replace atomically swaps all assignments for the policy's resource,
	// guarded by an optimistic compare of the stored modification
	// timestamp against expected; a mismatch yields
	// repository.ErrConflict and no write. Returns the new timestamp.
	Replace(ctx context.Context, policy domain.SecurityPolicy, expected time.Time) (time.Time, error)
	// Delete removes the policy row and all of its assignments.
	Delete(ctx context.Context, resourceID string) error
	// DeleteAssignmentsFor removes every assignment naming the principal,
	// across all resources (used when a principal is deleted). It returns
	// the distinct ids of the resources that lost an assignment so callers
	// can drop cached policy snapshots for them.
	DeleteAssignmentsFor(ctx context.Context, principalID int) ([]string, error)
}
