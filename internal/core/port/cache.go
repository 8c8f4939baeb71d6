package port

import (
	"context"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
)

// PolicyCache holds policy snapshots keyed by resource id. A miss is
// repository.ErrNotFound. Invalidation happens on every save and delete; a
// read racing an invalidation may return the old snapshot, which is
// acceptable (the next read recomputes).
type PolicyCache interface {
	Get(ctx context.Context, resourceID string) (*domain.SecurityPolicy, error)
	Set(ctx context.Context, policy domain.SecurityPolicy) error
	Invalidate(ctx context.Context, resourceID string) error
}
