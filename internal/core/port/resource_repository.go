package port

import (
	"context"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
)

// ResourceRepository resolves securable resources, primarily for walking the
// parent chain during nearest-ancestor policy lookup.
type ResourceRepository interface {
	GetByID(ctx context.Context, id string) (*domain.SecurableResource, error)
	Create(ctx context.Context, resource domain.SecurableResource) error
}
