package port

import (
	"context"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
)

// GroupRepository exposes persistence behavior for groups. Name lookups are
// case-insensitive within a scope (nil container = site level).
type GroupRepository interface {
	Create(ctx context.Context, group domain.Group) (domain.Group, error)
	GetByID(ctx context.Context, id int) (*domain.Group, error)
	GetByName(ctx context.Context, containerID *string, name string) (*domain.Group, error)
	Rename(ctx context.Context, id int, name string) error
	Delete(ctx context.Context, id int) error
}
