package port

import (
	"context"
	"time"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
)

// UserRepository exposes persistence behavior for user principals. Emails are
// stored normalized (lower-cased, trimmed); lookups expect the caller to have
// normalized already.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, id int) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SetActive(ctx context.Context, id int, active bool) error
	RecordLogin(ctx context.Context, id int, provider string, at time.Time) error
}
