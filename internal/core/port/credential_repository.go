package port

import (
	"context"
	"time"
)

// CredentialRepository stores password hashes and verification tokens for
// database-backed authentication. Only hashes ever cross this boundary.
type CredentialRepository interface {
	GetPasswordHash(ctx context.Context, userID int) (string, error)
	SetPassword(ctx context.Context, userID int, hash string, at time.Time) error
	// CreateVerification stores a hashed verification token for a newly
	// provisioned user.
	CreateVerification(ctx context.Context, userID int, tokenHash string, expiresAt time.Time) error
}
