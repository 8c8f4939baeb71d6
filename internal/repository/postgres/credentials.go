package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/repository"
)

// CredentialRepository implements port.CredentialRepository using
// PostgreSQL. Password hashes live in sec.credentials (one row per user);
// verification tokens in sec.verification_tokens, keyed by token hash.
type CredentialRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewCredentialRepository(exec pgExecutor) *CredentialRepository {
	return &CredentialRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetPasswordHash returns the stored hash, or repository.ErrNotFound for a
// user with no database credential (federated accounts).
func (r *CredentialRepository) GetPasswordHash(ctx context.Context, userID int) (string, error) {
	stmt, args, err := r.builder.
		Select("password_hash").
		From("sec.credentials").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select credential sql: %w", err)
	}

	var hash string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&hash); err != nil {
		if err == pgx.ErrNoRows {
			return "", repository.ErrNotFound
		}
		return "", repository.Storage("scan credential", err)
	}

	return hash, nil
}

// SetPassword upserts the user's password hash.
func (r *CredentialRepository) SetPassword(ctx context.Context, userID int, hash string, at time.Time) error {
	stmt, args, err := r.builder.Insert("sec.credentials").
		Columns("user_id", "password_hash", "updated_at").
		Values(userID, hash, at).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert credential sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return repository.Storage("upsert credential", err)
	}

	return nil
}

func (r *CredentialRepository) CreateVerification(ctx context.Context, userID int, tokenHash string, expiresAt time.Time) error {
	stmt, args, err := r.builder.Insert("sec.verification_tokens").
		Columns("user_id", "token_hash", "expires_at").
		Values(userID, tokenHash, expiresAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert verification sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return repository.Storage("insert verification", err)
	}

	return nil
}

var _ port.CredentialRepository = (*CredentialRepository)(nil)
