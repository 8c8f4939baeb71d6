package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/repository"
)

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied
// transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{exec: tx, builder: r.builder}
}

// Create inserts a new user row, returning the row with its assigned id.
func (r *UserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	stmt, args, err := r.builder.Insert("sec.users").
		Columns("email", "display_name", "active", "created_at").
		Values(user.Email, user.DisplayName, user.Active, createdAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.User{}, fmt.Errorf("build insert user sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, repository.ErrDuplicate
		}
		return domain.User{}, repository.Storage("insert user", err)
	}

	user.CreatedAt = createdAt
	return user, nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id int) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select("id", "email", "display_name", "active", "last_login", "last_provider", "created_at").
		From("sec.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...), "scan user")
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select("id", "email", "display_name", "active", "last_login", "last_provider", "created_at").
		From("sec.users").
		Where(squirrel.Eq{"email": email}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by email sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...), "scan user by email")
}

func (r *UserRepository) scanUser(row pgx.Row, op string) (*domain.User, error) {
	var (
		user         domain.User
		lastLogin    *time.Time
		lastProvider *string
	)

	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.Active,
		&lastLogin,
		&lastProvider,
		&user.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, repository.Storage(op, err)
	}

	user.LastLogin = lastLogin
	user.LastProvider = lastProvider
	return &user, nil
}

// SetActive toggles the soft-delete flag. User rows are never physically
// removed while references exist.
func (r *UserRepository) SetActive(ctx context.Context, id int, active bool) error {
	stmt, args, err := r.builder.Update("sec.users").
		Set("active", active).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user active sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return repository.Storage("update user active", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RecordLogin stamps the last successful login time and the provider that
// authenticated it (needed later for logout cleanup).
func (r *UserRepository) RecordLogin(ctx context.Context, id int, provider string, at time.Time) error {
	stmt, args, err := r.builder.Update("sec.users").
		Set("last_login", at).
		Set("last_provider", provider).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return repository.Storage("record login", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
