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

// PolicyRepository implements port.PolicyRepository using PostgreSQL. A
// policy is one row in sec.policies plus zero or more rows in
// sec.role_assignments; Replace swaps the assignment set transactionally
// under an optimistic timestamp check.
type PolicyRepository struct {
	pool    pgPool
	builder squirrel.StatementBuilderType
}

func NewPolicyRepository(pool pgPool) *PolicyRepository {
	return &PolicyRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByResource loads the policy row and its assignments, sorted by
// principal id then role so policy evaluation can merge-join directly.
func (r *PolicyRepository) GetByResource(ctx context.Context, resourceID string) (*domain.SecurityPolicy, error) {
	stmt, args, err := r.builder.
		Select("modified").
		From("sec.policies").
		Where(squirrel.Eq{"resource_id": resourceID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select policy sql: %w", err)
	}

	policy := domain.SecurityPolicy{ResourceID: resourceID}
	if err := r.pool.QueryRow(ctx, stmt, args...).Scan(&policy.Modified); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, repository.Storage("scan policy", err)
	}

	stmt, args, err = r.builder.
		Select("principal_id", "role_name").
		From("sec.role_assignments").
		Where(squirrel.Eq{"resource_id": resourceID}).
		OrderBy("principal_id ASC", "role_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select assignments sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, repository.Storage("query assignments", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			principalID int
			role        string
		)
		if err := rows.Scan(&principalID, &role); err != nil {
			return nil, repository.Storage("scan assignment", err)
		}
		policy.Assignments = append(policy.Assignments, domain.RoleAssignment{
			ResourceID:  resourceID,
			PrincipalID: principalID,
			Role:        domain.RoleName(role),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Storage("iterate assignments", err)
	}

	return &policy, nil
}

// Replace swaps the full assignment set for the policy's resource inside a
// transaction. The stored modification timestamp must equal expected (or the
// policy row must not exist yet and expected be zero); otherwise
// repository.ErrConflict is returned and nothing is written. The new
// timestamp is returned on success.
func (r *PolicyRepository) Replace(ctx context.Context, policy domain.SecurityPolicy, expected time.Time) (time.Time, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return time.Time{}, repository.Storage("begin replace policy", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmt, args, err := r.builder.
		Select("modified").
		From("sec.policies").
		Where(squirrel.Eq{"resource_id": policy.ResourceID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return time.Time{}, fmt.Errorf("build lock policy sql: %w", err)
	}

	var stored time.Time
	exists := true
	if err := tx.QueryRow(ctx, stmt, args...).Scan(&stored); err != nil {
		if err != pgx.ErrNoRows {
			return time.Time{}, repository.Storage("lock policy", err)
		}
		exists = false
	}

	if exists && !stored.Equal(expected) {
		return time.Time{}, repository.ErrConflict
	}
	if !exists && !expected.IsZero() {
		return time.Time{}, repository.ErrConflict
	}

	modified := time.Now().UTC()

	if exists {
		stmt, args, err = r.builder.Update("sec.policies").
			Set("modified", modified).
			Where(squirrel.Eq{"resource_id": policy.ResourceID}).
			ToSql()
	} else {
		stmt, args, err = r.builder.Insert("sec.policies").
			Columns("resource_id", "modified").
			Values(policy.ResourceID, modified).
			ToSql()
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("build upsert policy sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return time.Time{}, repository.Storage("upsert policy", err)
	}

	stmt, args, err = r.builder.Delete("sec.role_assignments").
		Where(squirrel.Eq{"resource_id": policy.ResourceID}).
		ToSql()
	if err != nil {
		return time.Time{}, fmt.Errorf("build clear assignments sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return time.Time{}, repository.Storage("clear assignments", err)
	}

	if len(policy.Assignments) > 0 {
		insert := r.builder.Insert("sec.role_assignments").
			Columns("resource_id", "principal_id", "role_name")
		for _, a := range policy.Assignments {
			insert = insert.Values(policy.ResourceID, a.PrincipalID, string(a.Role))
		}
		stmt, args, err = insert.ToSql()
		if err != nil {
			return time.Time{}, fmt.Errorf("build insert assignments sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return time.Time{}, repository.Storage("insert assignments", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, repository.Storage("commit replace policy", err)
	}

	return modified, nil
}

// Delete removes the policy row and all of its assignments. Deleting a
// resource with no stored policy is not an error: the end state is the same.
func (r *PolicyRepository) Delete(ctx context.Context, resourceID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return repository.Storage("begin delete policy", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmt, args, err := r.builder.Delete("sec.role_assignments").
		Where(squirrel.Eq{"resource_id": resourceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete assignments sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return repository.Storage("delete assignments", err)
	}

	stmt, args, err = r.builder.Delete("sec.policies").
		Where(squirrel.Eq{"resource_id": resourceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete policy sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return repository.Storage("delete policy", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return repository.Storage("commit delete policy", err)
	}

	return nil
}

// DeleteAssignmentsFor removes every assignment naming the principal across
// all resources and returns the distinct resource ids that lost one. Policy
// rows stay put; their timestamps are untouched since the resolved
// permissions for remaining principals do not change.
func (r *PolicyRepository) DeleteAssignmentsFor(ctx context.Context, principalID int) ([]string, error) {
	stmt, args, err := r.builder.Delete("sec.role_assignments").
		Where(squirrel.Eq{"principal_id": principalID}).
		Suffix("RETURNING resource_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build delete principal assignments sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, repository.Storage("delete principal assignments", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var affected []string
	for rows.Next() {
		var resourceID string
		if err := rows.Scan(&resourceID); err != nil {
			return nil, repository.Storage("scan deleted assignment", err)
		}
		if _, ok := seen[resourceID]; ok {
			continue
		}
		seen[resourceID] = struct{}{}
		affected = append(affected, resourceID)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Storage("iterate deleted assignments", err)
	}

	return affected, nil
}

var _ port.PolicyRepository = (*PolicyRepository)(nil)
