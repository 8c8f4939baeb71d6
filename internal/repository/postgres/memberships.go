package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/repository"
)

// MembershipRepository implements port.MembershipRepository using
// PostgreSQL. Edges live in sec.memberships with a composite primary key on
// (group_id, member_id), so a duplicate add is a unique violation rather
// than a second row.
type MembershipRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewMembershipRepository(exec pgExecutor) *MembershipRepository {
	return &MembershipRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied
// transaction.
func (r *MembershipRepository) WithTx(tx pgx.Tx) *MembershipRepository {
	if tx == nil {
		return r
	}
	return &MembershipRepository{exec: tx, builder: r.builder}
}

// GroupsFor returns the ids of groups the principal belongs to directly,
// sorted ascending.
func (r *MembershipRepository) GroupsFor(ctx context.Context, principalID int) ([]int, error) {
	stmt, args, err := r.builder.
		Select("group_id").
		From("sec.memberships").
		Where(squirrel.Eq{"member_id": principalID}).
		OrderBy("group_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select groups for member sql: %w", err)
	}

	return r.queryIDs(ctx, stmt, args, "query groups for member")
}

// MembersOf returns the ids of the group's direct members, sorted ascending.
func (r *MembershipRepository) MembersOf(ctx context.Context, groupID int) ([]int, error) {
	stmt, args, err := r.builder.
		Select("member_id").
		From("sec.memberships").
		Where(squirrel.Eq{"group_id": groupID}).
		OrderBy("member_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select members sql: %w", err)
	}

	return r.queryIDs(ctx, stmt, args, "query members")
}

func (r *MembershipRepository) queryIDs(ctx context.Context, stmt string, args []any, op string) ([]int, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, repository.Storage(op, err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, repository.Storage(op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Storage(op, err)
	}

	return ids, nil
}

// Add inserts a direct membership edge. A pre-existing edge surfaces as
// repository.ErrDuplicate.
func (r *MembershipRepository) Add(ctx context.Context, groupID, memberID int) error {
	stmt, args, err := r.builder.Insert("sec.memberships").
		Columns("group_id", "member_id", "added_at").
		Values(groupID, memberID, squirrel.Expr("now()")).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert membership sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return repository.Storage("insert membership", err)
	}

	return nil
}

// Remove deletes a direct membership edge; removing an absent edge yields
// repository.ErrNotFound.
func (r *MembershipRepository) Remove(ctx context.Context, groupID, memberID int) error {
	stmt, args, err := r.builder.Delete("sec.memberships").
		Where(squirrel.Eq{"group_id": groupID, "member_id": memberID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete membership sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return repository.Storage("delete membership", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RemoveAllFor deletes every edge in which the principal appears on either
// side. It returns the ids of the principal's former direct members (the
// edges where it was the group) so callers can invalidate their caches.
func (r *MembershipRepository) RemoveAllFor(ctx context.Context, principalID int) ([]int, error) {
	members, err := r.MembersOf(ctx, principalID)
	if err != nil {
		return nil, err
	}

	stmt, args, err := r.builder.Delete("sec.memberships").
		Where(squirrel.Or{
			squirrel.Eq{"group_id": principalID},
			squirrel.Eq{"member_id": principalID},
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build delete memberships sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return nil, repository.Storage("delete memberships", err)
	}

	return members, nil
}

var _ port.MembershipRepository = (*MembershipRepository)(nil)
