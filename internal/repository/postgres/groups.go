package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/repository"
)

// GroupRepository implements port.GroupRepository using PostgreSQL. Name
// uniqueness within a container is enforced by a functional unique index on
// (container_id, lower(name)).
type GroupRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewGroupRepository(exec pgExecutor) *GroupRepository {
	return &GroupRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied
// transaction.
func (r *GroupRepository) WithTx(tx pgx.Tx) *GroupRepository {
	if tx == nil {
		return r
	}
	return &GroupRepository{exec: tx, builder: r.builder}
}

// Create inserts a group, returning the row with its assigned id. A name
// collision within the same container surfaces as repository.ErrDuplicate.
func (r *GroupRepository) Create(ctx context.Context, group domain.Group) (domain.Group, error) {
	stmt, args, err := r.builder.Insert("sec.groups").
		Columns("name", "container_id", "group_type", "is_system").
		Values(group.Name, group.ContainerID, string(group.Type), group.System).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Group{}, fmt.Errorf("build insert group sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(&group.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.Group{}, repository.ErrDuplicate
		}
		return domain.Group{}, repository.Storage("insert group", err)
	}

	return group, nil
}

func (r *GroupRepository) GetByID(ctx context.Context, id int) (*domain.Group, error) {
	stmt, args, err := r.builder.
		Select("id", "name", "container_id", "group_type", "is_system").
		From("sec.groups").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select group sql: %w", err)
	}

	return r.scanGroup(r.exec.QueryRow(ctx, stmt, args...), "scan group")
}

// GetByName looks up a group by name within a container scope,
// case-insensitively. A nil containerID addresses site-level groups.
func (r *GroupRepository) GetByName(ctx context.Context, containerID *string, name string) (*domain.Group, error) {
	query := r.builder.
		Select("id", "name", "container_id", "group_type", "is_system").
		From("sec.groups").
		Where(squirrel.Expr("lower(name) = lower(?)", name)).
		Limit(1)
	if containerID == nil {
		query = query.Where(squirrel.Eq{"container_id": nil})
	} else {
		query = query.Where(squirrel.Eq{"container_id": *containerID})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select group by name sql: %w", err)
	}

	return r.scanGroup(r.exec.QueryRow(ctx, stmt, args...), "scan group by name")
}

func (r *GroupRepository) scanGroup(row pgx.Row, op string) (*domain.Group, error) {
	var (
		group       domain.Group
		containerID *string
		groupType   string
	)

	if err := row.Scan(&group.ID, &group.Name, &containerID, &groupType, &group.System); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, repository.Storage(op, err)
	}

	group.ContainerID = containerID
	group.Type = domain.GroupType(groupType)
	return &group, nil
}

func (r *GroupRepository) Rename(ctx context.Context, id int, name string) error {
	stmt, args, err := r.builder.Update("sec.groups").
		Set("name", name).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build rename group sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return repository.Storage("rename group", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *GroupRepository) Delete(ctx context.Context, id int) error {
	stmt, args, err := r.builder.Delete("sec.groups").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete group sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return repository.Storage("delete group", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.GroupRepository = (*GroupRepository)(nil)
