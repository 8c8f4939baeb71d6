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

// ResourceRepository implements port.ResourceRepository using PostgreSQL.
type ResourceRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewResourceRepository(exec pgExecutor) *ResourceRepository {
	return &ResourceRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ResourceRepository) GetByID(ctx context.Context, id string) (*domain.SecurableResource, error) {
	stmt, args, err := r.builder.
		Select("id", "container_id", "parent_id", "inherit_parent").
		From("sec.resources").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select resource sql: %w", err)
	}

	var (
		resource domain.SecurableResource
		parentID *string
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&resource.ID,
		&resource.ContainerID,
		&parentID,
		&resource.InheritParent,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, repository.Storage("scan resource", err)
	}

	resource.ParentID = parentID
	return &resource, nil
}

func (r *ResourceRepository) Create(ctx context.Context, resource domain.SecurableResource) error {
	stmt, args, err := r.builder.Insert("sec.resources").
		Columns("id", "container_id", "parent_id", "inherit_parent").
		Values(resource.ID, resource.ContainerID, resource.ParentID, resource.InheritParent).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert resource sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return repository.Storage("insert resource", err)
	}

	return nil
}

var _ port.ResourceRepository = (*ResourceRepository)(nil)
