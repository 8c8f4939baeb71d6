package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/repository"
)

// maxPolicyDepth bounds the nearest-ancestor walk; resource hierarchies are
// shallow, so hitting the bound means the parent chain is malformed.
const maxPolicyDepth = 32

var (
	// ErrPolicyConflict indicates a policy save lost an optimistic
	// concurrency race; re-fetch and retry.
	ErrPolicyConflict = errors.New("policy was modified concurrently")
	// ErrPolicyDepth indicates the ancestor chain failed to terminate within
	// the supported depth.
	ErrPolicyDepth = errors.New("policy resolution exceeded depth bound")
)

// PolicyService owns policy storage, nearest-ancestor resolution, and
// effective-permission computation.
type PolicyService struct {
	policies  port.PolicyRepository
	resources port.ResourceRepository
	cache     port.PolicyCache
	resolver  *MembershipService
	registry  *domain.RoleRegistry
	audit     port.AuditLogger
	events    port.EventPublisher
	logger    *zap.Logger
}

// NewPolicyService constructs a PolicyService.
func NewPolicyService(
	policies port.PolicyRepository,
	resources port.ResourceRepository,
	cache port.PolicyCache,
	resolver *MembershipService,
	registry *domain.RoleRegistry,
	audit port.AuditLogger,
	events port.EventPublisher,
	logger *zap.Logger,
) *PolicyService {
	if registry == nil {
		registry = domain.DefaultRoleRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{
		policies:  policies,
		resources: resources,
		cache:     cache,
		resolver:  resolver,
		registry:  registry,
		audit:     audit,
		events:    events,
		logger:    logger,
	}
}

// loadPolicy fetches the resource's own policy, cache first. A resource with
// no policy row resolves to an empty policy; the cache layer is best-effort
// and never fails the read.
func (s *PolicyService) loadPolicy(ctx context.Context, resourceID string) (*domain.SecurityPolicy, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, resourceID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("policy cache read failed", zap.String("resource_id", resourceID), zap.Error(err))
		}
	}

	policy, err := s.policies.GetByResource(ctx, resourceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewSecurityPolicy(resourceID), nil
		}
		return nil, fmt.Errorf("load policy: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, *policy); err != nil {
			s.logger.Warn("policy cache write failed", zap.String("resource_id", resourceID), zap.Error(err))
		}
	}

	return policy, nil
}

// GetPolicy returns the policy governing the resource. With findNearest,
// an empty policy on a resource that permits inheritance defers to the
// nearest ancestor carrying a non-empty policy; the walk is depth-bounded.
func (s *PolicyService) GetPolicy(ctx context.Context, resource domain.SecurableResource, findNearest bool) (*domain.SecurityPolicy, error) {
	current := resource
	for depth := 0; depth <= maxPolicyDepth; depth++ {
		policy, err := s.loadPolicy(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		if !policy.IsEmpty() || !findNearest {
			return policy, nil
		}
		if !current.InheritParent || current.ParentID == nil {
			return policy, nil
		}

		parent, err := s.resources.GetByID(ctx, *current.ParentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return policy, nil
			}
			return nil, fmt.Errorf("resolve parent resource: %w", err)
		}
		current = *parent
	}

	return nil, ErrPolicyDepth
}

// SavePolicy replaces the resource's assignments under optimistic
// concurrency: the policy's Modified timestamp must match the stored one.
// Assignments granting no permissions are dropped before the write. On
// success the cached snapshot is invalidated and a change notification
// fires.
func (s *PolicyService) SavePolicy(ctx context.Context, actorID int, policy *domain.SecurityPolicy) (*domain.SecurityPolicy, error) {
	if policy == nil || policy.ResourceID == "" {
		return nil, ErrInvalidIdentifier
	}

	saved := policy.Clone()
	saved.Normalize()

	modified, err := s.policies.Replace(ctx, *saved, policy.Modified)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrPolicyConflict
		}
		return nil, fmt.Errorf("save policy: %w", err)
	}
	saved.Modified = modified

	s.invalidate(ctx, saved.ResourceID)
	s.notifyChanged(ctx, actorID, saved.ResourceID, modified, false)

	s.recordAudit(ctx, domain.AuditEvent{
		EventType: domain.EventPolicyChanged,
		ActorID:   actorID,
		SubjectID: saved.ResourceID,
		Message:   fmt.Sprintf("policy on %s replaced (%d assignments)", saved.ResourceID, len(saved.Assignments)),
	})

	return saved, nil
}

// DeletePolicy removes the resource's policy and assignments.
func (s *PolicyService) DeletePolicy(ctx context.Context, actorID int, resourceID string) error {
	if resourceID == "" {
		return ErrInvalidIdentifier
	}

	if err := s.policies.Delete(ctx, resourceID); err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}

	s.invalidate(ctx, resourceID)
	s.notifyChanged(ctx, actorID, resourceID, time.Now().UTC(), true)

	s.recordAudit(ctx, domain.AuditEvent{
		EventType: domain.EventPolicyDeleted,
		ActorID:   actorID,
		SubjectID: resourceID,
		Message:   fmt.Sprintf("policy on %s deleted", resourceID),
	})

	return nil
}

// EffectivePermissions computes the permission set the principal holds on
// the resource: the roles the governing policy assigns to the principal's
// flattened group set (plus the principal itself), any contextual roles, all
// unioned through the role registry.
func (s *PolicyService) EffectivePermissions(ctx context.Context, principal domain.Principal, resource domain.SecurableResource, contextualRoles ...domain.RoleName) ([]domain.Permission, error) {
	groups, err := s.resolver.AllGroups(ctx, principal)
	if err != nil {
		return nil, err
	}

	policy, err := s.GetPolicy(ctx, resource, true)
	if err != nil {
		return nil, err
	}

	roles := policy.RolesFor(groups)
	roles = append(roles, contextualRoles...)

	return s.registry.Union(roles), nil
}

// EffectivePermissionsFor computes permissions for an impersonation overlay:
// the group set is the overlay's restricted closure rather than the real
// principal's.
func (s *PolicyService) EffectivePermissionsFor(ctx context.Context, groupIDs []int, resource domain.SecurableResource, contextualRoles ...domain.RoleName) ([]domain.Permission, error) {
	policy, err := s.GetPolicy(ctx, resource, true)
	if err != nil {
		return nil, err
	}

	roles := policy.RolesFor(groupIDs)
	roles = append(roles, contextualRoles...)

	return s.registry.Union(roles), nil
}

// HasPermission reports whether the principal holds the permission on the
// resource.
func (s *PolicyService) HasPermission(ctx context.Context, principal domain.Principal, resource domain.SecurableResource, perm domain.Permission) (bool, error) {
	perms, err := s.EffectivePermissions(ctx, principal, resource)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == perm {
			return true, nil
		}
	}
	return false, nil
}

func (s *PolicyService) invalidate(ctx context.Context, resourceID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, resourceID); err != nil {
		s.logger.Warn("policy cache invalidation failed", zap.String("resource_id", resourceID), zap.Error(err))
	}
}

func (s *PolicyService) notifyChanged(ctx context.Context, actorID int, resourceID string, modified time.Time, deleted bool) {
	if err := s.events.PublishPolicyChanged(ctx, domain.PolicyChangedEvent{
		EventID:    uuid.NewString(),
		ResourceID: resourceID,
		ActorID:    actorID,
		Deleted:    deleted,
		Modified:   modified,
	}); err != nil {
		s.logger.Warn("publish policy changed failed", zap.String("resource_id", resourceID), zap.Error(err))
	}
}

func (s *PolicyService) recordAudit(ctx context.Context, event domain.AuditEvent) {
	event.EventID = uuid.NewString()
	event.CreatedAt = time.Now().UTC()
	if err := s.audit.AddEvent(ctx, event); err != nil {
		s.logger.Warn("audit event failed", zap.String("event_type", event.EventType), zap.Error(err))
	}
}
