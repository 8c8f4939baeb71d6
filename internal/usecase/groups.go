package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/repository"
)

const maxGroupNameLength = 64

// Characters that never belong in a group name; they collide with path and
// cache-key syntax downstream.
const disallowedNameRunes = "/\\[]{}<>;:|?*@"

var (
	// ErrGroupCycle indicates the membership edge would create, or did
	// create, a cycle in the group graph.
	ErrGroupCycle = errors.New("membership would create a group cycle")
	// ErrDuplicateName indicates the group name collides case-insensitively
	// within its scope.
	ErrDuplicateName = errors.New("group name already in use")
	// ErrSystemGroup indicates an attempted mutation of a protected system
	// group.
	ErrSystemGroup = errors.New("system group cannot be modified")
	// ErrAlreadyMember indicates the principal is already a direct member of
	// the group.
	ErrAlreadyMember = errors.New("principal is already a member")
)

// GroupService owns the group-management surface: create, rename, delete,
// and membership edge mutation with cycle prevention.
type GroupService struct {
	groups      port.GroupRepository
	memberships port.MembershipRepository
	policies    port.PolicyRepository
	policyCache port.PolicyCache
	resolver    *MembershipService
	directory   *DirectoryService
	audit       port.AuditLogger
	events      port.EventPublisher
	logger      *zap.Logger
}

// NewGroupService constructs a GroupService. policyCache may be nil when no
// distributed policy cache is configured.
func NewGroupService(
	groups port.GroupRepository,
	memberships port.MembershipRepository,
	policies port.PolicyRepository,
	policyCache port.PolicyCache,
	resolver *MembershipService,
	directory *DirectoryService,
	audit port.AuditLogger,
	events port.EventPublisher,
	logger *zap.Logger,
) *GroupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{
		groups:      groups,
		memberships: memberships,
		policies:    policies,
		policyCache: policyCache,
		resolver:    resolver,
		directory:   directory,
		audit:       audit,
		events:      events,
		logger:      logger,
	}
}

func validateGroupName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrInvalidIdentifier
	}
	if len(trimmed) > maxGroupNameLength {
		return "", ErrInvalidIdentifier
	}
	if strings.ContainsAny(trimmed, disallowedNameRunes) {
		return "", ErrInvalidIdentifier
	}
	return trimmed, nil
}

// CreateGroup validates the name, enforces case-insensitive uniqueness
// within the scope, and creates the group.
func (s *GroupService) CreateGroup(ctx context.Context, actorID int, name string, containerID *string, groupType domain.GroupType) (domain.Group, error) {
	trimmed, err := validateGroupName(name)
	if err != nil {
		return domain.Group{}, err
	}

	if _, err := s.groups.GetByName(ctx, containerID, trimmed); err == nil {
		return domain.Group{}, ErrDuplicateName
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.Group{}, fmt.Errorf("check group name: %w", err)
	}

	group := domain.Group{
		Name:        trimmed,
		ContainerID: containerID,
		Type:        groupType,
	}
	created, err := s.groups.Create(ctx, group)
	if err != nil {
		// Two concurrent creates can both pass the name check; the unique
		// index settles the race.
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.Group{}, ErrDuplicateName
		}
		return domain.Group{}, fmt.Errorf("create group: %w", err)
	}

	s.recordAudit(ctx, domain.AuditEvent{
		EventType: domain.EventGroupCreated,
		ActorID:   actorID,
		SubjectID: fmt.Sprintf("%d", created.ID),
		Message:   fmt.Sprintf("group %q created", created.Name),
	})

	return created, nil
}

// RenameGroup renames a non-system group, enforcing the same name rules as
// creation.
func (s *GroupService) RenameGroup(ctx context.Context, actorID, groupID int, name string) error {
	group, err := s.directory.FindGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.System {
		return ErrSystemGroup
	}

	trimmed, err := validateGroupName(name)
	if err != nil {
		return err
	}

	if existing, err := s.groups.GetByName(ctx, group.ContainerID, trimmed); err == nil {
		if existing.ID != groupID {
			return ErrDuplicateName
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("check group name: %w", err)
	}

	if err := s.groups.Rename(ctx, groupID, trimmed); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrDuplicateName
		}
		return fmt.Errorf("rename group: %w", err)
	}

	s.resolver.InvalidatePrincipal(groupID)
	s.directory.invalidateGroup(groupID)

	s.recordAudit(ctx, domain.AuditEvent{
		EventType: domain.EventGroupRenamed,
		ActorID:   actorID,
		SubjectID: fmt.Sprintf("%d", groupID),
		Message:   fmt.Sprintf("group %d renamed %q -> %q", groupID, group.Name, trimmed),
	})

	return nil
}

// DeleteGroup removes a non-system group, cascading over its role
// assignments and membership edges. A member-removed notification fires per
// former member so downstream consumers drop derived state.
func (s *GroupService) DeleteGroup(ctx context.Context, actorID, groupID int) error {
	group, err := s.directory.FindGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.System || domain.IsSystemGroupID(groupID) {
		return ErrSystemGroup
	}

	affected, err := s.policies.DeleteAssignmentsFor(ctx, groupID)
	if err != nil {
		return fmt.Errorf("delete group assignments: %w", err)
	}
	// Cached policy snapshots for these resources still carry assignments
	// naming the group; drop them so the next read recomputes.
	if s.policyCache != nil {
		for _, resourceID := range affected {
			if err := s.policyCache.Invalidate(ctx, resourceID); err != nil {
				s.logger.Warn("policy cache invalidation failed",
					zap.String("resource_id", resourceID),
					zap.Error(err),
				)
			}
		}
	}

	members, err := s.memberships.RemoveAllFor(ctx, groupID)
	if err != nil {
		return fmt.Errorf("delete group memberships: %w", err)
	}

	if err := s.groups.Delete(ctx, groupID); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}

	s.resolver.InvalidatePrincipal(groupID)
	s.directory.invalidateGroup(groupID)
	for _, member := range members {
		s.resolver.InvalidatePrincipal(member)
	}

	deletedAt := time.Now().UTC()
	if err := s.events.PublishGroupDeleted(ctx, domain.GroupDeletedEvent{
		EventID:   uuid.NewString(),
		GroupID:   groupID,
		GroupName: group.Name,
		ActorID:   actorID,
		DeletedAt: deletedAt,
	}); err != nil {
		s.logger.Warn("publish group deleted failed", zap.Int("group_id", groupID), zap.Error(err))
	}
	for _, member := range members {
		if err := s.events.PublishMemberRemoved(ctx, domain.MemberRemovedEvent{
			EventID:   uuid.NewString(),
			GroupID:   groupID,
			MemberID:  member,
			ActorID:   actorID,
			RemovedAt: deletedAt,
		}); err != nil {
			s.logger.Warn("publish member removed failed",
				zap.Int("group_id", groupID),
				zap.Int("member_id", member),
				zap.Error(err),
			)
		}
	}

	s.recordAudit(ctx, domain.AuditEvent{
		EventType: domain.EventGroupDeleted,
		ActorID:   actorID,
		SubjectID: fmt.Sprintf("%d", groupID),
		Message:   fmt.Sprintf("group %q deleted", group.Name),
	})

	return nil
}

// addMemberError reports why the edge member -> group must be rejected, or
// nil when it is admissible. It covers everything except the cycle check,
// which needs a closure traversal.
func (s *GroupService) addMemberError(ctx context.Context, group *domain.Group, memberID int) error {
	if memberID == group.ID {
		return ErrGroupCycle
	}
	// Guests and Users membership is computed, never stored; the admin
	// groups do take explicit members.
	if group.ID == domain.GuestsGroupID || group.ID == domain.UsersGroupID {
		return ErrSystemGroup
	}
	// System groups are never nested inside anything.
	if domain.IsSystemGroupID(memberID) {
		return ErrSystemGroup
	}

	if _, err := s.directory.FindPrincipal(ctx, memberID); err != nil {
		return err
	}

	return nil
}

// AddMember adds a direct membership edge, strictly: an existing edge is an
// error.
//
// Cycle prevention is check-then-act: the closure seeded at the group being
// joined must not contain the member. The check races concurrent edge
// writes, so it runs again after the insert and the edge is rolled back when
// a cycle slipped through.
func (s *GroupService) AddMember(ctx context.Context, actorID, groupID, memberID int) error {
	group, err := s.directory.FindGroup(ctx, groupID)
	if err != nil {
		return err
	}

	if err := s.addMemberError(ctx, group, memberID); err != nil {
		return err
	}

	closure, err := s.resolver.ClosureOf(ctx, groupID)
	if err != nil {
		return err
	}
	if _, reachable := closure[memberID]; reachable {
		return ErrGroupCycle
	}

	if err := s.memberships.Add(ctx, groupID, memberID); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("add member: %w", err)
	}

	closure, err = s.resolver.ClosureOf(ctx, groupID)
	if err == nil {
		if _, reachable := closure[memberID]; reachable {
			if rbErr := s.memberships.Remove(ctx, groupID, memberID); rbErr != nil {
				s.logger.Error("cycle rollback failed",
					zap.Int("group_id", groupID),
					zap.Int("member_id", memberID),
					zap.Error(rbErr),
				)
			}
			return ErrGroupCycle
		}
	} else {
		s.logger.Warn("post-insert cycle re-check failed", zap.Error(err))
	}

	s.resolver.InvalidatePrincipal(memberID)

	s.recordAudit(ctx, domain.AuditEvent{
		EventType: domain.EventMemberAdded,
		ActorID:   actorID,
		SubjectID: fmt.Sprintf("%d", groupID),
		Message:   fmt.Sprintf("principal %d added to group %d", memberID, groupID),
	})

	return nil
}

// AddMembers adds a batch of members best-effort: individual failures are
// logged and reported per member, and never stop the rest of the batch.
func (s *GroupService) AddMembers(ctx context.Context, actorID, groupID int, memberIDs []int) map[int]error {
	failures := make(map[int]error)
	for _, memberID := range memberIDs {
		if err := s.AddMember(ctx, actorID, groupID, memberID); err != nil {
			failures[memberID] = err
			s.logger.Warn("batch add member failed",
				zap.Int("group_id", groupID),
				zap.Int("member_id", memberID),
				zap.Error(err),
			)
		}
	}
	return failures
}

// RemoveMember removes a direct membership edge.
func (s *GroupService) RemoveMember(ctx context.Context, actorID, groupID, memberID int) error {
	if err := s.memberships.Remove(ctx, groupID, memberID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}

	s.resolver.InvalidatePrincipal(memberID)

	if err := s.events.PublishMemberRemoved(ctx, domain.MemberRemovedEvent{
		EventID:   uuid.NewString(),
		GroupID:   groupID,
		MemberID:  memberID,
		ActorID:   actorID,
		RemovedAt: time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("publish member removed failed",
			zap.Int("group_id", groupID),
			zap.Int("member_id", memberID),
			zap.Error(err),
		)
	}

	s.recordAudit(ctx, domain.AuditEvent{
		EventType: domain.EventMemberRemoved,
		ActorID:   actorID,
		SubjectID: fmt.Sprintf("%d", groupID),
		Message:   fmt.Sprintf("principal %d removed from group %d", memberID, groupID),
	})

	return nil
}

// Members returns the group's direct members.
func (s *GroupService) Members(ctx context.Context, groupID int) ([]int, error) {
	if _, err := s.directory.FindGroup(ctx, groupID); err != nil {
		return nil, err
	}
	members, err := s.memberships.MembersOf(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func (s *GroupService) recordAudit(ctx context.Context, event domain.AuditEvent) {
	event.EventID = uuid.NewString()
	event.CreatedAt = time.Now().UTC()
	if err := s.audit.AddEvent(ctx, event); err != nil {
		s.logger.Warn("audit event failed", zap.String("event_type", event.EventType), zap.Error(err))
	}
}
