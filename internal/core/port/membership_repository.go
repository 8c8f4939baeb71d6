package port

import "context"

// MembershipRepository persists direct membership edges. Implementations
// must detect duplicate-edge insertion (repository.ErrDuplicate) so races on
// concurrent adds degrade gracefully, and must return id lists sorted
// ascending.
type MembershipRepository interface {
	// GroupsFor returns the ids of groups the principal is directly a
	// member of.
	GroupsFor(ctx context.Context, principalID int) ([]int, error)
	// MembersOf returns the ids of the group's direct members.
	MembersOf(ctx context.Context, groupID int) ([]int, error)
	Add(ctx context.Context, groupID, memberID int) error
	Remove(ctx context.Context, groupID, memberID int) error
	// RemoveAllFor deletes every edge in which the principal appears as
	// either group or member, returning the ids of former direct members
	// when the principal was a group.
	RemoveAllFor(ctx context.Context, principalID int) ([]int, error)
}
