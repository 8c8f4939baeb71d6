package domain

import "time"

// PrincipalType enumerates the kinds of security principals.
type PrincipalType string

const (
	PrincipalTypeUser   PrincipalType = "user"
	PrincipalTypeGroup  PrincipalType = "group"
	PrincipalTypeModule PrincipalType = "module"
)

// Reserved principal identifiers. These rows are seeded at install time and
// are never recycled; negative ids keep them clear of the user sequence.
const (
	SiteAdministratorsGroupID = -1
	UsersGroupID              = -2
	GuestsGroupID             = -3
	DevelopersGroupID         = -4

	// GuestUserID is the anonymous principal. It belongs to Guests and
	// nothing else.
	GuestUserID = 0
)

// Principal is the identity shared by users, groups, and module principals.
// Identity is carried entirely by ID: two principals are the same iff their
// ids match.
type Principal struct {
	ID   int
	Name string
	Type PrincipalType
}

// IsGuest reports whether the principal is the anonymous guest identity.
func (p Principal) IsGuest() bool {
	return p.ID == GuestUserID
}

// UserStatus of an account; users are deactivated, never destroyed, while
// references to them exist.
type User struct {
	ID           int
	Email        string
	DisplayName  string
	Active       bool
	LastLogin    *time.Time
	LastProvider *string
	CreatedAt    time.Time
}

// Principal returns the user's principal view.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Name: u.Email, Type: PrincipalTypeUser}
}

// IsGuest reports whether this is the anonymous guest account.
func (u User) IsGuest() bool {
	return u.ID == GuestUserID
}

// GroupType enumerates group scopes.
type GroupType string

const (
	GroupTypeSite    GroupType = "site"
	GroupTypeProject GroupType = "project"
	GroupTypeModule  GroupType = "module"
)

// Group is a named collection of principals. ContainerID is nil for
// site-level groups. System groups are fixed at install time and cannot be
// renamed, deleted, or nested inside other groups.
type Group struct {
	ID          int
	Name        string
	ContainerID *string
	Type        GroupType
	System      bool
}

// Principal returns the group's principal view.
func (g Group) Principal() Principal {
	return Principal{ID: g.ID, Name: g.Name, Type: PrincipalTypeGroup}
}

// IsSystemGroupID reports whether the id names one of the fixed system
// groups.
func IsSystemGroupID(id int) bool {
	switch id {
	case SiteAdministratorsGroupID, UsersGroupID, GuestsGroupID, DevelopersGroupID:
		return true
	}
	return false
}

// Membership is a single direct membership edge: member belongs to group.
// Exactly one row per (GroupID, MemberID) pair; a principal is never a member
// of itself, and the edge set extended across all groups stays acyclic.
type Membership struct {
	GroupID  int
	MemberID int
	AddedAt  time.Time
}
