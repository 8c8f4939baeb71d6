package domain

import (
	"sort"
	"time"
)

// SecurableResource is anything a policy can be attached to. ParentID links
// the resource into the container hierarchy; InheritParent controls whether
// policy resolution may fall back to the parent when this resource has no
// assignments of its own.
type SecurableResource struct {
	ID            string
	ContainerID   string
	ParentID      *string
	InheritParent bool
}

// RoleAssignment grants a role to a principal on a resource.
type RoleAssignment struct {
	ResourceID  string
	PrincipalID int
	Role        RoleName
}

// SecurityPolicy is an immutable snapshot of the role assignments on one
// resource. Assignments are kept sorted ascending by principal id (ties
// broken by role name) so permission resolution can merge-join against a
// sorted principal-id list. Modified is the optimistic-concurrency token:
// saves carrying a stale Modified are rejected.
type SecurityPolicy struct {
	ResourceID  string
	Assignments []RoleAssignment
	Modified    time.Time
}

// NewSecurityPolicy returns an empty policy for the resource.
func NewSecurityPolicy(resourceID string) *SecurityPolicy {
	return &SecurityPolicy{ResourceID: resourceID}
}

// IsEmpty reports whether the policy carries no assignments. Empty policies
// defer to the nearest ancestor when inheritance is requested.
func (p *SecurityPolicy) IsEmpty() bool {
	return p == nil || len(p.Assignments) == 0
}

// AddAssignment inserts (principal, role), keeping the assignment list
// sorted and dropping exact duplicates.
func (p *SecurityPolicy) AddAssignment(principalID int, role RoleName) {
	a := RoleAssignment{ResourceID: p.ResourceID, PrincipalID: principalID, Role: role}

	i := sort.Search(len(p.Assignments), func(i int) bool {
		if p.Assignments[i].PrincipalID != a.PrincipalID {
			return p.Assignments[i].PrincipalID > a.PrincipalID
		}
		return p.Assignments[i].Role >= a.Role
	})
	if i < len(p.Assignments) && p.Assignments[i].PrincipalID == a.PrincipalID && p.Assignments[i].Role == a.Role {
		return
	}

	p.Assignments = append(p.Assignments, RoleAssignment{})
	copy(p.Assignments[i+1:], p.Assignments[i:])
	p.Assignments[i] = a
}

// Normalize drops assignments of the no-permissions role; they grant nothing
// and only exist transiently in editing UIs.
func (p *SecurityPolicy) Normalize() {
	kept := p.Assignments[:0]
	for _, a := range p.Assignments {
		if a.Role == RoleNoPermissions {
			continue
		}
		kept = append(kept, a)
	}
	p.Assignments = kept
}

// RolesFor returns the distinct roles the policy assigns to any id in
// principalIDs. Both the assignment list and principalIDs must be sorted
// ascending by principal id; the two are walked simultaneously with a pair
// of cursors, so cost is O(len(assignments) + len(principalIDs)) even for
// resources carrying large assignment sets.
func (p *SecurityPolicy) RolesFor(principalIDs []int) []RoleName {
	if p.IsEmpty() || len(principalIDs) == 0 {
		return nil
	}

	var roles []RoleName
	seen := make(map[RoleName]struct{})

	a, i := 0, 0
	for a < len(p.Assignments) && i < len(principalIDs) {
		switch {
		case p.Assignments[a].PrincipalID == principalIDs[i]:
			role := p.Assignments[a].Role
			if _, dup := seen[role]; !dup {
				seen[role] = struct{}{}
				roles = append(roles, role)
			}
			a++
		case p.Assignments[a].PrincipalID < principalIDs[i]:
			a++
		default:
			i++
		}
	}

	return roles
}

// Clone returns a deep copy; stored snapshots stay immutable while callers
// edit the copy.
func (p *SecurityPolicy) Clone() *SecurityPolicy {
	if p == nil {
		return nil
	}
	out := &SecurityPolicy{
		ResourceID:  p.ResourceID,
		Assignments: make([]RoleAssignment, len(p.Assignments)),
		Modified:    p.Modified,
	}
	copy(out.Assignments, p.Assignments)
	return out
}
