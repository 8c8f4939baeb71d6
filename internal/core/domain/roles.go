package domain

import (
	"sort"
	"sync"
)

// Permission is a named capability granted through a role.
type Permission string

const (
	PermRead        Permission = "read"
	PermInsert      Permission = "insert"
	PermUpdate      Permission = "update"
	PermDelete      Permission = "delete"
	PermAdmin       Permission = "admin"
	PermImpersonate Permission = "impersonate"
)

// RoleName identifies a role. A role maps deterministically to a fixed
// permission set via the registry.
type RoleName string

const (
	RoleSiteAdmin     RoleName = "site-admin"
	RoleFolderAdmin   RoleName = "folder-admin"
	RoleEditor        RoleName = "editor"
	RoleAuthor        RoleName = "author"
	RoleReader        RoleName = "reader"
	RoleSubmitter     RoleName = "submitter"
	RoleNoPermissions RoleName = "no-permissions"
)

// RoleRegistry maps role names to the permission sets they grant. It is an
// explicitly constructed service object rather than a process-wide table, so
// tests and embedders can hold independent instances. Reads vastly outnumber
// writes; registration normally happens only during startup.
type RoleRegistry struct {
	mu    sync.RWMutex
	roles map[RoleName][]Permission
}

// NewRoleRegistry returns an empty registry.
func NewRoleRegistry() *RoleRegistry {
	return &RoleRegistry{roles: make(map[RoleName][]Permission)}
}

// DefaultRoleRegistry returns a registry seeded with the built-in roles.
func DefaultRoleRegistry() *RoleRegistry {
	r := NewRoleRegistry()
	r.Register(RoleSiteAdmin, PermRead, PermInsert, PermUpdate, PermDelete, PermAdmin, PermImpersonate)
	r.Register(RoleFolderAdmin, PermRead, PermInsert, PermUpdate, PermDelete, PermAdmin)
	r.Register(RoleEditor, PermRead, PermInsert, PermUpdate, PermDelete)
	r.Register(RoleAuthor, PermRead, PermInsert)
	r.Register(RoleReader, PermRead)
	r.Register(RoleSubmitter, PermInsert)
	r.Register(RoleNoPermissions)
	return r
}

// Register records the permission set granted by the named role, replacing
// any previous registration.
func (r *RoleRegistry) Register(name RoleName, perms ...Permission) {
	set := make([]Permission, len(perms))
	copy(set, perms)

	r.mu.Lock()
	r.roles[name] = set
	r.mu.Unlock()
}

// Permissions returns the permission set granted by the named role. Unknown
// roles grant nothing.
func (r *RoleRegistry) Permissions(name RoleName) []Permission {
	r.mu.RLock()
	set, ok := r.roles[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	out := make([]Permission, len(set))
	copy(out, set)
	return out
}

// Known reports whether the role has been registered.
func (r *RoleRegistry) Known(name RoleName) bool {
	r.mu.RLock()
	_, ok := r.roles[name]
	r.mu.RUnlock()
	return ok
}

// Union collects the distinct permissions granted by the provided roles,
// sorted for deterministic comparison.
func (r *RoleRegistry) Union(roles []RoleName) []Permission {
	seen := make(map[Permission]struct{})
	for _, role := range roles {
		for _, perm := range r.Permissions(role) {
			seen[perm] = struct{}{}
		}
	}

	out := make([]Permission, 0, len(seen))
	for perm := range seen {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
