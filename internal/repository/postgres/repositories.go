package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users       *UserRepository
	Groups      *GroupRepository
	Memberships *MembershipRepository
	Policies    *PolicyRepository
	Resources   *ResourceRepository
	Credentials *CredentialRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:       NewUserRepository(pool),
		Groups:      NewGroupRepository(pool),
		Memberships: NewMembershipRepository(pool),
		Policies:    NewPolicyRepository(pool),
		Resources:   NewResourceRepository(pool),
		Credentials: NewCredentialRepository(pool),
	}
}
