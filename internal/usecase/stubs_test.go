package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/repository"
)

// In-memory collaborators shared by the service tests.

type memMembershipRepo struct {
	mu    sync.Mutex
	edges map[int]map[int]bool // groupID -> set of memberIDs

	// beforeAdd runs once at the start of the next Add, simulating a
	// concurrent writer slipping in between a caller's check and its
	// insert.
	beforeAdd func()
}

func newMemMembershipRepo() *memMembershipRepo {
	return &memMembershipRepo{edges: make(map[int]map[int]bool)}
}

func (m *memMembershipRepo) addEdge(groupID, memberID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.edges[groupID] == nil {
		m.edges[groupID] = make(map[int]bool)
	}
	m.edges[groupID][memberID] = true
}

func (m *memMembershipRepo) GroupsFor(ctx context.Context, principalID int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var groups []int
	for groupID, members := range m.edges {
		if members[principalID] {
			groups = append(groups, groupID)
		}
	}
	sort.Ints(groups)
	return groups, nil
}

func (m *memMembershipRepo) MembersOf(ctx context.Context, groupID int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var members []int
	for memberID := range m.edges[groupID] {
		members = append(members, memberID)
	}
	sort.Ints(members)
	return members, nil
}

func (m *memMembershipRepo) Add(ctx context.Context, groupID, memberID int) error {
	if hook := m.beforeAdd; hook != nil {
		m.beforeAdd = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.edges[groupID][memberID] {
		return repository.ErrDuplicate
	}
	if m.edges[groupID] == nil {
		m.edges[groupID] = make(map[int]bool)
	}
	m.edges[groupID][memberID] = true
	return nil
}

func (m *memMembershipRepo) Remove(ctx context.Context, groupID, memberID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.edges[groupID][memberID] {
		return repository.ErrNotFound
	}
	delete(m.edges[groupID], memberID)
	return nil
}

func (m *memMembershipRepo) RemoveAllFor(ctx context.Context, principalID int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var members []int
	for memberID := range m.edges[principalID] {
		members = append(members, memberID)
	}
	sort.Ints(members)
	delete(m.edges, principalID)
	for _, set := range m.edges {
		delete(set, principalID)
	}
	return members, nil
}

type memGroupRepo struct {
	mu     sync.Mutex
	seq    int
	groups map[int]domain.Group
}

func newMemGroupRepo() *memGroupRepo {
	return &memGroupRepo{seq: 100, groups: make(map[int]domain.Group)}
}

func (m *memGroupRepo) put(group domain.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[group.ID] = group
}

func sameScope(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memGroupRepo) Create(ctx context.Context, group domain.Group) (domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.groups {
		if sameScope(existing.ContainerID, group.ContainerID) && strings.EqualFold(existing.Name, group.Name) {
			return domain.Group{}, repository.ErrDuplicate
		}
	}
	m.seq++
	group.ID = m.seq
	m.groups[group.ID] = group
	return group, nil
}

func (m *memGroupRepo) GetByID(ctx context.Context, id int) (*domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, ok := m.groups[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := group
	return &copied, nil
}

func (m *memGroupRepo) GetByName(ctx context.Context, containerID *string, name string) (*domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, group := range m.groups {
		if sameScope(group.ContainerID, containerID) && strings.EqualFold(group.Name, name) {
			copied := group
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memGroupRepo) Rename(ctx context.Context, id int, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, ok := m.groups[id]
	if !ok {
		return repository.ErrNotFound
	}
	group.Name = name
	m.groups[id] = group
	return nil
}

func (m *memGroupRepo) Delete(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.groups, id)
	return nil
}

type memUserRepo struct {
	mu    sync.Mutex
	seq   int
	users map[int]domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{seq: 1000, users: make(map[int]domain.User)}
}

func (m *memUserRepo) put(user domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *memUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return domain.User{}, repository.ErrDuplicate
		}
	}
	m.seq++
	user.ID = m.seq
	m.users[user.ID] = user
	return user, nil
}

func (m *memUserRepo) GetByID(ctx context.Context, id int) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := user
	return &copied, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			copied := user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUserRepo) SetActive(ctx context.Context, id int, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.Active = active
	m.users[id] = user
	return nil
}

func (m *memUserRepo) RecordLogin(ctx context.Context, id int, provider string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.LastLogin = &at
	user.LastProvider = &provider
	m.users[id] = user
	return nil
}

type memPolicyRepo struct {
	mu       sync.Mutex
	policies map[string]domain.SecurityPolicy
}

func newMemPolicyRepo() *memPolicyRepo {
	return &memPolicyRepo{policies: make(map[string]domain.SecurityPolicy)}
}

func (m *memPolicyRepo) GetByResource(ctx context.Context, resourceID string) (*domain.SecurityPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	policy, ok := m.policies[resourceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *policy.Clone()
	return &copied, nil
}

func (m *memPolicyRepo) Replace(ctx context.Context, policy domain.SecurityPolicy, expected time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, exists := m.policies[policy.ResourceID]
	if exists && !stored.Modified.Equal(expected) {
		return time.Time{}, repository.ErrConflict
	}
	if !exists && !expected.IsZero() {
		return time.Time{}, repository.ErrConflict
	}
	modified := time.Now().UTC()
	if exists && !modified.After(stored.Modified) {
		modified = stored.Modified.Add(time.Nanosecond)
	}
	saved := *policy.Clone()
	saved.Modified = modified
	m.policies[policy.ResourceID] = saved
	return modified, nil
}

func (m *memPolicyRepo) Delete(ctx context.Context, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.policies, resourceID)
	return nil
}

func (m *memPolicyRepo) DeleteAssignmentsFor(ctx context.Context, principalID int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var affected []string
	for id, policy := range m.policies {
		kept := policy.Assignments[:0]
		for _, a := range policy.Assignments {
			if a.PrincipalID != principalID {
				kept = append(kept, a)
			}
		}
		if len(kept) != len(policy.Assignments) {
			affected = append(affected, id)
		}
		policy.Assignments = kept
		m.policies[id] = policy
	}
	sort.Strings(affected)
	return affected, nil
}

func (m *memPolicyRepo) assignmentCount(resourceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.policies[resourceID].Assignments)
}

type memPolicyCache struct {
	mu        sync.Mutex
	snapshots map[string]domain.SecurityPolicy
	hits      int
}

func newMemPolicyCache() *memPolicyCache {
	return &memPolicyCache{snapshots: make(map[string]domain.SecurityPolicy)}
}

func (m *memPolicyCache) Get(ctx context.Context, resourceID string) (*domain.SecurityPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.snapshots[resourceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m.hits++
	copied := *snapshot.Clone()
	return &copied, nil
}

func (m *memPolicyCache) Set(ctx context.Context, policy domain.SecurityPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[policy.ResourceID] = *policy.Clone()
	return nil
}

func (m *memPolicyCache) Invalidate(ctx context.Context, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, resourceID)
	return nil
}

func (m *memPolicyCache) holds(resourceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.snapshots[resourceID]
	return ok
}

type memResourceRepo struct {
	mu        sync.Mutex
	resources map[string]domain.SecurableResource
}

func newMemResourceRepo() *memResourceRepo {
	return &memResourceRepo{resources: make(map[string]domain.SecurableResource)}
}

func (m *memResourceRepo) put(resource domain.SecurableResource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[resource.ID] = resource
}

func (m *memResourceRepo) GetByID(ctx context.Context, id string) (*domain.SecurableResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resource, ok := m.resources[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := resource
	return &copied, nil
}

func (m *memResourceRepo) Create(ctx context.Context, resource domain.SecurableResource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[resource.ID]; ok {
		return repository.ErrDuplicate
	}
	m.resources[resource.ID] = resource
	return nil
}

type memCredentialRepo struct {
	mu            sync.Mutex
	hashes        map[int]string
	verifications map[int]string // userID -> token hash
}

func newMemCredentialRepo() *memCredentialRepo {
	return &memCredentialRepo{hashes: make(map[int]string), verifications: make(map[int]string)}
}

func (m *memCredentialRepo) GetPasswordHash(ctx context.Context, userID int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, ok := m.hashes[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return hash, nil
}

func (m *memCredentialRepo) SetPassword(ctx context.Context, userID int, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[userID] = hash
	return nil
}

func (m *memCredentialRepo) CreateVerification(ctx context.Context, userID int, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications[userID] = tokenHash
	return nil
}

type memAuditLog struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (m *memAuditLog) AddEvent(ctx context.Context, event domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memAuditLog) byType(eventType string) []domain.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEvent
	for _, e := range m.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type memPublisher struct {
	mu             sync.Mutex
	policyChanged  []domain.PolicyChangedEvent
	groupDeleted   []domain.GroupDeletedEvent
	memberRemoved  []domain.MemberRemovedEvent
	userProvisiond []domain.UserProvisionedEvent
}

func (m *memPublisher) PublishPolicyChanged(ctx context.Context, event domain.PolicyChangedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policyChanged = append(m.policyChanged, event)
	return nil
}

func (m *memPublisher) PublishGroupDeleted(ctx context.Context, event domain.GroupDeletedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupDeleted = append(m.groupDeleted, event)
	return nil
}

func (m *memPublisher) PublishMemberRemoved(ctx context.Context, event domain.MemberRemovedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberRemoved = append(m.memberRemoved, event)
	return nil
}

func (m *memPublisher) PublishUserProvisioned(ctx context.Context, event domain.UserProvisionedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userProvisiond = append(m.userProvisiond, event)
	return nil
}

type memVerificationSender struct {
	mu   sync.Mutex
	sent []string // emails
}

func (m *memVerificationSender) SendVerification(ctx context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return nil
}

// scriptedProvider is a provider whose behavior is fixed per test.
type scriptedForm struct {
	response domain.AuthenticationResponse
	calls    int
}

func (s *scriptedForm) AuthenticateForm(ctx context.Context, identifier, password string) domain.AuthenticationResponse {
	s.calls++
	return s.response
}

type scriptedRequest struct {
	response domain.AuthenticationResponse
}

func (s *scriptedRequest) AuthenticateRequest(ctx context.Context, rctx *domain.RequestContext) domain.AuthenticationResponse {
	return s.response
}

type scriptedLogout struct {
	called int
}

func (s *scriptedLogout) OnLogout(ctx context.Context, user domain.User) error {
	s.called++
	return nil
}

// securityEnv bundles the wired services most tests need.
type securityEnv struct {
	users       *memUserRepo
	groups      *memGroupRepo
	memberships *memMembershipRepo
	policies    *memPolicyRepo
	policyCache *memPolicyCache
	resources   *memResourceRepo
	credentials *memCredentialRepo
	audit       *memAuditLog
	events      *memPublisher

	registry *domain.RoleRegistry

	directory *DirectoryService
	resolver  *MembershipService
	groupSvc  *GroupService
	policySvc *PolicyService
}

func newSecurityEnv() *securityEnv {
	env := &securityEnv{
		users:       newMemUserRepo(),
		groups:      newMemGroupRepo(),
		memberships: newMemMembershipRepo(),
		policies:    newMemPolicyRepo(),
		policyCache: newMemPolicyCache(),
		resources:   newMemResourceRepo(),
		credentials: newMemCredentialRepo(),
		audit:       &memAuditLog{},
		events:      &memPublisher{},
	}

	env.registry = domain.DefaultRoleRegistry()
	env.resolver = NewMembershipService(env.memberships)
	env.directory = NewDirectoryService(env.users, env.groups, env.resolver, nil)
	env.groupSvc = NewGroupService(env.groups, env.memberships, env.policies, env.policyCache, env.resolver, env.directory, env.audit, env.events, nil)
	env.policySvc = NewPolicyService(env.policies, env.resources, env.policyCache, env.resolver, env.registry, env.audit, env.events, nil)

	return env
}
