package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/core/port"
)

// MembershipService computes immediate and transitive group membership.
//
// Two caches sit in front of the membership store: per-principal immediate
// memberships, and per-principal flattened closures. A graph change
// invalidates the touched principal's immediate entry but the entire closure
// cache, since any other principal's flattened result may have passed through
// the changed group. Reads racing an invalidation may observe the old value;
// the next read recomputes.
type MembershipService struct {
	memberships port.MembershipRepository

	mu        sync.RWMutex
	immediate map[int][]int
	closure   map[int][]int
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(memberships port.MembershipRepository) *MembershipService {
	return &MembershipService{
		memberships: memberships,
		immediate:   make(map[int][]int),
		closure:     make(map[int][]int),
	}
}

// ImmediateGroups returns the groups the principal is directly a member of,
// sorted ascending, serving repeat lookups from cache.
func (s *MembershipService) ImmediateGroups(ctx context.Context, principalID int) ([]int, error) {
	s.mu.RLock()
	cached, ok := s.immediate[principalID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	groups, err := s.memberships.GroupsFor(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("immediate groups: %w", err)
	}

	s.mu.Lock()
	s.immediate[principalID] = groups
	s.mu.Unlock()

	return groups, nil
}

// AllGroups returns the principal's fully flattened group set, sorted
// ascending and including the principal's own id.
//
// The traversal is breadth-first from the seed set {Guests, [Users unless
// guest], principal}: dequeue an id, fetch its immediate memberships, enqueue
// anything not yet visited. The visited set guarantees termination even if
// the graph briefly holds a cycle. Site administrators are implicitly
// developers as well.
func (s *MembershipService) AllGroups(ctx context.Context, principal domain.Principal) ([]int, error) {
	s.mu.RLock()
	cached, ok := s.closure[principal.ID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	seeds := []int{domain.GuestsGroupID, principal.ID}
	if !principal.IsGuest() {
		seeds = append(seeds, domain.UsersGroupID)
	}

	visited, err := s.traverse(ctx, seeds)
	if err != nil {
		return nil, err
	}

	if _, admin := visited[domain.SiteAdministratorsGroupID]; admin {
		if _, seen := visited[domain.DevelopersGroupID]; !seen {
			extra, err := s.traverse(ctx, []int{domain.DevelopersGroupID})
			if err != nil {
				return nil, err
			}
			for id := range extra {
				visited[id] = struct{}{}
			}
		}
	}

	result := make([]int, 0, len(visited))
	for id := range visited {
		result = append(result, id)
	}
	sort.Ints(result)

	s.mu.Lock()
	s.closure[principal.ID] = result
	s.mu.Unlock()

	return result, nil
}

// ClosureOf returns the raw reachability set seeded at a single principal,
// with no synthetic memberships and no caching. The write path uses it for
// cycle checks, where a cached or augmented answer would be wrong.
func (s *MembershipService) ClosureOf(ctx context.Context, principalID int) (map[int]struct{}, error) {
	return s.traverseUncached(ctx, []int{principalID})
}

func (s *MembershipService) traverse(ctx context.Context, seeds []int) (map[int]struct{}, error) {
	visited := make(map[int]struct{}, len(seeds))
	queue := make([]int, 0, len(seeds))
	for _, id := range seeds {
		if _, seen := visited[id]; !seen {
			visited[id] = struct{}{}
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		groups, err := s.ImmediateGroups(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			if _, seen := visited[g]; !seen {
				visited[g] = struct{}{}
				queue = append(queue, g)
			}
		}
	}

	return visited, nil
}

func (s *MembershipService) traverseUncached(ctx context.Context, seeds []int) (map[int]struct{}, error) {
	visited := make(map[int]struct{}, len(seeds))
	queue := append([]int(nil), seeds...)
	for _, id := range seeds {
		visited[id] = struct{}{}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		groups, err := s.memberships.GroupsFor(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("closure: %w", err)
		}
		for _, g := range groups {
			if _, seen := visited[g]; !seen {
				visited[g] = struct{}{}
				queue = append(queue, g)
			}
		}
	}

	return visited, nil
}

// InvalidatePrincipal drops the principal's immediate-membership entry and
// the whole closure cache. Other principals' immediate entries stay valid.
func (s *MembershipService) InvalidatePrincipal(principalID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.immediate, principalID)
	s.closure = make(map[int][]int)
}

// InvalidateAll clears both caches.
func (s *MembershipService) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.immediate = make(map[int][]int)
	s.closure = make(map[int][]int)
}
