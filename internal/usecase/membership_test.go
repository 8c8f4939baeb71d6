package usecase

import (
	"context"
	"reflect"
	"testing"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
)

func userPrincipal(id int) domain.Principal {
	return domain.Principal{ID: id, Type: domain.PrincipalTypeUser}
}

func TestAllGroupsFlattensTransitiveMemberships(t *testing.T) {
	env := newSecurityEnv()
	// user 7 -> group 101 -> group 102
	env.memberships.addEdge(101, 7)
	env.memberships.addEdge(102, 101)

	groups, err := env.resolver.AllGroups(context.Background(), userPrincipal(7))
	if err != nil {
		t.Fatalf("AllGroups returned error: %v", err)
	}

	want := []int{domain.GuestsGroupID, domain.UsersGroupID, 7, 101, 102}
	if !reflect.DeepEqual(groups, want) {
		t.Fatalf("expected groups %v, got %v", want, groups)
	}
}

func TestAllGroupsGuestExcludesUsers(t *testing.T) {
	env := newSecurityEnv()

	groups, err := env.resolver.AllGroups(context.Background(), userPrincipal(domain.GuestUserID))
	if err != nil {
		t.Fatalf("AllGroups returned error: %v", err)
	}

	want := []int{domain.GuestsGroupID, domain.GuestUserID}
	if !reflect.DeepEqual(groups, want) {
		t.Fatalf("expected guest groups %v, got %v", want, groups)
	}
}

func TestAllGroupsTerminatesOnCyclicGraph(t *testing.T) {
	env := newSecurityEnv()
	// A transient cycle in storage must not hang the traversal.
	env.memberships.addEdge(101, 102)
	env.memberships.addEdge(102, 101)
	env.memberships.addEdge(101, 7)

	groups, err := env.resolver.AllGroups(context.Background(), userPrincipal(7))
	if err != nil {
		t.Fatalf("AllGroups returned error: %v", err)
	}

	want := []int{domain.GuestsGroupID, domain.UsersGroupID, 7, 101, 102}
	if !reflect.DeepEqual(groups, want) {
		t.Fatalf("expected groups %v, got %v", want, groups)
	}
}

func TestAllGroupsSiteAdminsAreDevelopers(t *testing.T) {
	env := newSecurityEnv()
	env.memberships.addEdge(domain.SiteAdministratorsGroupID, 7)

	groups, err := env.resolver.AllGroups(context.Background(), userPrincipal(7))
	if err != nil {
		t.Fatalf("AllGroups returned error: %v", err)
	}

	want := []int{
		domain.DevelopersGroupID,
		domain.GuestsGroupID,
		domain.UsersGroupID,
		domain.SiteAdministratorsGroupID,
		7,
	}
	if !reflect.DeepEqual(groups, want) {
		t.Fatalf("expected groups %v, got %v", want, groups)
	}
}

func TestAllGroupsServedFromCacheUntilInvalidated(t *testing.T) {
	env := newSecurityEnv()
	ctx := context.Background()
	env.memberships.addEdge(101, 7)

	first, err := env.resolver.AllGroups(ctx, userPrincipal(7))
	if err != nil {
		t.Fatalf("AllGroups returned error: %v", err)
	}

	// Mutate storage behind the cache.
	env.memberships.addEdge(102, 7)

	stale, err := env.resolver.AllGroups(ctx, userPrincipal(7))
	if err != nil {
		t.Fatalf("AllGroups returned error: %v", err)
	}
	if !reflect.DeepEqual(stale, first) {
		t.Fatalf("expected cached result %v, got %v", first, stale)
	}

	env.resolver.InvalidatePrincipal(7)

	fresh, err := env.resolver.AllGroups(ctx, userPrincipal(7))
	if err != nil {
		t.Fatalf("AllGroups returned error: %v", err)
	}
	want := []int{domain.GuestsGroupID, domain.UsersGroupID, 7, 101, 102}
	if !reflect.DeepEqual(fresh, want) {
		t.Fatalf("expected refreshed groups %v, got %v", want, fresh)
	}
}

func TestClosureOfOmitsSyntheticMemberships(t *testing.T) {
	env := newSecurityEnv()
	env.memberships.addEdge(102, 101)

	closure, err := env.resolver.ClosureOf(context.Background(), 101)
	if err != nil {
		t.Fatalf("ClosureOf returned error: %v", err)
	}

	if _, ok := closure[domain.GuestsGroupID]; ok {
		t.Fatal("closure must not include synthetic Guests membership")
	}
	if _, ok := closure[101]; !ok {
		t.Fatal("closure must include the seed itself")
	}
	if _, ok := closure[102]; !ok {
		t.Fatal("closure must include containing groups")
	}
}

func TestImmediateGroupsSortedAscending(t *testing.T) {
	env := newSecurityEnv()
	env.memberships.addEdge(300, 7)
	env.memberships.addEdge(101, 7)
	env.memberships.addEdge(205, 7)

	groups, err := env.resolver.ImmediateGroups(context.Background(), 7)
	if err != nil {
		t.Fatalf("ImmediateGroups returned error: %v", err)
	}

	want := []int{101, 205, 300}
	if !reflect.DeepEqual(groups, want) {
		t.Fatalf("expected %v, got %v", want, groups)
	}
}
