package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestPolicyCacheRepository_SetAndGet(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewPolicyCacheRepository(client, "policy", 5*time.Minute)

	ctx := context.Background()

	policy := domain.NewSecurityPolicy("study-1")
	policy.AddAssignment(domain.GuestsGroupID, domain.RoleReader)
	policy.AddAssignment(7, domain.RoleEditor)
	policy.Modified = time.Now().UTC().Truncate(time.Millisecond)

	if err := repo.Set(ctx, *policy); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	got, err := repo.Get(ctx, "study-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.ResourceID != "study-1" {
		t.Fatalf("expected resource study-1, got %s", got.ResourceID)
	}
	if len(got.Assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(got.Assignments))
	}
	if got.Assignments[0].PrincipalID != domain.GuestsGroupID || got.Assignments[0].Role != domain.RoleReader {
		t.Fatalf("unexpected first assignment: %+v", got.Assignments[0])
	}
	if !got.Modified.Equal(policy.Modified) {
		t.Fatalf("expected modified %v, got %v", policy.Modified, got.Modified)
	}

	remaining := server.TTL("policy:study-1")
	if remaining <= 0 || remaining > 5*time.Minute {
		t.Fatalf("expected ttl within (0, 5m], got %v", remaining)
	}
}

func TestPolicyCacheRepository_GetMiss(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewPolicyCacheRepository(client, "policy", time.Minute)

	if _, err := repo.Get(context.Background(), "study-unknown"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPolicyCacheRepository_Invalidate(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewPolicyCacheRepository(client, "policy", time.Minute)

	ctx := context.Background()

	policy := domain.NewSecurityPolicy("study-2")
	if err := repo.Set(ctx, *policy); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	if err := repo.Invalidate(ctx, "study-2"); err != nil {
		t.Fatalf("Invalidate returned error: %v", err)
	}

	if _, err := repo.Get(ctx, "study-2"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after invalidation, got %v", err)
	}
}
