package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/biomed-platform-security/internal/core/domain"
	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/repository"
)

const defaultPolicyCachePrefix = "sec:policy"

// PolicyCacheRepository caches resolved security policies for low-latency
// permission checks. Entries are invalidated on every policy save and
// expire on their own as a backstop.
type PolicyCacheRepository struct {
	client *red.Client
	prefix string
	ttl    time.Duration
}

// NewPolicyCacheRepository constructs a policy cache helper.
func NewPolicyCacheRepository(client *red.Client, keyPrefix string, ttl time.Duration) *PolicyCacheRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultPolicyCachePrefix
	}

	return &PolicyCacheRepository{client: client, prefix: prefix, ttl: ttl}
}

type cachedPolicy struct {
	ResourceID  string             `json:"resource_id"`
	Assignments []cachedAssignment `json:"assignments,omitempty"`
	Modified    time.Time          `json:"modified"`
}

type cachedAssignment struct {
	PrincipalID int    `json:"principal_id"`
	Role        string `json:"role"`
}

// Get fetches the cached policy, returning ErrNotFound on cache miss.
func (r *PolicyCacheRepository) Get(ctx context.Context, resourceID string) (*domain.SecurityPolicy, error) {
	key := r.key(resourceID)
	if key == "" {
		return nil, fmt.Errorf("resource id is required")
	}

	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get policy: %w", err)
	}

	var cached cachedPolicy
	if err := json.Unmarshal([]byte(value), &cached); err != nil {
		return nil, fmt.Errorf("decode cached policy: %w", err)
	}

	policy := domain.SecurityPolicy{
		ResourceID: cached.ResourceID,
		Modified:   cached.Modified,
	}
	for _, a := range cached.Assignments {
		policy.Assignments = append(policy.Assignments, domain.RoleAssignment{
			ResourceID:  cached.ResourceID,
			PrincipalID: a.PrincipalID,
			Role:        domain.RoleName(a.Role),
		})
	}

	return &policy, nil
}

// Set stores the policy snapshot with the configured TTL.
func (r *PolicyCacheRepository) Set(ctx context.Context, policy domain.SecurityPolicy) error {
	key := r.key(policy.ResourceID)
	if key == "" {
		return fmt.Errorf("resource id is required")
	}

	cached := cachedPolicy{
		ResourceID: policy.ResourceID,
		Modified:   policy.Modified,
	}
	for _, a := range policy.Assignments {
		cached.Assignments = append(cached.Assignments, cachedAssignment{
			PrincipalID: a.PrincipalID,
			Role:        string(a.Role),
		})
	}

	encoded, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}

	if err := r.client.Set(ctx, key, encoded, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set policy: %w", err)
	}

	return nil
}

// Invalidate removes the cached entry for the resource.
func (r *PolicyCacheRepository) Invalidate(ctx context.Context, resourceID string) error {
	key := r.key(resourceID)
	if key == "" {
		return fmt.Errorf("resource id is required")
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete policy: %w", err)
	}

	return nil
}

func (r *PolicyCacheRepository) key(resourceID string) string {
	trimmed := strings.TrimSpace(resourceID)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, trimmed)
}

var _ port.PolicyCache = (*PolicyCacheRepository)(nil)
