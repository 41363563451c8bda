package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kroleg/homelab/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a policy does not exist.
var ErrNotFound = errors.New("policy not found")

// Store persists service policies in Redis. Policies are configuration,
// not cache: entries carry no TTL.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis policy store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// Upsert validates and stores a policy, creating or replacing it.
// Validation failures surface synchronously to the caller and never
// reach the coordinator.
func (s *Store) Upsert(ctx context.Context, policy *domain.ServicePolicy) (*domain.ServicePolicy, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	if existing, err := s.Get(ctx, policy.Name); err == nil {
		policy.CreatedAt = existing.CreatedAt
	} else {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now

	data, err := json.Marshal(policy)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal policy: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, PolicyKey(policy.Name), data, 0)
	pipe.SAdd(ctx, AllPoliciesKey(), policy.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to save policy: %w", err)
	}
	return policy, nil
}

// Get retrieves a policy by name
func (s *Store) Get(ctx context.Context, name string) (*domain.ServicePolicy, error) {
	data, err := s.client.Get(ctx, PolicyKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	var policy domain.ServicePolicy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
	}
	return &policy, nil
}

// List retrieves all policies, enabled or not
func (s *Store) List(ctx context.Context) ([]*domain.ServicePolicy, error) {
	names, err := s.client.SMembers(ctx, AllPoliciesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get policy names: %w", err)
	}

	policies := make([]*domain.ServicePolicy, 0, len(names))
	for _, name := range names {
		policy, err := s.Get(ctx, name)
		if err != nil {
			// Skip entries that disappeared between SMembers and Get.
			continue
		}
		policies = append(policies, policy)
	}
	return policies, nil
}

// ListEnabled retrieves the active policy set consumed by the coordinator
func (s *Store) ListEnabled(ctx context.Context) ([]*domain.ServicePolicy, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	enabled := make([]*domain.ServicePolicy, 0, len(all))
	for _, p := range all {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled, nil
}

// Delete removes a policy. Route teardown is the caller's duty: the
// admin handler asks the coordinator after the store mutation succeeds.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, PolicyKey(name)).Err(); err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	if err := s.client.SRem(ctx, AllPoliciesKey(), name).Err(); err != nil {
		return fmt.Errorf("failed to remove policy from set: %w", err)
	}
	return nil
}
