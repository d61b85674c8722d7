package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const stateKey = "kledo:oauth:state"

// StateStore holds the short-lived CSRF state for one authorization round
// trip. The TTL is the only time bound; a state is deleted explicitly once
// the authorization code has been exchanged.
type StateStore interface {
	// State returns the current state, or "" when none is stored or the TTL
	// has elapsed.
	State(ctx context.Context) (string, error)
	SaveState(ctx context.Context, state string, ttl time.Duration) error
	DeleteState(ctx context.Context) error
}

// RedisStateStore implements StateStore backed by Redis, which enforces the
// TTL server-side.
type RedisStateStore struct {
	client *redis.Client
}

var _ StateStore = (*RedisStateStore)(nil)

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) State(ctx context.Context) (string, error) {
	value, err := s.client.Get(ctx, stateKey).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("failed to load oauth state: %w", err)
	}
	return value, nil
}

func (s *RedisStateStore) SaveState(ctx context.Context, state string, ttl time.Duration) error {
	if err := s.client.Set(ctx, stateKey, state, ttl).Err(); err != nil {
		return fmt.Errorf("failed to persist oauth state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) DeleteState(ctx context.Context) error {
	if err := s.client.Del(ctx, stateKey).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to delete oauth state: %w", err)
	}
	return nil
}

// MemoryStateStore is the in-process fallback used when Redis is not
// configured, and in tests. Single-instance deployments only; the state does
// not survive a restart, which just forces a fresh authorization attempt.
type MemoryStateStore struct {
	mu        sync.Mutex
	state     string
	expiresAt time.Time
	now       func() time.Time
}

var _ StateStore = (*MemoryStateStore)(nil)

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{now: time.Now}
}

func (s *MemoryStateStore) State(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == "" || s.now().After(s.expiresAt) {
		return "", nil
	}
	return s.state, nil
}

func (s *MemoryStateStore) SaveState(ctx context.Context, state string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.expiresAt = s.now().Add(ttl)
	return nil
}

func (s *MemoryStateStore) DeleteState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ""
	s.expiresAt = time.Time{}
	return nil
}
