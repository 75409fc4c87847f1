package stores

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Preferences persists each user's selected store so it survives across
// sessions. The store context is the sole writer of this preference.
type Preferences interface {
	// CurrentStoreID returns the saved selection, or (0, nil) when the
	// user has never picked a store.
	CurrentStoreID(ctx context.Context, userID string) (int, error)
	SetCurrentStoreID(ctx context.Context, userID string, storeID int) error
}

// RedisPreferences keeps store selections in Redis.
type RedisPreferences struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPreferences creates a Redis-backed preference store. A zero
// ttl keeps selections indefinitely.
func NewRedisPreferences(client *redis.Client, ttl time.Duration) *RedisPreferences {
	return &RedisPreferences{client: client, ttl: ttl}
}

func preferenceKey(userID string) string {
	return "karat:pref:current_store:" + userID
}

func (p *RedisPreferences) CurrentStoreID(ctx context.Context, userID string) (int, error) {
	val, err := p.client.Get(ctx, preferenceKey(userID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read store preference: %w", err)
	}

	id, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("corrupt store preference %q: %w", val, err)
	}
	return id, nil
}

func (p *RedisPreferences) SetCurrentStoreID(ctx context.Context, userID string, storeID int) error {
	err := p.client.Set(ctx, preferenceKey(userID), strconv.Itoa(storeID), p.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to save store preference: %w", err)
	}
	return nil
}

// MemoryPreferences is an in-process Preferences implementation used in
// tests and single-node deployments.
type MemoryPreferences struct {
	mu   sync.RWMutex
	byID map[string]int
}

func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{byID: make(map[string]int)}
}

func (p *MemoryPreferences) CurrentStoreID(ctx context.Context, userID string) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byID[userID], nil
}

func (p *MemoryPreferences) SetCurrentStoreID(ctx context.Context, userID string, storeID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[userID] = storeID
	return nil
}
