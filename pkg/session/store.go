package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces stored tokens.
const RedisKeyPrefix = "p21:session:token:"

// TokenStore keeps bearer tokens so that several sessions, possibly in
// different processes, share one login.
type TokenStore interface {
	Load(ctx context.Context, key string) (token string, ok bool, err error)
	Save(ctx context.Context, key, token string) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-process TokenStore.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

// Load implements TokenStore.
func (m *MemoryStore) Load(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[key]
	return token, ok, nil
}

// Save implements TokenStore.
func (m *MemoryStore) Save(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key] = token
	return nil
}

// Delete implements TokenStore.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, key)
	return nil
}

// RedisStore is a TokenStore backed by Redis.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a Redis token store. A ttl of zero keeps tokens
// until deleted.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Load implements TokenStore.
func (r *RedisStore) Load(ctx context.Context, key string) (string, bool, error) {
	token, err := r.redis.Get(ctx, RedisKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return token, true, nil
}

// Save implements TokenStore.
func (r *RedisStore) Save(ctx context.Context, key, token string) error {
	if err := r.redis.Set(ctx, RedisKeyPrefix+key, token, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements TokenStore.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, RedisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
