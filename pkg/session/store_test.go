package session

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func testStore(t *testing.T, store TokenStore) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Load(ctx, "k"); err != nil || ok {
		t.Fatalf("Load() on empty store = ok %v, err %v", ok, err)
	}

	if err := store.Save(ctx, "k", "tok"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	token, ok, err := store.Load(ctx, "k")
	if err != nil || !ok || token != "tok" {
		t.Fatalf("Load() = %q, %v, %v; want tok, true, nil", token, ok, err)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := store.Load(ctx, "k"); ok {
		t.Error("token still present after Delete")
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	client := setupTestRedis(t)
	testStore(t, NewRedisStore(client, 0))
}

func TestRedisStore_TTL(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, "ttl", "tok"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ttl, err := client.TTL(ctx, RedisKeyPrefix+"ttl").Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want (0, 1m]", ttl)
	}
}

func TestNewRedisStore_NilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil redis client")
		}
	}()
	NewRedisStore(nil, 0)
}
