package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the snapshot in Redis so several gateway replicas can
// share one slot. The snapshot lives at a single key; SET/GET/DEL give the
// same all-or-nothing visibility the in-process slot has.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ Store = (*RedisStore)(nil)

// NewRedis connects to Redis at addr ("host:port") and verifies the
// connection with a ping. keyPrefix defaults to "glance:mcp:" when empty.
func NewRedis(addr, keyPrefix string) (*RedisStore, error) {
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if keyPrefix == "" {
		keyPrefix = "glance:mcp:"
	}
	return &RedisStore{client: cl, key: keyPrefix + "latest-search"}, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Write(ctx context.Context, snap Snapshot) error {
	if snap.Results == nil {
		snap.Results = Empty().Results
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context) (Snapshot, error) {
	b, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Empty(), nil
	}
	if err != nil {
		return Empty(), fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Empty(), fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Results == nil {
		snap.Results = Empty().Results
	}
	return snap, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
