package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists snapshots in Redis, suited to short-lived pauses
// shared across processes. Snapshots expire after the configured TTL; a
// zero TTL keeps them until deleted.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. prefix namespaces the keys
// ("flow:checkpoint:" when empty).
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "flow:checkpoint:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(execID string) string {
	return r.prefix + execID
}

// Save stores the snapshot under the execution ID's key.
func (r *RedisStore) Save(ctx context.Context, execID string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key(execID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load retrieves the snapshot for execID.
func (r *RedisStore) Load(ctx context.Context, execID string) (Snapshot, error) {
	data, err := r.client.Get(ctx, r.key(execID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Delete removes the snapshot for execID.
func (r *RedisStore) Delete(ctx context.Context, execID string) error {
	return r.client.Del(ctx, r.key(execID)).Err()
}
