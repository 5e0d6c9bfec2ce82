// Package cache provides the ephemeral local artifact cache backing the
// persistence adapter. Entries are advisory: they survive process restarts
// but are never authoritative over the remote store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grantflow/api/internal/workflow"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when no entry exists for a key.
var ErrMiss = errors.New("cache: miss")

// RedisCache stores one serialized artifact per key, following the
// proposal_<artifactKind>_<proposalId> layout so invalidation can remove
// individual keys without touching others.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheWithClient wraps an existing Redis client.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) key(proposalID string, kind workflow.Kind) string {
	return fmt.Sprintf("proposal_%s_%s", kind, proposalID)
}

// SaveArtifact writes one artifact snapshot.
func (c *RedisCache) SaveArtifact(ctx context.Context, proposalID string, kind workflow.Kind, data []byte) error {
	if err := c.client.Set(ctx, c.key(proposalID, kind), data, 0).Err(); err != nil {
		return fmt.Errorf("save artifact %s: %w", kind, err)
	}
	return nil
}

// LoadArtifact reads one artifact snapshot, or ErrMiss.
func (c *RedisCache) LoadArtifact(ctx context.Context, proposalID string, kind workflow.Kind) ([]byte, error) {
	data, err := c.client.Get(ctx, c.key(proposalID, kind)).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", kind, err)
	}
	return data, nil
}

// LoadArtifacts reads every known artifact kind for a proposal in one round
// trip. Missing kinds are simply absent from the returned map.
func (c *RedisCache) LoadArtifacts(ctx context.Context, proposalID string) (map[workflow.Kind][]byte, error) {
	kinds := workflow.AllKinds()
	keys := make([]string, len(kinds))
	for i, kind := range kinds {
		keys[i] = c.key(proposalID, kind)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}

	out := make(map[workflow.Kind][]byte)
	for i, value := range values {
		if value == nil {
			continue
		}
		if s, ok := value.(string); ok && s != "" {
			out[kinds[i]] = []byte(s)
		}
	}
	return out, nil
}

// DeleteArtifacts removes the entries for the given kinds.
func (c *RedisCache) DeleteArtifacts(ctx context.Context, proposalID string, kinds []workflow.Kind) error {
	if len(kinds) == 0 {
		return nil
	}
	keys := make([]string, len(kinds))
	for i, kind := range kinds {
		keys[i] = c.key(proposalID, kind)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete artifacts: %w", err)
	}
	return nil
}

// DeleteAll removes every cache entry keyed by the proposal, used when the
// proposal itself is deleted.
func (c *RedisCache) DeleteAll(ctx context.Context, proposalID string) error {
	return c.DeleteArtifacts(ctx, proposalID, workflow.AllKinds())
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
