package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/bastion"
)

// Compile-time interface check.
var _ bastion.Cache = (*Redis)(nil)

// Redis caches check results in Redis. Suitable when several processes
// share one authorization dataset and should share warm results.
//
// All operations are best effort: a Redis failure degrades to a cache
// miss, never to a check failure.
type Redis struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisOption configures the Redis cache.
type RedisOption func(*Redis)

// WithKeyPrefix overrides the default "bastion:check:" key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.keyPrefix = prefix }
}

// NewRedis creates a Redis-backed check result cache on an existing client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:    client,
		keyPrefix: "bastion:check:",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns a cached check result.
func (r *Redis) Get(ctx context.Context, userID, itemName string) (*bastion.CheckResult, bool) {
	key := r.key(userID, itemName)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}

	var result bastion.CheckResult
	if err := json.Unmarshal(data, &result); err != nil {
		// Corrupt entry, drop it.
		r.client.Del(ctx, key)
		return nil, false
	}
	return &result, true
}

// Set stores a check result in the cache.
func (r *Redis) Set(ctx context.Context, userID, itemName string, result *bastion.CheckResult, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	r.client.Set(ctx, r.key(userID, itemName), data, ttl)
}

// InvalidateUser removes all cached results for a user.
func (r *Redis) InvalidateUser(ctx context.Context, userID string) {
	r.deleteByPattern(ctx, r.keyPrefix+userID+":*")
}

// Purge removes all cached results.
func (r *Redis) Purge(ctx context.Context) {
	r.deleteByPattern(ctx, r.keyPrefix+"*")
}

func (r *Redis) deleteByPattern(ctx context.Context, pattern string) {
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			r.client.Del(ctx, keys...)
			keys = keys[:0]
		}
	}
	if len(keys) > 0 {
		r.client.Del(ctx, keys...)
	}
}

func (r *Redis) key(userID, itemName string) string {
	return r.keyPrefix + userID + ":" + itemName
}
