package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrCacheDown = errors.New("cache unavailable")
	// ErrStaleVersion means the tag was invalidated after the value was read
	// from its source, so the value was not stored.
	ErrStaleVersion = errors.New("cache tag version changed")
)

// RedisCache stores JSON values under namespaced keys. Every method takes the
// caller's context and bounds it with its own timeout.
type RedisCache struct {
	client *redis.Client
	prefix string
}

type CacheConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		KeyPrefix:    "taskboard",
	}
}

func NewRedisCache(config *CacheConfig) *RedisCache {
	if config == nil {
		config = DefaultCacheConfig()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	return &RedisCache{client: rdb, prefix: config.KeyPrefix}
}

// Key joins parts under the cache's prefix, e.g. "taskboard:tasks:personal".
func (r *RedisCache) Key(parts ...string) string {
	if r.prefix == "" {
		return strings.Join(parts, ":")
	}
	return r.prefix + ":" + strings.Join(parts, ":")
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := r.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetWithTags stores value and records key under each tag so that
// InvalidateByTag can drop every key sharing a tag at once.
func (r *RedisCache) SetWithTags(ctx context.Context, key string, value interface{}, expiration time.Duration, tags []string) error {
	if err := r.Set(ctx, key, value, expiration); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pipe := r.client.Pipeline()
	for _, tag := range tags {
		tagKey := r.tagKey(tag)
		pipe.SAdd(ctx, tagKey, key)
		pipe.Expire(ctx, tagKey, expiration)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// TagVersion returns how many times tag has been invalidated. Pass it to
// SetWithTagsAtVersion to store a value read from the source after this call.
func (r *RedisCache) TagVersion(ctx context.Context, tag string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := r.client.Get(ctx, r.versionKey(tag)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read tag version: %w", err)
	}
	return v, nil
}

// SetWithTagsAtVersion works like SetWithTags but stores nothing, returning
// ErrStaleVersion, once guard has been invalidated past version.
func (r *RedisCache) SetWithTagsAtVersion(ctx context.Context, key string, value interface{}, expiration time.Duration, tags []string, guard string, version int64) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	versionKey := r.versionKey(guard)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return ErrStaleVersion
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, expiration)
			for _, tag := range tags {
				tagKey := r.tagKey(tag)
				pipe.SAdd(ctx, tagKey, key)
				pipe.Expire(ctx, tagKey, expiration)
			}
			return nil
		})
		return err
	}, versionKey)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrStaleVersion
	}
	return err
}

// InvalidateByTag drops every key stored under tag and bumps the tag's
// version so that in-flight SetWithTagsAtVersion calls are refused.
func (r *RedisCache) InvalidateByTag(ctx context.Context, tag string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Incr(ctx, r.versionKey(tag)).Err(); err != nil {
		return fmt.Errorf("failed to bump tag version: %w", err)
	}

	tagKey := r.tagKey(tag)
	keys, err := r.client.SMembers(ctx, tagKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get tag members: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	return r.client.Del(ctx, append(keys, tagKey)...).Err()
}

func (r *RedisCache) tagKey(tag string) string {
	return r.Key("tag", tag)
}

func (r *RedisCache) versionKey(tag string) string {
	return r.Key("tagver", tag)
}

func (r *RedisCache) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheDown, err)
	}
	return nil
}

func (r *RedisCache) Stats() map[string]interface{} {
	poolStats := r.client.PoolStats()

	return map[string]interface{}{
		"pool_hits":     poolStats.Hits,
		"pool_misses":   poolStats.Misses,
		"pool_timeouts": poolStats.Timeouts,
		"pool_total":    poolStats.TotalConns,
		"pool_idle":     poolStats.IdleConns,
		"pool_stale":    poolStats.StaleConns,
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
