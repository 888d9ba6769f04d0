package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultRedisTTL  = 24 * time.Hour
	redisDialTimeout = 5 * time.Second

	// Tag sets outlive the entries they index so a purge still finds
	// keys whose values already expired.
	redisTagSetTTL = 48 * time.Hour
)

// RedisTier is the warm tier. Values are stored as plain strings with a
// TTL; each invalidation tag is a Redis set holding the namespaced keys
// it covers, so purge-by-tag is a set read followed by a multi-key
// delete.
type RedisTier struct {
	rdb       *goredis.Client
	keyPrefix string
}

// NewRedisTier connects to Redis at addr and verifies the connection
// with a ping. keyPrefix namespaces all keys; empty selects "cardscout".
func NewRedisTier(addr, password string, db int, keyPrefix string) (*RedisTier, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: redisDialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if keyPrefix == "" {
		keyPrefix = "cardscout"
	}
	return &RedisTier{rdb: rdb, keyPrefix: keyPrefix}, nil
}

// Name implements Tier.
func (t *RedisTier) Name() string { return "redis" }

// Get implements Tier. A missing key is a clean miss.
func (t *RedisTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := t.rdb.Get(ctx, t.valueKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

// Put stores the value and registers it under each tag's set in a single
// transactional pipeline.
func (t *RedisTier) Put(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}

	vk := t.valueKey(key)
	pipe := t.rdb.TxPipeline()
	pipe.Set(ctx, vk, value, ttl)
	for _, tag := range tags {
		tk := t.tagKey(tag)
		pipe.SAdd(ctx, tk, vk)
		pipe.Expire(ctx, tk, redisTagSetTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// Invalidate implements Tier. The key's tag set memberships age out via
// the set TTL.
func (t *RedisTier) Invalidate(ctx context.Context, key string) error {
	if err := t.rdb.Del(ctx, t.valueKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// InvalidateTag deletes every key in the tag's set, then the set itself.
func (t *RedisTier) InvalidateTag(ctx context.Context, tag string) error {
	tk := t.tagKey(tag)
	members, err := t.rdb.SMembers(ctx, tk).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}
	if len(members) > 0 {
		if err := t.rdb.Del(ctx, members...).Err(); err != nil {
			return fmt.Errorf("redis del members: %w", err)
		}
	}
	if err := t.rdb.Del(ctx, tk).Err(); err != nil {
		return fmt.Errorf("redis del tag: %w", err)
	}
	return nil
}

// Close implements Tier.
func (t *RedisTier) Close() error {
	return t.rdb.Close()
}

func (t *RedisTier) valueKey(key string) string {
	return t.keyPrefix + ":v:" + key
}

func (t *RedisTier) tagKey(tag string) string {
	return t.keyPrefix + ":tag:" + tag
}
