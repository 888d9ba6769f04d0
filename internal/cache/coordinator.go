package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cardscout/cardscout/internal/metrics"
)

// ComputeFn produces the serialized value for a key on a full miss.
type ComputeFn func(ctx context.Context) ([]byte, error)

// Coordinator fronts an ordered list of tiers with read-through
// semantics. Tier failures are logged and counted but never surface to
// callers; with every tier down the coordinator simply computes.
type Coordinator struct {
	tiers []Tier
	log   *zap.Logger
}

// NewCoordinator creates a coordinator over tiers, fastest first.
func NewCoordinator(log *zap.Logger, tiers ...Tier) *Coordinator {
	return &Coordinator{
		tiers: tiers,
		log:   log.With(zap.String("component", "cache")),
	}
}

// GetOrCompute returns the cached value for key, walking tiers in order.
// On a hit, tiers before the hit are populated before returning. On a
// full miss the value is computed, stored in every tier, and returned.
// Compute errors propagate; nothing is cached for a failed compute.
func (c *Coordinator) GetOrCompute(ctx context.Context, key string, tags []string, ttl time.Duration, compute ComputeFn) ([]byte, error) {
	for i, tier := range c.tiers {
		val, ok, err := tier.Get(ctx, key)
		if err != nil {
			c.tierError(tier, "get", key, err)
			continue
		}
		if !ok {
			continue
		}

		metrics.RecordCacheHit(tier.Name())
		c.populate(ctx, c.tiers[:i], key, val, tags, ttl)
		return val, nil
	}

	metrics.RecordCacheMiss()
	val, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	c.populate(ctx, c.tiers, key, val, tags, ttl)
	return val, nil
}

// Get walks the tiers without computing. Failures degrade to a miss.
// Unlike GetOrCompute it does not backfill earlier tiers: the caller has
// no tags here, and an untagged entry would survive tag purges.
func (c *Coordinator) Get(ctx context.Context, key string) ([]byte, bool) {
	for _, tier := range c.tiers {
		val, ok, err := tier.Get(ctx, key)
		if err != nil {
			c.tierError(tier, "get", key, err)
			continue
		}
		if !ok {
			continue
		}

		metrics.RecordCacheHit(tier.Name())
		return val, true
	}

	metrics.RecordCacheMiss()
	return nil, false
}

// Put stores the value in every tier.
func (c *Coordinator) Put(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) {
	c.populate(ctx, c.tiers, key, value, tags, ttl)
}

// Invalidate removes a single key from every tier.
func (c *Coordinator) Invalidate(ctx context.Context, key string) {
	for _, tier := range c.tiers {
		if err := tier.Invalidate(ctx, key); err != nil {
			c.tierError(tier, "invalidate", key, err)
		}
	}
}

// InvalidateTag purges every entry carrying the tag from every tier.
func (c *Coordinator) InvalidateTag(ctx context.Context, tag string) {
	metrics.RecordCacheInvalidation(tag)
	for _, tier := range c.tiers {
		if err := tier.InvalidateTag(ctx, tag); err != nil {
			c.tierError(tier, "invalidate", tag, err)
		}
	}
}

// InvalidateTags purges several tags.
func (c *Coordinator) InvalidateTags(ctx context.Context, tags ...string) {
	for _, tag := range tags {
		c.InvalidateTag(ctx, tag)
	}
}

// Close closes every tier and returns the first error encountered.
func (c *Coordinator) Close() error {
	var firstErr error
	for _, tier := range c.tiers {
		if err := tier.Close(); err != nil {
			c.log.Warn("cache tier close failed",
				zap.String("tier", tier.Name()),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *Coordinator) populate(ctx context.Context, tiers []Tier, key string, value []byte, tags []string, ttl time.Duration) {
	for _, tier := range tiers {
		if err := tier.Put(ctx, key, value, tags, ttl); err != nil {
			c.tierError(tier, "put", key, err)
		}
	}
}

func (c *Coordinator) tierError(tier Tier, op, key string, err error) {
	metrics.RecordCacheTierError(tier.Name(), op)
	c.log.Warn("cache tier degraded",
		zap.String("tier", tier.Name()),
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err))
}
