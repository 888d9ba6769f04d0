// Package cache provides the tiered response cache: an ordered list of
// tiers fronted by a read-through coordinator. The hot tier is an
// in-process LRU, the warm tier is Redis. Tiers store opaque serialized
// values under keys derived from full request parameters, and every entry
// carries invalidation tags so catalog changes can purge exactly the
// responses they affect.
package cache

import (
	"context"
	"strings"
	"time"
)

// TagSearch marks every cached search response. Purging it drops all
// search results without touching per-card entries.
const TagSearch = "card-search"

// TagCard returns the invalidation tag covering all cached responses
// that mention the card with the given identity key.
func TagCard(identityKey string) string {
	return "card-" + identityKey
}

// Key joins request parameters into a stable cache key. Callers include
// every parameter that affects the response so distinct requests never
// collide.
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}

// Tier is a single cache level. Implementations are safe for concurrent
// use. A failing tier returns an error; the coordinator treats that as a
// miss and keeps serving.
type Tier interface {
	// Name identifies the tier in logs and metrics.
	Name() string

	// Get returns the value stored under key. A clean miss is
	// (nil, false, nil); an error means the tier could not answer.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key with the given invalidation tags.
	// A ttl of zero or less selects the tier's default.
	Put(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error

	// Invalidate removes a single key.
	Invalidate(ctx context.Context, key string) error

	// InvalidateTag removes every entry carrying the tag.
	InvalidateTag(ctx context.Context, tag string) error

	// Close releases tier resources.
	Close() error
}
