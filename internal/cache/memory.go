package cache

import (
	"context"
	"sync"
	"time"
)

const (
	defaultMemoryCapacity = 2048
	defaultMemoryTTL      = 5 * time.Minute
)

// memoryEntry is a node in the LRU list. Sentinel head/tail entries keep
// the link manipulation branch-free.
type memoryEntry struct {
	key       string
	value     []byte
	tags      []string
	expiresAt time.Time
	prev      *memoryEntry
	next      *memoryEntry
}

// MemoryTier is the in-process hot tier: a capacity-bounded LRU with
// per-entry TTLs and a tag index for purge-by-tag. Expired entries are
// dropped lazily on access; CleanupExpired sweeps the rest.
type MemoryTier struct {
	mu         sync.Mutex
	capacity   int
	defaultTTL time.Duration
	items      map[string]*memoryEntry
	byTag      map[string]map[string]struct{}
	head       *memoryEntry
	tail       *memoryEntry
	hits       int64
	misses     int64
}

// NewMemoryTier creates a hot tier holding at most capacity entries.
// Non-positive arguments select the defaults (2048 entries, 5 minutes).
func NewMemoryTier(capacity int, defaultTTL time.Duration) *MemoryTier {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	if defaultTTL <= 0 {
		defaultTTL = defaultMemoryTTL
	}

	t := &MemoryTier{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		items:      make(map[string]*memoryEntry),
		byTag:      make(map[string]map[string]struct{}),
		head:       &memoryEntry{},
		tail:       &memoryEntry{},
	}
	t.head.next = t.tail
	t.tail.prev = t.head
	return t
}

// Name implements Tier.
func (t *MemoryTier) Name() string { return "memory" }

// Get returns the cached value and marks the entry most recently used.
// The returned slice is shared with the cache and must not be modified.
func (t *MemoryTier) Get(_ context.Context, key string) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.items[key]
	if !ok {
		t.misses++
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		t.removeEntry(entry)
		t.misses++
		return nil, false, nil
	}

	t.moveToFront(entry)
	t.hits++
	return entry.value, true, nil
}

// Put stores value under key, replacing any existing entry and evicting
// from the cold end once the capacity is exceeded.
func (t *MemoryTier) Put(_ context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = t.defaultTTL
	}
	expiresAt := time.Now().Add(ttl)

	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.items[key]; ok {
		t.dropTags(entry)
		entry.value = value
		entry.tags = tags
		entry.expiresAt = expiresAt
		t.addTags(entry)
		t.moveToFront(entry)
		return nil
	}

	entry := &memoryEntry{
		key:       key,
		value:     value,
		tags:      tags,
		expiresAt: expiresAt,
	}
	t.items[key] = entry
	t.addTags(entry)
	t.addToFront(entry)

	for len(t.items) > t.capacity {
		t.evictOldest()
	}
	return nil
}

// Invalidate removes a single key. Missing keys are not an error.
func (t *MemoryTier) Invalidate(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.items[key]; ok {
		t.removeEntry(entry)
	}
	return nil
}

// InvalidateTag removes every entry carrying the tag.
func (t *MemoryTier) InvalidateTag(_ context.Context, tag string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.byTag[tag] {
		if entry, ok := t.items[key]; ok {
			t.removeEntry(entry)
		}
	}
	delete(t.byTag, tag)
	return nil
}

// Close implements Tier. The memory tier holds no external resources.
func (t *MemoryTier) Close() error { return nil }

// CleanupExpired removes all expired entries and returns how many were
// dropped. Intended to run on a timer so expired entries that are never
// read again do not linger until eviction.
func (t *MemoryTier) CleanupExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, entry := range t.items {
		if now.After(entry.expiresAt) {
			t.removeEntry(entry)
			removed++
		}
	}
	return removed
}

// Len returns the current number of entries.
func (t *MemoryTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Stats returns hit and miss counts and the current size.
func (t *MemoryTier) Stats() (hits, misses int64, size int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hits, t.misses, len(t.items)
}

// Clear removes all entries and resets the counters.
func (t *MemoryTier) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.items = make(map[string]*memoryEntry)
	t.byTag = make(map[string]map[string]struct{})
	t.head.next = t.tail
	t.tail.prev = t.head
	t.hits = 0
	t.misses = 0
}

func (t *MemoryTier) addTags(entry *memoryEntry) {
	for _, tag := range entry.tags {
		set, ok := t.byTag[tag]
		if !ok {
			set = make(map[string]struct{})
			t.byTag[tag] = set
		}
		set[entry.key] = struct{}{}
	}
}

func (t *MemoryTier) dropTags(entry *memoryEntry) {
	for _, tag := range entry.tags {
		set, ok := t.byTag[tag]
		if !ok {
			continue
		}
		delete(set, entry.key)
		if len(set) == 0 {
			delete(t.byTag, tag)
		}
	}
}

func (t *MemoryTier) addToFront(entry *memoryEntry) {
	entry.prev = t.head
	entry.next = t.head.next
	t.head.next.prev = entry
	t.head.next = entry
}

func (t *MemoryTier) moveToFront(entry *memoryEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	t.addToFront(entry)
}

func (t *MemoryTier) removeEntry(entry *memoryEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	t.dropTags(entry)
	delete(t.items, entry.key)
}

func (t *MemoryTier) evictOldest() {
	oldest := t.tail.prev
	if oldest == t.head {
		return
	}
	t.removeEntry(oldest)
}
