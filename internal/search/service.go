// Package search serves paginated, identity-deduplicated catalog queries.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cardscout/cardscout/internal/cache"
	"github.com/cardscout/cardscout/internal/catalog"
	"github.com/cardscout/cardscout/internal/metrics"
	"github.com/cardscout/cardscout/internal/recommend"
)

const (
	// DefaultPageSize is used when a query does not set one.
	DefaultPageSize = 20

	// MaxPageSize caps what a single page may return.
	MaxPageSize = 100
)

// Query describes one catalog search. Text matches card names as a
// case-insensitive substring; facets narrow the result the same way
// recommendation filters do.
type Query struct {
	Text        string
	Filters     *recommend.Filters
	Page        int
	PageSize    int
	RequesterID string
}

// Hit pairs a deduplicated card identity with its representative
// printing, so callers get set, collector number, and imagery without a
// second lookup.
type Hit struct {
	Card     *catalog.CardIdentity `json:"card"`
	Printing *catalog.CardPrinting `json:"printing,omitempty"`
}

// Result is one page of matches. Total counts every match, not just the
// returned page.
type Result struct {
	Hits     []Hit `json:"hits"`
	Total    int   `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	HasMore  bool  `json:"has_more"`
}

// Service evaluates queries against the catalog snapshot and serves
// pages through the cache coordinator under the search tag.
type Service struct {
	holder *catalog.Holder
	cache  *cache.Coordinator
	ttl    time.Duration
	log    *zap.Logger
}

func NewService(holder *catalog.Holder, coordinator *cache.Coordinator, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{
		holder: holder,
		cache:  coordinator,
		ttl:    ttl,
		log:    log.With(zap.String("component", "search")),
	}
}

// Search returns one page of identities matching the query, one row per
// identity key however many printings share it.
func (s *Service) Search(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()

	if err := q.Filters.Validate(); err != nil {
		metrics.RecordSearchRequest("invalid", time.Since(start))
		return nil, err
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	normText := catalog.Normalize(q.Text)

	s.log.Debug("search request",
		zap.String("text", normText),
		zap.Int("page", q.Page),
		zap.Int("page_size", q.PageSize),
		zap.String("requester", q.RequesterID))

	ix := s.holder.Load()
	key := cache.Key("search", normText, filtersFingerprint(q.Filters),
		strconv.Itoa(q.Page), strconv.Itoa(q.PageSize))

	serialized, err := s.cache.GetOrCompute(ctx, key, []string{cache.TagSearch}, s.ttl, func(ctx context.Context) ([]byte, error) {
		result, err := s.compute(ctx, ix, normText, q)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	})
	if err != nil {
		metrics.RecordSearchRequest(resultLabel(err), time.Since(start))
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(serialized, &result); err != nil {
		s.log.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		s.cache.Invalidate(ctx, key)
		computed, cerr := s.compute(ctx, ix, normText, q)
		if cerr != nil {
			metrics.RecordSearchRequest("error", time.Since(start))
			return nil, cerr
		}
		metrics.RecordSearchRequest("ok", time.Since(start))
		return computed, nil
	}

	metrics.RecordSearchRequest("ok", time.Since(start))
	return &result, nil
}

func (s *Service) compute(ctx context.Context, ix *catalog.Index, normText string, q Query) (*Result, error) {
	// Identities are already ordered by name, which is the search order.
	var matched []*catalog.CardIdentity
	for _, identity := range ix.Identities() {
		if normText != "" && !strings.Contains(catalog.Normalize(identity.Name), normText) {
			continue
		}
		if !q.Filters.Match(identity) {
			continue
		}
		matched = append(matched, identity)
	}

	total := len(matched)
	offset := (q.Page - 1) * q.PageSize
	if offset > total {
		offset = total
	}
	end := offset + q.PageSize
	if end > total {
		end = total
	}

	hits := make([]Hit, 0, end-offset)
	for _, identity := range matched[offset:end] {
		printings, err := ix.PrintingsByIdentityKey(ctx, identity.Key)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{
			Card:     identity,
			Printing: catalog.RepresentativePrinting(printings),
		})
	}

	return &Result{
		Hits:     hits,
		Total:    total,
		Page:     q.Page,
		PageSize: q.PageSize,
		HasMore:  end < total,
	}, nil
}

// filtersFingerprint folds the facet set into the cache key the same way
// the recommendation service does.
func filtersFingerprint(f *recommend.Filters) string {
	if f.IsZero() {
		return "-"
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return "-"
	}
	return string(raw)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, catalog.ErrNotFound):
		return "not_found"
	case errors.Is(err, catalog.ErrInvalidFilter):
		return "invalid"
	default:
		return "error"
	}
}
