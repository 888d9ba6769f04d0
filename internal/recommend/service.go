package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cardscout/cardscout/internal/cache"
	"github.com/cardscout/cardscout/internal/catalog"
	"github.com/cardscout/cardscout/internal/metrics"
)

// DefaultLimit is the page size used when a request does not set one.
const DefaultLimit = 10

// Request describes one recommendation query. RequesterID identifies the
// caller for logging and is never part of the response or its cache key.
type Request struct {
	Source      catalog.PrintingRef
	Strategy    Strategy
	Limit       int
	Filters     *Filters
	RequesterID string
}

// Recommendation pairs a candidate with its score under the requested
// strategy and a short explanation of the match.
type Recommendation struct {
	Candidate *catalog.CardIdentity `json:"candidate"`
	Score     float64               `json:"score"`
	Reason    string                `json:"reason"`
}

// Service scores the catalog snapshot against a source card and serves
// the ranked result through the cache coordinator.
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
		log:    log.With(zap.String("component", "recommend")),
	}
}

// Recommend resolves the source card, scores every other identity in the
// catalog under the requested strategy, and returns the ranked, filtered
// page. Results are cached per source, strategy, limit, and filter set.
func (s *Service) Recommend(ctx context.Context, req Request) ([]Recommendation, error) {
	start := time.Now()

	scorer, err := ScorerFor(req.Strategy)
	if err != nil {
		metrics.RecordRecommendRequest(string(req.Strategy), "invalid", time.Since(start))
		return nil, err
	}
	if err := req.Filters.Validate(); err != nil {
		metrics.RecordRecommendRequest(string(req.Strategy), "invalid", time.Since(start))
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}

	ix := s.holder.Load()
	resolver := catalog.NewResolver(ix, s.log)
	source, err := resolver.Lookup(ctx, req.Source)
	if err != nil {
		metrics.RecordRecommendRequest(string(req.Strategy), resultLabel(err), time.Since(start))
		return nil, fmt.Errorf("failed to resolve source card: %w", err)
	}

	s.log.Debug("recommendation request",
		zap.String("source", string(source.Key)),
		zap.String("strategy", string(req.Strategy)),
		zap.Int("limit", req.Limit),
		zap.String("requester", req.RequesterID))

	key := cache.Key("rec", string(source.Key), string(req.Strategy),
		strconv.Itoa(req.Limit), filtersFingerprint(req.Filters))
	tags := []string{cache.TagCard(string(source.Key)), cache.TagSearch}

	serialized, err := s.cache.GetOrCompute(ctx, key, tags, s.ttl, func(ctx context.Context) ([]byte, error) {
		recs, err := s.compute(ix, source, scorer, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(recs)
	})
	if err != nil {
		metrics.RecordRecommendRequest(string(req.Strategy), resultLabel(err), time.Since(start))
		return nil, err
	}

	var recs []Recommendation
	if err := json.Unmarshal(serialized, &recs); err != nil {
		// A damaged cache entry must read like a miss, so recompute
		// instead of failing the request.
		s.log.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		s.cache.Invalidate(ctx, key)
		recs, err = s.compute(ix, source, scorer, req)
		if err != nil {
			metrics.RecordRecommendRequest(string(req.Strategy), "error", time.Since(start))
			return nil, err
		}
	}

	metrics.RecordRecommendRequest(string(req.Strategy), "ok", time.Since(start))
	return recs, nil
}

func (s *Service) compute(ix *catalog.Index, source *catalog.CardIdentity, scorer Scorer, req Request) ([]Recommendation, error) {
	candidates := ix.Identities()
	recs := make([]Recommendation, 0, len(candidates))
	for _, candidate := range candidates {
		// A card never recommends itself, whichever printing the
		// request arrived through.
		if candidate.Key == source.Key {
			continue
		}
		score, reason := scorer.Score(source, candidate)
		recs = append(recs, Recommendation{Candidate: candidate, Score: score, Reason: reason})
	}

	sortRecommendations(recs)

	recs, err := Apply(recs, req.Filters)
	if err != nil {
		return nil, err
	}
	if len(recs) > req.Limit {
		recs = recs[:req.Limit]
	}
	return recs, nil
}

// sortRecommendations orders by score descending, then name ascending,
// then identity key, so equal inputs always rank identically.
func sortRecommendations(recs []Recommendation) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		if recs[i].Candidate.Name != recs[j].Candidate.Name {
			return recs[i].Candidate.Name < recs[j].Candidate.Name
		}
		return recs[i].Candidate.Key < recs[j].Candidate.Key
	})
}

// filtersFingerprint folds the filter set into the cache key. Struct
// marshaling emits fields in declaration order, so equal filters always
// produce equal fingerprints.
func filtersFingerprint(f *Filters) string {
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
	case errors.Is(err, catalog.ErrInvalidFilter), errors.Is(err, ErrInvalidStrategy):
		return "invalid"
	default:
		return "error"
	}
}
