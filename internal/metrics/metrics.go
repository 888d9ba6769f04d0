// Package metrics defines the Prometheus collectors shared across the
// service, covering cache tiers, recommendation scoring, search, catalog
// ingest, and the HTTP surface. Collectors are registered once at package
// init via promauto; callers use the Record* helpers rather than touching
// the vectors directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache Metrics

	// CacheHitsTotal counts cache hits by tier name.
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscout_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"tier"},
	)

	// CacheMissesTotal counts lookups that missed every tier.
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardscout_cache_misses_total",
			Help: "Total number of lookups that missed all cache tiers",
		},
	)

	// CacheTierErrorsTotal counts tier operations that failed and were
	// degraded to a miss.
	CacheTierErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscout_cache_tier_errors_total",
			Help: "Total number of cache tier failures tolerated as misses",
		},
		[]string{"tier", "op"}, // op: "get", "put", "invalidate"
	)

	// CacheInvalidationsTotal counts purge-by-tag operations.
	CacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscout_cache_invalidations_total",
			Help: "Total number of cache tag invalidations",
		},
		[]string{"tag_kind"}, // "card", "search", "other"
	)

	// CacheHotEntries tracks the current entry count of the in-process tier.
	CacheHotEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardscout_cache_hot_entries",
			Help: "Current number of entries in the in-process cache tier",
		},
	)

	// Recommendation Metrics

	// RecommendRequestsTotal counts recommendation requests by strategy and result.
	RecommendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscout_recommend_requests_total",
			Help: "Total number of recommendation requests",
		},
		[]string{"strategy", "result"}, // result: "ok", "not_found", "invalid", "error"
	)

	// RecommendDuration tracks end-to-end recommendation latency, including
	// cache lookups and scoring.
	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardscout_recommend_duration_seconds",
			Help:    "Duration of recommendation requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"strategy"},
	)

	// Search Metrics

	// SearchRequestsTotal counts search requests by result.
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscout_search_requests_total",
			Help: "Total number of card search requests",
		},
		[]string{"result"}, // "ok", "invalid", "error"
	)

	// SearchDuration tracks search latency.
	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cardscout_search_duration_seconds",
			Help:    "Duration of card search requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// Catalog Metrics

	// CatalogPrintings tracks the number of printings in the catalog.
	CatalogPrintings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardscout_catalog_printings",
			Help: "Current number of card printings in the catalog",
		},
	)

	// CatalogIdentities tracks the number of distinct card identities.
	CatalogIdentities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardscout_catalog_identities",
			Help: "Current number of distinct card identities in the catalog",
		},
	)

	// IngestRunsTotal counts completed ingest runs by outcome.
	IngestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscout_ingest_runs_total",
			Help: "Total number of catalog ingest runs",
		},
		[]string{"source", "result"}, // result: "success", "failure"
	)

	// IngestPrintingsTotal counts printings processed during ingest.
	IngestPrintingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscout_ingest_printings_total",
			Help: "Total number of printings processed during ingest",
		},
		[]string{"result"}, // "upserted", "skipped"
	)

	// RefreshRunsTotal counts price/legality refresh cycles by outcome.
	RefreshRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscout_refresh_runs_total",
			Help: "Total number of catalog refresh cycles",
		},
		[]string{"result"}, // "success", "failure"
	)

	// Image Metrics

	// ImageFetchesTotal counts image fetches by source and outcome.
	ImageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscout_image_fetches_total",
			Help: "Total number of card image fetches",
		},
		[]string{"source", "result"}, // source: "cache", "remote"
	)

	// ImagePreloadsTotal counts preload jobs by priority and outcome.
	ImagePreloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscout_image_preloads_total",
			Help: "Total number of image preload jobs",
		},
		[]string{"priority", "result"}, // priority: "immediate", "deferred"
	)

	// ImageCacheBytes tracks the size of the on-disk image cache.
	ImageCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardscout_image_cache_bytes",
			Help: "Current size of the on-disk image cache in bytes",
		},
	)

	// HTTP Metrics

	// HTTPRequestsTotal counts HTTP requests by method, route, and status class.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardscout_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardscout_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// HTTPInFlight tracks requests currently being served.
	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardscout_http_in_flight_requests",
			Help: "Current number of HTTP requests being served",
		},
	)
)

// RecordCacheHit records a hit on the named tier.
func RecordCacheHit(tier string) {
	CacheHitsTotal.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a lookup that missed every tier.
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordCacheTierError records a tier failure that was tolerated.
func RecordCacheTierError(tier, op string) {
	CacheTierErrorsTotal.WithLabelValues(tier, op).Inc()
}

// RecordCacheInvalidation records a purge-by-tag, classified by tag kind
// to keep label cardinality bounded.
func RecordCacheInvalidation(tag string) {
	kind := "other"
	switch {
	case tag == "card-search":
		kind = "search"
	case len(tag) > 5 && tag[:5] == "card-":
		kind = "card"
	}
	CacheInvalidationsTotal.WithLabelValues(kind).Inc()
}

// RecordRecommendRequest records a recommendation request outcome and latency.
func RecordRecommendRequest(strategy, result string, duration time.Duration) {
	RecommendRequestsTotal.WithLabelValues(strategy, result).Inc()
	if result == "ok" {
		RecommendDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	}
}

// RecordSearchRequest records a search request outcome and latency.
func RecordSearchRequest(result string, duration time.Duration) {
	SearchRequestsTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		SearchDuration.Observe(duration.Seconds())
	}
}

// UpdateCatalogSize updates the catalog size gauges after an ingest or
// refresh cycle.
func UpdateCatalogSize(printings, identities int) {
	CatalogPrintings.Set(float64(printings))
	CatalogIdentities.Set(float64(identities))
}

// RecordIngestRun records a completed ingest run.
func RecordIngestRun(source string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	IngestRunsTotal.WithLabelValues(source, result).Inc()
}

// RecordIngestPrintings records printings processed during an ingest run.
func RecordIngestPrintings(upserted, skipped int) {
	IngestPrintingsTotal.WithLabelValues("upserted").Add(float64(upserted))
	IngestPrintingsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordRefreshRun records a completed refresh cycle.
func RecordRefreshRun(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	RefreshRunsTotal.WithLabelValues(result).Inc()
}

// RecordImageFetch records an image fetch by source and outcome.
func RecordImageFetch(source string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	ImageFetchesTotal.WithLabelValues(source, result).Inc()
}

// RecordImagePreload records an image preload job by priority and outcome.
func RecordImagePreload(priority string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	ImagePreloadsTotal.WithLabelValues(priority, result).Inc()
}
