package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/cardscout/cardscout/internal/api/handlers"
	"github.com/cardscout/cardscout/internal/catalog"
	"github.com/cardscout/cardscout/internal/imagecache"
	"github.com/cardscout/cardscout/internal/metrics"
	"github.com/cardscout/cardscout/internal/recommend"
	"github.com/cardscout/cardscout/internal/search"
)

// Server represents the REST API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	host           string
	port           int
	requestTimeout time.Duration
	allowedOrigins []string
	log            *zap.Logger

	holder      *catalog.Holder
	recommender *recommend.Service
	searcher    *search.Service
	images      *imagecache.Cache
	preloader   *imagecache.Preloader
	importer    handlers.CatalogImporter
	refresher   handlers.CatalogRefresher
}

// Config holds configuration for the API server.
type Config struct {
	Host           string
	Port           int
	RequestTimeout time.Duration // per-request timeout on the read surface
	AllowedOrigins []string      // CORS origins; empty falls back to localhost
}

// DefaultConfig returns the default API server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		RequestTimeout: 30 * time.Second,
	}
}

// Deps holds the services the API serves. Importer and Refresher may be
// nil; their endpoints then answer 503.
type Deps struct {
	Holder      *catalog.Holder
	Recommender *recommend.Service
	Searcher    *search.Service
	Images      *imagecache.Cache
	Preloader   *imagecache.Preloader
	Importer    handlers.CatalogImporter
	Refresher   handlers.CatalogRefresher
}

// NewServer creates a new API server over the given services.
func NewServer(cfg *Config, deps Deps, log *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	s := &Server{
		router:         chi.NewRouter(),
		host:           cfg.Host,
		port:           cfg.Port,
		requestTimeout: cfg.RequestTimeout,
		allowedOrigins: cfg.AllowedOrigins,
		log:            log.With(zap.String("component", "api")),
		holder:         deps.Holder,
		recommender:    deps.Recommender,
		searcher:       deps.Searcher,
		images:         deps.Images,
		preloader:      deps.Preloader,
		importer:       deps.Importer,
		refresher:      deps.Refresher,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures the middleware stack. The request timeout is
// applied per route group in setupRoutes so admin triggers stay unbounded.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.httpMetrics)

	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", "X-Requester-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
}

// requestLogger emits one structured log line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		}()

		next.ServeHTTP(ww, r)
	})
}

// httpMetrics records request counts, latency, and the in-flight gauge.
// Routes are labeled by chi pattern so label cardinality stays bounded.
func (s *Server) httpMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.HTTPInFlight.Inc()
		defer metrics.HTTPInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, statusClass(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Start starts the API server in a goroutine.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(s.host, strconv.Itoa(s.port)),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		s.log.Info("api server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server terminated", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.log.Info("shutting down api server")
	return s.httpServer.Shutdown(ctx)
}

// Port returns the port the server is configured to listen on.
func (s *Server) Port() int {
	return s.port
}
