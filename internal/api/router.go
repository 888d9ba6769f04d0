package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cardscout/cardscout/internal/api/handlers"
	"github.com/cardscout/cardscout/internal/api/response"
	"github.com/cardscout/cardscout/internal/version"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health and metrics endpoints (no versioning)
	s.router.Get("/health", s.healthCheck)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		// Card read surface, bounded by the configured request timeout
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))

			cardHandler := handlers.NewCardHandler(s.holder, s.log)
			searchHandler := handlers.NewSearchHandler(s.searcher)
			recommendHandler := handlers.NewRecommendHandler(s.recommender, s.holder)
			imageHandler := handlers.NewImageHandler(s.holder, s.images, s.preloader, s.log)

			r.Route("/cards", func(r chi.Router) {
				r.Get("/search", searchHandler.SearchCards)
				r.Get("/{cardID}", cardHandler.GetCard)
				r.Get("/{cardID}/recommendations", recommendHandler.GetRecommendations)
				r.Get("/{cardID}/image", imageHandler.GetCardImage)
			})
		})

		// Admin triggers run for as long as the work needs
		catalogHandler := handlers.NewCatalogHandler(s.importer, s.refresher)
		r.Route("/catalog", func(r chi.Router) {
			r.Post("/import", catalogHandler.ImportCatalog)
			r.Post("/refresh", catalogHandler.RefreshCatalog)
		})
	})
}

// healthCheck returns server health status and catalog size.
func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	ix := s.holder.Load()
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"service":    "cardscout-api",
		"version":    version.GetVersion(),
		"printings":  ix.NumPrintings(),
		"identities": ix.NumIdentities(),
	})
}
