package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cardscout/cardscout/internal/api/response"
	"github.com/cardscout/cardscout/internal/catalog"
	"github.com/cardscout/cardscout/internal/recommend"
)

// RecommendHandler serves card recommendations.
type RecommendHandler struct {
	service *recommend.Service
	holder  *catalog.Holder
}

// NewRecommendHandler creates a new RecommendHandler.
func NewRecommendHandler(service *recommend.Service, holder *catalog.Holder) *RecommendHandler {
	return &RecommendHandler{service: service, holder: holder}
}

// GetRecommendations returns ranked recommendations for a source card.
// The strategy is chosen with ?type=, facets arrive as a URL-encoded
// JSON object in ?filters=.
func (h *RecommendHandler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "cardID")
	if id == "" {
		response.BadRequest(w, errors.New("card ID is required"))
		return
	}

	ref, err := refFromPath(r.Context(), h.holder.Load(), id)
	if err != nil {
		response.NotFound(w, errors.New("card not found"))
		return
	}

	strategy, err := recommend.ParseStrategy(r.URL.Query().Get("type"))
	if err != nil {
		response.BadRequest(w, err)
		return
	}

	filters, err := filtersFromJSON(r.URL.Query().Get("filters"))
	if err != nil {
		response.BadRequest(w, err)
		return
	}

	recs, err := h.service.Recommend(r.Context(), recommend.Request{
		Source:      ref,
		Strategy:    strategy,
		Limit:       intParam(r.URL.Query(), "limit", 0),
		Filters:     filters,
		RequesterID: requesterID(r),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response.Success(w, recs)
}
