package handlers

import (
	"net/http"

	"github.com/cardscout/cardscout/internal/api/response"
	"github.com/cardscout/cardscout/internal/search"
)

// SearchHandler serves paginated catalog searches.
type SearchHandler struct {
	service *search.Service
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(service *search.Service) *SearchHandler {
	return &SearchHandler{service: service}
}

// SearchCards runs a paginated, deduplicated catalog search. Facets
// arrive as individual query parameters.
func (h *SearchHandler) SearchCards(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	filters, err := filtersFromQuery(values)
	if err != nil {
		response.BadRequest(w, err)
		return
	}

	result, err := h.service.Search(r.Context(), search.Query{
		Text:        values.Get("q"),
		Filters:     filters,
		Page:        intParam(values, "page", 0),
		PageSize:    intParam(values, "page_size", 0),
		RequesterID: requesterID(r),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response.Paginated(w, result.Hits, result.Page, result.PageSize, result.Total, result.HasMore)
}
