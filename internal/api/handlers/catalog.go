package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cardscout/cardscout/internal/api/response"
	"github.com/cardscout/cardscout/internal/ingest"
	"github.com/cardscout/cardscout/internal/refresh"
)

// CatalogImporter triggers bulk catalog imports.
type CatalogImporter interface {
	ImportFile(ctx context.Context, path string) (*ingest.Report, error)
	ImportFromFeed(ctx context.Context) (*ingest.Report, error)
}

// CatalogRefresher runs price and legality refresh cycles.
type CatalogRefresher interface {
	RunOnce(ctx context.Context) (*refresh.Report, error)
}

// CatalogHandler serves the admin catalog maintenance endpoints.
type CatalogHandler struct {
	importer  CatalogImporter
	refresher CatalogRefresher
}

// NewCatalogHandler creates a new CatalogHandler. Either dependency may
// be nil; the matching endpoint then answers 503.
func NewCatalogHandler(importer CatalogImporter, refresher CatalogRefresher) *CatalogHandler {
	return &CatalogHandler{importer: importer, refresher: refresher}
}

// ImportRequest selects the source for a catalog import.
type ImportRequest struct {
	// Local bulk file to import; empty imports from the upstream feed.
	Path string `json:"path,omitempty"`
}

// ImportCatalog triggers a bulk catalog import and returns the run report.
func (h *CatalogHandler) ImportCatalog(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		response.ServiceUnavailable(w, errors.New("catalog import is not configured"))
		return
	}

	var req ImportRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, errors.New("invalid request body"))
			return
		}
	}

	var (
		report *ingest.Report
		err    error
	)
	if req.Path != "" {
		report, err = h.importer.ImportFile(r.Context(), req.Path)
	} else {
		report, err = h.importer.ImportFromFeed(r.Context())
	}
	if err != nil {
		if errors.Is(err, ingest.ErrNoFeed) {
			response.ServiceUnavailable(w, err)
			return
		}
		response.InternalError(w, err)
		return
	}

	response.Success(w, report)
}

// RefreshCatalog runs one price and legality refresh cycle and returns
// the cycle report.
func (h *CatalogHandler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		response.ServiceUnavailable(w, errors.New("catalog refresh is not configured"))
		return
	}

	report, err := h.refresher.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, refresh.ErrAlreadyRunning) {
			response.Conflict(w, err)
			return
		}
		response.InternalError(w, err)
		return
	}

	response.Success(w, report)
}
