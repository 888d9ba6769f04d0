// Package handlers implements the HTTP handlers for the card API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/cardscout/cardscout/internal/api/response"
	"github.com/cardscout/cardscout/internal/catalog"
	"github.com/cardscout/cardscout/internal/recommend"
)

// refFromPath maps a path identifier onto a printing reference. The
// identifier is probed most specific first: printing ID, then oracle ID,
// then exact card name.
func refFromPath(ctx context.Context, ix *catalog.Index, id string) (catalog.PrintingRef, error) {
	if p, _ := ix.PrintingByID(ctx, id); p != nil {
		return catalog.PrintingRef{PrintingID: id}, nil
	}
	if printings, _ := ix.PrintingsByOracleID(ctx, id); len(printings) > 0 {
		return catalog.PrintingRef{OracleID: id}, nil
	}
	if printings, _ := ix.PrintingsByName(ctx, catalog.Normalize(id)); len(printings) > 0 {
		return catalog.PrintingRef{Name: id}, nil
	}
	return catalog.PrintingRef{}, catalog.ErrNotFound
}

// requesterID returns the caller-supplied X-Requester-ID when it is a
// valid UUID, otherwise a fresh one scoped to this request.
func requesterID(r *http.Request) string {
	if raw := r.Header.Get("X-Requester-ID"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id.String()
		}
	}
	return uuid.NewString()
}

// csvParam collects a repeatable query parameter, splitting each value on
// commas so ?colors=W,U and ?colors=W&colors=U parse the same way.
func csvParam(values url.Values, name string) []string {
	var out []string
	for _, raw := range values[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// floatParam parses an optional float query parameter.
func floatParam(values url.Values, name string) (*float64, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return &f, nil
}

// intParam parses an optional positive int query parameter, keeping the
// fallback when the value is absent or unusable.
func intParam(values url.Values, name string, fallback int) int {
	if raw := values.Get(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// filtersFromQuery builds a facet filter from individual query
// parameters. Returns nil when no facet is present.
func filtersFromQuery(values url.Values) (*recommend.Filters, error) {
	f := &recommend.Filters{
		Colors:   csvParam(values, "colors"),
		Types:    csvParam(values, "types"),
		Rarities: csvParam(values, "rarities"),
		Formats:  csvParam(values, "format"),
	}

	var err error
	if f.MinMv, err = floatParam(values, "min_mv"); err != nil {
		return nil, err
	}
	if f.MaxMv, err = floatParam(values, "max_mv"); err != nil {
		return nil, err
	}
	if f.MinPrice, err = floatParam(values, "min_price"); err != nil {
		return nil, err
	}
	if f.MaxPrice, err = floatParam(values, "max_price"); err != nil {
		return nil, err
	}

	if f.IsZero() {
		return nil, nil
	}
	return f, nil
}

// filtersFromJSON builds a facet filter from a URL-encoded JSON object,
// the form the recommendations endpoint accepts.
func filtersFromJSON(raw string) (*recommend.Filters, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var f recommend.Filters
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("invalid filters: %w", err)
	}
	if f.IsZero() {
		return nil, nil
	}
	return &f, nil
}

// respondServiceError maps service errors onto HTTP status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		response.NotFound(w, err)
	case errors.Is(err, catalog.ErrInvalidFilter), errors.Is(err, recommend.ErrInvalidStrategy):
		response.BadRequest(w, err)
	case errors.Is(err, catalog.ErrCorrupt):
		response.ServiceUnavailable(w, err)
	default:
		response.InternalError(w, err)
	}
}
