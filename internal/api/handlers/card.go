package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cardscout/cardscout/internal/api/response"
	"github.com/cardscout/cardscout/internal/catalog"
)

// CardHandler serves card identity lookups.
type CardHandler struct {
	holder *catalog.Holder
	log    *zap.Logger
}

// NewCardHandler creates a new CardHandler.
func NewCardHandler(holder *catalog.Holder, log *zap.Logger) *CardHandler {
	return &CardHandler{holder: holder, log: log}
}

// CardComposite is a card identity together with every printing behind
// it, newest release first.
type CardComposite struct {
	Card      *catalog.CardIdentity   `json:"card"`
	Printings []*catalog.CardPrinting `json:"printings"`
}

// GetCard returns the card identity for a printing ID, oracle ID, or
// exact card name.
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "cardID")
	if id == "" {
		response.BadRequest(w, errors.New("card ID is required"))
		return
	}

	ix := h.holder.Load()
	ref, err := refFromPath(r.Context(), ix, id)
	if err != nil {
		response.NotFound(w, errors.New("card not found"))
		return
	}

	resolver := catalog.NewResolver(ix, h.log)
	key, err := resolver.Resolve(r.Context(), ref)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	identity, err := resolver.Identity(r.Context(), key)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	printings, err := resolver.Printings(r.Context(), key)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response.Success(w, CardComposite{Card: identity, Printings: printings})
}
