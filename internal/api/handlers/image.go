package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cardscout/cardscout/internal/api/response"
	"github.com/cardscout/cardscout/internal/catalog"
	"github.com/cardscout/cardscout/internal/imagecache"
)

// ImageHandler serves card art through the local image cache.
type ImageHandler struct {
	holder    *catalog.Holder
	images    *imagecache.Cache
	preloader *imagecache.Preloader
	log       *zap.Logger
}

// NewImageHandler creates a new ImageHandler. The preloader may be nil;
// deferred warming is then skipped.
func NewImageHandler(holder *catalog.Holder, images *imagecache.Cache, preloader *imagecache.Preloader, log *zap.Logger) *ImageHandler {
	return &ImageHandler{holder: holder, images: images, preloader: preloader, log: log}
}

// preloadSizes are the renditions warmed after serving a card image.
var preloadSizes = []imagecache.ImageSize{
	imagecache.ImageSizeSmall,
	imagecache.ImageSizeNormal,
	imagecache.ImageSizeLarge,
}

// GetCardImage serves the card's image from the local cache, downloading
// it on first access. Other renditions of the same card are queued for
// deferred preload so follow-up requests hit the cache.
func (h *ImageHandler) GetCardImage(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		response.ServiceUnavailable(w, errors.New("image cache is not configured"))
		return
	}

	id := chi.URLParam(r, "cardID")
	if id == "" {
		response.BadRequest(w, errors.New("card ID is required"))
		return
	}

	size, err := parseImageSize(r.URL.Query().Get("size"))
	if err != nil {
		response.BadRequest(w, err)
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

	printings, err := resolver.Printings(r.Context(), key)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	uris := catalog.RepresentativePrinting(printings).EffectiveImageURIs()
	if uris == nil {
		response.NotFound(w, errors.New("no image available"))
		return
	}
	imageURL := uris.URI(string(size))
	if imageURL == "" {
		response.NotFound(w, fmt.Errorf("no %s image available", size))
		return
	}

	path, err := h.images.GetImage(r.Context(), imageURL, size)
	if err != nil {
		response.InternalError(w, fmt.Errorf("fetch image: %w", err))
		return
	}

	if h.preloader != nil {
		for _, other := range preloadSizes {
			if other == size {
				continue
			}
			if u := uris.URI(string(other)); u != "" {
				h.preloader.Enqueue(u, other, imagecache.PriorityDeferred)
			}
		}
	}

	http.ServeFile(w, r, path)
}

// parseImageSize validates the ?size= parameter, defaulting to normal.
func parseImageSize(raw string) (imagecache.ImageSize, error) {
	switch imagecache.ImageSize(raw) {
	case "":
		return imagecache.ImageSizeNormal, nil
	case imagecache.ImageSizeSmall:
		return imagecache.ImageSizeSmall, nil
	case imagecache.ImageSizeNormal:
		return imagecache.ImageSizeNormal, nil
	case imagecache.ImageSizeLarge:
		return imagecache.ImageSizeLarge, nil
	case imagecache.ImageSizePNG:
		return imagecache.ImageSizePNG, nil
	case imagecache.ImageSizeArtCrop:
		return imagecache.ImageSizeArtCrop, nil
	default:
		return "", fmt.Errorf("invalid image size: %q", raw)
	}
}
