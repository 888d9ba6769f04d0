package catalog

import "errors"

var (
	// ErrNotFound indicates a printing reference or identity key that does
	// not match anything in the catalog.
	ErrNotFound = errors.New("catalog: not found")

	// ErrInvalidFilter indicates a filter facet with an unknown or
	// malformed value. Callers should fail the request rather than
	// silently ignore the facet.
	ErrInvalidFilter = errors.New("catalog: invalid filter")

	// ErrCorrupt indicates the catalog store can no longer enumerate
	// identities. This is fatal for the service.
	ErrCorrupt = errors.New("catalog: corrupt")
)
