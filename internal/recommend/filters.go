package recommend

import (
	"fmt"
	"strings"

	"github.com/cardscout/cardscout/internal/catalog"
)

// Filters narrows a ranked result list. Facets combine conjunctively; the
// values inside one facet are alternatives. An empty facet is ignored.
type Filters struct {
	// Colors keeps cards whose color list intersects these symbols.
	// The special symbol C keeps colorless cards.
	Colors []string `json:"colors,omitempty"`
	// Types keeps cards whose type line contains any of these words.
	Types []string `json:"types,omitempty"`
	// Rarities keeps cards printed at any of these rarities.
	Rarities []string `json:"rarities,omitempty"`
	// Formats keeps cards legal in at least one of these formats.
	Formats []string `json:"formats,omitempty"`

	// Inclusive bounds. Cards without a known price never satisfy a
	// price bound.
	MinMv    *float64 `json:"min_mv,omitempty"`
	MaxMv    *float64 `json:"max_mv,omitempty"`
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
}

var validColors = map[string]struct{}{
	"W": {}, "U": {}, "B": {}, "R": {}, "G": {}, "C": {},
}

var validRarities = map[string]struct{}{
	"common": {}, "uncommon": {}, "rare": {}, "mythic": {}, "special": {}, "bonus": {},
}

// IsZero reports whether no facet is set.
func (f *Filters) IsZero() bool {
	if f == nil {
		return true
	}
	return len(f.Colors) == 0 && len(f.Types) == 0 && len(f.Rarities) == 0 &&
		len(f.Formats) == 0 && f.MinMv == nil && f.MaxMv == nil &&
		f.MinPrice == nil && f.MaxPrice == nil
}

// Validate rejects values outside the enumerated color and rarity sets,
// so a bad request fails before any scoring work happens.
func (f *Filters) Validate() error {
	if f == nil {
		return nil
	}
	for _, c := range f.Colors {
		if _, ok := validColors[strings.ToUpper(strings.TrimSpace(c))]; !ok {
			return fmt.Errorf("%w: unknown color %q", catalog.ErrInvalidFilter, c)
		}
	}
	for _, r := range f.Rarities {
		if _, ok := validRarities[strings.ToLower(strings.TrimSpace(r))]; !ok {
			return fmt.Errorf("%w: unknown rarity %q", catalog.ErrInvalidFilter, r)
		}
	}
	return nil
}

// Match reports whether an identity passes every set facet.
func (f *Filters) Match(identity *catalog.CardIdentity) bool {
	if f == nil || identity == nil {
		return identity != nil
	}
	if len(f.Colors) > 0 && !f.matchColors(identity) {
		return false
	}
	if len(f.Types) > 0 && !f.matchTypes(identity) {
		return false
	}
	if len(f.Rarities) > 0 && !f.matchRarities(identity) {
		return false
	}
	if len(f.Formats) > 0 && !f.matchFormats(identity) {
		return false
	}
	if f.MinMv != nil && identity.ManaValue < *f.MinMv {
		return false
	}
	if f.MaxMv != nil && identity.ManaValue > *f.MaxMv {
		return false
	}
	if f.MinPrice != nil && (identity.PriceUSD == nil || *identity.PriceUSD < *f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && (identity.PriceUSD == nil || *identity.PriceUSD > *f.MaxPrice) {
		return false
	}
	return true
}

func (f *Filters) matchColors(identity *catalog.CardIdentity) bool {
	cardColors := colorSet(identity.Colors)
	for _, c := range f.Colors {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "C" {
			if len(cardColors) == 0 {
				return true
			}
			continue
		}
		if _, ok := cardColors[c]; ok {
			return true
		}
	}
	return false
}

func (f *Filters) matchTypes(identity *catalog.CardIdentity) bool {
	tokens := typeTokens(identity.TypeLine)
	for _, t := range f.Types {
		if _, ok := tokens[strings.ToLower(strings.TrimSpace(t))]; ok {
			return true
		}
	}
	return false
}

func (f *Filters) matchRarities(identity *catalog.CardIdentity) bool {
	rarity := strings.ToLower(identity.Rarity)
	for _, r := range f.Rarities {
		if strings.ToLower(strings.TrimSpace(r)) == rarity {
			return true
		}
	}
	return false
}

func (f *Filters) matchFormats(identity *catalog.CardIdentity) bool {
	for _, format := range f.Formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if identity.Legalities[format] == "legal" {
			return true
		}
	}
	return false
}

// Apply filters an already ranked list, preserving its order. It never
// truncates: limits are applied by the caller after filtering so a full
// page survives whenever enough candidates pass.
func Apply(recs []Recommendation, f *Filters) ([]Recommendation, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.IsZero() {
		return recs, nil
	}
	out := make([]Recommendation, 0, len(recs))
	for _, rec := range recs {
		if f.Match(rec.Candidate) {
			out = append(out, rec)
		}
	}
	return out, nil
}
