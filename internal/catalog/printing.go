package catalog

import (
	"strings"
	"time"
)

// CardPrinting represents one physical printing of a card in a specific set.
// Many printings can resolve to the same oracle identity.
type CardPrinting struct {
	// Stable printing identifier from the catalog feed
	PrintingID string `json:"id"`

	// Oracle identifier; nil for promotional and test printings that the
	// feed ships without one
	OracleID *string `json:"oracle_id,omitempty"`

	// Identity key resolved at ingest time (see DeriveKey)
	IdentityKey IdentityKey `json:"identity_key"`

	// Basic card information
	Name     string `json:"name"`
	TypeLine string `json:"type_line"`
	SetCode  string `json:"set"`
	SetName  string `json:"set_name"`

	// Mana information
	ManaCost  string  `json:"mana_cost"`
	ManaValue float64 `json:"mana_value"`

	// Colors and identity
	Colors        []string `json:"colors"`
	ColorIdentity []string `json:"color_identity"`

	// Mechanic keywords as provided by the feed
	Keywords []string `json:"keywords"`

	// Rarity: "common", "uncommon", "rare", "mythic"
	Rarity string `json:"rarity"`

	// Rules text and imagery
	OracleText string     `json:"oracle_text,omitempty"`
	ImageURIs  *ImageURIs `json:"image_uris,omitempty"`

	// Faces for transform, split and adventure layouts; ordered, front first
	Layout    string     `json:"layout"`
	CardFaces []CardFace `json:"card_faces,omitempty"`

	// Metadata
	CollectorNumber string    `json:"collector_number"`
	ReleasedAt      time.Time `json:"released_at"`

	// Refreshable fields; everything else is immutable after ingest
	PriceUSD   *float64          `json:"price_usd,omitempty"`
	Legalities map[string]string `json:"legalities,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// CardFace represents one face of a multi-faced printing.
type CardFace struct {
	Name       string     `json:"name"`
	TypeLine   string     `json:"type_line"`
	ManaCost   string     `json:"mana_cost"`
	OracleText string     `json:"oracle_text"`
	Colors     []string   `json:"colors"`
	ImageURIs  *ImageURIs `json:"image_uris,omitempty"`
}

// ImageURIs contains URLs for card images in various sizes.
type ImageURIs struct {
	Small      string `json:"small"`
	Normal     string `json:"normal"`
	Large      string `json:"large"`
	PNG        string `json:"png"`
	ArtCrop    string `json:"art_crop"`
	BorderCrop string `json:"border_crop"`
}

// URI returns the image URL for the given size, falling back to normal.
func (u *ImageURIs) URI(size string) string {
	if u == nil {
		return ""
	}
	switch size {
	case "small":
		return u.Small
	case "large":
		return u.Large
	case "png":
		return u.PNG
	case "art_crop":
		return u.ArtCrop
	case "border_crop":
		return u.BorderCrop
	default:
		return u.Normal
	}
}

// FrontFace returns the first card face, or nil for single-faced printings.
func (p *CardPrinting) FrontFace() *CardFace {
	if len(p.CardFaces) == 0 {
		return nil
	}
	return &p.CardFaces[0]
}

// EffectiveOracleText returns the printing's rules text. Multi-faced
// printings carry text on their faces rather than the root object, so the
// face texts are joined in face order.
func (p *CardPrinting) EffectiveOracleText() string {
	if p.OracleText != "" {
		return p.OracleText
	}
	if len(p.CardFaces) == 0 {
		return ""
	}
	parts := make([]string, 0, len(p.CardFaces))
	for _, face := range p.CardFaces {
		if face.OracleText != "" {
			parts = append(parts, face.OracleText)
		}
	}
	return strings.Join(parts, " // ")
}

// EffectiveImageURIs returns root image URIs when present, otherwise the
// front face's.
func (p *CardPrinting) EffectiveImageURIs() *ImageURIs {
	if p == nil {
		return nil
	}
	if p.ImageURIs != nil {
		return p.ImageURIs
	}
	if face := p.FrontFace(); face != nil {
		return face.ImageURIs
	}
	return nil
}

// PrintingRef is a caller-supplied reference to a card. Exactly one field
// should be set; when several are set the most specific one wins.
type PrintingRef struct {
	PrintingID string `json:"printing_id,omitempty"`
	OracleID   string `json:"oracle_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// IsZero reports whether the reference carries nothing to resolve.
func (r PrintingRef) IsZero() bool {
	return r.PrintingID == "" && r.OracleID == "" && r.Name == ""
}
