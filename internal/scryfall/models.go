package scryfall

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cardscout/cardscout/internal/catalog"
)

// Card represents a card printing as the Scryfall feed ships it.
type Card struct {
	// Core fields
	ID       string `json:"id"`
	OracleID string `json:"oracle_id"`

	// Card details
	Name          string     `json:"name"`
	Lang          string     `json:"lang"`
	ReleasedAt    string     `json:"released_at"`
	Layout        string     `json:"layout"`
	ImageURIs     *ImageURIs `json:"image_uris,omitempty"`
	ManaCost      string     `json:"mana_cost,omitempty"`
	CMC           float64    `json:"cmc"`
	TypeLine      string     `json:"type_line"`
	OracleText    string     `json:"oracle_text,omitempty"`
	Colors        []string   `json:"colors,omitempty"`
	ColorIdentity []string   `json:"color_identity"`
	Keywords      []string   `json:"keywords,omitempty"`

	// Print details
	SetCode         string `json:"set"`
	SetName         string `json:"set_name"`
	CollectorNumber string `json:"collector_number"`
	Rarity          string `json:"rarity"`

	// Card faces (for DFCs, MDFCs, split cards)
	CardFaces []CardFace `json:"card_faces,omitempty"`

	// Legality per format: "legal", "not_legal", "restricted", "banned"
	Legalities map[string]string `json:"legalities"`

	// Prices
	Prices Prices `json:"prices"`
}

// CardFace represents one face of a multi-faced card.
type CardFace struct {
	Name       string     `json:"name"`
	ManaCost   string     `json:"mana_cost,omitempty"`
	TypeLine   string     `json:"type_line"`
	OracleText string     `json:"oracle_text,omitempty"`
	Colors     []string   `json:"colors,omitempty"`
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

// Prices represents the prices of a card in various currencies. Scryfall
// sends prices as decimal strings.
type Prices struct {
	USD       *string `json:"usd,omitempty"`
	USDFoil   *string `json:"usd_foil,omitempty"`
	USDEtched *string `json:"usd_etched,omitempty"`
	EUR       *string `json:"eur,omitempty"`
	TIX       *string `json:"tix,omitempty"`
}

// USDFloat parses the USD price, or nil when absent or malformed.
func (p Prices) USDFloat() *float64 {
	if p.USD == nil {
		return nil
	}
	v, err := strconv.ParseFloat(*p.USD, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ToPrinting converts a feed card to the catalog's printing representation,
// including its resolved identity key.
func (c *Card) ToPrinting() *catalog.CardPrinting {
	releasedAt, _ := time.Parse("2006-01-02", c.ReleasedAt)

	p := &catalog.CardPrinting{
		PrintingID:      c.ID,
		Name:            c.Name,
		TypeLine:        c.TypeLine,
		SetCode:         c.SetCode,
		SetName:         c.SetName,
		ManaCost:        c.ManaCost,
		ManaValue:       c.CMC,
		Colors:          c.Colors,
		ColorIdentity:   c.ColorIdentity,
		Keywords:        c.Keywords,
		Rarity:          c.Rarity,
		OracleText:      c.OracleText,
		Layout:          c.Layout,
		CollectorNumber: c.CollectorNumber,
		ReleasedAt:      releasedAt,
		Legalities:      c.Legalities,
		PriceUSD:        c.Prices.USDFloat(),
	}

	if c.OracleID != "" {
		oracleID := c.OracleID
		p.OracleID = &oracleID
	}

	if c.ImageURIs != nil {
		p.ImageURIs = c.ImageURIs.toCatalog()
	}

	for _, face := range c.CardFaces {
		cf := catalog.CardFace{
			Name:       face.Name,
			TypeLine:   face.TypeLine,
			ManaCost:   face.ManaCost,
			OracleText: face.OracleText,
			Colors:     face.Colors,
		}
		if face.ImageURIs != nil {
			cf.ImageURIs = face.ImageURIs.toCatalog()
		}
		p.CardFaces = append(p.CardFaces, cf)
	}

	p.IdentityKey = catalog.DeriveKey(p)
	return p
}

func (u *ImageURIs) toCatalog() *catalog.ImageURIs {
	return &catalog.ImageURIs{
		Small:      u.Small,
		Normal:     u.Normal,
		Large:      u.Large,
		PNG:        u.PNG,
		ArtCrop:    u.ArtCrop,
		BorderCrop: u.BorderCrop,
	}
}

// Set represents a card set from the feed.
type Set struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	ReleasedAt string `json:"released_at,omitempty"`
	SetType    string `json:"set_type"`
	CardCount  int    `json:"card_count"`
	Digital    bool   `json:"digital"`
	IconSVGURI string `json:"icon_svg_uri"`
}

// SetList represents a list of sets from the feed.
type SetList struct {
	Object  string `json:"object"`
	HasMore bool   `json:"has_more"`
	Data    []Set  `json:"data"`
}

// BulkDataList represents the list of bulk data files.
type BulkDataList struct {
	Object  string     `json:"object"`
	HasMore bool       `json:"has_more"`
	Data    []BulkData `json:"data"`
}

// BulkData represents a bulk data file download.
type BulkData struct {
	ID              string    `json:"id"`
	Object          string    `json:"object"`
	Type            string    `json:"type"`
	UpdatedAt       time.Time `json:"updated_at"`
	URI             string    `json:"uri"`
	Name            string    `json:"name"`
	CompressedSize  int       `json:"compressed_size"`
	DownloadURI     string    `json:"download_uri"`
	ContentType     string    `json:"content_type"`
	ContentEncoding string    `json:"content_encoding"`
}

// APIError represents an error response from the Scryfall API.
type APIError struct {
	Object   string   `json:"object"`
	Code     string   `json:"code"`
	Status   int      `json:"status"`
	Details  string   `json:"details"`
	Type     string   `json:"type,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("Scryfall API error (HTTP %d): %s", e.Status, e.Details)
	}
	return fmt.Sprintf("Scryfall API error (HTTP %d): %s", e.Status, e.Code)
}

// NotFoundError represents a 404 error from the API.
type NotFoundError struct {
	URL string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.URL)
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
