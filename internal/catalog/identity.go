package catalog

import (
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// IdentityKey uniquely identifies an oracle identity. Printings that share
// an oracle ID share a key; printings without one fall back to a key derived
// from the normalized name and a hash of the rules text, so reprints of the
// same card always collapse to a single identity. Keys are opaque strings
// and must never be parsed.
type IdentityKey string

const (
	oracleKeyPrefix  = "oracle:"
	derivedKeyPrefix = "derived:"
)

// DeriveKey computes the identity key for a printing. The result is a pure
// function of the printing's oracle ID, name and rules text: calling it twice
// with the same printing always yields the same key, and two printings with
// the same name and rules text but missing oracle IDs yield the same key.
func DeriveKey(p *CardPrinting) IdentityKey {
	if p.OracleID != nil && *p.OracleID != "" {
		return IdentityKey(oracleKeyPrefix + *p.OracleID)
	}
	name := Normalize(p.Name)
	sum := blake2b.Sum256([]byte(Normalize(p.EffectiveOracleText())))
	return IdentityKey(derivedKeyPrefix + name + ":" + hex.EncodeToString(sum[:16]))
}

// Normalize lowercases s and collapses all runs of whitespace to single
// spaces. Identity derivation and name lookups both go through this, so
// "Lightning  Bolt" and "lightning bolt" compare equal.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// CardIdentity is the canonical, printing-independent view of a card. All
// scoring and search results operate on identities, never on raw printings.
type CardIdentity struct {
	// Resolved identity key (see DeriveKey)
	Key IdentityKey `json:"key"`

	// Oracle identifier; nil when the identity was derived from name+text
	OracleID *string `json:"oracle_id,omitempty"`

	// Basic card information
	Name     string `json:"name"`
	TypeLine string `json:"type_line"`

	// Mana information
	ManaCost  string  `json:"mana_cost"`
	ManaValue float64 `json:"mana_value"`

	// Colors and identity
	Colors        []string `json:"colors"`
	ColorIdentity []string `json:"color_identity"`

	// Rules text and mechanic keywords
	OracleText string   `json:"oracle_text,omitempty"`
	Keywords   []string `json:"keywords"`

	// Rarity of the representative printing
	Rarity string `json:"rarity"`

	// Refreshable attributes from the newest printing
	PriceUSD   *float64          `json:"price_usd,omitempty"`
	Legalities map[string]string `json:"legalities,omitempty"`
}

// BuildIdentity materializes the canonical identity for a group of printings
// that resolved to the same key. The newest printing is the representative;
// ties on release date break on printing ID so the result is deterministic
// regardless of input order. The group must be non-empty.
func BuildIdentity(key IdentityKey, printings []*CardPrinting) (*CardIdentity, error) {
	if len(printings) == 0 {
		return nil, ErrNotFound
	}

	group := sortedByNewest(printings)
	rep := group[0]
	identity := &CardIdentity{
		Key:           key,
		OracleID:      rep.OracleID,
		Name:          rep.Name,
		TypeLine:      rep.TypeLine,
		ManaCost:      rep.ManaCost,
		ManaValue:     rep.ManaValue,
		Colors:        rep.Colors,
		ColorIdentity: rep.ColorIdentity,
		OracleText:    rep.EffectiveOracleText(),
		Keywords:      rep.Keywords,
		Rarity:        rep.Rarity,
		PriceUSD:      rep.PriceUSD,
		Legalities:    rep.Legalities,
	}

	// Front face fills in fields the root object leaves empty on
	// multi-faced layouts.
	if face := rep.FrontFace(); face != nil {
		if identity.TypeLine == "" {
			identity.TypeLine = face.TypeLine
		}
		if identity.ManaCost == "" {
			identity.ManaCost = face.ManaCost
		}
	}

	// Prices can be missing on the newest printing while an older one
	// still has one.
	if identity.PriceUSD == nil {
		for _, p := range group[1:] {
			if p.PriceUSD != nil {
				identity.PriceUSD = p.PriceUSD
				break
			}
		}
	}

	return identity, nil
}

// RepresentativePrinting picks the canonical printing for a group that
// shares one identity, using the same rule as BuildIdentity: the newest
// release wins, ties break on printing ID.
func RepresentativePrinting(printings []*CardPrinting) *CardPrinting {
	if len(printings) == 0 {
		return nil
	}
	return sortedByNewest(printings)[0]
}

func sortedByNewest(printings []*CardPrinting) []*CardPrinting {
	group := make([]*CardPrinting, len(printings))
	copy(group, printings)
	sort.Slice(group, func(i, j int) bool {
		if !group[i].ReleasedAt.Equal(group[j].ReleasedAt) {
			return group[i].ReleasedAt.After(group[j].ReleasedAt)
		}
		return group[i].PrintingID < group[j].PrintingID
	})
	return group
}
