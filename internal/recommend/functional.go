package recommend

import (
	"math"

	"github.com/cardscout/cardscout/internal/catalog"
)

// Weights of the functional-similarity signals. They sum to 1 so the
// combined score stays in [0,1], and a card compared against an exact
// functional twin scores the maximum.
const (
	weightTypeOverlap    = 0.35
	weightManaProximity  = 0.20
	weightColorIdentity  = 0.25
	weightKeywordOverlap = 0.20

	// Mana-value gaps at or beyond this span score zero proximity.
	manaProximitySpan = 6.0
)

// Weights holds the relative contribution of each functional-similarity
// signal. The fields sum to 1.
type Weights struct {
	TypeOverlap    float64 `json:"type_overlap"`
	ManaProximity  float64 `json:"mana_proximity"`
	ColorIdentity  float64 `json:"color_identity"`
	KeywordOverlap float64 `json:"keyword_overlap"`
}

// DefaultWeights is the tuning the functional-similarity scorer ships
// with.
var DefaultWeights = Weights{
	TypeOverlap:    weightTypeOverlap,
	ManaProximity:  weightManaProximity,
	ColorIdentity:  weightColorIdentity,
	KeywordOverlap: weightKeywordOverlap,
}

// FunctionalScorer ranks candidates that fill a similar deck role to the
// source: close in type line, cost, color identity, and keywords.
type FunctionalScorer struct{}

func (FunctionalScorer) Strategy() Strategy { return StrategyFunctionalSimilarity }

func (FunctionalScorer) Score(source, candidate *catalog.CardIdentity) (float64, string) {
	// Factor 1: type line overlap (35% weight)
	typeScore := jaccard(typeTokens(source.TypeLine), typeTokens(candidate.TypeLine))

	// Factor 2: mana value proximity (20% weight)
	gap := math.Abs(source.ManaValue - candidate.ManaValue)
	manaScore := 1 - math.Min(gap, manaProximitySpan)/manaProximitySpan

	// Factor 3: color identity overlap (25% weight)
	colorScore := jaccard(colorSet(source.ColorIdentity), colorSet(candidate.ColorIdentity))

	// Factor 4: keyword overlap (20% weight)
	keywordScore := jaccard(keywordSet(source.Keywords), keywordSet(candidate.Keywords))

	score := typeScore*weightTypeOverlap +
		manaScore*weightManaProximity +
		colorScore*weightColorIdentity +
		keywordScore*weightKeywordOverlap

	return clamp01(score), functionalReason(typeScore, manaScore, colorScore, keywordScore)
}

// functionalReason names the signal that contributed most to the score.
// Ties keep the earlier signal so the phrasing is deterministic.
func functionalReason(typeScore, manaScore, colorScore, keywordScore float64) string {
	best := typeScore * weightTypeOverlap
	reason := "similar card types"
	if c := colorScore * weightColorIdentity; c > best {
		best, reason = c, "matching color identity"
	}
	if k := keywordScore * weightKeywordOverlap; k > best {
		best, reason = k, "shared keywords"
	}
	if m := manaScore * weightManaProximity; m > best {
		reason = "similar mana value"
	}
	return reason
}
