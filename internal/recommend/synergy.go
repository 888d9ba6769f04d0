package recommend

import (
	"sort"
	"strings"

	"github.com/cardscout/cardscout/internal/catalog"
)

// Weights of the synergy signals. Cross-references in rules text carry
// most of the score; color compatibility keeps the list playable.
const (
	weightCrossReference     = 0.75
	weightColorCompatibility = 0.25

	// reasonTokenLimit caps how many matched tokens the reason names.
	reasonTokenLimit = 3
)

// SynergyScorer ranks candidates that work together with the source.
// It looks both ways: tribal payoffs that reward the source's creature
// types score just as well as creatures that feed the source's payoff.
type SynergyScorer struct{}

func (SynergyScorer) Strategy() Strategy { return StrategySynergy }

func (SynergyScorer) Score(source, candidate *catalog.CardIdentity) (float64, string) {
	sourceFeatures := referenceFeatures(source)
	candidateFeatures := referenceFeatures(candidate)

	sourceText := strings.ToLower(source.OracleText)
	candidateText := strings.ToLower(candidate.OracleText)

	// Factor 1: cross-reference density (75% weight). Count how many of
	// the candidate's types and keywords the source's text mentions, and
	// the reverse, over the total features checked in both directions.
	referenced := 0
	total := len(sourceFeatures) + len(candidateFeatures)
	matched := make(map[string]struct{})

	for _, feature := range candidateFeatures {
		if mentionsToken(sourceText, feature) {
			referenced++
			matched[feature] = struct{}{}
		}
	}
	for _, feature := range sourceFeatures {
		if mentionsToken(candidateText, feature) {
			referenced++
			matched[feature] = struct{}{}
		}
	}

	crossScore := 0.0
	if total > 0 {
		crossScore = float64(referenced) / float64(total)
	}

	// Factor 2: color compatibility (25% weight)
	colorScore := colorCompatibility(source.ColorIdentity, candidate.ColorIdentity)

	score := crossScore*weightCrossReference + colorScore*weightColorCompatibility
	return clamp01(score), synergyReason(matched, crossScore, colorScore)
}

// colorCompatibility measures whether two cards fit the same deck's
// colors. A colorless card fits anywhere; otherwise the overlap
// coefficient rewards one identity containing the other.
func colorCompatibility(source, candidate []string) float64 {
	a, b := colorSet(source), colorSet(candidate)
	if len(a) == 0 || len(b) == 0 {
		return 1
	}
	return overlapCoefficient(a, b)
}

// synergyReason names the matched tokens when rules text lines up, and
// falls back to color fit when it does not.
func synergyReason(matched map[string]struct{}, crossScore, colorScore float64) string {
	if len(matched) > 0 {
		tokens := make([]string, 0, len(matched))
		for token := range matched {
			tokens = append(tokens, token)
		}
		sort.Strings(tokens)
		if len(tokens) > reasonTokenLimit {
			tokens = tokens[:reasonTokenLimit]
		}
		return "rules text cross-references " + strings.Join(tokens, ", ")
	}
	if colorScore >= 1 {
		return "compatible color identity"
	}
	if crossScore == 0 && colorScore == 0 {
		return "no direct synergy found"
	}
	return "partial color overlap"
}
