// Package recommend scores catalog identities against a source card and
// returns ranked, filtered recommendation lists.
package recommend

import (
	"errors"
	"fmt"

	"github.com/cardscout/cardscout/internal/catalog"
)

// ErrInvalidStrategy is returned when a request names a scoring strategy
// that does not exist.
var ErrInvalidStrategy = errors.New("invalid recommendation strategy")

// Strategy selects how candidate cards are scored against the source.
type Strategy string

const (
	// StrategySynergy ranks cards that work well together with the
	// source, driven by cross-references in rules text.
	StrategySynergy Strategy = "synergy"

	// StrategyFunctionalSimilarity ranks cards that play a similar role
	// to the source, driven by type, cost, color, and keyword overlap.
	StrategyFunctionalSimilarity Strategy = "functional_similarity"
)

// ParseStrategy maps a request string onto a known strategy. The empty
// string defaults to synergy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategySynergy, "":
		return StrategySynergy, nil
	case StrategyFunctionalSimilarity:
		return StrategyFunctionalSimilarity, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
	}
}

// Scorer computes how strongly a candidate relates to a source card.
// Scores are in [0,1] and come with a short human-readable reason.
type Scorer interface {
	Strategy() Strategy
	Score(source, candidate *catalog.CardIdentity) (float64, string)
}

// ScorerFor returns the scorer implementing the given strategy.
func ScorerFor(strategy Strategy) (Scorer, error) {
	switch strategy {
	case StrategySynergy:
		return SynergyScorer{}, nil
	case StrategyFunctionalSimilarity:
		return FunctionalScorer{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, strategy)
	}
}
