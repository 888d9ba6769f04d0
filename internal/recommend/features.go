package recommend

import (
	"sort"
	"strings"

	"github.com/cardscout/cardscout/internal/catalog"
)

// typeTokens returns the lowercase tokens of a type line with dash and
// face separators dropped, so "Legendary Creature — Human Warrior"
// becomes {legendary, creature, human, warrior}.
func typeTokens(typeLine string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(typeLine)) {
		if field == "—" || field == "-" || field == "//" {
			continue
		}
		tokens[field] = struct{}{}
	}
	return tokens
}

// subtypeTokens returns the lowercase tokens after the dash on each face
// of a type line: the creature types, land types, and other subtypes
// that rules text calls out by name.
func subtypeTokens(typeLine string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, face := range strings.Split(typeLine, "//") {
		parts := strings.Split(face, "—")
		if len(parts) < 2 {
			parts = strings.Split(face, " - ")
		}
		if len(parts) < 2 {
			continue
		}
		for _, field := range strings.Fields(strings.ToLower(parts[1])) {
			tokens[field] = struct{}{}
		}
	}
	return tokens
}

// referenceFeatures returns the tokens of an identity that other cards'
// rules text can call out: its subtypes and its mechanic keywords.
// The result is sorted so downstream iteration is deterministic.
func referenceFeatures(identity *catalog.CardIdentity) []string {
	set := subtypeTokens(identity.TypeLine)
	for _, kw := range identity.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			set[kw] = struct{}{}
		}
	}

	features := make([]string, 0, len(set))
	for token := range set {
		features = append(features, token)
	}
	sort.Strings(features)
	return features
}

// keywordSet lowercases an identity's keyword list into a set.
func keywordSet(keywords []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			set[kw] = struct{}{}
		}
	}
	return set
}

// colorSet converts a color symbol list into a set.
func colorSet(colors []string) map[string]struct{} {
	set := make(map[string]struct{}, len(colors))
	for _, c := range colors {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

// jaccard computes set similarity as |A∩B| / |A∪B|. Two empty sets are
// identical, which keeps a colorless card maximally similar to itself.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}

// overlapCoefficient computes |A∩B| / min(|A|,|B|), reaching 1 when one
// set contains the other.
func overlapCoefficient(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 1
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(intersection) / float64(smaller)
}

// mentionsToken reports whether lowercased rules text mentions the token
// as a whole word, tolerating a plural "s".
func mentionsToken(lowerText, token string) bool {
	if lowerText == "" || token == "" {
		return false
	}
	return mentionsWord(lowerText, token) || mentionsWord(lowerText, token+"s")
}

func mentionsWord(text, word string) bool {
	for i := 0; i+len(word) <= len(text); {
		j := strings.Index(text[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		i = start + 1
	}
	return false
}

func isWordChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '\''
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
