package recommend

import (
	"math"
	"strings"
	"testing"

	"github.com/cardscout/cardscout/internal/catalog"
)

func testIdentity(key, name, typeLine, text string, mv float64, colors []string, keywords ...string) *catalog.CardIdentity {
	return &catalog.CardIdentity{
		Key:           catalog.IdentityKey(key),
		Name:          name,
		TypeLine:      typeLine,
		ManaValue:     mv,
		Colors:        colors,
		ColorIdentity: colors,
		OracleText:    text,
		Keywords:      keywords,
	}
}

func TestFunctionalScoreIdenticalTwin(t *testing.T) {
	source := testIdentity("oracle:a", "Lightning Bolt", "Instant", "Lightning Bolt deals 3 damage to any target.", 1, []string{"R"})
	twin := testIdentity("oracle:b", "Lightning Strike", "Instant", "Lightning Strike deals 3 damage to any target.", 1, []string{"R"})

	score, _ := FunctionalScorer{}.Score(source, twin)
	if score < 0.999 || score > 1 {
		t.Errorf("identical twin scored %v, want the maximum", score)
	}
}

func TestFunctionalScorePrefersSameColors(t *testing.T) {
	source := testIdentity("oracle:a", "Lightning Bolt", "Instant", "", 1, []string{"R"})
	sameColor := testIdentity("oracle:b", "Shock", "Instant", "", 1, []string{"R"})
	offColor := testIdentity("oracle:c", "Giant Growth", "Instant", "", 1, []string{"G"})

	same, _ := FunctionalScorer{}.Score(source, sameColor)
	off, _ := FunctionalScorer{}.Score(source, offColor)
	if same <= off {
		t.Errorf("same-color candidate scored %v, off-color %v; want same-color higher", same, off)
	}
}

func TestFunctionalManaProximity(t *testing.T) {
	source := testIdentity("oracle:a", "Source", "Instant", "", 2, []string{"R"})

	tests := []struct {
		name string
		mv   float64
		want float64
	}{
		{"equal cost", 2, 1.0},
		{"three apart", 5, 0.9},
		{"at the span", 8, 0.8},
		{"beyond the span", 12, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := testIdentity("oracle:b", "Candidate", "Instant", "", tt.mv, []string{"R"})
			score, _ := FunctionalScorer{}.Score(source, candidate)
			if math.Abs(score-tt.want) > 1e-9 {
				t.Errorf("mana value %v scored %v, want %v", tt.mv, score, tt.want)
			}
		})
	}
}

func TestFunctionalReasonNamesDominantSignal(t *testing.T) {
	source := testIdentity("oracle:a", "Source", "Creature — Elf Druid", "", 2, []string{"G"})

	sameTypes := testIdentity("oracle:b", "Off Color Elf", "Creature — Elf Druid", "", 2, []string{"B"})
	_, reason := FunctionalScorer{}.Score(source, sameTypes)
	if reason != "similar card types" {
		t.Errorf("reason = %q, want type overlap to dominate", reason)
	}

	sameColors := testIdentity("oracle:c", "Green Instant", "Instant", "", 2, []string{"G"})
	_, reason = FunctionalScorer{}.Score(source, sameColors)
	if reason != "matching color identity" {
		t.Errorf("reason = %q, want color identity to dominate", reason)
	}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	sum := DefaultWeights.TypeOverlap + DefaultWeights.ManaProximity +
		DefaultWeights.ColorIdentity + DefaultWeights.KeywordOverlap
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("weights sum to %v, want 1", sum)
	}
}

func TestFunctionalScoreBounds(t *testing.T) {
	source := testIdentity("oracle:a", "Source", "Legendary Creature — Human Wizard", "Draw a card.", 3, []string{"U", "R"}, "Flying")
	candidates := []*catalog.CardIdentity{
		testIdentity("oracle:b", "Twin", "Legendary Creature — Human Wizard", "Draw a card.", 3, []string{"U", "R"}, "Flying"),
		testIdentity("oracle:c", "Opposite", "Land", "", 0, nil),
		testIdentity("oracle:d", "Expensive", "Sorcery", "Destroy all creatures.", 15, []string{"W", "B"}),
	}
	for _, candidate := range candidates {
		score, _ := FunctionalScorer{}.Score(source, candidate)
		if score < 0 || score > 1 {
			t.Errorf("score for %s = %v, want within [0,1]", candidate.Name, score)
		}
	}
}

func TestSynergyRewardsTribalPayoff(t *testing.T) {
	source := testIdentity("oracle:a", "Hamlet Captain",
		"Creature — Human Cleric",
		"Whenever a Human enters the battlefield, draw a card.", 2, []string{"W"})
	human := testIdentity("oracle:b", "Thraben Militia", "Creature — Human Soldier", "", 2, []string{"W"})
	bear := testIdentity("oracle:c", "Runeclaw Bear", "Creature — Bear", "", 2, []string{"W"})

	humanScore, reason := SynergyScorer{}.Score(source, human)
	bearScore, _ := SynergyScorer{}.Score(source, bear)

	if humanScore <= bearScore {
		t.Errorf("referenced creature type scored %v, unreferenced %v; want referenced higher", humanScore, bearScore)
	}
	if !strings.Contains(reason, "human") {
		t.Errorf("reason = %q, want it to name the matched type", reason)
	}
}

func TestSynergyLooksBothWays(t *testing.T) {
	angel := testIdentity("oracle:a", "Serra Angel", "Creature — Angel", "", 5, []string{"W"}, "Flying", "Vigilance")
	payoff := testIdentity("oracle:b", "Angelic Accord", "Enchantment", "Angels you control get +1/+1.", 4, []string{"W"})
	blank := testIdentity("oracle:c", "Blank Slate", "Enchantment", "", 4, []string{"W"})

	payoffScore, reason := SynergyScorer{}.Score(angel, payoff)
	blankScore, _ := SynergyScorer{}.Score(angel, blank)

	if payoffScore <= blankScore {
		t.Errorf("payoff referencing the source scored %v, blank %v; want payoff higher", payoffScore, blankScore)
	}
	if !strings.Contains(reason, "angel") {
		t.Errorf("reason = %q, want it to name the matched type", reason)
	}
}

func TestSynergyColorCompatibility(t *testing.T) {
	tests := []struct {
		name      string
		source    []string
		candidate []string
		want      float64
	}{
		{"colorless fits anywhere", nil, []string{"R"}, 1},
		{"same color", []string{"W"}, []string{"W"}, 1},
		{"candidate inside source", []string{"W", "U"}, []string{"W"}, 1},
		{"disjoint", []string{"W"}, []string{"U"}, 0},
		{"partial overlap", []string{"W", "U"}, []string{"U", "B"}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := colorCompatibility(tt.source, tt.candidate)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("colorCompatibility(%v, %v) = %v, want %v", tt.source, tt.candidate, got, tt.want)
			}
		})
	}
}

func TestSynergyScoreBounds(t *testing.T) {
	source := testIdentity("oracle:a", "Sliver Legion", "Legendary Creature — Sliver",
		"All Sliver creatures get +1/+1 for each other Sliver on the battlefield.", 5,
		[]string{"W", "U", "B", "R", "G"})
	candidates := []*catalog.CardIdentity{
		testIdentity("oracle:b", "Muscle Sliver", "Creature — Sliver", "All Sliver creatures get +1/+1.", 2, []string{"G"}),
		testIdentity("oracle:c", "Island", "Basic Land — Island", "", 0, nil),
	}
	for _, candidate := range candidates {
		score, _ := SynergyScorer{}.Score(source, candidate)
		if score < 0 || score > 1 {
			t.Errorf("score for %s = %v, want within [0,1]", candidate.Name, score)
		}
	}
}

func TestSynergyNoFeaturesFallsBackToColors(t *testing.T) {
	source := testIdentity("oracle:a", "Plain Instant", "Instant", "", 1, []string{"W"})
	candidate := testIdentity("oracle:b", "Plain Sorcery", "Sorcery", "", 2, []string{"W"})

	score, reason := SynergyScorer{}.Score(source, candidate)
	if math.Abs(score-weightColorCompatibility) > 1e-9 {
		t.Errorf("score = %v, want color term only (%v)", score, weightColorCompatibility)
	}
	if reason != "compatible color identity" {
		t.Errorf("reason = %q", reason)
	}
}

func TestMentionsToken(t *testing.T) {
	tests := []struct {
		text  string
		token string
		want  bool
	}{
		{"whenever a human enters the battlefield", "human", true},
		{"humans you control get +1/+1", "human", true},
		{"target inhuman horror", "human", false},
		{"ward 2", "ward", true},
		{"forward march", "ward", false},
		{"", "human", false},
		{"any text", "", false},
	}
	for _, tt := range tests {
		if got := mentionsToken(tt.text, tt.token); got != tt.want {
			t.Errorf("mentionsToken(%q, %q) = %v, want %v", tt.text, tt.token, got, tt.want)
		}
	}
}

func TestTypeTokens(t *testing.T) {
	tokens := typeTokens("Legendary Creature — Human Warrior")
	for _, want := range []string{"legendary", "creature", "human", "warrior"} {
		if _, ok := tokens[want]; !ok {
			t.Errorf("missing token %q", want)
		}
	}
	if _, ok := tokens["—"]; ok {
		t.Error("dash separator leaked into the token set")
	}
}

func TestSubtypeTokens(t *testing.T) {
	tests := []struct {
		typeLine string
		want     []string
	}{
		{"Creature — Human Soldier", []string{"human", "soldier"}},
		{"Instant", nil},
		{"Creature — Human Werewolf // Creature — Werewolf", []string{"human", "werewolf"}},
		{"Basic Land - Island", []string{"island"}},
	}
	for _, tt := range tests {
		tokens := subtypeTokens(tt.typeLine)
		if len(tokens) != len(tt.want) {
			t.Errorf("subtypeTokens(%q) has %d tokens, want %d", tt.typeLine, len(tokens), len(tt.want))
		}
		for _, w := range tt.want {
			if _, ok := tokens[w]; !ok {
				t.Errorf("subtypeTokens(%q) missing %q", tt.typeLine, w)
			}
		}
	}
}

func TestJaccard(t *testing.T) {
	empty := map[string]struct{}{}
	ab := map[string]struct{}{"a": {}, "b": {}}
	bc := map[string]struct{}{"b": {}, "c": {}}

	if got := jaccard(empty, empty); got != 1 {
		t.Errorf("jaccard of two empty sets = %v, want 1", got)
	}
	if got := jaccard(ab, empty); got != 0 {
		t.Errorf("jaccard against one empty set = %v, want 0", got)
	}
	if got := jaccard(ab, bc); math.Abs(got-1.0/3.0) > 1e-9 {
		t.Errorf("jaccard(ab, bc) = %v, want 1/3", got)
	}
	if got := jaccard(ab, ab); got != 1 {
		t.Errorf("jaccard of equal sets = %v, want 1", got)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"synergy", StrategySynergy, false},
		{"functional_similarity", StrategyFunctionalSimilarity, false},
		{"", StrategySynergy, false},
		{"vibes", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseStrategy(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseStrategy(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseStrategy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
