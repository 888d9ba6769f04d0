package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// memStore is an in-memory Store for resolver tests.
type memStore struct {
	printings []*CardPrinting
}

func (m *memStore) PrintingByID(_ context.Context, printingID string) (*CardPrinting, error) {
	for _, p := range m.printings {
		if p.PrintingID == printingID {
			return p, nil
		}
	}
	return nil, nil
}

func (m *memStore) PrintingsByOracleID(_ context.Context, oracleID string) ([]*CardPrinting, error) {
	var out []*CardPrinting
	for _, p := range m.printings {
		if p.OracleID != nil && *p.OracleID == oracleID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) PrintingsByName(_ context.Context, normalizedName string) ([]*CardPrinting, error) {
	var out []*CardPrinting
	for _, p := range m.printings {
		if Normalize(p.Name) == normalizedName {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) PrintingsByIdentityKey(_ context.Context, key IdentityKey) ([]*CardPrinting, error) {
	var out []*CardPrinting
	for _, p := range m.printings {
		if keyFor(p) == key {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestResolver(printings ...*CardPrinting) *Resolver {
	return NewResolver(&memStore{printings: printings}, zap.NewNop())
}

func TestResolver_ResolveByPrintingID(t *testing.T) {
	bolt := testPrinting("p-bolt", "Lightning Bolt", "Lightning Bolt deals 3 damage to any target.", strPtr("oracle-bolt"))
	r := newTestResolver(bolt)

	key, err := r.Resolve(context.Background(), PrintingRef{PrintingID: "p-bolt"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if key != "oracle:oracle-bolt" {
		t.Errorf("Resolve() = %q, want oracle:oracle-bolt", key)
	}
}

func TestResolver_ResolveByOracleID(t *testing.T) {
	bolt := testPrinting("p-bolt", "Lightning Bolt", "Lightning Bolt deals 3 damage to any target.", strPtr("oracle-bolt"))
	r := newTestResolver(bolt)

	key, err := r.Resolve(context.Background(), PrintingRef{OracleID: "oracle-bolt"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if key != "oracle:oracle-bolt" {
		t.Errorf("Resolve() = %q, want oracle:oracle-bolt", key)
	}
}

func TestResolver_ResolveByName(t *testing.T) {
	bolt := testPrinting("p-bolt", "Lightning Bolt", "Lightning Bolt deals 3 damage to any target.", strPtr("oracle-bolt"))
	r := newTestResolver(bolt)

	key, err := r.Resolve(context.Background(), PrintingRef{Name: "lightning  BOLT"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if key != "oracle:oracle-bolt" {
		t.Errorf("Resolve() = %q, want oracle:oracle-bolt", key)
	}
}

func TestResolver_ResolveAmbiguousNameIsDeterministic(t *testing.T) {
	// Two distinct identities sharing a name; resolution must always pick
	// the same one regardless of store order.
	a := testPrinting("p-a", "Giant Growth", "Target creature gets +3/+3 until end of turn.", strPtr("oracle-a"))
	b := testPrinting("p-b", "Giant Growth", "Target creature gets +4/+4 until end of turn.", strPtr("oracle-b"))

	k1, err := newTestResolver(a, b).Resolve(context.Background(), PrintingRef{Name: "Giant Growth"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	k2, err := newTestResolver(b, a).Resolve(context.Background(), PrintingRef{Name: "Giant Growth"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if k1 != k2 {
		t.Errorf("ambiguous name resolution depends on store order: %q vs %q", k1, k2)
	}
}

func TestResolver_NotFound(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name string
		ref  PrintingRef
	}{
		{"unknown printing id", PrintingRef{PrintingID: "p-missing"}},
		{"unknown oracle id", PrintingRef{OracleID: "oracle-missing"}},
		{"unknown name", PrintingRef{Name: "Storm Crow"}},
		{"empty reference", PrintingRef{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tt.ref)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Resolve() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestResolver_IdentityMergesPrintings(t *testing.T) {
	old := testPrinting("p-lea", "Lightning Bolt", "Lightning Bolt deals 3 damage to any target.", strPtr("oracle-bolt"))
	recent := testPrinting("p-m10", "Lightning Bolt", "Lightning Bolt deals 3 damage to any target.", strPtr("oracle-bolt"))
	recent.SetCode = "M10"
	recent.Rarity = "uncommon"
	recent.ReleasedAt = time.Date(2009, 7, 17, 0, 0, 0, 0, time.UTC)

	r := newTestResolver(old, recent)

	identity, err := r.Identity(context.Background(), "oracle:oracle-bolt")
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}
	if identity.Name != "Lightning Bolt" {
		t.Errorf("Name = %q, want Lightning Bolt", identity.Name)
	}
	if identity.Rarity != "uncommon" {
		t.Errorf("Rarity = %q, want the newest printing's uncommon", identity.Rarity)
	}
}

func TestResolver_LookupDeduplicatesMissingOracleIDs(t *testing.T) {
	// The historical duplicate-result defect: two printings of the same
	// card, neither with an oracle ID. They must resolve to one identity.
	promo := testPrinting("p-promo", "Lightning Bolt", "Lightning Bolt deals 3 damage to any target.", nil)
	judge := testPrinting("p-judge", "Lightning Bolt", "Lightning Bolt deals 3 damage to any target.", nil)
	judge.SetCode = "JGP"

	r := newTestResolver(promo, judge)

	identity, err := r.Lookup(context.Background(), PrintingRef{Name: "Lightning Bolt"})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	printings, err := r.Printings(context.Background(), identity.Key)
	if err != nil {
		t.Fatalf("Printings() error = %v", err)
	}
	if len(printings) != 2 {
		t.Errorf("Printings() returned %d printings, want both under one identity", len(printings))
	}
}

func TestResolver_PrintingsNewestFirst(t *testing.T) {
	old := testPrinting("p-lea", "Lightning Bolt", "Lightning Bolt deals 3 damage to any target.", strPtr("oracle-bolt"))
	recent := testPrinting("p-m10", "Lightning Bolt", "Lightning Bolt deals 3 damage to any target.", strPtr("oracle-bolt"))
	recent.ReleasedAt = time.Date(2009, 7, 17, 0, 0, 0, 0, time.UTC)

	r := newTestResolver(old, recent)

	printings, err := r.Printings(context.Background(), "oracle:oracle-bolt")
	if err != nil {
		t.Fatalf("Printings() error = %v", err)
	}
	if printings[0].PrintingID != "p-m10" {
		t.Errorf("Printings()[0] = %q, want the newest printing p-m10", printings[0].PrintingID)
	}
}
