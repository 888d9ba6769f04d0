package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"
)

// Enumerator provides the full printing table for index builds. The
// sqlite printing repository satisfies it.
type Enumerator interface {
	AllPrintings(ctx context.Context) ([]*CardPrinting, error)
}

// Index is an immutable in-memory snapshot of the catalog: every printing
// grouped under its identity key, with canonical identities materialized
// up front. Scoring and search run against an Index so a mid-request
// ingest can never change the data under them. Index implements Store,
// so the Resolver works over a snapshot exactly as it does over sqlite.
type Index struct {
	byPrinting map[string]*CardPrinting
	byOracle   map[string][]*CardPrinting
	byName     map[string][]*CardPrinting
	byKey      map[IdentityKey][]*CardPrinting
	identities map[IdentityKey]*CardIdentity
	ordered    []*CardIdentity
	builtAt    time.Time
}

// BuildIndex groups printings by identity key and materializes their
// identities. The input is not retained or modified.
func BuildIndex(printings []*CardPrinting) *Index {
	sorted := make([]*CardPrinting, len(printings))
	copy(sorted, printings)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PrintingID < sorted[j].PrintingID
	})

	ix := &Index{
		byPrinting: make(map[string]*CardPrinting, len(sorted)),
		byOracle:   make(map[string][]*CardPrinting),
		byName:     make(map[string][]*CardPrinting),
		byKey:      make(map[IdentityKey][]*CardPrinting),
		identities: make(map[IdentityKey]*CardIdentity),
		builtAt:    time.Now(),
	}

	for _, p := range sorted {
		ix.byPrinting[p.PrintingID] = p
		if p.OracleID != nil && *p.OracleID != "" {
			ix.byOracle[*p.OracleID] = append(ix.byOracle[*p.OracleID], p)
		}
		ix.byName[Normalize(p.Name)] = append(ix.byName[Normalize(p.Name)], p)
		key := keyFor(p)
		ix.byKey[key] = append(ix.byKey[key], p)
	}

	ix.ordered = make([]*CardIdentity, 0, len(ix.byKey))
	for key, group := range ix.byKey {
		identity, err := BuildIdentity(key, group)
		if err != nil {
			continue
		}
		ix.identities[key] = identity
		ix.ordered = append(ix.ordered, identity)
	}
	sort.Slice(ix.ordered, func(i, j int) bool {
		if ix.ordered[i].Name != ix.ordered[j].Name {
			return ix.ordered[i].Name < ix.ordered[j].Name
		}
		return ix.ordered[i].Key < ix.ordered[j].Key
	})

	return ix
}

// LoadIndex builds a snapshot from everything the store holds. A store
// that cannot enumerate printings at all is treated as corrupt.
func LoadIndex(ctx context.Context, enum Enumerator) (*Index, error) {
	printings, err := enum.AllPrintings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerating printings: %v", ErrCorrupt, err)
	}
	return BuildIndex(printings), nil
}

// PrintingByID implements Store.
func (ix *Index) PrintingByID(_ context.Context, printingID string) (*CardPrinting, error) {
	return ix.byPrinting[printingID], nil
}

// PrintingsByOracleID implements Store.
func (ix *Index) PrintingsByOracleID(_ context.Context, oracleID string) ([]*CardPrinting, error) {
	return ix.byOracle[oracleID], nil
}

// PrintingsByName implements Store. The name must already be normalized.
func (ix *Index) PrintingsByName(_ context.Context, normalizedName string) ([]*CardPrinting, error) {
	return ix.byName[normalizedName], nil
}

// PrintingsByIdentityKey implements Store.
func (ix *Index) PrintingsByIdentityKey(_ context.Context, key IdentityKey) ([]*CardPrinting, error) {
	return ix.byKey[key], nil
}

// Identity returns the materialized identity for key.
func (ix *Index) Identity(key IdentityKey) (*CardIdentity, bool) {
	identity, ok := ix.identities[key]
	return identity, ok
}

// Identities returns all identities ordered by name then key. The slice
// is shared and must not be modified.
func (ix *Index) Identities() []*CardIdentity {
	return ix.ordered
}

// NumIdentities returns the number of distinct identities.
func (ix *Index) NumIdentities() int { return len(ix.identities) }

// NumPrintings returns the number of printings.
func (ix *Index) NumPrintings() int { return len(ix.byPrinting) }

// BuiltAt returns when the snapshot was built.
func (ix *Index) BuiltAt() time.Time { return ix.builtAt }

// Holder publishes the current Index. Readers take a consistent snapshot
// with Load; ingest swaps in a fresh build with Swap. The zero state is
// an empty catalog, never nil.
type Holder struct {
	current atomic.Pointer[Index]
}

// NewHolder creates a holder primed with an empty index.
func NewHolder() *Holder {
	h := &Holder{}
	h.current.Store(BuildIndex(nil))
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() *Index {
	return h.current.Load()
}

// Swap publishes a new snapshot.
func (h *Holder) Swap(ix *Index) {
	if ix == nil {
		return
	}
	h.current.Store(ix)
}
