package catalog

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Store is the catalog lookup surface the resolver needs. The sqlite
// printing repository satisfies it.
type Store interface {
	PrintingByID(ctx context.Context, printingID string) (*CardPrinting, error)
	PrintingsByOracleID(ctx context.Context, oracleID string) ([]*CardPrinting, error)
	PrintingsByName(ctx context.Context, normalizedName string) ([]*CardPrinting, error)
	PrintingsByIdentityKey(ctx context.Context, key IdentityKey) ([]*CardPrinting, error)
}

// Resolver maps printing references to identity keys and materializes
// canonical identities. Resolution is deterministic: the same catalog state
// and the same reference always produce the same key.
type Resolver struct {
	store Store
	log   *zap.Logger
}

func NewResolver(store Store, log *zap.Logger) *Resolver {
	return &Resolver{
		store: store,
		log:   log.With(zap.String("component", "resolver")),
	}
}

// Resolve maps a printing reference to its identity key. References are
// tried most specific first: printing ID, then oracle ID, then exact
// (case-insensitive) name. Returns ErrNotFound when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, ref PrintingRef) (IdentityKey, error) {
	switch {
	case ref.PrintingID != "":
		p, err := r.store.PrintingByID(ctx, ref.PrintingID)
		if err != nil {
			return "", fmt.Errorf("resolve printing %q: %w", ref.PrintingID, err)
		}
		if p == nil {
			return "", fmt.Errorf("resolve printing %q: %w", ref.PrintingID, ErrNotFound)
		}
		return keyFor(p), nil

	case ref.OracleID != "":
		printings, err := r.store.PrintingsByOracleID(ctx, ref.OracleID)
		if err != nil {
			return "", fmt.Errorf("resolve oracle %q: %w", ref.OracleID, err)
		}
		if len(printings) == 0 {
			return "", fmt.Errorf("resolve oracle %q: %w", ref.OracleID, ErrNotFound)
		}
		return IdentityKey(oracleKeyPrefix + ref.OracleID), nil

	case ref.Name != "":
		printings, err := r.store.PrintingsByName(ctx, Normalize(ref.Name))
		if err != nil {
			return "", fmt.Errorf("resolve name %q: %w", ref.Name, err)
		}
		if len(printings) == 0 {
			return "", fmt.Errorf("resolve name %q: %w", ref.Name, ErrNotFound)
		}

		keys := distinctKeys(printings)
		if len(keys) > 1 {
			// Distinct identities sharing a name. Pick the smallest
			// key so repeated calls agree.
			r.log.Warn("ambiguous name resolution",
				zap.String("name", ref.Name),
				zap.Int("identities", len(keys)))
		}
		return keys[0], nil

	default:
		return "", fmt.Errorf("resolve: empty reference: %w", ErrNotFound)
	}
}

// Identity loads the printing group for key and materializes its canonical
// identity. Returns ErrNotFound for keys with no printings.
func (r *Resolver) Identity(ctx context.Context, key IdentityKey) (*CardIdentity, error) {
	printings, err := r.store.PrintingsByIdentityKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load identity %q: %w", key, err)
	}
	if len(printings) == 0 {
		return nil, fmt.Errorf("load identity %q: %w", key, ErrNotFound)
	}
	return BuildIdentity(key, printings)
}

// Lookup resolves a reference and materializes its identity in one step.
func (r *Resolver) Lookup(ctx context.Context, ref PrintingRef) (*CardIdentity, error) {
	key, err := r.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return r.Identity(ctx, key)
}

// Printings returns the full printing group behind a key, newest first.
func (r *Resolver) Printings(ctx context.Context, key IdentityKey) ([]*CardPrinting, error) {
	printings, err := r.store.PrintingsByIdentityKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load printings %q: %w", key, err)
	}
	if len(printings) == 0 {
		return nil, fmt.Errorf("load printings %q: %w", key, ErrNotFound)
	}
	sort.Slice(printings, func(i, j int) bool {
		if !printings[i].ReleasedAt.Equal(printings[j].ReleasedAt) {
			return printings[i].ReleasedAt.After(printings[j].ReleasedAt)
		}
		return printings[i].PrintingID < printings[j].PrintingID
	})
	return printings, nil
}

func keyFor(p *CardPrinting) IdentityKey {
	if p.IdentityKey != "" {
		return p.IdentityKey
	}
	return DeriveKey(p)
}

func distinctKeys(printings []*CardPrinting) []IdentityKey {
	seen := make(map[IdentityKey]struct{}, len(printings))
	keys := make([]IdentityKey, 0, len(printings))
	for _, p := range printings {
		k := keyFor(p)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
