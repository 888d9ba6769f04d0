package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Set represents a card set in the catalog.
type Set struct {
	Code        string
	Name        string
	ReleasedAt  *string // Date when the set was released (may be NULL for unreleased sets)
	CardCount   *int    // Number of cards in the set (may be NULL)
	SetType     *string // Type of set (may be NULL)
	IconSVGURI  *string // URL to the set symbol SVG (may be NULL)
	LastUpdated *time.Time
}

// SetRepository provides access to the sets table.
type SetRepository interface {
	// SaveSet saves or updates a set.
	SaveSet(ctx context.Context, set *Set) error

	// GetSet retrieves a set by its code. Returns nil when unknown.
	GetSet(ctx context.Context, code string) (*Set, error)

	// AllSets retrieves all sets ordered by release date (newest first).
	AllSets(ctx context.Context) ([]*Set, error)
}

type setRepository struct {
	db *sql.DB
}

// NewSetRepository creates a new set repository.
func NewSetRepository(db *sql.DB) SetRepository {
	return &setRepository{db: db}
}

// SaveSet saves or updates a set.
func (r *setRepository) SaveSet(ctx context.Context, set *Set) error {
	query := `
		INSERT INTO sets (
			code, name, released_at, card_count, set_type, icon_svg_uri, last_updated
		) VALUES (
			?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP
		)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			released_at = excluded.released_at,
			card_count = excluded.card_count,
			set_type = excluded.set_type,
			icon_svg_uri = excluded.icon_svg_uri,
			last_updated = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(ctx, query,
		set.Code, set.Name, set.ReleasedAt, set.CardCount, set.SetType, set.IconSVGURI,
	)
	if err != nil {
		return fmt.Errorf("failed to save set: %w", err)
	}

	return nil
}

// GetSet retrieves a set by its code.
func (r *setRepository) GetSet(ctx context.Context, code string) (*Set, error) {
	query := `
		SELECT code, name, released_at, card_count, set_type, icon_svg_uri, last_updated
		FROM sets
		WHERE code = ?
	`

	var set Set
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&set.Code, &set.Name, &set.ReleasedAt, &set.CardCount, &set.SetType,
		&set.IconSVGURI, &set.LastUpdated,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get set: %w", err)
	}

	return &set, nil
}

// AllSets retrieves all sets ordered by release date (newest first).
func (r *setRepository) AllSets(ctx context.Context) ([]*Set, error) {
	query := `
		SELECT code, name, released_at, card_count, set_type, icon_svg_uri, last_updated
		FROM sets
		ORDER BY released_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sets []*Set
	for rows.Next() {
		var set Set
		err := rows.Scan(
			&set.Code, &set.Name, &set.ReleasedAt, &set.CardCount, &set.SetType,
			&set.IconSVGURI, &set.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan set: %w", err)
		}
		sets = append(sets, &set)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sets: %w", err)
	}

	return sets, nil
}
