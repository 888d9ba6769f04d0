package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cardscout/cardscout/internal/catalog"
)

// PrintingRepository provides access to the printings table. It satisfies
// catalog.Store, so the identity resolver can run directly against it.
type PrintingRepository interface {
	// SavePrinting saves or updates a single printing.
	SavePrinting(ctx context.Context, p *catalog.CardPrinting) error

	// SavePrintings saves multiple printings in one transaction.
	SavePrintings(ctx context.Context, printings []*catalog.CardPrinting) error

	// PrintingByID retrieves a printing by its feed ID. Returns nil when
	// the printing is not in the catalog.
	PrintingByID(ctx context.Context, printingID string) (*catalog.CardPrinting, error)

	// PrintingsByOracleID retrieves all printings sharing an oracle ID.
	PrintingsByOracleID(ctx context.Context, oracleID string) ([]*catalog.CardPrinting, error)

	// PrintingsByName retrieves all printings with the given normalized name.
	PrintingsByName(ctx context.Context, normalizedName string) ([]*catalog.CardPrinting, error)

	// PrintingsByIdentityKey retrieves the printing group behind one identity.
	PrintingsByIdentityKey(ctx context.Context, key catalog.IdentityKey) ([]*catalog.CardPrinting, error)

	// AllPrintings retrieves the whole catalog, for snapshot builds.
	AllPrintings(ctx context.Context) ([]*catalog.CardPrinting, error)

	// StalePrintings retrieves printings not refreshed within olderThan,
	// oldest first, up to limit.
	StalePrintings(ctx context.Context, olderThan time.Duration, limit int) ([]*catalog.CardPrinting, error)

	// UpdateRefreshables updates price and legalities for one printing.
	UpdateRefreshables(ctx context.Context, printingID string, priceUSD *float64, legalities map[string]string) error

	// CountPrintings returns the number of printings in the catalog.
	CountPrintings(ctx context.Context) (int, error)

	// CountIdentities returns the number of distinct identity keys.
	CountIdentities(ctx context.Context) (int, error)

	// DeleteAll removes every printing, ahead of a full re-import.
	DeleteAll(ctx context.Context) error
}

type printingRepository struct {
	db *sql.DB
}

// NewPrintingRepository creates a new printing repository.
func NewPrintingRepository(db *sql.DB) PrintingRepository {
	return &printingRepository{db: db}
}

const printingColumns = `
	printing_id, oracle_id, identity_key, name, name_normalized, type_line,
	mana_cost, mana_value, colors, color_identity, keywords, rarity,
	oracle_text, layout, image_uris, card_faces, set_code, set_name,
	collector_number, released_at, price_usd, legalities, updated_at
`

const upsertPrintingQuery = `
	INSERT INTO printings (
		printing_id, oracle_id, identity_key, name, name_normalized, type_line,
		mana_cost, mana_value, colors, color_identity, keywords, rarity,
		oracle_text, layout, image_uris, card_faces, set_code, set_name,
		collector_number, released_at, price_usd, legalities, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(printing_id) DO UPDATE SET
		oracle_id = excluded.oracle_id,
		identity_key = excluded.identity_key,
		name = excluded.name,
		name_normalized = excluded.name_normalized,
		type_line = excluded.type_line,
		mana_cost = excluded.mana_cost,
		mana_value = excluded.mana_value,
		colors = excluded.colors,
		color_identity = excluded.color_identity,
		keywords = excluded.keywords,
		rarity = excluded.rarity,
		oracle_text = excluded.oracle_text,
		layout = excluded.layout,
		image_uris = excluded.image_uris,
		card_faces = excluded.card_faces,
		set_code = excluded.set_code,
		set_name = excluded.set_name,
		collector_number = excluded.collector_number,
		released_at = excluded.released_at,
		price_usd = excluded.price_usd,
		legalities = excluded.legalities,
		updated_at = excluded.updated_at
`

// printingArgs flattens a printing into upsert arguments. JSON columns are
// marshaled here; the identity key falls back to DeriveKey when the caller
// did not resolve it.
func printingArgs(p *catalog.CardPrinting) ([]interface{}, error) {
	key := p.IdentityKey
	if key == "" {
		key = catalog.DeriveKey(p)
	}

	colorsJSON, err := json.Marshal(p.Colors)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal colors: %w", err)
	}
	identityJSON, err := json.Marshal(p.ColorIdentity)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal color identity: %w", err)
	}
	keywordsJSON, err := json.Marshal(p.Keywords)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal keywords: %w", err)
	}

	var imagesJSON, facesJSON, legalitiesJSON sql.NullString
	if p.ImageURIs != nil {
		b, err := json.Marshal(p.ImageURIs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal image uris: %w", err)
		}
		imagesJSON = sql.NullString{String: string(b), Valid: true}
	}
	if len(p.CardFaces) > 0 {
		b, err := json.Marshal(p.CardFaces)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal card faces: %w", err)
		}
		facesJSON = sql.NullString{String: string(b), Valid: true}
	}
	if len(p.Legalities) > 0 {
		b, err := json.Marshal(p.Legalities)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal legalities: %w", err)
		}
		legalitiesJSON = sql.NullString{String: string(b), Valid: true}
	}

	var oracleID sql.NullString
	if p.OracleID != nil && *p.OracleID != "" {
		oracleID = sql.NullString{String: *p.OracleID, Valid: true}
	}

	var releasedAt sql.NullTime
	if !p.ReleasedAt.IsZero() {
		releasedAt = sql.NullTime{Time: p.ReleasedAt.UTC(), Valid: true}
	}

	var priceUSD sql.NullFloat64
	if p.PriceUSD != nil {
		priceUSD = sql.NullFloat64{Float64: *p.PriceUSD, Valid: true}
	}

	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	return []interface{}{
		p.PrintingID,
		oracleID,
		string(key),
		p.Name,
		catalog.Normalize(p.Name),
		p.TypeLine,
		p.ManaCost,
		p.ManaValue,
		string(colorsJSON),
		string(identityJSON),
		string(keywordsJSON),
		p.Rarity,
		p.OracleText,
		p.Layout,
		imagesJSON,
		facesJSON,
		p.SetCode,
		p.SetName,
		p.CollectorNumber,
		releasedAt,
		priceUSD,
		legalitiesJSON,
		updatedAt,
	}, nil
}

// SavePrinting saves or updates a single printing.
func (r *printingRepository) SavePrinting(ctx context.Context, p *catalog.CardPrinting) error {
	args, err := printingArgs(p)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, upsertPrintingQuery, args...); err != nil {
		return fmt.Errorf("failed to save printing %s: %w", p.PrintingID, err)
	}
	return nil
}

// SavePrintings saves multiple printings in one transaction.
func (r *printingRepository) SavePrintings(ctx context.Context, printings []*catalog.CardPrinting) error {
	if len(printings) == 0 {
		return nil
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertPrintingQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer func() {
			_ = stmt.Close()
		}()

		for _, p := range printings {
			args, err := printingArgs(p)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("failed to save printing %s: %w", p.PrintingID, err)
			}
		}
		return nil
	})
}

// PrintingByID retrieves a printing by its feed ID.
func (r *printingRepository) PrintingByID(ctx context.Context, printingID string) (*catalog.CardPrinting, error) {
	query := `SELECT ` + printingColumns + ` FROM printings WHERE printing_id = ?`

	p, err := scanPrinting(r.db.QueryRowContext(ctx, query, printingID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get printing %s: %w", printingID, err)
	}
	return p, nil
}

// PrintingsByOracleID retrieves all printings sharing an oracle ID.
func (r *printingRepository) PrintingsByOracleID(ctx context.Context, oracleID string) ([]*catalog.CardPrinting, error) {
	query := `SELECT ` + printingColumns + ` FROM printings WHERE oracle_id = ? ORDER BY printing_id`
	return r.queryPrintings(ctx, query, oracleID)
}

// PrintingsByName retrieves all printings with the given normalized name.
func (r *printingRepository) PrintingsByName(ctx context.Context, normalizedName string) ([]*catalog.CardPrinting, error) {
	query := `SELECT ` + printingColumns + ` FROM printings WHERE name_normalized = ? ORDER BY printing_id`
	return r.queryPrintings(ctx, query, normalizedName)
}

// PrintingsByIdentityKey retrieves the printing group behind one identity.
func (r *printingRepository) PrintingsByIdentityKey(ctx context.Context, key catalog.IdentityKey) ([]*catalog.CardPrinting, error) {
	query := `SELECT ` + printingColumns + ` FROM printings WHERE identity_key = ? ORDER BY printing_id`
	return r.queryPrintings(ctx, query, string(key))
}

// AllPrintings retrieves the whole catalog, for snapshot builds.
func (r *printingRepository) AllPrintings(ctx context.Context) ([]*catalog.CardPrinting, error) {
	query := `SELECT ` + printingColumns + ` FROM printings ORDER BY printing_id`
	return r.queryPrintings(ctx, query)
}

// StalePrintings retrieves printings not refreshed within olderThan.
func (r *printingRepository) StalePrintings(ctx context.Context, olderThan time.Duration, limit int) ([]*catalog.CardPrinting, error) {
	seconds := int64(olderThan.Seconds())

	query := `SELECT ` + printingColumns + `
		FROM printings
		WHERE unixepoch(updated_at) <= unixepoch('now', '-' || ? || ' seconds')
		ORDER BY updated_at ASC
		LIMIT ?`

	return r.queryPrintings(ctx, query, seconds, limit)
}

// UpdateRefreshables updates price and legalities for one printing.
func (r *printingRepository) UpdateRefreshables(ctx context.Context, printingID string, priceUSD *float64, legalities map[string]string) error {
	var price sql.NullFloat64
	if priceUSD != nil {
		price = sql.NullFloat64{Float64: *priceUSD, Valid: true}
	}

	var legalitiesJSON sql.NullString
	if len(legalities) > 0 {
		b, err := json.Marshal(legalities)
		if err != nil {
			return fmt.Errorf("failed to marshal legalities: %w", err)
		}
		legalitiesJSON = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		UPDATE printings
		SET price_usd = ?, legalities = ?, updated_at = ?
		WHERE printing_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, price, legalitiesJSON, time.Now().UTC(), printingID)
	if err != nil {
		return fmt.Errorf("failed to update printing %s: %w", printingID, err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("update printing %s: %w", printingID, catalog.ErrNotFound)
	}
	return nil
}

// CountPrintings returns the number of printings in the catalog.
func (r *printingRepository) CountPrintings(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM printings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count printings: %w", err)
	}
	return count, nil
}

// CountIdentities returns the number of distinct identity keys.
func (r *printingRepository) CountIdentities(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT identity_key) FROM printings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count identities: %w", err)
	}
	return count, nil
}

// DeleteAll removes every printing, ahead of a full re-import.
func (r *printingRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM printings`); err != nil {
		return fmt.Errorf("failed to delete printings: %w", err)
	}
	return nil
}

func (r *printingRepository) queryPrintings(ctx context.Context, query string, args ...interface{}) ([]*catalog.CardPrinting, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query printings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var printings []*catalog.CardPrinting
	for rows.Next() {
		p, err := scanPrinting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan printing: %w", err)
		}
		printings = append(printings, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating printings: %w", err)
	}
	return printings, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrinting(row rowScanner) (*catalog.CardPrinting, error) {
	var (
		p              catalog.CardPrinting
		oracleID       sql.NullString
		identityKey    string
		nameNormalized string
		colorsJSON     string
		identityJSON   string
		keywordsJSON   string
		imagesJSON     sql.NullString
		facesJSON      sql.NullString
		legalitiesJSON sql.NullString
		releasedAt     sql.NullTime
		priceUSD       sql.NullFloat64
	)

	err := row.Scan(
		&p.PrintingID,
		&oracleID,
		&identityKey,
		&p.Name,
		&nameNormalized,
		&p.TypeLine,
		&p.ManaCost,
		&p.ManaValue,
		&colorsJSON,
		&identityJSON,
		&keywordsJSON,
		&p.Rarity,
		&p.OracleText,
		&p.Layout,
		&imagesJSON,
		&facesJSON,
		&p.SetCode,
		&p.SetName,
		&p.CollectorNumber,
		&releasedAt,
		&priceUSD,
		&legalitiesJSON,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.IdentityKey = catalog.IdentityKey(identityKey)
	if oracleID.Valid {
		p.OracleID = &oracleID.String
	}
	if releasedAt.Valid {
		p.ReleasedAt = releasedAt.Time
	}
	if priceUSD.Valid {
		p.PriceUSD = &priceUSD.Float64
	}

	if err := json.Unmarshal([]byte(colorsJSON), &p.Colors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal colors: %w", err)
	}
	if err := json.Unmarshal([]byte(identityJSON), &p.ColorIdentity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal color identity: %w", err)
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &p.Keywords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
	}
	if imagesJSON.Valid {
		if err := json.Unmarshal([]byte(imagesJSON.String), &p.ImageURIs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal image uris: %w", err)
		}
	}
	if facesJSON.Valid {
		if err := json.Unmarshal([]byte(facesJSON.String), &p.CardFaces); err != nil {
			return nil, fmt.Errorf("failed to unmarshal card faces: %w", err)
		}
	}
	if legalitiesJSON.Valid {
		if err := json.Unmarshal([]byte(legalitiesJSON.String), &p.Legalities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal legalities: %w", err)
		}
	}

	return &p, nil
}
