package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cardscout/cardscout/internal/catalog"
)

// setupTestDB creates an in-memory database with the catalog schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	schema := `
		CREATE TABLE IF NOT EXISTS printings (
			printing_id      TEXT PRIMARY KEY,
			oracle_id        TEXT,
			identity_key     TEXT NOT NULL,
			name             TEXT NOT NULL,
			name_normalized  TEXT NOT NULL,
			type_line        TEXT NOT NULL DEFAULT '',
			mana_cost        TEXT NOT NULL DEFAULT '',
			mana_value       REAL NOT NULL DEFAULT 0,
			colors           TEXT NOT NULL DEFAULT '[]',
			color_identity   TEXT NOT NULL DEFAULT '[]',
			keywords         TEXT NOT NULL DEFAULT '[]',
			rarity           TEXT NOT NULL DEFAULT '',
			oracle_text      TEXT NOT NULL DEFAULT '',
			layout           TEXT NOT NULL DEFAULT 'normal',
			image_uris       TEXT,
			card_faces       TEXT,
			set_code         TEXT NOT NULL DEFAULT '',
			set_name         TEXT NOT NULL DEFAULT '',
			collector_number TEXT NOT NULL DEFAULT '',
			released_at      TIMESTAMP,
			price_usd        REAL,
			legalities       TEXT,
			updated_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_printings_identity_key ON printings(identity_key);
		CREATE INDEX IF NOT EXISTS idx_printings_name_normalized ON printings(name_normalized);

		CREATE TABLE IF NOT EXISTS sets (
			code         TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			released_at  TEXT,
			card_count   INTEGER,
			set_type     TEXT,
			icon_svg_uri TEXT,
			last_updated TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS ingest_runs (
			run_id             TEXT PRIMARY KEY,
			source             TEXT NOT NULL,
			started_at         TIMESTAMP NOT NULL,
			finished_at        TIMESTAMP,
			printings_seen     INTEGER NOT NULL DEFAULT 0,
			printings_upserted INTEGER NOT NULL DEFAULT 0,
			printings_skipped  INTEGER NOT NULL DEFAULT 0,
			error              TEXT
		);
	`

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

func boltPrinting(printingID, setCode string) *catalog.CardPrinting {
	oracleID := "oracle-bolt"
	return &catalog.CardPrinting{
		PrintingID:      printingID,
		OracleID:        &oracleID,
		Name:            "Lightning Bolt",
		TypeLine:        "Instant",
		ManaCost:        "{R}",
		ManaValue:       1,
		Colors:          []string{"R"},
		ColorIdentity:   []string{"R"},
		Keywords:        []string{},
		Rarity:          "common",
		OracleText:      "Lightning Bolt deals 3 damage to any target.",
		Layout:          "normal",
		SetCode:         setCode,
		SetName:         "Magic 2010",
		CollectorNumber: "146",
		ReleasedAt:      time.Date(2009, 7, 17, 0, 0, 0, 0, time.UTC),
		ImageURIs:       &catalog.ImageURIs{Normal: "https://img.example/bolt.jpg"},
		Legalities:      map[string]string{"modern": "legal"},
	}
}

func TestPrintingRepository_SaveAndGet(t *testing.T) {
	repo := NewPrintingRepository(setupTestDB(t))
	ctx := context.Background()

	p := boltPrinting("p-bolt-m10", "M10")
	price := 2.5
	p.PriceUSD = &price

	if err := repo.SavePrinting(ctx, p); err != nil {
		t.Fatalf("SavePrinting() error = %v", err)
	}

	got, err := repo.PrintingByID(ctx, "p-bolt-m10")
	if err != nil {
		t.Fatalf("PrintingByID() error = %v", err)
	}
	if got == nil {
		t.Fatal("PrintingByID() returned nil for a saved printing")
	}

	if got.Name != "Lightning Bolt" {
		t.Errorf("Name = %q, want Lightning Bolt", got.Name)
	}
	if got.IdentityKey != "oracle:oracle-bolt" {
		t.Errorf("IdentityKey = %q, want oracle:oracle-bolt", got.IdentityKey)
	}
	if got.OracleID == nil || *got.OracleID != "oracle-bolt" {
		t.Errorf("OracleID = %v, want oracle-bolt", got.OracleID)
	}
	if len(got.Colors) != 1 || got.Colors[0] != "R" {
		t.Errorf("Colors = %v, want [R]", got.Colors)
	}
	if got.PriceUSD == nil || *got.PriceUSD != 2.5 {
		t.Errorf("PriceUSD = %v, want 2.5", got.PriceUSD)
	}
	if got.Legalities["modern"] != "legal" {
		t.Errorf("Legalities = %v, want modern legal", got.Legalities)
	}
	if got.ImageURIs == nil || got.ImageURIs.Normal != "https://img.example/bolt.jpg" {
		t.Error("ImageURIs not round-tripped")
	}
	if got.ReleasedAt.IsZero() {
		t.Error("ReleasedAt not round-tripped")
	}
}

func TestPrintingRepository_GetMissing(t *testing.T) {
	repo := NewPrintingRepository(setupTestDB(t))

	got, err := repo.PrintingByID(context.Background(), "p-missing")
	if err != nil {
		t.Fatalf("PrintingByID() error = %v", err)
	}
	if got != nil {
		t.Errorf("PrintingByID() = %v, want nil for unknown printing", got)
	}
}

func TestPrintingRepository_UpsertOverwrites(t *testing.T) {
	repo := NewPrintingRepository(setupTestDB(t))
	ctx := context.Background()

	p := boltPrinting("p-bolt-m10", "M10")
	if err := repo.SavePrinting(ctx, p); err != nil {
		t.Fatalf("SavePrinting() error = %v", err)
	}

	p.Rarity = "uncommon"
	if err := repo.SavePrinting(ctx, p); err != nil {
		t.Fatalf("SavePrinting() second save error = %v", err)
	}

	got, err := repo.PrintingByID(ctx, "p-bolt-m10")
	if err != nil {
		t.Fatalf("PrintingByID() error = %v", err)
	}
	if got.Rarity != "uncommon" {
		t.Errorf("Rarity = %q, want updated uncommon", got.Rarity)
	}

	count, err := repo.CountPrintings(ctx)
	if err != nil {
		t.Fatalf("CountPrintings() error = %v", err)
	}
	if count != 1 {
		t.Errorf("CountPrintings() = %d, want 1 after upsert", count)
	}
}

func TestPrintingRepository_SavePrintingsBatch(t *testing.T) {
	repo := NewPrintingRepository(setupTestDB(t))
	ctx := context.Background()

	batch := []*catalog.CardPrinting{
		boltPrinting("p-1", "LEA"),
		boltPrinting("p-2", "M10"),
		boltPrinting("p-3", "A25"),
	}

	if err := repo.SavePrintings(ctx, batch); err != nil {
		t.Fatalf("SavePrintings() error = %v", err)
	}

	count, err := repo.CountPrintings(ctx)
	if err != nil {
		t.Fatalf("CountPrintings() error = %v", err)
	}
	if count != 3 {
		t.Errorf("CountPrintings() = %d, want 3", count)
	}

	identities, err := repo.CountIdentities(ctx)
	if err != nil {
		t.Fatalf("CountIdentities() error = %v", err)
	}
	if identities != 1 {
		t.Errorf("CountIdentities() = %d, want 1 (all share an oracle ID)", identities)
	}
}

func TestPrintingRepository_PrintingsByIdentityKey(t *testing.T) {
	repo := NewPrintingRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.SavePrintings(ctx, []*catalog.CardPrinting{
		boltPrinting("p-1", "LEA"),
		boltPrinting("p-2", "M10"),
	}); err != nil {
		t.Fatalf("SavePrintings() error = %v", err)
	}

	group, err := repo.PrintingsByIdentityKey(ctx, "oracle:oracle-bolt")
	if err != nil {
		t.Fatalf("PrintingsByIdentityKey() error = %v", err)
	}
	if len(group) != 2 {
		t.Errorf("PrintingsByIdentityKey() returned %d printings, want 2", len(group))
	}
}

func TestPrintingRepository_PrintingsByName(t *testing.T) {
	repo := NewPrintingRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.SavePrinting(ctx, boltPrinting("p-1", "LEA")); err != nil {
		t.Fatalf("SavePrinting() error = %v", err)
	}

	got, err := repo.PrintingsByName(ctx, catalog.Normalize("LIGHTNING  bolt"))
	if err != nil {
		t.Fatalf("PrintingsByName() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("PrintingsByName() returned %d printings, want 1", len(got))
	}
}

func TestPrintingRepository_StalePrintings(t *testing.T) {
	repo := NewPrintingRepository(setupTestDB(t))
	ctx := context.Background()

	stale := boltPrinting("p-stale", "LEA")
	stale.UpdatedAt = time.Now().Add(-30 * 24 * time.Hour)
	fresh := boltPrinting("p-fresh", "M10")
	fresh.UpdatedAt = time.Now()

	if err := repo.SavePrintings(ctx, []*catalog.CardPrinting{stale, fresh}); err != nil {
		t.Fatalf("SavePrintings() error = %v", err)
	}

	got, err := repo.StalePrintings(ctx, 7*24*time.Hour, 100)
	if err != nil {
		t.Fatalf("StalePrintings() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("StalePrintings() returned %d printings, want 1", len(got))
	}
	if got[0].PrintingID != "p-stale" {
		t.Errorf("StalePrintings()[0] = %q, want p-stale", got[0].PrintingID)
	}
}

func TestPrintingRepository_UpdateRefreshables(t *testing.T) {
	repo := NewPrintingRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.SavePrinting(ctx, boltPrinting("p-1", "M10")); err != nil {
		t.Fatalf("SavePrinting() error = %v", err)
	}

	price := 4.2
	err := repo.UpdateRefreshables(ctx, "p-1", &price, map[string]string{"modern": "legal", "legacy": "legal"})
	if err != nil {
		t.Fatalf("UpdateRefreshables() error = %v", err)
	}

	got, err := repo.PrintingByID(ctx, "p-1")
	if err != nil {
		t.Fatalf("PrintingByID() error = %v", err)
	}
	if got.PriceUSD == nil || *got.PriceUSD != 4.2 {
		t.Errorf("PriceUSD = %v, want 4.2", got.PriceUSD)
	}
	if got.Legalities["legacy"] != "legal" {
		t.Errorf("Legalities = %v, want legacy legal", got.Legalities)
	}
}

func TestPrintingRepository_UpdateRefreshablesMissing(t *testing.T) {
	repo := NewPrintingRepository(setupTestDB(t))

	err := repo.UpdateRefreshables(context.Background(), "p-missing", nil, nil)
	if err == nil {
		t.Error("UpdateRefreshables() should fail for an unknown printing")
	}
}

func TestPrintingRepository_DeleteAll(t *testing.T) {
	repo := NewPrintingRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.SavePrintings(ctx, []*catalog.CardPrinting{
		boltPrinting("p-1", "LEA"),
		boltPrinting("p-2", "M10"),
	}); err != nil {
		t.Fatalf("SavePrintings() error = %v", err)
	}

	if err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}

	count, err := repo.CountPrintings(ctx)
	if err != nil {
		t.Fatalf("CountPrintings() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountPrintings() = %d after DeleteAll, want 0", count)
	}
}

func TestPrintingRepository_DerivedKeyPersistence(t *testing.T) {
	repo := NewPrintingRepository(setupTestDB(t))
	ctx := context.Background()

	// Two printings of the same card, neither with an oracle ID, must land
	// under one identity key in the store.
	promo := boltPrinting("p-promo", "PRM")
	promo.OracleID = nil
	promo.IdentityKey = ""
	judge := boltPrinting("p-judge", "JGP")
	judge.OracleID = nil
	judge.IdentityKey = ""

	if err := repo.SavePrintings(ctx, []*catalog.CardPrinting{promo, judge}); err != nil {
		t.Fatalf("SavePrintings() error = %v", err)
	}

	identities, err := repo.CountIdentities(ctx)
	if err != nil {
		t.Fatalf("CountIdentities() error = %v", err)
	}
	if identities != 1 {
		t.Errorf("CountIdentities() = %d, want 1 for identical name+text", identities)
	}
}

func TestSetRepository_SaveAndGet(t *testing.T) {
	repo := NewSetRepository(setupTestDB(t))
	ctx := context.Background()

	released := "2009-07-17"
	count := 249
	if err := repo.SaveSet(ctx, &Set{
		Code:       "m10",
		Name:       "Magic 2010",
		ReleasedAt: &released,
		CardCount:  &count,
	}); err != nil {
		t.Fatalf("SaveSet() error = %v", err)
	}

	got, err := repo.GetSet(ctx, "m10")
	if err != nil {
		t.Fatalf("GetSet() error = %v", err)
	}
	if got == nil || got.Name != "Magic 2010" {
		t.Errorf("GetSet() = %v, want Magic 2010", got)
	}

	missing, err := repo.GetSet(ctx, "xyz")
	if err != nil {
		t.Fatalf("GetSet() error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetSet() = %v for unknown code, want nil", missing)
	}
}

func TestIngestRunRepository_SaveAndLast(t *testing.T) {
	repo := NewIngestRunRepository(setupTestDB(t))
	ctx := context.Background()

	started := time.Now().Add(-time.Minute)
	run := &IngestRun{
		RunID:         "run-1",
		Source:        "bulk:default_cards",
		StartedAt:     started,
		PrintingsSeen: 100,
	}
	if err := repo.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	// Finish the run and update it in place.
	finished := time.Now()
	run.FinishedAt = &finished
	run.PrintingsUpserted = 98
	run.PrintingsSkipped = 2
	if err := repo.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() update error = %v", err)
	}

	last, err := repo.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun() error = %v", err)
	}
	if last == nil {
		t.Fatal("LastRun() returned nil")
	}
	if last.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", last.RunID)
	}
	if last.PrintingsUpserted != 98 {
		t.Errorf("PrintingsUpserted = %d, want 98", last.PrintingsUpserted)
	}
	if last.FinishedAt == nil {
		t.Error("FinishedAt not persisted")
	}
}

func TestIngestRunRepository_LastRunEmpty(t *testing.T) {
	repo := NewIngestRunRepository(setupTestDB(t))

	last, err := repo.LastRun(context.Background())
	if err != nil {
		t.Fatalf("LastRun() error = %v", err)
	}
	if last != nil {
		t.Errorf("LastRun() = %v before any import, want nil", last)
	}
}
