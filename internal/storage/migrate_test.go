package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func migrateTestPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "catalog.db")
}

func TestMigrationsCreateCatalogSchema(t *testing.T) {
	dbPath := migrateTestPath(t)

	mgr, err := NewMigrationManager(dbPath)
	if err != nil {
		t.Fatalf("failed to create migration manager: %v", err)
	}
	if err := mgr.Up(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("failed to close migration manager: %v", err)
	}

	db, err := Open(DefaultConfig(dbPath))
	if err != nil {
		t.Fatalf("failed to open migrated catalog: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"printings", "sets", "ingest_runs"} {
		var name string
		err := db.Conn().QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&name)
		if err == sql.ErrNoRows {
			t.Errorf("table %q missing after migration", table)
			continue
		}
		if err != nil {
			t.Fatalf("failed to query for table %q: %v", table, err)
		}
	}

	columns := []string{
		"printing_id", "oracle_id", "identity_key", "name", "name_normalized",
		"mana_value", "colors", "color_identity", "keywords", "card_faces",
		"price_usd", "legalities", "updated_at",
	}
	for _, col := range columns {
		var name string
		err := db.Conn().QueryRow(
			`SELECT name FROM pragma_table_info('printings') WHERE name = ?`, col,
		).Scan(&name)
		if err == sql.ErrNoRows {
			t.Errorf("column %q missing from printings", col)
			continue
		}
		if err != nil {
			t.Fatalf("failed to query column %q: %v", col, err)
		}
	}

	indexes := []string{
		"idx_printings_identity_key",
		"idx_printings_oracle_id",
		"idx_printings_name_normalized",
		"idx_printings_updated_at",
	}
	for _, idx := range indexes {
		var name string
		err := db.Conn().QueryRow(
			`SELECT name FROM sqlite_master WHERE type='index' AND name = ?`, idx,
		).Scan(&name)
		if err == sql.ErrNoRows {
			t.Errorf("index %q missing after migration", idx)
			continue
		}
		if err != nil {
			t.Fatalf("failed to query index %q: %v", idx, err)
		}
	}
}

func TestMigrationsUpTwiceIsNoChange(t *testing.T) {
	dbPath := migrateTestPath(t)

	mgr, err := NewMigrationManager(dbPath)
	if err != nil {
		t.Fatalf("failed to create migration manager: %v", err)
	}
	defer mgr.Close()

	if err := mgr.Up(); err != nil {
		t.Fatalf("first Up failed: %v", err)
	}
	if err := mgr.Up(); err != nil {
		t.Fatalf("second Up should be a no-op, got: %v", err)
	}

	version, dirty, err := mgr.Version()
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	if dirty {
		t.Error("catalog is dirty after clean migrations")
	}
	if version == 0 {
		t.Error("expected non-zero schema version after Up")
	}
}

func TestMigrationsStepDownDropsSchema(t *testing.T) {
	dbPath := migrateTestPath(t)

	mgr, err := NewMigrationManager(dbPath)
	if err != nil {
		t.Fatalf("failed to create migration manager: %v", err)
	}
	defer mgr.Close()

	if err := mgr.Up(); err != nil {
		t.Fatalf("failed to run migrations up: %v", err)
	}
	before, _, err := mgr.Version()
	if err != nil {
		t.Fatalf("failed to get version before down: %v", err)
	}

	if err := mgr.Steps(-1); err != nil {
		t.Fatalf("failed to migrate one step down: %v", err)
	}

	after, dirty, err := mgr.Version()
	if err != nil {
		t.Fatalf("failed to get version after down: %v", err)
	}
	if dirty {
		t.Error("catalog is dirty after rollback")
	}
	if after >= before {
		t.Errorf("version should decrease after down migration: before=%d after=%d", before, after)
	}

	db, err := Open(DefaultConfig(dbPath))
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	defer db.Close()

	var name string
	err = db.Conn().QueryRow(
		`SELECT name FROM sqlite_master WHERE type='table' AND name='printings'`,
	).Scan(&name)
	if err != sql.ErrNoRows {
		t.Errorf("printings table should be gone after rollback, got err=%v", err)
	}
}

func TestMigrationVersionOnFreshCatalog(t *testing.T) {
	mgr, err := NewMigrationManager(migrateTestPath(t))
	if err != nil {
		t.Fatalf("failed to create migration manager: %v", err)
	}
	defer mgr.Close()

	version, dirty, err := mgr.Version()
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	if dirty {
		t.Error("fresh catalog should not be dirty")
	}
	if version != 0 {
		t.Errorf("fresh catalog should be at version 0, got %d", version)
	}
}
