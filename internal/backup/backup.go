// Package backup creates and restores catalog snapshots. Snapshots are taken
// with VACUUM INTO, verified by opening them, and optionally encrypted with a
// passphrase. The importer takes one before every full re-import.
package backup

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Manager handles catalog snapshot and restore operations.
type Manager struct {
	dbPath string
	log    *zap.Logger
}

// NewManager creates a backup manager for the given catalog path.
func NewManager(dbPath string, log *zap.Logger) *Manager {
	return &Manager{
		dbPath: dbPath,
		log:    log.With(zap.String("component", "backup")),
	}
}

// Config holds snapshot options.
type Config struct {
	// Dir is where snapshots are stored. Empty means a "backups"
	// subdirectory next to the catalog file.
	Dir string

	// Name is the snapshot file name without extension. Empty means a
	// timestamp-based name.
	Name string

	// Verify opens the snapshot after writing it.
	Verify bool

	// Password enables encryption of the snapshot. The plaintext copy is
	// removed once the encrypted file is written.
	Password string
}

// DefaultConfig returns a Config with verification enabled.
func DefaultConfig() *Config {
	return &Config{Verify: true}
}

// Info describes one snapshot file.
type Info struct {
	Path      string
	Name      string
	Size      int64
	ModTime   time.Time
	Encrypted bool
}

// Snapshot writes a snapshot of the catalog and returns its path.
// VACUUM INTO produces a compacted, consistent copy without taking
// exclusive locks on the live catalog.
func (m *Manager) Snapshot(config *Config) (string, error) {
	if config == nil {
		config = DefaultConfig()
	}

	dir := config.Dir
	if dir == "" {
		dir = m.DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := config.Name
	if name == "" {
		name = fmt.Sprintf("catalog_%s", time.Now().Format("20060102_150405"))
	}
	path := filepath.Join(dir, name+".db")

	source, err := sql.Open("sqlite", m.dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = source.Close() }()

	if _, err := source.Exec(fmt.Sprintf("VACUUM INTO %q", path)); err != nil {
		return "", fmt.Errorf("failed to vacuum into %s: %w", path, err)
	}

	if config.Verify {
		if err := m.Verify(path); err != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("snapshot verification failed: %w", err)
		}
	}

	if config.Password != "" {
		encPath := path + ".enc"
		if err := encryptFile(path, encPath, config.Password); err != nil {
			_ = os.Remove(path)
			return "", err
		}
		if err := os.Remove(path); err != nil {
			m.log.Warn("failed to remove plaintext snapshot", zap.String("path", path), zap.Error(err))
		}
		path = encPath
	}

	m.log.Info("snapshot written", zap.String("path", path))
	return path, nil
}

// Restore replaces the catalog with a snapshot. The caller must have closed
// all connections to the catalog first. Encrypted snapshots need the
// passphrase they were written with.
func (m *Manager) Restore(snapshotPath, password string) error {
	if _, err := os.Stat(snapshotPath); os.IsNotExist(err) {
		return fmt.Errorf("snapshot does not exist: %s", snapshotPath)
	}

	workPath := snapshotPath
	encrypted, err := IsEncrypted(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to inspect snapshot: %w", err)
	}
	if encrypted {
		workPath = m.dbPath + ".restore.dec"
		if err := decryptFile(snapshotPath, workPath, password); err != nil {
			return err
		}
		defer func() { _ = os.Remove(workPath) }()
	}

	if err := m.Verify(workPath); err != nil {
		return fmt.Errorf("snapshot verification failed: %w", err)
	}

	tempPath := m.dbPath + ".restore.tmp"
	if err := copyFile(workPath, tempPath); err != nil {
		return err
	}

	// Keep the previous catalog around under a timestamped name.
	if _, err := os.Stat(m.dbPath); err == nil {
		oldPath := m.dbPath + ".old." + time.Now().Format("20060102_150405")
		if err := os.Rename(m.dbPath, oldPath); err != nil {
			_ = os.Remove(tempPath)
			return fmt.Errorf("failed to move current catalog aside: %w", err)
		}
		m.log.Info("previous catalog preserved", zap.String("path", oldPath))
	}

	if err := os.Rename(tempPath, m.dbPath); err != nil {
		return fmt.Errorf("failed to replace catalog: %w", err)
	}

	m.log.Info("catalog restored", zap.String("snapshot", snapshotPath))
	return nil
}

// Verify opens a snapshot and runs a trivial query against it.
func (m *Manager) Verify(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping snapshot: %w", err)
	}

	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query snapshot: %w", err)
	}
	return nil
}

// List returns the snapshots in dir, or in the default directory when dir
// is empty.
func (m *Manager) List(dir string) ([]Info, error) {
	if dir == "" {
		dir = m.DefaultDir()
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []Info{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var snapshots []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".db") && !strings.HasSuffix(name, ".db.enc") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(dir, name)
		encrypted, _ := IsEncrypted(path)

		snapshots = append(snapshots, Info{
			Path:      path,
			Name:      name,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Encrypted: encrypted,
		})
	}

	return snapshots, nil
}

// DefaultDir returns the default snapshot directory.
func (m *Manager) DefaultDir() string {
	return filepath.Join(filepath.Dir(m.dbPath), "backups")
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}
