// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Cache    CacheConfig    `toml:"cache"`
	Redis    RedisConfig    `toml:"redis"`
	Images   ImagesConfig   `toml:"images"`
	Ingest   IngestConfig   `toml:"ingest"`
	Refresh  RefreshConfig  `toml:"refresh"`
	Backup   BackupConfig   `toml:"backup"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string   `toml:"host"`            // Bind address (empty = all interfaces)
	Port           int      `toml:"port"`            // Listen port
	RequestTimeout string   `toml:"request_timeout"` // Per-request timeout (e.g. "30s")
	AllowedOrigins []string `toml:"allowed_origins"` // CORS origins; empty allows none cross-origin
}

// DatabaseConfig contains catalog store settings.
type DatabaseConfig struct {
	Path string `toml:"path"` // SQLite file path (empty = default under the data dir)
}

// CacheConfig contains response cache settings.
type CacheConfig struct {
	Enabled    bool   `toml:"enabled"`     // Enable the response cache
	MaxEntries int    `toml:"max_entries"` // Hot tier capacity
	TTL        string `toml:"ttl"`         // Entry TTL fallback (e.g. "15m")
}

// RedisConfig contains warm tier settings. The server runs without the
// warm tier when disabled or unreachable.
type RedisConfig struct {
	Enabled   bool   `toml:"enabled"`
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
}

// ImagesConfig contains image cache and preloader settings.
type ImagesConfig struct {
	CacheDir       string `toml:"cache_dir"`       // On-disk image cache (empty = default)
	MaxSizeMB      int    `toml:"max_size_mb"`     // Image cache budget
	PreloadWorkers int    `toml:"preload_workers"` // Preload worker count
	PreloadDelay   string `toml:"preload_delay"`   // Hold-back before deferred preloads (e.g. "1s")
}

// IngestConfig contains bulk import settings.
type IngestConfig struct {
	DropDir   string `toml:"drop_dir"`   // Watched drop directory (empty disables the watcher)
	BatchSize int    `toml:"batch_size"` // Printings per upsert batch
	Debounce  string `toml:"debounce"`   // Quiet period before importing a dropped file
}

// RefreshConfig contains scheduled refresh settings.
type RefreshConfig struct {
	Enabled    bool   `toml:"enabled"`
	Schedule   string `toml:"schedule"`    // Cron expression
	Staleness  string `toml:"staleness"`   // Age before a printing is due (e.g. "168h")
	BatchLimit int    `toml:"batch_limit"` // Max printings per cycle
}

// BackupConfig contains catalog backup settings.
type BackupConfig struct {
	Dir          string `toml:"dir"`           // Backup directory (empty = default)
	BeforeImport bool   `toml:"before_import"` // Snapshot the catalog before full re-imports
	Encrypt      bool   `toml:"encrypt"`       // Encrypt snapshots
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
	Mode  string `toml:"mode"`  // development or production
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "",
			Port:           8080,
			RequestTimeout: "30s",
			AllowedOrigins: nil,
		},
		Database: DatabaseConfig{
			Path: "",
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 4096,
			TTL:        "15m",
		},
		Redis: RedisConfig{
			Enabled:   false,
			Addr:      "localhost:6379",
			KeyPrefix: "cardscout",
		},
		Images: ImagesConfig{
			CacheDir:       "",
			MaxSizeMB:      500,
			PreloadWorkers: 4,
			PreloadDelay:   "1s",
		},
		Ingest: IngestConfig{
			DropDir:   "",
			BatchSize: 500,
			Debounce:  "2s",
		},
		Refresh: RefreshConfig{
			Enabled:    true,
			Schedule:   "0 3 * * *",
			Staleness:  "168h",
			BatchLimit: 2000,
		},
		Backup: BackupConfig{
			Dir:          "",
			BeforeImport: true,
			Encrypt:      false,
		},
		Log: LogConfig{
			Level: "info",
			Mode:  "production",
		},
	}
}

// DataDir returns the application data directory, creating it if needed.
func DataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	dir := filepath.Join(homeDir, ".cardscout")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dir, nil
}

// DefaultPath returns the default configuration file path.
func DefaultPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load loads the configuration from the given path. An empty path uses
// the default location; a missing file yields the default config.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Unmarshal over the defaults so omitted tables keep working values.
	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return config, nil
}

// Save saves the configuration to the given path, or the default
// location when path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return err
		}
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if _, err := time.ParseDuration(c.Server.RequestTimeout); err != nil {
		return fmt.Errorf("invalid request timeout %q: %w", c.Server.RequestTimeout, err)
	}
	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		return fmt.Errorf("invalid cache TTL %q: %w", c.Cache.TTL, err)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache max entries cannot be negative: %d", c.Cache.MaxEntries)
	}
	if c.Images.MaxSizeMB < 0 {
		return fmt.Errorf("image cache size cannot be negative: %d", c.Images.MaxSizeMB)
	}
	if _, err := time.ParseDuration(c.Images.PreloadDelay); err != nil {
		return fmt.Errorf("invalid preload delay %q: %w", c.Images.PreloadDelay, err)
	}
	if _, err := time.ParseDuration(c.Ingest.Debounce); err != nil {
		return fmt.Errorf("invalid ingest debounce %q: %w", c.Ingest.Debounce, err)
	}
	if _, err := time.ParseDuration(c.Refresh.Staleness); err != nil {
		return fmt.Errorf("invalid refresh staleness %q: %w", c.Refresh.Staleness, err)
	}
	if c.Refresh.BatchLimit < 0 {
		return fmt.Errorf("refresh batch limit cannot be negative: %d", c.Refresh.BatchLimit)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}
	switch c.Log.Mode {
	case "development", "production":
	default:
		return fmt.Errorf("invalid log mode: %q", c.Log.Mode)
	}

	return nil
}

// GetRequestTimeout returns the server request timeout as a duration.
func (c *Config) GetRequestTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Server.RequestTimeout)
}

// GetCacheTTL returns the response cache TTL as a duration.
func (c *Config) GetCacheTTL() (time.Duration, error) {
	return time.ParseDuration(c.Cache.TTL)
}

// GetPreloadDelay returns the deferred preload hold-back as a duration.
func (c *Config) GetPreloadDelay() (time.Duration, error) {
	return time.ParseDuration(c.Images.PreloadDelay)
}

// GetIngestDebounce returns the drop-file debounce as a duration.
func (c *Config) GetIngestDebounce() (time.Duration, error) {
	return time.ParseDuration(c.Ingest.Debounce)
}

// GetRefreshStaleness returns the refresh staleness threshold as a
// duration.
func (c *Config) GetRefreshStaleness() (time.Duration, error) {
	return time.ParseDuration(c.Refresh.Staleness)
}

// DatabasePath resolves the configured database path, defaulting to
// catalog.db under the data directory.
func (c *Config) DatabasePath() (string, error) {
	if c.Database.Path != "" {
		return c.Database.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "catalog.db"), nil
}

// ImageCacheDir resolves the configured image cache directory, defaulting
// to image-cache under the data directory.
func (c *Config) ImageCacheDir() (string, error) {
	if c.Images.CacheDir != "" {
		return c.Images.CacheDir, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "image-cache"), nil
}

// BackupDir resolves the configured backup directory, defaulting to
// backups under the data directory.
func (c *Config) BackupDir() (string, error) {
	if c.Backup.Dir != "" {
		return c.Backup.Dir, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "backups"), nil
}
