// Package imagecache stores card images on disk, content-addressed by
// the SHA-256 of the source URL. The directory is size-bounded with
// least-recently-used eviction, and a two-priority preloader warms it
// ahead of demand.
package imagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cardscout/cardscout/internal/metrics"
)

// ImageSize selects which rendition of a card image to fetch.
type ImageSize string

const (
	ImageSizeSmall   ImageSize = "small"
	ImageSizeNormal  ImageSize = "normal"
	ImageSizeLarge   ImageSize = "large"
	ImageSizePNG     ImageSize = "png"
	ImageSizeArtCrop ImageSize = "art_crop"
)

// Cache manages local caching of card images.
type Cache struct {
	cacheDir   string
	maxSize    int64
	mu         sync.RWMutex
	sizes      map[string]int64
	lastUsed   map[string]time.Time
	httpClient *http.Client
	log        *zap.Logger
}

// Options configures the image cache.
type Options struct {
	Dir      string        // Directory to store cached images
	MaxBytes int64         // Maximum cache size in bytes (0 = unlimited)
	Timeout  time.Duration // HTTP request timeout
}

// DefaultOptions returns sensible default cache options.
func DefaultOptions() Options {
	homeDir, _ := os.UserHomeDir()
	return Options{
		Dir:      filepath.Join(homeDir, ".cardscout", "image-cache"),
		MaxBytes: 500 * 1024 * 1024,
		Timeout:  30 * time.Second,
	}
}

// NewCache creates an image cache rooted at options.Dir, creating the
// directory if needed and indexing any images already present.
func NewCache(options Options, log *zap.Logger) (*Cache, error) {
	if err := os.MkdirAll(options.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if options.Timeout <= 0 {
		options.Timeout = 30 * time.Second
	}

	cache := &Cache{
		cacheDir: options.Dir,
		maxSize:  options.MaxBytes,
		sizes:    make(map[string]int64),
		lastUsed: make(map[string]time.Time),
		httpClient: &http.Client{
			Timeout: options.Timeout,
		},
		log: log.With(zap.String("component", "imagecache")),
	}

	if err := cache.scan(); err != nil {
		return nil, fmt.Errorf("failed to scan cache directory: %w", err)
	}
	cache.updateSizeGauge()

	return cache, nil
}

// GetImage returns the path of the cached file for imageURL, downloading
// it first if needed.
func (c *Cache) GetImage(ctx context.Context, imageURL string, size ImageSize) (string, error) {
	if imageURL == "" {
		return "", fmt.Errorf("image URL is empty")
	}

	cachePath := filepath.Join(c.cacheDir, c.cacheKey(imageURL, size))

	c.mu.RLock()
	_, exists := c.sizes[cachePath]
	c.mu.RUnlock()
	if exists {
		c.mu.Lock()
		c.lastUsed[cachePath] = time.Now()
		c.mu.Unlock()
		metrics.RecordImageFetch("cache", nil)
		return cachePath, nil
	}

	path, err := c.downloadAndCache(ctx, imageURL, cachePath)
	metrics.RecordImageFetch("remote", err)
	return path, err
}

// Cached reports whether the image is already on disk.
func (c *Cache) Cached(imageURL string, size ImageSize) bool {
	cachePath := filepath.Join(c.cacheDir, c.cacheKey(imageURL, size))
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sizes[cachePath]
	return ok
}

// downloadAndCache downloads an image into a temp file and moves it into
// place, evicting old entries first if the cache is over budget.
func (c *Cache) downloadAndCache(ctx context.Context, imageURL, cachePath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	tempFile, err := os.CreateTemp(c.cacheDir, "download-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	size, err := io.Copy(tempFile, resp.Body)
	if err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to save image: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	c.mu.Lock()
	if err := c.ensureSpace(size); err != nil {
		c.mu.Unlock()
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to ensure cache space: %w", err)
	}

	if err := os.Rename(tempPath, cachePath); err != nil {
		c.mu.Unlock()
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to move cached file: %w", err)
	}

	c.sizes[cachePath] = size
	c.lastUsed[cachePath] = time.Now()
	c.mu.Unlock()
	c.updateSizeGauge()

	return cachePath, nil
}

// ensureSpace evicts least-recently-used files until neededSize fits.
// Must be called with c.mu locked.
func (c *Cache) ensureSpace(neededSize int64) error {
	if c.maxSize == 0 {
		return nil
	}

	var currentSize int64
	for _, size := range c.sizes {
		currentSize += size
	}
	if currentSize+neededSize <= c.maxSize {
		return nil
	}

	type fileEntry struct {
		path     string
		lastUsed time.Time
		size     int64
	}

	files := make([]fileEntry, 0, len(c.sizes))
	for path, size := range c.sizes {
		files = append(files, fileEntry{
			path:     path,
			lastUsed: c.lastUsed[path],
			size:     size,
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].lastUsed.Before(files[j].lastUsed)
	})

	for _, file := range files {
		if currentSize+neededSize <= c.maxSize {
			break
		}

		if err := os.Remove(file.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to evict cached file: %w", err)
		}
		delete(c.sizes, file.path)
		delete(c.lastUsed, file.path)
		currentSize -= file.size
	}

	return nil
}

// Clear removes all cached images.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for path := range c.sizes {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove cached file: %w", err)
		}
	}

	c.sizes = make(map[string]int64)
	c.lastUsed = make(map[string]time.Time)
	metrics.ImageCacheBytes.Set(0)

	return nil
}

// Stats contains statistics about the cache.
type Stats struct {
	TotalFiles int
	TotalSize  int64
	MaxSize    int64
	CacheDir   string
}

// GetStats returns statistics about the cache.
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var totalSize int64
	for _, size := range c.sizes {
		totalSize += size
	}

	return Stats{
		TotalFiles: len(c.sizes),
		TotalSize:  totalSize,
		MaxSize:    c.maxSize,
		CacheDir:   c.cacheDir,
	}
}

// scan initializes cache metadata from files already on disk.
func (c *Cache) scan() error {
	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) == ".tmp" {
			continue
		}

		path := filepath.Join(c.cacheDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}

		c.sizes[path] = info.Size()
		c.lastUsed[path] = info.ModTime()
	}

	return nil
}

// cacheKey derives the on-disk filename for an image URL and size.
func (c *Cache) cacheKey(imageURL string, size ImageSize) string {
	hash := sha256.Sum256([]byte(imageURL + string(size)))
	ext := ".jpg"
	if size == ImageSizePNG {
		ext = ".png"
	}
	return hex.EncodeToString(hash[:]) + ext
}

func (c *Cache) updateSizeGauge() {
	c.mu.RLock()
	var total int64
	for _, size := range c.sizes {
		total += size
	}
	c.mu.RUnlock()
	metrics.ImageCacheBytes.Set(float64(total))
}
