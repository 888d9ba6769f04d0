// Package main runs the card catalog API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cardscout/cardscout/internal/api"
	"github.com/cardscout/cardscout/internal/cache"
	"github.com/cardscout/cardscout/internal/catalog"
	"github.com/cardscout/cardscout/internal/config"
	"github.com/cardscout/cardscout/internal/imagecache"
	"github.com/cardscout/cardscout/internal/ingest"
	"github.com/cardscout/cardscout/internal/logging"
	"github.com/cardscout/cardscout/internal/metrics"
	"github.com/cardscout/cardscout/internal/recommend"
	"github.com/cardscout/cardscout/internal/refresh"
	"github.com/cardscout/cardscout/internal/scryfall"
	"github.com/cardscout/cardscout/internal/search"
	"github.com/cardscout/cardscout/internal/storage"
	"github.com/cardscout/cardscout/internal/version"
)

var (
	configPath = flag.String("config", "", "Configuration file path (default: ~/.cardscout/config.toml)")
	port       = flag.Int("port", 0, "Override the configured API port")
	dbPath     = flag.String("db-path", "", "Override the configured catalog path")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting cardscout", zap.String("version", version.GetVersion()))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Catalog store
	dbFile, err := cfg.DatabasePath()
	if err != nil {
		return err
	}
	storageCfg := storage.DefaultConfig(dbFile)
	storageCfg.AutoMigrate = true
	db, err := storage.Open(storageCfg)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing catalog", zap.Error(err))
		}
	}()

	printings := storage.NewPrintingRepository(db.Conn())
	runs := storage.NewIngestRunRepository(db.Conn())

	// Initial catalog snapshot. A catalog that cannot be enumerated is
	// fatal; an empty one is a normal first boot.
	holder := catalog.NewHolder()
	ix, err := catalog.LoadIndex(ctx, printings)
	if err != nil {
		return fmt.Errorf("load catalog index: %w", err)
	}
	holder.Swap(ix)
	metrics.UpdateCatalogSize(ix.NumPrintings(), ix.NumIdentities())
	logger.Info("catalog loaded",
		zap.Int("printings", ix.NumPrintings()),
		zap.Int("identities", ix.NumIdentities()),
		zap.String("path", dbFile))

	// Cache tiers. The warm tier is optional: when Redis is unreachable
	// the service runs on the hot tier alone.
	cacheTTL, _ := cfg.GetCacheTTL()
	var tiers []cache.Tier
	var hot *cache.MemoryTier
	if cfg.Cache.Enabled {
		hot = cache.NewMemoryTier(cfg.Cache.MaxEntries, cacheTTL)
		tiers = append(tiers, hot)
	}
	if cfg.Redis.Enabled {
		warm, err := cache.NewRedisTier(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.KeyPrefix)
		if err != nil {
			logger.Warn("warm cache tier unavailable, continuing without it",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			tiers = append(tiers, warm)
		}
	}
	coordinator := cache.NewCoordinator(logger, tiers...)
	defer func() { _ = coordinator.Close() }()

	if hot != nil {
		go hotTierJanitor(ctx, hot)
	}

	// Image cache and preloader
	imageDir, err := cfg.ImageCacheDir()
	if err != nil {
		return err
	}
	images, err := imagecache.NewCache(imagecache.Options{
		Dir:      imageDir,
		MaxBytes: int64(cfg.Images.MaxSizeMB) * 1024 * 1024,
	}, logger)
	if err != nil {
		return fmt.Errorf("open image cache: %w", err)
	}
	preloadDelay, _ := cfg.GetPreloadDelay()
	preloader := imagecache.NewPreloader(images, imagecache.PreloaderConfig{
		Workers:       cfg.Images.PreloadWorkers,
		DeferredDelay: preloadDelay,
	}, logger)
	preloader.Start(ctx)
	defer preloader.Stop()

	// Feed client and services
	feed := scryfall.NewClient()
	recommender := recommend.NewService(holder, coordinator, cacheTTL, logger)
	searcher := search.NewService(holder, coordinator, cacheTTL, logger)

	importer := ingest.NewImporter(ingest.Config{
		BatchSize: cfg.Ingest.BatchSize,
		Feed:      feed,
	}, printings, runs, holder, coordinator, logger)

	if cfg.Ingest.DropDir != "" {
		debounce, _ := cfg.GetIngestDebounce()
		watcher := ingest.NewWatcher(cfg.Ingest.DropDir, importer, debounce, logger)
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start drop watcher: %w", err)
		}
		defer watcher.Stop()
	}

	deps := api.Deps{
		Holder:      holder,
		Recommender: recommender,
		Searcher:    searcher,
		Images:      images,
		Preloader:   preloader,
		Importer:    importer,
	}

	if cfg.Refresh.Enabled {
		staleness, _ := cfg.GetRefreshStaleness()
		refresher := refresh.New(refresh.Config{
			Schedule:   cfg.Refresh.Schedule,
			Staleness:  staleness,
			BatchLimit: cfg.Refresh.BatchLimit,
		}, printings, feed, holder, coordinator, logger)
		if err := refresher.Start(); err != nil {
			return fmt.Errorf("start refresh scheduler: %w", err)
		}
		defer refresher.Stop()
		deps.Refresher = refresher
	}

	// API server
	requestTimeout, _ := cfg.GetRequestTimeout()
	server := api.NewServer(&api.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		RequestTimeout: requestTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, deps, logger)

	if err := server.Start(); err != nil {
		return fmt.Errorf("start api server: %w", err)
	}

	logger.Info("cardscout ready", zap.Int("port", server.Port()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}

	return nil
}

// hotTierJanitor drops expired entries from the in-process tier and keeps
// the size gauge current.
func hotTierJanitor(ctx context.Context, hot *cache.MemoryTier) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hot.CleanupExpired()
			metrics.CacheHotEntries.Set(float64(hot.Len()))
		}
	}
}
