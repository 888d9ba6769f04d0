// Package main is the catalog administration tool. It imports printings
// from a bulk file or the Scryfall feed and manages catalog snapshots.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cardscout/cardscout/internal/backup"
	"github.com/cardscout/cardscout/internal/cache"
	"github.com/cardscout/cardscout/internal/catalog"
	"github.com/cardscout/cardscout/internal/config"
	"github.com/cardscout/cardscout/internal/ingest"
	"github.com/cardscout/cardscout/internal/logging"
	"github.com/cardscout/cardscout/internal/scryfall"
	"github.com/cardscout/cardscout/internal/storage"
)

// passwordEnv supplies the snapshot password so it never appears in
// process listings.
const passwordEnv = "CARDSCOUT_BACKUP_PASSWORD"

var (
	configPath  = flag.String("config", "", "Configuration file path (default: ~/.cardscout/config.toml)")
	file        = flag.String("file", "", "Import printings from a bulk JSON file")
	feed        = flag.Bool("feed", false, "Import printings from the Scryfall bulk feed")
	skipBackup  = flag.Bool("skip-backup", false, "Skip the pre-import snapshot even when configured")
	restorePath = flag.String("restore", "", "Restore the catalog from a snapshot and exit")
	verifyPath  = flag.String("verify", "", "Verify a snapshot file and exit")
	listBackups = flag.Bool("list-backups", false, "List available snapshots and exit")
)

func main() {
	flag.Parse()

	selected := 0
	for _, on := range []bool{*file != "", *feed, *restorePath != "", *verifyPath != "", *listBackups} {
		if on {
			selected++
		}
	}
	if selected == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if selected > 1 {
		log.Fatalf("Choose one of -file, -feed, -restore, -verify or -list-backups")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dbFile, err := cfg.DatabasePath()
	if err != nil {
		log.Fatalf("Failed to resolve catalog path: %v", err)
	}
	manager := backup.NewManager(dbFile, logger)

	switch {
	case *listBackups:
		runList(cfg, manager)
	case *verifyPath != "":
		if err := manager.Verify(*verifyPath); err != nil {
			log.Fatalf("Snapshot verification failed: %v", err)
		}
		log.Printf("Snapshot OK: %s", *verifyPath)
	case *restorePath != "":
		runRestore(manager, *restorePath)
	default:
		runImport(cfg, dbFile, manager, logger)
	}
}

func runList(cfg *config.Config, manager *backup.Manager) {
	dir, err := cfg.BackupDir()
	if err != nil {
		log.Fatalf("Failed to resolve backup directory: %v", err)
	}
	infos, err := manager.List(dir)
	if err != nil {
		log.Fatalf("Failed to list snapshots: %v", err)
	}
	if len(infos) == 0 {
		log.Printf("No snapshots in %s", dir)
		return
	}
	for _, info := range infos {
		suffix := ""
		if info.Encrypted {
			suffix = " (encrypted)"
		}
		fmt.Printf("%s  %10d  %s%s\n", info.ModTime.Format(time.RFC3339), info.Size, info.Name, suffix)
	}
}

func runRestore(manager *backup.Manager, path string) {
	encrypted, err := backup.IsEncrypted(path)
	if err != nil {
		log.Fatalf("Failed to read snapshot: %v", err)
	}
	password := os.Getenv(passwordEnv)
	if encrypted && password == "" {
		log.Fatalf("Snapshot is encrypted; set %s", passwordEnv)
	}
	if err := manager.Restore(path, password); err != nil {
		log.Fatalf("Restore failed: %v", err)
	}
	log.Printf("Catalog restored from %s", path)
}

func runImport(cfg *config.Config, dbFile string, manager *backup.Manager, logger *zap.Logger) {
	ctx := context.Background()

	if cfg.Backup.BeforeImport && !*skipBackup {
		bcfg := backup.DefaultConfig()
		dir, err := cfg.BackupDir()
		if err != nil {
			log.Fatalf("Failed to resolve backup directory: %v", err)
		}
		bcfg.Dir = dir
		if cfg.Backup.Encrypt {
			bcfg.Password = os.Getenv(passwordEnv)
			if bcfg.Password == "" {
				log.Fatalf("Backup encryption is enabled; set %s", passwordEnv)
			}
		}
		if _, err := os.Stat(dbFile); err == nil {
			path, err := manager.Snapshot(bcfg)
			if err != nil {
				log.Fatalf("Pre-import snapshot failed: %v", err)
			}
			log.Printf("Snapshot written to %s", path)
		}
	}

	storageCfg := storage.DefaultConfig(dbFile)
	storageCfg.AutoMigrate = true
	db, err := storage.Open(storageCfg)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer func() { _ = db.Close() }()

	printings := storage.NewPrintingRepository(db.Conn())
	runs := storage.NewIngestRunRepository(db.Conn())
	holder := catalog.NewHolder()
	coordinator := cache.NewCoordinator(logger)
	defer func() { _ = coordinator.Close() }()

	importer := ingest.NewImporter(ingest.Config{
		BatchSize: cfg.Ingest.BatchSize,
		Feed:      scryfall.NewClient(),
	}, printings, runs, holder, coordinator, logger)

	var report *ingest.Report
	if *file != "" {
		report, err = importer.ImportFile(ctx, *file)
	} else {
		report, err = importer.ImportFromFeed(ctx)
	}
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	log.Printf("Import %s finished in %s (source %s)", report.RunID, report.Duration.Round(time.Millisecond), report.Source)
	log.Printf("  seen %d, upserted %d, skipped %d, touched %d identities",
		report.Seen, report.Upserted, report.Skipped, report.Touched)
}
