// Package ingest loads bulk catalog data into storage and keeps the
// in-memory snapshot and caches consistent with what landed.
package ingest

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cardscout/cardscout/internal/cache"
	"github.com/cardscout/cardscout/internal/catalog"
	"github.com/cardscout/cardscout/internal/metrics"
	"github.com/cardscout/cardscout/internal/scryfall"
	"github.com/cardscout/cardscout/internal/storage"
)

const (
	defaultBatchSize = 500

	// Writes serialize inside sqlite anyway; two batches in flight keeps
	// decoding busy while the previous commit drains.
	maxInflightBatches = 2
)

// ErrNoFeed is returned by ImportFromFeed when the importer was built
// without a feed client.
var ErrNoFeed = errors.New("no feed client configured")

// Config tunes the importer.
type Config struct {
	// BatchSize is how many printings are upserted per transaction.
	BatchSize int

	// Feed enables ImportFromFeed when set.
	Feed *scryfall.Client
}

// Importer streams bulk card JSON into the printing store, rebuilds the
// catalog snapshot, and invalidates cache entries for touched identities.
type Importer struct {
	printings storage.PrintingRepository
	runs      storage.IngestRunRepository
	holder    *catalog.Holder
	cache     *cache.Coordinator
	feed      *scryfall.Client
	batchSize int
	log       *zap.Logger
}

// Report summarizes one import.
type Report struct {
	RunID    string        `json:"run_id"`
	Source   string        `json:"source"`
	Seen     int           `json:"seen"`
	Upserted int           `json:"upserted"`
	Skipped  int           `json:"skipped"`
	Touched  int           `json:"touched_identities"`
	Duration time.Duration `json:"duration"`
}

func NewImporter(cfg Config, printings storage.PrintingRepository, runs storage.IngestRunRepository, holder *catalog.Holder, coordinator *cache.Coordinator, log *zap.Logger) *Importer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Importer{
		printings: printings,
		runs:      runs,
		holder:    holder,
		cache:     coordinator,
		feed:      cfg.Feed,
		batchSize: batchSize,
		log:       log.With(zap.String("component", "ingest")),
	}
}

// ImportFile imports a bulk JSON file from disk. Gzip files are
// decompressed transparently based on their extension.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bulk file: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	return im.Import(ctx, reader, "file:"+filepath.Base(path))
}

// ImportFromFeed discovers the default-cards bulk export on the feed and
// imports it.
func (im *Importer) ImportFromFeed(ctx context.Context) (*Report, error) {
	if im.feed == nil {
		return nil, ErrNoFeed
	}
	bulk, err := im.feed.DefaultCardsBulk(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover bulk data: %w", err)
	}
	body, err := im.feed.DownloadBulkData(ctx, bulk.DownloadURI)
	if err != nil {
		return nil, fmt.Errorf("failed to download bulk data: %w", err)
	}
	defer body.Close()

	return im.Import(ctx, body, "feed:"+bulk.Type)
}

// Import streams one bulk payload. Both a single JSON array and
// line-delimited JSON are accepted. Batches commit as the stream
// progresses, so a failed run keeps what already landed; the snapshot and
// caches are reconciled either way.
func (im *Importer) Import(ctx context.Context, r io.Reader, source string) (*Report, error) {
	start := time.Now()
	run := &storage.IngestRun{
		RunID:     uuid.NewString(),
		Source:    source,
		StartedAt: start.UTC(),
	}
	if err := im.runs.SaveRun(ctx, run); err != nil {
		im.log.Warn("failed to record ingest run start", zap.Error(err))
	}

	im.log.Info("starting bulk import",
		zap.String("run_id", run.RunID),
		zap.String("source", source))

	report := &Report{RunID: run.RunID, Source: source}
	touched := make(map[catalog.IdentityKey]struct{})
	streamErr := im.stream(ctx, r, report, touched)

	// Even a failed stream may have committed batches, so the snapshot
	// and caches are rebuilt whenever anything landed.
	if report.Upserted > 0 {
		if err := im.reconcile(ctx, touched); err != nil {
			if streamErr == nil {
				streamErr = err
			} else {
				im.log.Warn("failed to reconcile after import error", zap.Error(err))
			}
		}
	}
	report.Touched = len(touched)
	report.Duration = time.Since(start)

	now := time.Now().UTC()
	run.FinishedAt = &now
	run.PrintingsSeen = report.Seen
	run.PrintingsUpserted = report.Upserted
	run.PrintingsSkipped = report.Skipped
	if streamErr != nil {
		msg := streamErr.Error()
		run.Error = &msg
	}
	if err := im.runs.SaveRun(ctx, run); err != nil {
		im.log.Warn("failed to record ingest run result", zap.Error(err))
	}

	metrics.RecordIngestRun(sourceKind(source), streamErr)
	metrics.RecordIngestPrintings(report.Upserted, report.Skipped)

	if streamErr != nil {
		im.log.Error("bulk import failed",
			zap.String("run_id", run.RunID),
			zap.Int("upserted", report.Upserted),
			zap.Error(streamErr))
		return report, streamErr
	}

	im.log.Info("bulk import finished",
		zap.String("run_id", run.RunID),
		zap.Int("seen", report.Seen),
		zap.Int("upserted", report.Upserted),
		zap.Int("skipped", report.Skipped),
		zap.Int("touched_identities", report.Touched),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// stream decodes cards and commits them in batches, tracking the identity
// keys of everything upserted. A bulk export is one big JSON array; drop
// directories may also hold line-delimited dumps. The first significant
// byte tells them apart. Commits run on a bounded errgroup so decoding
// overlaps the sqlite writes.
func (im *Importer) stream(ctx context.Context, r io.Reader, report *Report, touched map[catalog.IdentityKey]struct{}) error {
	br := bufio.NewReaderSize(r, 1<<20)
	first, err := firstSignificantByte(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to read bulk stream: %w", err)
	}

	dec := json.NewDecoder(br)
	arrayMode := first == '['
	if arrayMode {
		if _, err := dec.Token(); err != nil {
			return fmt.Errorf("failed to read bulk stream: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInflightBatches)

	var mu sync.Mutex // guards touched and report.Upserted
	flush := func(batch []*catalog.CardPrinting) {
		g.Go(func() error {
			if err := im.printings.SavePrintings(gctx, batch); err != nil {
				return fmt.Errorf("failed to save printing batch: %w", err)
			}
			mu.Lock()
			for _, p := range batch {
				touched[p.IdentityKey] = struct{}{}
			}
			report.Upserted += len(batch)
			mu.Unlock()
			return nil
		})
	}

	var decodeErr error
	batch := make([]*catalog.CardPrinting, 0, im.batchSize)
	for {
		if err := gctx.Err(); err != nil {
			decodeErr = err
			break
		}
		if arrayMode && !dec.More() {
			break
		}
		var card scryfall.Card
		if err := dec.Decode(&card); err != nil {
			if !arrayMode && errors.Is(err, io.EOF) {
				break
			}
			decodeErr = fmt.Errorf("failed to decode card at position %d: %w", report.Seen, err)
			break
		}
		report.Seen++

		if skip, why := shouldSkip(&card); skip {
			report.Skipped++
			im.log.Debug("skipping card", zap.String("name", card.Name), zap.String("reason", why))
			continue
		}

		batch = append(batch, card.ToPrinting())
		if len(batch) >= im.batchSize {
			flush(batch)
			batch = make([]*catalog.CardPrinting, 0, im.batchSize)
		}
	}
	if decodeErr == nil && len(batch) > 0 {
		flush(batch)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return decodeErr
}

func firstSignificantByte(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			if err := br.UnreadByte(); err != nil {
				return 0, err
			}
			return b, nil
		}
	}
}

// reconcile rebuilds the snapshot from storage, publishes it, and purges
// cache entries for every touched identity plus all search pages.
func (im *Importer) reconcile(ctx context.Context, touched map[catalog.IdentityKey]struct{}) error {
	ix, err := catalog.LoadIndex(ctx, im.printings)
	if err != nil {
		return fmt.Errorf("failed to rebuild catalog snapshot: %w", err)
	}
	im.holder.Swap(ix)
	metrics.UpdateCatalogSize(ix.NumPrintings(), ix.NumIdentities())

	tags := make([]string, 0, len(touched)+1)
	tags = append(tags, cache.TagSearch)
	for key := range touched {
		tags = append(tags, cache.TagCard(string(key)))
	}
	im.cache.InvalidateTags(ctx, tags...)
	return nil
}

// shouldSkip filters out records the catalog has no use for.
func shouldSkip(card *scryfall.Card) (bool, string) {
	if card.ID == "" {
		return true, "missing printing id"
	}
	if card.Name == "" {
		return true, "missing name"
	}
	if card.Lang != "" && card.Lang != "en" {
		return true, "non-english printing"
	}
	return false, ""
}

// sourceKind reduces a run source like "file:cards.json" to its bounded
// metric label.
func sourceKind(source string) string {
	if i := strings.Index(source, ":"); i > 0 {
		return source[:i]
	}
	return "other"
}
