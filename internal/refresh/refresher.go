// Package refresh keeps refreshable printing fields (prices, legalities)
// current against the feed on a cron schedule.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cardscout/cardscout/internal/cache"
	"github.com/cardscout/cardscout/internal/catalog"
	"github.com/cardscout/cardscout/internal/metrics"
	"github.com/cardscout/cardscout/internal/scryfall"
	"github.com/cardscout/cardscout/internal/storage"
)

const (
	// DefaultSchedule runs the refresh nightly at 03:00.
	DefaultSchedule = "0 3 * * *"

	// DefaultStaleness marks printings unrefreshed for a week as due.
	DefaultStaleness = 7 * 24 * time.Hour

	// DefaultBatchLimit bounds how many printings one cycle touches.
	DefaultBatchLimit = 2000
)

// ErrAlreadyRunning is returned when a refresh cycle is requested while
// another is still in flight.
var ErrAlreadyRunning = errors.New("refresh already running")

// Config tunes the refresher.
type Config struct {
	Schedule   string
	Staleness  time.Duration
	BatchLimit int
}

// Report summarizes one refresh cycle.
type Report struct {
	Checked  int           `json:"checked"`
	Updated  int           `json:"updated"`
	Missing  int           `json:"missing"`
	Touched  int           `json:"touched_identities"`
	Duration time.Duration `json:"duration"`
}

// Refresher re-reads prices and legalities for stale printings, then
// republishes the snapshot and purges caches for touched identities.
type Refresher struct {
	printings storage.PrintingRepository
	feed      *scryfall.Client
	holder    *catalog.Holder
	cache     *cache.Coordinator
	cfg       Config
	log       *zap.Logger

	cron    *cron.Cron
	entryID cron.EntryID

	mu      sync.Mutex
	running bool
}

func New(cfg Config, printings storage.PrintingRepository, feed *scryfall.Client, holder *catalog.Holder, coordinator *cache.Coordinator, log *zap.Logger) *Refresher {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = DefaultStaleness
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	return &Refresher{
		printings: printings,
		feed:      feed,
		holder:    holder,
		cache:     coordinator,
		cfg:       cfg,
		log:       log.With(zap.String("component", "refresh")),
	}
}

// Start registers the cron schedule and begins running cycles.
func (r *Refresher) Start() error {
	c := cron.New()
	id, err := c.AddFunc(r.cfg.Schedule, func() {
		if _, err := r.RunOnce(context.Background()); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			r.log.Error("scheduled refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}
	r.cron = c
	r.entryID = id
	c.Start()

	r.log.Info("refresh scheduled",
		zap.String("schedule", r.cfg.Schedule),
		zap.Time("next_run", c.Entry(id).Next))
	return nil
}

// Stop halts the schedule and waits for a running cycle to finish.
func (r *Refresher) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// NextRun returns when the next scheduled cycle fires, or the zero time
// when the schedule is not running.
func (r *Refresher) NextRun() time.Time {
	if r.cron == nil {
		return time.Time{}
	}
	return r.cron.Entry(r.entryID).Next
}

// RunOnce executes one refresh cycle immediately. Cycles never overlap;
// a second caller gets ErrAlreadyRunning.
func (r *Refresher) RunOnce(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	start := time.Now()
	report := &Report{}

	stale, err := r.printings.StalePrintings(ctx, r.cfg.Staleness, r.cfg.BatchLimit)
	if err != nil {
		metrics.RecordRefreshRun(err)
		return nil, fmt.Errorf("failed to list stale printings: %w", err)
	}
	report.Checked = len(stale)
	if len(stale) == 0 {
		report.Duration = time.Since(start)
		r.log.Debug("nothing stale to refresh")
		metrics.RecordRefreshRun(nil)
		return report, nil
	}

	ids := make([]string, len(stale))
	byID := make(map[string]*catalog.CardPrinting, len(stale))
	for i, p := range stale {
		ids[i] = p.PrintingID
		byID[p.PrintingID] = p
	}

	cards, missing, err := r.feed.GetCardsByIDs(ctx, ids)
	if err != nil {
		metrics.RecordRefreshRun(err)
		return nil, fmt.Errorf("failed to fetch card updates: %w", err)
	}
	report.Missing = len(missing)
	for _, id := range missing {
		r.log.Warn("printing no longer on the feed", zap.String("printing_id", id))
	}

	touched := make(map[catalog.IdentityKey]struct{})
	for i := range cards {
		card := &cards[i]
		if err := r.printings.UpdateRefreshables(ctx, card.ID, card.Prices.USDFloat(), card.Legalities); err != nil {
			r.log.Warn("failed to update printing",
				zap.String("printing_id", card.ID),
				zap.Error(err))
			continue
		}
		report.Updated++
		if p := byID[card.ID]; p != nil {
			touched[p.IdentityKey] = struct{}{}
		}
	}
	report.Touched = len(touched)

	if report.Updated > 0 {
		if err := r.reconcile(ctx, touched); err != nil {
			metrics.RecordRefreshRun(err)
			return report, err
		}
	}
	report.Duration = time.Since(start)

	metrics.RecordRefreshRun(nil)
	r.log.Info("refresh cycle finished",
		zap.Int("checked", report.Checked),
		zap.Int("updated", report.Updated),
		zap.Int("missing", report.Missing),
		zap.Int("touched_identities", report.Touched),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// reconcile republishes the snapshot and purges cache entries for every
// identity whose refreshable fields changed, plus all search pages.
func (r *Refresher) reconcile(ctx context.Context, touched map[catalog.IdentityKey]struct{}) error {
	ix, err := catalog.LoadIndex(ctx, r.printings)
	if err != nil {
		return fmt.Errorf("failed to rebuild catalog snapshot: %w", err)
	}
	r.holder.Swap(ix)
	metrics.UpdateCatalogSize(ix.NumPrintings(), ix.NumIdentities())

	tags := make([]string, 0, len(touched)+1)
	tags = append(tags, cache.TagSearch)
	for key := range touched {
		tags = append(tags, cache.TagCard(string(key)))
	}
	r.cache.InvalidateTags(ctx, tags...)
	return nil
}
