package ingest

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cardscout/cardscout/internal/cache"
	"github.com/cardscout/cardscout/internal/catalog"
	"github.com/cardscout/cardscout/internal/scryfall"
	"github.com/cardscout/cardscout/internal/storage"
)

type fakeStore struct {
	mu        sync.Mutex
	printings map[string]*catalog.CardPrinting
	saveCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{printings: make(map[string]*catalog.CardPrinting)}
}

func (s *fakeStore) SavePrinting(ctx context.Context, p *catalog.CardPrinting) error {
	return s.SavePrintings(ctx, []*catalog.CardPrinting{p})
}

func (s *fakeStore) SavePrintings(_ context.Context, printings []*catalog.CardPrinting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	for _, p := range printings {
		s.printings[p.PrintingID] = p
	}
	return nil
}

func (s *fakeStore) PrintingByID(_ context.Context, printingID string) (*catalog.CardPrinting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.printings[printingID], nil
}

func (s *fakeStore) PrintingsByOracleID(_ context.Context, oracleID string) ([]*catalog.CardPrinting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*catalog.CardPrinting
	for _, p := range s.printings {
		if p.OracleID != nil && *p.OracleID == oracleID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) PrintingsByName(_ context.Context, normalizedName string) ([]*catalog.CardPrinting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*catalog.CardPrinting
	for _, p := range s.printings {
		if catalog.Normalize(p.Name) == normalizedName {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) PrintingsByIdentityKey(_ context.Context, key catalog.IdentityKey) ([]*catalog.CardPrinting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*catalog.CardPrinting
	for _, p := range s.printings {
		if p.IdentityKey == key {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) AllPrintings(_ context.Context) ([]*catalog.CardPrinting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*catalog.CardPrinting, 0, len(s.printings))
	for _, p := range s.printings {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) StalePrintings(context.Context, time.Duration, int) ([]*catalog.CardPrinting, error) {
	return nil, nil
}

func (s *fakeStore) UpdateRefreshables(context.Context, string, *float64, map[string]string) error {
	return nil
}

func (s *fakeStore) CountPrintings(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.printings), nil
}

func (s *fakeStore) CountIdentities(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make(map[catalog.IdentityKey]struct{})
	for _, p := range s.printings {
		keys[p.IdentityKey] = struct{}{}
	}
	return len(keys), nil
}

func (s *fakeStore) DeleteAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printings = make(map[string]*catalog.CardPrinting)
	return nil
}

type fakeRuns struct {
	mu   sync.Mutex
	runs map[string]*storage.IngestRun
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: make(map[string]*storage.IngestRun)}
}

func (r *fakeRuns) SaveRun(_ context.Context, run *storage.IngestRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := *run
	r.runs[run.RunID] = &saved
	return nil
}

func (r *fakeRuns) LastRun(context.Context) (*storage.IngestRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *storage.IngestRun
	for _, run := range r.runs {
		if last == nil || run.StartedAt.After(last.StartedAt) {
			last = run
		}
	}
	return last, nil
}

func (r *fakeRuns) RecentRuns(context.Context, int) ([]*storage.IngestRun, error) {
	return nil, nil
}

func bulkCard(id, oracleID, name string) scryfall.Card {
	return scryfall.Card{
		ID:            id,
		OracleID:      oracleID,
		Name:          name,
		Lang:          "en",
		ReleasedAt:    "2020-01-01",
		TypeLine:      "Instant",
		ManaCost:      "{R}",
		CMC:           1,
		Colors:        []string{"R"},
		ColorIdentity: []string{"R"},
		SetCode:       "TST",
		SetName:       "Test Set",
		Rarity:        "common",
		Legalities:    map[string]string{"modern": "legal"},
	}
}

func testBulkCards() []scryfall.Card {
	return []scryfall.Card{
		bulkCard("bolt-lea", "oracle-bolt", "Lightning Bolt"),
		bulkCard("bolt-m10", "oracle-bolt", "Lightning Bolt"),
		bulkCard("shock", "oracle-shock", "Shock"),
	}
}

func arrayPayload(t *testing.T, cards []scryfall.Card) []byte {
	t.Helper()
	raw, err := json.Marshal(cards)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return raw
}

func linePayload(t *testing.T, cards []scryfall.Card) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, card := range cards {
		raw, err := json.Marshal(card)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		buf.Write(raw)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

type importHarness struct {
	store    *fakeStore
	runs     *fakeRuns
	holder   *catalog.Holder
	coord    *cache.Coordinator
	hot      *cache.MemoryTier
	importer *Importer
}

func newImportHarness(t *testing.T, cfg Config) *importHarness {
	t.Helper()
	store := newFakeStore()
	runs := newFakeRuns()
	holder := catalog.NewHolder()
	hot := cache.NewMemoryTier(64, time.Minute)
	coord := cache.NewCoordinator(zap.NewNop(), hot)
	t.Cleanup(func() { coord.Close() })
	return &importHarness{
		store:    store,
		runs:     runs,
		holder:   holder,
		coord:    coord,
		hot:      hot,
		importer: NewImporter(cfg, store, runs, holder, coord, zap.NewNop()),
	}
}

func TestImportArrayPayload(t *testing.T) {
	h := newImportHarness(t, Config{})
	ctx := context.Background()

	report, err := h.importer.Import(ctx, bytes.NewReader(arrayPayload(t, testBulkCards())), "file:test.json")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if report.Seen != 3 || report.Upserted != 3 || report.Skipped != 0 {
		t.Errorf("report = %+v, want 3 seen, 3 upserted", report)
	}
	if report.Touched != 2 {
		t.Errorf("touched %d identities, want 2 (two bolt printings share one)", report.Touched)
	}

	ix := h.holder.Load()
	if ix.NumPrintings() != 3 || ix.NumIdentities() != 2 {
		t.Errorf("snapshot has %d printings / %d identities, want 3 / 2", ix.NumPrintings(), ix.NumIdentities())
	}

	run, err := h.runs.LastRun(ctx)
	if err != nil || run == nil {
		t.Fatalf("no run recorded: %v", err)
	}
	if run.FinishedAt == nil || run.Error != nil || run.PrintingsUpserted != 3 {
		t.Errorf("run = %+v, want a clean finished record", run)
	}
}

func TestImportLineDelimitedPayload(t *testing.T) {
	h := newImportHarness(t, Config{})

	report, err := h.importer.Import(context.Background(), bytes.NewReader(linePayload(t, testBulkCards())), "file:test.ndjson")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if report.Upserted != 3 {
		t.Errorf("upserted %d, want 3", report.Upserted)
	}
}

func TestImportSkipsUnusableCards(t *testing.T) {
	cards := []scryfall.Card{bulkCard("good", "oracle-good", "Good Card")}
	nonEnglish := bulkCard("jp", "oracle-jp", "Japanese Card")
	nonEnglish.Lang = "ja"
	noID := bulkCard("", "oracle-x", "Ghost Card")
	cards = append(cards, nonEnglish, noID)

	h := newImportHarness(t, Config{})
	report, err := h.importer.Import(context.Background(), bytes.NewReader(arrayPayload(t, cards)), "file:test.json")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if report.Seen != 3 || report.Upserted != 1 || report.Skipped != 2 {
		t.Errorf("report = %+v, want 1 upserted and 2 skipped", report)
	}
}

func TestImportFileGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(arrayPayload(t, testBulkCards())); err != nil {
		t.Fatalf("failed to write gzip payload: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
	path := filepath.Join(t.TempDir(), "cards.json.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write bulk file: %v", err)
	}

	h := newImportHarness(t, Config{})
	report, err := h.importer.ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if report.Upserted != 3 {
		t.Errorf("upserted %d, want 3", report.Upserted)
	}
	if report.Source != "file:cards.json.gz" {
		t.Errorf("source = %q", report.Source)
	}
}

func TestImportMalformedPayload(t *testing.T) {
	h := newImportHarness(t, Config{})

	_, err := h.importer.Import(context.Background(), strings.NewReader(`[{"id": "a", "name":`), "file:bad.json")
	if err == nil {
		t.Fatal("Import succeeded on a malformed payload")
	}

	run, rerr := h.runs.LastRun(context.Background())
	if rerr != nil || run == nil {
		t.Fatalf("no run recorded: %v", rerr)
	}
	if run.Error == nil {
		t.Error("failed run recorded without an error message")
	}
}

func TestImportEmptyPayload(t *testing.T) {
	h := newImportHarness(t, Config{})

	report, err := h.importer.Import(context.Background(), strings.NewReader(""), "file:empty.json")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if report.Seen != 0 || report.Upserted != 0 {
		t.Errorf("report = %+v, want an empty run", report)
	}
}

func TestImportBatching(t *testing.T) {
	cards := make([]scryfall.Card, 0, 5)
	for i := 0; i < 5; i++ {
		cards = append(cards, bulkCard(fmt.Sprintf("card-%d", i), fmt.Sprintf("oracle-%d", i), fmt.Sprintf("Card %d", i)))
	}

	h := newImportHarness(t, Config{BatchSize: 2})
	report, err := h.importer.Import(context.Background(), bytes.NewReader(arrayPayload(t, cards)), "file:test.json")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if report.Upserted != 5 {
		t.Errorf("upserted %d, want 5", report.Upserted)
	}
	if h.store.saveCalls != 3 {
		t.Errorf("SavePrintings called %d times, want 3 batches of 2+2+1", h.store.saveCalls)
	}
}

func TestImportInvalidatesTouchedTags(t *testing.T) {
	h := newImportHarness(t, Config{})
	ctx := context.Background()

	h.coord.Put(ctx, "rec|oracle:oracle-bolt|synergy", []byte("cached"),
		[]string{cache.TagCard("oracle:oracle-bolt")}, time.Minute)
	h.coord.Put(ctx, "search|light", []byte("cached"), []string{cache.TagSearch}, time.Minute)
	h.coord.Put(ctx, "rec|oracle:untouched|synergy", []byte("cached"),
		[]string{cache.TagCard("oracle:untouched")}, time.Minute)

	if _, err := h.importer.Import(ctx, bytes.NewReader(arrayPayload(t, testBulkCards())), "file:test.json"); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if _, ok := h.coord.Get(ctx, "rec|oracle:oracle-bolt|synergy"); ok {
		t.Error("entry for a touched identity survived the import")
	}
	if _, ok := h.coord.Get(ctx, "search|light"); ok {
		t.Error("search entry survived the import")
	}
	if _, ok := h.coord.Get(ctx, "rec|oracle:untouched|synergy"); !ok {
		t.Error("entry for an untouched identity was purged")
	}
}

func TestSourceKind(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"file:cards.json", "file"},
		{"feed:default_cards", "feed"},
		{"adhoc", "other"},
	}
	for _, tt := range tests {
		if got := sourceKind(tt.source); got != tt.want {
			t.Errorf("sourceKind(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestWatcherImportsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	h := newImportHarness(t, Config{})

	w := NewWatcher(dir, h.importer, 50*time.Millisecond, zap.NewNop())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(w.Stop)

	// A non-bulk file must not trigger anything.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	path := filepath.Join(dir, "drop.json")
	if err := os.WriteFile(path, arrayPayload(t, testBulkCards()), 0o644); err != nil {
		t.Fatalf("failed to write bulk file: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if h.holder.Load().NumPrintings() == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("import did not run; snapshot has %d printings", h.holder.Load().NumPrintings())
		case <-time.After(20 * time.Millisecond):
		}
	}

	run, err := h.runs.LastRun(context.Background())
	if err != nil || run == nil {
		t.Fatalf("no run recorded: %v", err)
	}
	if run.Source != "file:drop.json" {
		t.Errorf("run source = %q", run.Source)
	}
}

func TestIsBulkFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/drop/cards.json", true},
		{"/drop/cards.JSON", true},
		{"/drop/cards.json.gz", true},
		{"/drop/cards.txt", false},
		{"/drop/cards.gz", false},
	}
	for _, tt := range tests {
		if got := isBulkFile(tt.path); got != tt.want {
			t.Errorf("isBulkFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
