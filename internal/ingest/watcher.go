package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// Watcher imports bulk files dropped into a directory. Each file's import
// waits until its write events settle, so a half-copied dump is never
// read mid-write.
type Watcher struct {
	dir      string
	importer *Importer
	debounce time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWatcher(dir string, importer *Importer, debounce time.Duration, log *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		dir:      dir,
		importer: importer,
		debounce: debounce,
		log:      log.With(zap.String("component", "ingest-watcher")),
		pending:  make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
	}
}

// Start begins watching the drop directory. The watcher runs until Stop
// is called or the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.wg.Add(1)
	go w.run(ctx, fw)

	w.log.Info("watching drop directory", zap.String("dir", w.dir))
	return nil
}

// Stop halts the event loop and cancels imports not yet started.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()

	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isBulkFile(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", zap.Error(err))
		}
	}
}

// schedule arms or pushes back the debounce timer for one path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case <-w.stopCh:
			return
		default:
		}
		if ctx.Err() != nil {
			return
		}

		report, err := w.importer.ImportFile(ctx, path)
		if err != nil {
			w.log.Error("drop import failed", zap.String("path", path), zap.Error(err))
			return
		}
		w.log.Info("drop import finished",
			zap.String("path", path),
			zap.String("run_id", report.RunID),
			zap.Int("upserted", report.Upserted),
			zap.Int("skipped", report.Skipped))
	})
}

func isBulkFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	return strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz")
}
