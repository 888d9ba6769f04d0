package imagecache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cardscout/cardscout/internal/metrics"
)

// Priority orders preload work. Immediate tasks are for images the user
// is about to see; deferred tasks are below-the-fold warming and are
// held back briefly so they never compete with foreground fetches.
type Priority int

const (
	PriorityImmediate Priority = iota
	PriorityDeferred
)

// String returns the priority name used in logs and metrics.
func (p Priority) String() string {
	switch p {
	case PriorityImmediate:
		return "immediate"
	case PriorityDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// PreloaderConfig configures the preloader.
type PreloaderConfig struct {
	Workers       int           // concurrent fetch workers (default: 4)
	QueueSize     int           // per-priority queue capacity (default: 256)
	DeferredDelay time.Duration // hold-back before deferred tasks queue (default: 1s)
	RatePerSecond float64       // fetch rate limit shared by all workers (default: 5)
	TaskTimeout   time.Duration // per-fetch timeout (default: 15s)
}

type preloadTask struct {
	url      string
	size     ImageSize
	priority Priority
	queuedAt time.Time
}

// Preloader warms the image cache in the background. Fetch failures are
// logged and dropped; a full queue drops the task rather than blocking
// the caller.
type Preloader struct {
	cache     *Cache
	log       *zap.Logger
	limiter   *rate.Limiter
	immediate chan preloadTask
	deferred  chan preloadTask
	delay     time.Duration
	timeout   time.Duration
	workers   int
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewPreloader creates a preloader over cache. Start must be called
// before enqueued work is processed.
func NewPreloader(cache *Cache, config PreloaderConfig, log *zap.Logger) *Preloader {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.DeferredDelay <= 0 {
		config.DeferredDelay = time.Second
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 5
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = 15 * time.Second
	}

	return &Preloader{
		cache:     cache,
		log:       log.With(zap.String("component", "preloader")),
		limiter:   rate.NewLimiter(rate.Limit(config.RatePerSecond), 1),
		immediate: make(chan preloadTask, config.QueueSize),
		deferred:  make(chan preloadTask, config.QueueSize),
		delay:     config.DeferredDelay,
		timeout:   config.TaskTimeout,
		workers:   config.Workers,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the worker pool. Workers exit when ctx is canceled or
// Stop is called.
func (p *Preloader) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.log.Info("image preloader started",
		zap.Int("workers", p.workers),
		zap.Duration("deferredDelay", p.delay))
}

// Stop stops the workers and waits for in-flight fetches to finish.
func (p *Preloader) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	p.log.Info("image preloader stopped")
}

// Enqueue queues one image for preloading. Immediate tasks queue now;
// deferred tasks queue after the hold-back delay. Empty URLs and tasks
// that do not fit in the queue are dropped.
func (p *Preloader) Enqueue(url string, size ImageSize, priority Priority) {
	if url == "" {
		return
	}
	task := preloadTask{url: url, size: size, priority: priority, queuedAt: time.Now()}

	if priority == PriorityImmediate {
		select {
		case p.immediate <- task:
		default:
			p.log.Warn("preload queue full, dropping task", zap.String("url", url))
		}
		return
	}

	time.AfterFunc(p.delay, func() {
		select {
		case <-p.stopCh:
		case p.deferred <- task:
		default:
			p.log.Debug("deferred preload queue full, dropping task", zap.String("url", url))
		}
	})
}

// worker drains immediate work first and falls back to deferred tasks
// only when no foreground work is waiting.
func (p *Preloader) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case task := <-p.immediate:
			p.process(ctx, task)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case task := <-p.immediate:
			p.process(ctx, task)
		case task := <-p.deferred:
			p.process(ctx, task)
		}
	}
}

func (p *Preloader) process(ctx context.Context, task preloadTask) {
	if p.cache.Cached(task.url, task.size) {
		return
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.cache.GetImage(fetchCtx, task.url, task.size)
	metrics.RecordImagePreload(task.priority.String(), err)
	if err != nil {
		p.log.Debug("image preload failed",
			zap.String("url", task.url),
			zap.String("priority", task.priority.String()),
			zap.Duration("queueAge", time.Since(task.queuedAt)),
			zap.Error(err))
	}
}
