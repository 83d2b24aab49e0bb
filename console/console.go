package console

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bosley/voiceguard/metrics"
	"github.com/bosley/voiceguard/session"
)

// Configuration for the Console service
type Config struct {
	// HTTP server address
	HTTPAddr string

	// Directory watched for new .wav files; empty disables watching
	WatchDir string

	// Analyze watched files immediately instead of only selecting them
	AutoAnalyze bool

	// Capacity of the analysis queue
	QueueSize int

	// Source of the /metrics endpoint
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
}

// Console exposes a session over HTTP and websocket
type Console struct {
	config Config
	ctrl   *session.Controller

	// Context for analyses accepted over HTTP; set by Start
	ctxMu sync.Mutex
	ctx   context.Context

	// File system watcher
	watcher *fsnotify.Watcher

	// Processing queue
	queueMu     sync.Mutex
	queue       chan analysisJob
	queueClosed bool
	workers     sync.WaitGroup

	// HTTP/Websocket
	server      *http.Server
	upgrader    websocket.Upgrader
	subscribers sync.Map // map[string]*wsConnection
	unsubscribe func()
}

// New creates a new Console instance
func New(cfg Config, ctrl *session.Controller) (*Console, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	c := &Console{
		config: cfg,
		ctrl:   ctrl,
		queue:  make(chan analysisJob, cfg.QueueSize),
		// The zero CheckOrigin only admits same-origin browsers.
		upgrader: websocket.Upgrader{},
	}

	if cfg.WatchDir != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
		c.watcher = watcher
	}

	c.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	c.unsubscribe = ctrl.Subscribe(c.broadcast)
	return c, nil
}

// Start runs the worker, the watcher and the HTTP server until ctx is done
func (c *Console) Start(ctx context.Context) error {
	c.ctxMu.Lock()
	c.ctx = ctx
	c.ctxMu.Unlock()

	c.startWorker(ctx)

	if c.watcher != nil {
		go c.watchFiles(ctx)
	}

	return c.startHTTP(ctx)
}

func (c *Console) baseContext() context.Context {
	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Stop gracefully shuts down the Console service
func (c *Console) Stop(ctx context.Context) error {
	c.unsubscribe()

	// Stop accepting new jobs
	c.queueMu.Lock()
	if !c.queueClosed {
		c.queueClosed = true
		close(c.queue)
	}
	c.queueMu.Unlock()

	// Wait for workers to finish
	done := make(chan struct{})
	go func() {
		c.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out")
	}

	if err := c.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}

	c.subscribers.Range(func(key, value interface{}) bool {
		value.(*wsConnection).close()
		return true
	})

	if c.watcher != nil {
		if err := c.watcher.Close(); err != nil {
			return fmt.Errorf("failed to close file watcher: %w", err)
		}
	}

	slog.Debug("Console stopped")
	return nil
}
