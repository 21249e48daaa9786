package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherClosed is returned when starting a stopped watcher
var ErrWatcherClosed = errors.New("config watcher closed")

// Watcher reloads the config file whenever it is written and reports valid results
// The parent directory is watched so editors that replace the file are seen
type Watcher struct {
	path     string
	onChange func(*Config)
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool

	closeCh  chan struct{}
	closedWg sync.WaitGroup

	reloads  atomic.Int64
	failures atomic.Int64
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithWatcherLogger routes reload logs to logger
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher for path; onChange runs on the watcher goroutine
func NewWatcher(path string, onChange func(*Config), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     path,
		onChange: onChange,
		logger:   slog.New(slog.DiscardHandler),
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Watcher) Name() string { return "config" }

func (w *Watcher) Dependencies() []string { return nil }

// Init creates the fsnotify watcher on the config directory
func (w *Watcher) Init() error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w.mu.Lock()
	w.path = abs
	w.watcher = fsw
	w.mu.Unlock()
	return nil
}

// Start launches the event processing loop
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.watcher == nil {
		return ErrWatcherClosed
	}

	w.closedWg.Add(1)
	go w.processLoop(ctx, w.watcher)
	return nil
}

// Stop closes the watcher and waits for the loop; idempotent
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	fsw := w.watcher
	w.mu.Unlock()

	var err error
	if fsw != nil {
		err = fsw.Close()
	}
	w.closedWg.Wait()
	return err
}

func (w *Watcher) processLoop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.closedWg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.closeCh:
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.reload()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// reload keeps the previous config on failure
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.failures.Add(1)
		w.logger.Warn("config reload rejected", "path", w.path, "error", err)
		return
	}
	w.reloads.Add(1)
	w.logger.Info("config reloaded", "path", w.path, "fps", cfg.FPS)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Reloads returns the number of successful reloads
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

// Failures returns the number of rejected reloads
func (w *Watcher) Failures() int64 {
	return w.failures.Load()
}
