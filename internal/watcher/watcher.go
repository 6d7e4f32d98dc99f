// Package watcher turns filesystem events in the ingest directory into a
// stream of stable media file paths. A per-file debounce window absorbs
// the write bursts produced by copies and network transfers, so a path is
// emitted only after it has been quiet for the configured window.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"log/slog"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"

	"hopper/internal/config"
	"hopper/internal/logging"
	"hopper/internal/services"
)

const eventBuffer = 64

// Watcher observes the configured watch directory.
type Watcher struct {
	cfg    *config.Config
	logger *slog.Logger

	fsw    *fsnotify.Watcher
	events chan string
	window time.Duration

	mu         sync.Mutex
	debouncers map[string]func(func())
	closed     bool
	started    bool

	done chan struct{}
}

// New constructs a watcher for cfg.Paths.WatchDir. Call Start to begin
// observation.
func New(cfg *config.Config, logger *slog.Logger) (*Watcher, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "watcher", "new", "config is required", nil)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "watcher", "new", "create fsnotify watcher", err)
	}
	return &Watcher{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "watcher"),
		fsw:        fsw,
		events:     make(chan string, eventBuffer),
		window:     cfg.DebounceWindow(),
		debouncers: make(map[string]func(func())),
		done:       make(chan struct{}),
	}, nil
}

// Events returns the stream of settled file paths. The channel closes
// after Stop once the event loop drains.
func (w *Watcher) Events() <-chan string {
	return w.events
}

// Start registers the watch directory and launches the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	info, err := os.Stat(w.cfg.Paths.WatchDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrConfiguration, "watcher", "start", "watch directory does not exist", err)
		}
		return services.Wrap(services.ErrConfiguration, "watcher", "start", "stat watch directory", err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrConfiguration, "watcher", "start", "watch path is not a directory", nil)
	}
	if err := w.fsw.Add(w.cfg.Paths.WatchDir); err != nil {
		return services.Wrap(services.ErrConfiguration, "watcher", "start", "register watch directory", err)
	}

	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.loop(ctx)

	w.logger.Info("watching for media files",
		logging.String("directory", w.cfg.Paths.WatchDir),
		logging.Duration("debounce", w.window))
	return nil
}

// Stop tears down the filesystem watch and closes the event stream.
// Debounce timers already in flight are discarded.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	_ = w.fsw.Close()
	if started {
		<-w.done
	}
	close(w.events)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}
	path := event.Name
	if !w.cfg.WatchesExtension(path) {
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	settle, ok := w.debouncers[path]
	if !ok {
		settle = debounce.New(w.window)
		w.debouncers[path] = settle
	}
	w.mu.Unlock()

	settle(func() { w.emit(path) })
}

func (w *Watcher) emit(path string) {
	// The file may have been renamed or removed while it settled.
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		w.logger.Debug("settled path vanished", logging.String(logging.FieldFile, path))
		return
	}

	// The closed check and the send share the mutex so a late debounce
	// timer can never hit the channel after Stop closed it.
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	delete(w.debouncers, path)

	select {
	case w.events <- path:
		w.logger.Info("file settled",
			logging.String(logging.FieldFile, path),
			logging.Int64("size_bytes", info.Size()))
	default:
		w.logger.Warn("event buffer full, dropping file",
			logging.String(logging.FieldFile, path),
			logging.String(logging.FieldErrorHint, "file will be picked up by the next startup scan"))
	}
}
