// Package daemon hosts the long-running hopper process: single-instance
// locking, startup preflight, the ingestion orchestrator, and the HTTP
// control API.
package daemon

import (
	"context"
	"fmt"
	"os"
	"sync"

	"log/slog"

	"github.com/gofrs/flock"

	"hopper/internal/config"
	"hopper/internal/logging"
	"hopper/internal/orchestrator"
	"hopper/internal/services"
	"hopper/internal/store"
)

// Daemon ties the orchestrator, results store, and API server together.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	lock  *flock.Flock
	store *store.Store
	svc   *orchestrator.Service
	api   *apiServer

	mu      sync.Mutex
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
}

// Status is a point-in-time daemon summary.
type Status struct {
	PID          int                 `json:"pid"`
	Running      bool                `json:"running"`
	Orchestrator orchestrator.Status `json:"orchestrator"`
	DatabasePath string              `json:"database_path"`
	LockPath     string              `json:"lock_path"`
	APIBind      string              `json:"api_bind"`
}

// New acquires the instance lock, runs preflight, and opens the store.
// The daemon is not processing until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "new", "config is required", nil)
	}
	log := logging.NewComponentLogger(logger, "daemon")

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "new", "ensure directories", err)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "new", "acquire instance lock", err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrValidation, "daemon", "new",
			fmt.Sprintf("another instance holds %s", cfg.LockPath()), nil)
	}

	if err := runPreflight(cfg, log); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	st, err := store.Open(cfg)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	d := &Daemon{
		cfg:    cfg,
		logger: log,
		lock:   lock,
		store:  st,
		svc:    orchestrator.New(cfg, st, logger),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start launches ingestion and the API server. ctx cancellation
// hard-stops everything including in-flight pipeline runs.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return services.Wrap(services.ErrValidation, "daemon", "start", "already started", nil)
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.runCtx = runCtx
	d.cancel = cancel
	d.started = true
	d.mu.Unlock()

	if err := d.api.start(runCtx); err != nil {
		return err
	}
	if err := d.svc.Start(runCtx); err != nil {
		return err
	}

	d.logger.Info("daemon started",
		logging.Int("pid", os.Getpid()),
		logging.String("api_bind", d.cfg.Paths.APIBind))
	return nil
}

// Shutdown stops everything: ingestion intake, the in-flight run, the
// API server, the store, and the instance lock.
func (d *Daemon) Shutdown() {
	d.mu.Lock()
	cancel := d.cancel
	started := d.started
	d.started = false
	d.mu.Unlock()

	if started {
		d.svc.Stop()
		if cancel != nil {
			cancel()
		}
		d.svc.Wait()
		d.api.stop()
	}
	if err := d.store.Close(); err != nil {
		d.logger.Warn("close store", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release instance lock", logging.Error(err))
	}
	d.logger.Info("daemon stopped")
}

// IngestOverrides optionally retune ingestion at start time. Zero-value
// fields leave the configured value alone.
type IngestOverrides struct {
	WatchDirectory      string `json:"watch_directory"`
	BatchSize           int    `json:"batch_size"`
	BatchTimeoutSeconds int    `json:"batch_timeout_seconds"`
}

func (d *Daemon) applyOverrides(o *IngestOverrides) error {
	if o == nil {
		return nil
	}
	if o.BatchSize < 0 {
		return services.Wrap(services.ErrValidation, "daemon", "start ingest", "batch_size must be at least 1", nil)
	}
	if o.BatchTimeoutSeconds < 0 {
		return services.Wrap(services.ErrValidation, "daemon", "start ingest", "batch_timeout_seconds must be at least 1", nil)
	}
	if dir := o.WatchDirectory; dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return services.Wrap(services.ErrValidation, "daemon", "start ingest", "expand watch directory", err)
		}
		info, err := os.Stat(expanded)
		if err != nil || !info.IsDir() {
			return services.Wrap(services.ErrValidation, "daemon", "start ingest",
				fmt.Sprintf("watch directory %s is not an accessible directory", expanded), err)
		}
		d.cfg.Paths.WatchDir = expanded
	}
	if o.BatchSize > 0 {
		d.cfg.Ingest.BatchSize = o.BatchSize
	}
	if o.BatchTimeoutSeconds > 0 {
		d.cfg.Ingest.BatchTimeoutSeconds = o.BatchTimeoutSeconds
	}
	return nil
}

// StartIngest resumes ingestion after an API stop, optionally applying
// override tuning. The new watch loop is bound to the daemon's run
// context, not the caller's request context.
func (d *Daemon) StartIngest(overrides *IngestOverrides) error {
	d.mu.Lock()
	runCtx := d.runCtx
	started := d.started
	d.mu.Unlock()
	if !started || runCtx == nil {
		return services.Wrap(services.ErrValidation, "daemon", "start ingest", "daemon is not running", nil)
	}
	if d.svc.Running() {
		return services.Wrap(services.ErrValidation, "daemon", "start ingest", "ingestion is already running", nil)
	}
	if err := d.applyOverrides(overrides); err != nil {
		return err
	}
	return d.svc.Start(runCtx)
}

// StopIngest halts intake; the in-flight run finishes.
func (d *Daemon) StopIngest() error {
	if !d.svc.Running() {
		return services.Wrap(services.ErrValidation, "daemon", "stop ingest", "ingestion is not running", nil)
	}
	d.svc.Stop()
	return nil
}

// Status summarizes the daemon and its orchestrator.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		PID:          os.Getpid(),
		Running:      d.svc.Running(),
		Orchestrator: d.svc.Status(ctx),
		DatabasePath: d.cfg.DatabasePath(),
		LockPath:     d.cfg.LockPath(),
		APIBind:      d.cfg.Paths.APIBind,
	}
}

// Progress proxies the orchestrator's pipeline progress view.
func (d *Daemon) Progress(ctx context.Context) orchestrator.Progress {
	return d.svc.Progress(ctx)
}

// Results lists all processed-file records.
func (d *Daemon) Results(ctx context.Context) ([]store.Result, error) {
	return d.store.List(ctx)
}

// SetKeep updates the keep flag on one result.
func (d *Daemon) SetKeep(ctx context.Context, filename string, keep bool) error {
	return d.store.SetKeep(ctx, filename, keep)
}

// ForgetResult removes a result so the file can be ingested again.
func (d *Daemon) ForgetResult(ctx context.Context, filename string) error {
	return d.store.Forget(ctx, filename)
}
