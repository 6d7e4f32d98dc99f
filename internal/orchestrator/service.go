// Package orchestrator wires the watch directory to pipeline runs: it
// gates settled files against the results store, batches them, and
// feeds batches to the runner one at a time.
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"log/slog"

	"hopper/internal/batch"
	"hopper/internal/config"
	"hopper/internal/logging"
	"hopper/internal/progress"
	"hopper/internal/runner"
	"hopper/internal/services"
	"hopper/internal/store"
	"hopper/internal/watcher"
)

const runBuffer = 16

// Service owns the ingestion loop for one daemon process.
type Service struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	tracker *progress.Tracker
	runner  *runner.Runner

	mu       sync.Mutex
	running  bool
	watcher  *watcher.Watcher
	queue    *batch.Queue
	runs     chan batch.Batch
	stop     chan struct{}
	inFlight map[string]struct{}

	wg sync.WaitGroup
}

// New constructs the service. The store must stay open for the service's
// lifetime.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *Service {
	tracker := progress.NewTracker(logger)
	return &Service{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "orchestrator"),
		store:    st,
		tracker:  tracker,
		runner:   runner.New(cfg, tracker, logger),
		inFlight: make(map[string]struct{}),
	}
}

// Start begins watching and processing. ctx cancellation hard-stops
// everything including an in-flight pipeline run; use Stop for the
// graceful variant that lets the current run finish.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return services.Wrap(services.ErrValidation, "orchestrator", "start", "already running", nil)
	}

	w, err := watcher.New(s.cfg, s.logger)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := w.Start(ctx); err != nil {
		s.mu.Unlock()
		w.Stop()
		return err
	}

	s.watcher = w
	s.queue = batch.NewQueue(s.cfg.Ingest.BatchSize, s.cfg.BatchTimeout(), s.submit, s.logger)
	s.runs = make(chan batch.Batch, runBuffer)
	s.stop = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.intakeLoop(ctx, w)
	go s.runLoop(ctx)

	if s.cfg.Ingest.ScanOnStart {
		if err := s.scanExisting(ctx); err != nil {
			s.logger.Warn("startup scan failed", logging.Error(err))
		}
	}

	s.logger.Info("ingestion started",
		logging.String("watch_dir", s.cfg.Paths.WatchDir),
		logging.Int("batch_size", s.cfg.Ingest.BatchSize),
		logging.Duration("batch_timeout", s.cfg.BatchTimeout()))
	return nil
}

// Stop halts intake and lets any in-flight pipeline run finish. It
// returns immediately; Wait blocks until the loops exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	w := s.watcher
	q := s.queue
	stop := s.stop
	s.watcher = nil
	s.mu.Unlock()

	w.Stop()
	q.Close()
	close(stop)
	s.logger.Info("ingestion stopping", logging.String("note", "in-flight run will finish"))
}

// Wait blocks until the intake and run loops have exited.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Running reports whether ingestion is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) intakeLoop(ctx context.Context, w *watcher.Watcher) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-w.Events():
			if !ok {
				return
			}
			s.ingest(ctx, path)
		}
	}
}

func (s *Service) runLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		// Drain the stop signal first so a pending batch cannot win the
		// select against shutdown.
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case b := <-s.runs:
			s.process(ctx, b)
		}
	}
}

// ingest applies the idempotency gate and queues the file.
func (s *Service) ingest(ctx context.Context, path string) {
	filename := filepath.Base(path)

	s.mu.Lock()
	_, busy := s.inFlight[filename]
	q := s.queue
	running := s.running
	s.mu.Unlock()
	if !running {
		return
	}
	if busy {
		s.logger.Debug("file already in flight", logging.String(logging.FieldFile, filename))
		return
	}

	processed, err := s.store.Exists(ctx, filename)
	if err != nil {
		s.logger.Error("idempotency check failed",
			logging.String(logging.FieldFile, filename),
			logging.Error(err))
		return
	}
	if processed {
		s.logger.Info("skipping already-processed file", logging.String(logging.FieldFile, filename))
		return
	}

	q.Add(path)
}

// submit is the queue's flush callback. It hands the batch to the run
// loop, or drops it with a warning when the backlog is full.
func (s *Service) submit(b batch.Batch) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Warn("dropping batch flushed after stop",
			logging.String(logging.FieldBatchID, b.ID),
			logging.Int("files", len(b.Files)))
		return
	}
	for _, path := range b.Files {
		s.inFlight[filepath.Base(path)] = struct{}{}
	}
	runs := s.runs
	s.mu.Unlock()

	select {
	case runs <- b:
	default:
		s.clearInFlight(b)
		s.logger.Warn("run backlog full, dropping batch",
			logging.String(logging.FieldBatchID, b.ID),
			logging.String(logging.FieldErrorHint, "files will be retried on the next startup scan"))
	}
}

func (s *Service) process(ctx context.Context, b batch.Batch) {
	defer s.clearInFlight(b)

	outcome, err := s.runner.Run(ctx, b)
	if err != nil || !outcome.Success {
		// Failed files stay unrecorded so a restart scan retries them.
		s.logger.Error("batch failed, files left for retry",
			logging.String(logging.FieldBatchID, b.ID),
			logging.Int("files", len(b.Files)))
		return
	}

	imported, err := s.store.ImportArtifacts(ctx, s.cfg.Paths.OutputDir, b.ID)
	if err != nil {
		s.logger.Warn("artifact import incomplete",
			logging.String(logging.FieldBatchID, b.ID),
			logging.Error(err))
	}

	// Files without artifacts still get a minimal row so they are never
	// re-ingested.
	for _, path := range b.Files {
		filename := filepath.Base(path)
		exists, err := s.store.Exists(ctx, filename)
		if err != nil {
			s.logger.Error("post-run existence check failed",
				logging.String(logging.FieldFile, filename),
				logging.Error(err))
			continue
		}
		if exists {
			continue
		}
		if err := s.store.Upsert(ctx, store.Result{Filename: filename, Keep: true, BatchID: b.ID}); err != nil {
			s.logger.Error("record processed file",
				logging.String(logging.FieldFile, filename),
				logging.Error(err))
		}
	}

	s.logger.Info("batch recorded",
		logging.String(logging.FieldBatchID, b.ID),
		logging.Int("files", len(b.Files)),
		logging.Int("artifacts", imported))
}

func (s *Service) clearInFlight(b batch.Batch) {
	s.mu.Lock()
	for _, path := range b.Files {
		delete(s.inFlight, filepath.Base(path))
	}
	s.mu.Unlock()
}

// scanExisting feeds files already sitting in the watch directory through
// the same gate as live events. Files added while the daemon was down are
// picked up here.
func (s *Service) scanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(s.cfg.Paths.WatchDir)
	if err != nil {
		return services.Wrap(services.ErrTransient, "orchestrator", "scan", "read watch directory", err)
	}
	found := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.cfg.Paths.WatchDir, entry.Name())
		if !s.cfg.WatchesExtension(path) {
			continue
		}
		s.ingest(ctx, path)
		found++
	}
	if found > 0 {
		s.logger.Info("startup scan queued existing files", logging.Int("candidates", found))
	}
	return nil
}
