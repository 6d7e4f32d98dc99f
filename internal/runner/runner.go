// Package runner executes the external pipeline once per batch. Runs are
// strictly serial, and the runner's mutex guards only the run handle:
// it is held for assignment and clearing, never across process I/O, so
// Processing and status queries always answer immediately.
package runner

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"log/slog"

	"hopper/internal/batch"
	"hopper/internal/config"
	"hopper/internal/logging"
	"hopper/internal/progress"
	"hopper/internal/services"
	"hopper/internal/statusapi"
)

// ErrRunInProgress is returned when Run is called while a pipeline
// process is still alive.
var ErrRunInProgress = errors.New("pipeline run already in progress")

const logTailLines = 40

// Outcome summarizes one finished pipeline run.
type Outcome struct {
	BatchID  string
	Success  bool
	ExitCode int
	TimedOut bool
	Duration time.Duration
	Progress progress.Snapshot
	LogTail  []string
}

// Runner owns pipeline subprocess execution and the per-run progress
// tracker.
type Runner struct {
	cfg     *config.Config
	logger  *slog.Logger
	tracker *progress.Tracker

	mu      sync.Mutex
	current *runHandle
}

type runHandle struct {
	batchID string
	started time.Time
	cancel  context.CancelFunc
}

// New constructs a runner. The tracker is shared with whoever serves
// progress queries.
func New(cfg *config.Config, tracker *progress.Tracker, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "runner"),
		tracker: tracker,
	}
}

// Processing reports whether a pipeline run is in flight. It only takes
// the handle mutex and returns immediately even mid-run.
func (r *Runner) Processing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// CurrentBatch returns the in-flight batch id, or "" when idle.
func (r *Runner) CurrentBatch() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ""
	}
	return r.current.batchID
}

// Cancel stops the in-flight run, if any. The pipeline gets SIGTERM and
// then the configured kill grace before SIGKILL.
func (r *Runner) Cancel() {
	r.mu.Lock()
	handle := r.current
	r.mu.Unlock()
	if handle != nil {
		handle.cancel()
	}
}

// Run executes the pipeline for b and blocks until it exits. The batch's
// progress is streamed into the tracker as the process reports it.
func (r *Runner) Run(ctx context.Context, b batch.Batch) (Outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if timeout := r.cfg.RunTimeout(); timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	// Claim the run slot. Assignment only; the lock is released before
	// anything that can block.
	r.mu.Lock()
	if r.current != nil {
		r.mu.Unlock()
		return Outcome{}, services.Wrap(services.ErrValidation, "runner", "run", "", ErrRunInProgress)
	}
	r.current = &runHandle{batchID: b.ID, started: time.Now(), cancel: cancel}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.current = nil
		r.mu.Unlock()
	}()

	r.tracker.Reset()

	// A reporter bind failure does not abort the run; progress queries
	// surface it as the unreachable-while-processing state instead.
	status := statusapi.New(r.cfg.Pipeline.ReporterBind, r.tracker, r.logger)
	reporterAddr := r.cfg.Pipeline.ReporterBind
	if err := status.Start(runCtx); err != nil {
		r.logger.Warn("status server unavailable for this run",
			logging.String("bind", r.cfg.Pipeline.ReporterBind),
			logging.Error(err))
	} else {
		reporterAddr = status.Addr()
		defer status.Stop()
	}

	payloadPath, err := writeRunPayload(r.cfg, b)
	if err != nil {
		return Outcome{}, err
	}
	defer os.Remove(payloadPath)

	ctx = services.WithBatchID(ctx, b.ID)
	log := logging.WithContext(ctx, r.logger)
	log.Info("pipeline run starting",
		logging.Int("files", len(b.Files)),
		logging.String("binary", r.cfg.Pipeline.Binary))

	outcome, runErr := r.execute(runCtx, b, payloadPath, reporterAddr, log)
	outcome.Progress = r.tracker.Snapshot()

	if outcome.TimedOut {
		log.Error("pipeline run timed out",
			logging.Duration("after", outcome.Duration),
			logging.Int("completed_jobs", outcome.Progress.CompletedJobs))
	} else if runErr != nil || !outcome.Success {
		log.Error("pipeline run failed",
			logging.Int("exit_code", outcome.ExitCode),
			logging.Duration("duration", outcome.Duration))
	} else {
		log.Info("pipeline run finished",
			logging.Duration("duration", outcome.Duration),
			logging.Int("completed_jobs", outcome.Progress.CompletedJobs),
			logging.Int("failed_jobs", outcome.Progress.FailedJobs))
	}
	return outcome, runErr
}

func (r *Runner) execute(ctx context.Context, b batch.Batch, payloadPath, reporterAddr string, log *slog.Logger) (Outcome, error) {
	started := time.Now()
	outcome := Outcome{BatchID: b.ID}

	cmd := exec.CommandContext(ctx, r.cfg.Pipeline.Binary,
		"--config", payloadPath,
		"--reporter", reporterAddr,
	)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.cfg.KillGrace()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return outcome, services.Wrap(services.ErrExternalTool, "runner", "run", "attach stdout", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return outcome, services.Wrap(services.ErrExternalTool, "runner", "run", "start pipeline process", err)
	}

	tail := newTailBuffer(logTailLines)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail.add(line)
		if ev, ok := progress.ParseEvent(line); ok {
			r.tracker.Apply(ev)
			continue
		}
		log.Debug("pipeline output", logging.String("line", line))
	}
	if err := scanner.Err(); err != nil {
		log.Warn("pipeline output stream error", logging.Error(err))
	}

	waitErr := cmd.Wait()
	outcome.Duration = time.Since(started)
	outcome.LogTail = tail.lines()
	outcome.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)

	if waitErr == nil {
		outcome.Success = true
		return outcome, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		outcome.ExitCode = exitErr.ExitCode()
	} else {
		outcome.ExitCode = -1
	}
	if outcome.TimedOut {
		return outcome, services.Wrap(services.ErrTimeout, "runner", "run", "pipeline exceeded run timeout", waitErr)
	}
	return outcome, services.Wrap(services.ErrExternalTool, "runner", "run", "pipeline exited abnormally", waitErr)
}

type tailBuffer struct {
	limit int
	buf   []string
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) add(line string) {
	t.buf = append(t.buf, line)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
}

func (t *tailBuffer) lines() []string {
	out := make([]string, len(t.buf))
	copy(out, t.buf)
	return out
}
