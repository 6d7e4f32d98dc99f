package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"hopper/internal/progress"
)

// Status describes the ingestion loop at a point in time.
type Status struct {
	Running        bool   `json:"is_running"`
	WatchDirectory string `json:"watch_directory"`
	Processing     bool   `json:"is_processing"`
	QueuedFiles    int    `json:"queued_files"`
	CurrentBatch   string `json:"current_batch,omitempty"`
}

// Progress wraps the pipeline's progress snapshot with availability
// discrimination: not processing, processing but unreachable, or live.
type Progress struct {
	Available  bool               `json:"available"`
	Processing bool               `json:"is_processing"`
	Message    string             `json:"message,omitempty"`
	Error      string             `json:"error,omitempty"`
	Progress   *progress.Snapshot `json:"progress,omitempty"`
}

// Status reports queue depth and run state. It never blocks on the
// pipeline process.
func (s *Service) Status(ctx context.Context) Status {
	s.mu.Lock()
	running := s.running
	q := s.queue
	s.mu.Unlock()

	st := Status{Running: running, WatchDirectory: s.cfg.Paths.WatchDir}
	if q != nil {
		st.QueuedFiles = q.Len()
	}
	st.Processing = s.runner.Processing()
	st.CurrentBatch = s.runner.CurrentBatch()
	return st
}

// Progress queries the per-run status endpoint. When no run is active it
// reports unavailable without touching the network; when a run is active
// but the endpoint cannot be reached, the caller should treat the
// condition as a transient service failure.
func (s *Service) Progress(ctx context.Context) Progress {
	if !s.runner.Processing() {
		return Progress{
			Available:  false,
			Processing: false,
			Message:    "no workflow currently running",
		}
	}

	snap, err := s.fetchSnapshot(ctx)
	if err != nil {
		return Progress{
			Available:  false,
			Processing: true,
			Error:      err.Error(),
		}
	}
	return Progress{
		Available:  true,
		Processing: true,
		Progress:   snap,
	}
}

func (s *Service) fetchSnapshot(ctx context.Context) (*progress.Snapshot, error) {
	url := fmt.Sprintf("http://%s/status", s.cfg.Pipeline.ReporterBind)
	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query status endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var snap progress.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode status payload: %w", err)
	}
	return &snap, nil
}
