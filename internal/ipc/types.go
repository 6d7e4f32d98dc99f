package ipc

import (
	"hopper/internal/orchestrator"
	"hopper/internal/store"
)

// StartRequest resumes ingestion.
type StartRequest struct{}

// StartResponse indicates whether ingestion was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest halts ingestion intake.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse summarizes the daemon and its ingestion loop.
type StatusResponse struct {
	PID          int    `json:"pid"`
	Running      bool   `json:"running"`
	Processing   bool   `json:"is_processing"`
	QueuedFiles  int    `json:"queued_files"`
	CurrentBatch string `json:"current_batch"`
	DatabasePath string `json:"database_path"`
	LockPath     string `json:"lock_path"`
	APIBind      string `json:"api_bind"`
}

// ProgressRequest fetches pipeline progress for the run in flight.
type ProgressRequest struct{}

// ProgressResponse mirrors the orchestrator's progress view.
type ProgressResponse = orchestrator.Progress

// ResultsListRequest lists processed-file records.
type ResultsListRequest struct{}

// ResultsListResponse carries the result rows.
type ResultsListResponse struct {
	Results []store.Result `json:"results"`
}

// ResultsKeepRequest updates the keep flag for one filename.
type ResultsKeepRequest struct {
	Filename string `json:"filename"`
	Keep     bool   `json:"keep"`
}

// ResultsKeepResponse confirms the update.
type ResultsKeepResponse struct {
	Updated bool `json:"updated"`
}

// ResultsForgetRequest removes a record so the file can be re-ingested.
type ResultsForgetRequest struct {
	Filename string `json:"filename"`
}

// ResultsForgetResponse confirms removal.
type ResultsForgetResponse struct {
	Forgotten bool `json:"forgotten"`
}
