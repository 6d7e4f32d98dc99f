package main

import (
	"strings"
	"testing"

	"hopper/internal/ipc"
	"hopper/internal/orchestrator"
	"hopper/internal/progress"
)

func TestRenderStatusIdle(t *testing.T) {
	out := renderStatus(&ipc.StatusResponse{
		PID:          4242,
		Running:      true,
		QueuedFiles:  3,
		DatabasePath: "/var/lib/hopper/hopper.db",
		APIBind:      "127.0.0.1:5113",
	}, false)

	for _, want := range []string{
		"Daemon: running (pid 4242)",
		"Pipeline: idle",
		"Queued files: 3",
		"API: http://127.0.0.1:5113",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStatusProcessing(t *testing.T) {
	out := renderStatus(&ipc.StatusResponse{
		Running:      true,
		Processing:   true,
		CurrentBatch: "batch-7",
	}, false)

	if !strings.Contains(out, "processing batch batch-7") {
		t.Errorf("expected current batch in output:\n%s", out)
	}
}

func TestRenderProgressNotRunning(t *testing.T) {
	out := renderProgress(&ipc.ProgressResponse{})
	if !strings.Contains(out, "No workflow currently running") {
		t.Errorf("unexpected idle output: %q", out)
	}
}

func TestRenderProgressUnavailable(t *testing.T) {
	out := renderProgress(&ipc.ProgressResponse{
		Processing: true,
		Error:      "status endpoint returned 500",
	})
	if !strings.Contains(out, "progress is unavailable") {
		t.Errorf("expected unavailable message, got %q", out)
	}
	if !strings.Contains(out, "status endpoint returned 500") {
		t.Errorf("expected error detail, got %q", out)
	}
}

func TestRenderProgressTable(t *testing.T) {
	expected := 10
	satisfied := 6
	out := renderProgress(&orchestrator.Progress{
		Available:  true,
		Processing: true,
		Progress: &progress.Snapshot{
			TotalJobs:     6,
			CompletedJobs: 3,
			RunningJobs:   1,
			PendingJobs:   1,
			FailedJobs:    1,
			Rules: map[string]progress.RuleSnapshot{
				"transcribe_audio": {
					Total:            4,
					Completed:        3,
					Running:          1,
					ExpectedTotal:    &expected,
					AlreadySatisfied: &satisfied,
				},
				"describe_video": {
					Total:   2,
					Pending: 1,
					Failed:  1,
				},
			},
		},
	})

	if !strings.Contains(out, "Jobs: 6 total, 3 completed, 1 running, 1 pending, 1 failed") {
		t.Errorf("missing totals line:\n%s", out)
	}
	if !strings.Contains(out, "Transcribe Audio") {
		t.Errorf("expected title-cased rule name:\n%s", out)
	}
	if !strings.Contains(out, "3/4") {
		t.Errorf("expected done column:\n%s", out)
	}
	if !strings.Contains(out, "6") {
		t.Errorf("expected already-satisfied count:\n%s", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 48); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("x", 60)
	got := truncate(long, 48)
	if len(got) != 48 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate long = %q (len %d)", got, len(got))
	}
}
