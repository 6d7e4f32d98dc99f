package runner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hopper/internal/batch"
	"hopper/internal/config"
	"hopper/internal/progress"
	"hopper/internal/services"
)

func freePort(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()
	return addr
}

func writeStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline")
	contents := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(path, []byte(contents), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func testConfig(t *testing.T, stub string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.WatchDir = t.TempDir()
	cfg.Pipeline.Binary = stub
	cfg.Pipeline.ReporterBind = freePort(t)
	cfg.Pipeline.KillGraceSeconds = 1
	return &cfg
}

func TestRunStreamsEventsIntoTracker(t *testing.T) {
	stub := writeStub(t, `
echo '{"event":"workflow_started"}'
echo '{"event":"job_info","job_id":1,"rule":"transcode"}'
echo '{"event":"job_started","job_id":1}'
echo 'Building DAG of jobs...'
echo '{"event":"job_finished","job_id":1}'
echo '{"event":"workflow_finished"}'
`)
	cfg := testConfig(t, stub)
	tracker := progress.NewTracker(nil)
	r := New(cfg, tracker, nil)

	outcome, err := r.Run(context.Background(), batch.Batch{ID: "b-1", Files: []string{"/in/clip.mp4"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected success: %+v", outcome)
	}
	if outcome.Progress.CompletedJobs != 1 || outcome.Progress.TotalJobs != 1 {
		t.Fatalf("tracker missed events: %+v", outcome.Progress)
	}
	if r.Processing() {
		t.Fatal("runner must be idle after run")
	}
}

func TestRunFailureCapturesExitCodeAndTail(t *testing.T) {
	stub := writeStub(t, `
echo 'Error in rule transcode'
echo 'ffmpeg exited 1'
exit 3
`)
	cfg := testConfig(t, stub)
	r := New(cfg, progress.NewTracker(nil), nil)

	outcome, err := r.Run(context.Background(), batch.Batch{ID: "b-2", Files: []string{"/in/clip.mp4"}})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if outcome.Success || outcome.ExitCode != 3 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	joined := strings.Join(outcome.LogTail, "\n")
	if !strings.Contains(joined, "ffmpeg exited 1") {
		t.Fatalf("log tail missing failure line: %q", joined)
	}
}

func TestRunPayloadCarriesBatchFiles(t *testing.T) {
	// $2 is the --config payload path.
	stub := writeStub(t, `grep -q 'clip.mp4' "$2" || exit 9`)
	cfg := testConfig(t, stub)
	r := New(cfg, progress.NewTracker(nil), nil)

	outcome, err := r.Run(context.Background(), batch.Batch{ID: "b-3", Files: []string{"/in/clip.mp4"}})
	if err != nil || !outcome.Success {
		t.Fatalf("payload did not reach pipeline: err=%v outcome=%+v", err, outcome)
	}
}

func TestProcessingAnswersDuringRun(t *testing.T) {
	stub := writeStub(t, `sleep 2`)
	cfg := testConfig(t, stub)
	r := New(cfg, progress.NewTracker(nil), nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), batch.Batch{ID: "b-4", Files: []string{"/in/clip.mp4"}})
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !r.Processing() {
		if time.Now().After(deadline) {
			t.Fatal("run never became active")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The run handle lock must never be held across subprocess I/O, so
	// these queries return in well under the stub's sleep.
	start := time.Now()
	for i := 0; i < 100; i++ {
		if !r.Processing() {
			t.Fatal("runner reported idle mid-run")
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Processing blocked for %v during run", elapsed)
	}
	if got := r.CurrentBatch(); got != "b-4" {
		t.Fatalf("CurrentBatch = %q", got)
	}

	// The per-run status endpoint is reachable while the process runs.
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/health", cfg.Pipeline.ReporterBind))
	if err != nil {
		t.Fatalf("status endpoint unreachable mid-run: %v", err)
	}
	resp.Body.Close()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	stub := writeStub(t, `sleep 1`)
	cfg := testConfig(t, stub)
	r := New(cfg, progress.NewTracker(nil), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Run(context.Background(), batch.Batch{ID: "b-5", Files: []string{"/in/a.mp4"}})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !r.Processing() {
		if time.Now().After(deadline) {
			t.Fatal("first run never became active")
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, err := r.Run(context.Background(), batch.Batch{ID: "b-6", Files: []string{"/in/b.mp4"}})
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	<-done
}

func TestRunTimeoutTerminatesPipeline(t *testing.T) {
	stub := writeStub(t, `sleep 30`)
	cfg := testConfig(t, stub)
	cfg.Pipeline.RunTimeoutSeconds = 1

	r := New(cfg, progress.NewTracker(nil), nil)
	start := time.Now()
	outcome, err := r.Run(context.Background(), batch.Batch{ID: "b-7", Files: []string{"/in/clip.mp4"}})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !outcome.TimedOut {
		t.Fatalf("outcome must report timeout: %+v", outcome)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("timed-out run took too long to die: %v", elapsed)
	}
}

func TestCancelStopsRun(t *testing.T) {
	stub := writeStub(t, `sleep 30`)
	cfg := testConfig(t, stub)
	r := New(cfg, progress.NewTracker(nil), nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), batch.Batch{ID: "b-8", Files: []string{"/in/clip.mp4"}})
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !r.Processing() {
		if time.Now().After(deadline) {
			t.Fatal("run never became active")
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.Cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("cancelled run must report an error")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("cancel did not stop the run")
	}
}

func TestPayloadFileIsRemoved(t *testing.T) {
	stub := writeStub(t, `cp "$2" "$PAYLOAD_COPY"`)
	cfg := testConfig(t, stub)
	copyPath := filepath.Join(t.TempDir(), "payload.toml")
	t.Setenv("PAYLOAD_COPY", copyPath)

	r := New(cfg, progress.NewTracker(nil), nil)
	outcome, err := r.Run(context.Background(), batch.Batch{ID: "b-9", Files: []string{"/in/clip.mp4"}})
	if err != nil || !outcome.Success {
		t.Fatalf("run: err=%v outcome=%+v", err, outcome)
	}

	data, err := os.ReadFile(copyPath)
	if err != nil {
		t.Fatalf("stub did not receive payload: %v", err)
	}
	if !strings.Contains(string(data), "batch_id = 'b-9'") && !strings.Contains(string(data), `batch_id = "b-9"`) {
		t.Fatalf("payload missing batch id: %s", data)
	}

	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "hopper-batch-b-9-*.toml"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("payload temp files left behind: %v", matches)
	}
}
