package ipc_test

import (
	"context"
	"path/filepath"
	"testing"

	"hopper/internal/config"
	"hopper/internal/daemon"
	"hopper/internal/ipc"
	"hopper/internal/store"
	"hopper/internal/testsupport"
)

func startIPC(t *testing.T) (*ipc.Client, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, nil)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(d.Shutdown)

	socket := filepath.Join(t.TempDir(), "hopperd.sock")
	srv, err := ipc.NewServer(ctx, socket, d, nil)
	if err != nil {
		t.Fatalf("new ipc server: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("dial ipc: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, cfg
}

func TestStatusOverIPC(t *testing.T) {
	client, _ := startIPC(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Running {
		t.Fatalf("expected running daemon: %+v", status)
	}
	if status.DatabasePath == "" || status.LockPath == "" {
		t.Fatalf("paths missing from status: %+v", status)
	}
}

func TestStopStartRoundTrip(t *testing.T) {
	client, _ := startIPC(t)

	stop, err := client.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !stop.Stopped {
		t.Fatalf("stop refused: %+v", stop)
	}

	// Stopping again reports the reason instead of an RPC error.
	stop, err = client.Stop()
	if err != nil {
		t.Fatalf("double stop: %v", err)
	}
	if stop.Stopped {
		t.Fatal("double stop must report not stopped")
	}

	start, err := client.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !start.Started {
		t.Fatalf("start refused: %+v", start)
	}
}

func TestProgressIdleOverIPC(t *testing.T) {
	client, _ := startIPC(t)

	p, err := client.Progress()
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.Available || p.Processing {
		t.Fatalf("idle progress must be unavailable: %+v", p)
	}
}

func TestResultsOverIPC(t *testing.T) {
	client, cfg := startIPC(t)
	ctx := context.Background()

	// Seed through a second connection to the same database file.
	seedStore := testsupport.MustOpenStore(t, cfg)
	if err := seedStore.Upsert(ctx, store.Result{Filename: "clip.mp4", ShortDescription: "a dog", Keep: true}); err != nil {
		t.Fatalf("seed result: %v", err)
	}

	list, err := client.ResultsList()
	if err != nil {
		t.Fatalf("results list: %v", err)
	}
	if len(list.Results) != 1 || list.Results[0].Filename != "clip.mp4" {
		t.Fatalf("unexpected results: %+v", list)
	}

	keep, err := client.ResultsKeep("clip.mp4", false)
	if err != nil || !keep.Updated {
		t.Fatalf("keep update failed: err=%v resp=%+v", err, keep)
	}

	forget, err := client.ResultsForget("clip.mp4")
	if err != nil || !forget.Forgotten {
		t.Fatalf("forget failed: err=%v resp=%+v", err, forget)
	}

	if _, err := client.ResultsForget("clip.mp4"); err == nil {
		t.Fatal("forgetting a missing result must surface an error")
	}
}
