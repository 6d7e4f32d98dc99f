package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hopper/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsForMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Fatal("missing file must report exists=false")
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Ingest.BatchSize != 5 {
		t.Fatalf("batch_size default = %d, want 5", cfg.Ingest.BatchSize)
	}
	if cfg.Pipeline.Binary != "snakemake" {
		t.Fatalf("pipeline binary default = %q", cfg.Pipeline.Binary)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("logging format default = %q", cfg.Logging.Format)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	path := writeConfig(t, `
[paths]
watch_dir = "/srv/incoming"
api_bind = "127.0.0.1:9000"

[ingest]
extensions = ["MP4", ".MOV", "mp4"]
batch_size = 2
batch_timeout_seconds = 30

[pipeline]
binary = "/usr/local/bin/snakemake"
`)
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	want := []string{".mp4", ".mov"}
	if len(cfg.Ingest.Extensions) != len(want) {
		t.Fatalf("extensions = %v, want %v", cfg.Ingest.Extensions, want)
	}
	for i, ext := range want {
		if cfg.Ingest.Extensions[i] != ext {
			t.Fatalf("extensions = %v, want %v", cfg.Ingest.Extensions, want)
		}
	}
	if cfg.Ingest.BatchSize != 2 {
		t.Fatalf("batch_size = %d", cfg.Ingest.BatchSize)
	}
}

func TestLoadRejectsBadBatchSize(t *testing.T) {
	path := writeConfig(t, `
[ingest]
batch_size = 0
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for batch_size = 0")
	}
}

func TestLoadRejectsReporterBindCollision(t *testing.T) {
	path := writeConfig(t, `
[paths]
api_bind = "127.0.0.1:5113"

[pipeline]
reporter_bind = "127.0.0.1:5113"
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "reporter_bind") {
		t.Fatalf("expected reporter_bind collision error, got %v", err)
	}
}

func TestWatchesExtension(t *testing.T) {
	cfg := config.Default()
	cases := []struct {
		path string
		want bool
	}{
		{"/incoming/clip.mp4", true},
		{"/incoming/CLIP.MP4", true},
		{"/incoming/clip.mkv", true},
		{"/incoming/notes.txt", false},
		{"/incoming/noext", false},
	}
	for _, tc := range cases {
		if got := cfg.WatchesExtension(tc.path); got != tc.want {
			t.Fatalf("WatchesExtension(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = "/var/lib/hopper"
	if got := cfg.DatabasePath(); got != "/var/lib/hopper/hopper.db" {
		t.Fatalf("DatabasePath = %q", got)
	}
	if got := cfg.SocketPath(); got != "/var/lib/hopper/hopperd.sock" {
		t.Fatalf("SocketPath = %q", got)
	}
	if got := cfg.LockPath(); got != "/var/lib/hopper/hopperd.lock" {
		t.Fatalf("LockPath = %q", got)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config must load cleanly, err=%v exists=%v", err, exists)
	}
}

func TestRunTimeoutZeroMeansUnbounded(t *testing.T) {
	cfg := config.Default()
	if cfg.RunTimeout() != 0 {
		t.Fatal("default run timeout must be unbounded")
	}
	cfg.Pipeline.RunTimeoutSeconds = 90
	if cfg.RunTimeout().Seconds() != 90 {
		t.Fatalf("RunTimeout = %v", cfg.RunTimeout())
	}
}
