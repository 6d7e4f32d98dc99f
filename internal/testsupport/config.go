// Package testsupport provides shared fixtures for package tests: fully
// wired temp-directory configs and stub pipeline binaries.
package testsupport

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"hopper/internal/config"
	"hopper/internal/store"
)

// FreePort reserves an ephemeral localhost port and returns host:port.
func FreePort(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()
	return addr
}

// StubPipeline writes an executable shell script and returns its path.
// The script body runs with $1=--config $2=<payload> $3=--reporter
// $4=<addr>.
func StubPipeline(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write stub pipeline: %v", err)
	}
	return path
}

// NewConfig returns a validated config rooted in temp directories with a
// succeeding stub pipeline and free API/reporter ports.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	return NewConfigWithPipeline(t, "exit 0")
}

// NewConfigWithPipeline is NewConfig with a custom stub script.
func NewConfigWithPipeline(t *testing.T, script string) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WatchDir = filepath.Join(base, "incoming")
	cfg.Paths.OutputDir = filepath.Join(base, "processed")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = FreePort(t)
	cfg.Ingest.BatchSize = 1
	cfg.Ingest.BatchTimeoutSeconds = 1
	cfg.Ingest.DebounceSeconds = 0
	cfg.Pipeline.Binary = StubPipeline(t, script)
	cfg.Pipeline.ReporterBind = FreePort(t)
	cfg.Pipeline.KillGraceSeconds = 1
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// MustOpenStore opens the results database for cfg and closes it with
// the test.
func MustOpenStore(t *testing.T, cfg *config.Config) *store.Store {
	t.Helper()
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}
