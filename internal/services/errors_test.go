package services_test

import (
	"errors"
	"strings"
	"testing"

	"hopper/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("exit status 1")
	err := services.Wrap(services.ErrExternalTool, "runner", "pipeline run", "pipeline exited abnormally", base)

	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped base error, got %v", err)
	}
	if !strings.Contains(err.Error(), "runner: pipeline run") {
		t.Fatalf("expected component detail in message, got %q", err.Error())
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "watcher", "stat", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestIsFatalToStart(t *testing.T) {
	cfgErr := services.Wrap(services.ErrConfiguration, "daemon", "preflight", "watch directory missing", nil)
	if !services.IsFatalToStart(cfgErr) {
		t.Fatal("configuration errors must abort startup")
	}
	toolErr := services.Wrap(services.ErrExternalTool, "runner", "run", "", errors.New("exit 2"))
	if services.IsFatalToStart(toolErr) {
		t.Fatal("pipeline failures must not abort startup")
	}
}
