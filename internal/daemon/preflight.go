package daemon

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"log/slog"

	"golang.org/x/sys/unix"

	"hopper/internal/config"
	"hopper/internal/logging"
	"hopper/internal/services"
)

// minFreeBytes is the free-space floor for the output volume before the
// daemon warns at startup.
const minFreeBytes = 1 << 30

// runPreflight verifies the environment before the daemon commits to
// running: watch directory, pipeline binary, and disk headroom.
func runPreflight(cfg *config.Config, logger *slog.Logger) error {
	info, err := os.Stat(cfg.Paths.WatchDir)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "preflight", "watch directory unavailable", err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrConfiguration, "daemon", "preflight", "watch path is not a directory", nil)
	}

	binary := cfg.Pipeline.Binary
	if strings.ContainsRune(binary, os.PathSeparator) || filepath.IsAbs(binary) {
		if _, err := os.Stat(binary); err != nil {
			return services.Wrap(services.ErrConfiguration, "daemon", "preflight", "pipeline binary not found", err)
		}
	} else if _, err := exec.LookPath(binary); err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "preflight", "pipeline binary not on PATH", err)
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(cfg.Paths.OutputDir, &fs); err != nil {
		logger.Warn("cannot stat output volume", logging.Error(err))
		return nil
	}
	free := fs.Bavail * uint64(fs.Bsize)
	if free < minFreeBytes {
		logger.Warn("output volume is low on space",
			logging.String("dir", cfg.Paths.OutputDir),
			logging.Int64("free_bytes", int64(free)),
			logging.String(logging.FieldErrorHint, "pipeline runs may fail mid-batch"))
	}
	return nil
}
