package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		return errors.New("paths.watch_dir must be set")
	}
	if c.Paths.WatchDir == c.Paths.OutputDir {
		return errors.New("paths.output_dir must differ from paths.watch_dir")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q is not host:port: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.BatchSize < 1 {
		return errors.New("ingest.batch_size must be >= 1")
	}
	if c.Ingest.BatchTimeoutSeconds <= 0 {
		return errors.New("ingest.batch_timeout_seconds must be positive")
	}
	if c.Ingest.DebounceSeconds < 0 {
		return errors.New("ingest.debounce_seconds must be >= 0")
	}
	for _, ext := range c.Ingest.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("ingest.extensions entry %q must be a dotted extension", ext)
		}
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if strings.TrimSpace(c.Pipeline.Binary) == "" {
		return errors.New("pipeline.binary must be set")
	}
	if _, _, err := net.SplitHostPort(c.Pipeline.ReporterBind); err != nil {
		return fmt.Errorf("pipeline.reporter_bind %q is not host:port: %w", c.Pipeline.ReporterBind, err)
	}
	if c.Pipeline.ReporterBind == c.Paths.APIBind {
		return errors.New("pipeline.reporter_bind must differ from paths.api_bind")
	}
	if c.Pipeline.Cores <= 0 {
		return errors.New("pipeline.cores must be positive")
	}
	if c.Pipeline.MemGB <= 0 {
		return errors.New("pipeline.mem_gb must be positive")
	}
	return nil
}
