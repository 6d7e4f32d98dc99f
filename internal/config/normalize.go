package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIngest()
	c.normalizePipeline()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WatchDir, err = expandPath(c.Paths.WatchDir); err != nil {
		return fmt.Errorf("paths.watch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeIngest() {
	if len(c.Ingest.Extensions) == 0 {
		c.Ingest.Extensions = defaultExtensions()
		return
	}
	exts := make([]string, 0, len(c.Ingest.Extensions))
	seen := make(map[string]struct{}, len(c.Ingest.Extensions))
	for _, ext := range c.Ingest.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = defaultExtensions()
	}
	c.Ingest.Extensions = exts
}

func (c *Config) normalizePipeline() {
	c.Pipeline.Binary = strings.TrimSpace(c.Pipeline.Binary)
	if c.Pipeline.Binary == "" {
		c.Pipeline.Binary = defaultPipelineBinary
	}
	c.Pipeline.ReporterBind = strings.TrimSpace(c.Pipeline.ReporterBind)
	if c.Pipeline.ReporterBind == "" {
		c.Pipeline.ReporterBind = defaultReporterBind
	}
	c.Pipeline.TranscribeModel = strings.TrimSpace(c.Pipeline.TranscribeModel)
	if c.Pipeline.TranscribeModel == "" {
		c.Pipeline.TranscribeModel = defaultTranscribeModel
	}
	c.Pipeline.DescribeModel = strings.TrimSpace(c.Pipeline.DescribeModel)
	if c.Pipeline.DescribeModel == "" {
		c.Pipeline.DescribeModel = defaultDescribeModel
	}
	if c.Pipeline.Cores <= 0 {
		c.Pipeline.Cores = defaultPipelineCores
	}
	if c.Pipeline.MemGB <= 0 {
		c.Pipeline.MemGB = defaultPipelineMemGB
	}
	if c.Pipeline.RunTimeoutSeconds < 0 {
		c.Pipeline.RunTimeoutSeconds = 0
	}
	if c.Pipeline.KillGraceSeconds <= 0 {
		c.Pipeline.KillGraceSeconds = defaultKillGraceSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
