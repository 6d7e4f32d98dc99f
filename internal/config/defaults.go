package config

const (
	defaultWatchDir            = "~/incoming"
	defaultOutputDir           = "~/processed"
	defaultDataDir             = "~/.local/share/hopper"
	defaultLogDir              = "~/.local/share/hopper/logs"
	defaultAPIBind             = "127.0.0.1:5113"
	defaultBatchSize           = 5
	defaultBatchTimeoutSeconds = 300
	defaultDebounceSeconds     = 2
	defaultPipelineBinary      = "snakemake"
	defaultPipelineCores       = 4
	defaultPipelineMemGB       = 16
	defaultTranscribeModel     = "large-v3"
	defaultDescribeModel       = "qwen2.5-vl"
	defaultReporterBind        = "127.0.0.1:5114"
	defaultKillGraceSeconds    = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

func defaultExtensions() []string {
	return []string{".mp4", ".mov", ".mkv", ".avi", ".m4v"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir:  defaultWatchDir,
			OutputDir: defaultOutputDir,
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Ingest: Ingest{
			Extensions:          defaultExtensions(),
			BatchSize:           defaultBatchSize,
			BatchTimeoutSeconds: defaultBatchTimeoutSeconds,
			DebounceSeconds:     defaultDebounceSeconds,
			ScanOnStart:         true,
		},
		Pipeline: Pipeline{
			Binary:           defaultPipelineBinary,
			Cores:            defaultPipelineCores,
			MemGB:            defaultPipelineMemGB,
			TranscribeModel:  defaultTranscribeModel,
			DescribeModel:    defaultDescribeModel,
			ReporterBind:     defaultReporterBind,
			KillGraceSeconds: defaultKillGraceSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
