package runner

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"hopper/internal/batch"
	"hopper/internal/config"
	"hopper/internal/services"
)

// runPayload is the per-batch config handed to the pipeline process.
type runPayload struct {
	BatchID         string   `toml:"batch_id"`
	Files           []string `toml:"files"`
	OutputDir       string   `toml:"output_dir"`
	Cores           int      `toml:"cores"`
	MemGB           int      `toml:"mem_gb"`
	TranscribeModel string   `toml:"transcribe_model"`
	DescribeModel   string   `toml:"describe_model"`
}

// writeRunPayload marshals the batch into a temp TOML file the pipeline
// reads via --config. The caller removes the file after the run.
func writeRunPayload(cfg *config.Config, b batch.Batch) (string, error) {
	payload := runPayload{
		BatchID:         b.ID,
		Files:           b.Files,
		OutputDir:       cfg.Paths.OutputDir,
		Cores:           cfg.Pipeline.Cores,
		MemGB:           cfg.Pipeline.MemGB,
		TranscribeModel: cfg.Pipeline.TranscribeModel,
		DescribeModel:   cfg.Pipeline.DescribeModel,
	}

	data, err := toml.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "runner", "payload", "marshal run payload", err)
	}

	file, err := os.CreateTemp("", fmt.Sprintf("hopper-batch-%s-*.toml", b.ID))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "runner", "payload", "create payload file", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", services.Wrap(services.ErrTransient, "runner", "payload", "write payload file", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", services.Wrap(services.ErrTransient, "runner", "payload", "close payload file", err)
	}
	return file.Name(), nil
}
