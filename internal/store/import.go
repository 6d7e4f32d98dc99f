package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// artifact is the per-file summary the pipeline's describe stage writes
// next to its outputs.
type artifact struct {
	Filename         string  `json:"filename"`
	ShortDescription string  `json:"short_description"`
	LongDescription  string  `json:"long_description"`
	Thumbnail        string  `json:"thumbnail"`
	ClipCutDuration  float64 `json:"clip_cut_duration"`
}

// ImportArtifacts scans dir for *.result.json artifacts and upserts a
// result row for each. Returns the number of rows imported. Unreadable
// or malformed artifacts are skipped and reported together at the end.
func (s *Store) ImportArtifacts(ctx context.Context, dir, batchID string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read artifact directory: %w", err)
	}

	imported := 0
	var skipped []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".result.json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			skipped = append(skipped, entry.Name())
			continue
		}
		var art artifact
		if err := json.Unmarshal(data, &art); err != nil || art.Filename == "" {
			skipped = append(skipped, entry.Name())
			continue
		}
		res := Result{
			Filename:         art.Filename,
			ShortDescription: art.ShortDescription,
			LongDescription:  art.LongDescription,
			ThumbnailPath:    art.Thumbnail,
			Keep:             true,
			ClipCutDuration:  art.ClipCutDuration,
			BatchID:          batchID,
			LastUpdated:      time.Now().UTC(),
		}
		if err := s.Upsert(ctx, res); err != nil {
			return imported, fmt.Errorf("import %s: %w", entry.Name(), err)
		}
		imported++
	}

	if len(skipped) > 0 {
		return imported, fmt.Errorf("skipped %d malformed artifacts: %s", len(skipped), strings.Join(skipped, ", "))
	}
	return imported, nil
}
