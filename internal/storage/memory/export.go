package memory

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

// LeaderboardExport is the root JSON structure of the export file
type LeaderboardExport struct {
	ExportedAt time.Time         `json:"exportedAt"`
	Results    []core.RaceResult `json:"results"`
}

func (b *Backend) exportPath() string {
	name := "leaderboard.json"
	if b.cfg.CompressOutput {
		name += ".gz"
	}
	return filepath.Join(b.cfg.OutputDir, name)
}

// exportJSON writes the leaderboard to OutputDir. Callers hold b.mu.
func (b *Backend) exportJSON() error {
	export := LeaderboardExport{
		ExportedAt: time.Now().UTC(),
		Results:    append([]core.RaceResult{}, b.results...),
	}

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := b.exportPath()
	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func writeJSON(path string, data LeaderboardExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data LeaderboardExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		return fmt.Errorf("failed to encode leaderboard: %w", err)
	}
	return gzWriter.Close()
}

// readExport loads an export written by exportJSON. A missing file yields nil.
func readExport(path string) (*LeaderboardExport, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open leaderboard: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if filepath.Ext(path) == ".gz" {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var export LeaderboardExport
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode leaderboard: %w", err)
	}
	return &export, nil
}
