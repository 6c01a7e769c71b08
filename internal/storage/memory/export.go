package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	v1 "github.com/drlrcc/torcs-driver/internal/storage/memory/export/v1"
	"github.com/drlrcc/torcs-driver/pkg/core"
)

// exportJSON writes the episode to a JSON file, gzipped if configured.
// Caller holds b.mu.
func (b *Backend) exportJSON() error {
	e := b.episode
	export := v1.Build(*e, b.samples)

	// Build filename
	track := sanitize(e.Track)
	timestamp := e.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_ep%03d_%s.json.gz", track, e.Number, timestamp)
	} else {
		filename = fmt.Sprintf("%s_ep%03d_%s.json", track, e.Number, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	b.lastExport = core.UploadMetadata{
		EpisodeID: e.ID,
		Track:     e.Track,
		Model:     e.Model,
		Steps:     e.Steps,
		Samples:   len(export.Samples),
		Tag:       b.tag,
	}
	return nil
}

func sanitize(name string) string {
	if name == "" {
		return "unknown"
	}
	return strings.NewReplacer(" ", "_", ":", "_", "/", "_", "\\", "_").Replace(name)
}

func writeJSON(path string, data v1.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data v1.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}
