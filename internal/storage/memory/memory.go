// Package memory keeps an episode's samples in memory and exports them as a
// (optionally gzipped) JSON dataset when the episode ends.
package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/drlrcc/torcs-driver/internal/config"
	"github.com/drlrcc/torcs-driver/pkg/core"
)

// ErrNoEpisode is returned when samples arrive outside an episode.
var ErrNoEpisode = errors.New("no episode in progress")

// Backend stores episode data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	tag     string
	episode *core.Episode
	samples []core.Sample

	lastExportPath string
	lastExport     core.UploadMetadata
	mu             sync.RWMutex
}

// New creates a new memory backend. tag is attached to upload metadata.
func New(cfg config.MemoryConfig, tag string) *Backend {
	return &Backend{
		cfg: cfg,
		tag: tag,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartEpisode begins recording a new episode
func (b *Backend) StartEpisode(e *core.Episode) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.episode = e
	b.samples = b.samples[:0]
	return nil
}

// EndEpisode exports the episode and clears the sample buffer
func (b *Backend) EndEpisode(e *core.Episode) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.episode == nil || b.episode.ID != e.ID {
		return fmt.Errorf("%w: %q", ErrNoEpisode, e.ID)
	}
	b.episode = e

	err := b.exportJSON()
	b.episode = nil
	b.samples = nil
	return err
}

// RecordSamples appends samples to the current episode
func (b *Backend) RecordSamples(samples []core.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.episode == nil {
		return ErrNoEpisode
	}
	for _, s := range samples {
		if s.EpisodeID != b.episode.ID {
			return fmt.Errorf("%w: sample for %q during %q", ErrNoEpisode, s.EpisodeID, b.episode.ID)
		}
	}
	b.samples = append(b.samples, samples...)
	return nil
}

// SampleCount returns the number of samples held for the current episode.
func (b *Backend) SampleCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// GetExportedFilePath returns the path of the last exported dataset.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last exported dataset.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExport
}
