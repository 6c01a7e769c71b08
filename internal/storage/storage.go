// Package storage defines where recorded episodes go.
package storage

import "github.com/drlrcc/torcs-driver/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Episode management
	StartEpisode(e *core.Episode) error
	EndEpisode(e *core.Episode) error

	// Sample recording; samples belong to the episode named by their EpisodeID
	RecordSamples(samples []core.Sample) error
}

// StepRecorder is an optional interface for backends that keep per-tick
// telemetry next to the samples.
type StepRecorder interface {
	RecordStep(r core.StepRecord) error
}

// Uploadable is an optional interface for storage backends that produce
// dataset files suitable for upload to the training server.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
