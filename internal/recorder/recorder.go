// Package recorder buffers (frame, steering label) samples during an
// episode and flushes them to storage at checkpoints.
package recorder

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/drlrcc/torcs-driver/internal/config"
	"github.com/drlrcc/torcs-driver/pkg/core"
)

// Sink receives flushed samples.
type Sink interface {
	RecordSamples(samples []core.Sample) error
}

// Recorder collects samples for one episode at a time.
type Recorder struct {
	cfg    config.RecorderConfig
	sink   Sink
	logger *slog.Logger

	episodeID string
	buf       []core.Sample
	total     int
	now       func() time.Time
}

// New returns a recorder writing to sink.
func New(cfg config.RecorderConfig, sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// Reset drops anything buffered and starts collecting for episodeID.
func (r *Recorder) Reset(episodeID string) {
	if len(r.buf) > 0 {
		r.logger.Warn("Dropping unflushed samples", "episodeId", r.episodeID, "count", len(r.buf))
	}
	r.episodeID = episodeID
	r.buf = r.buf[:0]
	r.total = 0
}

// Append records the frame of obs with label if tick is past the warm-up
// window. tick counts the steps completed before this one. Returns whether a
// sample was taken.
func (r *Recorder) Append(tick int, obs core.Observation, label float64) bool {
	if tick <= r.cfg.IgnoreSteps || obs.Frame == nil {
		return false
	}
	frame := make([]byte, len(obs.Frame.Pix))
	copy(frame, obs.Frame.Pix)

	r.buf = append(r.buf, core.Sample{
		EpisodeID: r.episodeID,
		Step:      tick,
		Steer:     label,
		Frame:     frame,
		Time:      r.now(),
	})
	r.total++
	return true
}

// Checkpoint flushes when steps lands on the flush interval.
func (r *Recorder) Checkpoint(steps int) error {
	if r.cfg.FlushEvery <= 0 || steps == 0 || steps%r.cfg.FlushEvery != 0 {
		return nil
	}
	r.logger.Info("Flushing buffer", "steps", steps, "count", len(r.buf))
	return r.Flush()
}

// Flush hands the buffer to the sink. The buffer is kept on error so a later
// flush can retry.
func (r *Recorder) Flush() error {
	if len(r.buf) == 0 {
		return nil
	}
	if err := r.sink.RecordSamples(r.buf); err != nil {
		return fmt.Errorf("flushing %d samples: %w", len(r.buf), err)
	}
	r.buf = nil
	return nil
}

// Buffered returns the number of samples waiting for a flush.
func (r *Recorder) Buffered() int {
	return len(r.buf)
}

// Total returns the number of samples taken this episode.
func (r *Recorder) Total() int {
	return r.total
}
