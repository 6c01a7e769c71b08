// Package websocket streams recorded episodes to a live dataset collector.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/drlrcc/torcs-driver/pkg/core"
	"github.com/drlrcc/torcs-driver/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend implements storage.Backend and storage.StepRecorder but not
// storage.Uploadable; the collector keeps the data.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects to the collector.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the collector.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope pushes the payload to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartEpisode sends the episode header and waits for the collector's ack.
func (b *Backend) StartEpisode(e *core.Episode) error {
	data, err := marshalEnvelope(streaming.TypeStartEpisode, streaming.NewEpisodePayload(e))
	if err != nil {
		return err
	}

	b.conn.mu.Lock()
	b.conn.cachedStart = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartEpisode, ackTimeout)
}

// EndEpisode sends the final counters and waits for the collector's ack.
func (b *Backend) EndEpisode(e *core.Episode) error {
	data, err := marshalEnvelope(streaming.TypeEndEpisode, streaming.NewEpisodePayload(e))
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndEpisode, ackTimeout)

	// Clear cached state regardless of error.
	b.conn.mu.Lock()
	b.conn.cachedStart = nil
	b.conn.mu.Unlock()

	return err
}

// RecordSamples sends one batch message per episode in samples.
func (b *Backend) RecordSamples(samples []core.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	var batch *streaming.SamplesPayload
	for _, s := range samples {
		if batch != nil && batch.EpisodeID != s.EpisodeID {
			if err := b.sendEnvelope(streaming.TypeSamples, batch); err != nil {
				return err
			}
			batch = nil
		}
		if batch == nil {
			batch = &streaming.SamplesPayload{EpisodeID: s.EpisodeID}
		}
		batch.Samples = append(batch.Samples, streaming.SamplePayload{Step: s.Step, Steer: s.Steer, Frame: s.Frame})
	}
	return b.sendEnvelope(streaming.TypeSamples, batch)
}

// RecordStep streams one tick of telemetry.
func (b *Backend) RecordStep(r core.StepRecord) error {
	return b.sendEnvelope(streaming.TypeStep, streaming.NewStepPayload(r))
}
