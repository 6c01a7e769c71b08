// Package streaming defines the messages the websocket recorder sends to a
// live dataset collector.
package streaming

import (
	"encoding/json"
	"time"

	"github.com/drlrcc/torcs-driver/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartEpisode = "start_episode"
	TypeEndEpisode   = "end_episode"
	TypeSamples      = "samples"
	TypeStep         = "step"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// EpisodePayload carries an episode's header. Sent on start and again with
// the final counters on end.
type EpisodePayload struct {
	EpisodeID string            `json:"episodeId"`
	Number    int               `json:"number"`
	Track     string            `json:"track"`
	Stage     string            `json:"stage"`
	Policy    string            `json:"policy,omitempty"`
	Model     string            `json:"model,omitempty"`
	StartTime time.Time         `json:"startTime"`
	EndTime   time.Time         `json:"endTime,omitempty"`
	Steps     int               `json:"steps"`
	Reason    string            `json:"reason,omitempty"`
	RacePos   int               `json:"racePos,omitempty"`
	Settings  map[string]string `json:"settings,omitempty"`
}

// NewEpisodePayload copies the fields of e.
func NewEpisodePayload(e *core.Episode) EpisodePayload {
	return EpisodePayload{
		EpisodeID: e.ID,
		Number:    e.Number,
		Track:     e.Track,
		Stage:     e.Stage.String(),
		Policy:    e.Policy,
		Model:     e.Model,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		Steps:     e.Steps,
		Reason:    e.Reason,
		RacePos:   e.RacePos,
		Settings:  e.Settings,
	}
}

// SamplePayload is one recorded frame. Frame is base64 in JSON.
type SamplePayload struct {
	Step  int     `json:"step"`
	Steer float64 `json:"steer"`
	Frame []byte  `json:"frame"`
}

// SamplesPayload is a flushed batch of samples for one episode.
type SamplesPayload struct {
	EpisodeID string          `json:"episodeId"`
	Samples   []SamplePayload `json:"samples"`
}

// StepPayload is one tick of telemetry.
type StepPayload struct {
	EpisodeID  string  `json:"episodeId"`
	Step       int     `json:"step"`
	SpeedX     float64 `json:"speedX"`
	TrackPos   float64 `json:"trackPos"`
	Angle      float64 `json:"angle"`
	RPM        float64 `json:"rpm"`
	Accel      float64 `json:"accel"`
	Brake      float64 `json:"brake"`
	Steer      float64 `json:"steer"`
	Gear       int     `json:"gear"`
	LabelSteer float64 `json:"labelSteer"`
}

// NewStepPayload copies the fields of r.
func NewStepPayload(r core.StepRecord) StepPayload {
	return StepPayload{
		EpisodeID:  r.EpisodeID,
		Step:       r.Step,
		SpeedX:     r.SpeedX,
		TrackPos:   r.TrackPos,
		Angle:      r.Angle,
		RPM:        r.RPM,
		Accel:      r.Accel,
		Brake:      r.Brake,
		Steer:      r.Steer,
		Gear:       r.Gear,
		LabelSteer: r.LabelSteer,
	}
}
