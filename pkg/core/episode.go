// pkg/core/episode.go
package core

import "time"

// Stage is the race stage requested at session start.
type Stage int

const (
	StageWarmUp Stage = iota
	StageQualifying
	StageRace
	StageUnknown
)

func (s Stage) String() string {
	switch s {
	case StageWarmUp:
		return "warm-up"
	case StageQualifying:
		return "qualifying"
	case StageRace:
		return "race"
	default:
		return "unknown"
	}
}

// Episode represents one connect-drive-terminate cycle
type Episode struct {
	ID        string
	Number    int
	Track     string
	Stage     Stage
	Policy    string
	Model     string
	StartTime time.Time
	EndTime   time.Time
	Steps     int
	Reason    string
	RacePos   int
	// Settings records the client configuration the episode ran with.
	Settings map[string]string
}

// Sample is one recorded frame paired with the steering label
type Sample struct {
	EpisodeID string
	Step      int
	Steer     float64
	Frame     []byte
	Time      time.Time
}

// StepRecord is the per-tick telemetry row written to time series storage
type StepRecord struct {
	EpisodeID     string
	Step          int
	Time          time.Time
	SpeedX        float64
	TrackPos      float64
	Angle         float64
	RPM           float64
	DistRaced     float64
	CurLapTime    float64
	Damage        float64
	RacePos       int
	Accel         float64
	Brake         float64
	Steer         float64
	Gear          int
	LabelSteer    float64
	UnparsedCount int
}

// NewStepRecord captures a snapshot and the action sent for it.
func NewStepRecord(episodeID string, step int, s *SensorSnapshot, a *ActionCommand, label float64) StepRecord {
	return StepRecord{
		EpisodeID:     episodeID,
		Step:          step,
		Time:          time.Now(),
		SpeedX:        s.SpeedX,
		TrackPos:      s.TrackPos,
		Angle:         s.Angle,
		RPM:           s.RPM,
		DistRaced:     s.DistRaced,
		CurLapTime:    s.CurLapTime,
		Damage:        s.Damage,
		RacePos:       s.RacePos,
		Accel:         a.Accel,
		Brake:         a.Brake,
		Steer:         a.Steer,
		Gear:          a.Gear,
		LabelSteer:    label,
		UnparsedCount: len(s.Unparsed),
	}
}

// UploadMetadata describes a dataset file sent to the training server
type UploadMetadata struct {
	EpisodeID string
	Track     string
	Model     string
	Steps     int
	Samples   int
	Tag       string
}
