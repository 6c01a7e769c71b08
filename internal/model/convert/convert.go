package convert

import (
	"encoding/json"

	"github.com/drlrcc/torcs-driver/internal/model"
	"github.com/drlrcc/torcs-driver/pkg/core"
)

// EpisodeToCore converts a GORM Episode back to the domain type.
func EpisodeToCore(m model.Episode) core.Episode {
	e := core.Episode{
		ID:        m.EpisodeUUID,
		Number:    m.Number,
		Track:     m.Track,
		Stage:     core.Stage(m.Stage),
		Policy:    m.Policy,
		Model:     m.ModelFile,
		StartTime: m.StartTime,
		EndTime:   m.EndTime,
		Steps:     m.Steps,
		Reason:    m.Reason,
		RacePos:   m.RacePos,
	}
	if len(m.Settings) > 0 {
		var settings map[string]string
		if err := json.Unmarshal(m.Settings, &settings); err == nil && len(settings) > 0 {
			e.Settings = settings
		}
	}
	return e
}

// SampleToCore converts a GORM Sample back to the domain type.
func SampleToCore(m model.Sample, episodeUUID string) core.Sample {
	return core.Sample{
		EpisodeID: episodeUUID,
		Step:      m.Step,
		Time:      m.Time,
		Steer:     m.Steer,
		Frame:     m.Frame,
	}
}
