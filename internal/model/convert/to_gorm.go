// Package convert maps between core domain types and GORM models.
package convert

import (
	"encoding/json"

	"github.com/drlrcc/torcs-driver/internal/model"
	"github.com/drlrcc/torcs-driver/pkg/core"
	"gorm.io/datatypes"
)

// settingsToJSON converts episode settings to datatypes.JSON for DB storage.
func settingsToJSON(settings map[string]string) datatypes.JSON {
	if len(settings) == 0 {
		return datatypes.JSON("{}")
	}
	data, _ := json.Marshal(settings)
	return datatypes.JSON(data)
}

// EpisodeToGorm converts a core.Episode to a GORM model. The row ID is left
// zero; the database assigns it.
func EpisodeToGorm(e core.Episode) model.Episode {
	return model.Episode{
		EpisodeUUID: e.ID,
		Number:      e.Number,
		Track:       e.Track,
		Stage:       int(e.Stage),
		Policy:      e.Policy,
		ModelFile:   e.Model,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		Steps:       e.Steps,
		Reason:      e.Reason,
		RacePos:     e.RacePos,
		Settings:    settingsToJSON(e.Settings),
	}
}

// SampleToGorm converts a core.Sample to a GORM model owned by episodeID.
func SampleToGorm(s core.Sample, episodeID uint) model.Sample {
	return model.Sample{
		EpisodeID: episodeID,
		Step:      s.Step,
		Time:      s.Time,
		Steer:     s.Steer,
		Frame:     s.Frame,
	}
}

// StepRecordToGorm converts a core.StepRecord to a GORM model owned by episodeID.
func StepRecordToGorm(r core.StepRecord, episodeID uint) model.StepRecord {
	return model.StepRecord{
		EpisodeID:     episodeID,
		Step:          r.Step,
		Time:          r.Time,
		SpeedX:        r.SpeedX,
		TrackPos:      r.TrackPos,
		Angle:         r.Angle,
		RPM:           r.RPM,
		DistRaced:     r.DistRaced,
		CurLapTime:    r.CurLapTime,
		Damage:        r.Damage,
		RacePos:       r.RacePos,
		Accel:         r.Accel,
		Brake:         r.Brake,
		Steer:         r.Steer,
		Gear:          r.Gear,
		LabelSteer:    r.LabelSteer,
		UnparsedCount: r.UnparsedCount,
	}
}
