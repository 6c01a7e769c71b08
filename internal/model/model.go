// Package model holds the GORM tables the episode stores write to.
package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels is the set of tables migrated on setup.
var DatabaseModels = []any{
	&ClientInfo{},
	&Episode{},
	&Sample{},
	&StepRecord{},
}

// ClientInfo identifies the driver build that owns a database.
type ClientInfo struct {
	gorm.Model
	ClientName    string `json:"clientName" gorm:"size:127"`
	ClientVersion string `json:"clientVersion" gorm:"size:64"`
	SchemaVersion int    `json:"schemaVersion" gorm:"default:1"`
}

func (*ClientInfo) TableName() string {
	return "client_infos"
}

// Episode is one recorded drive.
type Episode struct {
	gorm.Model
	EpisodeUUID string    `json:"episodeId" gorm:"size:36;uniqueIndex"`
	Number      int       `json:"number"`
	Track       string    `json:"track" gorm:"size:127;index:idx_episode_track"`
	Stage       int       `json:"stage"`
	Policy      string    `json:"policy" gorm:"size:64"`
	ModelFile   string    `json:"model" gorm:"size:255"`
	StartTime   time.Time `json:"startTime" gorm:"index:idx_episode_start"`
	EndTime     time.Time `json:"endTime"`
	Steps       int       `json:"steps"`
	Reason      string    `json:"reason" gorm:"size:64"`
	RacePos     int       `json:"racePos"`
	// Settings is the client configuration as a JSON object
	Settings datatypes.JSON `json:"settings"`

	Samples []Sample `json:"-"`
}

func (*Episode) TableName() string {
	return "episodes"
}

// Sample is one camera frame with its steering label.
type Sample struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement"`
	EpisodeID uint      `json:"episodeId" gorm:"index:idx_sample_episode"`
	Step      int       `json:"step"`
	Time      time.Time `json:"time"`
	Steer     float64   `json:"steer"`
	Frame     []byte    `json:"frame"`
}

func (*Sample) TableName() string {
	return "samples"
}

// StepRecord is one tick of driving telemetry.
type StepRecord struct {
	ID            uint      `json:"id" gorm:"primarykey;autoIncrement"`
	EpisodeID     uint      `json:"episodeId" gorm:"index:idx_step_episode"`
	Step          int       `json:"step"`
	Time          time.Time `json:"time"`
	SpeedX        float64   `json:"speedX"`
	TrackPos      float64   `json:"trackPos"`
	Angle         float64   `json:"angle"`
	RPM           float64   `json:"rpm"`
	DistRaced     float64   `json:"distRaced"`
	CurLapTime    float64   `json:"curLapTime"`
	Damage        float64   `json:"damage"`
	RacePos       int       `json:"racePos"`
	Accel         float64   `json:"accel"`
	Brake         float64   `json:"brake"`
	Steer         float64   `json:"steer"`
	Gear          int       `json:"gear"`
	LabelSteer    float64   `json:"labelSteer"`
	UnparsedCount int       `json:"unparsedCount"`
}

func (*StepRecord) TableName() string {
	return "step_records"
}
