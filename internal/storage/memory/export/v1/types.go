// Package v1 is the version 1 on-disk dataset format: one JSON document per
// episode holding every recorded frame and its steering label.
package v1

import "time"

// Version is written into every dataset document.
const Version = "1"

// Dataset is the root JSON structure.
type Dataset struct {
	Version   string            `json:"version"`
	EpisodeID string            `json:"episodeId"`
	Number    int               `json:"number"`
	Track     string            `json:"track"`
	Policy    string            `json:"policy,omitempty"`
	Model     string            `json:"model,omitempty"`
	StartTime time.Time         `json:"startTime"`
	EndTime   time.Time         `json:"endTime"`
	Steps     int               `json:"steps"`
	Reason    string            `json:"reason,omitempty"`
	Settings  map[string]string `json:"settings,omitempty"`
	Frame     FrameInfo         `json:"frame"`
	Samples   []Sample          `json:"samples"`
}

// FrameInfo describes the layout of every sample's frame bytes.
type FrameInfo struct {
	Width    int `json:"width"`
	Height   int `json:"height"`
	Channels int `json:"channels"`
}

// Sample is one frame and its label. Frame is base64 in JSON.
type Sample struct {
	Step  int     `json:"step"`
	Steer float64 `json:"steer"`
	Frame []byte  `json:"frame"`
}
