package v1

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/drlrcc/torcs-driver/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := core.Episode{
		ID:        "ep-1",
		Number:    3,
		Track:     "g-track-1",
		Policy:    "baseline",
		StartTime: start,
		EndTime:   start.Add(time.Minute),
		Steps:     1600,
		Reason:    "lap completed",
	}
	samples := []core.Sample{
		{EpisodeID: "ep-1", Step: 20, Steer: -0.1, Frame: []byte{9}},
		{EpisodeID: "ep-1", Step: 13, Steer: 0.3, Frame: []byte{1, 2}},
	}

	d := Build(e, samples)
	assert.Equal(t, Version, d.Version)
	assert.Equal(t, "g-track-1", d.Track)
	assert.Equal(t, FrameInfo{Width: 64, Height: 64, Channels: 3}, d.Frame)
	require.Len(t, d.Samples, 2)
	assert.Equal(t, 13, d.Samples[0].Step, "samples are ordered by step")
	assert.Equal(t, 20, d.Samples[1].Step)
}

func TestBuild_NoSamples(t *testing.T) {
	d := Build(core.Episode{ID: "x"}, nil)
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"samples":[]`)
}

func TestSample_FrameIsBase64(t *testing.T) {
	data, err := json.Marshal(Sample{Step: 1, Frame: []byte{0xff, 0x00}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":1,"steer":0,"frame":"/wA="}`, string(data))
}
