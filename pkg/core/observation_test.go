package core

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	s := NewSensorSnapshot(map[string][]float64{
		"focus":        {200, 100, 0, 50, 20},
		"opponents":    {200, 400},
		"track":        {10, 20},
		"speedX":       {50},
		"speedY":       {-25},
		"speedZ":       {5},
		"rpm":          {6000},
		"wheelSpinVel": {1, 2, 3, 4},
		"trackPos":     {-0.3},
	}, nil)

	got := s.Normalize(100)
	want := Observation{
		Focus:        []float64{1, 0.5, 0, 0.25, 0.1},
		SpeedX:       0.5,
		SpeedY:       -0.25,
		SpeedZ:       0.05,
		Opponents:    []float64{1, 2},
		RPM:          6000,
		Track:        []float64{0.05, 0.1},
		WheelSpinVel: []float64{1, 2, 3, 4},
		TrackPos:     -0.3,
	}

	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_VisionFrame(t *testing.T) {
	img := make([]float64, FrameSize)
	img[0] = 255
	img[1] = 0
	img[2] = 55
	img[FrameSize-1] = 300

	s := NewSensorSnapshot(map[string][]float64{"img": img}, nil)
	obs := s.Normalize(300)

	require.NotNil(t, obs.Frame)
	assert.Equal(t, FrameWidth, obs.Frame.Width)
	assert.Equal(t, FrameHeight, obs.Frame.Height)
	assert.Equal(t, byte(0), obs.Frame.At(0, 0, 0))
	assert.Equal(t, byte(255), obs.Frame.At(0, 0, 1))
	assert.Equal(t, byte(200), obs.Frame.At(0, 0, 2))
	assert.Equal(t, byte(0), obs.Frame.At(63, 63, 2), "values above 255 are clipped")
	assert.Len(t, obs.Frame.Gray(), FrameWidth*FrameHeight)
}

func TestNormalize_ShortImageIgnored(t *testing.T) {
	s := NewSensorSnapshot(map[string][]float64{"img": {1, 2, 3}}, nil)
	assert.Nil(t, s.Normalize(300).Frame)
}

func TestObservationVector(t *testing.T) {
	obs := Observation{SpeedX: 1, SpeedY: 2, SpeedZ: 3, RPM: 4, TrackPos: 5, Track: []float64{6}}
	v := obs.Vector()

	assert.Len(t, v, 5+TrackRays+OpponentRanges+Wheels+FocusRays)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 0}, v[:7])
}

func TestMinTrack(t *testing.T) {
	s := NewSensorSnapshot(map[string][]float64{"track": {5, -1, 3}}, nil)
	assert.Equal(t, -1.0, s.MinTrack())

	empty := NewSensorSnapshot(nil, nil)
	assert.True(t, math.IsInf(empty.MinTrack(), 1))
}
