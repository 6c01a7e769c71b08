// pkg/core/observation.go
package core

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// RangeScale divides ray distances and opponent ranges into roughly [0, 1].
const RangeScale = 200.0

// Vision frame geometry sent in the img sensor by the vision-patched server.
const (
	FrameWidth    = 64
	FrameHeight   = 64
	FrameChannels = 3
	FrameSize     = FrameWidth * FrameHeight * FrameChannels
)

// Frame is an inverted RGB image, row-major with interleaved channels.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// At returns the value of channel c at (x, y).
func (f *Frame) At(x, y, c int) byte {
	return f.Pix[(y*f.Width+x)*f.Channels+c]
}

// Gray returns the luma of every pixel, scaled to [0, 1].
func (f *Frame) Gray() []float64 {
	out := make([]float64, f.Width*f.Height)
	for i := range out {
		p := f.Pix[i*f.Channels : i*f.Channels+f.Channels]
		if f.Channels < 3 {
			out[i] = float64(p[0]) / 255
			continue
		}
		out[i] = (0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])) / 255
	}
	return out
}

// Observation is the normalized view a learned policy consumes.
type Observation struct {
	Focus        []float64
	SpeedX       float64
	SpeedY       float64
	SpeedZ       float64
	Opponents    []float64
	RPM          float64
	Track        []float64
	WheelSpinVel []float64
	TrackPos     float64
	Frame        *Frame
}

// Normalize scales the snapshot for a car whose top speed is maxSpeed.
// Ray distances and opponent ranges are divided by RangeScale, speeds by
// maxSpeed; everything else passes through.
func (s *SensorSnapshot) Normalize(maxSpeed float64) Observation {
	if maxSpeed <= 0 {
		maxSpeed = 1
	}
	obs := Observation{
		Focus:        scaled(s.Focus, 1/RangeScale),
		SpeedX:       s.SpeedX / maxSpeed,
		SpeedY:       s.SpeedY / maxSpeed,
		SpeedZ:       s.SpeedZ / maxSpeed,
		Opponents:    scaled(s.Opponents, 1/RangeScale),
		RPM:          s.RPM,
		Track:        scaled(s.Track, 1/RangeScale),
		WheelSpinVel: append([]float64(nil), s.WheelSpinVel...),
		TrackPos:     s.TrackPos,
	}
	if len(s.Image) >= FrameSize {
		obs.Frame = FrameFromVision(s.Image)
	}
	return obs
}

func scaled(src []float64, by float64) []float64 {
	if src == nil {
		return nil
	}
	dst := make([]float64, len(src))
	floats.ScaleTo(dst, by, src)
	return dst
}

// FrameFromVision turns the flat vision vector into an inverted 64x64 RGB
// frame. Values are taken in RGB triples; each channel becomes 255-v.
func FrameFromVision(vision []float64) *Frame {
	f := &Frame{
		Width:    FrameWidth,
		Height:   FrameHeight,
		Channels: FrameChannels,
		Pix:      make([]byte, FrameSize),
	}
	n := min(len(vision), FrameSize)
	for i := 0; i < n; i++ {
		f.Pix[i] = byte(255 - Clip(vision[i], 0, 255))
	}
	return f
}

// Vector flattens the numeric channels in a fixed order:
// speedX, speedY, speedZ, rpm, trackPos, track, opponents, wheelSpinVel, focus.
// Missing arrays are zero-filled to their nominal width.
func (o Observation) Vector() []float64 {
	out := make([]float64, 0, 5+TrackRays+OpponentRanges+Wheels+FocusRays)
	out = append(out, o.SpeedX, o.SpeedY, o.SpeedZ, o.RPM, o.TrackPos)
	out = appendFixed(out, o.Track, TrackRays)
	out = appendFixed(out, o.Opponents, OpponentRanges)
	out = appendFixed(out, o.WheelSpinVel, Wheels)
	out = appendFixed(out, o.Focus, FocusRays)
	return out
}

func appendFixed(dst, src []float64, width int) []float64 {
	for i := 0; i < width; i++ {
		if i < len(src) {
			dst = append(dst, src[i])
		} else {
			dst = append(dst, 0)
		}
	}
	return dst
}

// MinTrack returns the shortest track ray, or +Inf when none were reported.
func (s *SensorSnapshot) MinTrack() float64 {
	if len(s.Track) == 0 {
		return math.Inf(1)
	}
	return floats.Min(s.Track)
}
