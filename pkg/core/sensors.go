// pkg/core/sensors.go
package core

import (
	"math"
	"sort"
)

// Sensor keys reported by the SCR server.
const (
	SensorAngle         = "angle"
	SensorCurLapTime    = "curLapTime"
	SensorDamage        = "damage"
	SensorDistFromStart = "distFromStart"
	SensorDistRaced     = "distRaced"
	SensorFocus         = "focus"
	SensorFuel          = "fuel"
	SensorGear          = "gear"
	SensorLastLapTime   = "lastLapTime"
	SensorOpponents     = "opponents"
	SensorRacePos       = "racePos"
	SensorRPM           = "rpm"
	SensorSpeedX        = "speedX"
	SensorSpeedY        = "speedY"
	SensorSpeedZ        = "speedZ"
	SensorTrack         = "track"
	SensorTrackPos      = "trackPos"
	SensorWheelSpinVel  = "wheelSpinVel"
	SensorZ             = "z"
	SensorImage         = "img"
)

// Fixed channel widths of the array sensors.
const (
	TrackRays      = 19
	OpponentRanges = 36
	Wheels         = 4
	FocusRays      = 5
)

// SensorSnapshot is one tick of telemetry from the simulator.
//
// Known sensors land in typed fields. Keys outside the schema go to Extra and
// any field holding a token that is not a finite number is kept verbatim in
// Unparsed instead of its typed field.
type SensorSnapshot struct {
	Angle         float64
	CurLapTime    float64
	Damage        float64
	DistFromStart float64
	DistRaced     float64
	Fuel          float64
	Gear          int
	LastLapTime   float64
	RacePos       int
	RPM           float64
	SpeedX        float64
	SpeedY        float64
	SpeedZ        float64
	TrackPos      float64
	Z             float64

	Track        []float64
	Opponents    []float64
	WheelSpinVel []float64
	Focus        []float64
	Image        []float64

	Extra    map[string][]float64
	Unparsed map[string][]string

	observed map[string]struct{}
}

// NewSensorSnapshot builds a snapshot from decoded numeric fields and the raw
// tokens of fields that failed to decode.
func NewSensorSnapshot(fields map[string][]float64, unparsed map[string][]string) *SensorSnapshot {
	s := &SensorSnapshot{
		Extra:    make(map[string][]float64),
		Unparsed: make(map[string][]string),
		observed: make(map[string]struct{}, len(fields)),
	}
	for key, raw := range unparsed {
		s.Unparsed[key] = raw
	}
	for key, values := range fields {
		if _, bad := s.Unparsed[key]; bad {
			continue
		}
		// an empty group such as "(angle)" carries no reading
		if len(values) == 0 || !allFinite(values) {
			continue
		}
		s.set(key, values)
	}
	return s
}

func (s *SensorSnapshot) set(key string, values []float64) {
	first := values[0]
	switch key {
	case SensorAngle:
		s.Angle = first
	case SensorCurLapTime:
		s.CurLapTime = first
	case SensorDamage:
		s.Damage = first
	case SensorDistFromStart:
		s.DistFromStart = first
	case SensorDistRaced:
		s.DistRaced = first
	case SensorFuel:
		s.Fuel = first
	case SensorGear:
		s.Gear = int(math.Round(first))
	case SensorLastLapTime:
		s.LastLapTime = first
	case SensorRacePos:
		s.RacePos = int(math.Round(first))
	case SensorRPM:
		s.RPM = first
	case SensorSpeedX:
		s.SpeedX = first
	case SensorSpeedY:
		s.SpeedY = first
	case SensorSpeedZ:
		s.SpeedZ = first
	case SensorTrackPos:
		s.TrackPos = first
	case SensorZ:
		s.Z = first
	case SensorTrack:
		s.Track = values
	case SensorOpponents:
		s.Opponents = values
	case SensorWheelSpinVel:
		s.WheelSpinVel = values
	case SensorFocus:
		s.Focus = values
	case SensorImage:
		s.Image = values
	default:
		s.Extra[key] = values
	}
	s.observed[key] = struct{}{}
}

// Has reports whether key was present and decoded in this snapshot.
func (s *SensorSnapshot) Has(key string) bool {
	_, ok := s.observed[key]
	return ok
}

// IsUnparsed reports whether key arrived with at least one malformed token.
func (s *SensorSnapshot) IsUnparsed(key string) bool {
	_, ok := s.Unparsed[key]
	return ok
}

// Keys returns the decoded keys in sorted order.
func (s *SensorSnapshot) Keys() []string {
	keys := make([]string, 0, len(s.observed))
	for k := range s.observed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WheelSlip is the rear minus front wheel spin velocity. Zero when fewer
// than four wheels are reported.
func (s *SensorSnapshot) WheelSlip() float64 {
	if len(s.WheelSpinVel) < Wheels {
		return 0
	}
	w := s.WheelSpinVel
	return (w[2] + w[3]) - (w[0] + w[1])
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
