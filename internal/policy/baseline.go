package policy

import (
	"errors"
	"fmt"
	"math"

	"github.com/drlrcc/torcs-driver/pkg/core"
)

// Baseline tuning constants.
const (
	SteerAngleGain    = 10 / math.Pi
	SteerCenterGain   = 0.10
	ThrottleStep      = 0.01
	SteerSpeedPenalty = 50.0
	LowSpeedDivisor   = 5.0
	SlipThreshold     = 5.0
	SlipCut           = 0.2
)

// gearSpeeds are the inclusive speedX breakpoints for gears 2 to 6.
var gearSpeeds = []float64{50, 80, 110, 140, 170}

// Steerer replaces the rule-based steering, e.g. with a learned model.
type Steerer interface {
	Steer(obs core.Observation) (float64, error)
}

// Baseline is the rule-based driver: steer toward the track axis, hold a
// target speed, cut throttle on wheel slip and shift on speed.
type Baseline struct {
	MaxSpeed float64
	// Steering overrides the rule steering when set. The rule value is
	// still reported as the label.
	Steering Steerer
	// Warmup is the number of ticks driven on rule steering before Steering
	// takes over; the camera is still rotating at the start.
	Warmup int
}

// RuleSteer is the steering that points the car along the track axis and
// pulls it back toward the centre line.
func RuleSteer(s *core.SensorSnapshot) float64 {
	return s.Angle*SteerAngleGain - s.TrackPos*SteerCenterGain
}

// GearFor picks the gear for a forward speed.
func GearFor(speedX float64) int {
	gear := 1
	for i, v := range gearSpeeds {
		if speedX >= v {
			gear = i + 2
		}
	}
	return gear
}

// Decide implements Policy.
func (b Baseline) Decide(in Input) (Decision, error) {
	s := in.Snapshot
	if s == nil {
		return Decision{}, fmt.Errorf("baseline: no snapshot")
	}

	rule := RuleSteer(s)
	steer := rule
	if b.Steering != nil && in.Step > b.Warmup {
		v, err := b.Steering.Steer(in.Observation)
		switch {
		case errors.Is(err, ErrNoFrame):
			// tick without an image; keep the rule value
		case err != nil:
			return Decision{}, fmt.Errorf("learned steering: %w", err)
		default:
			steer = v
		}
	}

	d := Decision{
		Edits: core.ActionEdits{Steer: core.Float(steer)},
		Label: core.Float(rule),
	}

	// off the track or lap completed
	if s.MinTrack() < 0 || s.LastLapTime > 0 {
		d.RaceEnded = true
		return d, nil
	}

	accel := 0.0
	if in.Action != nil {
		accel = in.Action.Accel
	}
	if s.SpeedX < b.MaxSpeed-steer*SteerSpeedPenalty {
		accel += ThrottleStep
	} else {
		accel -= ThrottleStep
	}
	if s.SpeedX < b.MaxSpeed/LowSpeedDivisor {
		accel += ThrottleStep
	}
	if s.WheelSlip() > SlipThreshold {
		accel -= SlipCut
	}

	d.Edits.Accel = core.Float(accel)
	d.Edits.Gear = core.Int(GearFor(s.SpeedX))
	return d, nil
}
