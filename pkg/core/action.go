// pkg/core/action.go
package core

import "math"

// Actuator keys in wire order.
const (
	ActuatorAccel  = "accel"
	ActuatorBrake  = "brake"
	ActuatorClutch = "clutch"
	ActuatorGear   = "gear"
	ActuatorSteer  = "steer"
	ActuatorFocus  = "focus"
	ActuatorMeta   = "meta"
)

// ActuatorOrder is the fixed order actuators are encoded in.
var ActuatorOrder = []string{
	ActuatorAccel,
	ActuatorBrake,
	ActuatorClutch,
	ActuatorGear,
	ActuatorSteer,
	ActuatorFocus,
	ActuatorMeta,
}

// DefaultFocus are the focus ray angles requested before any policy sets them.
var DefaultFocus = []float64{-90, -45, 0, 45, 90}

// ActionCommand is what the driver sends back to the server each tick.
// A nil Focus is the scalar zero sentinel.
type ActionCommand struct {
	Accel  float64
	Brake  float64
	Clutch float64
	Gear   int
	Steer  float64
	Focus  []float64
	Meta   int
}

// NewActionCommand returns the initial command: light throttle, wheels
// straight, first gear.
func NewActionCommand() *ActionCommand {
	a := &ActionCommand{}
	a.Reset()
	return a
}

// Reset restores the initial command.
func (a *ActionCommand) Reset() {
	a.Accel = 0.2
	a.Brake = 0
	a.Clutch = 0
	a.Gear = 1
	a.Steer = 0
	a.Focus = append([]float64(nil), DefaultFocus...)
	a.Meta = 0
}

// Clone returns a deep copy.
func (a *ActionCommand) Clone() *ActionCommand {
	c := *a
	if a.Focus != nil {
		c.Focus = append([]float64(nil), a.Focus...)
	}
	return &c
}

// Clamp forces every actuator into the range the server accepts.
// Applying it twice has no further effect.
func (a *ActionCommand) Clamp() {
	a.Steer = Clip(a.Steer, -1, 1)
	a.Brake = Clip(a.Brake, 0, 1)
	a.Accel = Clip(a.Accel, 0, 1)
	a.Clutch = Clip(a.Clutch, 0, 1)
	if a.Gear < -1 || a.Gear > 6 {
		a.Gear = 0
	}
	if a.Meta != 0 && a.Meta != 1 {
		a.Meta = 0
	}
	if !validFocus(a.Focus) {
		a.Focus = nil
	}
}

func validFocus(focus []float64) bool {
	if len(focus) == 0 {
		return false
	}
	for _, f := range focus {
		if math.IsNaN(f) || f < -180 || f > 180 {
			return false
		}
	}
	return true
}

// Clip bounds v to [lo, hi]. NaN maps to zero clipped into the range.
func Clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		v = 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ActionEdits is a partial update to an ActionCommand. Nil fields are left
// untouched.
type ActionEdits struct {
	Accel  *float64
	Brake  *float64
	Clutch *float64
	Gear   *int
	Steer  *float64
	Focus  []float64
	Meta   *int
}

// ApplyTo merges the edits into a.
func (e ActionEdits) ApplyTo(a *ActionCommand) {
	if e.Accel != nil {
		a.Accel = *e.Accel
	}
	if e.Brake != nil {
		a.Brake = *e.Brake
	}
	if e.Clutch != nil {
		a.Clutch = *e.Clutch
	}
	if e.Gear != nil {
		a.Gear = *e.Gear
	}
	if e.Steer != nil {
		a.Steer = *e.Steer
	}
	if e.Focus != nil {
		a.Focus = append([]float64(nil), e.Focus...)
	}
	if e.Meta != nil {
		a.Meta = *e.Meta
	}
}

// Merge overlays other on top of e; fields set in other win.
func (e ActionEdits) Merge(other ActionEdits) ActionEdits {
	if other.Accel != nil {
		e.Accel = other.Accel
	}
	if other.Brake != nil {
		e.Brake = other.Brake
	}
	if other.Clutch != nil {
		e.Clutch = other.Clutch
	}
	if other.Gear != nil {
		e.Gear = other.Gear
	}
	if other.Steer != nil {
		e.Steer = other.Steer
	}
	if other.Focus != nil {
		e.Focus = other.Focus
	}
	if other.Meta != nil {
		e.Meta = other.Meta
	}
	return e
}

// Empty reports whether no field is set.
func (e ActionEdits) Empty() bool {
	return e.Accel == nil && e.Brake == nil && e.Clutch == nil && e.Gear == nil &&
		e.Steer == nil && e.Focus == nil && e.Meta == nil
}

// Float returns a pointer to v, for building ActionEdits.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for building ActionEdits.
func Int(v int) *int { return &v }
