// Package debugview renders live telemetry and actuator bar graphs in the
// terminal, redrawn in place.
package debugview

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/drlrcc/torcs-driver/pkg/core"
	"github.com/gosuri/uilive"
)

const barWidth = 50

// View keeps the latest rendering and redraws it on a timer.
type View struct {
	writer    *uilive.Writer
	frequency time.Duration
	doneCh    chan struct{}
	stopOnce  sync.Once

	mu        sync.Mutex
	printable string
}

// New returns a view drawing to out every frequency.
func New(out io.Writer, frequency time.Duration) *View {
	w := uilive.New()
	w.Out = out
	return &View{
		writer:    w,
		frequency: frequency,
		doneCh:    make(chan struct{}),
	}
}

// Start redraws until ctx is done or Stop is called.
func (v *View) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(v.frequency)
		defer ticker.Stop()
		for {
			select {
			case <-v.doneCh:
				v.print()
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				v.print()
			}
		}
	}()
}

// Stop draws the last frame and ends the redraw loop.
func (v *View) Stop() {
	v.stopOnce.Do(func() { close(v.doneCh) })
}

// Update replaces what the next redraw shows.
func (v *View) Update(s *core.SensorSnapshot, a *core.ActionCommand) {
	out := Render(s, a)
	v.mu.Lock()
	v.printable = out
	v.mu.Unlock()
}

func (v *View) print() {
	v.mu.Lock()
	s := v.printable
	v.mu.Unlock()
	if s == "" {
		return
	}
	fmt.Fprint(v.writer, s)
	_ = v.writer.Flush()
}

// Render formats the sensor panel followed by the actuator panel.
func Render(s *core.SensorSnapshot, a *core.ActionCommand) string {
	var b strings.Builder
	if s != nil {
		renderSensors(&b, s)
	}
	if a != nil {
		renderActions(&b, a)
	}
	return b.String()
}

func renderSensors(b *strings.Builder, s *core.SensorSnapshot) {
	line := func(k, v string) { fmt.Fprintf(b, "%13s: %s\n", k, v) }

	line(core.SensorFuel, fmt.Sprintf("%6.0f %s", s.Fuel, Bargraph(s.Fuel, 0, 100, barWidth, 'f')))
	line(core.SensorDamage, fmt.Sprintf("%6.0f %s", s.Damage, Bargraph(s.Damage, 0, 10000, barWidth, '~')))
	line(core.SensorDistRaced, fmt.Sprintf("%.1f", s.DistRaced))
	line(core.SensorDistFromStart, fmt.Sprintf("%.1f", s.DistFromStart))
	line(core.SensorOpponents, opponents(s.Opponents))
	line(core.SensorWheelSpinVel, floats(s.WheelSpinVel, "%.1f", ", "))
	line(core.SensorZ, fmt.Sprintf("%6.3f %s", s.Z, Bargraph(s.Z, .3, .5, barWidth, 'z')))
	line(core.SensorSpeedZ, fmt.Sprintf("%6.1f %s", s.SpeedZ, Bargraph(s.SpeedZ, -13, 13, barWidth, 'Z')))
	line(core.SensorSpeedY, fmt.Sprintf("%6.1f %s", s.SpeedY, Bargraph(-s.SpeedY, -25, 25, barWidth, 'Y')))
	cx := byte('X')
	if s.SpeedX < 0 {
		cx = 'R'
	}
	line(core.SensorSpeedX, fmt.Sprintf("%6.1f %s", s.SpeedX, Bargraph(s.SpeedX, -30, 300, barWidth, cx)))
	line(core.SensorRPM, Bargraph(s.RPM, 0, 10000, barWidth, gearChar(s.Gear)))
	line(core.SensorGear, gearStrip(s.Gear))
	line(core.SensorTrack, track(s.Track))
	cx = '<'
	if s.TrackPos < 0 {
		cx = '>'
	}
	line(core.SensorTrackPos, fmt.Sprintf("%6.3f %s", s.TrackPos, Bargraph(-s.TrackPos, -1, 1, barWidth, cx)))
	line(core.SensorAngle, fmt.Sprintf("%6.3f %s", s.Angle, Bargraph(-s.Angle, -math.Pi, math.Pi, barWidth, 'A')))
	if len(s.Unparsed) > 0 {
		line("unparsed", strings.Join(unparsedKeys(s), " "))
	}
}

func renderActions(b *strings.Builder, a *core.ActionCommand) {
	line := func(k, v string) { fmt.Fprintf(b, "%13s: %s\n", k, v) }

	line(core.ActuatorAccel, fmt.Sprintf("%6.3f %s", a.Accel, Bargraph(a.Accel, 0, 1, barWidth, 'A')))
	line(core.ActuatorBrake, fmt.Sprintf("%6.3f %s", a.Brake, Bargraph(a.Brake, 0, 1, barWidth, 'B')))
	line(core.ActuatorClutch, fmt.Sprintf("%6.3f %s", a.Clutch, Bargraph(a.Clutch, 0, 1, barWidth, 'C')))
	// drawn reversed so a left turn points left
	line(core.ActuatorSteer, fmt.Sprintf("%6.3f %s", a.Steer, Bargraph(-a.Steer, -1, 1, barWidth, 'S')))
}

func gearChar(g int) byte {
	switch {
	case g < 0:
		return 'R'
	case g > 9:
		return '9'
	default:
		return byte('0' + g)
	}
}

func opponents(r []float64) string {
	if len(r) == 0 {
		return ""
	}
	glyphs := make([]byte, len(r))
	for i, v := range r {
		glyphs[i] = opponentGlyph(v)
	}
	half := len(glyphs) / 2
	return " -> " + string(glyphs[:half]) + " " + string(glyphs[half:]) + " <-"
}

// track marks the centre ray with underscores.
func track(r []float64) string {
	if len(r) != core.TrackRays {
		return floats(r, "%.1f", " ")
	}
	mid := core.TrackRays / 2
	return floats(r[:mid], "%.1f", " ") + "_" + fmt.Sprintf("%.1f", r[mid]) + "_" + floats(r[mid+1:], "%.1f", " ")
}

func floats(v []float64, format, sep string) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf(format, x)
	}
	return strings.Join(parts, sep)
}

func unparsedKeys(s *core.SensorSnapshot) []string {
	keys := make([]string, 0, len(s.Unparsed))
	for k := range s.Unparsed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
