// Package scr implements the text wire format spoken by the SCR server patch
// for TORCS.
package scr

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/drlrcc/torcs-driver/pkg/core"
)

// Control markers sent by the server in place of telemetry.
const (
	MarkerIdentified = "***identified***"
	MarkerShutdown   = "***shutdown***"
	MarkerRestart    = "***restart***"
)

// DefaultTrackAngles are the 19 range finder angles requested at handshake.
var DefaultTrackAngles = []float64{
	-45, -19, -12, -7, -4, -2.5, -1.7, -1, -.5, 0, .5, 1, 1.7, 2.5, 4, 7, 12, 19, 45,
}

// Kind classifies an inbound payload.
type Kind int

const (
	KindEmpty Kind = iota
	KindTelemetry
	KindIdentified
	KindShutdown
	KindRestart
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindTelemetry:
		return "telemetry"
	case KindIdentified:
		return "identified"
	case KindShutdown:
		return "shutdown"
	case KindRestart:
		return "restart"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Classify inspects a payload for control markers before any structural
// parsing. Shutdown wins over restart, restart over identified.
func Classify(payload string) Kind {
	switch {
	case strings.TrimSpace(strings.Trim(payload, "\x00")) == "":
		return KindEmpty
	case strings.Contains(payload, MarkerShutdown):
		return KindShutdown
	case strings.Contains(payload, MarkerRestart):
		return KindRestart
	case strings.Contains(payload, MarkerIdentified):
		return KindIdentified
	default:
		return KindTelemetry
	}
}

// Codec converts between wire text and core types.
// It has no dependencies beyond a logger.
type Codec struct {
	logger *slog.Logger
}

// NewCodec creates a codec that reports malformed tokens to logger.
func NewCodec(logger *slog.Logger) *Codec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{logger: logger}
}

// Decode parses one telemetry datagram. A malformed token only degrades the
// field it belongs to; Decode never fails as a whole.
func (c *Codec) Decode(raw string) *core.SensorSnapshot {
	fields := make(map[string][]float64)
	unparsed := make(map[string][]string)

	for _, g := range Tokenize(raw) {
		values := make([]float64, 0, len(g.Values))
		bad := false
		for _, tok := range g.Values {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				c.logger.Warn("Could not parse sensor value",
					"key", g.Key,
					"token", tok)
				bad = true
				continue
			}
			values = append(values, v)
		}
		if bad {
			unparsed[g.Key] = g.Values
			continue
		}
		fields[g.Key] = values
	}

	return core.NewSensorSnapshot(fields, unparsed)
}

// Encode renders an action in fixed actuator order. Scalars use three
// decimals; sequences use the shortest representation. Encode does not clamp.
func Encode(a *core.ActionCommand) string {
	var b strings.Builder
	writeScalar(&b, core.ActuatorAccel, a.Accel)
	writeScalar(&b, core.ActuatorBrake, a.Brake)
	writeScalar(&b, core.ActuatorClutch, a.Clutch)
	writeScalar(&b, core.ActuatorGear, float64(a.Gear))
	writeScalar(&b, core.ActuatorSteer, a.Steer)
	if a.Focus == nil {
		writeScalar(&b, core.ActuatorFocus, 0)
	} else {
		writeList(&b, core.ActuatorFocus, a.Focus)
	}
	writeScalar(&b, core.ActuatorMeta, float64(a.Meta))
	return b.String()
}

func writeScalar(b *strings.Builder, key string, v float64) {
	fmt.Fprintf(b, "(%s %.3f)", key, v)
}

func writeList(b *strings.Builder, key string, values []float64) {
	b.WriteByte('(')
	b.WriteString(key)
	for _, v := range values {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(')')
}

// InitMessage builds the handshake datagram for the given client id.
func InitMessage(sid string, angles []float64) string {
	var b strings.Builder
	b.WriteString(sid)
	b.WriteString("(init")
	for _, a := range angles {
		b.WriteByte(' ')
		b.WriteString(formatAngle(a))
	}
	b.WriteByte(')')
	return b.String()
}

// formatAngle drops the leading zero of fractional angles (-.5, .5) to match
// the form the server documentation uses.
func formatAngle(a float64) string {
	s := strconv.FormatFloat(a, 'g', -1, 64)
	switch {
	case strings.HasPrefix(s, "0."):
		return s[1:]
	case strings.HasPrefix(s, "-0."):
		return "-" + s[2:]
	}
	return s
}
