package scr

import (
	"bytes"
	"log/slog"
	"sort"
	"testing"

	"github.com/drlrcc/torcs-driver/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec() (*Codec, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewCodec(logger), &buf
}

func TestDecode(t *testing.T) {
	c, _ := newTestCodec()

	raw := "(angle 0.0123)(gear 2)(speedX 45.5)(track 1 2 3 4)(wheelSpinVel 10 10 11 11)(racePos 1)\x00"
	s := c.Decode(raw)

	assert.Equal(t, 0.0123, s.Angle)
	assert.Equal(t, 2, s.Gear)
	assert.Equal(t, 45.5, s.SpeedX)
	assert.Equal(t, []float64{1, 2, 3, 4}, s.Track)
	assert.Equal(t, []float64{10, 10, 11, 11}, s.WheelSpinVel)
	assert.Equal(t, 1, s.RacePos)
	assert.Empty(t, s.Unparsed)
}

func TestDecode_WithoutSentinel(t *testing.T) {
	c, _ := newTestCodec()
	s := c.Decode("(rpm 4000)(z 0.3)")

	assert.Equal(t, 4000.0, s.RPM)
	assert.Equal(t, 0.3, s.Z)
}

func TestDecode_CorruptedTokenIsolated(t *testing.T) {
	c, logs := newTestCodec()

	s := c.Decode("(speedX 10)(track 1 x7 3)(rpm 5000)\x00")

	assert.True(t, s.IsUnparsed("track"))
	assert.Equal(t, []string{"1", "x7", "3"}, s.Unparsed["track"])
	assert.False(t, s.Has("track"))
	assert.Equal(t, 10.0, s.SpeedX)
	assert.Equal(t, 5000.0, s.RPM)
	assert.Len(t, s.Unparsed, 1)
	assert.Contains(t, logs.String(), "x7")
}

func TestDecode_NonFiniteTokensUnparsed(t *testing.T) {
	c, _ := newTestCodec()
	s := c.Decode("(speedX NaN)(rpm +Inf)(angle 0.1)")

	assert.True(t, s.IsUnparsed("speedX"))
	assert.True(t, s.IsUnparsed("rpm"))
	assert.True(t, s.Has("angle"))
}

func TestDecode_EmptyGroups(t *testing.T) {
	c, _ := newTestCodec()
	s := c.Decode("(angle)(speedX 0)(track\x00")

	assert.False(t, s.Has("angle"))
	assert.False(t, s.Has("track"))
	assert.True(t, s.Has("speedX"))
	assert.Empty(t, s.Unparsed)
}

func TestDecode_Garbage(t *testing.T) {
	c, _ := newTestCodec()

	inputs := []string{"", "\x00", "()", "((((", "))))", ")(", "(a)(b c d", "random text"}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			assert.NotPanics(t, func() { c.Decode(in) })
		})
	}
}

func TestDecode_UnknownKeyToExtra(t *testing.T) {
	c, _ := newTestCodec()
	s := c.Decode("(lidar 1 2)(angle 0)")

	assert.Equal(t, []float64{1, 2}, s.Extra["lidar"])
}

func TestEncode_Default(t *testing.T) {
	got := Encode(core.NewActionCommand())
	want := "(accel 0.200)(brake 0.000)(clutch 0.000)(gear 1.000)(steer 0.000)(focus -90 -45 0 45 90)(meta 0.000)"
	assert.Equal(t, want, got)
}

func TestEncode_NilFocusSentinel(t *testing.T) {
	a := core.NewActionCommand()
	a.Focus = []float64{500}
	a.Clamp()

	assert.Contains(t, Encode(a), "(focus 0.000)")
}

func TestEncode_DoesNotClamp(t *testing.T) {
	a := core.NewActionCommand()
	a.Steer = 3.5
	assert.Contains(t, Encode(a), "(steer 3.500)")
}

func TestEncode_RoundTripKeys(t *testing.T) {
	a := core.NewActionCommand()
	a.Steer = -0.25
	a.Gear = 4

	groups := Tokenize(Encode(a))
	keys := Keys(groups)
	assert.Equal(t, core.ActuatorOrder, keys)

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	want := append([]string(nil), core.ActuatorOrder...)
	sort.Strings(want)
	assert.Equal(t, want, sorted)

	c, _ := newTestCodec()
	back := c.Decode(Encode(a))
	assert.Equal(t, -0.25, back.Extra["steer"][0])
	assert.Equal(t, 4, back.Gear)
	assert.Equal(t, core.DefaultFocus, back.Focus)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Kind
	}{
		{"empty", "", KindEmpty},
		{"nul only", "\x00", KindEmpty},
		{"identified", "***identified***", KindIdentified},
		{"shutdown", "***shutdown***", KindShutdown},
		{"restart", "***restart***", KindRestart},
		{"shutdown wins over identified", "***identified******shutdown***", KindShutdown},
		{"shutdown wins over restart", "***restart***(angle 0)***shutdown***", KindShutdown},
		{"restart wins over identified", "***identified******restart***", KindRestart},
		{"marker embedded in telemetry", "(angle 0)***shutdown***(rpm 1)", KindShutdown},
		{"telemetry", "(angle 0.1)(rpm 4000)\x00", KindTelemetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.payload))
		})
	}
}

func TestInitMessage(t *testing.T) {
	got := InitMessage("SCR", DefaultTrackAngles)
	assert.Equal(t, "SCR(init -45 -19 -12 -7 -4 -2.5 -1.7 -1 -.5 0 .5 1 1.7 2.5 4 7 12 19 45)", got)
}

func TestTokenize(t *testing.T) {
	groups := Tokenize("  (a 1 2)(b)(c x)\x00 ")
	require.Len(t, groups, 3)
	assert.Equal(t, Group{Key: "a", Values: []string{"1", "2"}}, groups[0])
	assert.Equal(t, Group{Key: "b", Values: []string{}}, groups[1])
	assert.Equal(t, Group{Key: "c", Values: []string{"x"}}, groups[2])
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "shutdown", KindShutdown.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
