package debugview

import (
	"strings"
)

// Bargraph draws x on a [mn, mx] axis w characters wide. The negative side
// is padded with '-', the positive side with '_', and the value is drawn
// with c.
func Bargraph(x, mn, mx float64, w int, c byte) string {
	if w <= 0 {
		return ""
	}
	x = min(max(x, mn), mx)
	tx := mx - mn
	if tx <= 0 {
		return "backwards"
	}
	upw := tx / float64(w)

	var negpu, pospu, negnonpu, posnonpu float64
	if mn < 0 {
		if x < 0 {
			negpu = -x + min(0, mx)
			negnonpu = -mn + x
		} else {
			negnonpu = -mn + min(0, mx)
		}
	}
	if mx > 0 {
		if x > 0 {
			pospu = x - max(0, mn)
			posnonpu = mx - x
		} else {
			posnonpu = mx - max(0, mn)
		}
	}

	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(strings.Repeat("-", int(negnonpu/upw)))
	b.WriteString(strings.Repeat(string(c), int(negpu/upw)))
	b.WriteString(strings.Repeat(string(c), int(pospu/upw)))
	b.WriteString(strings.Repeat("_", int(posnonpu/upw)))
	b.WriteByte(']')
	return b.String()
}

// opponentGlyph maps an opponent range to one character, nearer is louder.
func opponentGlyph(r float64) byte {
	switch {
	case r > 190:
		return '_'
	case r > 90:
		return '.'
	case r > 39:
		return byte(int(r/2) + 'a' - 19)
	case r > 13:
		return byte(int(r) + 'A' - 13)
	case r > 3:
		return byte(int(r) + '0' - 3)
	default:
		return '?'
	}
}

// gearStrip marks the current gear on a strip of positions.
func gearStrip(gear int) string {
	strip := strings.Repeat("_.", 10)
	label := string(rune('0' + gear))
	switch {
	case gear < 0:
		label = "R"
		gear = -1
	case gear == 0:
		label = "N"
	case gear > 7:
		gear = 7
		label = "7"
	}
	p := gear*2 + 2
	return strip[:p] + "(" + label + ")" + strip[p+3:]
}
