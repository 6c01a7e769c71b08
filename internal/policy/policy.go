// Package policy holds the decision functions that turn a sensor snapshot
// into actuator edits.
package policy

import (
	"github.com/drlrcc/torcs-driver/pkg/core"
)

// Input is everything a policy may look at for one tick.
type Input struct {
	Snapshot    *core.SensorSnapshot
	Observation core.Observation
	// Action is the command as it stands before this tick's edits. Read only.
	Action *core.ActionCommand
	// Step counts the ticks already driven in this episode.
	Step int
}

// Decision is a policy's answer for one tick.
type Decision struct {
	Edits core.ActionEdits
	// RaceEnded asks the loop to finish the episode after sending this tick.
	RaceEnded bool
	// Label is the steering value to record as the training target, if any.
	Label *float64
}

// Policy picks actuator edits for a tick.
type Policy interface {
	Decide(in Input) (Decision, error)
}

// Func adapts a plain function to Policy.
type Func func(in Input) (Decision, error)

// Decide calls f.
func (f Func) Decide(in Input) (Decision, error) { return f(in) }

// Chain runs policies in order and merges their decisions. Later edits
// override earlier ones, any RaceEnded ends the race, and the last label
// reported wins.
func Chain(policies ...Policy) Policy {
	return Func(func(in Input) (Decision, error) {
		var out Decision
		for _, p := range policies {
			d, err := p.Decide(in)
			if err != nil {
				return Decision{}, err
			}
			out.Edits = out.Edits.Merge(d.Edits)
			out.RaceEnded = out.RaceEnded || d.RaceEnded
			if d.Label != nil {
				out.Label = d.Label
			}
		}
		return out, nil
	})
}
