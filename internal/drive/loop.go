// Package drive runs the control loop: receive telemetry, decide, send the
// action, record, repeat until the race ends.
package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/drlrcc/torcs-driver/internal/dispatcher"
	"github.com/drlrcc/torcs-driver/internal/episode"
	"github.com/drlrcc/torcs-driver/internal/policy"
	"github.com/drlrcc/torcs-driver/internal/recorder"
	"github.com/drlrcc/torcs-driver/internal/session"
	"github.com/drlrcc/torcs-driver/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrStepLimit is returned by Step once the configured step limit is hit.
var ErrStepLimit = errors.New("step limit reached")

// End reasons besides the server markers.
const (
	ReasonRaceEnded = "race-ended"
	ReasonStepLimit = "step-limit"
	ReasonCancelled = "cancelled"
	ReasonError     = "error"
)

// Session is the server conversation the loop drives.
type Session interface {
	Connect(ctx context.Context) error
	ReceiveStep(ctx context.Context) (session.Frame, error)
	SendStep(a *core.ActionCommand) error
	Close() error
	LastRacePos() int
}

// LoopDependencies holds the collaborators of a Loop. Recorder, Events and
// Episodes are optional.
type LoopDependencies struct {
	Session  Session
	Policy   policy.Policy
	Recorder *recorder.Recorder
	Events   *dispatcher.Dispatcher
	Episodes *episode.Context
	Logger   *slog.Logger
}

// Loop drives one episode tick by tick.
type Loop struct {
	deps      LoopDependencies
	maxSpeed  float64
	maxSteps  int
	episodeID string

	action  *core.ActionCommand
	steps   int
	reason  string
	racePos int
	metrics *metrics
}

// NewLoop starts a loop at step 0 with a default action.
func NewLoop(episodeID string, maxSpeed float64, maxSteps int, deps LoopDependencies) (*Loop, error) {
	if deps.Session == nil || deps.Policy == nil {
		return nil, errors.New("loop needs a session and a policy")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	return &Loop{
		deps:      deps,
		maxSpeed:  maxSpeed,
		maxSteps:  maxSteps,
		episodeID: episodeID,
		action:    core.NewActionCommand(),
		metrics:   m,
	}, nil
}

// Steps is the number of actions sent so far.
func (l *Loop) Steps() int { return l.steps }

// Reason is why the loop stopped, empty while it runs.
func (l *Loop) Reason() string { return l.reason }

// RacePos is the race position reported with a server terminal marker,
// falling back to the last telemetry value.
func (l *Loop) RacePos() int {
	if l.racePos > 0 {
		return l.racePos
	}
	return l.deps.Session.LastRacePos()
}

// Action is the command as it was last sent.
func (l *Loop) Action() *core.ActionCommand { return l.action }

// Step runs one tick. It reports done when the server ended the race or the
// policy detected a terminal condition; the action for a terminal tick is
// still sent.
func (l *Loop) Step(ctx context.Context) (done bool, err error) {
	if l.maxSteps > 0 && l.steps >= l.maxSteps {
		l.reason = ReasonStepLimit
		return true, ErrStepLimit
	}

	frame, err := l.deps.Session.ReceiveStep(ctx)
	if err != nil {
		return false, err
	}
	if frame.Terminal != nil {
		l.reason = frame.Terminal.Reason.String()
		l.racePos = frame.Terminal.RacePos
		return true, nil
	}

	start := time.Now()
	snap := frame.Snapshot
	obs := snap.Normalize(l.maxSpeed)

	d, err := l.deps.Policy.Decide(policy.Input{Snapshot: snap, Observation: obs, Action: l.action, Step: l.steps})
	if err != nil {
		return false, fmt.Errorf("step %d: decide: %w", l.steps, err)
	}
	d.Edits.ApplyTo(l.action)

	if err := l.deps.Session.SendStep(l.action); err != nil {
		return false, err
	}
	l.metrics.stepDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000)

	label := l.action.Steer
	if d.Label != nil {
		label = *d.Label
	}
	if l.deps.Recorder != nil && l.deps.Recorder.Append(l.steps, obs, label) {
		l.metrics.samples.Add(ctx, 1)
	}

	l.publish(snap, label)

	l.steps++
	l.metrics.steps.Add(ctx, 1)
	if l.deps.Episodes != nil {
		l.deps.Episodes.SetStep(l.steps)
	}

	if l.deps.Recorder != nil {
		if err := l.deps.Recorder.Checkpoint(l.steps); err != nil {
			l.deps.Logger.Error("Checkpoint flush failed", "error", err)
		}
	}

	if d.RaceEnded {
		l.reason = ReasonRaceEnded
		return true, nil
	}
	return false, nil
}

func (l *Loop) publish(snap *core.SensorSnapshot, label float64) {
	if l.deps.Events == nil || !l.deps.Events.HasHandler(dispatcher.TopicStep) {
		return
	}
	err := l.deps.Events.Publish(dispatcher.Event{
		Topic:    dispatcher.TopicStep,
		Step:     core.NewStepRecord(l.episodeID, l.steps, snap, l.action, label),
		Snapshot: snap,
		Action:   l.action.Clone(),
	})
	if err != nil {
		l.deps.Logger.Debug("Step event not delivered", "error", err)
	}
}

// Run steps until the race ends. The step limit ends the race normally;
// other errors are returned with the reason set.
func (l *Loop) Run(ctx context.Context) error {
	for {
		done, err := l.Step(ctx)
		switch {
		case errors.Is(err, ErrStepLimit):
			return nil
		case err != nil:
			if ctx.Err() != nil {
				l.reason = ReasonCancelled
			} else {
				l.reason = ReasonError
			}
			return err
		case done:
			return nil
		}
	}
}

func (l *Loop) endAttrs() metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("reason", l.reason))
}
