package drive

import (
	"context"
	"errors"
	"sync"

	"github.com/drlrcc/torcs-driver/internal/session"
	"github.com/drlrcc/torcs-driver/pkg/core"
	"github.com/drlrcc/torcs-driver/pkg/scr"
)

var errScriptDone = errors.New("script exhausted")

type fakeSession struct {
	frames     []session.Frame
	next       int
	connectErr error
	sendErr    error
	racePos    int

	sent   []*core.ActionCommand
	closed bool
}

func (f *fakeSession) Connect(context.Context) error { return f.connectErr }

func (f *fakeSession) ReceiveStep(ctx context.Context) (session.Frame, error) {
	if err := ctx.Err(); err != nil {
		return session.Frame{}, err
	}
	if f.next >= len(f.frames) {
		return session.Frame{}, errScriptDone
	}
	fr := f.frames[f.next]
	f.next++
	return fr, nil
}

func (f *fakeSession) SendStep(a *core.ActionCommand) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	a.Clamp()
	f.sent = append(f.sent, a.Clone())
	return nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSession) LastRacePos() int { return f.racePos }

func track(v float64) []float64 {
	t := make([]float64, core.TrackRays)
	for i := range t {
		t[i] = v
	}
	return t
}

// driving is a tick on the track with a vision frame.
func driving() session.Frame {
	return session.Frame{Snapshot: core.NewSensorSnapshot(map[string][]float64{
		"angle":    {0.1},
		"trackPos": {0.2},
		"speedX":   {40},
		"track":    track(50),
		"img":      make([]float64, core.FrameSize),
	}, nil)}
}

func offTrack() session.Frame {
	return session.Frame{Snapshot: core.NewSensorSnapshot(map[string][]float64{
		"speedX": {40},
		"track":  track(-1),
	}, nil)}
}

func shutdown(pos int) session.Frame {
	return session.Frame{Terminal: &session.Terminal{Reason: scr.KindShutdown, RacePos: pos}}
}

func script(frames ...session.Frame) *fakeSession {
	return &fakeSession{frames: frames}
}

type sampleSink struct {
	mu      sync.Mutex
	samples []core.Sample
	err     error
}

func (s *sampleSink) RecordSamples(samples []core.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.samples = append(s.samples, samples...)
	return nil
}

type fakeSimulator struct {
	starts, stops, pauses int
	startErr              error
}

func (f *fakeSimulator) Start(context.Context) error {
	f.starts++
	return f.startErr
}
func (f *fakeSimulator) Stop(context.Context) error    { f.stops++; return nil }
func (f *fakeSimulator) Restart(context.Context) error { return nil }
func (f *fakeSimulator) Pause(context.Context) error   { f.pauses++; return nil }

type fakeUploader struct {
	paths []string
	metas []core.UploadMetadata
}

func (f *fakeUploader) Upload(_ context.Context, path string, meta core.UploadMetadata) error {
	f.paths = append(f.paths, path)
	f.metas = append(f.metas, meta)
	return nil
}
