package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/drlrcc/torcs-driver/internal/config"
	"github.com/drlrcc/torcs-driver/internal/dispatcher"
	"github.com/drlrcc/torcs-driver/internal/episode"
	"github.com/drlrcc/torcs-driver/internal/policy"
	"github.com/drlrcc/torcs-driver/internal/recorder"
	"github.com/drlrcc/torcs-driver/internal/simulator"
	"github.com/drlrcc/torcs-driver/internal/storage"
	"github.com/drlrcc/torcs-driver/pkg/core"
	"github.com/google/uuid"
)

// Uploader sends a finished dataset to the training server.
type Uploader interface {
	Upload(ctx context.Context, path string, meta core.UploadMetadata) error
}

// Options are the per-run settings of a Runner.
type Options struct {
	Session  config.SessionConfig
	Recorder config.RecorderConfig
	// PolicyName and ModelFile are stored with every episode. A non-empty
	// ModelFile marks the run as driven by a learned model.
	PolicyName string
	ModelFile  string
	Settings   map[string]string
}

// Dependencies holds the collaborators of a Runner. Storage, Events,
// Uploader and Episodes are optional.
type Dependencies struct {
	// NewSession opens a fresh session for each episode.
	NewSession func() (Session, error)
	Simulator  simulator.Controller
	Policy     policy.Policy
	Storage    storage.Backend
	Events     *dispatcher.Dispatcher
	Uploader   Uploader
	Episodes   *episode.Context
	Logger     *slog.Logger
}

// Summary is what a run achieved.
type Summary struct {
	Episodes []core.Episode
	// Completed lists the tracks where an episode outlasted the good-episode
	// threshold.
	Completed []string
}

// Print writes the end-of-run report.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "Episodes: %d\n", len(s.Episodes))
	for _, ep := range s.Episodes {
		fmt.Fprintf(w, "  #%d %s steps=%d reason=%s racePos=%d duration=%s\n",
			ep.Number, ep.Track, ep.Steps, ep.Reason, ep.RacePos,
			ep.EndTime.Sub(ep.StartTime).Round(time.Millisecond))
	}
	for _, track := range s.Completed {
		fmt.Fprintf(w, "Best performance reached on %s\n", track)
	}
}

// Runner drives up to MaxEpisodes episodes.
type Runner struct {
	opts    Options
	deps    Dependencies
	metrics *metrics
	now     func() time.Time
	newID   func() string
}

// NewRunner validates the session settings and wires the collaborators.
func NewRunner(opts Options, deps Dependencies) (*Runner, error) {
	if err := opts.Session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	if deps.NewSession == nil || deps.Policy == nil {
		return nil, errors.New("runner needs a session factory and a policy")
	}
	if deps.Simulator == nil {
		deps.Simulator = simulator.Noop{}
	}
	if deps.Episodes == nil {
		deps.Episodes = episode.NewContext()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	return &Runner{
		opts:    opts,
		deps:    deps,
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

// Run drives episodes until MaxEpisodes are done, ctx is cancelled or an
// episode fails. The summary covers every episode that started.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	for n := 1; n <= r.opts.Session.MaxEpisodes; n++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		ep, err := r.runEpisode(ctx, n)
		if ep != nil {
			sum.Episodes = append(sum.Episodes, *ep)
			if r.isGood(ep) {
				sum.Completed = append(sum.Completed, ep.Track)
			}
		}
		if err != nil {
			return sum, err
		}

		if n < r.opts.Session.MaxEpisodes {
			if err := r.deps.Simulator.Pause(ctx); err != nil {
				return sum, err
			}
		}
	}
	return sum, nil
}

func (r *Runner) isGood(ep *core.Episode) bool {
	return r.opts.Recorder.GoodEpisodeSteps > 0 && ep.Steps > r.opts.Recorder.GoodEpisodeSteps
}

func (r *Runner) newEpisode(n int) *core.Episode {
	return &core.Episode{
		ID:        r.newID(),
		Number:    n,
		Track:     r.opts.Session.Track,
		Stage:     core.Stage(r.opts.Session.Stage),
		Policy:    r.opts.PolicyName,
		Model:     r.opts.ModelFile,
		StartTime: r.now(),
		Settings:  r.opts.Settings,
	}
}

func (r *Runner) runEpisode(ctx context.Context, n int) (*core.Episode, error) {
	log := r.deps.Logger
	ep := r.newEpisode(n)

	if err := r.deps.Simulator.Start(ctx); err != nil {
		return nil, fmt.Errorf("episode %d: start simulator: %w", n, err)
	}
	defer func() {
		if err := r.deps.Simulator.Stop(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Stopping simulator failed", "error", err)
		}
	}()

	sess, err := r.deps.NewSession()
	if err != nil {
		return nil, fmt.Errorf("episode %d: %w", n, err)
	}
	defer sess.Close()

	if err := sess.Connect(ctx); err != nil {
		return nil, fmt.Errorf("episode %d: connect: %w", n, err)
	}

	rec, stored := r.startRecording(ep)
	r.deps.Episodes.Set(ep)
	defer r.deps.Episodes.Clear()
	r.publish(dispatcher.TopicEpisodeStart, ep)
	log.Info("Episode started", "episodeId", ep.ID, "episode", n, "track", ep.Track, "stage", ep.Stage.String())

	loop, err := NewLoop(ep.ID, r.opts.Session.MaxSpeed, r.opts.Session.MaxSteps, LoopDependencies{
		Session:  sess,
		Policy:   r.deps.Policy,
		Recorder: rec,
		Events:   r.deps.Events,
		Episodes: r.deps.Episodes,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	runErr := loop.Run(ctx)

	ep.EndTime = r.now()
	ep.Steps = loop.Steps()
	ep.Reason = loop.Reason()
	ep.RacePos = loop.RacePos()
	r.metrics.episodes.Add(context.WithoutCancel(ctx), 1, loop.endAttrs())

	finishErr := r.finishEpisode(ctx, ep, rec, stored)
	log.Info("Episode finished",
		"episodeId", ep.ID,
		"steps", ep.Steps,
		"reason", ep.Reason,
		"racePos", ep.RacePos)

	if runErr != nil {
		return ep, fmt.Errorf("episode %d: %w", n, runErr)
	}
	return ep, finishErr
}

// startRecording opens ep in storage. stored is false when there is no
// backend or it refused the episode; nothing is recorded then.
func (r *Runner) startRecording(ep *core.Episode) (rec *recorder.Recorder, stored bool) {
	if r.deps.Storage == nil {
		return nil, false
	}
	if err := r.deps.Storage.StartEpisode(ep); err != nil {
		r.deps.Logger.Error("Storage refused episode, recording disabled", "episodeId", ep.ID, "error", err)
		return nil, false
	}
	if !r.opts.Recorder.Enabled {
		return nil, true
	}
	rec = recorder.New(r.opts.Recorder, r.deps.Storage, r.deps.Logger)
	rec.Reset(ep.ID)
	return rec, true
}

// finishEpisode flushes what the recorder holds, closes the episode in
// storage, appends the training log and uploads the dataset.
func (r *Runner) finishEpisode(ctx context.Context, ep *core.Episode, rec *recorder.Recorder, stored bool) error {
	log := r.deps.Logger
	var errs []error

	if rec != nil {
		log.Info("Race ended, flushing buffer", "count", rec.Buffered(), "total", rec.Total())
		if err := rec.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	if stored {
		if err := r.deps.Storage.EndEpisode(ep); err != nil {
			errs = append(errs, fmt.Errorf("end episode: %w", err))
		}
	}
	r.publish(dispatcher.TopicEpisodeEnd, ep)

	if r.isGood(ep) {
		log.Info("Best performance reached", "track", ep.Track, "steps", ep.Steps)
	}

	if r.opts.ModelFile != "" && r.opts.Recorder.TrainingLog != "" {
		if err := AppendTrainingLog(r.opts.Recorder.TrainingLog, r.opts.ModelFile, ep.Steps); err != nil {
			log.Warn("Training log not written", "error", err)
		}
	}

	if stored {
		r.upload(ctx, ep, rec)
	}
	return errors.Join(errs...)
}

func (r *Runner) upload(ctx context.Context, ep *core.Episode, rec *recorder.Recorder) {
	if !r.opts.Recorder.Upload || r.deps.Uploader == nil || ctx.Err() != nil {
		return
	}
	u, ok := r.deps.Storage.(storage.Uploadable)
	if !ok {
		return
	}
	path := u.GetExportedFilePath()
	if path == "" {
		return
	}
	meta := u.GetExportMetadata()
	if rec != nil && meta.Samples == 0 {
		meta.Samples = rec.Total()
	}
	if meta.Tag == "" {
		meta.Tag = r.opts.Recorder.Tag
	}
	if err := r.deps.Uploader.Upload(ctx, path, meta); err != nil {
		r.deps.Logger.Error("Dataset upload failed", "path", path, "error", err)
		return
	}
	r.deps.Logger.Info("Dataset uploaded", "path", path, "episodeId", ep.ID)
}

func (r *Runner) publish(topic dispatcher.Topic, ep *core.Episode) {
	if r.deps.Events == nil {
		return
	}
	cp := *ep
	if err := r.deps.Events.Publish(dispatcher.Event{Topic: topic, Episode: &cp}); err != nil {
		r.deps.Logger.Warn("Episode event not delivered", "topic", string(topic), "error", err)
	}
}

// AppendTrainingLog adds one "file = <model>, steps = <n>" entry to path.
func AppendTrainingLog(path, modelFile string, steps int) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "\nfile = %s, steps = %d ", modelFile, steps); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
