package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/drlrcc/torcs-driver/internal/config"
	"github.com/drlrcc/torcs-driver/internal/debugview"
	"github.com/drlrcc/torcs-driver/internal/dispatcher"
	"github.com/drlrcc/torcs-driver/internal/influx"
	"github.com/drlrcc/torcs-driver/internal/storage"
	"github.com/rs/zerolog"
)

const (
	stepBufferSize  = 4096
	viewRefreshRate = 100 * time.Millisecond
)

type sinkOptions struct {
	Debug      bool
	Stdout     io.Writer
	DBLogger   zerolog.Logger
	BackupPath string
}

// sinks owns the step event consumers that need closing.
type sinks struct {
	influx *influx.Manager
	view   *debugview.View
}

// registerSinks subscribes the per-step consumers: the storage backend when
// it keeps step rows, InfluxDB when enabled and the debug view.
func registerSinks(ctx context.Context, d *dispatcher.Dispatcher, backend storage.Backend, opts sinkOptions, logger *slog.Logger) *sinks {
	s := &sinks{}

	if rec, ok := backend.(storage.StepRecorder); ok {
		d.Register(dispatcher.TopicStep, "storage", func(e dispatcher.Event) error {
			return rec.RecordStep(e.Step)
		}, dispatcher.Buffered(stepBufferSize))
		logger.Debug("Step rows go to storage")
	}

	m := influx.NewManager(config.GetInfluxConfig(), opts.DBLogger.With().Str("component", "influx").Logger(), opts.BackupPath)
	switch err := m.Connect(ctx); {
	case errors.Is(err, influx.ErrDisabled):
	case err != nil:
		logger.Error("InfluxDB sink disabled", "error", err)
	default:
		s.influx = m
		d.Register(dispatcher.TopicStep, "influx", func(e dispatcher.Event) error {
			return m.WriteStep(e.Step)
		}, dispatcher.Buffered(stepBufferSize))
	}

	if opts.Debug {
		s.view = debugview.New(opts.Stdout, viewRefreshRate)
		s.view.Start(ctx)
		d.Register(dispatcher.TopicStep, "debugview", func(e dispatcher.Event) error {
			s.view.Update(e.Snapshot, e.Action)
			return nil
		})
	}
	return s
}

// StopView draws the last debug frame so the summary prints below it.
func (s *sinks) StopView() {
	if s.view != nil {
		s.view.Stop()
	}
}

// Close flushes the InfluxDB writer. Call after the dispatcher is closed.
func (s *sinks) Close() {
	s.StopView()
	if s.influx != nil {
		_ = s.influx.Close()
	}
}
