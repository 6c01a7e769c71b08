package drive

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/drlrcc/torcs-driver/internal/drive"

type metrics struct {
	steps        metric.Int64Counter
	episodes     metric.Int64Counter
	samples      metric.Int64Counter
	stepDuration metric.Float64Histogram
}

func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)
	out := &metrics{}

	var err error
	out.steps, err = m.Int64Counter(
		"drive.steps",
		metric.WithDescription("Ticks answered with an action"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating steps counter: %w", err)
	}

	out.episodes, err = m.Int64Counter(
		"drive.episodes",
		metric.WithDescription("Episodes finished, by end reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating episodes counter: %w", err)
	}

	out.samples, err = m.Int64Counter(
		"drive.samples",
		metric.WithDescription("Frames recorded for training"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating samples counter: %w", err)
	}

	out.stepDuration, err = m.Float64Histogram(
		"drive.step.duration",
		metric.WithDescription("Time from telemetry received to action sent"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating step duration histogram: %w", err)
	}
	return out, nil
}
