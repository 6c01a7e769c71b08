package session

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/drlrcc/torcs-driver/internal/session"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

func (s *Session) initMetrics() error {
	m := meter()

	var err error
	s.timeouts, err = m.Int64Counter(
		"session.timeouts",
		metric.WithDescription("Receive timeouts while waiting for the server"),
	)
	if err != nil {
		return fmt.Errorf("creating timeouts counter: %w", err)
	}

	s.restarts, err = m.Int64Counter(
		"session.restarts",
		metric.WithDescription("Simulator restarts requested by the handshake"),
	)
	if err != nil {
		return fmt.Errorf("creating restarts counter: %w", err)
	}
	return nil
}
