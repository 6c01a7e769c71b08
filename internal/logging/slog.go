package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

var osStdout io.Writer = os.Stdout

// SlogManager manages slog-based logging with an optional Graylog sink.
type SlogManager struct {
	logger   *slog.Logger
	episodes EpisodeSource
	graylog  io.Closer
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func handlerOptions(lvl slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}
}

// SetEpisodeSource makes every record carry the current episode and step.
// Call before Setup.
func (m *SlogManager) SetEpisodeSource(src EpisodeSource) {
	m.episodes = src
}

// Setup initializes the logging system. Records go to file when one is
// given, otherwise to stdout. Extra handlers (e.g. a Graylog sink) receive
// every record as well.
func (m *SlogManager) Setup(file io.Writer, level string, extra ...slog.Handler) {
	lvl := parseLevel(level)
	opts := handlerOptions(lvl)

	var handlers []slog.Handler
	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, opts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, opts))
	}
	handlers = append(handlers, extra...)

	m.logger = slog.New(newDriverHandler(m.episodes, handlers...))
	m.logger.Info("Logging initialized", "level", level)
}

// EnableGraylog connects to a GELF endpoint and returns a handler for
// Setup. The connection is closed by Close.
func (m *SlogManager) EnableGraylog(address, level string) (slog.Handler, error) {
	h, closer, err := NewGraylogHandler(address, parseLevel(level))
	if err != nil {
		return nil, err
	}
	m.graylog = closer
	return h, nil
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Close releases the Graylog connection if one was opened.
func (m *SlogManager) Close() error {
	if m.graylog != nil {
		err := m.graylog.Close()
		m.graylog = nil
		return err
	}
	return nil
}
