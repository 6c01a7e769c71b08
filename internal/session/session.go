// Package session manages the datagram conversation with one SCR server:
// identification handshake, telemetry reception and action transmission.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/drlrcc/torcs-driver/pkg/core"
	"github.com/drlrcc/torcs-driver/pkg/scr"
	"go.opentelemetry.io/otel/metric"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultReceiveTimeout = time.Second
	DefaultRetryBudget    = 5
	DefaultID             = "SCR"

	// datagram buffer; vision telemetry carries 12288 pixel values
	maxDatagram = 1 << 17
)

// Errors returned by Session.
var (
	ErrSendFailed   = errors.New("send to server failed")
	ErrClosed       = errors.New("session closed")
	ErrNotConnected = errors.New("session not connected")
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Handshaking
	Connected
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Handshaking:
		return "handshaking"
	case Connected:
		return "connected"
	case ShuttingDown:
		return "shutting-down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Restarter relaunches the simulator when the handshake keeps timing out.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Terminal describes a server-initiated end of race.
type Terminal struct {
	Reason  scr.Kind
	RacePos int
}

// Frame is the outcome of one ReceiveStep: either a snapshot or a terminal.
type Frame struct {
	Snapshot *core.SensorSnapshot
	Terminal *Terminal
}

// Options configures a Session.
type Options struct {
	Address        string
	ID             string
	TrackAngles    []float64
	ReceiveTimeout time.Duration
	RetryBudget    int
}

// Dependencies holds the collaborators of a Session.
type Dependencies struct {
	Dialer    Dialer
	Restarter Restarter
	Codec     *scr.Codec
	Logger    *slog.Logger
	// Progress receives a dot for every receive timeout. Optional.
	Progress io.Writer
}

// Session is a single client connection to the SCR server.
// It is driven by one goroutine; Close may be called from another.
type Session struct {
	opts Options
	deps Dependencies

	mu     sync.Mutex
	conn   Conn
	state  State
	closed bool

	buf         []byte
	lastRacePos int

	timeouts metric.Int64Counter
	restarts metric.Int64Counter
}

// New creates a Session. No socket is opened until Connect.
func New(opts Options, deps Dependencies) (*Session, error) {
	if opts.ID == "" {
		opts.ID = DefaultID
	}
	if opts.TrackAngles == nil {
		opts.TrackAngles = scr.DefaultTrackAngles
	}
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = DefaultReceiveTimeout
	}
	if opts.RetryBudget <= 0 {
		opts.RetryBudget = DefaultRetryBudget
	}
	if deps.Dialer == nil {
		deps.Dialer = UDPDialer{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Codec == nil {
		deps.Codec = scr.NewCodec(deps.Logger)
	}

	s := &Session{
		opts: opts,
		deps: deps,
		buf:  make([]byte, maxDatagram),
	}
	if err := s.initMetrics(); err != nil {
		return nil, err
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Connect opens the channel and repeats the identification request until the
// server acknowledges it. Every RetryBudget consecutive misses trigger one
// simulator restart.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.state = Handshaking
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		c, err := s.deps.Dialer.Dial(ctx, s.opts.Address)
		if err != nil {
			s.setState(Disconnected)
			return fmt.Errorf("dial %s: %w", s.opts.Address, err)
		}
		s.mu.Lock()
		s.conn = c
		s.mu.Unlock()
		conn = c
	}

	init := []byte(scr.InitMessage(s.opts.ID, s.opts.TrackAngles))
	misses := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := conn.Write(init); err != nil && !isRefused(err) {
			return fmt.Errorf("%w: %w", ErrSendFailed, err)
		}

		payload, err := s.read(ctx, conn)
		if err != nil {
			if !isTimeout(err) && !isRefused(err) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return fmt.Errorf("handshake read: %w", err)
			}
			// a refused read returns at once; wait as long as a timeout would
			if isRefused(err) {
				if err := s.pause(ctx); err != nil {
					return err
				}
			}
			misses++
			s.timeouts.Add(ctx, 1)
			s.deps.Logger.Info("Waiting for server",
				"address", s.opts.Address,
				"countdown", s.opts.RetryBudget-misses)
			if misses >= s.opts.RetryBudget {
				s.restart(ctx)
				misses = 0
			}
			continue
		}

		if scr.Classify(payload) == scr.KindIdentified {
			s.setState(Connected)
			s.deps.Logger.Info("Client connected", "address", s.opts.Address)
			return nil
		}
	}
}

func (s *Session) restart(ctx context.Context) {
	if s.deps.Restarter == nil {
		return
	}
	s.restarts.Add(ctx, 1)
	s.deps.Logger.Warn("Server not answering, restarting simulator")
	if err := s.deps.Restarter.Restart(ctx); err != nil {
		s.deps.Logger.Error("Simulator restart failed", "error", err)
	}
}

// ReceiveStep blocks until a telemetry datagram or a terminal marker
// arrives. Timeouts are retried silently; identification echoes and empty
// payloads are skipped.
func (s *Session) ReceiveStep(ctx context.Context) (Frame, error) {
	conn, err := s.activeConn()
	if err != nil {
		return Frame{}, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		payload, err := s.read(ctx, conn)
		if err != nil {
			switch {
			case isTimeout(err):
				s.timeouts.Add(ctx, 1)
				s.progress()
				continue
			case isRefused(err):
				s.progress()
				if err := s.pause(ctx); err != nil {
					return Frame{}, err
				}
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Frame{}, ctxErr
			}
			return Frame{}, fmt.Errorf("receive: %w", err)
		}

		switch kind := scr.Classify(payload); kind {
		case scr.KindEmpty:
			continue
		case scr.KindIdentified:
			s.deps.Logger.Debug("Client connected", "address", s.opts.Address)
			continue
		case scr.KindShutdown, scr.KindRestart:
			s.setState(ShuttingDown)
			s.deps.Logger.Info("Server ended the race",
				"reason", kind.String(),
				"racePos", s.lastRacePos)
			return Frame{Terminal: &Terminal{Reason: kind, RacePos: s.lastRacePos}}, nil
		default:
			snap := s.deps.Codec.Decode(payload)
			if snap.Has(core.SensorRacePos) {
				s.lastRacePos = snap.RacePos
			}
			return Frame{Snapshot: snap}, nil
		}
	}
}

// SendStep clamps the action, encodes it and writes it to the server.
func (s *Session) SendStep(a *core.ActionCommand) error {
	conn, err := s.activeConn()
	if err != nil {
		return err
	}
	a.Clamp()
	if _, err := conn.Write([]byte(scr.Encode(a))); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// Close releases the socket. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.state = Disconnected
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// LastRacePos is the race position from the most recent telemetry.
func (s *Session) LastRacePos() int {
	return s.lastRacePos
}

func (s *Session) activeConn() (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.conn == nil || s.state == Disconnected || s.state == Handshaking {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

func (s *Session) read(ctx context.Context, conn Conn) (string, error) {
	deadline := time.Now().Add(s.opts.ReceiveTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}
	n, err := conn.Read(s.buf)
	if err != nil {
		return "", err
	}
	return string(s.buf[:n]), nil
}

// pause waits one receive timeout; used when reads fail fast.
func (s *Session) pause(ctx context.Context) error {
	t := time.NewTimer(s.opts.ReceiveTimeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Session) progress() {
	if s.deps.Progress != nil {
		fmt.Fprint(s.deps.Progress, ".")
	}
}
