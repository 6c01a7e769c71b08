package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/drlrcc/torcs-driver/pkg/core"
	"github.com/drlrcc/torcs-driver/pkg/scr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timeoutError implements net.Error with Timeout() == true.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var (
	errTimeout = &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	errRefused = &net.OpError{Op: "read", Net: "udp", Err: os.NewSyscallError("recvfrom", syscall.ECONNREFUSED)}
)

// readResult is one scripted Read outcome.
type readResult struct {
	data string
	err  error
}

// fakeConn plays back scripted reads and records writes. Once the script is
// exhausted every read times out.
type fakeConn struct {
	mu       sync.Mutex
	reads    []readResult
	writes   []string
	writeErr error
	closed   int
	deadline time.Time
}

func (c *fakeConn) Read(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed > 0 {
		return 0, net.ErrClosed
	}
	if len(c.reads) == 0 {
		return 0, errTimeout
	}
	r := c.reads[0]
	c.reads = c.reads[1:]
	if r.err != nil {
		return 0, r.err
	}
	return copy(b, r.data), nil
}

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes = append(c.writes, string(b))
	return len(b), nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

type fakeDialer struct {
	conn *fakeConn
	err  error
	addr string
}

func (d *fakeDialer) Dial(_ context.Context, address string) (Conn, error) {
	d.addr = address
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

type countingRestarter struct {
	calls int
	err   error
}

func (r *countingRestarter) Restart(context.Context) error {
	r.calls++
	return r.err
}

func timeouts(n int) []readResult {
	out := make([]readResult, n)
	for i := range out {
		out[i] = readResult{err: errTimeout}
	}
	return out
}

func newTestSession(t *testing.T, conn *fakeConn, restarter Restarter) (*Session, *bytes.Buffer) {
	t.Helper()
	var progress bytes.Buffer
	s, err := New(Options{
		Address:        "localhost:3001",
		ReceiveTimeout: time.Millisecond,
	}, Dependencies{
		Dialer:    &fakeDialer{conn: conn},
		Restarter: restarter,
		Logger:    slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		Progress:  &progress,
	})
	require.NoError(t, err)
	return s, &progress
}

func connected(t *testing.T, conn *fakeConn) *Session {
	t.Helper()
	conn.reads = append([]readResult{{data: scr.MarkerIdentified}}, conn.reads...)
	s, _ := newTestSession(t, conn, nil)
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func TestConnect_Identified(t *testing.T) {
	conn := &fakeConn{reads: append(timeouts(2), readResult{data: scr.MarkerIdentified})}
	r := &countingRestarter{}
	s, _ := newTestSession(t, conn, r)

	assert.Equal(t, Disconnected, s.State())
	require.NoError(t, s.Connect(context.Background()))

	assert.Equal(t, Connected, s.State())
	assert.Equal(t, 0, r.calls)
	require.Len(t, conn.writes, 3)
	assert.Equal(t, scr.InitMessage("SCR", scr.DefaultTrackAngles), conn.writes[0])
}

func TestConnect_IgnoresNonIdentifiedReplies(t *testing.T) {
	conn := &fakeConn{reads: []readResult{
		{data: "(angle 0)"},
		{data: scr.MarkerIdentified},
	}}
	r := &countingRestarter{}
	s, _ := newTestSession(t, conn, r)

	require.NoError(t, s.Connect(context.Background()))
	assert.Len(t, conn.writes, 2)
	assert.Equal(t, 0, r.calls)
}

func TestConnect_RestartAfterBudget(t *testing.T) {
	tests := []struct {
		name         string
		misses       int
		wantRestarts int
	}{
		{"below budget", 4, 0},
		{"exactly budget", 5, 1},
		{"counter resets after restart", 9, 1},
		{"second budget", 10, 2},
		{"into third window", 11, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConn{reads: append(timeouts(tt.misses), readResult{data: scr.MarkerIdentified})}
			r := &countingRestarter{}
			s, _ := newTestSession(t, conn, r)

			require.NoError(t, s.Connect(context.Background()))
			assert.Equal(t, tt.wantRestarts, r.calls)
		})
	}
}

func TestConnect_RefusedCountsAsMiss(t *testing.T) {
	reads := make([]readResult, 0, 6)
	for i := 0; i < 5; i++ {
		reads = append(reads, readResult{err: errRefused})
	}
	reads = append(reads, readResult{data: scr.MarkerIdentified})

	conn := &fakeConn{reads: reads}
	r := &countingRestarter{}
	s, _ := newTestSession(t, conn, r)

	start := time.Now()
	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, 1, r.calls)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond, "each refused read waits one receive timeout")
}

func TestConnect_RefusedWaitsBeforeRestart(t *testing.T) {
	reads := make([]readResult, 0, 6)
	for i := 0; i < 5; i++ {
		reads = append(reads, readResult{err: errRefused})
	}
	reads = append(reads, readResult{data: scr.MarkerIdentified})

	conn := &fakeConn{reads: reads}
	r := &countingRestarter{}
	s, err := New(Options{
		Address:        "localhost:3001",
		ReceiveTimeout: 20 * time.Millisecond,
	}, Dependencies{
		Dialer:    &fakeDialer{conn: conn},
		Restarter: r,
		Logger:    slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, s.Connect(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 1, r.calls)
}

func TestConnect_RefusedCancelledWhileWaiting(t *testing.T) {
	conn := &fakeConn{reads: []readResult{{err: errRefused}}}
	s, err := New(Options{
		Address:        "localhost:3001",
		ReceiveTimeout: time.Hour,
	}, Dependencies{
		Dialer: &fakeDialer{conn: conn},
		Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Connect(ctx), context.DeadlineExceeded)
}

func TestConnect_RestartErrorNotFatal(t *testing.T) {
	conn := &fakeConn{reads: append(timeouts(5), readResult{data: scr.MarkerIdentified})}
	r := &countingRestarter{err: errors.New("torcs not installed")}
	s, _ := newTestSession(t, conn, r)

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, 1, r.calls)
}

func TestConnect_DialError(t *testing.T) {
	s, err := New(Options{Address: "nowhere:1"}, Dependencies{
		Dialer: &fakeDialer{err: errors.New("no route")},
	})
	require.NoError(t, err)

	err = s.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nowhere:1")
	assert.Equal(t, Disconnected, s.State())
}

func TestConnect_Cancelled(t *testing.T) {
	conn := &fakeConn{}
	s, _ := newTestSession(t, conn, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Connect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnect_WriteFailure(t *testing.T) {
	conn := &fakeConn{writeErr: errors.New("network down")}
	s, _ := newTestSession(t, conn, nil)

	err := s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrSendFailed)
}

func TestReceiveStep_SkipsNoise(t *testing.T) {
	conn := &fakeConn{reads: []readResult{
		{err: errTimeout},
		{data: ""},
		{data: scr.MarkerIdentified},
		{data: "(angle 0.1)(racePos 2)\x00"},
	}}
	conn.reads = append([]readResult{{data: scr.MarkerIdentified}}, conn.reads...)
	s, progress := newTestSession(t, conn, nil)
	require.NoError(t, s.Connect(context.Background()))

	f, err := s.ReceiveStep(context.Background())
	require.NoError(t, err)
	require.NotNil(t, f.Snapshot)
	assert.Nil(t, f.Terminal)
	assert.Equal(t, 0.1, f.Snapshot.Angle)
	assert.Equal(t, ".", progress.String())
	assert.Equal(t, 2, s.LastRacePos())
}

func TestReceiveStep_Terminal(t *testing.T) {
	tests := []struct {
		name   string
		marker string
		want   scr.Kind
	}{
		{"shutdown", scr.MarkerShutdown, scr.KindShutdown},
		{"restart", scr.MarkerRestart, scr.KindRestart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConn{reads: []readResult{
				{data: "(racePos 3)(speedX 10)"},
				{data: tt.marker},
			}}
			s := connected(t, conn)

			f, err := s.ReceiveStep(context.Background())
			require.NoError(t, err)
			require.NotNil(t, f.Snapshot)

			f, err = s.ReceiveStep(context.Background())
			require.NoError(t, err)
			require.NotNil(t, f.Terminal)
			assert.Equal(t, tt.want, f.Terminal.Reason)
			assert.Equal(t, 3, f.Terminal.RacePos)
			assert.Equal(t, ShuttingDown, s.State())
		})
	}
}

func TestReceiveStep_Refused(t *testing.T) {
	conn := &fakeConn{reads: []readResult{
		{err: errRefused},
		{data: "(rpm 900)"},
	}}
	s := connected(t, conn)

	f, err := s.ReceiveStep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 900.0, f.Snapshot.RPM)
}

func TestReceiveStep_NotConnected(t *testing.T) {
	s, _ := newTestSession(t, &fakeConn{}, nil)
	_, err := s.ReceiveStep(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestReceiveStep_Cancelled(t *testing.T) {
	s := connected(t, &fakeConn{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.ReceiveStep(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendStep_ClampsAndEncodes(t *testing.T) {
	conn := &fakeConn{}
	s := connected(t, conn)
	conn.writes = nil

	a := core.NewActionCommand()
	a.Steer = 9483.3
	a.Gear = 42
	require.NoError(t, s.SendStep(a))

	require.Len(t, conn.writes, 1)
	assert.Contains(t, conn.writes[0], "(steer 1.000)")
	assert.Contains(t, conn.writes[0], "(gear 0.000)")
	assert.Equal(t, 1.0, a.Steer, "action is clamped in place")
}

func TestSendStep_Failure(t *testing.T) {
	conn := &fakeConn{}
	s := connected(t, conn)
	conn.writeErr = errors.New("boom")

	err := s.SendStep(core.NewActionCommand())
	assert.ErrorIs(t, err, ErrSendFailed)
}

func TestClose_Idempotent(t *testing.T) {
	conn := &fakeConn{}
	s := connected(t, conn)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, conn.closed)
	assert.Equal(t, Disconnected, s.State())

	_, err := s.ReceiveStep(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.SendStep(core.NewActionCommand()), ErrClosed)
	assert.ErrorIs(t, s.Connect(context.Background()), ErrClosed)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "handshaking", Handshaking.String())
	assert.Equal(t, "state(9)", State(9).String())
}
