package simulator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/drlrcc/torcs-driver/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCommander struct {
	calls    []string
	runErr   map[string]error
	startErr error
}

func (c *recordingCommander) Run(_ context.Context, name string, args ...string) error {
	c.calls = append(c.calls, "run "+strings.Join(append([]string{name}, args...), " "))
	return c.runErr[name]
}

func (c *recordingCommander) Start(_ context.Context, name string, args ...string) error {
	c.calls = append(c.calls, "start "+strings.Join(append([]string{name}, args...), " "))
	return c.startErr
}

func testConfig() config.SimulatorConfig {
	return config.SimulatorConfig{
		Managed:        true,
		Binary:         "torcs",
		Args:           []string{"-nofuel", "-vision"},
		AutostartShell: "autostart.sh",
	}
}

func TestProcess_Start(t *testing.T) {
	cmd := &recordingCommander{}
	p := NewProcess(testConfig(), cmd, nil)

	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, []string{
		"run pkill torcs",
		"start torcs -nofuel -vision",
		"run sh autostart.sh",
	}, cmd.calls)
	assert.Len(t, slept, 2)
}

func TestProcess_RestartIsStart(t *testing.T) {
	cmd := &recordingCommander{}
	p := NewProcess(testConfig(), cmd, nil)
	p.sleep = func(context.Context, time.Duration) error { return nil }

	require.NoError(t, p.Restart(context.Background()))
	assert.Len(t, cmd.calls, 3)
}

func TestProcess_LaunchError(t *testing.T) {
	cmd := &recordingCommander{startErr: errors.New("not found")}
	p := NewProcess(testConfig(), cmd, nil)
	p.sleep = func(context.Context, time.Duration) error { return nil }

	err := p.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launch torcs")
}

func TestProcess_StopError(t *testing.T) {
	cmd := &recordingCommander{runErr: map[string]error{"pkill": errors.New("denied")}}
	p := NewProcess(testConfig(), cmd, nil)

	err := p.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestProcess_StartCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.SettleDelay = time.Hour
	p := NewProcess(cfg, &recordingCommander{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Start(ctx), context.Canceled)
}

func TestSleepCtx_Zero(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), 0))
}

func TestNoop(t *testing.T) {
	var c Controller = Noop{}
	assert.NoError(t, c.Start(context.Background()))
	assert.NoError(t, c.Restart(context.Background()))
	assert.NoError(t, c.Stop(context.Background()))
	assert.NoError(t, c.Pause(context.Background()))
}
