// Package simulator starts and stops the local TORCS process.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/drlrcc/torcs-driver/internal/config"
)

// Commander runs external commands. Run waits for completion; Start does not.
type Commander interface {
	Run(ctx context.Context, name string, args ...string) error
	Start(ctx context.Context, name string, args ...string) error
}

// ExecCommander runs commands with os/exec.
type ExecCommander struct{}

// Run executes the command and waits for it.
func (ExecCommander) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Start launches the command in the background and reaps it when it exits.
func (ExecCommander) Start(_ context.Context, name string, args ...string) error {
	// not bound to ctx: the simulator outlives the request that launched it
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Controller manages the simulator process lifecycle.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	// Pause waits between episodes.
	Pause(ctx context.Context) error
}

// Process controls a TORCS binary on the local machine.
type Process struct {
	cfg    config.SimulatorConfig
	cmd    Commander
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewProcess creates a Controller for the configured binary.
func NewProcess(cfg config.SimulatorConfig, cmd Commander, logger *slog.Logger) *Process {
	if cmd == nil {
		cmd = ExecCommander{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Process{cfg: cfg, cmd: cmd, logger: logger, sleep: sleepCtx}
}

// Start kills any running instance, launches a fresh one and runs the
// autostart script that drives the menus into a race.
func (p *Process) Start(ctx context.Context) error {
	p.logger.Info("Launching simulator", "binary", p.cfg.Binary, "args", p.cfg.Args)
	_ = p.Stop(ctx)
	if err := p.sleep(ctx, p.cfg.SettleDelay); err != nil {
		return err
	}
	if err := p.cmd.Start(ctx, p.cfg.Binary, p.cfg.Args...); err != nil {
		return fmt.Errorf("launch %s: %w", p.cfg.Binary, err)
	}
	if err := p.sleep(ctx, p.cfg.SettleDelay); err != nil {
		return err
	}
	if p.cfg.AutostartShell != "" {
		if err := p.cmd.Run(ctx, "sh", p.cfg.AutostartShell); err != nil {
			return fmt.Errorf("autostart script %s: %w", p.cfg.AutostartShell, err)
		}
	}
	return nil
}

// Stop kills every instance of the binary. pkill exits 1 when nothing
// matched, which is not an error here.
func (p *Process) Stop(ctx context.Context) error {
	err := p.cmd.Run(ctx, "pkill", p.cfg.Binary)
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil
		}
		return fmt.Errorf("stop %s: %w", p.cfg.Binary, err)
	}
	return nil
}

// Restart is Start; Start already stops a running instance.
func (p *Process) Restart(ctx context.Context) error {
	return p.Start(ctx)
}

// Pause waits the configured delay between episodes.
func (p *Process) Pause(ctx context.Context) error {
	return p.sleep(ctx, p.cfg.EpisodeDelay)
}

// Noop is a Controller for simulators managed outside this process.
type Noop struct{}

func (Noop) Start(context.Context) error   { return nil }
func (Noop) Stop(context.Context) error    { return nil }
func (Noop) Restart(context.Context) error { return nil }
func (Noop) Pause(context.Context) error   { return nil }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
