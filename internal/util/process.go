package util

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ProcessConfig bounds how long StopProcess waits at each stage.
type ProcessConfig struct {
	GracefulTimeout time.Duration // wait after the graceful request (default 10s)
	KillTimeout     time.Duration // wait after SIGKILL (default 500ms)
	PollInterval    time.Duration // default 100ms
}

func (c ProcessConfig) withDefaults() ProcessConfig {
	if c.GracefulTimeout == 0 {
		c.GracefulTimeout = 10 * time.Second
	}
	if c.KillTimeout == 0 {
		c.KillTimeout = 500 * time.Millisecond
	}
	if c.PollInterval == 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	return c
}

// spawnDetached starts executable in its own session with stdio detached,
// so it outlives the calling terminal.
func spawnDetached(executable string, args []string) (*os.Process, error) {
	cmd := exec.Command(executable, args...)
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", executable, err)
	}
	return cmd.Process, nil
}

// StopProcess calls gracefulStop, waits for isRunning to turn false and
// falls back to SIGKILL when the process lingers.
func StopProcess(ctx context.Context, pid int, cfg ProcessConfig, gracefulStop func() error, isRunning func() bool) error {
	cfg = cfg.withDefaults()
	stopped := func() bool { return !isRunning() }

	if gracefulStop != nil {
		// a failed request still falls through to SIGKILL
		_ = gracefulStop()
	}
	if PollUntil(ctx, PollConfig{Timeout: cfg.GracefulTimeout, Interval: cfg.PollInterval}, stopped) == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := signalPID(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill PID %d: %w", pid, err)
	}
	if PollUntil(ctx, PollConfig{Timeout: cfg.KillTimeout, Interval: cfg.PollInterval}, stopped) != nil {
		return fmt.Errorf("failed to stop process (PID %d)", pid)
	}
	return nil
}

func signalPID(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}

// IsProcessRunning reports whether pid exists, probing it with signal 0.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	return signalPID(pid, syscall.Signal(0)) == nil
}

// TerminateFunc returns a graceful-stop function that sends SIGTERM to pid.
func TerminateFunc(pid int) func() error {
	return func() error { return signalPID(pid, syscall.SIGTERM) }
}
