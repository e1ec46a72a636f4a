package util

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// BackgroundStartConfig configures StartInBackground.
type BackgroundStartConfig struct {
	Notify     io.Writer  // Status messages; nil for silent
	PollConfig PollConfig // Polling config for waiting
}

// DefaultBackgroundStartConfig reports progress on stderr and polls every
// 25ms for up to 5s.
func DefaultBackgroundStartConfig() BackgroundStartConfig {
	return BackgroundStartConfig{
		Notify:     os.Stderr,
		PollConfig: PollConfig{Timeout: 5 * time.Second, Interval: 25 * time.Millisecond},
	}
}

// StartInBackground re-executes the current binary detached with args and
// waits until isReady reports true. If the child exits first, the wait is
// abandoned.
func StartInBackground(ctx context.Context, cfg BackgroundStartConfig, args []string, isReady func() bool) (int, error) {
	notify := func(msg string) {
		if cfg.Notify != nil {
			fmt.Fprint(cfg.Notify, msg)
		}
	}
	notify("Starting in background...")

	exe, err := os.Executable()
	if err != nil {
		notify(" failed\n")
		return 0, err
	}
	proc, err := spawnDetached(exe, args)
	if err != nil {
		notify(" failed\n")
		return 0, err
	}
	pid := proc.Pid
	// reap the child so IsProcessRunning sees it exit
	go proc.Wait()

	var exited bool
	err = PollUntil(ctx, cfg.PollConfig, func() bool {
		if !IsProcessRunning(pid) {
			exited = true
			return true
		}
		return isReady()
	})
	switch {
	case exited && !isReady():
		notify(" failed\n")
		return pid, fmt.Errorf("background process (PID %d) exited before it was ready", pid)
	case err != nil:
		notify(" timeout\n")
		return pid, fmt.Errorf("background process (PID %d) did not become ready in time", pid)
	}
	notify(" done\n")
	return pid, nil
}
