package daemon

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"

	"markdownfs/internal/util"
)

// unmountTimeout bounds each unmount command.
const unmountTimeout = 3 * time.Second

// unmountCommands returns the commands tried in order to unmount
// mountPoint.
func unmountCommands(mountPoint string) [][]string {
	if runtime.GOOS == "darwin" {
		return [][]string{
			{"diskutil", "unmount", mountPoint},
			{"umount", mountPoint},
		}
	}
	return [][]string{
		{"fusermount3", "-u", mountPoint},
		{"fusermount", "-u", mountPoint},
		{"umount", mountPoint},
	}
}

// unmountOnce tries each unmount command once and returns the last failure.
func unmountOnce(ctx context.Context, mountPoint string) error {
	var lastErr error
	for _, args := range unmountCommands(mountPoint) {
		if _, err := exec.LookPath(args[0]); err != nil {
			continue
		}
		cmdCtx, cancel := context.WithTimeout(ctx, unmountTimeout)
		output, err := exec.CommandContext(cmdCtx, args[0], args[1:]...).CombinedOutput()
		cancel()
		if err == nil {
			log.Debugf("Unmount: %s succeeded for %s", args[0], mountPoint)
			return nil
		}
		lastErr = fmt.Errorf("%s: %w: %s", args[0], err, bytes.TrimSpace(output))
		log.Debugf("Unmount: %v", lastErr)
	}
	if lastErr == nil {
		return fmt.Errorf("no unmount command available for %s", mountPoint)
	}
	return lastErr
}

// Unmount unmounts mountPoint, retrying while the kernel reports it busy.
// A path that is not mounted is left alone.
func Unmount(ctx context.Context, mountPoint string) error {
	if !IsMounted(mountPoint) {
		log.Debugf("Unmount: %s is not mounted, nothing to do", mountPoint)
		return nil
	}
	err := util.Retry(ctx, func() error {
		return unmountOnce(ctx, mountPoint)
	}, util.UnmountRetryOptions(ctx)...)
	if err != nil {
		return fmt.Errorf("unmount %s: %w", mountPoint, err)
	}
	log.Infof("Unmounted %s", mountPoint)
	return nil
}

// IsMounted checks if a path is a mount point by checking the mount table
func IsMounted(mountPoint string) bool {
	output, err := exec.Command("mount").Output()
	if err != nil {
		return false
	}
	// /tmp is a symlink on macOS; the table holds the resolved path
	realPath, err := filepath.EvalSymlinks(mountPoint)
	if err != nil {
		realPath = mountPoint
	}
	return containsMount(output, realPath)
}

// containsMount reports whether mount(8) output lists mountPoint.
// Lines look like "source on /mount/point type fuse (options)" on Linux
// and "source on /mount/point (options)" on macOS.
func containsMount(mountOutput []byte, mountPoint string) bool {
	for _, line := range bytes.Split(mountOutput, []byte("\n")) {
		if bytes.Contains(line, []byte(" on "+mountPoint+" ")) ||
			bytes.HasSuffix(line, []byte(" on "+mountPoint)) {
			return true
		}
	}
	return false
}
