package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"markdownfs/internal/daemon"
	"markdownfs/internal/storage"
	"markdownfs/internal/util"
)

var unmountCmd = &cobra.Command{
	Use:     "unmount <mount-point>",
	Aliases: []string{"umount"},
	Short:   "Unmount a folder",
	Long: `Unmounts a markdownfs mount, retrying while the mount point is busy.
The serving process exits once its mount is gone.

Use --all to unmount every mount in the registry.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUnmount,
}

var unmountAll bool

func init() {
	unmountCmd.Flags().BoolVarP(&unmountAll, "all", "a", false, "Unmount all folders")
	rootCmd.AddCommand(unmountCmd)
}

func runUnmount(cmd *cobra.Command, args []string) error {
	if !unmountAll && len(args) == 0 {
		return fmt.Errorf("mount point required (or use --all)")
	}

	reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer reg.Close()

	ctx := cmd.Context()
	var targets []storage.Mount
	if unmountAll {
		if targets, err = reg.Active(ctx); err != nil {
			return err
		}
	} else {
		target, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		m, err := reg.Lookup(ctx, target)
		if err != nil {
			return err
		}
		if m == nil {
			// not ours, or registered by a crashed process
			m = &storage.Mount{Mountpoint: target}
		}
		targets = append(targets, *m)
	}

	out := cmd.OutOrStdout()
	for _, m := range targets {
		if err := unmountOne(ctx, reg, m); err != nil {
			return err
		}
		fmt.Fprintf(out, "Unmounted %s\n", m.Mountpoint)
	}
	return nil
}

// unmountOne unmounts m and waits for its serving process to exit,
// terminating it if it does not.
func unmountOne(ctx context.Context, reg *storage.Registry, m storage.Mount) error {
	// NFS exports without a local mount only have a process to stop
	if !strings.HasPrefix(m.Mountpoint, "nfs://") {
		if err := daemon.Unmount(ctx, m.Mountpoint); err != nil {
			return err
		}
	}
	if m.PID <= 0 || !util.IsProcessRunning(m.PID) {
		if m.ID != "" {
			return reg.Remove(ctx, m.ID)
		}
		return nil
	}

	exited := util.PollUntil(ctx, util.PollConfig{Timeout: 3 * time.Second, Interval: 50 * time.Millisecond}, func() bool {
		return !util.IsProcessRunning(m.PID)
	}) == nil
	if !exited {
		err := util.StopProcess(ctx, m.PID, util.ProcessConfig{}, util.TerminateFunc(m.PID), func() bool {
			return util.IsProcessRunning(m.PID)
		})
		if err != nil {
			return err
		}
	}
	// the process deregisters itself on a clean exit; this covers a kill
	return reg.Remove(ctx, m.ID)
}
