// Copyright 2026 MarkdownFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"markdownfs/internal/daemon"
	"markdownfs/internal/storage"
	"markdownfs/internal/util"
)

var mountCmd = &cobra.Command{
	Use:   "mount <backing-dir> <mount-point>",
	Short: "Mount a directory read-only with content transforms",
	Long: `Mirrors <backing-dir> read-only at <mount-point> through FUSE. File
content passes through the transform chosen by the rules in settings.yaml;
markdown is rendered to plain text by default.

Serves until interrupted (SIGINT/SIGTERM) or until the mount point is
unmounted, then unmounts and exits.

Examples:
  markdownfs mount ~/notes /mnt/notes
  markdownfs mount ~/notes /mnt/notes --background --logging info`,
	Args: cobra.ExactArgs(2),
	RunE: runMount,
}

var mountLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List active mounts",
	Long:  `Lists active markdownfs mounts from the registry. Entries whose process is gone are pruned.`,
	Args:  cobra.NoArgs,
	RunE:  runMountLs,
}

var mountCheckCmd = &cobra.Command{
	Use:   "check <path>...",
	Short: "Check if paths are mounted",
	Long: `Check if one or more paths are currently mounted.

Returns exit code 0 if ALL paths are mounted, non-zero otherwise.
Use -q/--quiet to suppress output (useful in scripts).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMountCheck,
}

var (
	mountCheckQuiet bool
	mountBackground bool
	mountAllowOther bool
)

func init() {
	rootCmd.AddCommand(mountCmd)
	mountCmd.AddCommand(mountLsCmd)
	mountCmd.AddCommand(mountCheckCmd)
	mountCheckCmd.Flags().BoolVarP(&mountCheckQuiet, "quiet", "q", false, "Suppress output, only set exit code")
	mountCmd.Flags().BoolVarP(&mountBackground, "background", "b", false, "Detach and serve in the background")
	mountCmd.Flags().BoolVar(&mountAllowOther, "allow-other", false, "Let other users access the mount")
}

func runMount(cmd *cobra.Command, args []string) error {
	absBacking, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve backing directory: %w", err)
	}
	if info, err := os.Stat(absBacking); err != nil {
		return fmt.Errorf("backing directory: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("backing path is not a directory: %s", absBacking)
	}

	absMountPoint, err := filepath.Abs(args[1])
	if err != nil {
		return fmt.Errorf("failed to resolve mount point: %w", err)
	}
	if err := checkTargetNotInMount(cmd.Context(), absMountPoint); err != nil {
		return err
	}
	if info, err := os.Stat(absMountPoint); os.IsNotExist(err) {
		if err := os.MkdirAll(absMountPoint, 0o755); err != nil {
			return fmt.Errorf("failed to create mount point: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("mount point: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("mount point exists and is not a directory: %s", absMountPoint)
	}

	if cmd.Flags().Changed("allow-other") {
		settings.AllowOther = mountAllowOther
	}

	if mountBackground {
		return startMountInBackground(cmd, absBacking, absMountPoint)
	}
	return daemon.Run(cmd.Context(), daemon.MountRequest{
		Backing:    absBacking,
		Mountpoint: absMountPoint,
		Transport:  storage.TransportFUSE,
		Settings:   settings,
	})
}

// startMountInBackground re-runs this mount detached and waits until the
// registry records it.
func startMountInBackground(cmd *cobra.Command, backing, mountPoint string) error {
	childArgs := []string{"mount", backing, mountPoint}
	if settings.AllowOther {
		childArgs = append(childArgs, "--allow-other")
	}
	childArgs = append(childArgs, "--logging", settings.LogLevel)
	if settings.LogFile != "" {
		logFile, err := filepath.Abs(settings.LogFile)
		if err != nil {
			return err
		}
		childArgs = append(childArgs, "--log-file", logFile)
	}

	reg, err := storage.OpenRegistry(daemon.RegistryPath())
	if err != nil {
		return err
	}
	defer reg.Close()

	cfg := util.DefaultBackgroundStartConfig()
	cfg.Notify = cmd.ErrOrStderr()
	cfg.PollConfig.Timeout = 10 * time.Second
	pid, err := util.StartInBackground(cmd.Context(), cfg, childArgs, func() bool {
		m, err := reg.Lookup(context.Background(), mountPoint)
		return err == nil && m != nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Mounted %s at %s (PID %d)\n", backing, mountPoint, pid)
	return nil
}

func openRegistry() (*storage.Registry, error) {
	if err := daemon.InitConfigDir(); err != nil {
		return nil, err
	}
	return storage.OpenRegistry(daemon.RegistryPath())
}

func runMountLs(cmd *cobra.Command, args []string) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer reg.Close()

	mounts, err := reg.Active(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list mounts: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(mounts) == 0 {
		fmt.Fprintln(out, "No active mounts")
		return nil
	}
	fmt.Fprintf(out, "Active mounts (%d):\n", len(mounts))
	for _, m := range mounts {
		fmt.Fprintf(out, "  %s -> %s [%s]\n", m.Backing, m.Mountpoint, m.Transport)
		fmt.Fprintf(out, "    pid %d, since %s, session %s\n", m.PID, m.StartedAt.Format(time.RFC3339), m.ID)
	}
	return nil
}

func runMountCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	allMounted := true
	for _, path := range args {
		absPath, err := filepath.Abs(path)
		if err != nil {
			if !mountCheckQuiet {
				fmt.Fprintf(out, "%s: error resolving path\n", path)
			}
			allMounted = false
			continue
		}
		mounted := daemon.IsMounted(absPath)
		if !mountCheckQuiet {
			if mounted {
				fmt.Fprintf(out, "%s: mounted\n", absPath)
			} else {
				fmt.Fprintf(out, "%s: not mounted\n", absPath)
			}
		}
		allMounted = allMounted && mounted
	}
	if !allMounted {
		return fmt.Errorf("one or more paths not mounted")
	}
	return nil
}

// checkTargetNotInMount rejects mount points that are, or lie inside, an
// active markdownfs mount.
func checkTargetNotInMount(ctx context.Context, targetPath string) error {
	reg, err := openRegistry()
	if err != nil {
		// no registry, no known mounts
		return nil
	}
	defer reg.Close()

	mounts, err := reg.Active(ctx)
	if err != nil {
		return nil
	}
	for _, m := range mounts {
		if m.Mountpoint == targetPath {
			return fmt.Errorf("%s is already mounted (PID %d)", targetPath, m.PID)
		}
		if strings.HasPrefix(targetPath, m.Mountpoint+string(filepath.Separator)) {
			return fmt.Errorf("mount target inside a mount path is not supported\n\nThe target path '%s' is inside a markdownfs mount at '%s'.", targetPath, m.Mountpoint)
		}
	}
	return nil
}
