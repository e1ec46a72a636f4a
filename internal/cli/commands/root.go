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
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"markdownfs/internal/daemon"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, buildDate, date, commit)
	}
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

var (
	flagConfigDir string
	flagLogging   string
	flagLogFile   string

	// settings holds the effective settings after flag overrides. It is
	// loaded by the root PersistentPreRunE.
	settings  *daemon.Settings
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "markdownfs",
	Short: "Read-only mirror filesystem that renders file content on read",
	Long: `Mirrors a backing directory read-only through FUSE (or NFS) and passes
file content through a transform on every read. Markdown files are
rendered to plain text by default.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if flagConfigDir != "" {
			// exported so background children inherit it
			if err := os.Setenv(daemon.EnvConfigDir, flagConfigDir); err != nil {
				return err
			}
		}

		loaded, err := daemon.LoadSettings()
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		applyFlagOverrides(cmd.Flags(), loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		settings = loaded

		logCloser, err = daemon.SetupLogging(settings.LogLevel, settings.LogFile)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
			logCloser = nil
		}
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("markdownfs version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "Config directory (default $MARKDOWNFS_CONFIG_DIR or ~/.markdownfs)")
	rootCmd.PersistentFlags().StringVar(&flagLogging, "logging", "", "Log level: trace, debug, info, warn, none")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Log to this file instead of stderr")
}

// applyFlagOverrides copies explicitly set persistent flags over loaded settings.
func applyFlagOverrides(flags *pflag.FlagSet, s *daemon.Settings) {
	if flags.Changed("logging") {
		s.LogLevel = flagLogging
	}
	if flags.Changed("log-file") {
		s.LogFile = flagLogFile
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
