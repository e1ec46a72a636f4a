package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"markdownfs/internal/common"
	"markdownfs/internal/daemon"
	"markdownfs/internal/transform"
	"markdownfs/internal/vfs"
)

var lsCmd = &cobra.Command{
	Use:   "ls <backing-dir> [path]",
	Short: "List a directory as a mount would show it",
	Long: `Lists [path] (default: the root) of <backing-dir> through the mirror
engine without mounting: hidden and unsupported entries are left out, and
file sizes are those a reader of the mount observes.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

// resolve walks rel from the root of m through Lookup.
func resolve(m *vfs.MirrorFS, rel string) (*vfs.Attributes, error) {
	attrs, err := m.GetAttributes(vfs.RootHandle)
	if err != nil {
		return nil, err
	}
	for _, name := range common.SplitPath(rel) {
		if attrs, err = m.Lookup(attrs.Handle, name); err != nil {
			return nil, fmt.Errorf("%s: %w", rel, err)
		}
	}
	return attrs, nil
}

func runLs(cmd *cobra.Command, args []string) error {
	m, err := daemon.NewMirror(args[0], settings)
	if err != nil {
		return err
	}
	rel := ""
	if len(args) > 1 {
		rel = args[1]
	}
	attrs, err := resolve(m, rel)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !attrs.IsDir() {
		return printEntry(out, m, attrs, common.NormalizePath(rel))
	}
	entries, err := m.ReadDirAll(attrs.Handle)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		child, err := m.GetAttributes(e.Handle)
		if err != nil {
			continue
		}
		if err := printEntry(out, m, child, e.Name); err != nil {
			return err
		}
	}
	return nil
}

func printEntry(out io.Writer, m *vfs.MirrorFS, attrs *vfs.Attributes, name string) error {
	size := int64(attrs.Size)
	kind := "-"
	suffix := ""
	if attrs.IsDir() {
		kind = "d"
		suffix = "/"
	} else {
		var err error
		if size, err = m.ContentSize(attrs.Handle); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if t, err := m.TransformFor(attrs.Handle); err == nil && !transform.IsIdentity(t) {
			suffix = "  [" + t.Name() + "]"
		}
	}
	_, err := fmt.Fprintf(out, "%s%04o %10d %s %s%s\n",
		kind, attrs.Perm&0o7777, size, attrs.Mtime.Format(time.DateTime), name, suffix)
	return err
}
