package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"markdownfs/internal/daemon"
	"markdownfs/internal/transform"
	"markdownfs/internal/vfs"
)

var catCmd = &cobra.Command{
	Use:   "cat <backing-dir> <path>",
	Short: "Print a file as a mount would serve it",
	Long: `Prints <path> of <backing-dir> after its transform, without mounting.

--transform forces one transform regardless of the rules, e.g.
markdown-ansi for a styled preview in the terminal. When stdout is a
terminal, markdown is wrapped at its width.`,
	Args: cobra.ExactArgs(2),
	RunE: runCat,
}

var catTransform string

func init() {
	rootCmd.AddCommand(catCmd)
	catCmd.Flags().StringVarP(&catTransform, "transform", "t", "", "Transform to apply instead of the configured rules")
}

func runCat(cmd *cobra.Command, args []string) error {
	effective := *settings
	if catTransform != "" {
		effective.Transforms = []transform.Rule{{Pattern: "*", Transform: catTransform}}
	}
	if f, ok := cmd.OutOrStdout().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			effective.RenderWidth = width
		}
	}

	m, err := daemon.NewMirror(args[0], &effective)
	if err != nil {
		return err
	}
	attrs, err := resolve(m, args[1])
	if err != nil {
		return err
	}
	if attrs.IsDir() {
		return fmt.Errorf("%s is a directory", args[1])
	}
	return copyContent(cmd.OutOrStdout(), m, attrs.Handle)
}

// catChunkSize is the window requested per Read.
var catChunkSize = 1 << 20

// copyContent writes the content of h to out, reading windows until a
// short one marks the end.
func copyContent(out io.Writer, m *vfs.MirrorFS, h vfs.Handle) error {
	var off int64
	for {
		data, err := m.Read(h, off, catChunkSize)
		if err != nil {
			return err
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
		if len(data) < catChunkSize {
			return nil
		}
		off += int64(len(data))
	}
}
