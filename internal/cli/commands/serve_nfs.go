package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"markdownfs/internal/daemon"
	"markdownfs/internal/storage"
)

var serveNFSCmd = &cobra.Command{
	Use:   "serve-nfs <backing-dir>",
	Short: "Serve a directory read-only over NFSv3",
	Long: `Exposes <backing-dir> read-only over NFSv3 on a TCP address, with the
same transforms as a FUSE mount. Useful on hosts without FUSE.

With --mount the export is also mounted locally with the host NFS client.

Examples:
  markdownfs serve-nfs ~/notes --listen 127.0.0.1:2049
  markdownfs serve-nfs ~/notes --listen 127.0.0.1:0 --mount /mnt/notes`,
	Args: cobra.ExactArgs(1),
	RunE: runServeNFS,
}

var (
	serveNFSListen string
	serveNFSMount  string
)

func init() {
	rootCmd.AddCommand(serveNFSCmd)
	serveNFSCmd.Flags().StringVarP(&serveNFSListen, "listen", "l", "127.0.0.1:2049", "TCP address to serve on")
	serveNFSCmd.Flags().StringVar(&serveNFSMount, "mount", "", "Also mount the export at this path")
}

func runServeNFS(cmd *cobra.Command, args []string) error {
	backing, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve backing directory: %w", err)
	}
	return daemon.Run(cmd.Context(), daemon.MountRequest{
		Backing:    backing,
		Mountpoint: serveNFSMount,
		Transport:  storage.TransportNFS,
		Listen:     serveNFSListen,
		Settings:   settings,
	})
}
