package fusefs

import (
	"fmt"
	"os"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"

	"markdownfs/internal/vfs"
)

// Options configures a FUSE mount.
type Options struct {
	// FsName is shown as the mount source, e.g. in /proc/mounts.
	FsName string
	// TTL is the entry/attribute validity. Zero uses DefaultTTL.
	TTL time.Duration
	// AllowOther lets other users access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool
	// MaxBackground caps outstanding background requests. Zero keeps the
	// go-fuse default.
	MaxBackground int
	// Debug enables go-fuse request tracing.
	Debug bool
}

// Mount serves m at mountpoint read-only and returns once the kernel has
// the mount. The caller must Unmount the returned server.
func Mount(m *vfs.MirrorFS, mountpoint string, opts Options) (*fuse.Server, error) {
	info, err := os.Stat(mountpoint)
	if err != nil {
		return nil, fmt.Errorf("mountpoint %s: %w", mountpoint, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mountpoint %s is not a directory", mountpoint)
	}

	fsName := opts.FsName
	if fsName == "" {
		fsName = "markdownfs"
	}
	mountOpts := &fuse.MountOptions{
		FsName:        fsName,
		Name:          "markdownfs",
		AllowOther:    opts.AllowOther,
		MaxBackground: opts.MaxBackground,
		Debug:         opts.Debug,
		Options:       []string{"ro"},
	}

	server, err := fuse.NewServer(NewRawFS(m, opts.TTL), mountpoint, mountOpts)
	if err != nil {
		return nil, fmt.Errorf("mount %s at %s: %w", m.Root(), mountpoint, err)
	}
	go server.Serve()
	if err := server.WaitMount(); err != nil {
		_ = server.Unmount()
		return nil, fmt.Errorf("wait for mount at %s: %w", mountpoint, err)
	}

	log.Infof("[FUSE] mounted %s at %s", m.Root(), mountpoint)
	return server, nil
}
