// Package nfsfs serves a MirrorFS over NFSv3 as an alternative to FUSE.
package nfsfs

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"

	"markdownfs/internal/vfs"
)

// HandleCacheSize is the number of NFS file handles kept by the caching
// handler.
const HandleCacheSize = 65536

// NFSServer wraps the go-nfs server
type NFSServer struct {
	mu       sync.Mutex
	listener net.Listener
	server   *nfs.Server
	handler  nfs.Handler
	cancel   context.CancelFunc
}

// NewNFSServer creates a new NFS server for the given mirror.
func NewNFSServer(fs *vfs.MirrorFS) *NFSServer {
	if log.IsLevelEnabled(log.TraceLevel) {
		nfs.Log.SetLevel(nfs.TraceLevel)
	} else if log.IsLevelEnabled(log.DebugLevel) {
		nfs.Log.SetLevel(nfs.DebugLevel)
	}
	handler := nfshelper.NewNullAuthHandler(NewBillyAdapter(fs))
	cacheHelper := nfshelper.NewCachingHandler(handler, HandleCacheSize)

	ctx, cancel := context.WithCancel(context.Background())
	return &NFSServer{
		server: &nfs.Server{
			Handler: cacheHelper,
			Context: ctx,
		},
		handler: cacheHelper,
		cancel:  cancel,
	}
}

// Listen binds addr without serving yet, so callers can learn the port.
func (s *NFSServer) Listen(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	log.Infof("[NFS] listening on %s", listener.Addr())
	return listener.Addr(), nil
}

// Serve serves on the bound listener, binding addr first if Listen was not
// called. It returns when the listener is closed.
func (s *NFSServer) Serve(addr string) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		if _, err := s.Listen(addr); err != nil {
			return err
		}
		s.mu.Lock()
		listener = s.listener
		s.mu.Unlock()
	}
	return s.server.Serve(listener)
}

// Shutdown stops the NFS server
func (s *NFSServer) Shutdown() {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener != nil {
		listener.Close()
	}

	// settle time for in-flight requests after the listener closes
	time.Sleep(100 * time.Millisecond)

	if s.cancel != nil {
		s.cancel()
	}
}

// mountCommand builds the host mount command for an NFS export served on
// host:port.
func mountCommand(host string, port int, mountPath string) *exec.Cmd {
	if runtime.GOOS == "darwin" {
		// nobrowse keeps Spotlight from indexing the mount
		return exec.Command("mount_nfs",
			"-o", fmt.Sprintf("port=%d,mountport=%d,tcp,nolocks,vers=3,rdonly,noac,soft,timeo=50,retrans=3,nobrowse", port, port),
			fmt.Sprintf("%s:/", host),
			mountPath,
		)
	}
	return exec.Command("mount", "-t", "nfs",
		"-o", fmt.Sprintf("port=%d,mountport=%d,tcp,nolock,vers=3,ro,noac,soft,timeo=50,retrans=3", port, port),
		fmt.Sprintf("%s:/", host),
		mountPath,
	)
}

// NFSMount mounts the export served on host:port at mountPath using the
// host NFS client.
func NFSMount(host string, port int, mountPath string) error {
	if err := os.MkdirAll(mountPath, 0o755); err != nil {
		return fmt.Errorf("failed to create mount point: %w", err)
	}
	cmd := mountCommand(host, port, mountPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", cmd.Args[0], err, string(output))
	}
	return nil
}
