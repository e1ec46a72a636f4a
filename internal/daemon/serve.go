package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"

	"markdownfs/internal/filter"
	"markdownfs/internal/fusefs"
	"markdownfs/internal/nfsfs"
	"markdownfs/internal/storage"
	"markdownfs/internal/transform"
	"markdownfs/internal/util"
	"markdownfs/internal/vfs"
)

// MountRequest describes one mount session.
type MountRequest struct {
	Backing string
	// Mountpoint is required for FUSE. For NFS it is optional: when set,
	// the export is also mounted there with the host NFS client.
	Mountpoint string
	// Transport is storage.TransportFUSE or storage.TransportNFS.
	Transport string
	// Listen is the NFS listen address.
	Listen   string
	Settings *Settings
}

// NewMirror builds the engine for backing from settings. Paths in exclude
// are never exposed.
func NewMirror(backing string, settings *Settings, exclude ...string) (*vfs.MirrorFS, error) {
	table, err := transform.Build(settings.Transforms, settings.TransformOptions())
	if err != nil {
		return nil, fmt.Errorf("transforms: %w", err)
	}
	opts := vfs.Options{Transforms: table, Exclude: exclude}
	if settings.Gitignore || len(settings.Hide) > 0 {
		f, err := filter.New(backing, settings.Gitignore, settings.Hide)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		opts.Filter = f
	}
	return vfs.New(backing, opts)
}

// Session is a running mount. Start creates it; Stop ends it.
type Session struct {
	ID  string
	req MountRequest

	mirror   *vfs.MirrorFS
	lock     *flock.Flock
	registry *storage.Registry

	fuseServer *fuse.Server
	nfsServer  *nfsfs.NFSServer
	nfsAddr    net.Addr
	nfsMounted bool

	// done closes when the transport stops on its own (external unmount
	// or listener failure).
	done     chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once
	stopErr  error
}

func (r *MountRequest) normalize() error {
	if r.Settings == nil {
		s := DefaultSettings()
		r.Settings = &s
	}
	if r.Transport == "" {
		r.Transport = storage.TransportFUSE
	}
	backing, err := filepath.Abs(r.Backing)
	if err != nil {
		return err
	}
	r.Backing = backing
	if r.Mountpoint != "" {
		mp, err := filepath.Abs(r.Mountpoint)
		if err != nil {
			return err
		}
		r.Mountpoint = mp
	}
	switch r.Transport {
	case storage.TransportFUSE:
		if r.Mountpoint == "" {
			return errors.New("a mountpoint is required")
		}
	case storage.TransportNFS:
		if r.Listen == "" {
			return errors.New("a listen address is required")
		}
	default:
		return fmt.Errorf("unknown transport %q", r.Transport)
	}
	return nil
}

// lockKey identifies what a session occupies: its mountpoint, or its
// listen address for an NFS export without a local mount.
func (r *MountRequest) lockKey() string {
	if r.Mountpoint != "" {
		return r.Mountpoint
	}
	return "nfs://" + r.Listen
}

// Start locks the mountpoint, builds the engine, brings up the transport
// and records the session in the registry.
func Start(ctx context.Context, req MountRequest) (_ *Session, err error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if err := InitConfigDir(); err != nil {
		return nil, err
	}

	s := &Session{
		ID:   uuid.NewString(),
		req:  req,
		done: make(chan struct{}),
	}
	defer func() {
		if err != nil {
			if terr := s.teardown(ctx); terr != nil {
				log.WithField("session", s.ID).Warnf("Cleanup after failed start: %v", terr)
			}
		}
	}()

	if s.lock, err = AcquireMountLock(req.lockKey()); err != nil {
		return nil, err
	}

	var exclude []string
	if req.Mountpoint != "" {
		exclude = append(exclude, req.Mountpoint)
	}
	if s.mirror, err = NewMirror(req.Backing, req.Settings, exclude...); err != nil {
		return nil, err
	}

	switch req.Transport {
	case storage.TransportFUSE:
		err = s.startFUSE()
	case storage.TransportNFS:
		err = s.startNFS()
	}
	if err != nil {
		return nil, err
	}

	if s.registry, err = storage.OpenRegistry(RegistryPath()); err != nil {
		return nil, err
	}
	mountpoint := req.Mountpoint
	if mountpoint == "" {
		mountpoint = "nfs://" + s.nfsAddr.String()
	}
	err = s.registry.Add(ctx, storage.Mount{
		ID:         s.ID,
		Backing:    req.Backing,
		Mountpoint: mountpoint,
		Transport:  req.Transport,
		PID:        os.Getpid(),
		StartedAt:  time.Now(),
	})
	if err != nil {
		return nil, err
	}

	log.WithField("session", s.ID).Infof("Serving %s at %s over %s", req.Backing, mountpoint, req.Transport)
	return s, nil
}

func (s *Session) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) startFUSE() error {
	settings := s.req.Settings
	server, err := fusefs.Mount(s.mirror, s.req.Mountpoint, fusefs.Options{
		FsName:        "markdownfs:" + s.ID[:8],
		TTL:           replyTTL(settings),
		AllowOther:    settings.AllowOther,
		MaxBackground: settings.MaxBackground,
		Debug:         log.IsLevelEnabled(log.TraceLevel),
	})
	if err != nil {
		return err
	}
	s.fuseServer = server
	go func() {
		// returns once the kernel drops the mount
		server.Wait()
		s.markDone()
	}()
	return nil
}

// replyTTL returns the entry/attribute validity for FUSE replies. Anything
// other than the one-second default is a debugging override.
func replyTTL(settings *Settings) time.Duration {
	ttl := time.Duration(settings.TTL)
	if ttl != 0 && ttl != fusefs.DefaultTTL {
		log.Warnf("[FUSE] ttl overridden to %v (default %v); kernel caching will not match a normal mount", ttl, fusefs.DefaultTTL)
	}
	return ttl
}

func (s *Session) startNFS() error {
	s.nfsServer = nfsfs.NewNFSServer(s.mirror)
	addr, err := s.nfsServer.Listen(s.req.Listen)
	if err != nil {
		return err
	}
	s.nfsAddr = addr
	go func() {
		if err := s.nfsServer.Serve(""); err != nil {
			log.Debugf("[NFS] server stopped: %v", err)
		}
		s.markDone()
	}()

	if s.req.Mountpoint == "" {
		return nil
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return err
	}
	if err := nfsfs.NFSMount(host, port, s.req.Mountpoint); err != nil {
		return err
	}
	s.nfsMounted = true
	return nil
}

// Mirror returns the session's engine.
func (s *Session) Mirror() *vfs.MirrorFS { return s.mirror }

// NFSAddr returns the NFS listen address, or nil for FUSE sessions.
func (s *Session) NFSAddr() net.Addr { return s.nfsAddr }

// Done closes when the transport stops without Stop being called.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until ctx is cancelled or the transport stops on its own.
func (s *Session) Wait(ctx context.Context) {
	select {
	case <-ctx.Done():
		log.WithField("session", s.ID).Infof("Shutting down: %v", context.Cause(ctx))
	case <-s.done:
		log.WithField("session", s.ID).Info("Transport stopped, shutting down")
	}
}

// Stop unmounts, deregisters and releases the lock. It is safe to call
// more than once.
func (s *Session) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { s.stopErr = s.teardown(ctx) })
	return s.stopErr
}

func (s *Session) teardown(ctx context.Context) error {
	var errs []error

	if s.fuseServer != nil {
		select {
		case <-s.done:
		default:
			err := util.Retry(ctx, s.fuseServer.Unmount, util.UnmountRetryOptions(ctx)...)
			if err != nil {
				errs = append(errs, fmt.Errorf("unmount %s: %w", s.req.Mountpoint, err))
			}
		}
	}
	if s.nfsServer != nil {
		if s.nfsMounted {
			if err := Unmount(ctx, s.req.Mountpoint); err != nil {
				errs = append(errs, err)
			}
		}
		s.nfsServer.Shutdown()
	}
	if s.registry != nil {
		if err := s.registry.Remove(ctx, s.ID); err != nil {
			errs = append(errs, err)
		}
		s.registry.Close()
	}
	if s.lock != nil {
		s.lock.Unlock()
	}
	return errors.Join(errs...)
}

// Run starts a session and serves until SIGINT/SIGTERM, ctx cancellation,
// or an external unmount, then stops it.
func Run(ctx context.Context, req MountRequest) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := Start(ctx, req)
	if err != nil {
		return err
	}
	s.Wait(ctx)

	// the signal context is already done; teardown needs a fresh one
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Stop(stopCtx)
}
