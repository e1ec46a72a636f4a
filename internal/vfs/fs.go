// Package vfs is the read-only mirroring engine. It maps backing paths to
// stable handles, translates host metadata into attribute records, lists
// directories and reads file content through a transform hook. It knows
// nothing about the transport that serves it.
package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"markdownfs/internal/common"
	"markdownfs/internal/transform"
)

// Filter hides backing entries. relPath is relative to the backing root.
type Filter interface {
	Hidden(relPath string, isDir bool) bool
}

// Options configures a MirrorFS.
type Options struct {
	// Transforms picks the transform per file. Nil means identity for all.
	Transforms transform.Selector
	// Filter hides entries. Nil hides nothing.
	Filter Filter
	// Exclude lists absolute paths that are never exposed, typically the
	// mountpoint when it lies inside the backing tree.
	Exclude []string
}

// MirrorFS mirrors one backing directory. It is safe for concurrent use;
// the handle directory is the only shared mutable state.
type MirrorFS struct {
	root    string
	handles *HandleDirectory
	opts    Options
	exclude map[string]bool
}

// New creates an engine over root, which must be an existing directory.
func New(root string, opts Options) (*MirrorFS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidPath, root, err)
	}
	abs = filepath.Clean(abs)

	st, err := statPath(abs)
	if err != nil {
		return nil, err
	}
	if kind, err := classify(abs, uint32(st.Mode)); err != nil || kind != KindDirectory {
		return nil, fmt.Errorf("%w: %s", common.ErrNotDir, abs)
	}

	m := &MirrorFS{
		root:    abs,
		handles: NewHandleDirectory(abs),
		opts:    opts,
		exclude: make(map[string]bool, len(opts.Exclude)),
	}
	for _, p := range opts.Exclude {
		if p, err := filepath.Abs(p); err == nil && p != abs {
			m.exclude[filepath.Clean(p)] = true
		}
	}
	return m, nil
}

// Root returns the absolute backing root.
func (m *MirrorFS) Root() string { return m.root }

// Handles exposes the handle directory.
func (m *MirrorFS) Handles() *HandleDirectory { return m.handles }

func (m *MirrorFS) excluded(path string) bool {
	return m.exclude[path]
}

func (m *MirrorFS) hidden(path string, kind EntryKind) bool {
	if m.opts.Filter == nil {
		return false
	}
	rel, ok := common.RelativeTo(m.root, path)
	if !ok {
		return true
	}
	return m.opts.Filter.Hidden(rel, kind == KindDirectory)
}

func (m *MirrorFS) resolve(h Handle) (string, error) {
	path, ok := m.handles.Resolve(h)
	if !ok {
		return "", fmt.Errorf("%w: handle %d", common.ErrNotFound, h)
	}
	return path, nil
}

// Path returns the backing path of h.
func (m *MirrorFS) Path(h Handle) (string, error) {
	return m.resolve(h)
}

// Lookup resolves name inside the directory parent. The child is stat'ed
// and classified before it is assigned a handle, so names that do not
// exist, are hidden, or have an unsupported kind never get one.
func (m *MirrorFS) Lookup(parent Handle, name string) (attrs *Attributes, err error) {
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() { log.Tracef("[VFS] Lookup %d/%q → %v (%v)", parent, name, err, time.Since(start)) }()
	}
	log.Debugf("[VFS] Lookup: parent=%d name=%q", parent, name)

	dir, err := m.resolve(parent)
	if err != nil {
		return nil, err
	}

	var path string
	switch {
	case name == "" || name == ".":
		return m.getAttributes(parent, dir)
	case name == "..":
		if dir == m.root {
			return m.getAttributes(RootHandle, dir)
		}
		path = filepath.Dir(dir)
	case !common.ValidName(name):
		return nil, fmt.Errorf("%w: %q", common.ErrNotFound, name)
	default:
		path = filepath.Join(dir, name)
	}

	if m.excluded(path) {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}

	st, err := statPath(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) || errors.Is(err, syscall.ELOOP) {
			return nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
		}
		return nil, err
	}
	kind, err := classify(path, uint32(st.Mode))
	if err != nil {
		return nil, err
	}
	if m.hidden(path, kind) {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
	}

	h := m.handles.Assign(path)
	attrs, err = translate(h, path, st)
	if err == nil {
		log.Debugf("[VFS] Lookup result: %q → handle=%d kind=%v size=%d", path, h, attrs.Kind, attrs.Size)
	}
	return attrs, err
}

// GetAttributes returns a fresh attribute record for h. A tracked path
// that no longer exists is an I/O error, not a missing entry.
func (m *MirrorFS) GetAttributes(h Handle) (attrs *Attributes, err error) {
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() { log.Tracef("[VFS] GetAttributes %d → %v (%v)", h, err, time.Since(start)) }()
	}
	path, err := m.resolve(h)
	if err != nil {
		return nil, err
	}
	return m.getAttributes(h, path)
}

func (m *MirrorFS) getAttributes(h Handle, path string) (*Attributes, error) {
	attrs, err := attributesFor(h, path)
	if err != nil {
		log.Debugf("[VFS] GetAttributes: handle=%d path=%q: %v", h, path, err)
	}
	return attrs, err
}

// List returns a one-shot stream over the directory h.
func (m *MirrorFS) List(h Handle) (stream DirStream, err error) {
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() { log.Tracef("[VFS] List %d → %v (%v)", h, err, time.Since(start)) }()
	}
	path, err := m.resolve(h)
	if err != nil {
		return nil, err
	}
	attrs, err := attributesFor(h, path)
	if err != nil {
		return nil, err
	}
	if !attrs.IsDir() {
		return nil, fmt.Errorf("%w: %s", common.ErrNotDir, path)
	}
	log.Debugf("[VFS] List: handle=%d path=%q", h, path)
	return m.newDirStream(h, path)
}

// ReadDirAll drains List into a slice.
func (m *MirrorFS) ReadDirAll(h Handle) ([]DirEntry, error) {
	stream, err := m.List(h)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var entries []DirEntry
	for stream.HasNext() {
		e, err := stream.Next()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// TransformFor returns the transform applied to reads of h.
func (m *MirrorFS) TransformFor(h Handle) (transform.Transformer, error) {
	path, err := m.resolve(h)
	if err != nil {
		return nil, err
	}
	return m.transformFor(path), nil
}

func (m *MirrorFS) transformFor(path string) transform.Transformer {
	if m.opts.Transforms == nil {
		return transform.Identity
	}
	rel, _ := common.RelativeTo(m.root, path)
	return m.opts.Transforms.Select(rel)
}

// Read returns up to size bytes of the transformed content of h starting
// at off. Reading at or past the end returns an empty slice.
func (m *MirrorFS) Read(h Handle, off int64, size int) (data []byte, err error) {
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() {
			log.Tracef("[VFS] Read %d off=%d size=%d → %d bytes, %v (%v)", h, off, size, len(data), err, time.Since(start))
		}()
	}
	path, err := m.resolve(h)
	if err != nil {
		return nil, err
	}
	t := m.transformFor(path)
	log.Debugf("[VFS] Read: handle=%d path=%q off=%d size=%d transform=%s", h, path, off, size, t.Name())
	return readWindow(path, t, off, size)
}

// ContentSize returns the size readers observe for h: the backing size for
// identity, the transformed length otherwise.
func (m *MirrorFS) ContentSize(h Handle) (int64, error) {
	path, err := m.resolve(h)
	if err != nil {
		return 0, err
	}
	t := m.transformFor(path)
	if transform.IsIdentity(t) {
		attrs, err := attributesFor(h, path)
		if err != nil {
			return 0, err
		}
		return int64(attrs.Size), nil
	}
	return transformedSize(path, t)
}

// StatFS reports the host filesystem holding the backing root.
func (m *MirrorFS) StatFS() (*unix.Statfs_t, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(m.root, &st); err != nil {
		return nil, fmt.Errorf("%w: statfs %s: %w", common.ErrIO, m.root, err)
	}
	return &st, nil
}

// RecoverPanic turns a panic inside a request into an I/O error for that
// request alone.
func RecoverPanic(op string, err *error) {
	if r := recover(); r != nil {
		log.Errorf("[VFS] panic in %s: %v\n%s", op, r, debug.Stack())
		if err != nil {
			*err = fmt.Errorf("%w: panic in %s: %v", common.ErrIO, op, r)
		}
	}
}
