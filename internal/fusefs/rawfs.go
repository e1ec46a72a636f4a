// Package fusefs serves a vfs.MirrorFS over the kernel FUSE protocol.
// Node ids are engine handles; node id 1 is the backing root.
package fusefs

import (
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"

	"markdownfs/internal/transform"
	"markdownfs/internal/vfs"
)

// DefaultTTL is the entry and attribute validity sent with every reply.
const DefaultTTL = time.Second

// RawFS answers FUSE requests from a MirrorFS. Operations it does not
// implement fall through to the default raw filesystem (ENOSYS).
type RawFS struct {
	fuse.RawFileSystem

	m    *vfs.MirrorFS
	ttl  time.Duration
	dirs *dirHandles
}

var _ fuse.RawFileSystem = (*RawFS)(nil)

// NewRawFS creates a dispatcher. A zero ttl uses DefaultTTL.
func NewRawFS(m *vfs.MirrorFS, ttl time.Duration) *RawFS {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RawFS{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		m:             m,
		ttl:           ttl,
		dirs:          newDirHandles(),
	}
}

func (r *RawFS) String() string { return "markdownfs(" + r.m.Root() + ")" }

func status(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	return fuse.Status(vfs.ToErrno(err))
}

func fillAttr(a *vfs.Attributes, out *fuse.Attr) {
	out.Ino = uint64(a.Handle)
	out.Size = a.Size
	out.Blocks = a.Blocks
	out.SetTimes(&a.Atime, &a.Mtime, &a.Ctime)
	out.Mode = a.Mode()
	out.Nlink = a.Nlink
	out.Uid = a.UID
	out.Gid = a.GID
	out.Rdev = a.Rdev
}

func (r *RawFS) fillEntry(a *vfs.Attributes, out *fuse.EntryOut) {
	out.NodeId = uint64(a.Handle)
	out.Generation = 1
	fillAttr(a, &out.Attr)
	out.SetEntryTimeout(r.ttl)
	out.SetAttrTimeout(r.ttl)
}

func (r *RawFS) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) (code fuse.Status) {
	var err error
	defer func() {
		if err != nil {
			code = status(err)
		}
	}()
	defer vfs.RecoverPanic("Lookup", &err)

	attrs, err := r.m.Lookup(vfs.Handle(header.NodeId), name)
	if err != nil {
		log.Debugf("[FUSE] Lookup %d/%q: %v", header.NodeId, name, err)
		return status(err)
	}
	r.fillEntry(attrs, out)
	return fuse.OK
}

// Forget is a no-op: handles live for the whole mount and are never reused.
func (r *RawFS) Forget(nodeID, nlookup uint64) {}

func (r *RawFS) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) (code fuse.Status) {
	var err error
	defer func() {
		if err != nil {
			code = status(err)
		}
	}()
	defer vfs.RecoverPanic("GetAttr", &err)

	attrs, err := r.m.GetAttributes(vfs.Handle(input.NodeId))
	if err != nil {
		log.Debugf("[FUSE] GetAttr %d: %v", input.NodeId, err)
		return status(err)
	}
	fillAttr(attrs, &out.Attr)
	out.SetTimeout(r.ttl)
	return fuse.OK
}

func (r *RawFS) Access(cancel <-chan struct{}, input *fuse.AccessIn) (code fuse.Status) {
	var err error
	defer func() {
		if err != nil {
			code = status(err)
		}
	}()
	defer vfs.RecoverPanic("Access", &err)

	if input.Mask&unixW != 0 {
		return fuse.EROFS
	}
	if _, err = r.m.GetAttributes(vfs.Handle(input.NodeId)); err != nil {
		return status(err)
	}
	return fuse.OK
}

func (r *RawFS) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) (code fuse.Status) {
	var err error
	defer func() {
		if err != nil {
			code = status(err)
		}
	}()
	defer vfs.RecoverPanic("Open", &err)

	if input.Flags&syscall.O_ACCMODE != syscall.O_RDONLY || input.Flags&syscall.O_TRUNC != 0 {
		return fuse.EROFS
	}
	h := vfs.Handle(input.NodeId)
	attrs, err := r.m.GetAttributes(h)
	if err != nil {
		return status(err)
	}
	if attrs.IsDir() {
		return fuse.Status(syscall.EISDIR)
	}

	t, err := r.m.TransformFor(h)
	if err != nil {
		return status(err)
	}
	// The reported size is the backing size; transformed content can be
	// longer, so the kernel must not clip reads at it.
	if !transform.IsIdentity(t) {
		out.OpenFlags |= fuse.FOPEN_DIRECT_IO
	}
	log.Debugf("[FUSE] Open %d transform=%s", h, t.Name())
	return fuse.OK
}

func (r *RawFS) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (res fuse.ReadResult, code fuse.Status) {
	var err error
	defer func() {
		if err != nil {
			res, code = nil, status(err)
		}
	}()
	defer vfs.RecoverPanic("Read", &err)

	size := int(input.Size)
	if size > len(buf) {
		size = len(buf)
	}
	data, err := r.m.Read(vfs.Handle(input.NodeId), int64(input.Offset), size)
	if err != nil {
		log.Debugf("[FUSE] Read %d off=%d: %v", input.NodeId, input.Offset, err)
		return nil, status(err)
	}
	return fuse.ReadResultData(data), fuse.OK
}

func (r *RawFS) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {}

func (r *RawFS) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) (code fuse.Status) {
	var err error
	defer func() {
		if err != nil {
			code = status(err)
		}
	}()
	defer vfs.RecoverPanic("OpenDir", &err)

	h := vfs.Handle(input.NodeId)
	attrs, err := r.m.GetAttributes(h)
	if err != nil {
		return status(err)
	}
	if !attrs.IsDir() {
		return fuse.Status(syscall.ENOTDIR)
	}
	out.Fh = r.dirs.allocate(h)
	return fuse.OK
}

func (r *RawFS) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	return r.readDir(input, out, false)
}

func (r *RawFS) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	return r.readDir(input, out, true)
}

func (r *RawFS) readDir(input *fuse.ReadIn, out *fuse.DirEntryList, plus bool) (code fuse.Status) {
	var err error
	defer func() {
		if err != nil {
			code = status(err)
		}
	}()
	defer vfs.RecoverPanic("ReadDir", &err)

	entries, ok, err := r.dirs.snapshot(input.Fh, input.Offset, r.m.ReadDirAll)
	if !ok {
		return fuse.Status(syscall.EBADF)
	}
	if err != nil {
		log.Debugf("[FUSE] ReadDir %d: %v", input.NodeId, err)
		return status(err)
	}
	log.Debugf("[FUSE] ReadDir %d off=%d of %d plus=%v", input.NodeId, input.Offset, len(entries), plus)

	for i := input.Offset; i < uint64(len(entries)); i++ {
		e := entries[i]
		de := fuse.DirEntry{Name: e.Name, Ino: uint64(e.Handle), Mode: kindMode(e.Kind)}
		if !plus {
			if !out.AddDirEntry(de) {
				break
			}
			continue
		}
		entryOut := out.AddDirLookupEntry(de)
		if entryOut == nil {
			break
		}
		if e.Name == "." || e.Name == ".." {
			continue
		}
		attrs, err := r.m.GetAttributes(e.Handle)
		if err != nil {
			// Leave NodeId zero; the kernel will look the name up itself.
			continue
		}
		r.fillEntry(attrs, entryOut)
	}
	return fuse.OK
}

func (r *RawFS) ReleaseDir(input *fuse.ReleaseIn) {
	r.dirs.release(input.Fh)
}

func (r *RawFS) StatFs(cancel <-chan struct{}, header *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	st, err := r.m.StatFS()
	if err != nil {
		return status(err)
	}
	fillStatfs(st, out)
	return fuse.OK
}

func kindMode(k vfs.EntryKind) uint32 {
	if k == vfs.KindDirectory {
		return syscall.S_IFDIR
	}
	return syscall.S_IFREG
}

// unixW is the W_OK bit of access(2).
const unixW = 0x2
