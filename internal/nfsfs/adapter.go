package nfsfs

import (
	"errors"
	"io"
	"os"
	"path"
	"sync"
	"syscall"
	"time"

	billy "github.com/go-git/go-billy/v5"
	log "github.com/sirupsen/logrus"
	nfsfile "github.com/willscott/go-nfs/file"

	"markdownfs/internal/common"
	"markdownfs/internal/vfs"
)

// BillyAdapter exposes a MirrorFS as a read-only billy filesystem.
type BillyAdapter struct {
	fs *vfs.MirrorFS
}

// NewBillyAdapter creates a new BillyAdapter.
func NewBillyAdapter(fs *vfs.MirrorFS) *BillyAdapter {
	return &BillyAdapter{fs: fs}
}

// resolve walks filename from the root one component at a time.
func (b *BillyAdapter) resolve(op, filename string) (*vfs.Attributes, error) {
	attrs, err := b.fs.GetAttributes(vfs.RootHandle)
	if err != nil {
		return nil, osError(op, filename, err)
	}
	for _, name := range common.SplitPath(filename) {
		if !attrs.IsDir() {
			return nil, osError(op, filename, common.ErrNotDir)
		}
		attrs, err = b.fs.Lookup(attrs.Handle, name)
		if err != nil {
			return nil, osError(op, filename, err)
		}
	}
	return attrs, nil
}

func (b *BillyAdapter) fileInfo(name string, attrs *vfs.Attributes) *BillyFileInfo {
	return &BillyFileInfo{fs: b.fs, name: name, attrs: attrs}
}

// osError converts engine errors into the os errors go-nfs maps to NFS
// status codes.
func osError(op, name string, err error) error {
	var errno syscall.Errno
	switch {
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrUnsupportedKind):
		errno = syscall.ENOENT
	case errors.Is(err, common.ErrNotDir):
		errno = syscall.ENOTDIR
	case errors.Is(err, common.ErrIsDir):
		errno = syscall.EISDIR
	case errors.Is(err, common.ErrReadOnly):
		return billy.ErrReadOnly
	default:
		errno = syscall.EIO
	}
	log.Debugf("[NFS] %s %q: %v", op, name, err)
	return &os.PathError{Op: op, Path: name, Err: errno}
}

// Create always fails: the filesystem is read-only.
func (b *BillyAdapter) Create(filename string) (billy.File, error) {
	return nil, billy.ErrReadOnly
}

// Open opens a file for reading.
func (b *BillyAdapter) Open(filename string) (billy.File, error) {
	return b.OpenFile(filename, os.O_RDONLY, 0)
}

// OpenFile opens a file. Any flag that would modify the tree is refused.
func (b *BillyAdapter) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, billy.ErrReadOnly
	}
	attrs, err := b.resolve("open", filename)
	if err != nil {
		return nil, err
	}
	return &BillyFile{fs: b.fs, name: filename, handle: attrs.Handle, isDir: attrs.IsDir()}, nil
}

// Stat returns file info.
func (b *BillyAdapter) Stat(filename string) (os.FileInfo, error) {
	attrs, err := b.resolve("stat", filename)
	if err != nil {
		return nil, err
	}
	return b.fileInfo(path.Base(common.NormalizePath(filename)), attrs), nil
}

// Rename always fails: the filesystem is read-only.
func (b *BillyAdapter) Rename(oldpath, newpath string) error {
	return billy.ErrReadOnly
}

// Remove always fails: the filesystem is read-only.
func (b *BillyAdapter) Remove(filename string) error {
	return billy.ErrReadOnly
}

// Join joins path elements.
func (b *BillyAdapter) Join(elem ...string) string {
	return path.Join(elem...)
}

// TempFile always fails: the filesystem is read-only.
func (b *BillyAdapter) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrReadOnly
}

// ReadDir lists a directory in host order.
func (b *BillyAdapter) ReadDir(dirname string) ([]os.FileInfo, error) {
	attrs, err := b.resolve("readdir", dirname)
	if err != nil {
		return nil, err
	}
	if !attrs.IsDir() {
		return nil, osError("readdir", dirname, common.ErrNotDir)
	}
	entries, err := b.fs.ReadDirAll(attrs.Handle)
	if err != nil {
		return nil, osError("readdir", dirname, err)
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		child, err := b.fs.GetAttributes(e.Handle)
		if err != nil {
			// removed between listing and stat
			continue
		}
		infos = append(infos, b.fileInfo(e.Name, child))
	}
	return infos, nil
}

// MkdirAll always fails: the filesystem is read-only.
func (b *BillyAdapter) MkdirAll(filename string, perm os.FileMode) error {
	return billy.ErrReadOnly
}

// Lstat returns file info. Symlinks are followed on the host, so Lstat
// and Stat agree.
func (b *BillyAdapter) Lstat(filename string) (os.FileInfo, error) {
	return b.Stat(filename)
}

// Symlink always fails: the filesystem is read-only.
func (b *BillyAdapter) Symlink(target, link string) error {
	return billy.ErrReadOnly
}

// Readlink fails for every path; no symlinks are exposed.
func (b *BillyAdapter) Readlink(link string) (string, error) {
	return "", &os.PathError{Op: "readlink", Path: link, Err: syscall.EINVAL}
}

// Chroot is not supported.
func (b *BillyAdapter) Chroot(p string) (billy.Filesystem, error) {
	return nil, billy.ErrNotSupported
}

// Root returns the root path.
func (b *BillyAdapter) Root() string {
	return "/"
}

// Capabilities returns the filesystem capabilities.
func (b *BillyAdapter) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

// BillyFile is an open file of a BillyAdapter.
type BillyFile struct {
	fs     *vfs.MirrorFS
	name   string
	handle vfs.Handle
	isDir  bool

	mu     sync.Mutex
	offset int64
}

// Name returns the file name.
func (f *BillyFile) Name() string {
	return f.name
}

// Write always fails: the filesystem is read-only.
func (f *BillyFile) Write(p []byte) (int, error) {
	return 0, billy.ErrReadOnly
}

// Read reads from the current offset.
func (f *BillyFile) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

// ReadAt reads len(p) bytes of transformed content at off.
func (f *BillyFile) ReadAt(p []byte, off int64) (int, error) {
	if f.isDir {
		return 0, osError("read", f.name, common.ErrIsDir)
	}
	if len(p) == 0 {
		return 0, nil
	}
	data, err := f.fs.Read(f.handle, off, len(p))
	if err != nil {
		return 0, osError("read", f.name, err)
	}
	n := copy(p, data)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Seek sets the offset for the next Read.
func (f *BillyFile) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.offset
	case io.SeekEnd:
		size, err := f.fs.ContentSize(f.handle)
		if err != nil {
			return 0, osError("seek", f.name, err)
		}
		base = size
	default:
		return 0, &os.PathError{Op: "seek", Path: f.name, Err: syscall.EINVAL}
	}
	if base+offset < 0 {
		return 0, &os.PathError{Op: "seek", Path: f.name, Err: syscall.EINVAL}
	}
	f.offset = base + offset
	return f.offset, nil
}

// Close closes the file. Nothing is held open on the host.
func (f *BillyFile) Close() error {
	return nil
}

// Lock is a no-op.
func (f *BillyFile) Lock() error {
	return nil
}

// Unlock is a no-op.
func (f *BillyFile) Unlock() error {
	return nil
}

// Truncate always fails: the filesystem is read-only.
func (f *BillyFile) Truncate(size int64) error {
	return billy.ErrReadOnly
}

// BillyFileInfo implements os.FileInfo for mirrored entries.
type BillyFileInfo struct {
	fs    *vfs.MirrorFS
	name  string
	attrs *vfs.Attributes

	sizeOnce sync.Once
	size     int64
}

func (fi *BillyFileInfo) Name() string { return fi.name }

// Size is the length readers observe, transformed when a transform applies.
// It is computed on first use.
func (fi *BillyFileInfo) Size() int64 {
	fi.sizeOnce.Do(func() {
		fi.size = int64(fi.attrs.Size)
		if fi.attrs.IsDir() {
			return
		}
		size, err := fi.fs.ContentSize(fi.attrs.Handle)
		if err != nil {
			log.Debugf("[NFS] size of %q: %v; reporting backing size", fi.name, err)
			return
		}
		fi.size = size
	})
	return fi.size
}

func (fi *BillyFileInfo) Mode() os.FileMode {
	mode := os.FileMode(fi.attrs.Perm & 0o777)
	if fi.attrs.Perm&syscall.S_ISUID != 0 {
		mode |= os.ModeSetuid
	}
	if fi.attrs.Perm&syscall.S_ISGID != 0 {
		mode |= os.ModeSetgid
	}
	if fi.attrs.Perm&syscall.S_ISVTX != 0 {
		mode |= os.ModeSticky
	}
	if fi.attrs.IsDir() {
		mode |= os.ModeDir
	}
	return mode
}

func (fi *BillyFileInfo) ModTime() time.Time { return fi.attrs.Mtime }

func (fi *BillyFileInfo) IsDir() bool { return fi.attrs.IsDir() }

// Sys returns the NFS file info go-nfs uses for fileid, nlink and ownership.
func (fi *BillyFileInfo) Sys() any {
	return &nfsfile.FileInfo{
		Nlink:  fi.attrs.Nlink,
		UID:    fi.attrs.UID,
		GID:    fi.attrs.GID,
		Fileid: uint64(fi.attrs.Handle),
	}
}
