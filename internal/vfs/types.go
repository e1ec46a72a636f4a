package vfs

import "time"

// EntryKind is the kind of a mirrored entry. Only regular files and
// directories are ever exposed.
type EntryKind int

const (
	// KindFile is a regular file
	KindFile EntryKind = iota
	// KindDirectory is a directory
	KindDirectory
)

func (k EntryKind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// Attributes is the attribute record reported for a handle. It is derived
// from host metadata on every request and never cached.
type Attributes struct {
	Handle Handle
	Size   uint64
	Blocks uint64
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	// Crtime is not available from the host and is always the zero time.
	Crtime time.Time
	Kind   EntryKind
	// Perm holds the permission bits, setuid/setgid/sticky included.
	Perm  uint32
	Nlink uint32
	UID   uint32
	GID   uint32
	Rdev  uint32
}

// IsDir reports whether the record describes a directory.
func (a *Attributes) IsDir() bool { return a.Kind == KindDirectory }

// Mode returns the POSIX mode (type bits plus permission bits).
func (a *Attributes) Mode() uint32 {
	mode := a.Perm & 0o7777
	if a.Kind == KindDirectory {
		return mode | modeDir
	}
	return mode | modeReg
}

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	Handle Handle
	// Position is the zero-based sequence position within the listing.
	Position uint64
	Kind     EntryKind
	Name     string
}

// DirStream is a one-shot, non-restartable sequence of directory entries.
type DirStream interface {
	HasNext() bool
	Next() (DirEntry, error)
	Close()
}

const (
	modeDir = 0o040000
	modeReg = 0o100000
)
