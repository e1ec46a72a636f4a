package vfs

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"markdownfs/internal/common"
)

// statPath stats a backing path, following symlinks. Host failures are
// wrapped in common.ErrIO with the host error kept in the chain.
func statPath(path string) (*unix.Stat_t, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", common.ErrIO, path, err)
	}
	return &st, nil
}

// classify applies the kind rule: directories are directories, regular
// files are files, everything else is unsupported.
func classify(path string, mode uint32) (EntryKind, error) {
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return KindDirectory, nil
	case unix.S_IFREG:
		return KindFile, nil
	default:
		return 0, fmt.Errorf("%w: %s (mode %#o)", common.ErrUnsupportedKind, path, mode&unix.S_IFMT)
	}
}

// translate builds the attribute record for h from host metadata.
func translate(h Handle, path string, st *unix.Stat_t) (*Attributes, error) {
	kind, err := classify(path, uint32(st.Mode))
	if err != nil {
		return nil, err
	}
	atime, mtime, ctime := statTimes(st)
	return &Attributes{
		Handle: h,
		Size:   uint64(st.Size),
		Blocks: uint64(st.Blocks),
		Atime:  atime,
		Mtime:  mtime,
		Ctime:  ctime,
		Crtime: time.Time{},
		Kind:   kind,
		Perm:   uint32(st.Mode) & 0o7777,
		Nlink:  uint32(st.Nlink),
		UID:    st.Uid,
		GID:    st.Gid,
		Rdev:   uint32(st.Rdev),
	}, nil
}

// attributesFor is the attribute translator: stat, classify, copy.
func attributesFor(h Handle, path string) (*Attributes, error) {
	st, err := statPath(path)
	if err != nil {
		return nil, err
	}
	return translate(h, path, st)
}
