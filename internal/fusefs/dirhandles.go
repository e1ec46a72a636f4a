package fusefs

import (
	"sync"

	"markdownfs/internal/vfs"
)

// dirHandles tracks open directories. Each one holds the listing taken on
// its first ReadDir (or on a rewind to offset 0) so that the kernel's
// paged reads slice one consistent sequence.
type dirHandles struct {
	mu   sync.Mutex
	open map[uint64]*openDir
	next uint64
}

type openDir struct {
	handle  vfs.Handle
	entries []vfs.DirEntry
	listed  bool
}

func newDirHandles() *dirHandles {
	return &dirHandles{open: make(map[uint64]*openDir), next: 1}
}

func (d *dirHandles) allocate(h vfs.Handle) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	fh := d.next
	d.next++
	d.open[fh] = &openDir{handle: h}
	return fh
}

// snapshot returns the listing for fh, calling list when there is none yet
// or the reader rewound. ok is false for an unknown fh.
func (d *dirHandles) snapshot(fh uint64, offset uint64, list func(vfs.Handle) ([]vfs.DirEntry, error)) (entries []vfs.DirEntry, ok bool, err error) {
	d.mu.Lock()
	od, found := d.open[fh]
	d.mu.Unlock()
	if !found {
		return nil, false, nil
	}

	if !od.listed || offset == 0 {
		entries, err := list(od.handle)
		if err != nil {
			return nil, true, err
		}
		d.mu.Lock()
		od.entries = entries
		od.listed = true
		d.mu.Unlock()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return od.entries, true, nil
}

func (d *dirHandles) release(fh uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.open, fh)
}

func (d *dirHandles) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open)
}
