package vfs

import "sync"

// Handle is an opaque identifier for a backing path, stable for the life of
// the process. Handles are never recycled.
type Handle uint64

// RootHandle is pre-assigned to the backing root.
const RootHandle Handle = 1

// HandleDirectory is the bidirectional handle<->path map and the handle
// allocator. Both maps change together under the write lock, so readers
// never see one without the other and concurrent Assign calls for the
// same new path agree on a single handle.
type HandleDirectory struct {
	mu       sync.RWMutex
	byHandle map[Handle]string
	byPath   map[string]Handle
	next     Handle
}

// NewHandleDirectory creates a directory with root pre-assigned to RootHandle.
func NewHandleDirectory(root string) *HandleDirectory {
	return &HandleDirectory{
		byHandle: map[Handle]string{RootHandle: root},
		byPath:   map[string]Handle{root: RootHandle},
		next:     RootHandle + 1,
	}
}

// Resolve returns the path for h. It never allocates.
func (d *HandleDirectory) Resolve(h Handle) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.byHandle[h]
	return p, ok
}

// HandleFor returns the handle already assigned to path. It never allocates.
func (d *HandleDirectory) HandleFor(path string) (Handle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.byPath[path]
	return h, ok
}

// Assign returns the handle for path, allocating the next one if path has
// none yet.
func (d *HandleDirectory) Assign(path string) Handle {
	if h, ok := d.HandleFor(path); ok {
		return h
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if h, ok := d.byPath[path]; ok {
		return h
	}
	h := d.next
	d.next++
	d.byHandle[h] = path
	d.byPath[path] = h
	return h
}

// Len returns the number of assigned handles, root included.
func (d *HandleDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byHandle)
}

// consistent reports whether the forward and reverse maps are exact inverses.
func (d *HandleDirectory) consistent() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.byHandle) != len(d.byPath) {
		return false
	}
	for h, p := range d.byHandle {
		if d.byPath[p] != h {
			return false
		}
	}
	return true
}
