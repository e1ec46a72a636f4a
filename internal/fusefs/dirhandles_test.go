package fusefs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markdownfs/internal/vfs"
)

func TestDirHandlesSnapshot(t *testing.T) {
	t.Parallel()

	d := newDirHandles()
	fh := d.allocate(vfs.RootHandle)

	calls := 0
	listing := []vfs.DirEntry{{Name: "."}, {Name: ".."}, {Name: "a"}}
	list := func(h vfs.Handle) ([]vfs.DirEntry, error) {
		calls++
		assert.Equal(t, vfs.RootHandle, h)
		return listing, nil
	}

	got, ok, err := d.snapshot(fh, 0, list)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, listing, got)

	// Continuing reads slice the same snapshot.
	_, _, err = d.snapshot(fh, 2, list)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// A rewind lists again.
	_, _, err = d.snapshot(fh, 0, list)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	_, ok, _ = d.snapshot(fh+1, 0, list)
	assert.False(t, ok)
}

func TestDirHandlesListError(t *testing.T) {
	t.Parallel()

	d := newDirHandles()
	fh := d.allocate(7)
	boom := errors.New("boom")

	_, ok, err := d.snapshot(fh, 0, func(vfs.Handle) ([]vfs.DirEntry, error) { return nil, boom })
	assert.True(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestDirHandlesUnique(t *testing.T) {
	t.Parallel()

	d := newDirHandles()
	a := d.allocate(1)
	b := d.allocate(1)
	assert.NotEqual(t, a, b)
	d.release(a)
	assert.Equal(t, 1, d.len())
}
