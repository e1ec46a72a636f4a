package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"markdownfs/internal/common"
	"markdownfs/internal/transform"
)

// testBacking creates the note.md + drafts/ tree used throughout.
func testBacking(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("hi"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "drafts"), 0o755))
	return root
}

func testMirror(t *testing.T, root string, opts Options) *MirrorFS {
	t.Helper()
	m, err := New(root, opts)
	require.NoError(t, err)
	return m
}

func names(entries []DirEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

// hostOrder returns the names of dir in the order the host lists them.
func hostOrder(t *testing.T, dir string) []string {
	t.Helper()
	f, err := os.Open(dir)
	require.NoError(t, err)
	defer f.Close()
	got, err := f.Readdirnames(-1)
	require.NoError(t, err)
	return got
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("root is pre-assigned", func(t *testing.T) {
		t.Parallel()
		root := testBacking(t)
		m := testMirror(t, root, Options{})

		attrs, err := m.GetAttributes(RootHandle)
		require.NoError(t, err)
		assert.Equal(t, RootHandle, attrs.Handle)
		assert.Equal(t, KindDirectory, attrs.Kind)
		assert.Equal(t, 1, m.Handles().Len())
	})

	t.Run("rejects a file", func(t *testing.T) {
		t.Parallel()
		root := testBacking(t)
		_, err := New(filepath.Join(root, "note.md"), Options{})
		assert.True(t, errors.Is(err, common.ErrNotDir))
	})

	t.Run("rejects a missing path", func(t *testing.T) {
		t.Parallel()
		_, err := New(filepath.Join(t.TempDir(), "gone"), Options{})
		assert.Error(t, err)
	})
}

func TestConcreteScenario(t *testing.T) {
	t.Parallel()

	root := testBacking(t)
	m := testMirror(t, root, Options{})

	entries, err := m.ReadDirAll(RootHandle)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, ".", entries[0].Name)
	assert.Equal(t, "..", entries[1].Name)
	assert.ElementsMatch(t, []string{"note.md", "drafts"}, names(entries[2:]))
	assert.Equal(t, hostOrder(t, root), names(entries[2:]))

	attrs, err := m.Lookup(RootHandle, "note.md")
	require.NoError(t, err)
	assert.Equal(t, KindFile, attrs.Kind)
	assert.Equal(t, uint64(2), attrs.Size)

	data, err := m.Read(attrs.Handle, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	_, err = m.Lookup(RootHandle, "missing.md")
	assert.True(t, errors.Is(err, common.ErrNotFound))
	assert.Equal(t, ENOENT, ToErrno(err))
}

func TestLookup(t *testing.T) {
	t.Parallel()

	t.Run("is stable", func(t *testing.T) {
		t.Parallel()
		m := testMirror(t, testBacking(t), Options{})
		a, err := m.Lookup(RootHandle, "drafts")
		require.NoError(t, err)
		b, err := m.Lookup(RootHandle, "drafts")
		require.NoError(t, err)
		assert.Equal(t, a.Handle, b.Handle)
		assert.Equal(t, KindDirectory, a.Kind)
	})

	t.Run("missing names get no handle", func(t *testing.T) {
		t.Parallel()
		m := testMirror(t, testBacking(t), Options{})
		_, err := m.Lookup(RootHandle, "nope")
		require.Error(t, err)
		assert.Equal(t, 1, m.Handles().Len())
	})

	t.Run("unknown parent", func(t *testing.T) {
		t.Parallel()
		m := testMirror(t, testBacking(t), Options{})
		_, err := m.Lookup(999, "note.md")
		assert.True(t, errors.Is(err, common.ErrNotFound))
	})

	t.Run("names with a slash are not found", func(t *testing.T) {
		t.Parallel()
		root := testBacking(t)
		require.NoError(t, os.WriteFile(filepath.Join(root, "drafts", "a.md"), nil, 0o644))
		m := testMirror(t, root, Options{})
		_, err := m.Lookup(RootHandle, "drafts/a.md")
		assert.True(t, errors.Is(err, common.ErrNotFound))
	})

	t.Run("dot and dotdot", func(t *testing.T) {
		t.Parallel()
		m := testMirror(t, testBacking(t), Options{})
		drafts, err := m.Lookup(RootHandle, "drafts")
		require.NoError(t, err)

		self, err := m.Lookup(drafts.Handle, ".")
		require.NoError(t, err)
		assert.Equal(t, drafts.Handle, self.Handle)

		up, err := m.Lookup(drafts.Handle, "..")
		require.NoError(t, err)
		assert.Equal(t, RootHandle, up.Handle)

		top, err := m.Lookup(RootHandle, "..")
		require.NoError(t, err)
		assert.Equal(t, RootHandle, top.Handle)
	})

	t.Run("child of a file", func(t *testing.T) {
		t.Parallel()
		m := testMirror(t, testBacking(t), Options{})
		note, err := m.Lookup(RootHandle, "note.md")
		require.NoError(t, err)
		_, err = m.Lookup(note.Handle, "x")
		assert.Equal(t, ENOENT, ToErrno(err))
	})
}

func TestUnsupportedKinds(t *testing.T) {
	t.Parallel()

	root := testBacking(t)
	require.NoError(t, unix.Mkfifo(filepath.Join(root, "pipe"), 0o644))
	m := testMirror(t, root, Options{})

	_, err := m.Lookup(RootHandle, "pipe")
	assert.True(t, errors.Is(err, common.ErrUnsupportedKind))
	assert.Equal(t, ENOENT, ToErrno(err))

	entries, err := m.ReadDirAll(RootHandle)
	require.NoError(t, err)
	assert.NotContains(t, names(entries), "pipe")
	assert.Equal(t, 3, m.Handles().Len(), "root plus two supported children")
}

func TestSymlinks(t *testing.T) {
	t.Parallel()

	root := testBacking(t)
	require.NoError(t, os.Symlink("note.md", filepath.Join(root, "link.md")))
	require.NoError(t, os.Symlink("drafts", filepath.Join(root, "linkdir")))
	require.NoError(t, os.Symlink("nowhere", filepath.Join(root, "dangling")))
	m := testMirror(t, root, Options{})

	file, err := m.Lookup(RootHandle, "link.md")
	require.NoError(t, err)
	assert.Equal(t, KindFile, file.Kind)
	assert.Equal(t, uint64(2), file.Size)

	dir, err := m.Lookup(RootHandle, "linkdir")
	require.NoError(t, err)
	assert.Equal(t, KindDirectory, dir.Kind)

	_, err = m.Lookup(RootHandle, "dangling")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	entries, err := m.ReadDirAll(RootHandle)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{".", "..", "note.md", "drafts", "link.md", "linkdir"}, names(entries))
}

func TestGetAttributes(t *testing.T) {
	t.Parallel()

	t.Run("copies host metadata", func(t *testing.T) {
		t.Parallel()
		root := testBacking(t)
		path := filepath.Join(root, "note.md")
		require.NoError(t, os.Chmod(path, 0o640))
		m := testMirror(t, root, Options{})

		attrs, err := m.Lookup(RootHandle, "note.md")
		require.NoError(t, err)

		var st unix.Stat_t
		require.NoError(t, unix.Stat(path, &st))
		assert.Equal(t, uint32(0o640), attrs.Perm)
		assert.Equal(t, uint32(0o100640), attrs.Mode())
		assert.Equal(t, st.Uid, attrs.UID)
		assert.Equal(t, st.Gid, attrs.GID)
		assert.Equal(t, uint32(st.Nlink), attrs.Nlink)
		assert.Equal(t, uint64(st.Blocks), attrs.Blocks)
		assert.True(t, attrs.Crtime.IsZero())
		assert.False(t, attrs.Mtime.IsZero())
	})

	t.Run("is never cached", func(t *testing.T) {
		t.Parallel()
		root := testBacking(t)
		m := testMirror(t, root, Options{})
		attrs, err := m.Lookup(RootHandle, "note.md")
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("hello"), 0o644))
		fresh, err := m.GetAttributes(attrs.Handle)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), fresh.Size)
	})

	t.Run("removed file is an I/O error and keeps its handle", func(t *testing.T) {
		t.Parallel()
		root := testBacking(t)
		m := testMirror(t, root, Options{})
		attrs, err := m.Lookup(RootHandle, "note.md")
		require.NoError(t, err)

		require.NoError(t, os.Remove(filepath.Join(root, "note.md")))
		_, err = m.GetAttributes(attrs.Handle)
		assert.True(t, errors.Is(err, common.ErrIO))
		assert.Equal(t, EIO, ToErrno(err))

		require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("again"), 0o644))
		again, err := m.Lookup(RootHandle, "note.md")
		require.NoError(t, err)
		assert.Equal(t, attrs.Handle, again.Handle)
	})

	t.Run("unknown handle", func(t *testing.T) {
		t.Parallel()
		m := testMirror(t, testBacking(t), Options{})
		_, err := m.GetAttributes(42)
		assert.True(t, errors.Is(err, common.ErrNotFound))
	})
}

func TestList(t *testing.T) {
	t.Parallel()

	t.Run("completeness and order", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		for _, n := range []string{"c", "a", "b"} {
			require.NoError(t, os.WriteFile(filepath.Join(root, n), []byte(n), 0o644))
		}
		m := testMirror(t, root, Options{})

		entries, err := m.ReadDirAll(RootHandle)
		require.NoError(t, err)
		assert.Equal(t, append([]string{".", ".."}, hostOrder(t, root)...), names(entries))

		seen := map[Handle]bool{}
		for i, e := range entries {
			assert.Equal(t, uint64(i), e.Position)
			if i < 2 {
				continue
			}
			assert.False(t, seen[e.Handle], "duplicate handle %d", e.Handle)
			seen[e.Handle] = true
			attrs, err := m.GetAttributes(e.Handle)
			require.NoError(t, err)
			assert.Equal(t, KindFile, attrs.Kind)
		}
	})

	t.Run("dot entries carry handles", func(t *testing.T) {
		t.Parallel()
		root := testBacking(t)
		m := testMirror(t, root, Options{})
		drafts, err := m.Lookup(RootHandle, "drafts")
		require.NoError(t, err)

		entries, err := m.ReadDirAll(drafts.Handle)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, drafts.Handle, entries[0].Handle)
		assert.Equal(t, RootHandle, entries[1].Handle)
		assert.Equal(t, KindDirectory, entries[1].Kind)
	})

	t.Run("listing reuses lookup handles", func(t *testing.T) {
		t.Parallel()
		m := testMirror(t, testBacking(t), Options{})
		note, err := m.Lookup(RootHandle, "note.md")
		require.NoError(t, err)

		entries, err := m.ReadDirAll(RootHandle)
		require.NoError(t, err)
		for _, e := range entries {
			if e.Name == "note.md" {
				assert.Equal(t, note.Handle, e.Handle)
			}
		}
		assert.True(t, m.Handles().consistent())
	})

	t.Run("stream is one-shot", func(t *testing.T) {
		t.Parallel()
		m := testMirror(t, testBacking(t), Options{})
		stream, err := m.List(RootHandle)
		require.NoError(t, err)
		n := 0
		for stream.HasNext() {
			_, err := stream.Next()
			require.NoError(t, err)
			n++
		}
		stream.Close()
		assert.Equal(t, 4, n)
		assert.False(t, stream.HasNext())
	})

	t.Run("file handle is not a directory", func(t *testing.T) {
		t.Parallel()
		m := testMirror(t, testBacking(t), Options{})
		note, err := m.Lookup(RootHandle, "note.md")
		require.NoError(t, err)
		_, err = m.List(note.Handle)
		assert.Equal(t, ENOTDIR, ToErrno(err))
	})

	t.Run("unknown handle", func(t *testing.T) {
		t.Parallel()
		m := testMirror(t, testBacking(t), Options{})
		_, err := m.List(77)
		assert.Equal(t, ENOENT, ToErrno(err))
	})

	t.Run("large directory spans batches", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		for i := 0; i < readDirBatch*2+5; i++ {
			require.NoError(t, os.WriteFile(filepath.Join(root, "f"+string(rune('a'+i%26))+string(rune('0'+i/26))), nil, 0o644))
		}
		m := testMirror(t, root, Options{})
		entries, err := m.ReadDirAll(RootHandle)
		require.NoError(t, err)
		assert.Equal(t, append([]string{".", ".."}, hostOrder(t, root)...), names(entries))
	})
}

type hideNames map[string]bool

func (h hideNames) Hidden(rel string, _ bool) bool { return h[rel] }

func TestFilterAndExclude(t *testing.T) {
	t.Parallel()

	root := testBacking(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.md"), nil, 0o644))
	mnt := filepath.Join(root, "mnt")
	require.NoError(t, os.Mkdir(mnt, 0o755))

	m := testMirror(t, root, Options{
		Filter:  hideNames{"secret.md": true},
		Exclude: []string{mnt},
	})

	entries, err := m.ReadDirAll(RootHandle)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{".", "..", "note.md", "drafts"}, names(entries))

	_, err = m.Lookup(RootHandle, "secret.md")
	assert.True(t, errors.Is(err, common.ErrNotFound))
	_, err = m.Lookup(RootHandle, "mnt")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestRead(t *testing.T) {
	t.Parallel()

	content := []byte("0123456789")
	setup := func(t *testing.T, opts Options) (*MirrorFS, Handle) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), content, 0o644))
		m := testMirror(t, root, opts)
		attrs, err := m.Lookup(RootHandle, "f.txt")
		require.NoError(t, err)
		return m, attrs.Handle
	}

	t.Run("identity window", func(t *testing.T) {
		t.Parallel()
		m, h := setup(t, Options{})
		tests := []struct {
			off  int64
			size int
			want string
		}{
			{0, 10, "0123456789"},
			{2, 3, "234"},
			{8, 10, "89"},
			{10, 4, ""},
			{50, 4, ""},
			{0, 0, ""},
		}
		for _, tt := range tests {
			got, err := m.Read(h, tt.off, tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got), "off=%d size=%d", tt.off, tt.size)
		}
	})

	t.Run("transform applies before slicing", func(t *testing.T) {
		t.Parallel()
		double := transform.NewFunc("double", func(b []byte) ([]byte, error) {
			return append(append([]byte{}, b...), b...), nil
		})
		reg := transform.NewRegistry()
		reg.Register(double)
		table, err := transform.NewTable([]transform.Rule{{Pattern: "*.txt", Transform: "double"}}, reg)
		require.NoError(t, err)

		m, h := setup(t, Options{Transforms: table})
		got, err := m.Read(h, 8, 4)
		require.NoError(t, err)
		assert.Equal(t, "8901", string(got))

		got, err = m.Read(h, 18, 10)
		require.NoError(t, err)
		assert.Equal(t, "89", string(got))

		size, err := m.ContentSize(h)
		require.NoError(t, err)
		assert.Equal(t, int64(20), size)

		tr, err := m.TransformFor(h)
		require.NoError(t, err)
		assert.Equal(t, "double", tr.Name())
	})

	t.Run("transform failure is an I/O error", func(t *testing.T) {
		t.Parallel()
		reg := transform.NewRegistry()
		reg.Register(transform.NewFunc("broken", func([]byte) ([]byte, error) {
			return nil, errors.New("bad input")
		}))
		table, err := transform.NewTable([]transform.Rule{{Pattern: "*", Transform: "broken"}}, reg)
		require.NoError(t, err)

		m, h := setup(t, Options{Transforms: table})
		_, err = m.Read(h, 0, 1)
		assert.Equal(t, EIO, ToErrno(err))
	})

	t.Run("unknown handle", func(t *testing.T) {
		t.Parallel()
		m, _ := setup(t, Options{})
		_, err := m.Read(99, 0, 1)
		assert.Equal(t, ENOENT, ToErrno(err))
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()
		m, _ := setup(t, Options{})
		_, err := m.Read(RootHandle, 0, 1)
		assert.Equal(t, EISDIR, ToErrno(err))
	})

	t.Run("identity content size", func(t *testing.T) {
		t.Parallel()
		m, h := setup(t, Options{})
		size, err := m.ContentSize(h)
		require.NoError(t, err)
		assert.Equal(t, int64(len(content)), size)
	})
}

func TestConcurrentLookupAndList(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for i := 0; i < 50; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "n"+string(rune('A'+i))), nil, 0o644))
	}
	m := testMirror(t, root, Options{})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = m.ReadDirAll(RootHandle)
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = m.Lookup(RootHandle, "n"+string(rune('A'+i)))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 51, m.Handles().Len())
	assert.True(t, m.Handles().consistent())
}

func TestStatFS(t *testing.T) {
	t.Parallel()

	m := testMirror(t, testBacking(t), Options{})
	st, err := m.StatFS()
	require.NoError(t, err)
	assert.NotZero(t, st.Bsize)
}

func TestRecoverPanic(t *testing.T) {
	t.Parallel()

	run := func() (err error) {
		defer RecoverPanic("test", &err)
		panic("boom")
	}
	err := run()
	assert.True(t, errors.Is(err, common.ErrIO))
}
