package vfs

import (
	"fmt"
	"sync"
	"testing"
)

func TestNewHandleDirectory(t *testing.T) {
	d := NewHandleDirectory("/backing")

	p, ok := d.Resolve(RootHandle)
	if !ok {
		t.Fatal("root handle should resolve without a prior lookup")
	}
	if p != "/backing" {
		t.Errorf("root path = %s, want /backing", p)
	}
	if h, ok := d.HandleFor("/backing"); !ok || h != RootHandle {
		t.Errorf("HandleFor(root) = %d, %v, want 1, true", h, ok)
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1", d.Len())
	}
}

func TestAssignSequential(t *testing.T) {
	d := NewHandleDirectory("/b")

	h1 := d.Assign("/b/a")
	h2 := d.Assign("/b/b")
	h3 := d.Assign("/b/c")

	if h1 != 2 || h2 != 3 || h3 != 4 {
		t.Errorf("handles = %d, %d, %d, want 2, 3, 4", h1, h2, h3)
	}
}

func TestAssignIdempotent(t *testing.T) {
	d := NewHandleDirectory("/b")

	h := d.Assign("/b/note.md")
	for i := 0; i < 5; i++ {
		if got := d.Assign("/b/note.md"); got != h {
			t.Fatalf("Assign returned %d on call %d, want %d", got, i, h)
		}
	}
	if got := d.Assign("/b"); got != RootHandle {
		t.Errorf("Assign(root) = %d, want %d", got, RootHandle)
	}
	if d.Len() != 2 {
		t.Errorf("Len = %d, want 2", d.Len())
	}
}

func TestResolveRoundTrip(t *testing.T) {
	d := NewHandleDirectory("/b")
	d.Assign("/b/x")

	h, ok := d.HandleFor("/b/x")
	if !ok {
		t.Fatal("HandleFor should find an assigned path")
	}
	p, ok := d.Resolve(h)
	if !ok || p != "/b/x" {
		t.Errorf("Resolve(%d) = %q, %v, want /b/x, true", h, p, ok)
	}
}

func TestLookupsNeverAllocate(t *testing.T) {
	d := NewHandleDirectory("/b")

	if _, ok := d.Resolve(999); ok {
		t.Error("Resolve should miss for an unknown handle")
	}
	if _, ok := d.HandleFor("/b/unknown"); ok {
		t.Error("HandleFor should miss for an unknown path")
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d after pure lookups, want 1", d.Len())
	}
	if h := d.Assign("/b/first"); h != 2 {
		t.Errorf("first Assign = %d, want 2", h)
	}
}

func TestConcurrentAssign(t *testing.T) {
	d := NewHandleDirectory("/b")

	const workers = 16
	const paths = 200

	results := make([][]Handle, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			results[w] = make([]Handle, paths)
			for i := 0; i < paths; i++ {
				// Walk the paths in a different order per worker.
				idx := (i + w*7) % paths
				results[w][idx] = d.Assign(fmt.Sprintf("/b/f%d", idx))
			}
		}(w)
	}
	wg.Wait()

	for w := 1; w < workers; w++ {
		for i := 0; i < paths; i++ {
			if results[w][i] != results[0][i] {
				t.Fatalf("path f%d got handle %d and %d", i, results[0][i], results[w][i])
			}
		}
	}
	if d.Len() != paths+1 {
		t.Errorf("Len = %d, want %d", d.Len(), paths+1)
	}
	if !d.consistent() {
		t.Error("forward and reverse maps diverged")
	}
}

func TestResolveWhileAssigning(t *testing.T) {
	d := NewHandleDirectory("/b")

	const paths = 500
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < paths; i++ {
			d.Assign(fmt.Sprintf("/b/f%d", i))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < paths; i++ {
				p := fmt.Sprintf("/b/f%d", i)
				h, ok := d.HandleFor(p)
				if !ok {
					continue
				}
				// a handle visible through one map is visible through the other
				if got, ok := d.Resolve(h); !ok || got != p {
					t.Errorf("Resolve(%d) = %q, %v; want %q", h, got, ok, p)
					return
				}
			}
		}()
	}
	wg.Wait()

	if !d.consistent() {
		t.Error("forward and reverse maps diverged")
	}
	if d.Len() != paths+1 {
		t.Errorf("Len = %d, want %d", d.Len(), paths+1)
	}
}
