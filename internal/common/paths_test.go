package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"root", "/", ""},
		{"double_root", "//", ""},
		{"dot", ".", ""},
		{"simple", "foo", "foo"},
		{"leading_slash", "/foo", "foo"},
		{"trailing_slash", "foo/", "foo"},
		{"nested", "/foo/bar/", "foo/bar"},
		{"dot_segments", "foo/./bar", "foo/bar"},
		{"parent_segments", "foo/../bar", "bar"},
		{"escape_clamped", "../../etc", "etc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizePath(tt.input))
		})
	}
}

func TestSplitPath(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SplitPath(""))
	assert.Nil(t, SplitPath("/"))
	assert.Equal(t, []string{"a"}, SplitPath("/a"))
	assert.Equal(t, []string{"a", "b", "c.md"}, SplitPath("a/b/c.md/"))
}

func TestValidName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"note.md", true},
		{".hidden", true},
		{"..", true},
		{"", false},
		{"a/b", false},
		{"nul\x00byte", false},
		{string(make([]byte, 256)), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidName(tt.name), "ValidName(%q)", tt.name)
	}
}

func TestRelativeTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		root   string
		path   string
		want   string
		wantOK bool
	}{
		{"root_itself", "/srv/notes", "/srv/notes", "", true},
		{"child", "/srv/notes", "/srv/notes/a.md", "a.md", true},
		{"nested", "/srv/notes", "/srv/notes/d/e.md", "d/e.md", true},
		{"sibling", "/srv/notes", "/srv/notes2/a.md", "", false},
		{"parent", "/srv/notes", "/srv", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := RelativeTo(tt.root, tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
