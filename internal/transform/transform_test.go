package transform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity(t *testing.T) {
	t.Parallel()

	raw := []byte("hi")
	out, err := Identity.Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
	assert.True(t, IsIdentity(Identity))
	assert.True(t, IsIdentity(nil))
	assert.False(t, IsIdentity(JSONC()))
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	assert.Equal(t, []string{IdentityName}, reg.Names())

	upper := NewFunc("upper", func(b []byte) ([]byte, error) { return b, nil })
	reg.Register(upper)

	got, err := reg.Get("upper")
	require.NoError(t, err)
	assert.Same(t, upper, got)

	_, err = reg.Get("nope")
	assert.True(t, errors.Is(err, ErrUnknownTransform))
}

func TestTableSelect(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(JSONC())
	reg.Register(CBOR())

	table, err := NewTable([]Rule{
		{Pattern: "settings.json", Transform: JSONCName},
		{Pattern: "*.json", Transform: IdentityName},
		{Pattern: "*.cbor", Transform: CBORName},
		{Pattern: "data/**/*.bin", Transform: CBORName},
	}, reg)
	require.NoError(t, err)

	tests := []struct {
		path string
		want string
	}{
		{"settings.json", JSONCName},
		{"nested/settings.json", JSONCName},
		{"other.json", IdentityName},
		{"a/b/c.cbor", CBORName},
		{"data/x/y.bin", CBORName},
		{"elsewhere/y.bin", IdentityName},
		{"readme.txt", IdentityName},
		{"", IdentityName},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, table.Select(tt.path).Name(), "Select(%q)", tt.path)
	}
}

func TestTableErrors(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()

	_, err := NewTable([]Rule{{Pattern: "", Transform: IdentityName}}, reg)
	assert.Error(t, err)

	_, err = NewTable([]Rule{{Pattern: "*.md", Transform: "missing"}}, reg)
	assert.True(t, errors.Is(err, ErrUnknownTransform))
}

func TestNilTableIsIdentity(t *testing.T) {
	t.Parallel()

	var table *Table
	assert.True(t, IsIdentity(table.Select("a.md")))
}

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	table, err := Build(nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), table.Rules())
	assert.Equal(t, MarkdownTextName, table.Select("notes/today.md").Name())
	assert.Equal(t, MarkdownTextName, table.Select("README.markdown").Name())
	assert.True(t, IsIdentity(table.Select("main.go")))
}

func TestBuildRejectsAgeWithoutIdentity(t *testing.T) {
	t.Parallel()

	_, err := Build([]Rule{{Pattern: "*.age", Transform: AgeName}}, Options{})
	assert.True(t, errors.Is(err, ErrUnknownTransform))
}
