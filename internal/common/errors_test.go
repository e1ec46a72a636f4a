package common

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelsAreDistinct(t *testing.T) {
	t.Parallel()

	errs := []error{
		ErrNotFound,
		ErrUnsupportedKind,
		ErrNotDir,
		ErrIsDir,
		ErrInvalidPath,
		ErrReadOnly,
		ErrIO,
	}

	seen := make(map[string]bool)
	for i, err := range errs {
		require.NotNil(t, err, "error at index %d should not be nil", i)
		assert.False(t, seen[err.Error()], "duplicate error message: %s", err)
		seen[err.Error()] = true
		for j, other := range errs {
			if i != j {
				assert.False(t, errors.Is(err, other), "%v must not match %v", err, other)
			}
		}
	}
}

func TestWrappedHostErrorKeepsBothChains(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("%w: %w", ErrIO, fs.ErrNotExist)
	assert.True(t, errors.Is(err, ErrIO))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.False(t, errors.Is(err, ErrNotFound))
}
