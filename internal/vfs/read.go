package vfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"markdownfs/internal/common"
	"markdownfs/internal/transform"
)

// readWindow reads [off, off+size) of the transformed content of path.
// The window is clipped to the end of the content; an offset at or past
// the end yields an empty slice.
func readWindow(path string, t transform.Transformer, off int64, size int) ([]byte, error) {
	if off < 0 || size < 0 {
		return nil, fmt.Errorf("%w: negative read window", common.ErrInvalidPath)
	}
	if transform.IsIdentity(t) {
		return readRaw(path, off, size)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, hostReadError(path, err)
	}
	out, err := t.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: transform %s with %s: %w", common.ErrIO, path, t.Name(), err)
	}
	return clip(out, off, size), nil
}

// readRaw reads the window straight from the backing file.
func readRaw(path string, off int64, size int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, hostReadError(path, err)
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, hostReadError(path, err)
	}
	return buf[:n], nil
}

// transformedSize returns the length of the transformed content of path.
func transformedSize(path string, t transform.Transformer) (int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, hostReadError(path, err)
	}
	out, err := t.Transform(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: transform %s with %s: %w", common.ErrIO, path, t.Name(), err)
	}
	return int64(len(out)), nil
}

func clip(data []byte, off int64, size int) []byte {
	if off >= int64(len(data)) {
		return []byte{}
	}
	end := off + int64(size)
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[off:end]
}

func hostReadError(path string, err error) error {
	if errors.Is(err, syscall.EISDIR) {
		return fmt.Errorf("%w: %s", common.ErrIsDir, path)
	}
	return fmt.Errorf("%w: read %s: %w", common.ErrIO, path, err)
}
