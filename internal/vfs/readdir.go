package vfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"

	"markdownfs/internal/common"
)

// readDirBatch is how many host entries are pulled per ReadDir call.
const readDirBatch = 128

// dirStream yields ".", "..", then the visible backing children in host
// order. Children are classified before a handle is assigned, so skipped
// entries never receive one.
type dirStream struct {
	m       *MirrorFS
	dir     *os.File
	dirPath string

	synthetic []DirEntry
	batch     []os.DirEntry
	pos       uint64

	next *DirEntry
	err  error
	done bool
}

func (m *MirrorFS) newDirStream(h Handle, dirPath string) (*dirStream, error) {
	f, err := os.Open(dirPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", common.ErrIO, dirPath, err)
	}

	parent := RootHandle
	if dirPath != m.root {
		parent = m.handles.Assign(filepath.Dir(dirPath))
	}
	return &dirStream{
		m:       m,
		dir:     f,
		dirPath: dirPath,
		synthetic: []DirEntry{
			{Handle: h, Kind: KindDirectory, Name: "."},
			{Handle: parent, Kind: KindDirectory, Name: ".."},
		},
	}, nil
}

func (s *dirStream) HasNext() bool {
	if s.next == nil && s.err == nil && !s.done {
		s.advance()
	}
	return s.next != nil || s.err != nil
}

func (s *dirStream) Next() (DirEntry, error) {
	if !s.HasNext() {
		return DirEntry{}, io.EOF
	}
	if s.err != nil {
		err := s.err
		s.err = nil
		s.done = true
		return DirEntry{}, err
	}
	e := *s.next
	s.next = nil
	return e, nil
}

func (s *dirStream) Close() {
	if s.dir != nil {
		s.dir.Close()
		s.dir = nil
	}
	s.done = true
}

func (s *dirStream) emit(e DirEntry) {
	e.Position = s.pos
	s.pos++
	s.next = &e
}

func (s *dirStream) advance() {
	if len(s.synthetic) > 0 {
		e := s.synthetic[0]
		s.synthetic = s.synthetic[1:]
		s.emit(e)
		return
	}

	for {
		if len(s.batch) == 0 {
			batch, err := s.dir.ReadDir(readDirBatch)
			if len(batch) == 0 {
				if err != nil && !errors.Is(err, io.EOF) {
					s.err = fmt.Errorf("%w: read dir %s: %w", common.ErrIO, s.dirPath, err)
				}
				s.Close()
				return
			}
			s.batch = batch
		}

		name := s.batch[0].Name()
		s.batch = s.batch[1:]

		e, ok, err := s.m.child(s.dirPath, name)
		if err != nil {
			s.err = err
			s.Close()
			return
		}
		if ok {
			s.emit(e)
			return
		}
	}
}

// child classifies one backing child. ok is false when the child is
// skipped: vanished, dangling, unsupported, or hidden.
func (m *MirrorFS) child(dirPath, name string) (DirEntry, bool, error) {
	path := filepath.Join(dirPath, name)
	if m.excluded(path) {
		return DirEntry{}, false, nil
	}

	st, err := statPath(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ELOOP) {
			log.Debugf("[VFS] ReadDir: skip %q: %v", path, err)
			return DirEntry{}, false, nil
		}
		return DirEntry{}, false, err
	}
	kind, err := classify(path, uint32(st.Mode))
	if err != nil {
		log.Debugf("[VFS] ReadDir: skip %q: %v", path, err)
		return DirEntry{}, false, nil
	}
	if m.hidden(path, kind) {
		return DirEntry{}, false, nil
	}
	return DirEntry{Handle: m.handles.Assign(path), Kind: kind, Name: name}, true, nil
}
