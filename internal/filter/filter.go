// Package filter hides backing entries from the mount using gitignore rules.
package filter

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	log "github.com/sirupsen/logrus"
)

// Filter decides which backing entries are hidden. Paths are relative to
// the backing root and slash-separated.
type Filter struct {
	hide      *ignore.GitIgnore
	gitignore bool
	scoped    []scopedMatcher
}

type scopedMatcher struct {
	dir    string
	ignore *ignore.GitIgnore
}

// New builds a filter for root. hide patterns always apply. When gitignore
// is set, every .gitignore under root is collected (once, at construction)
// and the .git directory itself is hidden.
func New(root string, gitignore bool, hide []string) (*Filter, error) {
	f := &Filter{gitignore: gitignore}
	if len(hide) > 0 {
		f.hide = ignore.CompileIgnoreLines(hide...)
	}
	if !gitignore {
		return f, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ".gitignore" {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			log.Debugf("[Filter] skip %s: %v", path, readErr)
			return nil
		}
		dir, relErr := filepath.Rel(root, filepath.Dir(path))
		if relErr != nil {
			return nil
		}
		if dir == "." {
			dir = ""
		}
		f.scoped = append(f.scoped, scopedMatcher{
			dir:    filepath.ToSlash(dir),
			ignore: ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("[Filter] %d .gitignore files under %s", len(f.scoped), root)
	return f, nil
}

// Hidden reports whether relPath is hidden. The root is never hidden.
func (f *Filter) Hidden(relPath string, isDir bool) bool {
	if f == nil || relPath == "" {
		return false
	}
	check := relPath
	if isDir {
		check += "/"
	}
	if f.hide != nil && f.hide.MatchesPath(check) {
		return true
	}
	if !f.gitignore {
		return false
	}
	if relPath == ".git" || strings.HasPrefix(relPath, ".git/") {
		return true
	}
	for _, sm := range f.scoped {
		p := check
		if sm.dir != "" {
			prefix := sm.dir + "/"
			if !strings.HasPrefix(relPath, prefix) {
				continue
			}
			p = strings.TrimPrefix(check, prefix)
		}
		if sm.ignore.MatchesPath(p) {
			return true
		}
	}
	return false
}
