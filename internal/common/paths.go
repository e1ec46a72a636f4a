// Copyright 2026 MarkdownFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"path/filepath"
	"strings"
)

// NormalizePath cleans a slash-separated path and strips leading and
// trailing slashes. The root is returned as "".
func NormalizePath(path string) string {
	path = filepath.Clean("/" + path)
	path = strings.Trim(path, "/")
	if path == "." {
		return ""
	}
	return path
}

// SplitPath splits a path into its components.
func SplitPath(path string) []string {
	path = NormalizePath(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// ValidName reports whether name can be a single directory entry name.
func ValidName(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}
	return !strings.ContainsAny(name, "/\x00")
}

// RelativeTo returns path relative to root using forward slashes, or ""
// when path is root itself. ok is false when path lies outside root.
func RelativeTo(root, path string) (rel string, ok bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
