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

package vfs

import (
	"errors"
	"syscall"

	"markdownfs/internal/common"
)

// Errno values reported to the mount
var (
	ENOENT  = syscall.ENOENT  // No such file or directory
	ENOTDIR = syscall.ENOTDIR // Not a directory
	EISDIR  = syscall.EISDIR  // Is a directory
	EIO     = syscall.EIO     // I/O error
	EROFS   = syscall.EROFS   // Read-only file system
)

// ToErrno translates an engine error into the errno reported to the caller.
// Unsupported and hidden entries are invisible, so they map to ENOENT like
// missing ones.
func ToErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrUnsupportedKind):
		return ENOENT
	case errors.Is(err, common.ErrNotDir):
		return ENOTDIR
	case errors.Is(err, common.ErrIsDir):
		return EISDIR
	case errors.Is(err, common.ErrReadOnly):
		return EROFS
	default:
		return EIO
	}
}
