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

import "errors"

// Sentinel errors shared by the engine and its frontends. Engine code wraps
// them with %w; frontends translate them once through vfs.ToErrno.
var (
	ErrNotFound        = errors.New("not found")
	ErrUnsupportedKind = errors.New("unsupported entry kind")
	ErrNotDir          = errors.New("not a directory")
	ErrIsDir           = errors.New("is a directory")
	ErrInvalidPath     = errors.New("invalid path")
	ErrReadOnly        = errors.New("read-only filesystem")
	ErrIO              = errors.New("I/O error")
)
