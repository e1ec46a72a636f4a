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

package util

import (
	"context"
	"time"
)

// PollConfig bounds PollUntil. Zero fields take the defaults below.
type PollConfig struct {
	Timeout  time.Duration
	Interval time.Duration
}

const (
	defaultPollTimeout  = 5 * time.Second
	defaultPollInterval = 50 * time.Millisecond
)

// PollUntil evaluates condition immediately and then on every interval
// until it holds, the timeout passes or ctx is done. It returns nil once
// the condition holds and the context error otherwise.
func PollUntil(ctx context.Context, cfg PollConfig, condition func() bool) error {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPollTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}
	if condition() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
