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


package storage

import (
	"time"

	"github.com/uptrace/bun"
)

// SchemaInfoModel represents the schema_info table
type SchemaInfoModel struct {
	bun.BaseModel `bun:"table:schema_info"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// MountModel represents the mounts table.
type MountModel struct {
	bun.BaseModel `bun:"table:mounts"`

	ID         string `bun:"id,pk"`
	Backing    string `bun:"backing,notnull"`
	Mountpoint string `bun:"mountpoint,notnull,unique"`
	Transport  string `bun:"transport,notnull"`
	PID        int64  `bun:"pid,notnull"`
	StartedAt  int64  `bun:"started_at,notnull"` // Unix timestamp
}

// ToMount converts a MountModel to a Mount.
func (m *MountModel) ToMount() Mount {
	return Mount{
		ID:         m.ID,
		Backing:    m.Backing,
		Mountpoint: m.Mountpoint,
		Transport:  m.Transport,
		PID:        int(m.PID),
		StartedAt:  time.Unix(m.StartedAt, 0),
	}
}

// MountModelFrom converts a Mount to its row.
func MountModelFrom(m Mount) *MountModel {
	return &MountModel{
		ID:         m.ID,
		Backing:    m.Backing,
		Mountpoint: m.Mountpoint,
		Transport:  m.Transport,
		PID:        int64(m.PID),
		StartedAt:  m.StartedAt.Unix(),
	}
}
