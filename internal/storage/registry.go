// Package storage keeps the registry of active mounts in a SQLite file.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	_ "github.com/tursodatabase/go-libsql"

	"markdownfs/internal/util"
)

// Transport names recorded in the registry.
const (
	TransportFUSE = "fuse"
	TransportNFS  = "nfs"
)

// Mount is one active mount session.
type Mount struct {
	ID         string
	Backing    string
	Mountpoint string
	Transport  string
	PID        int
	StartedAt  time.Time
}

// Registry is the SQLite-backed list of active mounts. Nothing in it is
// read back by the filesystem engine.
type Registry struct {
	path    string
	db      *sql.DB
	bunDB   *BunDB
	isAlive func(pid int) bool
}

// OpenRegistry opens the registry at path, creating the file and schema
// when missing.
func OpenRegistry(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := sql.Open("libsql", BuildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := execStatements(db, registrySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err := execStatements(db, initRegistry, SchemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}

	bunDB := NewBunDB(db)
	fileType, err := bunDB.GetSchemaInfo(context.Background(), "type")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema info: %w", err)
	}
	if fileType != "registry" {
		db.Close()
		return nil, fmt.Errorf("not a registry file (type=%s)", fileType)
	}

	return &Registry{
		path:    path,
		db:      db,
		bunDB:   bunDB,
		isAlive: util.IsProcessRunning,
	}, nil
}

// Close closes the database connection
func (r *Registry) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Path returns the file path
func (r *Registry) Path() string {
	return r.path
}

// Add records m, replacing any earlier row for the same mountpoint.
func (r *Registry) Add(ctx context.Context, m Mount) error {
	if m.ID == "" || m.Mountpoint == "" {
		return fmt.Errorf("mount needs an id and a mountpoint")
	}
	if m.StartedAt.IsZero() {
		m.StartedAt = time.Now()
	}
	err := util.Retry(ctx, func() error {
		return r.bunDB.UpsertMount(ctx, MountModelFrom(m))
	}, util.DatabaseRetryOptions(ctx)...)
	if err != nil {
		return fmt.Errorf("failed to register mount %s: %w", m.Mountpoint, err)
	}
	log.Debugf("[Registry] added %s: %s → %s (%s, pid %d)", m.ID, m.Backing, m.Mountpoint, m.Transport, m.PID)
	return nil
}

// Remove deletes the row with the given session id. Removing an unknown id
// is not an error.
func (r *Registry) Remove(ctx context.Context, id string) error {
	rows, err := util.RetryWithResult(ctx, func() (int64, error) {
		return r.bunDB.DeleteMount(ctx, id)
	}, util.DatabaseRetryOptions(ctx)...)
	if err != nil {
		return fmt.Errorf("failed to deregister mount %s: %w", id, err)
	}
	log.Debugf("[Registry] removed %s (%d rows)", id, rows)
	return nil
}

// List returns every recorded mount ordered by mountpoint.
func (r *Registry) List(ctx context.Context) ([]Mount, error) {
	rows, err := r.bunDB.ListMounts(ctx)
	if err != nil {
		return nil, err
	}
	mounts := make([]Mount, len(rows))
	for i := range rows {
		mounts[i] = rows[i].ToMount()
	}
	return mounts, nil
}

// Lookup returns the mount recorded for mountpoint, or nil.
func (r *Registry) Lookup(ctx context.Context, mountpoint string) (*Mount, error) {
	row, err := r.bunDB.GetMountByMountpoint(ctx, mountpoint)
	if err != nil || row == nil {
		return nil, err
	}
	m := row.ToMount()
	return &m, nil
}

// Prune removes rows whose serving process is gone and returns them.
func (r *Registry) Prune(ctx context.Context) ([]Mount, error) {
	mounts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var stale []Mount
	for _, m := range mounts {
		if r.isAlive(m.PID) {
			continue
		}
		if err := r.Remove(ctx, m.ID); err != nil {
			return stale, err
		}
		log.Infof("[Registry] pruned stale mount %s (pid %d gone)", m.Mountpoint, m.PID)
		stale = append(stale, m)
	}
	return stale, nil
}

// Active prunes stale rows and returns the remaining mounts.
func (r *Registry) Active(ctx context.Context) ([]Mount, error) {
	if _, err := r.Prune(ctx); err != nil {
		return nil, err
	}
	return r.List(ctx)
}
