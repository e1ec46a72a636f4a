package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// BunDB wraps a Bun database instance for type-safe queries.
type BunDB struct {
	*bun.DB
}

// NewBunDB wraps an existing *sql.DB with Bun's type-safe query builder.
func NewBunDB(sqlDB *sql.DB) *BunDB {
	return &BunDB{DB: bun.NewDB(sqlDB, sqlitedialect.New())}
}

// GetSchemaInfo retrieves a schema info value by key.
func (db *BunDB) GetSchemaInfo(ctx context.Context, key string) (string, error) {
	var info SchemaInfoModel
	err := db.NewSelect().
		Model(&info).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return info.Value, nil
}

// UpsertMount inserts a mount row, replacing any row for the same
// mountpoint.
func (db *BunDB) UpsertMount(ctx context.Context, m *MountModel) error {
	_, err := db.NewInsert().
		Model(m).
		On("CONFLICT (mountpoint) DO UPDATE").
		Set("id = EXCLUDED.id").
		Set("backing = EXCLUDED.backing").
		Set("transport = EXCLUDED.transport").
		Set("pid = EXCLUDED.pid").
		Set("started_at = EXCLUDED.started_at").
		Exec(ctx)
	return err
}

// DeleteMount deletes a mount row by id.
func (db *BunDB) DeleteMount(ctx context.Context, id string) (int64, error) {
	result, err := db.NewDelete().
		Model((*MountModel)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListMounts retrieves all mount rows ordered by mountpoint.
func (db *BunDB) ListMounts(ctx context.Context) ([]MountModel, error) {
	var rows []MountModel
	err := db.NewSelect().
		Model(&rows).
		Order("mountpoint").
		Scan(ctx)
	return rows, err
}

// GetMountByMountpoint returns the row for mountpoint, or nil.
func (db *BunDB) GetMountByMountpoint(ctx context.Context, mountpoint string) (*MountModel, error) {
	var row MountModel
	err := db.NewSelect().
		Model(&row).
		Where("mountpoint = ?", mountpoint).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
