// Package sqlite implements a SQLite-backed cache driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/docmesh/sharekit/internal/access"
	"github.com/docmesh/sharekit/internal/cache"
)

func init() {
	cache.Register("sqlite", NewDriver)
}

// Settings holds the driver-specific configuration block.
type Settings struct {
	// DataDir is the directory holding the database file.
	DataDir string `mapstructure:"data_dir"`
}

type resourceRow struct {
	Resource  string `gorm:"primaryKey"`
	FetchedAt int64
}

type principalRow struct {
	Resource    string `gorm:"primaryKey;index"`
	Position    int    `gorm:"primaryKey"`
	PrincipalID string
	Kind        string
	Access      int
	DisplayName string
	Locked      bool
}

// Driver implements cache.Cache on a SQLite database.
type Driver struct {
	db *gorm.DB
}

// NewDriver opens (or creates) the database under the configured data_dir
// and runs AutoMigrate.
func NewDriver(settings map[string]any) (cache.Cache, error) {
	var s Settings
	if err := mapstructure.Decode(settings, &s); err != nil {
		return nil, fmt.Errorf("invalid sqlite settings: %w", err)
	}
	if s.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	dbPath := filepath.Join(s.DataDir, "sharekit.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&resourceRow{}, &principalRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Driver{db: db}, nil
}

func (d *Driver) Get(ctx context.Context, resource string) (cache.Snapshot, error) {
	var res resourceRow
	err := d.db.WithContext(ctx).First(&res, "resource = ?", resource).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cache.Snapshot{}, cache.ErrNotFound
	}
	if err != nil {
		return cache.Snapshot{}, err
	}

	var rows []principalRow
	if err := d.db.WithContext(ctx).
		Where("resource = ?", resource).
		Order("position").
		Find(&rows).Error; err != nil {
		return cache.Snapshot{}, err
	}

	snap := cache.Snapshot{
		Resource:   resource,
		FetchedAt:  time.Unix(res.FetchedAt, 0).UTC(),
		Principals: make([]access.PrincipalRef, 0, len(rows)),
	}
	for _, row := range rows {
		snap.Principals = append(snap.Principals, access.PrincipalRef{
			ID:          access.PrincipalID(row.PrincipalID),
			Kind:        access.PrincipalKind(row.Kind),
			Access:      access.Level(row.Access),
			DisplayName: row.DisplayName,
			Locked:      row.Locked,
		})
	}
	return snap, nil
}

func (d *Driver) Put(ctx context.Context, snap cache.Snapshot) error {
	rows := make([]principalRow, 0, len(snap.Principals))
	for i, p := range snap.Principals {
		rows = append(rows, principalRow{
			Resource:    snap.Resource,
			Position:    i,
			PrincipalID: string(p.ID),
			Kind:        string(p.Kind),
			Access:      int(p.Access),
			DisplayName: p.DisplayName,
			Locked:      p.Locked,
		})
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("resource = ?", snap.Resource).Delete(&principalRow{}).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return tx.Save(&resourceRow{
			Resource:  snap.Resource,
			FetchedAt: snap.FetchedAt.Unix(),
		}).Error
	})
}

func (d *Driver) Delete(ctx context.Context, resource string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("resource = ?", resource).Delete(&principalRow{}).Error; err != nil {
			return err
		}
		return tx.Where("resource = ?", resource).Delete(&resourceRow{}).Error
	})
}

func (d *Driver) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
