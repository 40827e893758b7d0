package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"imgrelay-server-go/internal/platform/errors"
	"imgrelay-server-go/internal/platform/storage/migrations"
)

// Open opens (creating if needed) the SQLite journal at path and applies
// pending migrations.
func Open(path string) (*gorm.DB, error) {
	const op = "storage.open"

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.KindStorage, op, fmt.Sprintf("failed to create %s", dir), err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "failed to open database", err)
	}

	// SQLite allows a single writer.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "failed to access connection pool", err)
	}
	sqlDB.SetMaxOpenConns(1)

	manager := NewMigrationManager(db)
	manager.AddMigration(&migrations.Migration001RelayEvents{})
	if err := manager.RunMigrations(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
