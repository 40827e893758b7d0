package storage

import (
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"imgrelay-server-go/internal/platform/errors"
)

// Migration is one versioned schema change. Versions sort lexically, so
// they carry a zero-padded numeric prefix.
type Migration interface {
	Version() string
	Description() string
	Up(db *gorm.DB) error
	Down(db *gorm.DB) error
}

// MigrationRecord marks an applied migration in schema_migrations.
type MigrationRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Version   string    `gorm:"uniqueIndex;not null"`
	Name      string    `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// MigrationManager applies registered migrations in version order, once each.
type MigrationManager struct {
	db         *gorm.DB
	migrations map[string]Migration
}

func NewMigrationManager(db *gorm.DB) *MigrationManager {
	return &MigrationManager{db: db, migrations: make(map[string]Migration)}
}

// AddMigration registers m. A second migration with the same version
// replaces the first.
func (m *MigrationManager) AddMigration(migration Migration) {
	m.migrations[migration.Version()] = migration
}

func (m *MigrationManager) ordered() []Migration {
	out := make([]Migration, 0, len(m.migrations))
	for _, mig := range m.migrations {
		out = append(out, mig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version() < out[j].Version() })
	return out
}

func (m *MigrationManager) applied() (map[string]bool, error) {
	if err := m.db.AutoMigrate(&MigrationRecord{}); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migration.create_table", "failed to create schema_migrations", err)
	}
	var versions []string
	if err := m.db.Model(&MigrationRecord{}).Pluck("version", &versions).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migration.applied", "failed to read applied migrations", err)
	}
	set := make(map[string]bool, len(versions))
	for _, v := range versions {
		set[v] = true
	}
	return set, nil
}

// Pending lists registered versions not yet applied, in the order
// RunMigrations would apply them.
func (m *MigrationManager) Pending() ([]string, error) {
	done, err := m.applied()
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, mig := range m.ordered() {
		if !done[mig.Version()] {
			pending = append(pending, mig.Version())
		}
	}
	return pending, nil
}

// RunMigrations applies each pending migration in its own transaction and
// stops at the first failure.
func (m *MigrationManager) RunMigrations() error {
	done, err := m.applied()
	if err != nil {
		return err
	}

	for _, mig := range m.ordered() {
		if done[mig.Version()] {
			continue
		}
		err := m.db.Transaction(func(tx *gorm.DB) error {
			if err := mig.Up(tx); err != nil {
				return errors.Wrap(errors.KindStorage, "migration.up",
					fmt.Sprintf("migration %s (%s) failed", mig.Version(), mig.Description()), err)
			}
			return tx.Create(&MigrationRecord{
				Version:   mig.Version(),
				Name:      mig.Description(),
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return errors.Wrap(errors.KindStorage, "migration.run", "schema migration aborted", err)
		}
	}
	return nil
}

// RollbackMigration reverts one applied migration and forgets its record.
func (m *MigrationManager) RollbackMigration(version string) error {
	target, ok := m.migrations[version]
	if !ok {
		return errors.New(errors.KindStorage, "migration.not_registered", fmt.Sprintf("migration %s not registered", version))
	}

	var record MigrationRecord
	if err := m.db.Where("version = ?", version).First(&record).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New(errors.KindStorage, "migration.not_applied", fmt.Sprintf("migration %s not applied", version))
		}
		return errors.Wrap(errors.KindStorage, "migration.find_record", "failed to find migration record", err)
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		if err := target.Down(tx); err != nil {
			return errors.Wrap(errors.KindStorage, "migration.down", fmt.Sprintf("failed to roll back %s", version), err)
		}
		return tx.Delete(&record).Error
	})
}

// GetMigrationHistory lists applied migrations, newest first.
func (m *MigrationManager) GetMigrationHistory() ([]MigrationRecord, error) {
	var records []MigrationRecord
	if err := m.db.Order("applied_at DESC, id DESC").Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migration.history", "failed to get migration history", err)
	}
	return records, nil
}
