package migrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/mwantia/docvault/pkg/db/models"
	"github.com/mwantia/docvault/pkg/log"
	"gorm.io/gorm"
)

// ErrNothingToRollback is returned by Rollback on a schema without applied
// migrations.
var ErrNothingToRollback = errors.New("no applied migrations")

// Migration is one versioned schema step. Up runs inside a transaction
// together with the history update. Down runs on its own, since SQLite
// ignores PRAGMA foreign_keys inside a transaction and dropping tables
// depends on it.
type Migration struct {
	Version     int
	Description string
	Up          func(*gorm.DB) error
	Down        func(*gorm.DB) error
}

type MigrationStatus struct {
	Version     int
	Description string
	Applied     bool
}

type migrationHistory struct {
	ID          uint   `gorm:"primaryKey"`
	Version     int    `gorm:"uniqueIndex;not null"`
	Description string `gorm:"type:text"`
	AppliedAt   int64  `gorm:"autoCreateTime"`
}

type Migrator struct {
	db         *gorm.DB
	log        log.LoggerService
	migrations []Migration
}

func NewMigrator(db *gorm.DB, logger log.LoggerService) *Migrator {
	if logger == nil {
		logger = log.Discard()
	}
	return &Migrator{
		db:         db,
		log:        logger,
		migrations: schema,
	}
}

// Migrate applies every pending migration in version order.
func (m *Migrator) Migrate(ctx context.Context) error {
	pending, err := m.Pending(ctx)
	if err != nil {
		return err
	}

	for _, migration := range pending {
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Create(&migrationHistory{
				Version:     migration.Version,
				Description: migration.Description,
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}
		m.log.Info("Applied migration %d: %s", migration.Version, migration.Description)
	}

	return nil
}

// Rollback reverts the most recently applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureHistory(ctx); err != nil {
		return err
	}

	var last migrationHistory
	err := m.db.WithContext(ctx).Order("version DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNothingToRollback
	}
	if err != nil {
		return fmt.Errorf("failed to query migration history: %w", err)
	}

	migration, ok := m.find(last.Version)
	if !ok {
		return fmt.Errorf("migration %d is not known to this build", last.Version)
	}

	db := m.db.WithContext(ctx)
	if err := migration.Down(db); err != nil {
		return fmt.Errorf("rollback of migration %d failed: %w", last.Version, err)
	}
	if err := db.Delete(&last).Error; err != nil {
		return fmt.Errorf("failed to record rollback of migration %d: %w", last.Version, err)
	}

	m.log.Warn("Rolled back migration %d: %s", migration.Version, migration.Description)
	return nil
}

func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, len(m.migrations))
	for i, migration := range m.migrations {
		statuses[i] = MigrationStatus{
			Version:     migration.Version,
			Description: migration.Description,
			Applied:     applied[migration.Version],
		}
	}
	return statuses, nil
}

func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, migration := range m.migrations {
		if !applied[migration.Version] {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]bool, error) {
	if err := m.ensureHistory(ctx); err != nil {
		return nil, err
	}

	var versions []int
	if err := m.db.WithContext(ctx).Model(&migrationHistory{}).Pluck("version", &versions).Error; err != nil {
		return nil, fmt.Errorf("failed to query migration history: %w", err)
	}

	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func (m *Migrator) ensureHistory(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&migrationHistory{}); err != nil {
		return fmt.Errorf("failed to create migration history table: %w", err)
	}
	return nil
}

func (m *Migrator) find(version int) (Migration, bool) {
	for _, migration := range m.migrations {
		if migration.Version == version {
			return migration, true
		}
	}
	return Migration{}, false
}

var schema = []Migration{
	{
		Version:     1,
		Description: "documents, pages and tags",
		Up: func(db *gorm.DB) error {
			return db.AutoMigrate(
				&models.Document{},
				&models.Page{},
				&models.Tag{},
				&models.DocumentTag{},
			)
		},
		Down: func(db *gorm.DB) error {
			return db.Migrator().DropTable(
				&models.DocumentTag{},
				&models.Tag{},
				&models.Page{},
				&models.Document{},
			)
		},
	},
	{
		Version:     2,
		Description: "index documents by folder and update time",
		Up: func(db *gorm.DB) error {
			return db.Exec("CREATE INDEX IF NOT EXISTS idx_documents_folder_updated ON documents (folder_id, updated_at DESC)").Error
		},
		Down: func(db *gorm.DB) error {
			return db.Exec("DROP INDEX IF EXISTS idx_documents_folder_updated").Error
		},
	},
}
