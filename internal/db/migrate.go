package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/meditech-nic/backend/internal/centers"
	"github.com/meditech-nic/backend/internal/chat"
	"github.com/meditech-nic/backend/internal/models"
	"github.com/meditech-nic/backend/internal/profile"
	"github.com/meditech-nic/backend/internal/screening"
)

// AutoMigrateAll creates or updates every table, parents before dependents
// so FK constraints resolve.
func AutoMigrateAll(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		// identity
		&models.User{},
		&models.Demographic{},

		// catalogs + per-user associations
		&profile.Allergy{},
		&profile.Condition{},
		&profile.UserAllergy{},
		&profile.UserCondition{},

		// conversation log + audit
		&chat.Conversation{},
		&chat.Message{},
		&chat.Job{},
		&screening.Recommendation{},

		// health centers
		&centers.HealthUnit{},
		&centers.ClinicLocation{},
	)
}

type schemaMigration struct {
	Version   int `gorm:"primaryKey"`
	Name      string
	AppliedAt time.Time
}

func (schemaMigration) TableName() string { return "schema_migrations" }

type migration struct {
	version int
	name    string
	run     func(tx *gorm.DB) error
}

// Each step must be idempotent: the version ledger skips applied steps on a
// healthy store, but a step interrupted mid-way will be re-run on restart.
var migrations = []migration{
	{
		version: 1,
		name:    "demographics: add height_cm",
		run: func(tx *gorm.DB) error {
			if tx.Migrator().HasColumn(&models.Demographic{}, "height_cm") {
				return nil
			}
			return tx.Migrator().AddColumn(&models.Demographic{}, "height_cm")
		},
	},
	{
		version: 2,
		name:    "catalogs: dedupe names and install unique indexes",
		run:     ensureCatalogIndexes,
	},
	{
		version: 3,
		name:    "centers: install unique indexes",
		run:     ensureCenterIndexes,
	},
}

// Migrate applies the ordered migration list, recording each applied version
// in schema_migrations. Re-running on a migrated store is a no-op.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&schemaMigration{}); err != nil {
		return fmt.Errorf("db: migrate ledger: %w", err)
	}
	for _, m := range migrations {
		var count int64
		if err := gdb.Model(&schemaMigration{}).Where("version = ?", m.version).Count(&count).Error; err != nil {
			return fmt.Errorf("db: check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		err := gdb.Transaction(func(tx *gorm.DB) error {
			if err := m.run(tx); err != nil {
				return err
			}
			return tx.Create(&schemaMigration{
				Version:   m.version,
				Name:      m.name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("db: migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// Setup is the startup path: ensure schema, then run versioned migrations.
func Setup(gdb *gorm.DB) error {
	if err := AutoMigrateAll(gdb); err != nil {
		return fmt.Errorf("db: automigrate: %w", err)
	}
	return Migrate(gdb)
}

// EnsureCatalogIndexes removes duplicate catalog rows, keeping the lowest id
// per normalized name, then installs unique indexes on the normalized name so
// later duplicates are rejected at insert time. Safe to run repeatedly and
// against catalogs that have no duplicates.
func EnsureCatalogIndexes(gdb *gorm.DB) error {
	return gdb.Transaction(ensureCatalogIndexes)
}

func ensureCatalogIndexes(tx *gorm.DB) error {
	for _, table := range []string{"allergies", "conditions"} {
		// The derived table keeps MySQL happy about deleting from a table
		// referenced in the subquery.
		del := fmt.Sprintf(`
			DELETE FROM %s
			 WHERE id NOT IN (
				SELECT id FROM (
					SELECT MIN(id) AS id FROM %s GROUP BY lower(trim(name))
				) AS keep
			 )`, table, table)
		if err := tx.Exec(del).Error; err != nil {
			return fmt.Errorf("dedupe %s: %w", table, err)
		}
		idx := fmt.Sprintf("ux_%s_name", table)
		if err := createExpressionUniqueIndex(tx, table, idx, "lower(trim(name))"); err != nil {
			return err
		}
	}
	return nil
}

func ensureCenterIndexes(tx *gorm.DB) error {
	if err := createUniqueIndex(tx, "health_units", "ux_health_units_name_address", "name, address"); err != nil {
		return err
	}
	return createUniqueIndex(tx, "clinic_locations", "ux_clinic_locations_unit_lat_lon", "unit_id, lat, lon")
}

func createUniqueIndex(tx *gorm.DB, table, name, columns string) error {
	if tx.Dialector.Name() == "mysql" {
		if tx.Migrator().HasIndex(table, name) {
			return nil
		}
		return tx.Exec(fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)", name, table, columns)).Error
	}
	return tx.Exec(fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, columns)).Error
}

func createExpressionUniqueIndex(tx *gorm.DB, table, name, expr string) error {
	if tx.Dialector.Name() == "mysql" {
		if tx.Migrator().HasIndex(table, name) {
			return nil
		}
		// MySQL functional indexes need the extra parentheses.
		return tx.Exec(fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s ((%s))", name, table, expr)).Error
	}
	return tx.Exec(fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, expr)).Error
}
