package db

import (
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/meditech-nic/backend/internal/models"
	"github.com/meditech-nic/backend/internal/profile"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	gdb, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return gdb
}

func TestSetup_IsIdempotent(t *testing.T) {
	gdb := openTestDB(t)

	require.NoError(t, Setup(gdb))
	require.NoError(t, Setup(gdb))

	// every versioned step recorded exactly once
	var count int64
	require.NoError(t, gdb.Model(&schemaMigration{}).Count(&count).Error)
	require.EqualValues(t, len(migrations), count)

	require.True(t, gdb.Migrator().HasColumn(&models.Demographic{}, "height_cm"))
}

func TestMigrate_DedupesCatalogs(t *testing.T) {
	gdb := openTestDB(t)
	require.NoError(t, AutoMigrateAll(gdb))

	// duplicates that differ only in case and padding, inserted before the
	// unique index exists
	require.NoError(t, gdb.Create(&profile.Allergy{Name: "Penicillin", Type: "medication"}).Error)
	require.NoError(t, gdb.Create(&profile.Allergy{Name: " penicillin ", Type: "medication"}).Error)
	require.NoError(t, gdb.Create(&profile.Allergy{Name: "PENICILLIN", Type: "medication"}).Error)
	require.NoError(t, gdb.Create(&profile.Condition{Name: "Asthma"}).Error)
	require.NoError(t, gdb.Create(&profile.Condition{Name: "asthma"}).Error)

	require.NoError(t, Migrate(gdb))

	var survivors []profile.Allergy
	require.NoError(t, gdb.Order("id ASC").Find(&survivors).Error)
	require.Len(t, survivors, 1)
	// lowest id wins
	require.EqualValues(t, 1, survivors[0].ID)
	require.Equal(t, "Penicillin", survivors[0].Name)

	var conditions int64
	require.NoError(t, gdb.Model(&profile.Condition{}).Count(&conditions).Error)
	require.EqualValues(t, 1, conditions)

	// index now rejects new duplicates at insert time
	err := gdb.Create(&profile.Allergy{Name: "  PeNiCiLlIn", Type: "medication"}).Error
	require.Error(t, err)
}

func TestMigrate_CenterIndexesRejectDuplicates(t *testing.T) {
	gdb := openTestDB(t)
	require.NoError(t, Setup(gdb))

	require.NoError(t, gdb.Exec(
		"INSERT INTO health_units (name, address, phone, type) VALUES (?, ?, ?, ?)",
		"Hospital A", "Street 1", "", "hospital").Error)
	err := gdb.Exec(
		"INSERT INTO health_units (name, address, phone, type) VALUES (?, ?, ?, ?)",
		"Hospital A", "Street 1", "", "hospital").Error
	require.Error(t, err)
}
