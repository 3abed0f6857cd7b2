package centers

import (
	"context"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/meditech-nic/backend/internal/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&HealthUnit{}, &ClinicLocation{}))
	return db
}

func addUnit(t *testing.T, r *Repo, name string, lat, lon float64, status string) uint64 {
	t.Helper()
	ctx := context.Background()
	id, err := r.UpsertUnit(ctx, &HealthUnit{Name: name, Address: name + " address", Type: "hospital"})
	require.NoError(t, err)
	require.NoError(t, r.UpsertLocation(ctx, &ClinicLocation{
		UnitID: id, Label: "main", Lat: &lat, Lon: &lon, Status: status,
	}))
	return id
}

// Query point in central Managua; used by all ranking assertions below.
const (
	queryLat = 12.1364
	queryLon = -86.2514
)

func TestNearby_OrdersByDistance(t *testing.T) {
	db := openTestDB(t)
	r := NewRepo(db, logger.NewNop())

	addUnit(t, r, "Far hospital", 12.9272, -85.9170, StatusActive)   // Matagalpa, ~95 km
	addUnit(t, r, "Near center", 12.1399, -86.2784, StatusActive)    // ~3 km
	addUnit(t, r, "Mid hospital", 12.1106, -86.2599, StatusActive)   // ~3 km south
	addUnit(t, r, "Leon hospital", 12.4356, -86.8796, StatusActive)  // ~75 km

	got, err := r.Nearby(context.Background(), queryLat, queryLon, NearbyOptions{})
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1].DistanceKm, got[i].DistanceKm,
			"results must be sorted ascending by distance")
	}
	require.Equal(t, "Far hospital", got[len(got)-1].Name)
}

func TestNearby_FiltersByMaxKmAndStatus(t *testing.T) {
	db := openTestDB(t)
	r := NewRepo(db, logger.NewNop())

	addUnit(t, r, "Near center", 12.1399, -86.2784, StatusActive)
	addUnit(t, r, "Closed center", 12.1380, -86.2700, "inactive")
	addUnit(t, r, "Far hospital", 12.9272, -85.9170, StatusActive)

	got, err := r.Nearby(context.Background(), queryLat, queryLon, NearbyOptions{MaxKm: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Near center", got[0].Name)
	require.LessOrEqual(t, got[0].DistanceKm, 10.0)
}

func TestNearby_SkipsRowsWithoutCoordinates(t *testing.T) {
	db := openTestDB(t)
	r := NewRepo(db, logger.NewNop())
	ctx := context.Background()

	id, err := r.UpsertUnit(ctx, &HealthUnit{Name: "No coords", Address: "somewhere"})
	require.NoError(t, err)
	require.NoError(t, db.Create(&ClinicLocation{UnitID: id, Status: StatusActive}).Error)
	addUnit(t, r, "Near center", 12.1399, -86.2784, StatusActive)

	got, err := r.Nearby(ctx, queryLat, queryLon, NearbyOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Near center", got[0].Name)
}

func TestNearby_TruncatesToLimit(t *testing.T) {
	db := openTestDB(t)
	r := NewRepo(db, logger.NewNop())

	for i := 0; i < 5; i++ {
		addUnit(t, r, fmt.Sprintf("Center %d", i), 12.13+float64(i)*0.01, -86.25, StatusActive)
	}

	got, err := r.Nearby(context.Background(), queryLat, queryLon, NearbyOptions{Limit: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestUpsertUnit_DeduplicatesByNameAddress(t *testing.T) {
	db := openTestDB(t)
	r := NewRepo(db, logger.NewNop())
	ctx := context.Background()

	first, err := r.UpsertUnit(ctx, &HealthUnit{Name: "Hospital A", Address: "Street 1"})
	require.NoError(t, err)
	second, err := r.UpsertUnit(ctx, &HealthUnit{Name: "Hospital A", Address: "Street 1"})
	require.NoError(t, err)
	require.Equal(t, first, second)

	var count int64
	require.NoError(t, db.Model(&HealthUnit{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSeedNicaraguaOnce_SkipsPopulatedDirectory(t *testing.T) {
	db := openTestDB(t)
	r := NewRepo(db, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, r.SeedNicaraguaOnce(ctx))

	var units int64
	require.NoError(t, db.Model(&HealthUnit{}).Count(&units).Error)
	require.EqualValues(t, len(nicaraguaUnits), units)

	// a second boot never re-seeds, even after operator edits
	require.NoError(t, db.Where("name = ?", "Centro de Salud Altagracia").Delete(&HealthUnit{}).Error)
	require.NoError(t, r.SeedNicaraguaOnce(ctx))

	require.NoError(t, db.Model(&HealthUnit{}).Count(&units).Error)
	require.EqualValues(t, len(nicaraguaUnits)-1, units)
}

func TestHaversine_KnownDistance(t *testing.T) {
	// Managua to León is roughly 75 km as the crow flies.
	d := haversineKm(12.1364, -86.2514, 12.4356, -86.8796)
	require.InDelta(t, 75, d, 5)

	require.Zero(t, haversineKm(12.0, -86.0, 12.0, -86.0))
}
