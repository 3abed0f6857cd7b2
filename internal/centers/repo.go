package centers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/meditech-nic/backend/internal/logger"
	"github.com/meditech-nic/backend/internal/store/redisstore"
)

type Repo struct {
	db       *gorm.DB
	log      *logger.Logger
	cache    *redisstore.Store
	cacheTTL time.Duration
}

func NewRepo(db *gorm.DB, log *logger.Logger) *Repo {
	return &Repo{db: db, log: log.With("repo", "centers")}
}

// WithCache enables the nearby-response cache. The cache is best-effort:
// failures are logged and the store is queried as usual.
func (r *Repo) WithCache(cache *redisstore.Store, ttl time.Duration) *Repo {
	r.cache = cache
	r.cacheTTL = ttl
	return r
}

// UpsertUnit inserts a unit unless one with the same (name, address) exists,
// and returns the id of whichever row ends up representing it.
func (r *Repo) UpsertUnit(ctx context.Context, u *HealthUnit) (uint64, error) {
	u.Name = strings.TrimSpace(u.Name)
	u.Address = strings.TrimSpace(u.Address)
	u.Phone = strings.TrimSpace(u.Phone)
	if u.Type == "" {
		u.Type = "center"
	}
	var id uint64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing HealthUnit
		err := tx.Where("name = ? AND address = ?", u.Name, u.Address).
			First(&existing).Error
		if err == nil {
			id = existing.ID
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		id = u.ID
		return nil
	})
	return id, err
}

// UpsertLocation inserts a location unless (unit, lat, lon) already exists.
func (r *Repo) UpsertLocation(ctx context.Context, loc *ClinicLocation) error {
	if loc.Status == "" {
		loc.Status = StatusActive
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ClinicLocation{}).
			Where("unit_id = ? AND lat = ? AND lon = ?", loc.UnitID, loc.Lat, loc.Lon).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(loc).Error
	})
}

// activeLocation is the join row fed into the ranking step.
type activeLocation struct {
	LocationID uint64   `json:"location_id"`
	UnitID     uint64   `json:"unit_id"`
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	Phone      string   `json:"phone"`
	Type       string   `json:"type"`
	Label      string   `json:"label"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
}

func (r *Repo) listActiveLocations(ctx context.Context) ([]activeLocation, error) {
	var rows []activeLocation
	err := r.db.WithContext(ctx).Raw(`
		SELECT l.id AS location_id, l.label, l.lat, l.lon,
		       u.id AS unit_id, u.name, u.address, u.phone, u.type
		  FROM clinic_locations l
		  JOIN health_units u ON u.id = l.unit_id
		 WHERE l.status = ? AND l.lat IS NOT NULL AND l.lon IS NOT NULL
		 ORDER BY l.id ASC`, StatusActive).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type NearbyOptions struct {
	Limit int
	MaxKm float64
}

type NearbyCenter struct {
	LocationID uint64  `json:"location_id"`
	UnitID     uint64  `json:"unit_id"`
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Phone      string  `json:"phone"`
	Type       string  `json:"type"`
	Label      string  `json:"label"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	DistanceKm float64 `json:"distance_km"`
}

// Nearby ranks active locations by great-circle distance from the query
// point, drops anything beyond MaxKm, and keeps the closest Limit entries.
// No qualifying center is an empty result, not an error.
func (r *Repo) Nearby(ctx context.Context, lat, lon float64, opts NearbyOptions) ([]NearbyCenter, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.MaxKm <= 0 {
		opts.MaxKm = 500
	}

	cacheKey := fmt.Sprintf("nearby:%.4f:%.4f:%d:%.1f", lat, lon, opts.Limit, opts.MaxKm)
	if r.cache != nil {
		var cached []NearbyCenter
		hit, err := r.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			r.log.Warn("nearby cache read failed", "error", err)
		} else if hit {
			return cached, nil
		}
	}

	rows, err := r.listActiveLocations(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]NearbyCenter, 0, len(rows))
	for _, row := range rows {
		d := haversineKm(lat, lon, *row.Lat, *row.Lon)
		if math.IsNaN(d) || math.IsInf(d, 0) || d > opts.MaxKm {
			continue
		}
		out = append(out, NearbyCenter{
			LocationID: row.LocationID,
			UnitID:     row.UnitID,
			Name:       row.Name,
			Address:    row.Address,
			Phone:      row.Phone,
			Type:       row.Type,
			Label:      row.Label,
			Lat:        *row.Lat,
			Lon:        *row.Lon,
			DistanceKm: math.Round(d*100) / 100,
		})
	}
	// Stable keeps original row order on equal distances.
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}

	if r.cache != nil {
		if err := r.cache.SetJSON(ctx, cacheKey, out, r.cacheTTL); err != nil {
			r.log.Warn("nearby cache write failed", "error", err)
		}
	}
	return out, nil
}
