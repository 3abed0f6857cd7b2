package centers

// HealthUnit is a catalog row for a hospital or health center.
// Uniqueness is by (name, address); see db.EnsureCatalogIndexes.
type HealthUnit struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name    string `gorm:"type:varchar(192);not null" json:"name"`
	Address string `gorm:"type:varchar(255)" json:"address"`
	Phone   string `gorm:"type:varchar(64)" json:"phone"`
	Type    string `gorm:"type:varchar(32)" json:"type"`
}

func (HealthUnit) TableName() string { return "health_units" }

// ClinicLocation is a geolocated service point of a unit (fixed entrance or
// mobile clinic position). Uniqueness is by (unit, lat, lon).
type ClinicLocation struct {
	ID       uint64   `gorm:"primaryKey;autoIncrement" json:"id"`
	UnitID   uint64   `gorm:"index;not null" json:"unit_id"`
	Label    string   `gorm:"type:varchar(128)" json:"label"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Status   string   `gorm:"type:varchar(32)" json:"status"`

	Unit HealthUnit `gorm:"foreignKey:UnitID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ClinicLocation) TableName() string { return "clinic_locations" }

const StatusActive = "active"
