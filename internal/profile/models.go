package profile

import (
	"time"

	"github.com/meditech-nic/backend/internal/models"
)

// Allergy and Condition are global catalogs shared across users. Names are
// unique after normalization (trim + lower); see db.EnsureCatalogIndexes.
type Allergy struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"type:varchar(128);not null" json:"name"`
	Type string `gorm:"type:varchar(64)" json:"type"`
}

func (Allergy) TableName() string { return "allergies" }

type Condition struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"type:varchar(128);not null" json:"name"`
}

func (Condition) TableName() string { return "conditions" }

// UserAllergy marks an allergy active for the user. Presence of the row is
// the activation flag; deleting it deactivates without touching the catalog.
type UserAllergy struct {
	UserID    uint64 `gorm:"primaryKey" json:"user_id"`
	AllergyID uint64 `gorm:"primaryKey" json:"allergy_id"`
	Severity  string `gorm:"type:varchar(32)" json:"severity"`
	Reaction  string `gorm:"type:text" json:"reaction"`

	User    models.User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Allergy Allergy     `gorm:"foreignKey:AllergyID;constraint:OnDelete:CASCADE" json:"-"`
}

func (UserAllergy) TableName() string { return "user_allergies" }

type UserCondition struct {
	UserID        uint64     `gorm:"primaryKey" json:"user_id"`
	ConditionID   uint64     `gorm:"primaryKey" json:"condition_id"`
	DiagnosedAt   *time.Time `json:"diagnosed_at"`
	Status        string     `gorm:"type:varchar(32)" json:"status"`

	User      models.User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Condition Condition   `gorm:"foreignKey:ConditionID;constraint:OnDelete:CASCADE" json:"-"`
}

func (UserCondition) TableName() string { return "user_conditions" }
