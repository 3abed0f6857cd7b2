package models

import "time"

// User is the single local profile. The app never authenticates: the first
// row is the active user and one is created on first launch if none exists.
type User struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	FirstName string    `gorm:"type:varchar(64)" json:"first_name"`
	LastName  string    `gorm:"type:varchar(64)" json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

func (User) TableName() string { return "users" }

// Demographic is 1:1 with User. Numeric fields are pointers so an absent
// value is stored as NULL, not zero.
type Demographic struct {
	UserID    uint64   `gorm:"primaryKey" json:"user_id"`
	Age       *int     `json:"age"`
	Sex       *string  `gorm:"type:varchar(1);check:sex IN ('M','F','X')" json:"sex"`
	Pregnancy bool     `gorm:"not null;default:false" json:"pregnancy"`
	Lactation bool     `gorm:"not null;default:false" json:"lactation"`
	WeightKg  *float64 `json:"weight_kg"`
	HeightCm  *float64 `json:"height_cm"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Demographic) TableName() string { return "demographics" }
