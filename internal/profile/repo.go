package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meditech-nic/backend/internal/logger"
	"github.com/meditech-nic/backend/internal/models"
)

const (
	// Defaults recorded on first activation of an allergy; preserved on
	// every re-activation afterwards.
	defaultSeverity = "media"
	defaultReaction = ""

	// First-time condition activations start out active.
	StatusActive = "Active"
)

type Repo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepo(db *gorm.DB, log *logger.Logger) *Repo {
	return &Repo{db: db, log: log.With("repo", "profile")}
}

// EnsureLocalUser returns the id of the single local user, creating the
// default profile on first launch.
func (r *Repo) EnsureLocalUser(ctx context.Context) (uint64, error) {
	var u models.User
	err := r.db.WithContext(ctx).Order("id ASC").First(&u).Error
	if err == nil {
		return u.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	u = models.User{FirstName: "Local", LastName: "User"}
	if err := r.db.WithContext(ctx).Create(&u).Error; err != nil {
		return 0, err
	}
	r.log.Info("created local user", "user_id", u.ID)
	return u.ID, nil
}

// AllergyState is a catalog allergy joined with the user's activation flag.
type AllergyState struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

// ListAllergiesWithState returns the full catalog; entries the user never
// activated come back with Active=false (left join semantics).
func (r *Repo) ListAllergiesWithState(ctx context.Context, userID uint64) ([]AllergyState, error) {
	var out []AllergyState
	err := r.db.WithContext(ctx).Raw(`
		SELECT a.id, a.name, a.type,
		       CASE WHEN ua.allergy_id IS NOT NULL THEN 1 ELSE 0 END AS active
		  FROM allergies a
		  LEFT JOIN user_allergies ua
		    ON ua.allergy_id = a.id AND ua.user_id = ?
		 ORDER BY a.name ASC`, userID).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetAllergy activates or deactivates an allergy for the user. Activation is
// insert-if-missing: severity and reaction recorded at first activation
// survive a deactivate/reactivate round-trip of the catalog row.
func (r *Repo) SetAllergy(ctx context.Context, userID, allergyID uint64, active bool) error {
	if !active {
		return r.db.WithContext(ctx).
			Where("user_id = ? AND allergy_id = ?", userID, allergyID).
			Delete(&UserAllergy{}).Error
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing UserAllergy
		err := tx.Where("user_id = ? AND allergy_id = ?", userID, allergyID).
			First(&existing).Error
		if err == nil {
			return nil // already active, keep recorded severity/reaction
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&UserAllergy{
			UserID:    userID,
			AllergyID: allergyID,
			Severity:  defaultSeverity,
			Reaction:  defaultReaction,
		}).Error
	})
}

// ActiveAllergy is the shape handed to the assistant as patient context.
type ActiveAllergy struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (r *Repo) GetActiveAllergies(ctx context.Context, userID uint64) ([]ActiveAllergy, error) {
	var out []ActiveAllergy
	err := r.db.WithContext(ctx).Raw(`
		SELECT a.id, a.name, a.type
		  FROM allergies a
		  JOIN user_allergies ua ON ua.allergy_id = a.id
		 WHERE ua.user_id = ?
		 ORDER BY a.name ASC`, userID).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HasActiveAllergy reports whether the user has an active allergy with the
// given catalog name. Used by the screening rules.
func (r *Repo) HasActiveAllergy(ctx context.Context, userID uint64, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("user_allergies ua").
		Joins("JOIN allergies a ON a.id = ua.allergy_id").
		Where("ua.user_id = ? AND a.name LIKE ?", userID, name).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type ConditionState struct {
	ID          uint64     `json:"id"`
	Name        string     `json:"name"`
	Active      bool       `json:"active"`
	Status      *string    `json:"status"`
	DiagnosedAt *time.Time `json:"diagnosed_at"`
}

func (r *Repo) ListConditionsWithState(ctx context.Context, userID uint64) ([]ConditionState, error) {
	var out []ConditionState
	err := r.db.WithContext(ctx).Raw(`
		SELECT c.id, c.name,
		       CASE WHEN uc.condition_id IS NOT NULL THEN 1 ELSE 0 END AS active,
		       uc.status, uc.diagnosed_at
		  FROM conditions c
		  LEFT JOIN user_conditions uc
		    ON uc.condition_id = c.id AND uc.user_id = ?
		 ORDER BY c.name ASC`, userID).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

type ActiveCondition struct {
	ID          uint64     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	DiagnosedAt *time.Time `json:"diagnosed_at"`
}

// ListActiveConditions returns the user's current conditions. Rows whose
// status was cleared are treated as active, matching the original store.
func (r *Repo) ListActiveConditions(ctx context.Context, userID uint64) ([]ActiveCondition, error) {
	var out []ActiveCondition
	err := r.db.WithContext(ctx).Raw(`
		SELECT c.id, c.name, uc.status, uc.diagnosed_at
		  FROM conditions c
		  JOIN user_conditions uc ON uc.condition_id = c.id
		 WHERE uc.user_id = ? AND (uc.status IS NULL OR uc.status = '' OR uc.status = ?)
		 ORDER BY c.name ASC`, userID, StatusActive).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetCondition mirrors SetAllergy, with an explicitly settable status. The
// diagnosis date and status of a previous activation are preserved.
func (r *Repo) SetCondition(ctx context.Context, userID, conditionID uint64, active bool, status string) error {
	if !active {
		return r.db.WithContext(ctx).
			Where("user_id = ? AND condition_id = ?", userID, conditionID).
			Delete(&UserCondition{}).Error
	}
	if status == "" {
		status = StatusActive
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing UserCondition
		err := tx.Where("user_id = ? AND condition_id = ?", userID, conditionID).
			First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		now := time.Now().UTC()
		return tx.Create(&UserCondition{
			UserID:      userID,
			ConditionID: conditionID,
			DiagnosedAt: &now,
			Status:      status,
		}).Error
	})
}

// CreateAllergy inserts a catalog entry unless one with the same normalized
// name exists. Duplicate attempts are no-ops, not errors.
func (r *Repo) CreateAllergy(ctx context.Context, name, typ string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	typ = strings.TrimSpace(typ)
	if typ == "" {
		typ = "medication"
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Allergy{}).
			Where("lower(trim(name)) = ?", strings.ToLower(name)).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(&Allergy{Name: name, Type: typ}).Error
	})
}

func (r *Repo) CreateCondition(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Condition{}).
			Where("lower(trim(name)) = ?", strings.ToLower(name)).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(&Condition{Name: name}).Error
	})
}

// UpsertDemographics replaces the whole demographic row: insert if absent,
// overwrite every field otherwise. Never a partial merge.
func (r *Repo) UpsertDemographics(ctx context.Context, d *models.Demographic) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(d).Error
}

func (r *Repo) GetDemographics(ctx context.Context, userID uint64) (*models.Demographic, error) {
	var d models.Demographic
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// PatientProfile bundles everything the UI and the assistant context need.
type PatientProfile struct {
	Allergies    []ActiveAllergy     `json:"allergies"`
	Conditions   []ActiveCondition   `json:"conditions"`
	Demographics *models.Demographic `json:"demographics"`
}

func (r *Repo) GetPatientProfile(ctx context.Context, userID uint64) (*PatientProfile, error) {
	allergies, err := r.GetActiveAllergies(ctx, userID)
	if err != nil {
		return nil, err
	}
	conditions, err := r.ListActiveConditions(ctx, userID)
	if err != nil {
		return nil, err
	}
	demo, err := r.GetDemographics(ctx, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &PatientProfile{
		Allergies:    allergies,
		Conditions:   conditions,
		Demographics: demo,
	}, nil
}
