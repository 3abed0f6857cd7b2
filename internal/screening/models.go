package screening

import (
	"time"

	"github.com/meditech-nic/backend/internal/chat"
	"github.com/meditech-nic/backend/internal/models"
)

const (
	SeverityHigh = "high"
	SeverityLow  = "low"

	ActionProhibit = "prohibit"
	ActionMonitor  = "monitor"

	SourceLocalRule = "local rule"
)

// Recommendation is the append-only audit trail of every screening decision,
// blocking or not. Exactly one row is written per screened suggestion.
type Recommendation struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64    `gorm:"index;not null" json:"conversation_id"`
	UserID         uint64    `gorm:"index;not null" json:"-"`
	Description    string    `gorm:"type:text" json:"description"`
	Severity       string    `gorm:"type:varchar(16)" json:"severity"`
	Action         string    `gorm:"type:varchar(16)" json:"action"`
	Source         string    `gorm:"type:varchar(32)" json:"source"`
	CreatedAt      time.Time `json:"created_at"`

	Conversation chat.Conversation `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
	User         models.User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Recommendation) TableName() string { return "recommendations" }
