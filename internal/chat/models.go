package chat

import (
	"time"

	"github.com/meditech-nic/backend/internal/models"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	StatusOpen = "open"
)

// Conversation is created lazily on the first outgoing message of a session.
type Conversation struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"not null;index:idx_conversations_user_created,priority:1" json:"-"`
	Reason    string    `gorm:"type:varchar(128)" json:"reason"`
	Status    string    `gorm:"type:varchar(32)" json:"status"`
	CreatedAt time.Time `gorm:"index:idx_conversations_user_created,priority:2" json:"created_at"`

	User models.User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Conversation) TableName() string { return "conversations" }

// Message ordering within a conversation is by id, not wall-clock time,
// so clock skew can never reorder history.
type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64    `gorm:"index;not null" json:"conversation_id"`
	Role           string    `gorm:"type:varchar(16);not null;check:role IN ('user','assistant')" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `json:"created_at"`

	Conversation Conversation `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Message) TableName() string { return "messages" }
