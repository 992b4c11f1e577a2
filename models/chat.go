package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message kinds shared by the flat chat log and session messages.
const (
	MessageTypeText       = "text"
	MessageTypeVoice      = "voice"
	MessageTypeCVAnalysis = "cv_analysis"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// lastMessageRunes is how much of a message the ChatSession.LastMessage
// column keeps.
const lastMessageRunes = 100

// LastMessagePreview returns the first 100 characters of content for the
// denormalized ChatSession.LastMessage column. Counted in runes so
// multi-byte text is never cut mid-character.
func LastMessagePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= lastMessageRunes {
		return content
	}
	return string(runes[:lastMessageRunes])
}

// ChatMessage is one exchange in the flat assistant conversation: the user
// text and the assistant reply in a single row. AudioURL is set only for
// voice exchanges.
type ChatMessage struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	Message   string         `gorm:"type:text;not null" json:"message"`
	Response  string         `gorm:"type:text;not null" json:"response"`
	AudioURL  string         `gorm:"size:500" json:"audioUrl,omitempty"`
	Type      string         `gorm:"size:20;not null;default:'text';check:type IN ('text', 'voice')" json:"type"`
	CreatedAt time.Time      `gorm:"not null;index" json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// ChatSession groups session messages under a title. At most one session is
// active at a time; MessageCount and LastMessage are denormalized and kept
// in step with inserts inside a single transaction.
type ChatSession struct {
	ID           string         `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string         `gorm:"size:255;not null" json:"title"`
	IsActive     bool           `gorm:"not null;default:false;index" json:"isActive"`
	MessageCount int            `gorm:"not null;default:0" json:"messageCount"`
	LastMessage  string         `gorm:"size:255" json:"lastMessage"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Messages []SessionMessage `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// SessionMessage is a single turn inside a ChatSession. Fetches order by
// (created_at, id) so insertion order is reproduced even for same-timestamp
// rows.
type SessionMessage struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID   string         `gorm:"type:uuid;not null;index" json:"sessionId"`
	Role        string         `gorm:"size:20;not null;check:role IN ('user', 'assistant')" json:"role"`
	Content     string         `gorm:"type:text;not null" json:"content"`
	MessageType string         `gorm:"size:20;not null;default:'text';check:message_type IN ('text', 'voice', 'cv_analysis')" json:"messageType"`
	AudioURL    string         `gorm:"size:500" json:"audioUrl,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Session *ChatSession `gorm:"foreignKey:SessionID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (SessionMessage) TableName() string {
	return "session_messages"
}

func (m *SessionMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
