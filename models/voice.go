package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VoiceSession status values. A session is active while its WebSocket is
// open, processing while a voice turn is running, and inactive once the
// socket closes or the inactivity sweeper reclaims it.
const (
	VoiceStatusInactive   = "inactive"
	VoiceStatusActive     = "active"
	VoiceStatusProcessing = "processing"
)

// VoiceSession tracks one live voice connection. Token is the
// server-generated identifier sent to the client in session_started; it is
// never an ID the client chose.
type VoiceSession struct {
	ID           string         `gorm:"type:uuid;primaryKey" json:"id"`
	Token        string         `gorm:"uniqueIndex;not null" json:"token"`
	Status       string         `gorm:"size:20;not null;default:'inactive';index;check:status IN ('inactive', 'active', 'processing')" json:"status"`
	LastActivity time.Time      `gorm:"not null" json:"lastActivity"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (VoiceSession) TableName() string {
	return "voice_sessions"
}

func (s *VoiceSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
