package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sign-in providers accepted for a User account.
const (
	ProviderEmail   = "email"
	ProviderGoogle  = "google"
	ProviderTwitter = "twitter"
	ProviderWallet  = "wallet"
)

type User struct {
	ID            string         `gorm:"type:uuid;primaryKey" json:"id"`
	Email         *string        `gorm:"uniqueIndex" json:"email,omitempty"`
	Password      string         `gorm:"size:255" json:"-"` // Hashed password (empty for external providers)
	FullName      string         `gorm:"size:255" json:"fullName,omitempty"`
	AvatarURL     string         `gorm:"size:500" json:"avatarUrl,omitempty"`
	Provider      string         `gorm:"size:50;not null;default:'email';check:provider IN ('email', 'google', 'twitter', 'wallet')" json:"provider"`
	ProviderID    string         `gorm:"size:255;index" json:"-"`
	WalletAddress *string        `gorm:"uniqueIndex" json:"walletAddress,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	RefreshTokens []RefreshToken `gorm:"foreignKey:UserID" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

type RefreshToken struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string         `gorm:"type:uuid;not null;index" json:"userId"`
	Token     string         `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time      `gorm:"not null" json:"expiresAt"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
