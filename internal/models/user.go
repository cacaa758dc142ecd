package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the remote row correlated with an identity-provider account.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClerkID   string    `gorm:"uniqueIndex;not null;size:128" json:"clerk_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

func (User) TableName() string { return TableUsers }

// Profile holds extended per-user settings, including header customization.
type Profile struct {
	UserID             string    `gorm:"primaryKey;size:128" json:"user_id"`
	DisplayName        string    `json:"display_name"`
	Bio                string    `gorm:"type:text" json:"bio"`
	Location           string    `json:"location"`
	HeaderColor        string    `json:"header_color"`
	HeaderImage        string    `json:"header_image"`
	FavoriteSpecies    string    `json:"favorite_species"`
	OnboardingComplete bool      `json:"onboarding_complete"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (Profile) TableName() string { return TableProfiles }
