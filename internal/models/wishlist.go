package models

import "time"

// Wishlist priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Wishlist statuses.
const (
	WishlistWanted   = "wanted"
	WishlistAcquired = "acquired"
	WishlistGivenUp  = "given_up"
)

// WishlistItem is a plushie a user wants. PlushieID may point at a post that no
// longer exists.
type WishlistItem struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"not null;index;size:128" json:"user_id"`
	PlushieID string    `gorm:"size:64" json:"plushie_id"`
	Title     string    `json:"title"`
	Image     string    `json:"image"`
	Price     float64   `json:"price"`
	Brand     string    `json:"brand"`
	Species   string    `json:"species"`
	Priority  string    `gorm:"not null;default:medium" json:"priority"`
	Status    string    `gorm:"not null;default:wanted" json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (WishlistItem) TableName() string { return TableWishlistItems }

func (w WishlistItem) RecordID() string { return w.ID }

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ValidWishlistStatus reports whether s is a known status.
func ValidWishlistStatus(s string) bool {
	switch s {
	case WishlistWanted, WishlistAcquired, WishlistGivenUp:
		return true
	}
	return false
}
