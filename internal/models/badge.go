package models

import "time"

// Badge metrics that criteria can reference.
const (
	MetricListings      = "listings"
	MetricPosts         = "posts"
	MetricComments      = "comments"
	MetricLikesReceived = "likes_received"
	MetricWishlist      = "wishlist_items"
	MetricSold          = "sold"
)

// BadgeCriteria is satisfied once Metric reaches Threshold.
type BadgeCriteria struct {
	Metric    string `yaml:"metric" json:"metric"`
	Threshold int64  `yaml:"threshold" json:"threshold"`
}

// Badge is a static achievement definition.
type Badge struct {
	ID          string        `yaml:"id" json:"id"`
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description" json:"description"`
	Criteria    BadgeCriteria `yaml:"criteria" json:"criteria"`
}

// BadgeEvent is an immutable ledger entry recording the moment a user first
// satisfied a badge's criteria.
type BadgeEvent struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	UserID      string    `gorm:"not null;uniqueIndex:idx_badge_events_user_badge;size:128" json:"user_id"`
	BadgeID     string    `gorm:"not null;uniqueIndex:idx_badge_events_user_badge;size:64" json:"badge_id"`
	MetricValue int64     `json:"metric_value"`
	EarnedAt    time.Time `gorm:"not null" json:"earned_at"`
}

func (BadgeEvent) TableName() string { return TableBadgeEvents }
