package models

import "time"

// Notification kinds.
const (
	NotifyComment      = "comment"
	NotifyLike         = "like"
	NotifyBid          = "bid"
	NotifyTradeRequest = "trade_request"
	NotifyTradeUpdate  = "trade_update"
	NotifyBadge        = "badge"
)

type Notification struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"not null;index;size:128" json:"user_id"`
	Kind      string    `gorm:"not null" json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	RefID     string    `json:"ref_id"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

func (Notification) TableName() string { return TableNotifications }
