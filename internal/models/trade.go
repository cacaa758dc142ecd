package models

import (
	"time"

	"gorm.io/datatypes"
)

// Trade request statuses. Only pending requests can change status.
const (
	TradePending   = "pending"
	TradeAccepted  = "accepted"
	TradeDeclined  = "declined"
	TradeCancelled = "cancelled"
)

// TradeRequest offers one or more of the sender's posts in exchange for a listing.
type TradeRequest struct {
	ID             string                      `gorm:"primaryKey;size:64" json:"id"`
	FromUserID     string                      `gorm:"not null;index;size:128" json:"from_user_id"`
	ToUserID       string                      `gorm:"not null;index;size:128" json:"to_user_id"`
	ListingID      string                      `gorm:"not null;size:64" json:"listing_id"`
	OfferedPostIDs datatypes.JSONSlice[string] `json:"offered_post_ids"`
	Message        string                      `gorm:"type:text" json:"message"`
	Status         string                      `gorm:"not null;default:pending" json:"status"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

func (TradeRequest) TableName() string { return TableTradeRequests }
