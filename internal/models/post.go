// Package models contains data structures for the application's domain models.
package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Delivery methods accepted on a listing.
const (
	DeliveryShipping = "shipping"
	DeliveryPickup   = "pickup"
	DeliveryBoth     = "both"
)

// Post is a feed post. With ForSale set it doubles as a marketplace listing.
type Post struct {
	ID             string                      `gorm:"primaryKey;size:64" json:"id"`
	UserID         string                      `gorm:"not null;index;size:128" json:"user_id"`
	Username       string                      `json:"username"`
	Title          string                      `gorm:"not null" json:"title"`
	Description    string                      `gorm:"type:text" json:"description"`
	Content        string                      `gorm:"type:text" json:"content"`
	Image          string                      `json:"image"`
	Tags           datatypes.JSONSlice[string] `json:"tags"`
	Price          float64                     `json:"price"`
	ForSale        bool                        `gorm:"index" json:"for_sale"`
	Condition      string                      `json:"condition"`
	Brand          string                      `json:"brand"`
	Material       string                      `json:"material"`
	Color          string                      `json:"color"`
	Species        string                      `gorm:"index" json:"species"`
	Size           string                      `json:"size"`
	DeliveryMethod string                      `json:"delivery_method"`
	DeliveryCost   float64                     `json:"delivery_cost"`
	Sold           bool                        `json:"sold"`
	Likes          int                         `gorm:"not null;default:0" json:"likes"`
	Comments       int                         `gorm:"not null;default:0" json:"comments"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

func (Post) TableName() string { return TablePosts }

// RecordID is the id the local slots and the outbox key the post by.
func (p Post) RecordID() string { return p.ID }

// IsListing reports whether the post belongs to the marketplace read path.
func (p Post) IsListing() bool { return p.ForSale }

// UnmarshalJSON accepts the legacy timestamp aliases written by older clients
// ("timestamp", "createdAt", "updatedAt") alongside created_at.
func (p *Post) UnmarshalJSON(data []byte) error {
	type plain Post
	aux := struct {
		*plain
		Timestamp       *time.Time `json:"timestamp"`
		CreatedAtLegacy *time.Time `json:"createdAt"`
		UpdatedAtLegacy *time.Time `json:"updatedAt"`
		ForSaleLegacy   *bool      `json:"forSale"`
		UserIDLegacy    *string    `json:"userId"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		switch {
		case aux.CreatedAtLegacy != nil:
			p.CreatedAt = *aux.CreatedAtLegacy
		case aux.Timestamp != nil:
			p.CreatedAt = *aux.Timestamp
		}
	}
	if p.UpdatedAt.IsZero() && aux.UpdatedAtLegacy != nil {
		p.UpdatedAt = *aux.UpdatedAtLegacy
	}
	if aux.ForSaleLegacy != nil && !p.ForSale {
		p.ForSale = *aux.ForSaleLegacy
	}
	if p.UserID == "" && aux.UserIDLegacy != nil {
		p.UserID = *aux.UserIDLegacy
	}
	return nil
}

// PostLike is one row of the relation behind Post.Likes.
type PostLike struct {
	UserID    string    `gorm:"primaryKey;size:128" json:"user_id"`
	PostID    string    `gorm:"primaryKey;size:64" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (PostLike) TableName() string { return TablePostLikes }

// ListingBid is an offer of money against a listing. Any bid freezes the listing.
type ListingBid struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	ListingID string    `gorm:"not null;index;size:64" json:"listing_id"`
	BidderID  string    `gorm:"not null;size:128" json:"bidder_id"`
	Amount    float64   `gorm:"not null" json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

func (ListingBid) TableName() string { return TableListingBids }
