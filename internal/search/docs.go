package search

import (
	"time"

	"softspot/internal/models"
)

// ListingDoc is the indexed form of a listing.
type ListingDoc struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Species     string    `json:"species"`
	Condition   string    `json:"condition"`
	Brand       string    `json:"brand"`
	Size        string    `json:"size"`
	Price       float64   `json:"price"`
	Sold        bool      `json:"sold"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Image       string    `json:"image"`
	CreatedAt   time.Time `json:"created_at"`
}

// BuildListingDoc maps a post to its document.
func BuildListingDoc(p models.Post) ListingDoc {
	tags := []string(p.Tags)
	if tags == nil {
		tags = []string{}
	}
	return ListingDoc{
		Title:       p.Title,
		Description: p.Description,
		Tags:        tags,
		Species:     p.Species,
		Condition:   p.Condition,
		Brand:       p.Brand,
		Size:        p.Size,
		Price:       p.Price,
		Sold:        p.Sold,
		UserID:      p.UserID,
		Username:    p.Username,
		Image:       p.Image,
		CreatedAt:   p.CreatedAt,
	}
}

// docFields lists the post columns that appear in ListingDoc.
var docFields = map[string]bool{
	"title": true, "description": true, "tags": true, "species": true,
	"condition": true, "brand": true, "size": true, "price": true,
	"sold": true, "user_id": true, "username": true, "image": true, "created_at": true,
}

// partialDoc keeps only indexed columns of an update.
func partialDoc(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if docFields[k] {
			out[k] = v
		}
	}
	return out
}
