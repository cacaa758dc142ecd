package repository

import (
	"context"
	"strings"

	"softspot/internal/cache"
	"softspot/internal/models"
	"softspot/internal/remote"
)

// PostFilter narrows a post read. The same predicate runs remotely as query
// filters and locally through Matches.
type PostFilter struct {
	UserID       string
	ListingsOnly bool
	IncludeSold  bool
	Species      string
	Condition    string
	MinPrice     float64
	MaxPrice     float64
	Limit        int
	Offset       int
}

// Query renders f against the posts table, newest first.
func (f PostFilter) Query() remote.Query {
	q := remote.From(models.TablePosts)
	if f.UserID != "" {
		q = q.Eq("user_id", f.UserID)
	}
	if f.ListingsOnly {
		q = q.Eq("for_sale", true)
		if !f.IncludeSold {
			q = q.Eq("sold", false)
		}
	}
	if f.Species != "" {
		q = q.Eq("species", strings.ToLower(f.Species))
	}
	if f.Condition != "" {
		q = q.Eq("condition", f.Condition)
	}
	if f.MinPrice > 0 {
		q = q.Gte("price", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		q = q.Lte("price", f.MaxPrice)
	}
	limit, offset := clampPage(f.Limit, f.Offset)
	return q.OrderBy("created_at", true).OrderBy("id", true).Page(limit, offset)
}

// Matches reports whether p passes f.
func (f PostFilter) Matches(p models.Post) bool {
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.ListingsOnly {
		if !p.IsListing() {
			return false
		}
		if p.Sold && !f.IncludeSold {
			return false
		}
	}
	if f.Species != "" && !strings.EqualFold(p.Species, f.Species) {
		return false
	}
	if f.Condition != "" && p.Condition != f.Condition {
		return false
	}
	if f.MinPrice > 0 && p.Price < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && p.Price > f.MaxPrice {
		return false
	}
	return true
}

// PostRepository defines the remote reads and direct writes on posts and
// their bids and likes.
type PostRepository interface {
	List(ctx context.Context, f PostFilter) ([]models.Post, error)
	GetByID(ctx context.Context, id string) (*models.Post, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Post, error)
	CountBids(ctx context.Context, listingID string) (int64, error)
	HighestBid(ctx context.Context, listingID string) (float64, error)
	InsertBid(ctx context.Context, bid *models.ListingBid) error
	IsLiked(ctx context.Context, userID, postID string) (bool, error)
}

type postRepository struct {
	client remote.Client
}

// NewPostRepository creates a new post repository
func NewPostRepository(client remote.Client) PostRepository {
	return &postRepository{client: client}
}

func (r *postRepository) List(ctx context.Context, f PostFilter) ([]models.Post, error) {
	posts := []models.Post{}
	if err := r.client.Select(ctx, f.Query(), &posts); err != nil {
		return nil, wrap(err)
	}
	return posts, nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := cache.CacheAside(ctx, cache.ListingKey(id), &post, cache.ListingTTL, func(ctx context.Context) error {
		found, err := first[models.Post](ctx, r.client, remote.From(models.TablePosts).Eq("id", id), "Post", id)
		if err != nil {
			return err
		}
		post = *found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Post, error) {
	posts := []models.Post{}
	if len(ids) == 0 {
		return posts, nil
	}
	if err := r.client.Select(ctx, remote.From(models.TablePosts).In("id", ids), &posts); err != nil {
		return nil, wrap(err)
	}
	return posts, nil
}

func (r *postRepository) CountBids(ctx context.Context, listingID string) (int64, error) {
	n, err := r.client.Count(ctx, remote.From(models.TableListingBids).Eq("listing_id", listingID))
	return n, wrap(err)
}

func (r *postRepository) HighestBid(ctx context.Context, listingID string) (float64, error) {
	var bids []models.ListingBid
	q := remote.From(models.TableListingBids).Eq("listing_id", listingID).OrderBy("amount", true).Page(1, 0)
	if err := r.client.Select(ctx, q, &bids); err != nil {
		return 0, wrap(err)
	}
	if len(bids) == 0 {
		return 0, nil
	}
	return bids[0].Amount, nil
}

func (r *postRepository) InsertBid(ctx context.Context, bid *models.ListingBid) error {
	return wrap(r.client.Insert(ctx, models.TableListingBids, bid))
}

func (r *postRepository) IsLiked(ctx context.Context, userID, postID string) (bool, error) {
	n, err := r.client.Count(ctx, remote.From(models.TablePostLikes).Eq("user_id", userID).Eq("post_id", postID))
	if err != nil {
		return false, wrap(err)
	}
	return n > 0, nil
}

// CacheInvalidator drops cached post rows once their outbox writes are acknowledged.
type CacheInvalidator struct{}

func (CacheInvalidator) Handle(ctx context.Context, e models.OutboxEvent) error {
	if e.Table == models.TablePosts {
		cache.Invalidate(ctx, cache.ListingKey(e.EntityID))
	}
	return nil
}
