package seed

import (
	"context"
	"fmt"
	"log/slog"

	"softspot/internal/middleware"
	"softspot/internal/models"

	"gorm.io/gorm"
)

// Options configure the seeder.
type Options struct {
	NumUsers     int
	NumPosts     int
	ListingRatio float64 // share of posts created as marketplace listings
	ShouldClean  bool
	RandSeed     int64
	MaxDays      int
}

// DefaultOptions seed a small but lively marketplace.
func DefaultOptions() Options {
	return Options{NumUsers: 20, NumPosts: 120, ListingRatio: 0.5, ShouldClean: true}
}

// Summary counts what Seed created.
type Summary struct {
	Users     int
	Posts     int
	Listings  int
	Comments  int
	Likes     int
	Wishlists int
	Bids      int
}

// Seed populates the remote database with demo data.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Summary, error) {
	if opts.NumUsers <= 0 {
		return nil, fmt.Errorf("seed needs at least one user, got %d", opts.NumUsers)
	}
	db = db.WithContext(ctx)
	middleware.Logger.Info("Starting database seeding",
		slog.Int("users", opts.NumUsers), slog.Int("posts", opts.NumPosts))

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			return nil, fmt.Errorf("failed to clear existing data: %w", err)
		}
	}

	f := NewFactory(db, opts.RandSeed, opts.MaxDays)
	sum := &Summary{}

	users := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		u, err := f.CreateUser()
		if err != nil {
			return nil, fmt.Errorf("failed to create users: %w", err)
		}
		users = append(users, u)
	}
	sum.Users = len(users)

	posts := make([]*models.Post, 0, opts.NumPosts)
	for i := 0; i < opts.NumPosts; i++ {
		author := users[f.rnd.Intn(len(users))]
		forSale := f.rnd.Float64() < opts.ListingRatio
		posts = append(posts, f.BuildPost(author, forSale))
		if forSale {
			sum.Listings++
		}
	}
	if err := f.CreatePostsBatch(posts); err != nil {
		return nil, fmt.Errorf("failed to create posts: %w", err)
	}
	sum.Posts = len(posts)

	for _, p := range posts {
		for i := f.rnd.Intn(4); i > 0; i-- {
			if _, err := f.CreateComment(users[f.rnd.Intn(len(users))], p); err != nil {
				return nil, fmt.Errorf("failed to create comments: %w", err)
			}
			sum.Comments++
		}
		for i := f.rnd.Intn(6); i > 0; i-- {
			created, err := f.CreateLike(users[f.rnd.Intn(len(users))], p)
			if err != nil {
				return nil, fmt.Errorf("failed to create likes: %w", err)
			}
			if created {
				sum.Likes++
			}
		}
		// A few listings get a bid so the edit lock shows up in the demo.
		if p.ForSale && f.rnd.Intn(5) == 0 {
			bidder := users[f.rnd.Intn(len(users))]
			if bidder.ClerkID != p.UserID {
				if _, err := f.CreateBid(bidder, p); err != nil {
					return nil, fmt.Errorf("failed to create bids: %w", err)
				}
				sum.Bids++
			}
		}
	}

	for _, u := range users {
		for i := f.rnd.Intn(3); i > 0; i-- {
			if _, err := f.CreateWishlistItem(u); err != nil {
				return nil, fmt.Errorf("failed to create wishlist items: %w", err)
			}
			sum.Wishlists++
		}
	}

	middleware.Logger.Info("Database seeding completed",
		slog.Int("users", sum.Users),
		slog.Int("posts", sum.Posts),
		slog.Int("listings", sum.Listings),
		slog.Int("comments", sum.Comments))
	return sum, nil
}

// clearData empties the seeded tables, children first.
func clearData(db *gorm.DB) error {
	middleware.Logger.Info("Clearing existing data")
	tables := []any{
		&models.BadgeEvent{},
		&models.TradeRequest{},
		&models.Notification{},
		&models.ListingBid{},
		&models.PostLike{},
		&models.Comment{},
		&models.WishlistItem{},
		&models.Post{},
		&models.Profile{},
		&models.User{},
	}
	for _, t := range tables {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(t).Error; err != nil {
			return err
		}
	}
	return nil
}
