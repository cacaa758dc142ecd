// Package seed provides helpers to create demo data in the remote store.
// These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"softspot/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	species    = []string{"bear", "bunny", "cat", "dog", "dragon", "fox", "frog", "penguin", "unicorn", "whale"}
	brands     = []string{"Jellycat", "Squishmallows", "Steiff", "Build-A-Bear", "Ty", "Gund", "Handmade"}
	conditions = []string{"new", "like_new", "good", "fair"}
	sizes      = []string{"mini", "small", "medium", "large", "jumbo"}
	deliveries = []string{models.DeliveryShipping, models.DeliveryPickup, models.DeliveryBoth}
	priorities = []string{models.PriorityLow, models.PriorityMedium, models.PriorityHigh}
)

// Factory builds domain rows and persists them to the remote database.
type Factory struct {
	db      *gorm.DB
	rnd     *rand.Rand
	faker   *gofakeit.Faker
	maxDays int
}

// NewFactory creates a Factory bound to db. A zero seed picks one from the clock.
func NewFactory(db *gorm.DB, seed int64, maxDays int) *Factory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if maxDays <= 0 {
		maxDays = 90
	}
	// #nosec G404: acceptable for seeding
	return &Factory{db: db, rnd: rand.New(rand.NewSource(seed)), faker: gofakeit.New(seed), maxDays: maxDays}
}

func (f *Factory) pick(options []string) string {
	return options[f.rnd.Intn(len(options))]
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// createdAt spreads rows over the last maxDays.
func (f *Factory) createdAt() time.Time {
	back := time.Duration(f.rnd.Intn(f.maxDays*24*60)) * time.Minute
	return time.Now().UTC().Add(-back)
}

// CreateUser persists a user with a matching profile.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	username := strings.ToLower(f.faker.Username()) + fmt.Sprintf("%d", f.faker.Number(100, 999))
	user := &models.User{
		ID:        uuid.New(),
		ClerkID:   "user_" + strings.ReplaceAll(f.faker.UUID(), "-", "")[:24],
		Username:  username,
		Email:     f.faker.Email(),
		AvatarURL: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
		CreatedAt: f.createdAt(),
	}
	for _, override := range overrides {
		override(user)
	}

	profile := &models.Profile{
		UserID:             user.ClerkID,
		DisplayName:        f.faker.FirstName(),
		Bio:                f.faker.Sentence(10),
		Location:           f.faker.City(),
		HeaderColor:        f.faker.HexColor(),
		FavoriteSpecies:    f.pick(species),
		OnboardingComplete: true,
		UpdatedAt:          user.CreatedAt,
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(profile).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// BuildPost constructs a feed post or, with forSale, a marketplace listing.
// It does not persist it.
func (f *Factory) BuildPost(user *models.User, forSale bool, overrides ...func(*models.Post)) *models.Post {
	kind := f.pick(species)
	created := f.createdAt()
	post := &models.Post{
		ID:          uuid.Must(uuid.NewV7()).String(),
		UserID:      user.ClerkID,
		Username:    user.Username,
		Title:       capitalize(f.faker.AdjectiveDescriptive()) + " " + kind,
		Description: f.faker.Sentence(12),
		Content:     f.faker.Paragraph(1, 3, 6, "\n"),
		Image:       fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.faker.UUID()),
		Tags:        datatypes.JSONSlice[string]{kind, f.faker.Color()},
		Species:     kind,
		Brand:       f.pick(brands),
		Color:       strings.ToLower(f.faker.Color()),
		Size:        f.pick(sizes),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	if forSale {
		post.ForSale = true
		post.Price = float64(f.faker.Number(5, 250))
		post.Condition = f.pick(conditions)
		post.DeliveryMethod = f.pick(deliveries)
		if post.DeliveryMethod != models.DeliveryPickup {
			post.DeliveryCost = float64(f.faker.Number(0, 12))
		}
		post.Material = f.pick([]string{"cotton", "minky", "polyester", "wool"})
	}
	for _, override := range overrides {
		override(post)
	}
	return post
}

// CreatePostsBatch persists posts in a single statement.
func (f *Factory) CreatePostsBatch(posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	return f.db.Create(&posts).Error
}

// CreateComment persists a comment by user on post and bumps the post counter.
func (f *Factory) CreateComment(user *models.User, post *models.Post) (*models.Comment, error) {
	comment := &models.Comment{
		ID:        uuid.Must(uuid.NewV7()).String(),
		PostID:    post.ID,
		UserID:    user.ClerkID,
		Username:  user.Username,
		Content:   f.faker.Sentence(8),
		Likes:     datatypes.JSONSlice[models.CommentLike]{},
		CreatedAt: post.CreatedAt.Add(time.Duration(f.rnd.Intn(72)) * time.Hour),
	}
	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("comments", gorm.Expr("comments + 1")).Error
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// CreateLike persists a like from user on post. It reports false when the
// like already existed.
func (f *Factory) CreateLike(user *models.User, post *models.Post) (bool, error) {
	created := false
	err := f.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where(models.PostLike{UserID: user.ClerkID, PostID: post.ID}).
			FirstOrCreate(&models.PostLike{UserID: user.ClerkID, PostID: post.ID, CreatedAt: time.Now().UTC()})
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		created = true
		return tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("likes", gorm.Expr("likes + 1")).Error
	})
	return created && err == nil, err
}

// CreateWishlistItem persists a wanted item for user.
func (f *Factory) CreateWishlistItem(user *models.User) (*models.WishlistItem, error) {
	kind := f.pick(species)
	item := &models.WishlistItem{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    user.ClerkID,
		Title:     fmt.Sprintf("%s %s", f.pick(brands), kind),
		Price:     float64(f.faker.Number(10, 120)),
		Brand:     f.pick(brands),
		Species:   kind,
		Priority:  f.pick(priorities),
		Status:    models.WishlistWanted,
		CreatedAt: f.createdAt(),
	}
	if err := f.db.Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// CreateBid persists a bid from user on listing above the current price.
func (f *Factory) CreateBid(user *models.User, listing *models.Post) (*models.ListingBid, error) {
	bid := &models.ListingBid{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ListingID: listing.ID,
		BidderID:  user.ClerkID,
		Amount:    listing.Price + float64(f.faker.Number(1, 20)),
		CreatedAt: time.Now().UTC(),
	}
	if err := f.db.Create(bid).Error; err != nil {
		return nil, err
	}
	return bid, nil
}
