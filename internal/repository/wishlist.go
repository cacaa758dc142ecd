package repository

import (
	"context"

	"softspot/internal/models"
	"softspot/internal/remote"
)

type WishlistRepository interface {
	ListByUser(ctx context.Context, userID string) ([]models.WishlistItem, error)
	GetByID(ctx context.Context, id string) (*models.WishlistItem, error)
}

type wishlistRepository struct {
	client remote.Client
}

func NewWishlistRepository(client remote.Client) WishlistRepository {
	return &wishlistRepository{client: client}
}

func (r *wishlistRepository) ListByUser(ctx context.Context, userID string) ([]models.WishlistItem, error) {
	items := []models.WishlistItem{}
	q := remote.From(models.TableWishlistItems).Eq("user_id", userID).OrderBy("created_at", true).Page(maxLimit, 0)
	if err := r.client.Select(ctx, q, &items); err != nil {
		return nil, wrap(err)
	}
	return items, nil
}

func (r *wishlistRepository) GetByID(ctx context.Context, id string) (*models.WishlistItem, error) {
	return first[models.WishlistItem](ctx, r.client, remote.From(models.TableWishlistItems).Eq("id", id), "Wishlist item", id)
}
