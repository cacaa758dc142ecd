package repository

import (
	"context"

	"softspot/internal/cache"
	"softspot/internal/models"
	"softspot/internal/remote"
)

// BadgeRepository reads the metrics badges are judged on and owns the
// append-only badge ledger.
type BadgeRepository interface {
	Metrics(ctx context.Context, userID string) (map[string]int64, error)
	Ledger(ctx context.Context, userID string) ([]models.BadgeEvent, error)
	Append(ctx context.Context, e *models.BadgeEvent) (bool, error)
}

type badgeRepository struct {
	client remote.Client
}

func NewBadgeRepository(client remote.Client) BadgeRepository {
	return &badgeRepository{client: client}
}

func (r *badgeRepository) count(ctx context.Context, q remote.Query) (int64, error) {
	n, err := r.client.Count(ctx, q)
	return n, wrap(err)
}

func (r *badgeRepository) Metrics(ctx context.Context, userID string) (map[string]int64, error) {
	queries := map[string]remote.Query{
		models.MetricPosts:    remote.From(models.TablePosts).Eq("user_id", userID),
		models.MetricListings: remote.From(models.TablePosts).Eq("user_id", userID).Eq("for_sale", true),
		models.MetricSold:     remote.From(models.TablePosts).Eq("user_id", userID).Eq("sold", true),
		models.MetricComments: remote.From(models.TableComments).Eq("user_id", userID),
		models.MetricWishlist: remote.From(models.TableWishlistItems).Eq("user_id", userID),
	}
	out := make(map[string]int64, len(queries)+1)
	for metric, q := range queries {
		n, err := r.count(ctx, q)
		if err != nil {
			return nil, err
		}
		out[metric] = n
	}

	// Likes received is the sum of the counters on the user's posts.
	var posts []struct {
		Likes int64 `json:"likes"`
	}
	q := remote.From(models.TablePosts).Eq("user_id", userID)
	if err := r.client.Select(ctx, q, &posts); err != nil {
		return nil, wrap(err)
	}
	var likes int64
	for _, p := range posts {
		likes += p.Likes
	}
	out[models.MetricLikesReceived] = likes
	return out, nil
}

func (r *badgeRepository) Ledger(ctx context.Context, userID string) ([]models.BadgeEvent, error) {
	events := []models.BadgeEvent{}
	err := cache.CacheAside(ctx, cache.BadgeLedgerKey(userID), &events, cache.BadgeLedgerTTL, func(ctx context.Context) error {
		q := remote.From(models.TableBadgeEvents).Eq("user_id", userID).OrderBy("earned_at", true).Page(maxLimit, 0)
		return wrap(r.client.Select(ctx, q, &events))
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Append inserts e and reports false when the user already earned the badge.
func (r *badgeRepository) Append(ctx context.Context, e *models.BadgeEvent) (bool, error) {
	err := r.client.Insert(ctx, models.TableBadgeEvents, e)
	if IsConflict(err) {
		return false, nil
	}
	if err != nil {
		return false, wrap(err)
	}
	cache.InvalidateBadgeLedger(ctx, e.UserID)
	return true, nil
}
