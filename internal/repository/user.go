package repository

import (
	"context"
	"time"

	"softspot/internal/cache"
	"softspot/internal/identity"
	"softspot/internal/models"
	"softspot/internal/remote"
)

// UserRepository covers the users and profiles tables.
type UserRepository interface {
	CreateSafe(ctx context.Context, id identity.Identity) error
	GetByClerkID(ctx context.Context, clerkID string) (*models.User, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	SaveProfile(ctx context.Context, p *models.Profile) error
	SetUsername(ctx context.Context, clerkID, username string) error
}

type userRepository struct {
	client remote.Client
}

func NewUserRepository(client remote.Client) UserRepository {
	return &userRepository{client: client}
}

// CreateSafe calls create_user_safe, which does nothing when the row exists.
func (r *userRepository) CreateSafe(ctx context.Context, id identity.Identity) error {
	return wrap(r.client.RPC(ctx, "create_user_safe", map[string]any{
		"p_clerk_id":   id.UserID,
		"p_username":   id.Username,
		"p_email":      id.Email,
		"p_avatar_url": "",
	}, nil))
}

// GetByClerkID caches found rows only, so a user that is not yet visible is
// looked up again on the next attempt.
func (r *userRepository) GetByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	var user models.User
	if found, err := cache.GetJSON(ctx, cache.UserKey(clerkID), &user); err == nil && found {
		return &user, nil
	}
	u, err := first[models.User](ctx, r.client, remote.From(models.TableUsers).Eq("clerk_id", clerkID), "User", clerkID)
	if err != nil {
		return nil, err
	}
	_ = cache.SetJSON(ctx, cache.UserKey(clerkID), u, cache.UserTTL)
	return u, nil
}

// GetProfile returns an empty profile when the user has not saved one yet.
func (r *userRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	err := cache.CacheAside(ctx, cache.ProfileKey(userID), &profile, cache.ProfileTTL, func(ctx context.Context) error {
		var rows []models.Profile
		if err := r.client.Select(ctx, remote.From(models.TableProfiles).Eq("user_id", userID).Page(1, 0), &rows); err != nil {
			return wrap(err)
		}
		if len(rows) == 0 {
			profile = models.Profile{UserID: userID}
			return nil
		}
		profile = rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *userRepository) SaveProfile(ctx context.Context, p *models.Profile) error {
	p.UpdatedAt = time.Now().UTC()
	if err := r.client.Upsert(ctx, models.TableProfiles, p, "user_id"); err != nil {
		return wrap(err)
	}
	cache.InvalidateProfile(ctx, p.UserID)
	return nil
}

// SetUsername renames the user. A username held by someone else is a conflict.
func (r *userRepository) SetUsername(ctx context.Context, clerkID, username string) error {
	var taken []models.User
	q := remote.From(models.TableUsers).Eq("username", username).Page(1, 0)
	if err := r.client.Select(ctx, q, &taken); err != nil {
		return wrap(err)
	}
	if len(taken) > 0 && taken[0].ClerkID != clerkID {
		return models.NewConflictError("That username is already taken")
	}
	err := r.client.Update(ctx, remote.From(models.TableUsers).Eq("clerk_id", clerkID), map[string]any{"username": username})
	if err != nil {
		return wrap(err)
	}
	cache.Invalidate(ctx, cache.UserKey(clerkID))
	return nil
}
