package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"softspot/internal/forms"
	"softspot/internal/identity"
	"softspot/internal/middleware"
	"softspot/internal/models"
	"softspot/internal/observability"
	"softspot/internal/repository"
)

// UserService correlates identity-provider accounts with remote users and
// owns the device session slots.
type UserService struct {
	users    repository.UserRepository
	local    *Local
	attempts int
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewUserService retries user sync attempts times with a fixed delay.
func NewUserService(users repository.UserRepository, local *Local, attempts int, delay time.Duration) *UserService {
	if attempts <= 0 {
		attempts = 3
	}
	return &UserService{users: users, local: local, attempts: attempts, delay: delay, sleep: sleepContext}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Session is the signed-in state returned to clients.
type Session struct {
	User     *models.User    `json:"user"`
	Profile  *models.Profile `json:"profile,omitempty"`
	SignedIn bool            `json:"signed_in"`
}

// SyncUser makes sure the remote has a users row for id. The row can take a
// moment to become visible after create_user_safe, so the lookup is retried.
func (s *UserService) SyncUser(ctx context.Context, id identity.Identity) (*models.User, error) {
	if id.UserID == "" {
		return nil, models.NewAuthRequiredError()
	}

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		user, err := s.syncOnce(ctx, id)
		if err == nil {
			observability.UserSyncAttempts.WithLabelValues("success").Inc()
			return user, nil
		}
		observability.UserSyncAttempts.WithLabelValues("retry").Inc()
		lastErr = err
		middleware.Logger.WarnContext(ctx, "User sync attempt failed",
			slog.String("user_id", id.UserID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt == s.attempts {
			break
		}
		if err := s.sleep(ctx, s.delay); err != nil {
			return nil, err
		}
	}

	observability.UserSyncAttempts.WithLabelValues("failed").Inc()
	return nil, models.NewUserSyncError(lastErr)
}

func (s *UserService) syncOnce(ctx context.Context, id identity.Identity) (*models.User, error) {
	if err := s.users.CreateSafe(ctx, id); err != nil {
		return nil, err
	}
	return s.users.GetByClerkID(ctx, id.UserID)
}

// SignIn syncs the caller and records them in the device session slots.
func (s *UserService) SignIn(ctx context.Context) (*Session, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.SyncUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if id.Username == "" {
		id.Username = user.Username
	}
	if res := s.local.UserShim(id.UserID).SignIn(ctx, id); !res.Success {
		return nil, models.NewInternalError(res.Err())
	}
	return &Session{User: user, SignedIn: true}, nil
}

// Session reports the caller's session. A caller whose device slots were
// cleared by SignOut is reported signed out.
func (s *UserService) Session(ctx context.Context) (*Session, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := s.local.UserShim(id.UserID).CurrentIdentity(ctx); !ok {
		return &Session{}, nil
	}
	user, err := s.users.GetByClerkID(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	profile, err := s.users.GetProfile(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Profile: profile, SignedIn: true}, nil
}

func (s *UserService) SignOut(ctx context.Context) error {
	id, err := requireIdentity(ctx)
	if err != nil {
		return err
	}
	if res := s.local.UserShim(id.UserID).SignOut(ctx); !res.Success {
		return models.NewInternalError(res.Err())
	}
	return nil
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	return s.users.GetProfile(ctx, userID)
}

type ProfileInput struct {
	DisplayName     string `json:"display_name"`
	Bio             string `json:"bio"`
	Location        string `json:"location"`
	HeaderColor     string `json:"header_color"`
	HeaderImage     string `json:"header_image"`
	FavoriteSpecies string `json:"favorite_species"`
}

// UpdateProfile saves the caller's profile settings.
func (s *UserService) UpdateProfile(ctx context.Context, in ProfileInput) (*models.Profile, error) {
	id, err := requireSession(ctx, s.local)
	if err != nil {
		return nil, err
	}
	if err := forms.ProfileSettings.Check(in); err != nil {
		return nil, err
	}
	profile, err := s.users.GetProfile(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	profile.DisplayName = strings.TrimSpace(in.DisplayName)
	profile.Bio = in.Bio
	profile.Location = in.Location
	profile.HeaderColor = in.HeaderColor
	profile.HeaderImage = in.HeaderImage
	profile.FavoriteSpecies = strings.ToLower(strings.TrimSpace(in.FavoriteSpecies))
	if err := s.users.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

type OnboardingInput struct {
	Username        string `json:"username"`
	DisplayName     string `json:"display_name"`
	FavoriteSpecies string `json:"favorite_species"`
	Bio             string `json:"bio"`
}

// CompleteOnboarding claims a username and fills in the first profile.
func (s *UserService) CompleteOnboarding(ctx context.Context, in OnboardingInput) (*models.Profile, error) {
	id, err := requireSession(ctx, s.local)
	if err != nil {
		return nil, err
	}
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	if err := forms.Onboarding.Check(in); err != nil {
		return nil, err
	}
	if err := s.users.SetUsername(ctx, id.UserID, in.Username); err != nil {
		if models.HasCode(err, models.CodeConflict) {
			return nil, models.NewFieldValidationError(map[string]string{"username": "That username is already taken"})
		}
		return nil, err
	}

	profile, err := s.users.GetProfile(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	profile.DisplayName = strings.TrimSpace(in.DisplayName)
	profile.FavoriteSpecies = strings.ToLower(strings.TrimSpace(in.FavoriteSpecies))
	profile.Bio = in.Bio
	profile.OnboardingComplete = true
	if err := s.users.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}

	id.Username = in.Username
	s.local.UserShim(id.UserID).SignIn(ctx, id)
	return profile, nil
}
