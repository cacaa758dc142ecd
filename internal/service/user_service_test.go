package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"softspot/internal/identity"
	"softspot/internal/localstore"
	"softspot/internal/models"
	"softspot/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) CreateSafe(ctx context.Context, id identity.Identity) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockUsers) GetByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	args := m.Called(ctx, clerkID)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUsers) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*models.Profile)
	return p, args.Error(1)
}

func (m *mockUsers) SaveProfile(ctx context.Context, p *models.Profile) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockUsers) SetUsername(ctx context.Context, clerkID, username string) error {
	return m.Called(ctx, clerkID, username).Error(0)
}

var _ repository.UserRepository = (*mockUsers)(nil)

func newUserService(t *testing.T, users repository.UserRepository) (*UserService, *[]time.Duration) {
	t.Helper()
	h := newHarness(t, "")
	svc := NewUserService(users, h.local, 3, time.Second)
	var slept []time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return svc, &slept
}

func TestSyncUser_GivesUpAfterThreeAttempts(t *testing.T) {
	users := &mockUsers{}
	id := identity.Identity{UserID: "user_2abc", Username: "bearlover"}
	users.On("CreateSafe", mock.Anything, id).Return(nil)
	users.On("GetByClerkID", mock.Anything, "user_2abc").Return(nil, models.NewNotFoundError("User", "user_2abc"))

	svc, slept := newUserService(t, users)
	_, err := svc.SyncUser(context.Background(), id)
	require.Error(t, err)

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeUserSyncFailed, appErr.Code)
	assert.Equal(t, "Unable to sync your account", appErr.Message)
	assert.True(t, appErr.Retryable)

	users.AssertNumberOfCalls(t, "CreateSafe", 3)
	users.AssertNumberOfCalls(t, "GetByClerkID", 3)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *slept)
}

func TestSyncUser_SucceedsOnceVisible(t *testing.T) {
	users := &mockUsers{}
	id := identity.Identity{UserID: "user_2abc"}
	users.On("CreateSafe", mock.Anything, id).Return(nil)
	users.On("GetByClerkID", mock.Anything, "user_2abc").Return(nil, models.NewNotFoundError("User", "user_2abc")).Once()
	users.On("GetByClerkID", mock.Anything, "user_2abc").Return(&models.User{ClerkID: "user_2abc", Username: "bearlover"}, nil).Once()

	svc, slept := newUserService(t, users)
	user, err := svc.SyncUser(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "bearlover", user.Username)
	assert.Len(t, *slept, 1)
}

func TestSyncUser_StopsWhenCancelled(t *testing.T) {
	users := &mockUsers{}
	users.On("CreateSafe", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	svc, _ := newUserService(t, users)
	svc.sleep = func(context.Context, time.Duration) error { return context.Canceled }
	_, err := svc.SyncUser(context.Background(), identity.Identity{UserID: "u"})
	assert.ErrorIs(t, err, context.Canceled)
	users.AssertNumberOfCalls(t, "CreateSafe", 1)
}

func TestUserService_SessionSlots(t *testing.T) {
	h := newHarness(t, "")
	users := repository.NewUserRepository(h.remote)
	svc := NewUserService(users, h.local, 3, time.Millisecond)
	ctx := identity.With(context.Background(), identity.Identity{UserID: "user_2abc", Username: "bearlover", Email: "b@example.com"})

	session, err := svc.SignIn(ctx)
	require.NoError(t, err)
	assert.True(t, session.SignedIn)
	assert.Equal(t, "user_2abc", session.User.ClerkID)

	current, ok := h.local.UserShim("user_2abc").CurrentIdentity(ctx)
	require.True(t, ok)
	assert.Equal(t, "bearlover", current.Username)

	session, err = svc.Session(ctx)
	require.NoError(t, err)
	assert.True(t, session.SignedIn)
	require.NotNil(t, session.Profile)

	require.NoError(t, svc.SignOut(ctx))
	_, ok = h.local.UserShim("user_2abc").CurrentIdentity(ctx)
	assert.False(t, ok)
	session, err = svc.Session(ctx)
	require.NoError(t, err)
	assert.False(t, session.SignedIn)

	_, err = svc.SignIn(context.Background())
	assert.True(t, models.HasCode(err, models.CodeAuthRequired))
}

func TestUserService_SignedOutCannotWrite(t *testing.T) {
	h := newHarness(t, "")
	svc := NewUserService(repository.NewUserRepository(h.remote), h.local, 3, time.Millisecond)
	ctx := identity.With(context.Background(), identity.Identity{UserID: "user_2abc", Username: "bearlover"})

	_, err := h.posts.AddPost(ctx, feedPost("Bunny"))
	assert.True(t, models.HasCode(err, models.CodeAuthRequired), "a token alone is not a session")

	_, err = svc.SignIn(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.SignOut(ctx))

	post, err := h.posts.AddPost(ctx, feedPost("Bunny"))
	assert.Nil(t, post)
	assert.True(t, models.HasCode(err, models.CodeAuthRequired))
	_, err = h.wishlist.Add(ctx, WishlistInput{Title: "Fox", Priority: models.PriorityHigh})
	assert.True(t, models.HasCode(err, models.CodeAuthRequired))
	_, err = svc.UpdateProfile(ctx, ProfileInput{DisplayName: "Bear Lover", HeaderColor: "#ffb6c1"})
	assert.True(t, models.HasCode(err, models.CodeAuthRequired))

	assert.Zero(t, h.pending())
	posts, _ := localstore.Load[models.Post](ctx, h.local.Shim(), localstore.KindPosts)
	assert.Empty(t, posts)
}

func TestUserService_ProfileAndOnboarding(t *testing.T) {
	h := newHarness(t, "")
	users := repository.NewUserRepository(h.remote)
	svc := NewUserService(users, h.local, 3, time.Millisecond)
	ctx := h.as("user_2abc")
	_, err := svc.SignIn(ctx)
	require.NoError(t, err)

	_, err = svc.UpdateProfile(ctx, ProfileInput{HeaderColor: "red"})
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "display_name")
	assert.Contains(t, appErr.Fields, "header_color")

	profile, err := svc.UpdateProfile(ctx, ProfileInput{DisplayName: "Bear Lover", HeaderColor: "#ffb6c1", FavoriteSpecies: "Bear"})
	require.NoError(t, err)
	assert.Equal(t, "bear", profile.FavoriteSpecies)

	got, err := svc.GetProfile(ctx, "user_2abc")
	require.NoError(t, err)
	assert.Equal(t, "Bear Lover", got.DisplayName)
	assert.False(t, got.OnboardingComplete)

	_, err = svc.CompleteOnboarding(ctx, OnboardingInput{Username: "admin", DisplayName: "B", FavoriteSpecies: "bear"})
	assert.True(t, models.HasCode(err, models.CodeValidation), "reserved usernames are refused")

	profile, err = svc.CompleteOnboarding(ctx, OnboardingInput{Username: "BearLover", DisplayName: "Bear Lover", FavoriteSpecies: "bear"})
	require.NoError(t, err)
	assert.True(t, profile.OnboardingComplete)

	user, err := users.GetByClerkID(ctx, "user_2abc")
	require.NoError(t, err)
	assert.Equal(t, "bearlover", user.Username)
	current, _ := h.local.UserShim("user_2abc").CurrentIdentity(ctx)
	assert.Equal(t, "bearlover", current.Username)

	// Another account cannot claim the same name.
	other := h.as("user_other")
	_, err = svc.SignIn(other)
	require.NoError(t, err)
	_, err = svc.CompleteOnboarding(other, OnboardingInput{Username: "bearlover", DisplayName: "Other", FavoriteSpecies: "fox"})
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "username")
}
