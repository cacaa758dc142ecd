package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { SetClient(nil) })
	return mr
}

type cachedProfile struct {
	UserID string `json:"user_id"`
	Bio    string `json:"bio"`
}

func TestJSONRoundTripAndTTL(t *testing.T) {
	mr := setupMiniRedis(t)
	ctx := context.Background()

	require.NoError(t, SetJSON(ctx, ProfileKey("u1"), cachedProfile{UserID: "u1", Bio: "bears"}, ProfileTTL))

	var got cachedProfile
	found, err := GetJSON(ctx, ProfileKey("u1"), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "bears", got.Bio)

	mr.FastForward(ProfileTTL + time.Second)
	found, err = GetJSON(ctx, ProfileKey("u1"), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheAside(t *testing.T) {
	setupMiniRedis(t)
	ctx := context.Background()
	calls := 0
	fetch := func(dest *cachedProfile) func(context.Context) error {
		return func(context.Context) error {
			calls++
			*dest = cachedProfile{UserID: "u2", Bio: "bunnies"}
			return nil
		}
	}

	var first cachedProfile
	require.NoError(t, CacheAside(ctx, ProfileKey("u2"), &first, ProfileTTL, fetch(&first)))
	var second cachedProfile
	require.NoError(t, CacheAside(ctx, ProfileKey("u2"), &second, ProfileTTL, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "bunnies", second.Bio)

	InvalidateProfile(ctx, "u2")
	var third cachedProfile
	require.NoError(t, CacheAside(ctx, ProfileKey("u2"), &third, ProfileTTL, fetch(&third)))
	assert.Equal(t, 2, calls)
}

func TestCacheAside_FetchErrorNotCached(t *testing.T) {
	mr := setupMiniRedis(t)
	boom := errors.New("remote down")

	var dest cachedProfile
	err := CacheAside(context.Background(), BadgeLedgerKey("u3"), &dest, BadgeLedgerTTL, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(BadgeLedgerKey("u3")))
}

func TestHelpersWithoutRedis(t *testing.T) {
	SetClient(nil)
	ctx := context.Background()

	found, err := GetJSON(ctx, UserKey("x"), &cachedProfile{})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, SetJSON(ctx, UserKey("x"), 1, UserTTL))
	Invalidate(ctx, UserKey("x"))

	var dest cachedProfile
	require.NoError(t, CacheAside(ctx, UserKey("x"), &dest, UserTTL, func(context.Context) error {
		dest.UserID = "x"
		return nil
	}))
	assert.Equal(t, "x", dest.UserID)
}

func TestInitRedis_Unreachable(t *testing.T) {
	assert.Nil(t, InitRedis(""))
	assert.Nil(t, InitRedis("redis://%%bad"))
	assert.Nil(t, GetClient())
}

func TestInitRedis_Connects(t *testing.T) {
	mr := miniredis.RunT(t)
	c := InitRedis(mr.Addr())
	t.Cleanup(func() { SetClient(nil) })
	require.NotNil(t, c)
	assert.Same(t, c, GetClient())
}
