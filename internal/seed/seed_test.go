package seed

import (
	"context"
	"testing"

	"softspot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openRemote(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.RemoteModels()...))
	return db
}

func TestSeed_CountersMatchRows(t *testing.T) {
	db := openRemote(t)
	sum, err := Seed(context.Background(), db, Options{NumUsers: 5, NumPosts: 30, ListingRatio: 0.5, RandSeed: 42})
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Users)
	assert.Equal(t, 30, sum.Posts)

	var profiles int64
	require.NoError(t, db.Model(&models.Profile{}).Count(&profiles).Error)
	assert.EqualValues(t, 5, profiles, "every user gets a profile")

	var posts []models.Post
	require.NoError(t, db.Find(&posts).Error)
	require.Len(t, posts, 30)

	likes, comments, listings := 0, 0, 0
	for _, p := range posts {
		likes += p.Likes
		comments += p.Comments
		if p.ForSale {
			listings++
			assert.Greater(t, p.Price, 0.0, "listing %s has a price", p.ID)
			assert.NotEmpty(t, p.Condition)
		}
	}
	assert.Equal(t, sum.Listings, listings)

	var likeRows, commentRows int64
	require.NoError(t, db.Model(&models.PostLike{}).Count(&likeRows).Error)
	require.NoError(t, db.Model(&models.Comment{}).Count(&commentRows).Error)
	assert.EqualValues(t, likeRows, likes)
	assert.EqualValues(t, commentRows, comments)
	assert.Equal(t, sum.Likes, likes)
	assert.Equal(t, sum.Comments, comments)
}

func TestSeed_CleanReplacesData(t *testing.T) {
	db := openRemote(t)
	ctx := context.Background()
	_, err := Seed(ctx, db, Options{NumUsers: 3, NumPosts: 5, RandSeed: 1})
	require.NoError(t, err)
	_, err = Seed(ctx, db, Options{NumUsers: 2, NumPosts: 4, ShouldClean: true, RandSeed: 2})
	require.NoError(t, err)

	var users, posts int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	assert.EqualValues(t, 2, users)
	assert.EqualValues(t, 4, posts)
}

func TestSeed_RequiresUsers(t *testing.T) {
	_, err := Seed(context.Background(), openRemote(t), Options{})
	assert.Error(t, err)
}
