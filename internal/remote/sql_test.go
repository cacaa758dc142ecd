package remote

import (
	"context"
	"testing"
	"time"

	"softspot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newSQLite(t *testing.T) *SQL {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.RemoteModels()...))
	return NewSQL(db)
}

func seedPosts(t *testing.T, c Client) {
	t.Helper()
	now := time.Now().UTC()
	rows := []models.Post{
		{ID: "p1", UserID: "alice", Title: "Brown Bear", ForSale: true, Price: 10, Species: "bear", Tags: []string{"vintage"}, CreatedAt: now.Add(-3 * time.Minute)},
		{ID: "p2", UserID: "alice", Title: "Bunny", ForSale: false, Species: "rabbit", CreatedAt: now.Add(-2 * time.Minute)},
		{ID: "p3", UserID: "bob", Title: "Polar Bear", ForSale: true, Price: 25, Species: "bear", CreatedAt: now.Add(-time.Minute)},
	}
	for _, p := range rows {
		require.NoError(t, c.Insert(context.Background(), models.TablePosts, p))
	}
}

func TestSQL_SelectFilters(t *testing.T) {
	c := newSQLite(t)
	seedPosts(t, c)
	ctx := context.Background()

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"for sale newest first", From(models.TablePosts).Eq("for_sale", true).OrderBy("created_at", true), []string{"p3", "p1"}},
		{"not for sale", From(models.TablePosts).Is("for_sale", false), []string{"p2"}},
		{"price range", From(models.TablePosts).Gte("price", 5).Lt("price", 20), []string{"p1"}},
		{"in owners", From(models.TablePosts).In("user_id", []string{"bob"}), []string{"p3"}},
		{"empty in", From(models.TablePosts).In("user_id", []string{}), []string{}},
		{"ilike title", From(models.TablePosts).ILike("title", "*bear*").OrderBy("created_at", false), []string{"p1", "p3"}},
		{"neq and page", From(models.TablePosts).Neq("user_id", "nobody").OrderBy("created_at", false).Page(1, 1), []string{"p2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var posts []models.Post
			require.NoError(t, c.Select(ctx, tt.q, &posts))
			ids := make([]string, 0, len(posts))
			for _, p := range posts {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQL_JSONColumnsRoundTrip(t *testing.T) {
	c := newSQLite(t)
	seedPosts(t, c)

	var posts []models.Post
	require.NoError(t, c.Select(context.Background(), From(models.TablePosts).Eq("id", "p1"), &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, []string{"vintage"}, []string(posts[0].Tags))
}

func TestSQL_UpsertUpdateDeleteCount(t *testing.T) {
	c := newSQLite(t)
	seedPosts(t, c)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, models.TablePosts, models.Post{ID: "p1", UserID: "alice", Title: "Brown Bear", ForSale: true, Price: 8, Species: "bear"}))
	var posts []models.Post
	require.NoError(t, c.Select(ctx, From(models.TablePosts).Eq("id", "p1"), &posts))
	assert.Equal(t, 8.0, posts[0].Price)

	require.NoError(t, c.Update(ctx, From(models.TablePosts).Eq("id", "p2"), map[string]any{"title": "Lop Bunny", "tags": []any{"lop"}}))
	require.NoError(t, c.Select(ctx, From(models.TablePosts).Eq("id", "p2"), &posts))
	assert.Equal(t, "Lop Bunny", posts[0].Title)
	assert.Equal(t, []string{"lop"}, []string(posts[0].Tags))

	n, err := c.Count(ctx, From(models.TablePosts).Eq("species", "bear"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	require.NoError(t, c.Delete(ctx, From(models.TablePosts).Eq("id", "p3")))
	n, err = c.Count(ctx, From(models.TablePosts))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.Error(t, c.Delete(ctx, From(models.TablePosts)))
	assert.Error(t, c.Update(ctx, From(models.TablePosts), map[string]any{"title": "x"}))
}

func TestSQL_InsertConflictIsRemoteError(t *testing.T) {
	c := newSQLite(t)
	seedPosts(t, c)

	err := c.Insert(context.Background(), models.TablePosts, models.Post{ID: "p1", UserID: "x", Title: "dup"})
	var remoteErr *Error
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, 409, remoteErr.Status)
}

func TestSQL_CreateUserSafeIsIdempotent(t *testing.T) {
	c := newSQLite(t)
	ctx := context.Background()
	args := map[string]any{"p_clerk_id": "user_2abc", "p_username": "bearlover", "p_email": "b@example.com"}

	require.NoError(t, c.RPC(ctx, "create_user_safe", args, nil))
	require.NoError(t, c.RPC(ctx, "create_user_safe", args, nil))

	var users []models.User
	require.NoError(t, c.Select(ctx, From(models.TableUsers).Eq("clerk_id", "user_2abc"), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "bearlover", users[0].Username)

	assert.Error(t, c.RPC(ctx, "create_user_safe", map[string]any{}, nil))
}

func TestSQL_AdjustPostCounter(t *testing.T) {
	c := newSQLite(t)
	seedPosts(t, c)
	ctx := context.Background()

	adjust := func(delta int) {
		require.NoError(t, c.RPC(ctx, "adjust_post_counter", map[string]any{"p_post_id": "p1", "p_counter": CounterLikes, "p_delta": delta}, nil))
	}
	likes := func() int {
		var posts []models.Post
		require.NoError(t, c.Select(ctx, From(models.TablePosts).Eq("id", "p1"), &posts))
		return posts[0].Likes
	}

	adjust(1)
	adjust(1)
	assert.Equal(t, 2, likes())
	adjust(-5)
	assert.Equal(t, 0, likes())

	err := c.RPC(ctx, "adjust_post_counter", map[string]any{"p_post_id": "p1", "p_counter": "price", "p_delta": 1}, nil)
	assert.Error(t, err)

	err = c.RPC(ctx, "missing_fn", nil, nil)
	var remoteErr *Error
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, 404, remoteErr.Status)
}

func TestSQL_SetCommentLike(t *testing.T) {
	c := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, models.TableComments, models.Comment{ID: "c1", PostID: "p1", UserID: "bob", Content: "Cute"}))

	set := func(userID string, liked bool) {
		require.NoError(t, c.RPC(ctx, "set_comment_like", map[string]any{"p_comment_id": "c1", "p_user_id": userID, "p_liked": liked}, nil))
	}
	likes := func() models.Comment {
		var rows []models.Comment
		require.NoError(t, c.Select(ctx, From(models.TableComments).Eq("id", "c1"), &rows))
		require.Len(t, rows, 1)
		return rows[0]
	}

	set("alice", true)
	set("carol", true)
	set("alice", true)
	got := likes()
	assert.Len(t, got.Likes, 2)
	assert.True(t, got.LikedBy("alice"))
	assert.True(t, got.LikedBy("carol"))

	set("alice", false)
	got = likes()
	assert.False(t, got.LikedBy("alice"))
	assert.True(t, got.LikedBy("carol"))

	require.NoError(t, c.RPC(ctx, "set_comment_like", map[string]any{"p_comment_id": "gone", "p_user_id": "alice", "p_liked": true}, nil))
	assert.Error(t, c.RPC(ctx, "set_comment_like", map[string]any{"p_comment_id": "c1", "p_user_id": "alice"}, nil))
}

func TestInstrument_PassesThrough(t *testing.T) {
	c := Instrument(newSQLite(t))
	seedPosts(t, c)

	n, err := c.Count(context.Background(), From(models.TablePosts))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
