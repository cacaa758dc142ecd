package repository

import (
	"context"
	"testing"
	"time"

	"softspot/internal/identity"
	"softspot/internal/models"
	"softspot/internal/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newRemote(t *testing.T) remote.Client {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.RemoteModels()...))
	return remote.NewSQL(db)
}

func seed(t *testing.T, c remote.Client, rows ...models.Post) {
	t.Helper()
	for _, p := range rows {
		require.NoError(t, c.Insert(context.Background(), models.TablePosts, p))
	}
}

func fixturePosts() []models.Post {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []models.Post{
		{ID: "p1", UserID: "alice", Title: "Brown Bear", ForSale: true, Price: 10, Species: "bear", Condition: "good", Likes: 3, CreatedAt: base},
		{ID: "p2", UserID: "alice", Title: "Bunny", Species: "rabbit", Likes: 2, CreatedAt: base.Add(time.Minute)},
		{ID: "p3", UserID: "bob", Title: "Polar Bear", ForSale: true, Price: 25, Species: "bear", Condition: "new", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "p4", UserID: "bob", Title: "Sold Fox", ForSale: true, Sold: true, Price: 5, Species: "fox", CreatedAt: base.Add(3 * time.Minute)},
	}
}

func TestPostFilter_RemoteAndLocalAgree(t *testing.T) {
	c := newRemote(t)
	posts := fixturePosts()
	seed(t, c, posts...)
	repo := NewPostRepository(c)

	filters := []struct {
		name string
		f    PostFilter
		want []string
	}{
		{"all newest first", PostFilter{}, []string{"p4", "p3", "p2", "p1"}},
		{"listings hide sold", PostFilter{ListingsOnly: true}, []string{"p3", "p1"}},
		{"listings with sold", PostFilter{ListingsOnly: true, IncludeSold: true}, []string{"p4", "p3", "p1"}},
		{"species", PostFilter{ListingsOnly: true, Species: "Bear"}, []string{"p3", "p1"}},
		{"price range", PostFilter{ListingsOnly: true, MinPrice: 8, MaxPrice: 20}, []string{"p1"}},
		{"condition", PostFilter{Condition: "new"}, []string{"p3"}},
		{"owner", PostFilter{UserID: "alice"}, []string{"p2", "p1"}},
		{"page", PostFilter{Limit: 2, Offset: 1}, []string{"p3", "p2"}},
	}

	for _, tt := range filters {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(t.Context(), tt.f)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)

			if tt.f.Limit == 0 {
				var local []string
				for i := len(posts) - 1; i >= 0; i-- {
					if tt.f.Matches(posts[i]) {
						local = append(local, posts[i].ID)
					}
				}
				assert.Equal(t, tt.want, local)
			}
		})
	}
}

func TestPostRepository_GetAndBids(t *testing.T) {
	c := newRemote(t)
	seed(t, c, fixturePosts()...)
	repo := NewPostRepository(c)
	ctx := t.Context()

	p, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Brown Bear", p.Title)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	n, err := repo.CountBids(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, repo.InsertBid(ctx, &models.ListingBid{ID: "b1", ListingID: "p1", BidderID: "bob", Amount: 12, CreatedAt: time.Now().UTC()}))
	require.NoError(t, repo.InsertBid(ctx, &models.ListingBid{ID: "b2", ListingID: "p1", BidderID: "carol", Amount: 15, CreatedAt: time.Now().UTC()}))

	n, err = repo.CountBids(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	high, err := repo.HighestBid(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 15.0, high)

	byIDs, err := repo.GetByIDs(ctx, []string{"p2", "p3", "nope"})
	require.NoError(t, err)
	assert.Len(t, byIDs, 2)
}

func TestUserRepository(t *testing.T) {
	c := newRemote(t)
	repo := NewUserRepository(c)
	ctx := t.Context()

	_, err := repo.GetByClerkID(ctx, "user_1")
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	id := identity.Identity{UserID: "user_1", Username: "bearlover", Email: "b@example.com"}
	require.NoError(t, repo.CreateSafe(ctx, id))
	require.NoError(t, repo.CreateSafe(ctx, id))

	u, err := repo.GetByClerkID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "bearlover", u.Username)

	profile, err := repo.GetProfile(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "user_1", profile.UserID)
	assert.False(t, profile.OnboardingComplete)

	profile.DisplayName = "Bear Lover"
	require.NoError(t, repo.SaveProfile(ctx, profile))
	profile.Bio = "collector"
	require.NoError(t, repo.SaveProfile(ctx, profile))

	got, err := repo.GetProfile(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "Bear Lover", got.DisplayName)
	assert.Equal(t, "collector", got.Bio)
}

func TestBadgeRepository(t *testing.T) {
	c := newRemote(t)
	seed(t, c, fixturePosts()...)
	repo := NewBadgeRepository(c)
	ctx := t.Context()

	metrics, err := repo.Metrics(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, metrics[models.MetricPosts])
	assert.EqualValues(t, 1, metrics[models.MetricListings])
	assert.EqualValues(t, 0, metrics[models.MetricSold])
	assert.EqualValues(t, 5, metrics[models.MetricLikesReceived])

	e := &models.BadgeEvent{ID: "e1", UserID: "alice", BadgeID: "first_post", MetricValue: 1, EarnedAt: time.Now().UTC()}
	inserted, err := repo.Append(ctx, e)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := &models.BadgeEvent{ID: "e2", UserID: "alice", BadgeID: "first_post", MetricValue: 2, EarnedAt: time.Now().UTC()}
	inserted, err = repo.Append(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)

	ledger, err := repo.Ledger(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.EqualValues(t, 1, ledger[0].MetricValue)
}

func TestNotificationRepository_ScopedToOwner(t *testing.T) {
	c := newRemote(t)
	repo := NewNotificationRepository(c)
	ctx := t.Context()

	require.NoError(t, repo.Create(ctx, &models.Notification{ID: "n1", UserID: "alice", Kind: models.NotifyBid, CreatedAt: time.Now().UTC()}))
	require.NoError(t, repo.Create(ctx, &models.Notification{ID: "n2", UserID: "alice", Kind: models.NotifyLike, CreatedAt: time.Now().UTC()}))

	err := repo.MarkRead(ctx, "bob", "n1")
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	require.NoError(t, repo.MarkRead(ctx, "alice", "n1"))
	unread, err := repo.ListByUser(ctx, "alice", true, 0, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "n2", unread[0].ID)

	require.NoError(t, repo.MarkAllRead(ctx, "alice"))
	unread, err = repo.ListByUser(ctx, "alice", true, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestTradeRepository_OnlyPendingMoves(t *testing.T) {
	c := newRemote(t)
	repo := NewTradeRepository(c)
	ctx := t.Context()

	tr := &models.TradeRequest{ID: "t1", FromUserID: "bob", ToUserID: "alice", ListingID: "p1", Status: models.TradePending, CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, tr))

	require.NoError(t, repo.SetStatus(ctx, "t1", models.TradeAccepted))
	require.NoError(t, repo.SetStatus(ctx, "t1", models.TradeDeclined))

	got, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeAccepted, got.Status)

	incoming, err := repo.List(ctx, "alice", TradesIncoming, 0, 0)
	require.NoError(t, err)
	assert.Len(t, incoming, 1)
	outgoing, err := repo.List(ctx, "alice", TradesOutgoing, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, outgoing)
}

func TestWrap(t *testing.T) {
	assert.Nil(t, wrap(nil))
	assert.ErrorIs(t, wrap(context.Canceled), context.Canceled)

	err := wrap(&remote.Error{Status: 400, Message: "new row violates row-level security policy"})
	assert.True(t, models.HasCode(err, models.CodeRemote))
	assert.Equal(t, "new row violates row-level security policy", err.(*models.AppError).Message)

	assert.True(t, IsConflict(&remote.Error{Status: 409}))
	assert.False(t, IsConflict(&remote.Error{Status: 500}))
}
