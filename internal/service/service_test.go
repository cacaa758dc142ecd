package service

import (
	"context"
	"sync"
	"testing"

	"softspot/internal/featureflags"
	"softspot/internal/identity"
	"softspot/internal/localstore"
	"softspot/internal/models"
	"softspot/internal/outbox"
	"softspot/internal/remote"
	"softspot/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type sent struct {
	UserID, Kind, Title, RefID string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingNotifier) Notify(_ context.Context, userID, kind, title, _, refID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{UserID: userID, Kind: kind, Title: title, RefID: refID})
	return nil
}

func (r *recordingNotifier) kinds(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.sent {
		if s.UserID == userID {
			out = append(out, s.Kind)
		}
	}
	return out
}

func openSQLite(t *testing.T, tables ...any) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(tables...))
	return db
}

// harness wires the services over an in-memory local store and an
// in-memory remote store.
type harness struct {
	t        *testing.T
	remote   *remote.SQL
	box      *outbox.Store
	worker   *outbox.Worker
	local    *Local
	flags    *featureflags.Manager
	notes    *recordingNotifier
	posts    *PostService
	comments *CommentService
	wishlist *WishlistService
	trades   *TradeService
}

func newHarness(t *testing.T, flags string) *harness {
	t.Helper()
	localDB := openSQLite(t, models.LocalModels()...)
	remoteClient := remote.NewSQL(openSQLite(t, models.RemoteModels()...))

	box := outbox.NewStore(localDB)
	local := NewLocal(box, localstore.New(localstore.NewGormBackend(localDB), "device"))
	h := &harness{
		t:      t,
		remote: remoteClient,
		box:    box,
		worker: outbox.NewWorker(box, remoteClient, outbox.Config{}),
		local:  local,
		flags:  featureflags.NewManager(flags),
		notes:  &recordingNotifier{},
	}
	h.posts = NewPostService(repository.NewPostRepository(remoteClient), local, h.flags, h.notes)
	h.comments = NewCommentService(repository.NewCommentRepository(remoteClient), h.posts, local, h.flags, h.notes)
	h.wishlist = NewWishlistService(repository.NewWishlistRepository(remoteClient), local, h.flags)
	h.trades = NewTradeService(repository.NewTradeRepository(remoteClient), h.posts, h.notes)
	return h
}

// flush drains the outbox into the remote store.
func (h *harness) flush() {
	h.t.Helper()
	for i := 0; i < 10; i++ {
		n, err := h.worker.ProcessOnce(context.Background())
		require.NoError(h.t, err)
		if n == 0 {
			break
		}
	}
	st, err := h.box.Stats(context.Background())
	require.NoError(h.t, err)
	require.Zero(h.t, st.Pending, "outbox should be drained")
}

func (h *harness) pending() int64 {
	h.t.Helper()
	st, err := h.box.Stats(context.Background())
	require.NoError(h.t, err)
	return st.Pending
}

// as returns a context for userID, signed in on the device.
func (h *harness) as(userID string) context.Context {
	h.t.Helper()
	id := identity.Identity{UserID: userID, Username: userID}
	ctx := identity.With(context.Background(), id)
	require.True(h.t, h.local.UserShim(userID).SignIn(ctx, id).Success)
	return ctx
}

func bearListing(price float64) PostInput {
	return PostInput{
		Title:          "Brown Bear",
		Description:    "A well loved brown bear with a red bow",
		Price:          price,
		ForSale:        true,
		Condition:      "good",
		Species:        "Bear",
		Size:           "medium",
		DeliveryMethod: "shipping",
		Tags:           []string{"vintage", "bear"},
	}
}

func feedPost(title string) PostInput {
	return PostInput{Title: title, Content: "Look who came home today"}
}
