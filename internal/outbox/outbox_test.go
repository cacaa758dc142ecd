package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"softspot/internal/models"
	"softspot/internal/remote"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type call struct {
	Method string
	Table  string
	Query  remote.Query
	Row    json.RawMessage
	Values map[string]any
	Fn     string
	Args   map[string]any
}

// fakeRemote records calls and fails them while failFor returns an error.
type fakeRemote struct {
	mu      sync.Mutex
	calls   []call
	failFor func(c call) error
}

func (f *fakeRemote) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor != nil {
		if err := f.failFor(c); err != nil {
			return err
		}
	}
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakeRemote) Select(context.Context, remote.Query, any) error { return nil }
func (f *fakeRemote) Count(context.Context, remote.Query) (int64, error) { return 0, nil }
func (f *fakeRemote) Insert(_ context.Context, table string, row any) error {
	raw, _ := json.Marshal(row)
	return f.record(call{Method: "insert", Table: table, Row: raw})
}
func (f *fakeRemote) Upsert(_ context.Context, table string, row any, _ ...string) error {
	raw, _ := json.Marshal(row)
	return f.record(call{Method: "upsert", Table: table, Row: raw})
}
func (f *fakeRemote) Update(_ context.Context, q remote.Query, values map[string]any) error {
	return f.record(call{Method: "update", Table: q.Table, Query: q, Values: values})
}
func (f *fakeRemote) Delete(_ context.Context, q remote.Query) error {
	return f.record(call{Method: "delete", Table: q.Table, Query: q})
}
func (f *fakeRemote) RPC(_ context.Context, fn string, args map[string]any, _ any) error {
	return f.record(call{Method: "rpc", Fn: fn, Args: args})
}

func (f *fakeRemote) applied() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func openLocal(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.LocalModels()...))
	return db
}

func newTestWorker(t *testing.T, client remote.Client, cfg Config) (*Worker, *Store, *time.Time) {
	t.Helper()
	store := NewStore(openLocal(t))
	w := NewWorker(store, client, cfg)
	clock := time.Now().UTC().Add(time.Second)
	w.now = func() time.Time { return clock }
	w.jitter = func(int64) int64 { return 0 }
	return w, store, &clock
}

func enqueue(t *testing.T, store *Store, intents ...Intent) {
	t.Helper()
	require.NoError(t, store.DB().Transaction(func(tx *gorm.DB) error {
		return EnqueueAll(tx, intents...)
	}))
}

func upsertPost(id, title string) Intent {
	return Intent{Table: models.TablePosts, Op: models.OpUpsert, EntityID: id, Payload: models.Post{ID: id, Title: title}}
}

var errUnavailable = &remote.Error{Status: 503, Message: "service unavailable"}

func TestEnqueue_Validation(t *testing.T) {
	db := openLocal(t)
	assert.Error(t, Enqueue(db, Intent{Op: models.OpUpsert, EntityID: "x"}))
	assert.Error(t, Enqueue(db, Intent{Table: "posts", Op: "MERGE", EntityID: "x"}))
	assert.NoError(t, Enqueue(db, upsertPost("p1", "Bear")))
}

func TestEnqueue_RollsBackWithTransaction(t *testing.T) {
	store := NewStore(openLocal(t))
	err := store.DB().Transaction(func(tx *gorm.DB) error {
		require.NoError(t, Enqueue(tx, upsertPost("p1", "Bear")))
		return errors.New("local write failed")
	})
	require.Error(t, err)

	pending, err := store.Pending(context.Background(), models.TablePosts)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWorker_ResolvesOnlyOnAck(t *testing.T) {
	client := &fakeRemote{}
	failing := true
	client.failFor = func(call) error {
		if failing {
			return errUnavailable
		}
		return nil
	}
	w, store, clock := newTestWorker(t, client, Config{BaseBackoff: 2 * time.Second, MaxBackoff: time.Minute, MaxAttempts: 5})
	ctx := context.Background()
	enqueue(t, store, upsertPost("p1", "Bear"))

	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err := store.Pending(ctx, models.TablePosts)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "service unavailable", pending[0].LastError)
	assert.WithinDuration(t, clock.Add(time.Second), pending[0].NextAttemptAt, time.Millisecond)

	// Not due yet.
	failing = false
	n, err = w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	*clock = clock.Add(2 * time.Second)
	n, err = w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err = store.Pending(ctx, models.TablePosts)
	require.NoError(t, err)
	assert.Empty(t, pending)

	calls := client.applied()
	require.Len(t, calls, 1)
	assert.Equal(t, "upsert", calls[0].Method)
	assert.JSONEq(t, `"Bear"`, string(mustField(t, calls[0].Row, "title")))
}

func mustField(t *testing.T, raw json.RawMessage, field string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	return m[field]
}

func TestWorker_PerEntityOrdering(t *testing.T) {
	client := &fakeRemote{}
	failFirst := true
	client.failFor = func(c call) error {
		if failFirst && c.Method == "upsert" && string(mustField(t, c.Row, "id")) == `"a"` {
			failFirst = false
			return errUnavailable
		}
		return nil
	}
	w, store, clock := newTestWorker(t, client, Config{BaseBackoff: time.Second, MaxBackoff: time.Minute})
	ctx := context.Background()

	enqueue(t, store,
		upsertPost("a", "v1"),
		Intent{Table: models.TablePosts, Op: models.OpUpdate, EntityID: "a", Payload: map[string]any{"title": "v2"}},
		upsertPost("b", "other"),
	)

	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the unrelated entity proceeds")
	calls := client.applied()
	require.Len(t, calls, 1)
	assert.JSONEq(t, `"b"`, string(mustField(t, calls[0].Row, "id")))

	// The update for "a" waits behind its failed upsert.
	n, err = w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	*clock = clock.Add(time.Minute)
	n, err = w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	calls = client.applied()
	require.Len(t, calls, 3)
	assert.Equal(t, "upsert", calls[1].Method)
	assert.Equal(t, "update", calls[2].Method)
	assert.Equal(t, "v2", calls[2].Values["title"])
}

func TestWorker_DLQAfterMaxAttemptsAndRetry(t *testing.T) {
	client := &fakeRemote{}
	down := true
	client.failFor = func(call) error {
		if down {
			return errUnavailable
		}
		return nil
	}
	w, store, clock := newTestWorker(t, client, Config{BaseBackoff: time.Second, MaxBackoff: 4 * time.Second, MaxAttempts: 3})
	ctx := context.Background()
	enqueue(t, store, upsertPost("p1", "Bear"))

	for range 3 {
		_, err := w.ProcessOnce(ctx)
		require.NoError(t, err)
		*clock = clock.Add(time.Minute)
	}

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, st.Pending)
	assert.EqualValues(t, 1, st.DLQ)

	entries, err := store.UnresolvedDLQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "service unavailable", entries[0].ErrorMsg)

	resolved, err := w.RetryDLQOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, resolved)

	down = false
	resolved, err = w.RetryDLQOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	st, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, st.DLQ)
}

func TestWorker_PermanentErrorGoesStraightToDLQ(t *testing.T) {
	client := &fakeRemote{failFor: func(call) error {
		return &remote.Error{Status: 400, Code: "22P02", Message: "invalid input syntax"}
	}}
	w, store, _ := newTestWorker(t, client, Config{MaxAttempts: 10})
	ctx := context.Background()
	enqueue(t, store, upsertPost("p1", "Bear"))

	_, err := w.ProcessOnce(ctx)
	require.NoError(t, err)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.DLQ)

	entries, err := store.UnresolvedDLQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	client.failFor = nil
	require.NoError(t, w.RetryDLQEntry(ctx, entries[0].ID))

	entry, err := store.DLQEntry(ctx, entries[0].ID)
	require.NoError(t, err)
	assert.True(t, entry.Resolved)
	assert.NotNil(t, entry.RetriedAt)
}

type recordingSink struct{ events []models.OutboxEvent }

func (s *recordingSink) Handle(_ context.Context, e models.OutboxEvent) error {
	s.events = append(s.events, e)
	return errors.New("sink errors are ignored")
}

func TestWorker_SinksSeeAcknowledgedEvents(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(openLocal(t))
	w := NewWorker(store, &fakeRemote{}, Config{}, sink)
	enqueue(t, store, upsertPost("p1", "Bear"))

	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "p1", sink.events[0].EntityID)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := NewStore(openLocal(t))
	client := &fakeRemote{}
	w := NewWorker(store, client, Config{PollInterval: 10 * time.Millisecond, DLQInterval: 10 * time.Millisecond})
	enqueue(t, store, upsertPost("p1", "Bear"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	go w.RunDLQ(ctx)

	require.Eventually(t, func() bool { return len(client.applied()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestApply_Ops(t *testing.T) {
	ctx := context.Background()
	client := &fakeRemote{}

	require.NoError(t, Apply(ctx, client, models.OutboxEvent{
		Table: models.TablePostLikes, Op: models.OpDelete, EntityID: "u1:p1",
		Match: []byte(`{"user_id":"u1","post_id":"p1"}`),
	}))
	require.NoError(t, Apply(ctx, client, models.OutboxEvent{Table: models.TablePosts, Op: models.OpDelete, EntityID: "p1"}))
	require.NoError(t, Apply(ctx, client, models.OutboxEvent{
		Table: models.TablePosts, Op: models.OpRPC, EntityID: "p1",
		Payload: []byte(`{"fn":"adjust_post_counter","args":{"p_post_id":"p1","p_counter":"likes","p_delta":-1}}`),
	}))
	assert.Error(t, Apply(ctx, client, models.OutboxEvent{Table: models.TablePosts, Op: "MERGE"}))

	calls := client.applied()
	require.Len(t, calls, 3)
	assert.Equal(t, []remote.Filter{
		{Column: "post_id", Op: remote.OpEq, Value: "p1"},
		{Column: "user_id", Op: remote.OpEq, Value: "u1"},
	}, calls[0].Query.Filters)
	assert.Equal(t, []remote.Filter{{Column: "id", Op: remote.OpEq, Value: "p1"}}, calls[1].Query.Filters)
	assert.Equal(t, "adjust_post_counter", calls[2].Fn)
	assert.EqualValues(t, -1, calls[2].Args["p_delta"])
}

func TestBackoff(t *testing.T) {
	noJitter := func(int64) int64 { return 0 }
	fullJitter := func(n int64) int64 { return n - 1 }

	tests := []struct {
		attempt int
		jitter  func(int64) int64
		want    time.Duration
	}{
		{1, noJitter, time.Second},
		{2, noJitter, 2 * time.Second},
		{3, noJitter, 4 * time.Second},
		{10, noJitter, 30 * time.Second},
		{1, fullJitter, 2 * time.Second},
		{10, fullJitter, time.Minute},
		{0, noJitter, time.Second},
	}
	for _, tt := range tests {
		got := Backoff(2*time.Second, time.Minute, tt.attempt, tt.jitter)
		assert.Equal(t, tt.want, got, "attempt %d", tt.attempt)
	}
}

func TestStore_ClaimWaitsBehindLeasedEvent(t *testing.T) {
	store := NewStore(openLocal(t))
	ctx := context.Background()
	enqueue(t, store,
		upsertPost("a", "v1"),
		Intent{Table: models.TablePosts, Op: models.OpUpdate, EntityID: "a", Payload: map[string]any{"title": "v2"}},
		upsertPost("b", "other"),
	)
	now := time.Now().UTC().Add(time.Second)

	first, err := store.Claim(ctx, 1, now, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "a", first[0].EntityID)

	// Another worker must not run the update while the upsert is in flight.
	second, err := store.Claim(ctx, 10, now, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "b", second[0].EntityID)

	// Once the leases lapse every event is claimable again, in order.
	later, err := store.Claim(ctx, 10, now.Add(time.Minute), 30*time.Second)
	require.NoError(t, err)
	require.Len(t, later, 3)
	assert.Equal(t, models.OpUpsert, later[0].Op)
	assert.Equal(t, models.OpUpdate, later[1].Op)
	assert.Equal(t, "b", later[2].EntityID)
}

func TestStore_ClaimPostgresSkipsLockedRows(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT \* FROM "outbox_events" WHERE .*NOT EXISTS.* ORDER BY id ASC LIMIT (\$\d+|\d+) FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "target_table", "entity_id", "op"}).
			AddRow(7, "posts", "p7", "UPSERT").
			AddRow(3, "posts", "p3", "UPSERT"))
	mock.ExpectExec(`UPDATE "outbox_events" SET "leased_until"=\$1 WHERE id IN \(\$2,\$3\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	events, err := NewStore(db).Claim(context.Background(), 10, now, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(3), events[0].ID)
	assert.Equal(t, int64(7), events[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
