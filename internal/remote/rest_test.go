package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"softspot/internal/identity"
	"softspot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestREST_TokenResolvedPerRequest(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		seen = append(seen, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	var n atomic.Int32
	tokens := TokenFunc(func(context.Context) (string, error) {
		return "session-" + string(rune('a'+n.Add(1)-1)), nil
	})

	client, err := NewREST(srv.URL, "anon-key", tokens, time.Second)
	require.NoError(t, err)

	var posts []models.Post
	require.NoError(t, client.Select(context.Background(), From(models.TablePosts), &posts))
	require.NoError(t, client.Select(context.Background(), From(models.TablePosts), &posts))

	assert.Equal(t, []string{"Bearer session-a", "Bearer session-b"}, seen)
}

func TestContextToken(t *testing.T) {
	src := ContextToken("anon")

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "anon", tok)

	tok, err = src.Token(identity.WithToken(context.Background(), "jwt-123"))
	require.NoError(t, err)
	assert.Equal(t, "jwt-123", tok)
}

func TestREST_QueryEncoding(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[{"id":"p1","title":"Bear","for_sale":true,"price":10}]`))
	}))
	defer srv.Close()

	client, err := NewREST(srv.URL, "anon", nil, time.Second)
	require.NoError(t, err)

	q := From(models.TablePosts).
		Eq("for_sale", true).
		Gte("price", 5).
		In("species", []string{"bear", "polar bear"}).
		Is("deleted_at", nil).
		OrderBy("created_at", true).
		Page(20, 40)

	var posts []models.Post
	require.NoError(t, client.Select(context.Background(), q, &posts))
	require.Len(t, posts, 1)
	assert.True(t, posts[0].ForSale)

	assert.Equal(t, "/rest/v1/posts", gotPath)
	values := parseQuery(t, gotQuery)
	assert.Equal(t, "eq.true", values["for_sale"])
	assert.Equal(t, "gte.5", values["price"])
	assert.Equal(t, `in.(bear,"polar bear")`, values["species"])
	assert.Equal(t, "is.null", values["deleted_at"])
	assert.Equal(t, "created_at.desc", values["order"])
	assert.Equal(t, "20", values["limit"])
	assert.Equal(t, "40", values["offset"])
}

func parseQuery(t *testing.T, raw string) map[string]string {
	t.Helper()
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	out := make(map[string]string, len(values))
	for k := range values {
		out[k] = values.Get(k)
	}
	return out
}

func TestREST_ErrorPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    "23505",
			"message": `duplicate key value violates unique constraint "posts_pkey"`,
			"details": "Key (id)=(p1) already exists.",
			"hint":    "",
		})
	}))
	defer srv.Close()

	client, err := NewREST(srv.URL, "anon", nil, time.Second)
	require.NoError(t, err)

	err = client.Insert(context.Background(), models.TablePosts, models.Post{ID: "p1"})
	var remoteErr *Error
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusConflict, remoteErr.Status)
	assert.Equal(t, "23505", remoteErr.Code)
	assert.Equal(t, `duplicate key value violates unique constraint "posts_pkey"`, err.Error())
	assert.False(t, remoteErr.Temporary())
}

func TestREST_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewREST(srv.URL, "anon", nil, time.Second)
	require.NoError(t, err)

	err = client.Delete(context.Background(), From(models.TablePosts).Eq("id", "p1"))
	var remoteErr *Error
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "upstream unavailable", remoteErr.Message)
	assert.True(t, remoteErr.Temporary())
}

func TestREST_CountUpsertAndRPC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/rest/v1/listing_bids":
			assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
			assert.Equal(t, "eq.p1", r.URL.Query().Get("listing_id"))
			w.Header().Set("Content-Range", "0-0/3")
			w.WriteHeader(http.StatusPartialContent)
		case r.Method == http.MethodPost && r.URL.Path == "/rest/v1/post_likes":
			assert.Equal(t, "user_id,post_id", r.URL.Query().Get("on_conflict"))
			assert.Contains(t, r.Header.Get("Prefer"), "resolution=merge-duplicates")
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPost && r.URL.Path == "/rest/v1/rpc/adjust_post_counter":
			var args map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&args))
			assert.Equal(t, "likes", args["p_counter"])
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	client, err := NewREST(srv.URL, "anon", nil, time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	n, err := client.Count(ctx, From(models.TableListingBids).Eq("listing_id", "p1"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	require.NoError(t, client.Upsert(ctx, models.TablePostLikes, models.PostLike{UserID: "u", PostID: "p1"}, "user_id", "post_id"))
	require.NoError(t, client.RPC(ctx, "adjust_post_counter", map[string]any{"p_post_id": "p1", "p_counter": "likes", "p_delta": 1}, nil))
}

func TestREST_RejectsBadInput(t *testing.T) {
	client, err := NewREST("http://127.0.0.1:1", "anon", nil, time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, client.Select(ctx, From("posts; drop table users"), &[]models.Post{}))
	assert.Error(t, client.Delete(ctx, From(models.TablePosts)))
	assert.Error(t, client.RPC(ctx, "../admin", nil, nil))
}

func TestParseContentRangeTotal(t *testing.T) {
	// An exact count of zero rows has no range.
	n, err := parseContentRangeTotal("*/0")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = parseContentRangeTotal("0-9/42")
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)

	for _, h := range []string{"0-0/*", "", "0-9", "0-9/many"} {
		_, err = parseContentRangeTotal(h)
		assert.Error(t, err, "Content-Range %q", h)
	}
}
