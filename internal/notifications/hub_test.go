package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub := NewHub()

	a, err := hub.Register("user_a", nil)
	require.NoError(t, err)
	b, err := hub.Register("user_b", nil)
	require.NoError(t, err)

	hub.Broadcast("user_a", "hello")
	assert.Equal(t, []byte("hello"), <-a.Send)
	assert.Empty(t, b.Send)

	hub.BroadcastAll("everyone")
	assert.Equal(t, []byte("everyone"), <-a.Send)
	assert.Equal(t, []byte("everyone"), <-b.Send)

	assert.True(t, hub.IsOnline("user_a"))
	hub.UnregisterClient(a)
	assert.False(t, hub.IsOnline("user_a"))

	// Unregistering twice is harmless.
	hub.UnregisterClient(a)
}

func TestHub_PerUserLimit(t *testing.T) {
	hub := NewHub()
	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register("user_a", nil)
		require.NoError(t, err)
	}
	_, err := hub.Register("user_a", nil)
	assert.ErrorIs(t, err, ErrUserFull)

	_, err = hub.Register("user_b", nil)
	assert.NoError(t, err)
}

func TestClient_TrySendDropsWhenFull(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register("user_a", nil)
	require.NoError(t, err)

	for i := 0; i < cap(c.Send)+5; i++ {
		c.TrySend([]byte("x"))
	}
	assert.Len(t, c.Send, cap(c.Send))

	hub.UnregisterClient(c)
	// Sending on a closed client must not panic.
	assert.NotPanics(t, func() { c.TrySend([]byte("late")) })
}

func TestHub_StartWiringRoutesUserChannels(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	c, err := hub.Register("user_a", nil)
	require.NoError(t, err)

	n := NewNotifier(rdb)
	require.NoError(t, hub.StartWiring(ctx, n))
	require.NoError(t, n.PublishUser(ctx, "user_a", "ping"))

	select {
	case msg := <-c.Send:
		assert.Equal(t, "ping", string(msg))
	case <-time.After(time.Second):
		t.Fatal("message was not routed to the socket")
	}

	assert.NoError(t, hub.Shutdown(ctx))
	assert.False(t, hub.IsOnline("user_a"))
}
