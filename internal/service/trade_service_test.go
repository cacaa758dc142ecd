package service

import (
	"testing"

	"softspot/internal/models"
	"softspot/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrades_OfferAndRespond(t *testing.T) {
	h := newHarness(t, "")
	alice, bob := h.as("alice"), h.as("bob")

	listing, err := h.posts.AddPost(alice, bearListing(10))
	require.NoError(t, err)
	mine, err := h.posts.AddPost(bob, feedPost("Spare fox"))
	require.NoError(t, err)
	notMine, err := h.posts.AddPost(alice, feedPost("Alice's owl"))
	require.NoError(t, err)
	h.flush()

	_, err = h.trades.Create(alice, TradeInput{ListingID: listing.ID, OfferedPostIDs: []string{notMine.ID}})
	assert.True(t, models.HasCode(err, models.CodeValidation), "no trades on your own listing")
	_, err = h.trades.Create(bob, TradeInput{ListingID: listing.ID, OfferedPostIDs: []string{notMine.ID}})
	assert.True(t, models.HasCode(err, models.CodeValidation), "offered posts must be yours")
	_, err = h.trades.Create(bob, TradeInput{ListingID: listing.ID})
	assert.True(t, models.HasCode(err, models.CodeValidation), "something must be offered")

	trade, err := h.trades.Create(bob, TradeInput{ListingID: listing.ID, OfferedPostIDs: []string{mine.ID, mine.ID}, Message: "Swap?"})
	require.NoError(t, err)
	assert.Equal(t, models.TradePending, trade.Status)
	assert.Equal(t, "alice", trade.ToUserID)
	assert.Len(t, trade.OfferedPostIDs, 1)
	assert.Contains(t, h.notes.kinds("alice"), models.NotifyTradeRequest)

	incoming, err := h.trades.List(alice, repository.TradesIncoming, 0, 0)
	require.NoError(t, err)
	assert.Len(t, incoming, 1)
	outgoing, err := h.trades.List(alice, repository.TradesOutgoing, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, outgoing)
	_, err = h.trades.List(alice, "sideways", 0, 0)
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = h.trades.Respond(bob, trade.ID, true)
	assert.True(t, models.HasCode(err, models.CodeUnauthorized))
	_, err = h.trades.Cancel(alice, trade.ID)
	assert.True(t, models.HasCode(err, models.CodeUnauthorized))

	accepted, err := h.trades.Respond(alice, trade.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.TradeAccepted, accepted.Status)
	assert.Contains(t, h.notes.kinds("bob"), models.NotifyTradeUpdate)

	_, err = h.trades.Cancel(bob, trade.ID)
	assert.True(t, models.HasCode(err, models.CodeConflict))
}

func TestTrades_Cancel(t *testing.T) {
	h := newHarness(t, "")
	listing, err := h.posts.AddPost(h.as("alice"), bearListing(10))
	require.NoError(t, err)
	mine, err := h.posts.AddPost(h.as("bob"), feedPost("Spare fox"))
	require.NoError(t, err)

	// Pending posts are visible through the overlay.
	trade, err := h.trades.Create(h.as("bob"), TradeInput{ListingID: listing.ID, OfferedPostIDs: []string{mine.ID}})
	require.NoError(t, err)

	cancelled, err := h.trades.Cancel(h.as("bob"), trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeCancelled, cancelled.Status)
}
