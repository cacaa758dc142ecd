package service

import (
	"context"
	"strings"
	"time"

	"softspot/internal/forms"
	"softspot/internal/models"
	"softspot/internal/repository"
)

// TradeService handles swap offers between collectors. Trades are written to
// the remote store directly.
type TradeService struct {
	trades   repository.TradeRepository
	posts    *PostService
	notifier Notifier
	now      func() time.Time
}

func NewTradeService(trades repository.TradeRepository, posts *PostService, notifier Notifier) *TradeService {
	return &TradeService{trades: trades, posts: posts, notifier: notifier, now: utcNow}
}

type TradeInput struct {
	ListingID      string   `json:"listing_id"`
	OfferedPostIDs []string `json:"offered_post_ids"`
	Message        string   `json:"message"`
}

// Create offers the caller's posts in exchange for a listing.
func (s *TradeService) Create(ctx context.Context, in TradeInput) (*models.TradeRequest, error) {
	id, err := requireSession(ctx, s.posts.local)
	if err != nil {
		return nil, err
	}
	if err := forms.TradeOffer.Check(in); err != nil {
		return nil, err
	}

	listing, err := s.posts.GetPost(ctx, in.ListingID)
	if err != nil {
		return nil, err
	}
	if !listing.IsListing() || listing.Sold {
		return nil, models.NewValidationError("This plushie is not available for trade")
	}
	if listing.UserID == id.UserID {
		return nil, models.NewValidationError("You cannot offer a trade on your own listing")
	}

	offered := make([]string, 0, len(in.OfferedPostIDs))
	seen := make(map[string]bool, len(in.OfferedPostIDs))
	for _, postID := range in.OfferedPostIDs {
		if seen[postID] {
			continue
		}
		seen[postID] = true
		post, err := s.posts.GetPost(ctx, postID)
		if err != nil {
			return nil, err
		}
		if post.UserID != id.UserID {
			return nil, models.NewFieldValidationError(map[string]string{
				"offered_post_ids": "You can only offer your own plushies",
			})
		}
		offered = append(offered, postID)
	}

	now := s.now()
	trade := &models.TradeRequest{
		ID:             newID(),
		FromUserID:     id.UserID,
		ToUserID:       listing.UserID,
		ListingID:      listing.ID,
		OfferedPostIDs: offered,
		Message:        strings.TrimSpace(in.Message),
		Status:         models.TradePending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.trades.Create(ctx, trade); err != nil {
		return nil, err
	}

	notify(ctx, s.notifier, listing.UserID, models.NotifyTradeRequest,
		"New trade offer", id.Username+" wants to trade for "+listing.Title, trade.ID)
	return trade, nil
}

// List returns the caller's incoming or outgoing trades.
func (s *TradeService) List(ctx context.Context, direction string, limit, offset int) ([]models.TradeRequest, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	switch direction {
	case "", repository.TradesIncoming:
		direction = repository.TradesIncoming
	case repository.TradesOutgoing:
	default:
		return nil, models.NewValidationError("direction must be incoming or outgoing")
	}
	return s.trades.List(ctx, id.UserID, direction, limit, offset)
}

// Respond accepts or declines a trade addressed to the caller.
func (s *TradeService) Respond(ctx context.Context, tradeID string, accept bool) (*models.TradeRequest, error) {
	status := models.TradeDeclined
	if accept {
		status = models.TradeAccepted
	}
	return s.transition(ctx, tradeID, status, func(userID string, t *models.TradeRequest) error {
		if t.ToUserID != userID {
			return models.NewUnauthorizedError("Only the recipient can respond to this trade")
		}
		return nil
	})
}

// Cancel withdraws a trade the caller sent.
func (s *TradeService) Cancel(ctx context.Context, tradeID string) (*models.TradeRequest, error) {
	return s.transition(ctx, tradeID, models.TradeCancelled, func(userID string, t *models.TradeRequest) error {
		if t.FromUserID != userID {
			return models.NewUnauthorizedError("Only the sender can cancel this trade")
		}
		return nil
	})
}

func (s *TradeService) transition(ctx context.Context, tradeID, status string, allowed func(string, *models.TradeRequest) error) (*models.TradeRequest, error) {
	id, err := requireSession(ctx, s.posts.local)
	if err != nil {
		return nil, err
	}
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if err := allowed(id.UserID, trade); err != nil {
		return nil, err
	}
	if trade.Status != models.TradePending {
		return nil, models.NewConflictError("This trade is already " + trade.Status)
	}
	if err := s.trades.SetStatus(ctx, tradeID, status); err != nil {
		return nil, err
	}

	// SetStatus leaves a request that moved concurrently alone.
	current, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if current.Status != status {
		return nil, models.NewConflictError("This trade is already " + current.Status)
	}

	other := current.FromUserID
	if other == id.UserID {
		other = current.ToUserID
	}
	notify(ctx, s.notifier, other, models.NotifyTradeUpdate,
		"Trade "+status, id.Username+" marked your trade "+status, tradeID)
	return current, nil
}
