package repository

import (
	"context"
	"time"

	"softspot/internal/models"
	"softspot/internal/remote"
)

// Trade list directions.
const (
	TradesIncoming = "incoming"
	TradesOutgoing = "outgoing"
)

type TradeRepository interface {
	Create(ctx context.Context, t *models.TradeRequest) error
	GetByID(ctx context.Context, id string) (*models.TradeRequest, error)
	List(ctx context.Context, userID, direction string, limit, offset int) ([]models.TradeRequest, error)
	SetStatus(ctx context.Context, id, status string) error
}

type tradeRepository struct {
	client remote.Client
}

func NewTradeRepository(client remote.Client) TradeRepository {
	return &tradeRepository{client: client}
}

func (r *tradeRepository) Create(ctx context.Context, t *models.TradeRequest) error {
	return wrap(r.client.Insert(ctx, models.TableTradeRequests, t))
}

func (r *tradeRepository) GetByID(ctx context.Context, id string) (*models.TradeRequest, error) {
	return first[models.TradeRequest](ctx, r.client, remote.From(models.TableTradeRequests).Eq("id", id), "Trade request", id)
}

func (r *tradeRepository) List(ctx context.Context, userID, direction string, limit, offset int) ([]models.TradeRequest, error) {
	limit, offset = clampPage(limit, offset)
	column := "to_user_id"
	if direction == TradesOutgoing {
		column = "from_user_id"
	}
	out := []models.TradeRequest{}
	q := remote.From(models.TableTradeRequests).Eq(column, userID).OrderBy("created_at", true).Page(limit, offset)
	if err := r.client.Select(ctx, q, &out); err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

// SetStatus only moves pending requests. A request that changed concurrently
// is left alone.
func (r *tradeRepository) SetStatus(ctx context.Context, id, status string) error {
	q := remote.From(models.TableTradeRequests).Eq("id", id).Eq("status", models.TradePending)
	return wrap(r.client.Update(ctx, q, map[string]any{"status": status, "updated_at": time.Now().UTC()}))
}
