package repository

import (
	"context"

	"softspot/internal/models"
	"softspot/internal/remote"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) error
}

type notificationRepository struct {
	client remote.Client
}

func NewNotificationRepository(client remote.Client) NotificationRepository {
	return &notificationRepository{client: client}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return wrap(r.client.Insert(ctx, models.TableNotifications, n))
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	limit, offset = clampPage(limit, offset)
	q := remote.From(models.TableNotifications).Eq("user_id", userID)
	if unreadOnly {
		q = q.Is("read", false)
	}
	out := []models.Notification{}
	if err := r.client.Select(ctx, q.OrderBy("created_at", true).Page(limit, offset), &out); err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

// MarkRead is scoped to userID so one user cannot mark another's notification.
func (r *notificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	if _, err := first[models.Notification](ctx, r.client,
		remote.From(models.TableNotifications).Eq("id", id).Eq("user_id", userID), "Notification", id); err != nil {
		return err
	}
	q := remote.From(models.TableNotifications).Eq("id", id).Eq("user_id", userID)
	return wrap(r.client.Update(ctx, q, map[string]any{"read": true}))
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	q := remote.From(models.TableNotifications).Eq("user_id", userID).Is("read", false)
	return wrap(r.client.Update(ctx, q, map[string]any{"read": true}))
}
