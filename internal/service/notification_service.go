package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"softspot/internal/featureflags"
	"softspot/internal/middleware"
	"softspot/internal/models"
	"softspot/internal/repository"
)

// Publisher pushes a payload to a user's live channel.
type Publisher interface {
	PublishUser(ctx context.Context, userID, payload string) error
}

// NotificationService stores notifications remotely and pushes them live to
// connected sockets.
type NotificationService struct {
	repo      repository.NotificationRepository
	publisher Publisher
	flags     *featureflags.Manager
	now       func() time.Time
}

func NewNotificationService(repo repository.NotificationRepository, publisher Publisher, flags *featureflags.Manager) *NotificationService {
	return &NotificationService{repo: repo, publisher: publisher, flags: flags, now: utcNow}
}

// liveEvent is the frame sent over the notification socket.
type liveEvent struct {
	Type    string               `json:"type"`
	Payload *models.Notification `json:"payload"`
}

// Notify implements Notifier.
func (s *NotificationService) Notify(ctx context.Context, userID, kind, title, body, refID string) error {
	n := &models.Notification{
		ID:        newID(),
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		RefID:     refID,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}

	if s.publisher == nil || !s.flags.Enabled(featureflags.LiveNotifications, userID) {
		return nil
	}
	frame, err := json.Marshal(liveEvent{Type: "notification", Payload: n})
	if err != nil {
		return err
	}
	if err := s.publisher.PublishUser(ctx, userID, string(frame)); err != nil {
		// The row is stored; the client will see it on the next fetch.
		middleware.Logger.WarnContext(ctx, "Failed to publish live notification",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (s *NotificationService) List(ctx context.Context, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, id.UserID, unreadOnly, limit, offset)
}

func (s *NotificationService) MarkRead(ctx context.Context, notificationID string) error {
	id, err := requireIdentity(ctx)
	if err != nil {
		return err
	}
	return s.repo.MarkRead(ctx, id.UserID, notificationID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context) error {
	id, err := requireIdentity(ctx)
	if err != nil {
		return err
	}
	return s.repo.MarkAllRead(ctx, id.UserID)
}
