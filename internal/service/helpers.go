package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"softspot/internal/identity"
	"softspot/internal/localstore"
	"softspot/internal/middleware"
	"softspot/internal/models"
	"softspot/internal/outbox"
	"softspot/internal/remote"

	"github.com/google/uuid"
)

// Notifier delivers a notification to one user.
type Notifier interface {
	Notify(ctx context.Context, userID, kind, title, body, refID string) error
}

func requireIdentity(ctx context.Context) (identity.Identity, error) {
	id, ok := identity.From(ctx)
	if !ok {
		return identity.Identity{}, models.NewAuthRequiredError()
	}
	return id, nil
}

// requireSession is requireIdentity for writes. The caller must also be
// signed in on this device; SignOut clears that.
func requireSession(ctx context.Context, local *Local) (identity.Identity, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return identity.Identity{}, err
	}
	current, ok := local.UserShim(id.UserID).CurrentIdentity(ctx)
	if !ok || current.UserID != id.UserID {
		return identity.Identity{}, models.NewAuthRequiredError()
	}
	return id, nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// notify is best effort. Failures are logged.
func notify(ctx context.Context, n Notifier, userID, kind, title, body, refID string) {
	if n == nil || userID == "" {
		return
	}
	if err := n.Notify(ctx, userID, kind, title, body, refID); err != nil {
		middleware.Logger.WarnContext(ctx, "Failed to send notification",
			slog.String("kind", kind),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// counterIntent adjusts a post counter remotely. It shares the post's entity
// key so it applies after the post itself.
func counterIntent(postID, counter string, delta int) outbox.Intent {
	return outbox.Intent{
		Table:    models.TablePosts,
		Op:       models.OpRPC,
		EntityID: postID,
		Payload: outbox.RPCCall{Fn: "adjust_post_counter", Args: map[string]any{
			"p_post_id": postID,
			"p_counter": counter,
			"p_delta":   delta,
		}},
	}
}

// adjustSlotCounter moves a post counter in the post slots, clamped at zero.
func adjustSlotCounter(ctx context.Context, shim *localstore.Shim, postID, counter string, delta int) error {
	for _, kind := range []localstore.Kind{localstore.KindPosts, localstore.KindMarketplaceListings} {
		res := shim.Update(ctx, kind, func(records []json.RawMessage) ([]json.RawMessage, error) {
			for i, raw := range records {
				var p models.Post
				if err := json.Unmarshal(raw, &p); err != nil || p.ID != postID {
					continue
				}
				switch counter {
				case remote.CounterLikes:
					p.Likes = max(p.Likes+delta, 0)
				case remote.CounterComments:
					p.Comments = max(p.Comments+delta, 0)
				}
				updated, err := json.Marshal(p)
				if err != nil {
					return nil, err
				}
				records[i] = updated
			}
			return records, nil
		})
		if err := res.Err(); err != nil {
			return err
		}
	}
	return nil
}

// isRemoteFailure reports whether err came from the remote store or the
// network rather than from a rule of ours.
func isRemoteFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == models.CodeRemote
	}
	return true
}
