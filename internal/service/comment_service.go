package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"softspot/internal/featureflags"
	"softspot/internal/forms"
	"softspot/internal/identity"
	"softspot/internal/localstore"
	"softspot/internal/models"
	"softspot/internal/outbox"
	"softspot/internal/remote"
	"softspot/internal/repository"

	"gorm.io/gorm"
)

// CommentService handles replies on posts. Comment intents are keyed by the
// post id so every write about a post's comments applies in order.
type CommentService struct {
	comments repository.CommentRepository
	posts    *PostService
	local    *Local
	flags    *featureflags.Manager
	notifier Notifier
	now      func() time.Time
}

type CommentInput struct {
	Content string `json:"content"`
}

// CommentPage is a read result; see PostPage.
type CommentPage struct {
	Comments []models.Comment `json:"comments"`
	Stale    bool             `json:"stale"`
}

func NewCommentService(
	comments repository.CommentRepository,
	posts *PostService,
	local *Local,
	flags *featureflags.Manager,
	notifier Notifier,
) *CommentService {
	return &CommentService{
		comments: comments,
		posts:    posts,
		local:    local,
		flags:    flags,
		notifier: notifier,
		now:      utcNow,
	}
}

func commentIDOf(c models.Comment) string { return c.ID }

func commentOfPost(postID string) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		var c struct {
			PostID string `json:"post_id"`
		}
		return json.Unmarshal(raw, &c) == nil && c.PostID == postID
	}
}

func sortOldestFirst(comments []models.Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
}

// AddComment replies to a post and bumps its comment counter.
func (s *CommentService) AddComment(ctx context.Context, postID string, in CommentInput) (*models.Comment, error) {
	id, err := requireSession(ctx, s.local)
	if err != nil {
		return nil, err
	}
	if err := forms.CommentDraft.Check(in); err != nil {
		return nil, err
	}
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	comment := models.Comment{
		ID:        newID(),
		PostID:    postID,
		UserID:    id.UserID,
		Username:  id.Username,
		Content:   strings.TrimSpace(in.Content),
		Likes:     []models.CommentLike{},
		CreatedAt: s.now(),
	}

	err = s.local.Write(ctx, func(tx *gorm.DB, shim *localstore.Shim) error {
		if err := outbox.EnqueueAll(tx,
			outbox.Intent{Table: models.TableComments, Op: models.OpUpsert, EntityID: postID, Payload: comment},
			counterIntent(postID, remote.CounterComments, 1),
		); err != nil {
			return err
		}
		if err := shim.Add(ctx, localstore.KindComments, comment, false).Err(); err != nil {
			return err
		}
		return adjustSlotCounter(ctx, shim, postID, remote.CounterComments, 1)
	})
	if err != nil {
		return nil, err
	}

	if post.UserID != id.UserID {
		notify(ctx, s.notifier, post.UserID, models.NotifyComment,
			"New comment", id.Username+" commented on "+post.Title, postID)
	}
	return &comment, nil
}

// ListComments returns a post's comments, oldest first.
func (s *CommentService) ListComments(ctx context.Context, postID string, limit, offset int) (*CommentPage, error) {
	rows, err := s.comments.ListByPost(ctx, postID, limit, offset)
	if err != nil {
		id, _ := identity.From(ctx)
		if !s.flags.Enabled(featureflags.OfflineFallback, id.UserID) || !isRemoteFailure(err) {
			return nil, err
		}
		local, _ := localstore.Load[models.Comment](ctx, s.local.Shim(), localstore.KindComments)
		out := make([]models.Comment, 0, len(local))
		for _, c := range local {
			if c.PostID == postID {
				out = append(out, c)
			}
		}
		sortOldestFirst(out)
		return &CommentPage{Comments: out, Stale: true}, nil
	}

	merged := overlay(rows, s.local.Pending(ctx, models.TableComments), commentIDOf, offset == 0)
	out := make([]models.Comment, 0, len(merged))
	for _, c := range merged {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	sortOldestFirst(out)
	return &CommentPage{Comments: out}, nil
}

// getComment finds a comment remotely or among pending writes.
func (s *CommentService) getComment(ctx context.Context, commentID string) (*models.Comment, error) {
	var rows []models.Comment
	c, err := s.comments.GetByID(ctx, commentID)
	switch {
	case err == nil:
		rows = []models.Comment{*c}
	case models.HasCode(err, models.CodeNotFound):
	default:
		return nil, err
	}
	for _, candidate := range overlay(rows, s.local.Pending(ctx, models.TableComments), commentIDOf, true) {
		if candidate.ID == commentID {
			return &candidate, nil
		}
	}
	return nil, models.NewNotFoundError("Comment", commentID)
}

// ToggleCommentLike flips the caller in the comment's like-set. The intent
// names only the caller, so likes from other users survive it.
func (s *CommentService) ToggleCommentLike(ctx context.Context, commentID string) (*models.Comment, error) {
	id, err := requireSession(ctx, s.local)
	if err != nil {
		return nil, err
	}
	comment, err := s.getComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	liked := comment.ToggleLike(id.UserID)

	err = s.local.Write(ctx, func(tx *gorm.DB, shim *localstore.Shim) error {
		if err := outbox.Enqueue(tx, outbox.Intent{
			Table:    models.TableComments,
			Op:       models.OpRPC,
			EntityID: comment.PostID,
			Payload: outbox.RPCCall{Fn: "set_comment_like", Args: map[string]any{
				"p_comment_id": comment.ID,
				"p_user_id":    id.UserID,
				"p_liked":      liked,
			}},
		}); err != nil {
			return err
		}
		return shim.Upsert(ctx, localstore.KindComments, comment.ID, comment, false).Err()
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// DeleteComment removes the caller's own comment.
func (s *CommentService) DeleteComment(ctx context.Context, commentID string) error {
	id, err := requireSession(ctx, s.local)
	if err != nil {
		return err
	}
	comment, err := s.getComment(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.UserID != id.UserID {
		return models.NewUnauthorizedError("You can only delete your own comments")
	}

	return s.local.Write(ctx, func(tx *gorm.DB, shim *localstore.Shim) error {
		if err := outbox.EnqueueAll(tx,
			outbox.Intent{Table: models.TableComments, Op: models.OpDelete, EntityID: comment.PostID, Match: map[string]any{"id": comment.ID}},
			counterIntent(comment.PostID, remote.CounterComments, -1),
		); err != nil {
			return err
		}
		if err := shim.DeleteByID(ctx, localstore.KindComments, comment.ID).Err(); err != nil {
			return err
		}
		return adjustSlotCounter(ctx, shim, comment.PostID, remote.CounterComments, -1)
	})
}
