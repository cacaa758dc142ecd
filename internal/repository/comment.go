package repository

import (
	"context"

	"softspot/internal/models"
	"softspot/internal/remote"
)

// CommentRepository defines remote reads on comments.
type CommentRepository interface {
	ListByPost(ctx context.Context, postID string, limit, offset int) ([]models.Comment, error)
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
}

type commentRepository struct {
	client remote.Client
}

func NewCommentRepository(client remote.Client) CommentRepository {
	return &commentRepository{client: client}
}

func (r *commentRepository) ListByPost(ctx context.Context, postID string, limit, offset int) ([]models.Comment, error) {
	limit, offset = clampPage(limit, offset)
	comments := []models.Comment{}
	q := remote.From(models.TableComments).Eq("post_id", postID).OrderBy("created_at", false).Page(limit, offset)
	if err := r.client.Select(ctx, q, &comments); err != nil {
		return nil, wrap(err)
	}
	return comments, nil
}

func (r *commentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	return first[models.Comment](ctx, r.client, remote.From(models.TableComments).Eq("id", id), "Comment", id)
}

func (r *commentRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	n, err := r.client.Count(ctx, remote.From(models.TableComments).Eq("user_id", userID))
	return n, wrap(err)
}
