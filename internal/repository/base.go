// Package repository provides typed reads and direct writes over the remote
// data client.
package repository

import (
	"context"
	"errors"

	"softspot/internal/models"
	"softspot/internal/remote"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// wrap reports remote failures as REMOTE_ERROR with the store message kept
// verbatim. Context cancellation passes through.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewRemoteError(err)
}

// IsConflict reports whether err is a unique-constraint rejection.
func IsConflict(err error) bool {
	var rerr *remote.Error
	return errors.As(err, &rerr) && rerr.Status == 409
}

func first[T any](ctx context.Context, c remote.Client, q remote.Query, resource, id string) (*T, error) {
	var rows []T
	if err := c.Select(ctx, q.Page(1, 0), &rows); err != nil {
		return nil, wrap(err)
	}
	if len(rows) == 0 {
		return nil, models.NewNotFoundError(resource, id)
	}
	return &rows[0], nil
}
