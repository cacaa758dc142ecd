package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"softspot/internal/localstore"
	"softspot/internal/middleware"
	"softspot/internal/models"
	"softspot/internal/outbox"

	"gorm.io/gorm"
)

// Local is the device side of every write: the SQL database that holds the
// outbox and the persistence shim.
type Local struct {
	db   *gorm.DB
	shim *localstore.Shim
	box  *outbox.Store
}

// NewLocal binds the outbox store and the shim. When the shim is backed by
// the same database, slot writes join the outbox transaction.
func NewLocal(box *outbox.Store, shim *localstore.Shim) *Local {
	return &Local{db: box.DB(), shim: shim, box: box}
}

// Shim is the global (shared) namespace.
func (l *Local) Shim() *localstore.Shim {
	return l.shim
}

// UserShim is the namespace of one user's private slots.
func (l *Local) UserShim(userID string) *localstore.Shim {
	return l.shim.Namespace("user:" + userID)
}

// Write runs fn in one local transaction. Enqueue intents on tx before
// touching slots through the bound shim.
func (l *Local) Write(ctx context.Context, fn func(tx *gorm.DB, shim *localstore.Shim) error) error {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, l.shim.Tx(tx))
	})
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewInternalError(err)
}

// Pending returns the unresolved intents for table. A failure is logged and
// yields no overlay.
func (l *Local) Pending(ctx context.Context, table string) []models.OutboxEvent {
	events, err := l.box.Pending(ctx, table)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "Failed to read pending outbox events",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return events
}

func utcNow() time.Time { return time.Now().UTC() }
