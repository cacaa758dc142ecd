package localstore

import (
	"context"
	"errors"
	"time"

	"softspot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBackend stores slots as rows of local_slots.
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend wraps db. The local_slots table must already be migrated.
func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db}
}

// Bind returns a backend whose writes join tx.
func (g *GormBackend) Bind(tx *gorm.DB) Backend {
	return &GormBackend{db: tx}
}

func (g *GormBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var slot models.LocalSlot
	err := g.db.WithContext(ctx).Where("slot_key = ?", key).Take(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(slot.Data), true, nil
}

func (g *GormBackend) Set(ctx context.Context, key string, data []byte) error {
	return upsertSlot(g.db.WithContext(ctx), key, data)
}

func (g *GormBackend) Delete(ctx context.Context, key string) error {
	return g.db.WithContext(ctx).Where("slot_key = ?", key).Delete(&models.LocalSlot{}).Error
}

// Update reads the row under a row lock on Postgres. SQLite serializes writers itself.
func (g *GormBackend) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("slot_key = ?", key)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var slot models.LocalSlot
		var current []byte
		err := q.Take(&slot).Error
		switch {
		case err == nil:
			current = []byte(slot.Data)
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		return upsertSlot(tx, key, next)
	})
}

func upsertSlot(db *gorm.DB, key string, data []byte) error {
	slot := models.LocalSlot{Key: key, Data: string(data), UpdatedAt: time.Now().UTC()}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&slot).Error
}
