package outbox

import (
	"context"
	"fmt"
	"sort"
	"time"

	"softspot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the outbox and DLQ tables of the local database.
type Store struct {
	db *gorm.DB
}

// NewStore wraps db. The tables must already be migrated.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB is the local database the outbox lives in. Services open their write
// transactions on it.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// claimable selects due, unleased events whose entity has no earlier event
// still waiting for its retry or leased to a worker.
func claimable(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Model(&models.OutboxEvent{}).
		Where("processed_at IS NULL AND next_attempt_at <= ?", now).
		Where("leased_until IS NULL OR leased_until < ?", now).
		Where(`NOT EXISTS (
			SELECT 1 FROM outbox_events prior
			WHERE prior.target_table = outbox_events.target_table
			  AND prior.entity_id = outbox_events.entity_id
			  AND prior.processed_at IS NULL
			  AND prior.id < outbox_events.id
			  AND (prior.next_attempt_at > ? OR prior.leased_until > ?))`, now, now).
		Order("id ASC")
}

// Claim leases up to limit due events for lease. On Postgres concurrent
// workers skip each other's locked rows.
func (s *Store) Claim(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := claimable(tx, now).Limit(limit)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&events).Error; err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]int64, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		until := now.Add(lease)
		return tx.Model(&models.OutboxEvent{}).Where("id IN ?", ids).Update("leased_until", until).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

// MarkProcessed resolves the event after the remote acknowledged it.
func (s *Store) MarkProcessed(ctx context.Context, id int64, now time.Time) error {
	return s.db.WithContext(ctx).Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(map[string]any{
		"processed_at": now,
		"leased_until": nil,
		"last_error":   "",
	}).Error
}

// MarkFailed records a failed attempt and schedules the next one.
func (s *Store) MarkFailed(ctx context.Context, id int64, attempts int, msg string, next time.Time) error {
	return s.db.WithContext(ctx).Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(map[string]any{
		"attempts":        attempts,
		"last_error":      msg,
		"next_attempt_at": next,
		"leased_until":    nil,
	}).Error
}

// MoveToDLQ copies e into the DLQ and takes it out of the queue.
func (s *Store) MoveToDLQ(ctx context.Context, e models.OutboxEvent, msg string, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := models.DLQEntry{
			OutboxID:   e.ID,
			Table:      e.Table,
			EntityID:   e.EntityID,
			Op:         e.Op,
			Payload:    e.Payload,
			Match:      e.Match,
			OnConflict: e.OnConflict,
			ErrorMsg:   msg,
			CreatedAt:  now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("insert dlq entry: %w", err)
		}
		return tx.Model(&models.OutboxEvent{}).Where("id = ?", e.ID).Updates(map[string]any{
			"attempts":     e.Attempts,
			"last_error":   msg,
			"processed_at": now,
			"leased_until": nil,
		}).Error
	})
}

// Pending returns the unresolved events targeting table, oldest first.
func (s *Store) Pending(ctx context.Context, table string) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	err := s.db.WithContext(ctx).
		Where("processed_at IS NULL AND target_table = ?", table).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

// List returns recent events for the admin view. With unresolvedOnly set
// only queued events are returned.
func (s *Store) List(ctx context.Context, unresolvedOnly bool, limit, offset int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	q := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Offset(offset)
	if unresolvedOnly {
		q = q.Where("processed_at IS NULL")
	}
	err := q.Find(&events).Error
	return events, err
}

// Stats summarizes the queue.
type Stats struct {
	Pending   int64 `json:"pending"`
	Retrying  int64 `json:"retrying"`
	Processed int64 `json:"processed"`
	DLQ       int64 `json:"dlq"`
}

// Stats counts events by state.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.OutboxEvent{}).Where("processed_at IS NULL").Count(&st.Pending).Error; err != nil {
		return st, err
	}
	if err := db.Model(&models.OutboxEvent{}).Where("processed_at IS NULL AND attempts > 0").Count(&st.Retrying).Error; err != nil {
		return st, err
	}
	if err := db.Model(&models.OutboxEvent{}).Where("processed_at IS NOT NULL").Count(&st.Processed).Error; err != nil {
		return st, err
	}
	if err := db.Model(&models.DLQEntry{}).Where("resolved = ?", false).Count(&st.DLQ).Error; err != nil {
		return st, err
	}
	return st, nil
}

// UnresolvedDLQ returns up to limit unresolved DLQ entries.
func (s *Store) UnresolvedDLQ(ctx context.Context, limit int) ([]models.DLQEntry, error) {
	var entries []models.DLQEntry
	err := s.db.WithContext(ctx).Where("resolved = ?", false).Order("id ASC").Limit(limit).Find(&entries).Error
	return entries, err
}

// DLQEntry loads one entry.
func (s *Store) DLQEntry(ctx context.Context, id int64) (*models.DLQEntry, error) {
	var entry models.DLQEntry
	if err := s.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ResolveDLQ marks the entry re-applied.
func (s *Store) ResolveDLQ(ctx context.Context, id int64, now time.Time) error {
	return s.db.WithContext(ctx).Model(&models.DLQEntry{}).Where("id = ?", id).Updates(map[string]any{
		"resolved":   true,
		"retried_at": now,
	}).Error
}

// TouchDLQ records a failed re-apply.
func (s *Store) TouchDLQ(ctx context.Context, id int64, msg string, now time.Time) error {
	return s.db.WithContext(ctx).Model(&models.DLQEntry{}).Where("id = ?", id).Updates(map[string]any{
		"error_msg":  msg,
		"retried_at": now,
	}).Error
}
