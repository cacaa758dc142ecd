package models

import (
	"time"

	"gorm.io/datatypes"
)

// Outbox operations.
const (
	OpUpsert = "UPSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
	OpRPC    = "RPC"
)

// LocalSlot is one named slot of the local persistence shim when it is backed
// by SQL. Data holds a JSON document (usually an array of records).
type LocalSlot struct {
	Key       string    `gorm:"column:slot_key;primaryKey;size:191"`
	Data      string    `gorm:"type:text"`
	UpdatedAt time.Time
}

func (LocalSlot) TableName() string { return "local_slots" }

// OutboxEvent is a durable intent to apply one write to the remote store.
// It is resolved (ProcessedAt set) only after the remote acknowledged it.
type OutboxEvent struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Table         string         `gorm:"column:target_table;not null;index:idx_outbox_entity" json:"table"`
	EntityID      string         `gorm:"not null;index:idx_outbox_entity;size:191" json:"entity_id"`
	Op            string         `gorm:"not null;size:16" json:"op"`
	Payload       datatypes.JSON `json:"payload"`
	Match         datatypes.JSON `json:"match,omitempty"`
	OnConflict    string         `gorm:"size:191" json:"on_conflict,omitempty"`
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`
	LastError     string         `gorm:"type:text" json:"last_error,omitempty"`
	NextAttemptAt time.Time      `gorm:"index" json:"next_attempt_at"`
	LeasedUntil   *time.Time     `json:"leased_until,omitempty"`
	ProcessedAt   *time.Time     `gorm:"index" json:"processed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// DLQEntry holds an outbox event that exhausted its attempts.
type DLQEntry struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	OutboxID   int64          `gorm:"index" json:"outbox_id"`
	Table      string         `gorm:"column:target_table;not null" json:"table"`
	EntityID   string         `gorm:"not null;size:191" json:"entity_id"`
	Op         string         `gorm:"not null;size:16" json:"op"`
	Payload    datatypes.JSON `json:"payload"`
	Match      datatypes.JSON `json:"match,omitempty"`
	OnConflict string         `gorm:"size:191" json:"on_conflict,omitempty"`
	ErrorMsg   string         `gorm:"type:text" json:"error_msg"`
	RetriedAt  *time.Time     `json:"retried_at,omitempty"`
	Resolved   bool           `gorm:"not null;default:false;index" json:"resolved"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (DLQEntry) TableName() string { return "outbox_dlq" }
