// Package outbox carries local writes to the remote store. Intents are
// written in the same transaction as the local change and a background
// worker applies them, retrying with backoff until the remote acknowledges.
package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"softspot/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Intent describes one remote write.
//
// UPSERT sends Payload as the row. UPDATE sends Payload as the column values
// for rows matching Match. DELETE removes rows matching Match (or id =
// EntityID when Match is empty). RPC sends Payload as an RPCCall; Table and
// EntityID then name the entity the procedure affects.
type Intent struct {
	Table      string
	Op         string
	EntityID   string
	Payload    any
	Match      map[string]any
	OnConflict []string
}

// RPCCall is the payload of an RPC intent.
type RPCCall struct {
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

// Enqueue records in inside tx.
func Enqueue(tx *gorm.DB, in Intent) error {
	if in.Table == "" || in.EntityID == "" {
		return errors.New("outbox intent needs a table and an entity id")
	}
	switch in.Op {
	case models.OpUpsert, models.OpUpdate, models.OpDelete, models.OpRPC:
	default:
		return fmt.Errorf("unknown outbox op %q", in.Op)
	}

	event := models.OutboxEvent{
		Table:         in.Table,
		EntityID:      in.EntityID,
		Op:            in.Op,
		OnConflict:    strings.Join(in.OnConflict, ","),
		NextAttemptAt: time.Now().UTC(),
	}
	if in.Payload != nil {
		data, err := json.Marshal(in.Payload)
		if err != nil {
			return fmt.Errorf("encode outbox payload: %w", err)
		}
		event.Payload = datatypes.JSON(data)
	}
	if len(in.Match) > 0 {
		data, err := json.Marshal(in.Match)
		if err != nil {
			return fmt.Errorf("encode outbox match: %w", err)
		}
		event.Match = datatypes.JSON(data)
	}

	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// EnqueueAll records every intent in order.
func EnqueueAll(tx *gorm.DB, intents ...Intent) error {
	for _, in := range intents {
		if err := Enqueue(tx, in); err != nil {
			return err
		}
	}
	return nil
}
