package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"softspot/internal/models"
	"softspot/internal/remote"
)

// Apply performs the remote write described by e.
func Apply(ctx context.Context, client remote.Client, e models.OutboxEvent) error {
	switch e.Op {
	case models.OpUpsert:
		var conflict []string
		if e.OnConflict != "" {
			conflict = strings.Split(e.OnConflict, ",")
		}
		return client.Upsert(ctx, e.Table, json.RawMessage(e.Payload), conflict...)

	case models.OpUpdate:
		var values map[string]any
		if err := json.Unmarshal(e.Payload, &values); err != nil {
			return fmt.Errorf("decode update payload: %w", err)
		}
		q, err := matchQuery(e)
		if err != nil {
			return err
		}
		return client.Update(ctx, q, values)

	case models.OpDelete:
		q, err := matchQuery(e)
		if err != nil {
			return err
		}
		return client.Delete(ctx, q)

	case models.OpRPC:
		var call RPCCall
		if err := json.Unmarshal(e.Payload, &call); err != nil {
			return fmt.Errorf("decode rpc payload: %w", err)
		}
		return client.RPC(ctx, call.Fn, call.Args, nil)
	}
	return fmt.Errorf("unknown outbox op %q", e.Op)
}

// matchQuery turns the event's Match into equality filters. Without a Match
// the row is addressed by id.
func matchQuery(e models.OutboxEvent) (remote.Query, error) {
	q := remote.From(e.Table)
	if len(e.Match) == 0 {
		return q.Eq("id", e.EntityID), nil
	}
	var match map[string]any
	if err := json.Unmarshal(e.Match, &match); err != nil {
		return q, fmt.Errorf("decode match: %w", err)
	}
	for _, col := range sortedKeys(match) {
		q = q.Eq(col, match[col])
	}
	return q, nil
}
