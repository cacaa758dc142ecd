package localstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"softspot/internal/middleware"
	"softspot/internal/observability"

	"gorm.io/gorm"
)

// Kind names a slot.
type Kind string

const (
	KindPosts               Kind = "posts"
	KindComments            Kind = "comments"
	KindLikedPosts          Kind = "likedPosts"
	KindMarketplaceListings Kind = "marketplaceListings"
	KindCurrentUserID       Kind = "currentUserId"
	KindCurrentUsername     Kind = "currentUsername"
	KindUserWishlist        Kind = "userWishlist"
)

// ErrRecordNotFound is reported by Replace when no record carries the id.
var ErrRecordNotFound = errors.New("record not found in slot")

// Result reports the outcome of a shim write. Storage errors are carried
// here instead of being returned or panicking.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func ok() Result { return Result{Success: true} }

func failed(op string, kind Kind, err error) Result {
	observability.LocalStoreErrors.WithLabelValues(op).Inc()
	middleware.Logger.Warn("Local store operation failed",
		slog.String("op", op),
		slog.String("slot", string(kind)),
		slog.String("error", err.Error()),
	)
	return Result{Success: false, Error: err.Error()}
}

// Err converts a failed Result into an error so callers inside a transaction can abort.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return errors.New(r.Error)
}

// TxBinder is implemented by backends whose writes can join a gorm transaction.
type TxBinder interface {
	Bind(tx *gorm.DB) Backend
}

// Shim reads and writes record arrays in named slots.
type Shim struct {
	backend   Backend
	namespace string
}

// New returns a shim over backend. Keys are prefixed with namespace.
func New(backend Backend, namespace string) *Shim {
	return &Shim{backend: backend, namespace: namespace}
}

// Namespace returns a shim over the same backend scoped under ns.
func (s *Shim) Namespace(ns string) *Shim {
	return &Shim{backend: s.backend, namespace: s.namespace + ":" + ns}
}

// Tx returns a shim whose writes are part of tx when the backend supports it.
// Other backends write immediately.
func (s *Shim) Tx(tx *gorm.DB) *Shim {
	if binder, ok := s.backend.(TxBinder); ok && tx != nil {
		return &Shim{backend: binder.Bind(tx), namespace: s.namespace}
	}
	return s
}

func (s *Shim) key(kind Kind) string {
	return s.namespace + ":" + string(kind)
}

// decodeSlot parses a slot payload. Absent or malformed payloads yield an empty list.
func (s *Shim) decodeSlot(kind Kind, data []byte) []json.RawMessage {
	if len(bytes.TrimSpace(data)) == 0 {
		return []json.RawMessage{}
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		observability.LocalStoreErrors.WithLabelValues("decode").Inc()
		middleware.Logger.Warn("Discarding malformed local slot",
			slog.String("slot", s.key(kind)),
			slog.String("error", err.Error()),
		)
		return []json.RawMessage{}
	}
	return records
}

// All returns the raw records of kind.
func (s *Shim) All(ctx context.Context, kind Kind) ([]json.RawMessage, Result) {
	data, _, err := s.backend.Get(ctx, s.key(kind))
	if err != nil {
		return []json.RawMessage{}, failed("get", kind, err)
	}
	return s.decodeSlot(kind, data), ok()
}

// Update applies fn to the records of kind atomically.
func (s *Shim) Update(ctx context.Context, kind Kind, fn func([]json.RawMessage) ([]json.RawMessage, error)) Result {
	err := s.backend.Update(ctx, s.key(kind), func(current []byte) ([]byte, error) {
		next, err := fn(s.decodeSlot(kind, current))
		if err != nil {
			return nil, err
		}
		if next == nil {
			next = []json.RawMessage{}
		}
		return json.Marshal(next)
	})
	if err != nil {
		return failed("update", kind, err)
	}
	return ok()
}

// Add appends record to kind, or prepends it when prepend is set. No
// uniqueness check is made.
func (s *Shim) Add(ctx context.Context, kind Kind, record any, prepend bool) Result {
	raw, err := json.Marshal(record)
	if err != nil {
		return failed("add", kind, err)
	}
	return s.Update(ctx, kind, func(records []json.RawMessage) ([]json.RawMessage, error) {
		if prepend {
			return append([]json.RawMessage{raw}, records...), nil
		}
		return append(records, raw), nil
	})
}

// Replace swaps the record carrying id for record, keeping its position.
func (s *Shim) Replace(ctx context.Context, kind Kind, id string, record any) Result {
	raw, err := json.Marshal(record)
	if err != nil {
		return failed("replace", kind, err)
	}
	return s.Update(ctx, kind, func(records []json.RawMessage) ([]json.RawMessage, error) {
		for i, r := range records {
			if recordID(r) == id {
				records[i] = raw
				return records, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	})
}

// Upsert replaces the record carrying id, or adds record when none does.
func (s *Shim) Upsert(ctx context.Context, kind Kind, id string, record any, prepend bool) Result {
	raw, err := json.Marshal(record)
	if err != nil {
		return failed("upsert", kind, err)
	}
	return s.Update(ctx, kind, func(records []json.RawMessage) ([]json.RawMessage, error) {
		for i, r := range records {
			if recordID(r) == id {
				records[i] = raw
				return records, nil
			}
		}
		if prepend {
			return append([]json.RawMessage{raw}, records...), nil
		}
		return append(records, raw), nil
	})
}

// DeleteByID removes every record carrying id. Removing an absent id succeeds.
func (s *Shim) DeleteByID(ctx context.Context, kind Kind, id string) Result {
	return s.Update(ctx, kind, func(records []json.RawMessage) ([]json.RawMessage, error) {
		kept := records[:0]
		for _, r := range records {
			if recordID(r) != id {
				kept = append(kept, r)
			}
		}
		return kept, nil
	})
}

// DeleteWhere removes records for which match reports true.
func (s *Shim) DeleteWhere(ctx context.Context, kind Kind, match func(json.RawMessage) bool) Result {
	return s.Update(ctx, kind, func(records []json.RawMessage) ([]json.RawMessage, error) {
		kept := records[:0]
		for _, r := range records {
			if !match(r) {
				kept = append(kept, r)
			}
		}
		return kept, nil
	})
}

// Clear drops the slot.
func (s *Shim) Clear(ctx context.Context, kind Kind) Result {
	if err := s.backend.Delete(ctx, s.key(kind)); err != nil {
		return failed("clear", kind, err)
	}
	return ok()
}

// recordID extracts the id of a record. Plain JSON strings (the likedPosts
// slot) are their own id.
func recordID(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var withID struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &withID); err == nil {
		return withID.ID
	}
	return ""
}

// Load decodes the records of kind into T. Records that do not decode are skipped.
func Load[T any](ctx context.Context, s *Shim, kind Kind) ([]T, Result) {
	raws, res := s.All(ctx, kind)
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			middleware.Logger.Debug("Skipping undecodable local record",
				slog.String("slot", s.key(kind)),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, v)
	}
	return out, res
}

// Find returns the record of kind carrying id.
func Find[T any](ctx context.Context, s *Shim, kind Kind, id string) (T, bool) {
	var zero T
	raws, _ := s.All(ctx, kind)
	for _, raw := range raws {
		if recordID(raw) != id {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return zero, false
		}
		return v, true
	}
	return zero, false
}
