package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"softspot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RPCFunc implements a remote procedure against the SQL store.
type RPCFunc func(ctx context.Context, db *gorm.DB, args map[string]any) (any, error)

// SQL runs queries directly against the relational store with gorm.
type SQL struct {
	db   *gorm.DB
	rpcs map[string]RPCFunc
}

// NewSQL wraps db and registers the built-in procedures.
func NewSQL(db *gorm.DB) *SQL {
	s := &SQL{db: db, rpcs: make(map[string]RPCFunc)}
	s.Register("create_user_safe", createUserSafe)
	s.Register("adjust_post_counter", adjustPostCounter)
	s.Register("set_comment_like", setCommentLike)
	return s
}

// Register installs fn under name.
func (s *SQL) Register(name string, fn RPCFunc) {
	s.rpcs[name] = fn
}

// DB exposes the underlying handle for readiness checks and seeding.
func (s *SQL) DB() *gorm.DB {
	return s.db
}

func (s *SQL) scoped(ctx context.Context, q Query) (*gorm.DB, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	tx := s.db.WithContext(ctx).Table(q.Table)
	for _, f := range q.Filters {
		var err error
		if tx, err = s.applyFilter(tx, f); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

func (s *SQL) applyFilter(tx *gorm.DB, f Filter) (*gorm.DB, error) {
	col := f.Column
	switch f.Op {
	case OpEq:
		return tx.Where(col+" = ?", f.Value), nil
	case OpNeq:
		return tx.Where(col+" <> ?", f.Value), nil
	case OpGt:
		return tx.Where(col+" > ?", f.Value), nil
	case OpGte:
		return tx.Where(col+" >= ?", f.Value), nil
	case OpLt:
		return tx.Where(col+" < ?", f.Value), nil
	case OpLte:
		return tx.Where(col+" <= ?", f.Value), nil
	case OpIn:
		values, err := toStrings(f.Value)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			return tx.Where("1 = 0"), nil
		}
		return tx.Where(col+" IN ?", values), nil
	case OpIs:
		switch f.Value {
		case nil:
			return tx.Where(col + " IS NULL"), nil
		case true, false:
			return tx.Where(col+" = ?", f.Value), nil
		default:
			return nil, fmt.Errorf("is filter on %s needs nil, true or false", col)
		}
	case OpILike:
		pattern := strings.ReplaceAll(scalarString(f.Value), "*", "%")
		if s.db.Dialector.Name() == "postgres" {
			return tx.Where(col+" ILIKE ?", pattern), nil
		}
		return tx.Where("LOWER("+col+") LIKE LOWER(?)", pattern), nil
	default:
		return nil, fmt.Errorf("unsupported filter operator %q", f.Op)
	}
}

func (s *SQL) Select(ctx context.Context, q Query, dest any) error {
	tx, err := s.scoped(ctx, q)
	if err != nil {
		return err
	}
	for _, o := range q.Order {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Column}, Desc: o.Desc})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	return wrapSQLError(tx.Find(dest).Error)
}

func (s *SQL) Count(ctx context.Context, q Query) (int64, error) {
	tx, err := s.scoped(ctx, q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return 0, wrapSQLError(err)
	}
	return n, nil
}

func (s *SQL) Insert(ctx context.Context, table string, row any) error {
	model, err := typedRow(table, row)
	if err != nil {
		return err
	}
	return wrapSQLError(s.db.WithContext(ctx).Create(model).Error)
}

func (s *SQL) Upsert(ctx context.Context, table string, row any, onConflict ...string) error {
	model, err := typedRow(table, row)
	if err != nil {
		return err
	}
	conflict := clause.OnConflict{UpdateAll: true}
	for _, c := range onConflict {
		conflict.Columns = append(conflict.Columns, clause.Column{Name: c})
	}
	return wrapSQLError(s.db.WithContext(ctx).Clauses(conflict).Create(model).Error)
}

func (s *SQL) Update(ctx context.Context, q Query, values map[string]any) error {
	if len(q.Filters) == 0 {
		return fmt.Errorf("refusing unfiltered update on %s", q.Table)
	}
	tx, err := s.scoped(ctx, q)
	if err != nil {
		return err
	}
	for col := range values {
		if !identifierRE.MatchString(col) {
			return fmt.Errorf("invalid update column %q", col)
		}
	}
	return wrapSQLError(tx.Updates(flattenValues(values)).Error)
}

func (s *SQL) Delete(ctx context.Context, q Query) error {
	if len(q.Filters) == 0 {
		return fmt.Errorf("refusing unfiltered delete on %s", q.Table)
	}
	model, ok := models.NewRemoteModel(q.Table)
	if !ok {
		return fmt.Errorf("unknown table %q", q.Table)
	}
	tx, err := s.scoped(ctx, q)
	if err != nil {
		return err
	}
	return wrapSQLError(tx.Delete(model).Error)
}

func (s *SQL) RPC(ctx context.Context, fn string, args map[string]any, dest any) error {
	impl, ok := s.rpcs[fn]
	if !ok {
		return &Error{Status: 404, Code: "PGRST202", Message: fmt.Sprintf("Could not find the function %s", fn)}
	}
	result, err := impl(ctx, s.db.WithContext(ctx), args)
	if err != nil {
		return wrapSQLError(err)
	}
	if dest == nil || result == nil {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// typedRow converts row into the table's model so gorm can map JSON columns.
func typedRow(table string, row any) (any, error) {
	model, ok := models.NewRemoteModel(table)
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	var raw []byte
	switch t := row.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		var err error
		if raw, err = json.Marshal(row); err != nil {
			return nil, fmt.Errorf("encode %s row: %w", table, err)
		}
	}
	if err := json.Unmarshal(raw, model); err != nil {
		return nil, fmt.Errorf("decode %s row: %w", table, err)
	}
	return model, nil
}

// flattenValues encodes nested values as JSON text for JSON columns.
func flattenValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		switch v.(type) {
		case []any, []string, map[string]any:
			raw, _ := json.Marshal(v)
			out[k] = string(raw)
		default:
			out[k] = v
		}
	}
	return out
}

func wrapSQLError(err error) error {
	if err == nil {
		return nil
	}
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	status := 500
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "duplicate key") {
		status = 409
	}
	return &Error{Status: status, Message: err.Error()}
}
