// Package remote is the data client for the hosted relational store. The REST
// implementation speaks PostgREST (Supabase); the SQL implementation runs the
// same queries through gorm.
package remote

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Client performs reads, writes and RPC calls against the remote store. It
// does no authorization and no retry.
type Client interface {
	Select(ctx context.Context, q Query, dest any) error
	Count(ctx context.Context, q Query) (int64, error)
	Insert(ctx context.Context, table string, row any) error
	Upsert(ctx context.Context, table string, row any, onConflict ...string) error
	Update(ctx context.Context, q Query, values map[string]any) error
	Delete(ctx context.Context, q Query) error
	RPC(ctx context.Context, fn string, args map[string]any, dest any) error
}

// Op is a filter operator using PostgREST names.
type Op string

const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
	OpIn    Op = "in"
	OpIs    Op = "is"
	OpILike Op = "ilike"
)

// Filter restricts rows by Column Op Value. For OpIn Value is a slice; for
// OpIs it is nil, true or false. OpILike patterns use * as the wildcard.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Order sorts by Column.
type Order struct {
	Column string
	Desc   bool
}

// Query selects rows of Table.
type Query struct {
	Table   string
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}

// From starts a query on table.
func From(table string) Query {
	return Query{Table: table}
}

func (q Query) where(column string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: column, Op: op, Value: value})
	return q
}

func (q Query) Eq(column string, value any) Query { return q.where(column, OpEq, value) }
func (q Query) Neq(column string, value any) Query { return q.where(column, OpNeq, value) }
func (q Query) Gt(column string, value any) Query { return q.where(column, OpGt, value) }
func (q Query) Gte(column string, value any) Query { return q.where(column, OpGte, value) }
func (q Query) Lt(column string, value any) Query { return q.where(column, OpLt, value) }
func (q Query) Lte(column string, value any) Query { return q.where(column, OpLte, value) }
func (q Query) In(column string, values any) Query { return q.where(column, OpIn, values) }
func (q Query) Is(column string, value any) Query { return q.where(column, OpIs, value) }
func (q Query) ILike(column, pattern string) Query { return q.where(column, OpILike, pattern) }

// OrderBy appends a sort key.
func (q Query) OrderBy(column string, desc bool) Query {
	q.Order = append(append([]Order(nil), q.Order...), Order{Column: column, Desc: desc})
	return q
}

// Page sets limit and offset.
func (q Query) Page(limit, offset int) Query {
	q.Limit, q.Offset = limit, offset
	return q
}

var identifierRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate rejects identifiers that could not be a table or column name.
func (q Query) Validate() error {
	if !identifierRE.MatchString(q.Table) {
		return fmt.Errorf("invalid table %q", q.Table)
	}
	for _, f := range q.Filters {
		if !identifierRE.MatchString(f.Column) {
			return fmt.Errorf("invalid filter column %q", f.Column)
		}
		switch f.Op {
		case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpIs, OpILike:
		default:
			return fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}
	for _, o := range q.Order {
		if !identifierRE.MatchString(o.Column) {
			return fmt.Errorf("invalid order column %q", o.Column)
		}
	}
	return nil
}

// Error is a failure reported by the remote store. Message is the store's own
// text and is passed through to callers unchanged.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("remote store returned status %d", e.Status)
}

// Temporary reports whether retrying the call could succeed.
func (e *Error) Temporary() bool {
	return e.Status == 0 || e.Status == 408 || e.Status == 429 || e.Status >= 500
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ",")
}
