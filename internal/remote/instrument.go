package remote

import (
	"context"
	"time"

	"softspot/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

type instrumented struct {
	next Client
}

// Instrument records latency and a span for every call made through next.
func Instrument(next Client) Client {
	return &instrumented{next: next}
}

func observe(ctx context.Context, operation, table string, call func(ctx context.Context) error) error {
	span, ctx := observability.StartSpan(ctx, "remote."+operation,
		attribute.String("remote.operation", operation),
		attribute.String("remote.table", table),
	)
	defer span.End()

	start := time.Now()
	err := call(ctx)
	observability.RemoteRequestLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	span.SetError(err)
	return err
}

func (i *instrumented) Select(ctx context.Context, q Query, dest any) error {
	return observe(ctx, "select", q.Table, func(ctx context.Context) error {
		return i.next.Select(ctx, q, dest)
	})
}

func (i *instrumented) Count(ctx context.Context, q Query) (int64, error) {
	var n int64
	err := observe(ctx, "count", q.Table, func(ctx context.Context) error {
		var err error
		n, err = i.next.Count(ctx, q)
		return err
	})
	return n, err
}

func (i *instrumented) Insert(ctx context.Context, table string, row any) error {
	return observe(ctx, "insert", table, func(ctx context.Context) error {
		return i.next.Insert(ctx, table, row)
	})
}

func (i *instrumented) Upsert(ctx context.Context, table string, row any, onConflict ...string) error {
	return observe(ctx, "upsert", table, func(ctx context.Context) error {
		return i.next.Upsert(ctx, table, row, onConflict...)
	})
}

func (i *instrumented) Update(ctx context.Context, q Query, values map[string]any) error {
	return observe(ctx, "update", q.Table, func(ctx context.Context) error {
		return i.next.Update(ctx, q, values)
	})
}

func (i *instrumented) Delete(ctx context.Context, q Query) error {
	return observe(ctx, "delete", q.Table, func(ctx context.Context) error {
		return i.next.Delete(ctx, q)
	})
}

func (i *instrumented) RPC(ctx context.Context, fn string, args map[string]any, dest any) error {
	return observe(ctx, "rpc", fn, func(ctx context.Context) error {
		return i.next.RPC(ctx, fn, args, dest)
	})
}
