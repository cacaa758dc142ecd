package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"softspot/internal/middleware"
	"softspot/internal/models"
	"softspot/internal/observability"
	"softspot/internal/remote"

	"go.opentelemetry.io/otel/attribute"
)

// Sink observes events after the remote store acknowledged them. Sink
// failures are logged and never affect the event's state.
type Sink interface {
	Handle(ctx context.Context, e models.OutboxEvent) error
}

// Config tunes the worker.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	DLQInterval  time.Duration
	Lease        time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.DLQInterval <= 0 {
		c.DLQInterval = 30 * time.Second
	}
	if c.Lease <= 0 {
		c.Lease = 30 * time.Second
	}
	return c
}

// Worker drains the outbox into the remote store.
type Worker struct {
	store  *Store
	remote remote.Client
	sinks  []Sink
	cfg    Config
	now    func() time.Time
	jitter func(n int64) int64
}

// NewWorker returns a worker applying events from store through client.
func NewWorker(store *Store, client remote.Client, cfg Config, sinks ...Sink) *Worker {
	return &Worker{
		store:  store,
		remote: client,
		sinks:  sinks,
		cfg:    cfg.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				middleware.Logger.Error("Outbox worker error", slog.String("error", err.Error()))
			}
		}
	}
}

// RunDLQ periodically re-applies DLQ entries until ctx is cancelled.
func (w *Worker) RunDLQ(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.DLQInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RetryDLQOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				middleware.Logger.Error("DLQ retry error", slog.String("error", err.Error()))
			}
		}
	}
}

// ProcessOnce claims one batch and applies it. It returns the number of
// events the remote acknowledged.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	now := w.now()
	events, err := w.store.Claim(ctx, w.cfg.BatchSize, now, w.cfg.Lease)
	if err != nil {
		return 0, err
	}

	applied := 0
	blocked := make(map[string]bool)
	for _, e := range events {
		key := e.Table + "/" + e.EntityID
		if blocked[key] {
			// An earlier event for this entity failed in this batch; keep order.
			if err := w.store.MarkFailed(ctx, e.ID, e.Attempts, e.LastError, e.NextAttemptAt); err != nil {
				return applied, err
			}
			continue
		}

		if err := w.apply(ctx, e); err != nil {
			blocked[key] = true
			if ferr := w.fail(ctx, e, err); ferr != nil {
				return applied, ferr
			}
			continue
		}

		if err := w.store.MarkProcessed(ctx, e.ID, w.now()); err != nil {
			return applied, err
		}
		observability.OutboxProcessed.WithLabelValues(e.Table, e.Op).Inc()
		w.notifySinks(ctx, e)
		applied++
	}

	if st, err := w.store.Stats(ctx); err == nil {
		observability.OutboxPending.Set(float64(st.Pending))
	}
	return applied, nil
}

func (w *Worker) apply(ctx context.Context, e models.OutboxEvent) error {
	span, ctx := observability.StartSpan(ctx, "outbox.apply",
		attribute.Int64("outbox.id", e.ID),
		attribute.String("outbox.table", e.Table),
		attribute.String("outbox.op", e.Op),
		attribute.Int("outbox.attempts", e.Attempts),
	)
	defer span.End()

	err := Apply(ctx, w.remote, e)
	span.SetError(err)
	return err
}

func (w *Worker) fail(ctx context.Context, e models.OutboxEvent, cause error) error {
	observability.OutboxFailed.WithLabelValues(e.Table, e.Op).Inc()
	e.Attempts++
	msg := cause.Error()

	var remoteErr *remote.Error
	permanent := errors.As(cause, &remoteErr) && !remoteErr.Temporary()

	if permanent || e.Attempts >= w.cfg.MaxAttempts {
		middleware.Logger.Warn("Outbox event moved to DLQ",
			slog.Int64("outbox_id", e.ID),
			slog.String("table", e.Table),
			slog.String("entity_id", e.EntityID),
			slog.Int("attempts", e.Attempts),
			slog.String("error", msg),
		)
		observability.OutboxDLQ.WithLabelValues(e.Table).Inc()
		return w.store.MoveToDLQ(ctx, e, msg, w.now())
	}

	next := w.now().Add(Backoff(w.cfg.BaseBackoff, w.cfg.MaxBackoff, e.Attempts, w.jitter))
	middleware.Logger.Info("Outbox event failed, will retry",
		slog.Int64("outbox_id", e.ID),
		slog.String("table", e.Table),
		slog.Int("attempts", e.Attempts),
		slog.Time("next_attempt_at", next),
		slog.String("error", msg),
	)
	return w.store.MarkFailed(ctx, e.ID, e.Attempts, msg, next)
}

func (w *Worker) notifySinks(ctx context.Context, e models.OutboxEvent) {
	for _, sink := range w.sinks {
		if err := sink.Handle(ctx, e); err != nil {
			middleware.Logger.Warn("Outbox sink failed",
				slog.Int64("outbox_id", e.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// RetryDLQOnce re-applies up to 50 unresolved DLQ entries and returns how many resolved.
func (w *Worker) RetryDLQOnce(ctx context.Context) (int, error) {
	entries, err := w.store.UnresolvedDLQ(ctx, 50)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, d := range entries {
		if err := w.retryEntry(ctx, d); err != nil {
			continue
		}
		resolved++
	}
	return resolved, nil
}

// RetryDLQEntry re-applies one DLQ entry immediately.
func (w *Worker) RetryDLQEntry(ctx context.Context, id int64) error {
	entry, err := w.store.DLQEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry.Resolved {
		return nil
	}
	return w.retryEntry(ctx, *entry)
}

func (w *Worker) retryEntry(ctx context.Context, d models.DLQEntry) error {
	e := models.OutboxEvent{
		ID:         d.OutboxID,
		Table:      d.Table,
		EntityID:   d.EntityID,
		Op:         d.Op,
		Payload:    d.Payload,
		Match:      d.Match,
		OnConflict: d.OnConflict,
	}
	if err := w.apply(ctx, e); err != nil {
		_ = w.store.TouchDLQ(ctx, d.ID, err.Error(), w.now())
		return err
	}
	if err := w.store.ResolveDLQ(ctx, d.ID, w.now()); err != nil {
		return err
	}
	middleware.Logger.Info("DLQ entry resolved", slog.Int64("dlq_id", d.ID), slog.Int64("outbox_id", d.OutboxID))
	observability.OutboxProcessed.WithLabelValues(e.Table, e.Op).Inc()
	w.notifySinks(ctx, e)
	return nil
}
