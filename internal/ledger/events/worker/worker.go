// Package worker drains the committed-event outbox to an external
// publisher. Delivery is at-least-once: an event is acknowledged in the
// outbox only after the publisher accepts it.
package worker

import (
	"context"
	"log/slog"
	"time"

	"braza/internal/ledger/events"
	"braza/internal/ledger/metrics"
	"braza/internal/ledger/ports"
)

const (
	defaultInterval  = 500 * time.Millisecond
	defaultBatchSize = 100
)

// Worker polls the outbox and hands pending events to the publisher.
type Worker struct {
	outbox    ports.EventStore
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
	kick      chan struct{}
}

// Option configures a Worker.
type Option func(*Worker)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithBatchSize overrides the drain batch size.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithMetrics enables delivery counting.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// New builds a worker over the given outbox and publisher.
func New(outbox ports.EventStore, publisher events.Publisher, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		kick:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Kick requests a prompt drain, typically right after a commit. Non-blocking.
func (w *Worker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Run drains until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-w.kick:
		}
		if err := w.drain(ctx); err != nil {
			w.logger.Warn("outbox drain failed", "error", err)
		}
	}
}

// drain publishes pending events oldest first and acknowledges each batch.
// A publish failure stops the pass; undelivered events stay pending and the
// next pass retries them.
func (w *Worker) drain(ctx context.Context) error {
	for {
		pending, err := w.outbox.UnpublishedEvents(ctx, w.batchSize)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}
		delivered := make([]string, 0, len(pending))
		for _, event := range pending {
			if err := w.publisher.Publish(ctx, event); err != nil {
				if ackErr := w.ack(ctx, delivered); ackErr != nil {
					return ackErr
				}
				return err
			}
			delivered = append(delivered, event.ID.String())
			if w.metrics != nil {
				w.metrics.EventsPublished.Inc()
			}
		}
		if err := w.ack(ctx, delivered); err != nil {
			return err
		}
		if len(pending) < w.batchSize {
			return nil
		}
	}
}

func (w *Worker) ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return w.outbox.MarkPublished(ctx, ids)
}
