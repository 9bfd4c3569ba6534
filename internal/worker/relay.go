// Package worker runs the background loops of the server process.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/seat-booking/internal/clock"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/queue"
	"github.com/iliyamo/seat-booking/internal/repository"
)

// Outbox is the relay's view of the store.
type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]model.SeatEvent, error)
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
}

var _ Outbox = (repository.Store)(nil)

// Relay moves committed events from the outbox to a publisher.  An event
// is marked published only after the publisher accepted it, so a crash or
// transport outage leads to redelivery, never to loss.
type Relay struct {
	outbox    Outbox
	publisher queue.Publisher
	clock     clock.Clock
	log       *slog.Logger
	interval  time.Duration
	batch     int
}

func NewRelay(outbox Outbox, publisher queue.Publisher, clk clock.Clock, interval time.Duration, batch int, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	if batch <= 0 {
		batch = 100
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		clock:     clk,
		log:       log,
		interval:  interval,
		batch:     batch,
	}
}

// Run drains the outbox every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("outbox relay started", "interval", r.interval.String(), "batch", r.batch)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("outbox relay failed", "error", err.Error())
			}
		}
	}
}

// Drain flushes batches until the outbox is empty or a flush fails.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.Flush(ctx)
		total += n
		if err != nil || n < r.batch {
			return total, err
		}
	}
}

// Flush publishes one batch in commit order and returns how many events
// were delivered.  It stops at the first publish failure; the delivered
// prefix is still marked so the failed event is the next one retried.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.outbox.PendingEvents(ctx, r.batch)
	if err != nil || len(events) == 0 {
		return 0, err
	}

	done := make([]int64, 0, len(events))
	var pubErr error
	for _, ev := range events {
		if pubErr = r.publisher.Publish(ctx, ev); pubErr != nil {
			r.log.Warn("publish seat event failed",
				"event_id", ev.ID,
				"kind", string(ev.Kind),
				"show_id", ev.ShowID,
				"error", pubErr.Error())
			break
		}
		done = append(done, ev.ID)
	}

	if len(done) > 0 {
		if err := r.outbox.MarkPublished(ctx, done, r.clock.Now()); err != nil {
			return 0, err
		}
	}
	return len(done), pubErr
}
