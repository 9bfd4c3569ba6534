package queue

import (
	"context"
	"log/slog"

	"github.com/iliyamo/seat-booking/internal/model"
)

// LocalPublisher delivers events to in-process handlers.  Handler failures
// are logged and not returned: the consumers are advisory and a failing
// refresh must not hold back the outbox.
type LocalPublisher struct {
	handlers []Handler
	log      *slog.Logger
}

func NewLocalPublisher(log *slog.Logger, handlers ...Handler) *LocalPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LocalPublisher{handlers: handlers, log: log}
}

func (p *LocalPublisher) Publish(ctx context.Context, ev model.SeatEvent) error {
	for _, h := range p.handlers {
		if err := h(ctx, ev); err != nil {
			p.log.Warn("local event handler failed",
				"event_id", ev.ID,
				"kind", string(ev.Kind),
				"show_id", ev.ShowID,
				"error", err.Error())
		}
	}
	return nil
}

func (p *LocalPublisher) Close() error { return nil }

// Fanout publishes to several publishers in order and stops at the first
// failure, so the relay retries the event later.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev model.SeatEvent) error {
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (f Fanout) Close() error {
	var first error
	for _, p := range f {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
