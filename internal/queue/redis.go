package queue

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/model"
)

// RedisPublisher publishes seat events on a pub/sub channel so every
// server process subscribed to it can refresh its viewers.
type RedisPublisher struct {
	rdb     redis.UniversalClient
	channel string
}

func NewRedisPublisher(rdb redis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev model.SeatEvent) error {
	body, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.channel, string(body)).Err(); err != nil {
		return errs.Wrap(err, "redis publish")
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (p *RedisPublisher) Close() error { return nil }

// RedisSubscriber feeds events received on a pub/sub channel to handler.
type RedisSubscriber struct {
	rdb     redis.UniversalClient
	channel string
	handler Handler
	log     *slog.Logger
}

func NewRedisSubscriber(rdb redis.UniversalClient, channel string, handler Handler, log *slog.Logger) *RedisSubscriber {
	if log == nil {
		log = slog.Default()
	}
	return &RedisSubscriber{rdb: rdb, channel: channel, handler: handler, log: log}
}

// Run blocks until ctx is cancelled.  go-redis resubscribes on its own
// after a dropped connection.
func (s *RedisSubscriber) Run(ctx context.Context) error {
	ps := s.rdb.Subscribe(ctx, s.channel)
	defer func() { _ = ps.Close() }()

	if _, err := ps.Receive(ctx); err != nil {
		return errs.Wrap(err, "redis subscribe")
	}
	s.log.Info("subscribed to seat events", "channel", s.channel)

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errs.New("redis subscription closed")
			}
			s.dispatch(ctx, msg.Payload)
		}
	}
}

func (s *RedisSubscriber) dispatch(ctx context.Context, payload string) {
	ev, err := decodeEvent([]byte(payload))
	if err != nil {
		s.log.Warn("dropping malformed seat event", "channel", s.channel, "error", err.Error())
		return
	}
	if err := s.handler(ctx, ev); err != nil {
		s.log.Warn("seat event handler failed", "event_id", ev.ID, "show_id", ev.ShowID, "error", err.Error())
	}
}
