package queue

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/seat-booking/internal/errs"
)

const (
	// BookingQueue is the durable queue behind the booking log.
	BookingQueue = "booking.confirmed"

	maxBackoff = 30 * time.Second
)

// ConsumerConfig describes the queue an AMQPConsumer binds to the seat
// event exchange.  An empty Queue asks the broker for an exclusive,
// auto-deleted queue, which is what a per-process hub feed wants.
type ConsumerConfig struct {
	URL         string
	Exchange    string
	Queue       string
	BindingKeys []string
	Prefetch    int
}

// AMQPConsumer feeds deliveries from a queue bound to the seat event
// exchange into a Handler.
type AMQPConsumer struct {
	cfg     ConsumerConfig
	handler Handler
	log     *slog.Logger
}

func NewAMQPConsumer(cfg ConsumerConfig, handler Handler, log *slog.Logger) *AMQPConsumer {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 50
	}
	return &AMQPConsumer{cfg: cfg, handler: handler, log: log.With("queue", cfg.Queue)}
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// is cancelled.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			c.log.Warn("broker dial failed", "error", err.Error(), "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("consume loop ended, reconnecting", "error", err.Error())
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *AMQPConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return errs.Wrap(err, "channel open")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		c.log.Warn("set qos failed", "error", err.Error())
	}
	if err := declareExchange(ch, c.cfg.Exchange); err != nil {
		return err
	}

	durable := c.cfg.Queue != ""
	q, err := ch.QueueDeclare(c.cfg.Queue, durable, !durable, !durable, false, nil)
	if err != nil {
		return errs.Wrap(err, "queue declare")
	}
	for _, key := range c.cfg.BindingKeys {
		if err := ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return errs.Wrapf(err, "queue bind %s", key)
		}
	}

	msgs, err := ch.Consume(q.Name, "", false, !durable, false, false, nil)
	if err != nil {
		return errs.Wrap(err, "queue consume")
	}
	c.log.Info("consuming seat events", "bound_queue", q.Name, "keys", c.cfg.BindingKeys)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errs.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				c.log.Warn("handle delivery failed", "error", err.Error())
				// Rejected without requeue so a poison message cannot spin.
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *AMQPConsumer) handle(ctx context.Context, body []byte) error {
	ev, err := decodeEvent(body)
	if err != nil {
		return err
	}
	return c.handler(ctx, ev)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
