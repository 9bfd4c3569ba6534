package queue

import (
	"context"
	"strconv"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/model"
)

// AMQPPublisher publishes seat events to a durable topic exchange.  The
// routing key is the event kind, so consumers bind "seats.booked" or
// "seats.#" as they need.
type AMQPPublisher struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url, exchange string) *AMQPPublisher {
	return &AMQPPublisher{url: url, exchange: exchange}
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev model.SeatEvent) error {
	body, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    strconv.FormatInt(ev.ID, 10),
		Timestamp:    ev.OccurredAt.UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, string(ev.Kind), false, false, msg); err != nil {
		p.resetLocked()
		return errs.Wrap(err, "amqp publish")
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}

func (p *AMQPPublisher) connectLocked() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.resetLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return errs.Wrap(err, "amqp dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return errs.Wrap(err, "channel open")
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *AMQPPublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func declareExchange(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return errs.Wrapf(err, "exchange declare %s", name)
	}
	return nil
}
