// Package queue carries committed seat events from the outbox relay to
// their consumers: the realtime hub of every server process and the
// booking log.  Three transports are provided: in-process, Redis pub/sub
// and a RabbitMQ topic exchange.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/model"
)

// Handler consumes one seat event.
type Handler func(ctx context.Context, ev model.SeatEvent) error

// Publisher hands a committed seat event to a transport.  Delivery is
// at-least-once: the relay republishes anything not acknowledged, so
// handlers must tolerate duplicates.
type Publisher interface {
	Publish(ctx context.Context, ev model.SeatEvent) error
	Close() error
}

// BookingConfirmedEvent is the booking log view of a seats.booked event.
type BookingConfirmedEvent struct {
	EventID     int64    `json:"event_id"`
	BookingIDs  []string `json:"booking_ids"`
	UserID      string   `json:"user_id"`
	ShowID      string   `json:"show_id"`
	SeatIDs     []string `json:"seat_ids"`
	TotalAmount int64    `json:"total_amount"`
	ConfirmedAt string   `json:"confirmed_at"`
}

// BookingConfirmedFrom projects ev.  ok is false for any other kind.
func BookingConfirmedFrom(ev model.SeatEvent) (BookingConfirmedEvent, bool) {
	if ev.Kind != model.EventSeatsBooked {
		return BookingConfirmedEvent{}, false
	}
	return BookingConfirmedEvent{
		EventID:     ev.ID,
		BookingIDs:  ev.BookingIDs,
		UserID:      ev.UserID,
		ShowID:      ev.ShowID,
		SeatIDs:     ev.SeatIDs,
		TotalAmount: ev.Amount,
		ConfirmedAt: ev.OccurredAt.UTC().Format(time.RFC3339),
	}, true
}

func encodeEvent(ev model.SeatEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, errs.Wrap(err, "marshal seat event")
	}
	return body, nil
}

func decodeEvent(body []byte) (model.SeatEvent, error) {
	var ev model.SeatEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return model.SeatEvent{}, errs.Wrap(err, "unmarshal seat event")
	}
	if ev.ShowID == "" || ev.Kind == "" {
		return model.SeatEvent{}, errs.New("seat event without show or kind")
	}
	return ev, nil
}
