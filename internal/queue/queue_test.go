package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-booking/internal/model"
)

func bookedEvent() model.SeatEvent {
	return model.SeatEvent{
		ID:         7,
		ShowID:     "show-1",
		Kind:       model.EventSeatsBooked,
		SeatIDs:    []string{"s1", "s2"},
		UserID:     "u1",
		BookingIDs: []string{"b1", "b2"},
		Amount:     250,
		OccurredAt: time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC),
	}
}

func TestRedisPublisher_PublishesJSON(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	ev := bookedEvent()
	body, err := encodeEvent(ev)
	require.NoError(t, err)

	mock.ExpectPublish("seat-events", string(body)).SetVal(1)

	require.NoError(t, NewRedisPublisher(rdb, "seat-events").Publish(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisher_WrapsFailure(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	ev := bookedEvent()
	body, _ := encodeEvent(ev)
	mock.ExpectPublish("seat-events", string(body)).SetErr(errors.New("connection refused"))

	err := NewRedisPublisher(rdb, "seat-events").Publish(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis publish")
}

func TestRedisSubscriber_DispatchDecodes(t *testing.T) {
	var got []model.SeatEvent
	s := NewRedisSubscriber(nil, "seat-events", func(_ context.Context, ev model.SeatEvent) error {
		got = append(got, ev)
		return nil
	}, nil)

	body, _ := encodeEvent(bookedEvent())
	s.dispatch(context.Background(), string(body))
	s.dispatch(context.Background(), "not json")
	s.dispatch(context.Background(), `{"id":1}`)

	require.Len(t, got, 1)
	assert.Equal(t, bookedEvent(), got[0])
}

func TestLocalPublisher_SwallowsHandlerErrors(t *testing.T) {
	calls := 0
	p := NewLocalPublisher(nil,
		func(context.Context, model.SeatEvent) error { calls++; return errors.New("boom") },
		func(context.Context, model.SeatEvent) error { calls++; return nil },
	)

	assert.NoError(t, p.Publish(context.Background(), bookedEvent()))
	assert.Equal(t, 2, calls)
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, model.SeatEvent) error { return f.err }
func (f failingPublisher) Close() error                                   { return nil }

func TestFanout_StopsAtFirstFailure(t *testing.T) {
	calls := 0
	local := NewLocalPublisher(nil, func(context.Context, model.SeatEvent) error { calls++; return nil })
	f := Fanout{failingPublisher{err: errors.New("down")}, local}

	assert.Error(t, f.Publish(context.Background(), bookedEvent()))
	assert.Zero(t, calls)
	assert.NoError(t, f.Close())
}

func TestBookingLog_AppendsBookedEventsOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "booking.log")
	l := NewBookingLog(path)

	held := bookedEvent()
	held.Kind = model.EventSeatsHeld
	require.NoError(t, l.Handle(context.Background(), held))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, l.Handle(context.Background(), bookedEvent()))
	require.NoError(t, l.Handle(context.Background(), bookedEvent()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := "[2025-03-01T18:00:00Z] Booking confirmed | event_id=7 | user_id=u1 | show_id=show-1 | bookings=[b1,b2] | seats=[s1,s2] | total=250\n"
	assert.Equal(t, line+line, string(data))
}

func TestBookingConfirmedFrom(t *testing.T) {
	b, ok := BookingConfirmedFrom(bookedEvent())
	require.True(t, ok)
	assert.Equal(t, int64(250), b.TotalAmount)
	assert.Equal(t, "2025-03-01T18:00:00Z", b.ConfirmedAt)

	_, ok = BookingConfirmedFrom(model.SeatEvent{Kind: model.EventSeatsExpired})
	assert.False(t, ok)
}

func TestConsumerHandle_RejectsMalformed(t *testing.T) {
	c := NewAMQPConsumer(ConsumerConfig{Queue: BookingQueue}, func(context.Context, model.SeatEvent) error { return nil }, nil)

	assert.Error(t, c.handle(context.Background(), []byte("{")))
	body, _ := encodeEvent(bookedEvent())
	assert.NoError(t, c.handle(context.Background(), body))
	assert.Equal(t, 50, c.cfg.Prefetch)
}

func TestSleep_ReturnsFalseOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Minute))
	assert.True(t, sleep(context.Background(), time.Millisecond))
}
