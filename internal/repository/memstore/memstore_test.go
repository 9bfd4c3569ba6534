package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/repository"
)

var now = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	n := 0
	seats := model.Layout{Sections: []model.SectionLayout{
		{Name: "front", Price: 100, Rows: []model.RowLayout{{Label: "A", Seats: 3}}},
	}}.Seats("show", func() string { n++; return []string{"s1", "s2", "s3"}[n-1] })
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertSeats(ctx, seats)
	}))
	return s
}

func TestInTx_DiscardsWorkOnError(t *testing.T) {
	s := seeded(t)
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		ok, err := tx.HoldSeat(ctx, "s1", "u1", now, now.Add(model.HoldTTL))
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.AppendEvent(ctx, model.SeatEvent{ShowID: "show", Kind: model.EventSeatsHeld}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	seat, _ := s.Seat("s1")
	assert.Equal(t, model.SeatAvailable, seat.Status)
	assert.Empty(t, s.Events())
}

func TestHoldSeat_CompareAndSwap(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	var first, second, reclaim bool
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		first, err = tx.HoldSeat(ctx, "s1", "u1", now, now.Add(model.HoldTTL))
		if err != nil {
			return err
		}
		second, err = tx.HoldSeat(ctx, "s1", "u2", now.Add(time.Second), now.Add(time.Second+model.HoldTTL))
		if err != nil {
			return err
		}
		later := now.Add(model.HoldTTL)
		reclaim, err = tx.HoldSeat(ctx, "s1", "u2", later, later.Add(model.HoldTTL))
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)
	assert.True(t, reclaim)

	seat, _ := s.Seat("s1")
	assert.Equal(t, "u2", seat.Holder)
	assert.NoError(t, seat.Consistent())
}

func TestInsertSeats_DuplicatePosition(t *testing.T) {
	s := seeded(t)

	err := s.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertSeats(ctx, []model.Seat{{ID: "x", ShowID: "show", Row: "A", Number: 1, Status: model.SeatAvailable}})
	})
	assert.True(t, errs.Is(err, repository.ErrDuplicate))
}

func TestInsertBookings_OneBookingPerSeat(t *testing.T) {
	s := seeded(t)
	b := model.Booking{ID: "b1", UserID: "u1", ShowID: "show", SeatID: "s1", Amount: 100, CreatedAt: now}

	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertBookings(ctx, []model.Booking{b})
	}))
	b.ID = "b2"
	err := s.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertBookings(ctx, []model.Booking{b})
	})
	assert.True(t, errs.Is(err, repository.ErrDuplicate))
	assert.Len(t, s.Bookings(), 1)
}

func TestFailNext_FiresOnce(t *testing.T) {
	s := seeded(t)
	s.FailNext("ListSeats", errors.New("disk"))

	run := func() error {
		return s.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.ListSeats(ctx, "show")
			return err
		})
	}
	assert.True(t, errs.Is(run(), errs.ErrInternal))
	assert.NoError(t, run())
}

func TestOutbox_PendingAndPublished(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		for i := 0; i < 3; i++ {
			if err := tx.AppendEvent(ctx, model.SeatEvent{ShowID: "show", Kind: model.EventSeatsHeld}); err != nil {
				return err
			}
		}
		return nil
	}))

	pending, err := s.PendingEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.EqualValues(t, 1, pending[0].ID)
	assert.EqualValues(t, 2, pending[1].ID)

	require.NoError(t, s.MarkPublished(ctx, []int64{1, 2}, now))
	pending, err = s.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.EqualValues(t, 3, pending[0].ID)
}

func TestInTx_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.InTx(ctx, func(context.Context, repository.Tx) error { return nil })
	assert.True(t, errs.Is(err, errs.ErrInternal))
}
