package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-booking/internal/clock"
	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/repository/memstore"
	"github.com/iliyamo/seat-booking/internal/service"
)

const showID = "show-1"

var t0 = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

type fixture struct {
	store        *memstore.Store
	clock        *clock.MockClock
	inventory    *service.Inventory
	reservations *service.Reservations
	bookings     *service.Bookings
	reaper       *service.Reaper
	ids          map[string]string // label -> seat id
}

// threeSeatLayout yields A1 at 100, A2 at 150 and A3 at 100.
func threeSeatLayout() model.Layout {
	return model.Layout{Sections: []model.SectionLayout{
		{Name: "left", Price: 100, Rows: []model.RowLayout{{Label: "A", Seats: 1}}},
		{Name: "center", Price: 150, Rows: []model.RowLayout{{Label: "A", Seats: 1}}},
		{Name: "right", Price: 100, Rows: []model.RowLayout{{Label: "A", Seats: 1}}},
	}}
}

func newFixture(t *testing.T, layout model.Layout) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store: memstore.New(),
		clock: clock.NewMockClock(t0),
		ids:   make(map[string]string),
	}
	f.inventory = service.NewInventory(f.store, f.clock, log)
	f.reservations = service.NewReservations(f.store, f.clock, log)
	f.bookings = service.NewBookings(f.store, f.clock, log)
	f.reaper = service.NewReaper(f.store, f.clock, log)

	created, err := f.inventory.Initialize(context.Background(), showID, layout)
	require.NoError(t, err)
	require.Positive(t, created)

	seats, err := f.inventory.List(context.Background(), showID)
	require.NoError(t, err)
	for _, s := range seats {
		f.ids[s.Label()] = s.ID
	}
	return f
}

func (f *fixture) seat(t *testing.T, label string) model.Seat {
	t.Helper()
	s, ok := f.store.Seat(f.ids[label])
	require.True(t, ok, "seat %s", label)
	return s
}

func (f *fixture) idsOf(labels ...string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = f.ids[l]
	}
	return out
}

func assertConsistent(t *testing.T, seats []model.Seat) {
	t.Helper()
	for _, s := range seats {
		assert.NoError(t, s.Consistent())
	}
}

func TestScenario_HoldConfirmExpire(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	r1, err := f.reservations.Hold(ctx, f.idsOf("A1", "A2"), "U1")
	require.NoError(t, err)
	assert.False(t, r1.Partial())
	assert.Len(t, r1.Held, 2)

	f.clock.Add(10 * time.Second)
	holdAt := f.clock.Now()
	r2, err := f.reservations.Hold(ctx, f.idsOf("A2", "A3"), "U2")
	require.NoError(t, err)
	assert.True(t, r2.Partial())
	assert.Equal(t, 2, r2.Requested)
	assert.ElementsMatch(t, f.idsOf("A3"), r2.HeldIDs())
	require.Len(t, r2.Failed, 1)
	assert.Equal(t, f.ids["A2"], r2.Failed[0].SeatID)
	assert.Equal(t, service.ReasonReserved, r2.Failed[0].Reason)
	assert.Equal(t, "U1", f.seat(t, "A2").Holder)

	conf, err := f.bookings.Confirm(ctx, f.idsOf("A1", "A2"), "U1")
	require.NoError(t, err)
	assert.Len(t, conf.Bookings, 2)
	assert.EqualValues(t, 250, conf.TotalAmount)
	price := map[string]int64{f.ids["A1"]: 100, f.ids["A2"]: 150}
	for _, b := range conf.Bookings {
		assert.Equal(t, price[b.SeatID], b.Amount)
		assert.Equal(t, model.BookingConfirmed, b.Status)
		assert.Equal(t, "U1", b.UserID)
	}
	a1, a2 := f.seat(t, "A1"), f.seat(t, "A2")
	assert.Equal(t, model.SeatBooked, a1.Status)
	assert.Equal(t, model.SeatBooked, a2.Status)
	assert.Nil(t, a1.ExpiresAt)
	assert.Nil(t, a2.ReservedAt)
	assert.Empty(t, a1.Holder)
	assert.Empty(t, a2.Holder)
	assert.NoError(t, a1.Consistent())
	assert.NoError(t, a2.Consistent())

	f.clock.Set(holdAt.Add(301 * time.Second))
	seats, err := f.inventory.List(ctx, showID)
	require.NoError(t, err)
	require.Len(t, seats, 3)
	assert.Equal(t, model.SeatAvailable, seats[2].Status)
	assert.Equal(t, "A3", seats[2].Label())
	assertConsistent(t, seats)
}

func TestHold_ConflictLeavesExistingHoldUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	_, err := f.reservations.Hold(ctx, f.idsOf("A1"), "A")
	require.NoError(t, err)
	before := f.seat(t, "A1")

	f.clock.Add(299 * time.Second)
	res, err := f.reservations.Hold(ctx, f.idsOf("A1"), "B")
	require.NoError(t, err)
	assert.True(t, res.Partial())
	assert.Empty(t, res.Held)

	assert.Equal(t, before, f.seat(t, "A1"))
}

func TestHold_ReclaimsExpiredHoldWithoutSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	_, err := f.reservations.Hold(ctx, f.idsOf("A1"), "A")
	require.NoError(t, err)

	f.clock.Add(model.HoldTTL)
	res, err := f.reservations.Hold(ctx, f.idsOf("A1"), "B")
	require.NoError(t, err)
	assert.False(t, res.Partial())
	assert.Equal(t, "B", f.seat(t, "A1").Holder)
}

func TestHold_ReportsMissingAndBookedSeats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	_, err := f.reservations.Hold(ctx, f.idsOf("A1"), "A")
	require.NoError(t, err)
	_, err = f.bookings.Confirm(ctx, f.idsOf("A1"), "A")
	require.NoError(t, err)

	res, err := f.reservations.Hold(ctx, []string{f.ids["A1"], "nope", f.ids["A3"]}, "B")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Requested)
	assert.ElementsMatch(t, f.idsOf("A3"), res.HeldIDs())

	reasons := map[string]string{}
	for _, inv := range res.Failed {
		reasons[inv.SeatID] = inv.Reason
	}
	assert.Equal(t, service.ReasonBooked, reasons[f.ids["A1"]])
	assert.Equal(t, service.ReasonNotFound, reasons["nope"])
}

func TestHold_SetsHoldFields(t *testing.T) {
	f := newFixture(t, threeSeatLayout())

	res, err := f.reservations.Hold(context.Background(), f.idsOf("A2", "A2"), "U")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Requested)
	assert.Equal(t, t0.Add(model.HoldTTL), res.ExpiresAt)

	s := f.seat(t, "A2")
	assert.Equal(t, model.SeatReserved, s.Status)
	require.NotNil(t, s.ReservedAt)
	require.NotNil(t, s.ExpiresAt)
	assert.Equal(t, t0, *s.ReservedAt)
	assert.Equal(t, t0.Add(300*time.Second), *s.ExpiresAt)
	assert.NoError(t, s.Consistent())
}

func TestValidationFailsBeforeStoreAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())
	f.store.FailNext("HoldSeat", errors.New("store must not be reached"))

	_, err := f.reservations.Hold(ctx, nil, "U")
	assert.True(t, errs.Is(err, errs.ErrValidation))
	_, err = f.reservations.Hold(ctx, f.idsOf("A1"), " ")
	assert.True(t, errs.Is(err, errs.ErrValidation))
	_, err = f.reservations.Hold(ctx, []string{""}, "U")
	assert.True(t, errs.Is(err, errs.ErrValidation))
	_, err = f.reservations.Release(ctx, nil, "U")
	assert.True(t, errs.Is(err, errs.ErrValidation))
	_, err = f.bookings.Confirm(ctx, f.idsOf("A1"), "")
	assert.True(t, errs.Is(err, errs.ErrValidation))
	_, err = f.bookings.ListByUser(ctx, "")
	assert.True(t, errs.Is(err, errs.ErrValidation))
	_, err = f.inventory.List(ctx, "")
	assert.True(t, errs.Is(err, errs.ErrValidation))
}

func TestRelease_NotHeldByCallerIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	_, err := f.reservations.Hold(ctx, f.idsOf("A1"), "A")
	require.NoError(t, err)
	before := f.seat(t, "A1")
	eventsBefore := len(f.store.Events())

	released, err := f.reservations.Release(ctx, f.idsOf("A1", "A2", "A3"), "B")
	require.NoError(t, err)
	assert.Empty(t, released)
	assert.Equal(t, before, f.seat(t, "A1"))
	assert.Equal(t, model.SeatAvailable, f.seat(t, "A2").Status)
	assert.Len(t, f.store.Events(), eventsBefore)

	released, err = f.reservations.Release(ctx, []string{"missing"}, "B")
	require.NoError(t, err)
	assert.Empty(t, released)
}

func TestRelease_ReturnsSeatsToPool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	_, err := f.reservations.Hold(ctx, f.idsOf("A1", "A2"), "A")
	require.NoError(t, err)

	released, err := f.reservations.Release(ctx, f.idsOf("A1"), "A")
	require.NoError(t, err)
	assert.Equal(t, f.idsOf("A1"), released)

	s := f.seat(t, "A1")
	assert.Equal(t, model.SeatAvailable, s.Status)
	assert.NoError(t, s.Consistent())
	assert.Equal(t, model.SeatReserved, f.seat(t, "A2").Status)
}

func TestConfirm_RejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	_, err := f.reservations.Hold(ctx, f.idsOf("A1"), "A")
	require.NoError(t, err)
	_, err = f.reservations.Hold(ctx, f.idsOf("A2"), "B")
	require.NoError(t, err)

	_, err = f.bookings.Confirm(ctx, f.idsOf("A1", "A2", "A3"), "A")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrConflict))

	var conflict *service.ConfirmConflictError
	require.True(t, errs.As(err, &conflict))
	reasons := map[string]string{}
	for _, inv := range conflict.Invalid {
		reasons[inv.SeatID] = inv.Reason
	}
	assert.Equal(t, map[string]string{
		f.ids["A2"]: service.ReasonHeldByOther,
		f.ids["A3"]: service.ReasonNotReserved,
	}, reasons)

	assert.Empty(t, f.store.Bookings())
	assert.Equal(t, model.SeatReserved, f.seat(t, "A1").Status)
	assert.Equal(t, "A", f.seat(t, "A1").Holder)
}

func TestConfirm_ExpiredHoldIsInvalidBeforeSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	_, err := f.reservations.Hold(ctx, f.idsOf("A1"), "A")
	require.NoError(t, err)
	f.clock.Add(model.HoldTTL)

	_, err = f.bookings.Confirm(ctx, f.idsOf("A1"), "A")
	var conflict *service.ConfirmConflictError
	require.True(t, errs.As(err, &conflict))
	require.Len(t, conflict.Invalid, 1)
	assert.Equal(t, service.ReasonHoldExpired, conflict.Invalid[0].Reason)
	assert.Empty(t, f.store.Bookings())
}

func TestConfirm_MissingSeatIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	_, err := f.reservations.Hold(ctx, f.idsOf("A1"), "A")
	require.NoError(t, err)

	_, err = f.bookings.Confirm(ctx, []string{f.ids["A1"], "ghost"}, "A")
	assert.True(t, errs.Is(err, errs.ErrNotFound))
	var nf *service.SeatsNotFoundError
	require.True(t, errs.As(err, &nf))
	assert.Equal(t, []string{"ghost"}, nf.SeatIDs)
	assert.Empty(t, f.store.Bookings())
}

func TestConfirm_RejectsSeatsFromSeveralShows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())
	_, err := f.inventory.Initialize(ctx, "show-2", threeSeatLayout())
	require.NoError(t, err)
	other, err := f.inventory.List(ctx, "show-2")
	require.NoError(t, err)

	ids := []string{f.ids["A1"], other[0].ID}
	_, err = f.reservations.Hold(ctx, ids, "A")
	require.NoError(t, err)

	_, err = f.bookings.Confirm(ctx, ids, "A")
	assert.True(t, errs.Is(err, errs.ErrValidation))
	assert.Empty(t, f.store.Bookings())
}

func TestConfirm_StoreFailureRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	_, err := f.reservations.Hold(ctx, f.idsOf("A1", "A2"), "A")
	require.NoError(t, err)
	eventsBefore := len(f.store.Events())

	f.store.FailNext("BookSeat", errors.New("connection reset"))
	_, err = f.bookings.Confirm(ctx, f.idsOf("A1", "A2"), "A")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrInternal))

	assert.Empty(t, f.store.Bookings())
	assert.Len(t, f.store.Events(), eventsBefore)
	for _, l := range []string{"A1", "A2"} {
		s := f.seat(t, l)
		assert.Equal(t, model.SeatReserved, s.Status)
		assert.Equal(t, "A", s.Holder)
	}

	// The hold is intact, so a retry by the caller succeeds.
	conf, err := f.bookings.Confirm(ctx, f.idsOf("A1", "A2"), "A")
	require.NoError(t, err)
	assert.EqualValues(t, 250, conf.TotalAmount)
}

func TestConfirm_ConcurrentOverlappingCallsBookOnce(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		f := newFixture(t, threeSeatLayout())
		_, err := f.reservations.Hold(ctx, f.idsOf("A1", "A2"), "A")
		require.NoError(t, err)
		_, err = f.reservations.Hold(ctx, f.idsOf("A3"), "B")
		require.NoError(t, err)

		var (
			wg   sync.WaitGroup
			errA error
			errB error
			errC error
		)
		wg.Add(3)
		go func() { defer wg.Done(); _, errA = f.bookings.Confirm(ctx, f.idsOf("A1", "A2"), "A") }()
		go func() { defer wg.Done(); _, errB = f.bookings.Confirm(ctx, f.idsOf("A2", "A3"), "B") }()
		go func() { defer wg.Done(); _, errC = f.bookings.Confirm(ctx, f.idsOf("A1", "A2"), "A") }()
		wg.Wait()

		// Exactly one of A's identical confirms wins; B never holds A2.
		assert.True(t, (errA == nil) != (errC == nil), "iteration %d", i)
		assert.True(t, errs.Is(errB, errs.ErrConflict), "iteration %d", i)

		perSeat := map[string]int{}
		for _, b := range f.store.Bookings() {
			perSeat[b.SeatID]++
		}
		assert.Equal(t, 1, perSeat[f.ids["A2"]], "iteration %d", i)
		assert.Equal(t, 0, perSeat[f.ids["A3"]], "iteration %d", i)
	}
}

func TestHold_ConcurrentHoldersExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	const n = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			res, err := f.reservations.Hold(ctx, f.idsOf("A2"), user)
			if err == nil && !res.Partial() {
				mu.Lock()
				wins = append(wins, user)
				mu.Unlock()
			}
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()

	require.Len(t, wins, 1)
	assert.Equal(t, wins[0], f.seat(t, "A2").Holder)
}

func TestInventory_InitializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	created, err := f.inventory.Initialize(ctx, showID, model.DefaultLayout())
	require.NoError(t, err)
	assert.Zero(t, created)

	seats, err := f.inventory.List(ctx, showID)
	require.NoError(t, err)
	assert.Len(t, seats, 3)
}

func TestInventory_InitializeRejectsBadLayout(t *testing.T) {
	f := newFixture(t, threeSeatLayout())

	_, err := f.inventory.Initialize(context.Background(), "show-9", model.Layout{})
	assert.True(t, errs.Is(err, errs.ErrValidation))
}

func TestInventory_ListUnknownShowIsNotFound(t *testing.T) {
	f := newFixture(t, threeSeatLayout())

	_, err := f.inventory.List(context.Background(), "no-such-show")
	assert.True(t, errs.Is(err, errs.ErrNotFound))
}

func TestInventory_ListOrdersByRowThenNumber(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.DefaultLayout())

	seats, err := f.inventory.List(ctx, showID)
	require.NoError(t, err)
	require.Len(t, seats, 1054)
	assert.Equal(t, "A1", seats[0].Label())
	assert.Equal(t, "T43", seats[len(seats)-1].Label())
	for i := 1; i < len(seats); i++ {
		prev, cur := seats[i-1], seats[i]
		assert.True(t, prev.Row < cur.Row || (prev.Row == cur.Row && prev.Number < cur.Number))
	}
}

func TestReaper_SweepReleasesOnlyExpiredHolds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	_, err := f.reservations.Hold(ctx, f.idsOf("A1"), "A")
	require.NoError(t, err)
	f.clock.Add(200 * time.Second)
	_, err = f.reservations.Hold(ctx, f.idsOf("A2"), "B")
	require.NoError(t, err)

	f.clock.Add(100 * time.Second)
	n, err := f.reaper.Sweep(ctx, showID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.SeatAvailable, f.seat(t, "A1").Status)
	assert.Equal(t, model.SeatReserved, f.seat(t, "A2").Status)

	f.clock.Add(200 * time.Second)
	n, err = f.reaper.SweepAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.SeatAvailable, f.seat(t, "A2").Status)
}

func TestReaper_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, threeSeatLayout())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.reaper.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestMutationsAppendEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	_, err := f.reservations.Hold(ctx, f.idsOf("A1", "A2", "A3"), "A")
	require.NoError(t, err)
	_, err = f.reservations.Release(ctx, f.idsOf("A3"), "A")
	require.NoError(t, err)
	_, err = f.bookings.Confirm(ctx, f.idsOf("A1"), "A")
	require.NoError(t, err)
	f.clock.Add(model.HoldTTL)
	_, err = f.inventory.List(ctx, showID)
	require.NoError(t, err)

	var kinds []model.EventKind
	for _, ev := range f.store.Events() {
		assert.Equal(t, showID, ev.ShowID)
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []model.EventKind{
		model.EventSeatsInitialized,
		model.EventSeatsHeld,
		model.EventSeatsReleased,
		model.EventSeatsBooked,
		model.EventSeatsExpired,
	}, kinds)

	booked := f.store.Events()[3]
	assert.EqualValues(t, 100, booked.Amount)
	assert.Len(t, booked.BookingIDs, 1)
}

func TestListByUser_NewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeSeatLayout())

	_, err := f.reservations.Hold(ctx, f.idsOf("A1", "A2"), "A")
	require.NoError(t, err)
	_, err = f.bookings.Confirm(ctx, f.idsOf("A1"), "A")
	require.NoError(t, err)
	f.clock.Add(time.Minute)
	_, err = f.bookings.Confirm(ctx, f.idsOf("A2"), "A")
	require.NoError(t, err)

	list, err := f.bookings.ListByUser(ctx, "A")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, f.ids["A2"], list[0].SeatID)
	assert.Equal(t, f.ids["A1"], list[1].SeatID)

	none, err := f.bookings.ListByUser(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, none)
}
