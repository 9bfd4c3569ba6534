// Package memstore is an in-process implementation of repository.Store.
//
// Transactions are serialized by a single mutex and run against a private
// copy of the state, which replaces the committed state only when the
// transaction function returns nil.  That gives the same all-or-nothing
// semantics as the SQL store, which is what the service tests and the
// DB_DRIVER=memory development mode rely on.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/repository"
)

type state struct {
	seats      map[string]model.Seat
	bookings   []model.Booking
	seatBooked map[string]string
	events     []model.SeatEvent
	nextEvent  int64
}

func (s *state) clone() *state {
	c := &state{
		seats:      make(map[string]model.Seat, len(s.seats)),
		bookings:   append([]model.Booking(nil), s.bookings...),
		seatBooked: make(map[string]string, len(s.seatBooked)),
		events:     append([]model.SeatEvent(nil), s.events...),
		nextEvent:  s.nextEvent,
	}
	for k, v := range s.seats {
		c.seats[k] = v
	}
	for k, v := range s.seatBooked {
		c.seatBooked[k] = v
	}
	return c
}

// Store keeps seats, bookings and the outbox in memory.
type Store struct {
	mu        sync.Mutex
	st        *state
	published map[int64]time.Time
	faults    map[string]error
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		st: &state{
			seats:      make(map[string]model.Seat),
			seatBooked: make(map[string]string),
			nextEvent:  1,
		},
		published: make(map[int64]time.Time),
		faults:    make(map[string]error),
	}
}

// FailNext makes the next call to the named Tx operation (for example
// "InsertBookings" or "BookSeat") return err.  The fault fires once.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return errs.Internal(err, "begin transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &txn{store: s, st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) PendingEvents(_ context.Context, limit int) ([]model.SeatEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SeatEvent
	for _, ev := range s.st.events {
		if _, done := s.published[ev.ID]; done {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, ids []int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.published[id] = at
	}
	return nil
}

// Seat returns the committed state of one seat.
func (s *Store) Seat(id string) (model.Seat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seat, ok := s.st.seats[id]
	return seat, ok
}

// Bookings returns every committed booking.
func (s *Store) Bookings() []model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Booking(nil), s.st.bookings...)
}

// Events returns every committed outbox event, published or not.
func (s *Store) Events() []model.SeatEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SeatEvent(nil), s.st.events...)
}

type txn struct {
	store *Store
	st    *state
}

// fault is called with the store mutex held by InTx.
func (t *txn) fault(op string) error {
	err, ok := t.store.faults[op]
	if !ok {
		return nil
	}
	delete(t.store.faults, op)
	return errs.Internal(err, op)
}

func (t *txn) InsertSeats(_ context.Context, seats []model.Seat) error {
	if err := t.fault("InsertSeats"); err != nil {
		return err
	}
	type key struct {
		show, row string
		number    int
	}
	taken := make(map[key]struct{}, len(t.st.seats))
	for _, s := range t.st.seats {
		taken[key{s.ShowID, s.Row, s.Number}] = struct{}{}
	}
	for _, s := range seats {
		k := key{s.ShowID, s.Row, s.Number}
		if _, dup := taken[k]; dup {
			return errs.Mark(errs.Newf("seat %s%d of show %s exists", s.Row, s.Number, s.ShowID), repository.ErrDuplicate)
		}
		if _, dup := t.st.seats[s.ID]; dup {
			return errs.Mark(errs.Newf("seat id %s exists", s.ID), repository.ErrDuplicate)
		}
		taken[k] = struct{}{}
		t.st.seats[s.ID] = s
	}
	return nil
}

func (t *txn) CountSeats(_ context.Context, showID string) (int, error) {
	if err := t.fault("CountSeats"); err != nil {
		return 0, err
	}
	n := 0
	for _, s := range t.st.seats {
		if s.ShowID == showID {
			n++
		}
	}
	return n, nil
}

func (t *txn) ListSeats(_ context.Context, showID string) ([]model.Seat, error) {
	if err := t.fault("ListSeats"); err != nil {
		return nil, err
	}
	var out []model.Seat
	for _, s := range t.st.seats {
		if s.ShowID == showID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func (t *txn) SeatsByID(_ context.Context, seatIDs []string, _ bool) ([]model.Seat, error) {
	if err := t.fault("SeatsByID"); err != nil {
		return nil, err
	}
	var out []model.Seat
	for _, id := range seatIDs {
		if s, ok := t.st.seats[id]; ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txn) HoldSeat(_ context.Context, seatID, userID string, reservedAt, expiresAt time.Time) (bool, error) {
	if err := t.fault("HoldSeat"); err != nil {
		return false, err
	}
	s, ok := t.st.seats[seatID]
	if !ok || !s.Holdable(reservedAt) {
		return false, nil
	}
	s.Hold(userID, reservedAt, expiresAt.Sub(reservedAt))
	t.st.seats[seatID] = s
	return true, nil
}

func (t *txn) ReleaseSeat(_ context.Context, seatID, userID string, _ time.Time) (bool, error) {
	if err := t.fault("ReleaseSeat"); err != nil {
		return false, err
	}
	s, ok := t.st.seats[seatID]
	if !ok || s.Status != model.SeatReserved || s.Holder != userID {
		return false, nil
	}
	s.Release()
	t.st.seats[seatID] = s
	return true, nil
}

func (t *txn) ExpireHolds(_ context.Context, showID string, now time.Time) ([]model.Seat, error) {
	if err := t.fault("ExpireHolds"); err != nil {
		return nil, err
	}
	return t.expire(func(s model.Seat) bool { return s.ShowID == showID }, now), nil
}

func (t *txn) ExpireAllHolds(_ context.Context, now time.Time) ([]model.Seat, error) {
	if err := t.fault("ExpireAllHolds"); err != nil {
		return nil, err
	}
	return t.expire(func(model.Seat) bool { return true }, now), nil
}

func (t *txn) expire(match func(model.Seat) bool, now time.Time) []model.Seat {
	var expired []model.Seat
	for id, s := range t.st.seats {
		if !match(s) || !s.HoldExpired(now) {
			continue
		}
		expired = append(expired, s)
		s.Release()
		t.st.seats[id] = s
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired
}

func (t *txn) BookSeat(_ context.Context, seatID, userID string, bookedAt time.Time) (bool, error) {
	if err := t.fault("BookSeat"); err != nil {
		return false, err
	}
	s, ok := t.st.seats[seatID]
	if !ok || s.Status != model.SeatReserved || s.Holder != userID {
		return false, nil
	}
	s.Book(bookedAt)
	t.st.seats[seatID] = s
	return true, nil
}

func (t *txn) InsertBookings(_ context.Context, bookings []model.Booking) error {
	if err := t.fault("InsertBookings"); err != nil {
		return err
	}
	for _, b := range bookings {
		if _, dup := t.st.seatBooked[b.SeatID]; dup {
			return errs.Mark(errs.Newf("seat %s already has a booking", b.SeatID), repository.ErrDuplicate)
		}
		t.st.seatBooked[b.SeatID] = b.ID
		t.st.bookings = append(t.st.bookings, b)
	}
	return nil
}

func (t *txn) BookingsByUser(_ context.Context, userID string) ([]model.Booking, error) {
	if err := t.fault("BookingsByUser"); err != nil {
		return nil, err
	}
	var out []model.Booking
	for _, b := range t.st.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *txn) AppendEvent(_ context.Context, ev model.SeatEvent) error {
	if err := t.fault("AppendEvent"); err != nil {
		return err
	}
	ev.ID = t.st.nextEvent
	t.st.nextEvent++
	t.st.events = append(t.st.events, ev)
	return nil
}
