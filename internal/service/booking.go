package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/seat-booking/internal/clock"
	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/repository"
)

// Confirmation is the receipt of a successful confirm.
type Confirmation struct {
	Bookings    []model.Booking
	TotalAmount int64
}

// Bookings turns held seats into bookings.
type Bookings struct {
	store repository.Store
	clock clock.Clock
	log   *slog.Logger
	newID func() string
}

func NewBookings(store repository.Store, clk clock.Clock, log *slog.Logger) *Bookings {
	if log == nil {
		log = slog.Default()
	}
	return &Bookings{store: store, clock: clk, log: log, newID: uuid.NewString}
}

// Confirm books every seat in seatIDs for userID or none of them.
//
// The seats are locked, validated, inserted as bookings and flipped to
// booked inside one transaction.  A seat that is missing fails the call
// with SeatsNotFoundError; a seat that is not reserved by userID with a
// live hold fails it with ConfirmConflictError.  In both cases nothing is
// written.  The call is never retried here; the caller re-holds and
// confirms again.
func (s *Bookings) Confirm(ctx context.Context, seatIDs []string, userID string) (Confirmation, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return Confirmation{}, err
	}
	ids, err := normalizeIDs(seatIDs)
	if err != nil {
		return Confirmation{}, err
	}

	var out Confirmation
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		out = Confirmation{}
		now := s.clock.Now()

		seats, err := tx.SeatsByID(ctx, ids, true)
		if err != nil {
			return err
		}
		if missing := missingIDs(ids, seats); len(missing) > 0 {
			return newSeatsNotFound(missing)
		}
		if !sameShow(seats) {
			return errs.Validation("seats must belong to a single show")
		}
		if invalid := validateHolds(seats, userID, now); len(invalid) > 0 {
			return newConfirmConflict(invalid)
		}

		bookings := make([]model.Booking, len(seats))
		for i, seat := range seats {
			bookings[i] = model.Booking{
				ID:        s.newID(),
				UserID:    userID,
				ShowID:    seat.ShowID,
				SeatID:    seat.ID,
				Amount:    seat.Price,
				Status:    model.BookingConfirmed,
				CreatedAt: now,
			}
			out.TotalAmount += seat.Price
		}
		if err := tx.InsertBookings(ctx, bookings); err != nil {
			if errs.Is(err, repository.ErrDuplicate) {
				return newConfirmConflict(bookedAll(seats))
			}
			return err
		}
		for _, seat := range seats {
			ok, err := tx.BookSeat(ctx, seat.ID, userID, now)
			if err != nil {
				return err
			}
			if !ok {
				// Unreachable while the row lock holds.
				return newConfirmConflict([]InvalidSeat{{
					SeatID: seat.ID, Label: seat.Label(), Status: seat.Status, Reason: ReasonNotReserved,
				}})
			}
		}

		bookingIDs := make([]string, len(bookings))
		for i, b := range bookings {
			bookingIDs[i] = b.ID
		}
		out.Bookings = bookings
		return tx.AppendEvent(ctx, model.SeatEvent{
			ShowID:     seats[0].ShowID,
			Kind:       model.EventSeatsBooked,
			SeatIDs:    ids,
			UserID:     userID,
			BookingIDs: bookingIDs,
			Amount:     out.TotalAmount,
			OccurredAt: now,
		})
	})
	if err != nil {
		if errs.Is(err, errs.ErrInternal) {
			s.log.Error("confirm failed", "user_id", userID, "seats", len(ids), "error", err.Error())
		} else {
			s.log.Debug("confirm rejected", "user_id", userID, "seats", len(ids), "error", err.Error())
		}
		return Confirmation{}, err
	}

	s.log.Info("booking confirmed", "user_id", userID, "seats", len(out.Bookings), "total_amount", out.TotalAmount)
	return out, nil
}

// ListByUser returns the bookings of userID, newest first.
func (s *Bookings) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return nil, err
	}
	var out []model.Booking
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		out, err = tx.BookingsByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func missingIDs(ids []string, seats []model.Seat) []string {
	found := make(map[string]struct{}, len(seats))
	for _, s := range seats {
		found[s.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func sameShow(seats []model.Seat) bool {
	for _, s := range seats[1:] {
		if s.ShowID != seats[0].ShowID {
			return false
		}
	}
	return true
}

// validateHolds returns every seat that is not reserved by userID with a
// hold still live at now.
func validateHolds(seats []model.Seat, userID string, now time.Time) []InvalidSeat {
	var invalid []InvalidSeat
	for _, seat := range seats {
		var reason string
		switch {
		case seat.Status == model.SeatBooked:
			reason = ReasonBooked
		case seat.Status != model.SeatReserved:
			reason = ReasonNotReserved
		case seat.Holder != userID:
			reason = ReasonHeldByOther
		case seat.HoldExpired(now):
			reason = ReasonHoldExpired
		default:
			continue
		}
		invalid = append(invalid, InvalidSeat{
			SeatID: seat.ID,
			Label:  seat.Label(),
			Status: seat.Status,
			Reason: reason,
		})
	}
	return invalid
}

func bookedAll(seats []model.Seat) []InvalidSeat {
	out := make([]InvalidSeat, len(seats))
	for i, seat := range seats {
		out[i] = InvalidSeat{SeatID: seat.ID, Label: seat.Label(), Status: seat.Status, Reason: ReasonBooked}
	}
	return out
}
