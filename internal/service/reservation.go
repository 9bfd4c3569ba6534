package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/iliyamo/seat-booking/internal/clock"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/repository"
)

// HoldResult reports the outcome of a hold.  A hold is not atomic across
// seats: seats in Held stay reserved even when Failed is non-empty, and the
// caller decides whether to retry the remainder or release what it got.
type HoldResult struct {
	Held      []model.Seat
	Failed    []InvalidSeat
	Requested int
	ExpiresAt time.Time
}

// Partial reports whether fewer seats were held than requested.
func (r HoldResult) Partial() bool {
	return len(r.Held) < r.Requested
}

// HeldIDs returns the ids of the seats that were held.
func (r HoldResult) HeldIDs() []string {
	ids := make([]string, len(r.Held))
	for i, s := range r.Held {
		ids[i] = s.ID
	}
	return ids
}

// Reservations places and releases holds.
type Reservations struct {
	store repository.Store
	clock clock.Clock
	log   *slog.Logger
}

func NewReservations(store repository.Store, clk clock.Clock, log *slog.Logger) *Reservations {
	if log == nil {
		log = slog.Default()
	}
	return &Reservations{store: store, clock: clk, log: log}
}

// Hold reserves each requested seat for userID for model.HoldTTL.  Every
// seat is claimed by its own conditional update, which succeeds only if the
// seat is available or its previous hold has expired, so two callers
// racing for one seat cannot both win it.
func (s *Reservations) Hold(ctx context.Context, seatIDs []string, userID string) (HoldResult, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return HoldResult{}, err
	}
	ids, err := normalizeIDs(seatIDs)
	if err != nil {
		return HoldResult{}, err
	}

	now := s.clock.Now()
	result := HoldResult{Requested: len(ids), ExpiresAt: now.Add(model.HoldTTL)}

	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		result.Held = nil
		result.Failed = nil

		won := make(map[string]bool, len(ids))
		for _, id := range ids {
			ok, err := tx.HoldSeat(ctx, id, userID, now, result.ExpiresAt)
			if err != nil {
				return err
			}
			won[id] = ok
		}

		seats, err := tx.SeatsByID(ctx, ids, false)
		if err != nil {
			return err
		}
		found := make(map[string]model.Seat, len(seats))
		for _, seat := range seats {
			found[seat.ID] = seat
		}
		for _, id := range ids {
			seat, ok := found[id]
			switch {
			case !ok:
				result.Failed = append(result.Failed, InvalidSeat{SeatID: id, Reason: ReasonNotFound})
			case won[id]:
				result.Held = append(result.Held, seat)
			default:
				result.Failed = append(result.Failed, InvalidSeat{
					SeatID: id,
					Label:  seat.Label(),
					Status: seat.Status,
					Reason: unavailableReason(seat),
				})
			}
		}
		return appendByShow(ctx, tx, result.Held, model.SeatEvent{
			Kind:       model.EventSeatsHeld,
			UserID:     userID,
			OccurredAt: now,
		})
	})
	if err != nil {
		return HoldResult{}, err
	}

	s.log.Debug("seats held",
		"user_id", userID,
		"requested", result.Requested,
		"held", len(result.Held),
		"failed", len(result.Failed))
	return result, nil
}

// Release returns the seats userID holds among seatIDs to the pool and
// returns their ids.  Seats not held by userID are skipped without error.
func (s *Reservations) Release(ctx context.Context, seatIDs []string, userID string) ([]string, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return nil, err
	}
	ids, err := normalizeIDs(seatIDs)
	if err != nil {
		return nil, err
	}

	var released []model.Seat
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		released = nil
		now := s.clock.Now()
		seats, err := tx.SeatsByID(ctx, ids, false)
		if err != nil {
			return err
		}
		for _, seat := range seats {
			ok, err := tx.ReleaseSeat(ctx, seat.ID, userID, now)
			if err != nil {
				return err
			}
			if ok {
				released = append(released, seat)
			}
		}
		return appendByShow(ctx, tx, released, model.SeatEvent{
			Kind:       model.EventSeatsReleased,
			UserID:     userID,
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, len(released))
	for i, seat := range released {
		out[i] = seat.ID
	}
	s.log.Debug("seats released", "user_id", userID, "requested", len(ids), "released", len(out))
	return out, nil
}

func unavailableReason(seat model.Seat) string {
	if seat.Status == model.SeatBooked {
		return ReasonBooked
	}
	return ReasonReserved
}

// appendByShow records tmpl once per show touched by seats, filling in
// ShowID and SeatIDs.
func appendByShow(ctx context.Context, tx repository.Tx, seats []model.Seat, tmpl model.SeatEvent) error {
	if len(seats) == 0 {
		return nil
	}
	byShow := make(map[string][]string)
	for _, seat := range seats {
		byShow[seat.ShowID] = append(byShow[seat.ShowID], seat.ID)
	}
	shows := make([]string, 0, len(byShow))
	for show := range byShow {
		shows = append(shows, show)
	}
	sort.Strings(shows)
	for _, show := range shows {
		ev := tmpl
		ev.ShowID = show
		ev.SeatIDs = byShow[show]
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
