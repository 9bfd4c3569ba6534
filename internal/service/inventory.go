package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/seat-booking/internal/clock"
	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/repository"
)

// errSeatMapExists aborts an initialization that lost a race with a
// concurrent one.  Initialize reports it as zero seats created.
var errSeatMapExists = errs.New("seat map already exists")

// Inventory is the read and bootstrap side of the seat store.
type Inventory struct {
	store repository.Store
	clock clock.Clock
	log   *slog.Logger
	newID func() string
}

func NewInventory(store repository.Store, clk clock.Clock, log *slog.Logger) *Inventory {
	if log == nil {
		log = slog.Default()
	}
	return &Inventory{store: store, clock: clk, log: log, newID: uuid.NewString}
}

// Initialize creates the seat map of showID from layout.  It is idempotent
// per show: once seats exist it creates nothing and returns 0.
func (s *Inventory) Initialize(ctx context.Context, showID string, layout model.Layout) (int, error) {
	showID, err := requireShow(showID)
	if err != nil {
		return 0, err
	}
	if err := layout.Validate(); err != nil {
		return 0, errs.Validation(err.Error())
	}

	var created int
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		created = 0
		n, err := tx.CountSeats(ctx, showID)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		seats := layout.Seats(showID, s.newID)
		if err := tx.InsertSeats(ctx, seats); err != nil {
			if errs.Is(err, repository.ErrDuplicate) {
				return errSeatMapExists
			}
			return err
		}
		ids := make([]string, len(seats))
		for i, seat := range seats {
			ids[i] = seat.ID
		}
		created = len(seats)
		return tx.AppendEvent(ctx, model.SeatEvent{
			ShowID:     showID,
			Kind:       model.EventSeatsInitialized,
			SeatIDs:    ids,
			OccurredAt: s.clock.Now(),
		})
	})
	if errs.Is(err, errSeatMapExists) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if created > 0 {
		s.log.Info("seat map initialized", "show_id", showID, "seats", created)
	}
	return created, nil
}

// List returns every seat of showID ordered by (row, number).  Expired
// holds are released in the same transaction first, so a reader never sees
// a stale hold as reserved.
func (s *Inventory) List(ctx context.Context, showID string) ([]model.Seat, error) {
	showID, err := requireShow(showID)
	if err != nil {
		return nil, err
	}
	var seats []model.Seat
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		expired, err := sweepShow(ctx, tx, showID, s.clock.Now())
		if err != nil {
			return err
		}
		if len(expired) > 0 {
			s.log.Debug("expired holds released on read", "show_id", showID, "seats", len(expired))
		}
		seats, err = tx.ListSeats(ctx, showID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(seats) == 0 {
		return nil, errs.NotFound("show has no seats")
	}
	return seats, nil
}

func requireShow(showID string) (string, error) {
	showID = strings.TrimSpace(showID)
	if showID == "" {
		return "", errs.Validation("showId is required")
	}
	return showID, nil
}
