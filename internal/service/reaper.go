package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/seat-booking/internal/clock"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/repository"
)

// Reaper returns abandoned holds to the pool.  Inventory.List calls the
// same sweep inside its read transaction; Run adds an optional periodic
// sweep so expiry latency is bounded by the interval as well as by the
// next read.
type Reaper struct {
	store repository.Store
	clock clock.Clock
	log   *slog.Logger
}

func NewReaper(store repository.Store, clk clock.Clock, log *slog.Logger) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{store: store, clock: clk, log: log}
}

// Sweep releases every hold of showID whose expiry is at or before now and
// returns how many seats were released.
func (r *Reaper) Sweep(ctx context.Context, showID string) (int, error) {
	showID, err := requireShow(showID)
	if err != nil {
		return 0, err
	}
	var released int
	err = r.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		expired, err := sweepShow(ctx, tx, showID, r.clock.Now())
		released = len(expired)
		return err
	})
	if err != nil {
		return 0, err
	}
	if released > 0 {
		r.log.Info("expired holds released", "show_id", showID, "seats", released)
	}
	return released, nil
}

// SweepAll releases expired holds across every show.
func (r *Reaper) SweepAll(ctx context.Context) (int, error) {
	var released int
	err := r.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		now := r.clock.Now()
		expired, err := tx.ExpireAllHolds(ctx, now)
		if err != nil {
			return err
		}
		released = len(expired)
		return appendExpired(ctx, tx, expired, now)
	})
	if err != nil {
		return 0, err
	}
	if released > 0 {
		r.log.Info("expired holds released", "seats", released)
	}
	return released, nil
}

// Run sweeps every interval until ctx is cancelled.  A non-positive
// interval returns immediately.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info("reaper started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper stopped")
			return
		case <-ticker.C:
			if _, err := r.SweepAll(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("periodic sweep failed", "error", err.Error())
			}
		}
	}
}

// sweepShow is the reaping-on-read step shared by Reaper.Sweep and
// Inventory.List.  It must run inside the caller's transaction.
func sweepShow(ctx context.Context, tx repository.Tx, showID string, now time.Time) ([]model.Seat, error) {
	expired, err := tx.ExpireHolds(ctx, showID, now)
	if err != nil {
		return nil, err
	}
	return expired, appendExpired(ctx, tx, expired, now)
}

// appendExpired records one seats.expired event per show.
func appendExpired(ctx context.Context, tx repository.Tx, expired []model.Seat, now time.Time) error {
	return appendByShow(ctx, tx, expired, model.SeatEvent{Kind: model.EventSeatsExpired, OccurredAt: now})
}
