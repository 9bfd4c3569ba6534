// Package repository defines the storage contracts used by the seat
// reservation core and implements them on database/sql.
//
// Every mutation runs inside Store.InTx.  The transaction is the only
// concurrency primitive the services rely on: single-seat transitions are
// conditional updates that report whether the row matched, and multi-seat
// commits lock their rows before validating them.  Change-feed events are
// appended through the same Tx so they can never describe state that was
// rolled back.
package repository

import (
	"context"
	"time"

	"github.com/iliyamo/seat-booking/internal/model"
)

// Tx is the set of operations available inside one transaction.
type Tx interface {
	// InsertSeats creates seats.  The (show, row, number) triple is unique.
	InsertSeats(ctx context.Context, seats []model.Seat) error
	// CountSeats returns how many seats exist for showID.
	CountSeats(ctx context.Context, showID string) (int, error)
	// ListSeats returns every seat of showID ordered by (row, number).
	ListSeats(ctx context.Context, showID string) ([]model.Seat, error)
	// SeatsByID loads the given seats, skipping ids that do not exist.
	// When lock is true the rows stay locked until the transaction ends.
	SeatsByID(ctx context.Context, seatIDs []string, lock bool) ([]model.Seat, error)

	// HoldSeat moves one seat to reserved for userID if, and only if, it is
	// available or its previous hold expired at or before reservedAt.  It
	// reports whether the row transitioned.
	HoldSeat(ctx context.Context, seatID, userID string, reservedAt, expiresAt time.Time) (bool, error)
	// ReleaseSeat returns one seat to available if it is reserved by userID.
	ReleaseSeat(ctx context.Context, seatID, userID string, now time.Time) (bool, error)
	// ExpireHolds resets every hold of showID that expired at or before now
	// and returns the seats as they were before the reset.
	ExpireHolds(ctx context.Context, showID string, now time.Time) ([]model.Seat, error)
	// ExpireAllHolds does the same across every show.
	ExpireAllHolds(ctx context.Context, now time.Time) ([]model.Seat, error)
	// BookSeat moves one seat from reserved-by-userID to booked and clears
	// its holder.
	BookSeat(ctx context.Context, seatID, userID string, bookedAt time.Time) (bool, error)

	// InsertBookings creates booking receipts.  A seat may be referenced
	// by at most one booking.
	InsertBookings(ctx context.Context, bookings []model.Booking) error
	// BookingsByUser returns the user's bookings, newest first.
	BookingsByUser(ctx context.Context, userID string) ([]model.Booking, error)

	// AppendEvent records a change-feed event in the outbox.
	AppendEvent(ctx context.Context, ev model.SeatEvent) error
}

// Store opens transactions and serves the outbox relay.
type Store interface {
	// InTx runs fn in a transaction.  The transaction commits when fn
	// returns nil and rolls back otherwise; fn may be invoked again when the
	// backend reports a transient lock conflict, so it must not have side
	// effects outside tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// PendingEvents returns up to limit unpublished events in commit order.
	PendingEvents(ctx context.Context, limit int) ([]model.SeatEvent, error)
	// MarkPublished flags events as delivered to the transport.
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
}
