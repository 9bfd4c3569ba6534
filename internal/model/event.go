package model

import "time"

// EventKind names the seat mutation a SeatEvent records.  The value doubles
// as the routing key on the message broker.
type EventKind string

const (
	EventSeatsInitialized EventKind = "seats.initialized"
	EventSeatsHeld        EventKind = "seats.held"
	EventSeatsReleased    EventKind = "seats.released"
	EventSeatsExpired     EventKind = "seats.expired"
	EventSeatsBooked      EventKind = "seats.booked"
)

// SeatEvent is one entry of the seat change feed.  It is written in the
// same transaction as the mutation it describes and relayed afterwards,
// so a published event always corresponds to committed state.
//
// Fields:
//  ID          – outbox sequence number, assigned by the store.
//  ShowID      – show whose seats changed.
//  Kind        – mutation kind.
//  SeatIDs     – affected seats.
//  UserID      – acting user, empty for expiry.
//  BookingIDs  – bookings created, only for seats.booked.
//  Amount      – total charged, only for seats.booked.
//  OccurredAt  – commit time of the mutation.
type SeatEvent struct {
	ID         int64     `json:"id"`
	ShowID     string    `json:"showId"`
	Kind       EventKind `json:"kind"`
	SeatIDs    []string  `json:"seatIds"`
	UserID     string    `json:"userId,omitempty"`
	BookingIDs []string  `json:"bookingIds,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
