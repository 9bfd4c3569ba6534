package model

import "time"

// BookingStatus tracks the lifecycle of a booking receipt.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is the durable receipt that one seat was sold to one user.
// Exactly one booking may reference a given seat.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – user who bought the seat.
//  ShowID    – show the seat belongs to.
//  SeatID    – seat that was sold (unique across bookings).
//  Amount    – seat price at the moment of commit, minor units.
//  Status    – confirmed or cancelled.
//  CreatedAt – commit timestamp.
type Booking struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	ShowID    string        `json:"showId"`
	SeatID    string        `json:"seatId"`
	Amount    int64         `json:"amount"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}
