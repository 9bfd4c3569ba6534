package model

import (
	"fmt"
	"time"
)

// SeatStatus is the wire-level state of a seat.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatReserved  SeatStatus = "reserved"
	SeatBooked    SeatStatus = "booked"
)

// Valid reports whether s is one of the three known statuses.
func (s SeatStatus) Valid() bool {
	switch s {
	case SeatAvailable, SeatReserved, SeatBooked:
		return true
	}
	return false
}

// HoldTTL is the fixed lifetime of every hold.  A hold placed at T is
// reclaimable by any sweep or conditional hold performed at or after
// T+HoldTTL.
const HoldTTL = 300 * time.Second

// Seat is one bookable position in one show.  Price is fixed when the
// seat map is initialized and never changes afterwards.
//
// Fields:
//  ID         – primary key identifier.
//  ShowID     – show this seat belongs to.
//  Row        – row label (A, B, ...).
//  Number     – seat number, unique within a row of a show.
//  Section    – section label the price was derived from.
//  Price      – price in minor currency units.
//  Status     – available, reserved or booked.
//  Holder     – owning user while reserved, empty otherwise.
//  ReservedAt – set only while reserved.
//  ExpiresAt  – set only while reserved.
//  BookedAt   – set only while booked.
//  Version    – bumped on every state change.
type Seat struct {
	ID         string     `json:"id"`
	ShowID     string     `json:"showId"`
	Row        string     `json:"row"`
	Number     int        `json:"number"`
	Section    string     `json:"section"`
	Price      int64      `json:"price"`
	Status     SeatStatus `json:"status"`
	Holder     string     `json:"userId,omitempty"`
	ReservedAt *time.Time `json:"reservedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	BookedAt   *time.Time `json:"bookedAt,omitempty"`
	Version    int64      `json:"-"`
}

// Consistent checks that the populated subset of holder and timestamp
// fields matches Status.  It returns a descriptive error for the first
// violation found.
func (s Seat) Consistent() error {
	switch s.Status {
	case SeatAvailable:
		if s.Holder != "" || s.ReservedAt != nil || s.ExpiresAt != nil || s.BookedAt != nil {
			return fmt.Errorf("seat %s: available seat carries holder or timestamps", s.ID)
		}
	case SeatReserved:
		if s.Holder == "" || s.ReservedAt == nil || s.ExpiresAt == nil {
			return fmt.Errorf("seat %s: reserved seat missing holder or hold timestamps", s.ID)
		}
		if s.BookedAt != nil {
			return fmt.Errorf("seat %s: reserved seat has booked_at", s.ID)
		}
	case SeatBooked:
		if s.BookedAt == nil {
			return fmt.Errorf("seat %s: booked seat missing booked_at", s.ID)
		}
		if s.Holder != "" || s.ReservedAt != nil || s.ExpiresAt != nil {
			return fmt.Errorf("seat %s: booked seat still has hold fields", s.ID)
		}
	default:
		return fmt.Errorf("seat %s: unknown status %q", s.ID, s.Status)
	}
	return nil
}

// HoldExpired reports whether the seat is reserved and its hold has
// reached its expiry at now.
func (s Seat) HoldExpired(now time.Time) bool {
	return s.Status == SeatReserved && s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// Holdable reports whether a conditional hold at now may claim the seat:
// it is available, or its previous hold has already expired.
func (s Seat) Holdable(now time.Time) bool {
	return s.Status == SeatAvailable || s.HoldExpired(now)
}

// HeldBy reports whether userID owns a live hold on the seat at now.
func (s Seat) HeldBy(userID string, now time.Time) bool {
	return s.Status == SeatReserved && s.Holder == userID && !s.HoldExpired(now)
}

// Hold moves the seat to reserved for userID.
func (s *Seat) Hold(userID string, now time.Time, ttl time.Duration) {
	reservedAt := now
	expiresAt := now.Add(ttl)
	s.Status = SeatReserved
	s.Holder = userID
	s.ReservedAt = &reservedAt
	s.ExpiresAt = &expiresAt
	s.BookedAt = nil
	s.Version++
}

// Release returns the seat to the available pool.
func (s *Seat) Release() {
	s.Status = SeatAvailable
	s.Holder = ""
	s.ReservedAt = nil
	s.ExpiresAt = nil
	s.BookedAt = nil
	s.Version++
}

// Book marks the seat sold.  The hold fields are cleared; the buyer is
// recorded on the booking row.
func (s *Seat) Book(now time.Time) {
	bookedAt := now
	s.Status = SeatBooked
	s.Holder = ""
	s.ReservedAt = nil
	s.ExpiresAt = nil
	s.BookedAt = &bookedAt
	s.Version++
}

// Label returns the human-readable seat label, e.g. "A12".
func (s Seat) Label() string {
	return fmt.Sprintf("%s%d", s.Row, s.Number)
}
