package model

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeatTransitionsStayConsistent(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	s := Seat{ID: "s1", Row: "A", Number: 1, Price: 100, Status: SeatAvailable}
	require.NoError(t, s.Consistent())

	s.Hold("u1", now, HoldTTL)
	require.NoError(t, s.Consistent())
	assert.Equal(t, SeatReserved, s.Status)
	assert.Equal(t, now.Add(300*time.Second), *s.ExpiresAt)
	assert.True(t, s.HeldBy("u1", now))
	assert.False(t, s.HeldBy("u2", now))

	s.Book(now.Add(time.Minute))
	require.NoError(t, s.Consistent())
	assert.Empty(t, s.Holder)
	assert.Nil(t, s.ExpiresAt)
	assert.Nil(t, s.ReservedAt)

	s.Release()
	require.NoError(t, s.Consistent())
	assert.Equal(t, int64(3), s.Version)
}

func TestSeatHoldExpiryBoundary(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	s := Seat{ID: "s1", Status: SeatAvailable}
	s.Hold("u1", now, HoldTTL)

	assert.False(t, s.HoldExpired(now.Add(299*time.Second)))
	assert.True(t, s.HoldExpired(now.Add(300*time.Second)))
	assert.True(t, s.Holdable(now.Add(300*time.Second)))
	assert.False(t, s.HeldBy("u1", now.Add(300*time.Second)))
}

func TestSeatConsistentRejectsMixedState(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		seat Seat
	}{
		{"available with holder", Seat{ID: "x", Status: SeatAvailable, Holder: "u"}},
		{"reserved without expiry", Seat{ID: "x", Status: SeatReserved, Holder: "u", ReservedAt: &now}},
		{"booked with expiry", Seat{ID: "x", Status: SeatBooked, BookedAt: &now, ExpiresAt: &now}},
		{"booked with holder", Seat{ID: "x", Status: SeatBooked, Holder: "u", BookedAt: &now}},
		{"unknown status", Seat{ID: "x", Status: "sold"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.seat.Consistent())
		})
	}
}

func TestLayoutSeatsNumbersRowsAcrossSections(t *testing.T) {
	l := Layout{Sections: []SectionLayout{
		{Name: "left", Price: 100, Rows: []RowLayout{{Label: "a", Seats: 2}}},
		{Name: "right", Price: 150, Rows: []RowLayout{{Label: "A", Seats: 1}, {Label: "B", Seats: 1}}},
	}}
	require.NoError(t, l.Validate())

	n := 0
	seats := l.Seats("show-1", func() string { n++; return fmt.Sprintf("id-%d", n) })
	require.Len(t, seats, 4)
	assert.Equal(t, "A1", seats[0].Label())
	assert.Equal(t, "A3", seats[2].Label())
	assert.Equal(t, int64(150), seats[2].Price)
	assert.Equal(t, "right", seats[2].Section)
	assert.Equal(t, "B1", seats[3].Label())
	for _, s := range seats {
		assert.Equal(t, "show-1", s.ShowID)
		assert.NoError(t, s.Consistent())
	}
}

func TestLayoutValidate(t *testing.T) {
	assert.Error(t, Layout{}.Validate())
	assert.Error(t, Layout{Sections: []SectionLayout{{Name: "", Rows: []RowLayout{{Label: "A", Seats: 1}}}}}.Validate())
	assert.Error(t, Layout{Sections: []SectionLayout{{Name: "x", Price: -1, Rows: []RowLayout{{Label: "A", Seats: 1}}}}}.Validate())
	assert.Error(t, Layout{Sections: []SectionLayout{{Name: "x", Rows: []RowLayout{{Label: "A", Seats: 0}}}}}.Validate())
	assert.NoError(t, DefaultLayout().Validate())
	assert.Len(t, DefaultLayout().Seats("s", func() string { return "id" }), 1054)
}
