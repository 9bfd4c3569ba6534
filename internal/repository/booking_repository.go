package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/model"
)

// InsertBookings writes the receipts of one confirm in a single statement.
// bookings.seat_id is unique, so a seat sold twice surfaces as
// ErrDuplicate even if a caller bypassed the seat lock.
func (t *sqlTxn) InsertBookings(ctx context.Context, bookings []model.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	var q strings.Builder
	q.WriteString(`INSERT INTO bookings (id, user_id, show_id, seat_id, amount, status, created_at) VALUES `)
	args := make([]any, 0, len(bookings)*7)
	for i, b := range bookings {
		if i > 0 {
			q.WriteString(",")
		}
		q.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, b.ID, b.UserID, b.ShowID, b.SeatID, b.Amount, string(b.Status), b.CreatedAt)
	}
	if _, err := t.exec(ctx, q.String(), args...); err != nil {
		if isDuplicate(err) {
			return errs.Mark(err, ErrDuplicate)
		}
		return errs.Internal(err, "insert bookings")
	}
	return nil
}

func (t *sqlTxn) BookingsByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	const q = `SELECT id, user_id, show_id, seat_id, amount, status, created_at
	           FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id`
	rows, err := t.query(ctx, q, userID)
	if err != nil {
		return nil, errs.Internal(err, "query bookings")
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		var (
			b      model.Booking
			status string
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.ShowID, &b.SeatID, &b.Amount, &status, &b.CreatedAt); err != nil {
			return nil, errs.Internal(err, "scan booking")
		}
		b.Status = model.BookingStatus(status)
		b.CreatedAt = b.CreatedAt.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Internal(err, "iterate bookings")
	}
	return out, nil
}
