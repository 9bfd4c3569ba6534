package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/model"
)

// seatColumns is the column list every seat query selects, in scanSeat order.
const seatColumns = `id, show_id, row_label, seat_number, section, price, status, holder, reserved_at, expires_at, booked_at, version`

// insertChunk bounds the number of rows per multi-row INSERT so the
// statement stays below driver placeholder limits.
const insertChunk = 500

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSeat reads one seat row.  Nullable columns map onto the empty holder
// and nil timestamps used by model.Seat.
func scanSeat(r rowScanner) (model.Seat, error) {
	var (
		s          model.Seat
		status     string
		holder     sql.NullString
		reservedAt sql.NullTime
		expiresAt  sql.NullTime
		bookedAt   sql.NullTime
	)
	if err := r.Scan(&s.ID, &s.ShowID, &s.Row, &s.Number, &s.Section, &s.Price, &status,
		&holder, &reservedAt, &expiresAt, &bookedAt, &s.Version); err != nil {
		return model.Seat{}, err
	}
	s.Status = model.SeatStatus(status)
	if holder.Valid {
		s.Holder = holder.String
	}
	s.ReservedAt = timePtr(reservedAt)
	s.ExpiresAt = timePtr(expiresAt)
	s.BookedAt = timePtr(bookedAt)
	return s, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func (t *sqlTxn) scanSeats(ctx context.Context, query string, args ...any) ([]model.Seat, error) {
	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, errs.Internal(err, "query seats")
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, errs.Internal(err, "scan seat")
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Internal(err, "iterate seats")
	}
	return seats, nil
}

// InsertSeats creates the seat map in chunks.  A unique key on
// (show_id, row_label, seat_number) turns a second initialization into
// ErrDuplicate.
func (t *sqlTxn) InsertSeats(ctx context.Context, seats []model.Seat) error {
	for start := 0; start < len(seats); start += insertChunk {
		end := start + insertChunk
		if end > len(seats) {
			end = len(seats)
		}
		batch := seats[start:end]

		var q strings.Builder
		q.WriteString(`INSERT INTO seats (id, show_id, row_label, seat_number, section, price, status, version) VALUES `)
		args := make([]any, 0, len(batch)*8)
		for i, s := range batch {
			if i > 0 {
				q.WriteString(",")
			}
			q.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, s.ID, s.ShowID, s.Row, s.Number, s.Section, s.Price, string(s.Status), s.Version)
		}
		if _, err := t.exec(ctx, q.String(), args...); err != nil {
			if isDuplicate(err) {
				return errs.Mark(err, ErrDuplicate)
			}
			return errs.Internal(err, "insert seats")
		}
	}
	return nil
}

func (t *sqlTxn) CountSeats(ctx context.Context, showID string) (int, error) {
	var n int
	if err := t.queryRow(ctx, `SELECT COUNT(*) FROM seats WHERE show_id = ?`, showID).Scan(&n); err != nil {
		return 0, errs.Internal(err, "count seats")
	}
	return n, nil
}

func (t *sqlTxn) ListSeats(ctx context.Context, showID string) ([]model.Seat, error) {
	return t.scanSeats(ctx,
		`SELECT `+seatColumns+` FROM seats WHERE show_id = ? ORDER BY row_label, seat_number`,
		showID)
}

// SeatsByID orders rows by id so that concurrent lockers acquire row locks
// in the same order.
func (t *sqlTxn) SeatsByID(ctx context.Context, seatIDs []string, lock bool) ([]model.Seat, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	q := `SELECT ` + seatColumns + ` FROM seats WHERE id IN ` + placeholders(len(seatIDs)) + ` ORDER BY id`
	if lock {
		q += ` FOR UPDATE`
	}
	return t.scanSeats(ctx, q, stringArgs(seatIDs)...)
}

// HoldSeat is the compare-and-swap primitive behind every hold: the WHERE
// clause carries the precondition, so two concurrent holders of the same
// seat cannot both see one affected row.
func (t *sqlTxn) HoldSeat(ctx context.Context, seatID, userID string, reservedAt, expiresAt time.Time) (bool, error) {
	const q = `UPDATE seats
	           SET status = 'reserved', holder = ?, reserved_at = ?, expires_at = ?, booked_at = NULL,
	               version = version + 1, updated_at = ?
	           WHERE id = ? AND (status = 'available' OR (status = 'reserved' AND expires_at <= ?))`
	res, err := t.exec(ctx, q, userID, reservedAt, expiresAt, reservedAt, seatID, reservedAt)
	if err != nil {
		return false, errs.Internal(err, "hold seat")
	}
	ok, err := rowsAffectedOne(res)
	if err != nil {
		return false, errs.Internal(err, "hold seat")
	}
	return ok, nil
}

func (t *sqlTxn) ReleaseSeat(ctx context.Context, seatID, userID string, now time.Time) (bool, error) {
	const q = `UPDATE seats
	           SET status = 'available', holder = NULL, reserved_at = NULL, expires_at = NULL,
	               version = version + 1, updated_at = ?
	           WHERE id = ? AND status = 'reserved' AND holder = ?`
	res, err := t.exec(ctx, q, now, seatID, userID)
	if err != nil {
		return false, errs.Internal(err, "release seat")
	}
	ok, err := rowsAffectedOne(res)
	if err != nil {
		return false, errs.Internal(err, "release seat")
	}
	return ok, nil
}

func (t *sqlTxn) ExpireHolds(ctx context.Context, showID string, now time.Time) ([]model.Seat, error) {
	expired, err := t.scanSeats(ctx,
		`SELECT `+seatColumns+` FROM seats
		 WHERE show_id = ? AND status = 'reserved' AND expires_at <= ? ORDER BY id FOR UPDATE`,
		showID, now)
	if err != nil {
		return nil, err
	}
	return expired, t.resetExpired(ctx, expired, now)
}

func (t *sqlTxn) ExpireAllHolds(ctx context.Context, now time.Time) ([]model.Seat, error) {
	expired, err := t.scanSeats(ctx,
		`SELECT `+seatColumns+` FROM seats
		 WHERE status = 'reserved' AND expires_at <= ? ORDER BY id FOR UPDATE`,
		now)
	if err != nil {
		return nil, err
	}
	return expired, t.resetExpired(ctx, expired, now)
}

func (t *sqlTxn) resetExpired(ctx context.Context, expired []model.Seat, now time.Time) error {
	if len(expired) == 0 {
		return nil
	}
	ids := make([]string, len(expired))
	for i, s := range expired {
		ids[i] = s.ID
	}
	q := `UPDATE seats
	      SET status = 'available', holder = NULL, reserved_at = NULL, expires_at = NULL,
	          version = version + 1, updated_at = ?
	      WHERE id IN ` + placeholders(len(ids)) + ` AND status = 'reserved' AND expires_at <= ?`
	args := append([]any{now}, stringArgs(ids)...)
	args = append(args, now)
	if _, err := t.exec(ctx, q, args...); err != nil {
		return errs.Internal(err, "expire holds")
	}
	return nil
}

func (t *sqlTxn) BookSeat(ctx context.Context, seatID, userID string, bookedAt time.Time) (bool, error) {
	const q = `UPDATE seats
	           SET status = 'booked', holder = NULL, booked_at = ?, reserved_at = NULL, expires_at = NULL,
	               version = version + 1, updated_at = ?
	           WHERE id = ? AND status = 'reserved' AND holder = ?`
	res, err := t.exec(ctx, q, bookedAt, bookedAt, seatID, userID)
	if err != nil {
		return false, errs.Internal(err, "book seat")
	}
	ok, err := rowsAffectedOne(res)
	if err != nil {
		return false, errs.Internal(err, "book seat")
	}
	return ok, nil
}
