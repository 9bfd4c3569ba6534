package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-booking/internal/clock"
	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/repository"
	"github.com/iliyamo/seat-booking/internal/service"
)

func newSQLBookings(t *testing.T) (*service.Bookings, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewSQLStore(db, repository.MySQL, time.Second, log)
	return service.NewBookings(store, clock.NewMockClock(t0), log), mock
}

func heldRows(user string) *sqlmock.Rows {
	exp := t0.Add(time.Minute)
	reserved := exp.Add(-model.HoldTTL)
	return sqlmock.NewRows([]string{
		"id", "show_id", "row_label", "seat_number", "section", "price", "status",
		"holder", "reserved_at", "expires_at", "booked_at", "version",
	}).
		AddRow("s1", showID, "A", 1, "left", 100, "reserved", user, reserved, exp, nil, 1).
		AddRow("s2", showID, "A", 2, "center", 150, "reserved", user, reserved, exp, nil, 1)
}

func TestConfirm_SQLLocksRowsBeforeWriting(t *testing.T) {
	bookings, mock := newSQLBookings(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM seats WHERE id IN (?, ?) ORDER BY id FOR UPDATE")).
		WithArgs("s1", "s2").
		WillReturnRows(heldRows("U1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	for _, id := range []string{"s1", "s2"} {
		mock.ExpectExec(regexp.QuoteMeta("SET status = 'booked', holder = NULL")).
			WithArgs(t0, t0, id, "U1").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO seat_events")).
		WithArgs(showID, "seats.booked", sqlmock.AnyArg(), t0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	conf, err := bookings.Confirm(context.Background(), []string{"s2", "s1"}, "U1")
	require.NoError(t, err)
	assert.EqualValues(t, 250, conf.TotalAmount)
	assert.Len(t, conf.Bookings, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirm_SQLBookFailureRollsBack(t *testing.T) {
	bookings, mock := newSQLBookings(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id FOR UPDATE")).
		WithArgs("s1", "s2").
		WillReturnRows(heldRows("U1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'booked'")).
		WithArgs(t0, t0, "s1", "U1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'booked'")).
		WithArgs(t0, t0, "s2", "U1").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := bookings.Confirm(context.Background(), []string{"s1", "s2"}, "U1")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrInternal))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirm_SQLConflictWritesNothing(t *testing.T) {
	bookings, mock := newSQLBookings(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id FOR UPDATE")).
		WithArgs("s1", "s2").
		WillReturnRows(heldRows("U2"))
	mock.ExpectRollback()

	_, err := bookings.Confirm(context.Background(), []string{"s1", "s2"}, "U1")
	var conflict *service.ConfirmConflictError
	require.True(t, errs.As(err, &conflict))
	assert.Len(t, conflict.Invalid, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
