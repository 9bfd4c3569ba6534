package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/binary"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/iliyamo/seat-booking/internal/errs"
)

// Dialect selects the SQL flavour spoken by SQLStore.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213

	pgErrUniqueViolation      = "23505"
	pgErrSerializationFailure = "40001"
	pgErrDeadlockDetected     = "40P01"
)

// SQLStore implements Store on a *sql.DB.  Queries are written with "?"
// placeholders and rebound for PostgreSQL.
type SQLStore struct {
	db         *sql.DB
	dialect    Dialect
	txTimeout  time.Duration
	maxRetries int
	log        *slog.Logger
}

// NewSQLStore returns a store bound to db.  txTimeout bounds every
// transaction, including time spent waiting for row locks; zero disables
// the bound.
func NewSQLStore(db *sql.DB, dialect Dialect, txTimeout time.Duration, log *slog.Logger) *SQLStore {
	if log == nil {
		log = slog.Default()
	}
	return &SQLStore{db: db, dialect: dialect, txTimeout: txTimeout, maxRetries: 3, log: log}
}

// DB exposes the underlying handle for migrations and health checks.
func (s *SQLStore) DB() *sql.DB { return s.db }

// InTx runs fn inside a transaction and retries the whole unit when the
// backend aborts it because of a deadlock or serialization failure.
// Validation inside fn is re-evaluated on every attempt.
func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	base := 50 * time.Millisecond
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !s.isRetryable(err) {
			return err
		}
		if attempt == s.maxRetries {
			s.log.Error("transaction failed after max retries", "attempts", attempt+1, "error", err.Error())
			return errs.Mark(errs.Wrap(err, "transaction"), errMaxRetriesExceeded)
		}

		wait := backoff(attempt, base)
		s.log.Warn("retrying transaction due to lock conflict",
			"attempt", attempt+1,
			"wait_ms", wait.Milliseconds(),
			"error", err.Error())

		select {
		case <-ctx.Done():
			return errs.Internal(ctx.Err(), "transaction")
		case <-time.After(wait):
		}
	}
	return errMaxRetriesExceeded
}

func (s *SQLStore) runOnce(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Internal(errs.Mark(err, errTransactionBegin), "begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Warn("rollback failed", "error", rbErr.Error())
			}
		}
	}()

	if err := fn(ctx, &sqlTxn{tx: sqlTx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return errs.Internal(errs.Mark(err, errTransactionCommit), "commit transaction")
	}
	committed = true
	return nil
}

func (s *SQLStore) isRetryable(err error) bool {
	var myErr *mysql.MySQLError
	if errs.As(err, &myErr) {
		return myErr.Number == mysqlErrDeadlock || myErr.Number == mysqlErrLockWaitTimeout
	}
	var pqErr *pq.Error
	if errs.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgErrSerializationFailure, pgErrDeadlockDetected:
			return true
		}
	}
	return false
}

func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errs.As(err, &myErr) {
		return myErr.Number == mysqlErrDuplicateEntry
	}
	var pqErr *pq.Error
	if errs.As(err, &pqErr) {
		return string(pqErr.Code) == pgErrUniqueViolation
	}
	return false
}

func backoff(attempt int, base time.Duration) time.Duration {
	wait := time.Duration(1<<attempt) * base
	return wait + time.Duration(randInt63n(int64(wait/5)))
}

func randInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(buf[:])&0x7FFFFFFFFFFFFFFF) % n
}

// sqlTxn implements Tx on a *sql.Tx.
type sqlTxn struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTxn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
}

func (t *sqlTxn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.rebind(query), args...)
}

func (t *sqlTxn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.rebind(query), args...)
}

// rebind rewrites "?" placeholders as "$1", "$2", ... for PostgreSQL.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns "(?, ?, ...)" with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return "()"
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func rowsAffectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
