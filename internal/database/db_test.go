package database

import (
	"context"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-booking/internal/config"
	"github.com/iliyamo/seat-booking/internal/repository"
)

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN(config.DBConfig{
		Host: "db", User: "app", Password: "pw", Name: "seats", LockTimeout: 1500 * time.Millisecond,
	})

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db:3306", parsed.Addr)
	assert.Equal(t, "app", parsed.User)
	assert.Equal(t, "seats", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, time.UTC, parsed.Loc)
	assert.Equal(t, "2", parsed.Params["innodb_lock_wait_timeout"])
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DBConfig{
		Host: "pg", Port: "6543", User: "app", Password: "p@ss", Name: "seats", LockTimeout: 5 * time.Second,
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "pg:6543", u.Host)
	assert.Equal(t, "/seats", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "5000", u.Query().Get("lock_timeout"))
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, _, err := Open(config.DBConfig{Driver: "memory"})
	assert.Error(t, err)
}

func TestMigrate_RunsEveryStatement(t *testing.T) {
	for _, tc := range []struct {
		dialect repository.Dialect
		stmts   []string
	}{
		{repository.MySQL, mysqlSchema},
		{repository.Postgres, postgresSchema},
	} {
		t.Run(string(tc.dialect), func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			for _, stmt := range tc.stmts {
				mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
			}

			require.NoError(t, Migrate(context.Background(), db, tc.dialect))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
