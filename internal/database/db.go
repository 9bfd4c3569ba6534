package database

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/iliyamo/seat-booking/internal/config"
	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/repository"
)

// Open connects to the configured SQL backend and verifies the connection.
// Row lock waits are bounded by cfg.LockTimeout on both backends so a
// contended confirm fails fast instead of hanging the caller.
func Open(cfg config.DBConfig) (*sql.DB, repository.Dialect, error) {
	var (
		driver  string
		dsn     string
		dialect repository.Dialect
	)
	switch cfg.Driver {
	case "mysql":
		driver, dsn, dialect = "mysql", MySQLDSN(cfg), repository.MySQL
	case "postgres":
		driver, dsn, dialect = "postgres", PostgresDSN(cfg), repository.Postgres
	default:
		return nil, "", errs.Newf("unsupported sql driver %q", cfg.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", errs.Wrap(err, "open database")
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", errs.Wrap(err, "ping database")
	}
	return db, dialect, nil
}

// MySQLDSN builds the go-sql-driver DSN.  parseTime maps DATETIME onto
// time.Time and loc=UTC keeps stored instants comparable across hosts.
func MySQLDSN(cfg config.DBConfig) string {
	port := cfg.Port
	if port == "" {
		port = "3306"
	}
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{
		"innodb_lock_wait_timeout": strconv.Itoa(lockSeconds(cfg.LockTimeout)),
	}
	return mc.FormatDSN()
}

// PostgresDSN builds a lib/pq URL.  lock_timeout is passed through as a
// run-time parameter.
func PostgresDSN(cfg config.DBConfig) string {
	port := cfg.Port
	if port == "" {
		port = "5432"
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	if cfg.LockTimeout > 0 {
		q.Set("lock_timeout", strconv.FormatInt(cfg.LockTimeout.Milliseconds(), 10))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, port),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// innodb_lock_wait_timeout has one-second granularity.
func lockSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
