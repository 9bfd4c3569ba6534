package database

import (
	"context"
	"database/sql"

	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/repository"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS seats (
		id          VARCHAR(36)  NOT NULL,
		show_id     VARCHAR(64)  NOT NULL,
		row_label   VARCHAR(8)   NOT NULL,
		seat_number INT          NOT NULL,
		section     VARCHAR(64)  NOT NULL,
		price       BIGINT       NOT NULL,
		status      VARCHAR(16)  NOT NULL DEFAULT 'available',
		holder      VARCHAR(64)  NULL,
		reserved_at DATETIME(6)  NULL,
		expires_at  DATETIME(6)  NULL,
		booked_at   DATETIME(6)  NULL,
		version     BIGINT       NOT NULL DEFAULT 0,
		created_at  DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at  DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		PRIMARY KEY (id),
		UNIQUE KEY uq_seats_position (show_id, row_label, seat_number),
		KEY idx_seats_hold_expiry (status, expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id         VARCHAR(36) NOT NULL,
		user_id    VARCHAR(64) NOT NULL,
		show_id    VARCHAR(64) NOT NULL,
		seat_id    VARCHAR(36) NOT NULL,
		amount     BIGINT      NOT NULL,
		status     VARCHAR(16) NOT NULL DEFAULT 'confirmed',
		created_at DATETIME(6) NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_bookings_seat (seat_id),
		KEY idx_bookings_user (user_id, created_at),
		CONSTRAINT fk_bookings_seat FOREIGN KEY (seat_id) REFERENCES seats (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seat_events (
		id           BIGINT      NOT NULL AUTO_INCREMENT,
		show_id      VARCHAR(64) NOT NULL,
		kind         VARCHAR(32) NOT NULL,
		payload      TEXT        NOT NULL,
		created_at   DATETIME(6) NOT NULL,
		published_at DATETIME(6) NULL,
		PRIMARY KEY (id),
		KEY idx_seat_events_pending (published_at, id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS seats (
		id          VARCHAR(36)  PRIMARY KEY,
		show_id     VARCHAR(64)  NOT NULL,
		row_label   VARCHAR(8)   NOT NULL,
		seat_number INT          NOT NULL,
		section     VARCHAR(64)  NOT NULL,
		price       BIGINT       NOT NULL,
		status      VARCHAR(16)  NOT NULL DEFAULT 'available',
		holder      VARCHAR(64)  NULL,
		reserved_at TIMESTAMPTZ  NULL,
		expires_at  TIMESTAMPTZ  NULL,
		booked_at   TIMESTAMPTZ  NULL,
		version     BIGINT       NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
		CONSTRAINT uq_seats_position UNIQUE (show_id, row_label, seat_number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_seats_hold_expiry ON seats (status, expires_at)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id         VARCHAR(36) PRIMARY KEY,
		user_id    VARCHAR(64) NOT NULL,
		show_id    VARCHAR(64) NOT NULL,
		seat_id    VARCHAR(36) NOT NULL REFERENCES seats (id),
		amount     BIGINT      NOT NULL,
		status     VARCHAR(16) NOT NULL DEFAULT 'confirmed',
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT uq_bookings_seat UNIQUE (seat_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS seat_events (
		id           BIGSERIAL   PRIMARY KEY,
		show_id      VARCHAR(64) NOT NULL,
		kind         VARCHAR(32) NOT NULL,
		payload      TEXT        NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		published_at TIMESTAMPTZ NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_seat_events_pending ON seat_events (id) WHERE published_at IS NULL`,
}

// Migrate creates the seats, bookings and seat_events tables when they do
// not exist.  Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB, dialect repository.Dialect) error {
	stmts := mysqlSchema
	if dialect == repository.Postgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errs.Wrap(err, "migrate schema")
		}
	}
	return nil
}
