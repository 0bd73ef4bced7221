package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite" // SQLite driver
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// sqlx only knows the cgo driver name; modernc registers as "sqlite".
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// New opens a connection pool for the given driver and checks it is reachable.
func New(driver, dataSourceName string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite:
		dataSourceName = withForeignKeys(dataSourceName)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dataSourceName)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// One writer at a time; also keeps in-memory databases on a single connection.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("driver", driver).Msg("Database connected")
	return db, nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// Migrate runs the SQL statements to set up the database schema.
func Migrate(db *sqlx.DB) error {
	var stmt string
	switch db.DriverName() {
	case DriverPostgres:
		stmt = postgresSchema
	default:
		stmt = sqliteSchema
	}
	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS listings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		owner_email TEXT NOT NULL,
		address TEXT NOT NULL,
		parking_number TEXT,
		vehicle_size TEXT NOT NULL,
		indoor_outdoor TEXT NOT NULL,
		availability_from TEXT NOT NULL,
		availability_to TEXT NOT NULL,
		days TEXT NOT NULL, -- comma separated weekday names
		price_cents INTEGER NOT NULL CHECK (price_cents >= 0)
	);
	CREATE INDEX IF NOT EXISTS listings_owner_idx ON listings(owner_id);

	CREATE TABLE IF NOT EXISTS bookings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		listing_id INTEGER NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
		renter_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		renter_email TEXT NOT NULL,
		owner_id INTEGER NOT NULL,
		owner_email TEXT NOT NULL,
		booking_date TEXT NOT NULL, -- YYYY-MM-DD
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		total_price_cents INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'confirmed',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS bookings_listing_date_key ON bookings(listing_id, booking_date);
	CREATE INDEX IF NOT EXISTS bookings_renter_idx ON bookings(renter_id);
	CREATE INDEX IF NOT EXISTS bookings_owner_idx ON bookings(owner_id);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT NOT NULL PRIMARY KEY,
		type TEXT NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		user_id INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(50) NOT NULL UNIQUE,
		email VARCHAR(100) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS listings (
		id BIGSERIAL PRIMARY KEY,
		owner_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		owner_email VARCHAR(255) NOT NULL,
		address VARCHAR(255) NOT NULL,
		parking_number VARCHAR(50),
		vehicle_size VARCHAR(20) NOT NULL,
		indoor_outdoor VARCHAR(20) NOT NULL,
		availability_from VARCHAR(20) NOT NULL,
		availability_to VARCHAR(20) NOT NULL,
		days VARCHAR(100) NOT NULL,
		price_cents BIGINT NOT NULL CHECK (price_cents >= 0)
	);
	CREATE INDEX IF NOT EXISTS listings_owner_idx ON listings(owner_id);

	CREATE TABLE IF NOT EXISTS bookings (
		id BIGSERIAL PRIMARY KEY,
		listing_id BIGINT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
		renter_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		renter_email VARCHAR(255) NOT NULL,
		owner_id BIGINT NOT NULL,
		owner_email VARCHAR(255) NOT NULL,
		booking_date VARCHAR(10) NOT NULL,
		start_time VARCHAR(20) NOT NULL,
		end_time VARCHAR(20) NOT NULL,
		total_price_cents BIGINT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'confirmed',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS bookings_listing_date_key ON bookings(listing_id, booking_date);
	CREATE INDEX IF NOT EXISTS bookings_renter_idx ON bookings(renter_id);
	CREATE INDEX IF NOT EXISTS bookings_owner_idx ON bookings(owner_id);

	CREATE TABLE IF NOT EXISTS events (
		id UUID PRIMARY KEY,
		type VARCHAR(64) NOT NULL,
		level VARCHAR(16) NOT NULL,
		message TEXT NOT NULL,
		user_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

// IsUniqueViolation reports whether err is a unique-constraint failure from either driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// WithTx runs fn inside a transaction, committing on success and rolling back on error.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}
	return tx.Commit()
}
