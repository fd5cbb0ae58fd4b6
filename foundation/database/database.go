// Package database provides support for access to the SQL databases the
// ledger can run against.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// The set of supported dialects.
const (
	DialectSQLite   = "sqlite"
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
)

// Config is the required properties to use the database.
type Config struct {
	Dialect      string
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
}

// Open knows how to open a database connection based on the configuration.
func Open(cfg Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("db dsn is required")
	}

	var driver string
	dsn := cfg.DSN

	switch cfg.Dialect {
	case DialectSQLite:
		driver = "sqlite"
		dsn = sqliteDSN(dsn)

		// sqlite allows one writer at a time. A single connection turns
		// concurrent units of work into a queue instead of busy errors.
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1

	case DialectMySQL:
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parsing mysql dsn: %w", err)
		}
		mc.MultiStatements = true
		mc.ClientFoundRows = true
		driver = "mysql"
		dsn = mc.FormatDSN()

	case DialectPostgres:
		driver = "pgx"

	default:
		return nil, fmt.Errorf("unknown dialect %q", cfg.Dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return db, nil
}

// StatusCheck returns nil if it can successfully talk to the database. It
// returns a non-nil error otherwise.
func StatusCheck(ctx context.Context, db *sql.DB) error {

	// First check we can ping the database.
	var pingError error
	for attempts := 1; ; attempts++ {
		pingError = db.PingContext(ctx)
		if pingError == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	// Make sure we didn't timeout or be cancelled.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Run a simple query to determine connectivity. Running this query forces
	// a round trip through the database.
	const q = `SELECT 1`
	var tmp int
	return db.QueryRowContext(ctx, q).Scan(&tmp)
}

// Migrate applies the migrations found in dir of the filesystem. Running it
// against an up to date database does nothing.
func Migrate(db *sql.DB, dialect string, fsys fs.FS, dir string) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	var m *migrate.Migrate

	switch dialect {
	case DialectSQLite:
		driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
		if err != nil {
			return fmt.Errorf("failed to create migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", driver)
		if err != nil {
			return fmt.Errorf("failed to create migration instance: %w", err)
		}

	case DialectMySQL:
		driver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
		if err != nil {
			return fmt.Errorf("failed to create migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "mysql", driver)
		if err != nil {
			return fmt.Errorf("failed to create migration instance: %w", err)
		}

	case DialectPostgres:
		driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
		if err != nil {
			return fmt.Errorf("failed to create migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "postgres", driver)
		if err != nil {
			return fmt.Errorf("failed to create migration instance: %w", err)
		}

	default:
		return fmt.Errorf("unknown dialect %q", dialect)
	}

	// The migrate value is not closed since closing it closes db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Rebind rewrites the ? placeholders of a query into the form the dialect
// expects.
func Rebind(dialect string, query string) string {
	if dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 10)

	n := 1
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
		n++
	}

	return b.String()
}

// IsUniqueViolation reports if the error was raised by a uniqueness
// constraint of any of the supported databases.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// =============================================================================

// sqliteDSN adds the pragmas the ledger depends on unless the dsn already
// carries its own.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}

	pragmas := url.Values{}
	pragmas.Add("_pragma", "busy_timeout(5000)")
	pragmas.Add("_pragma", "journal_mode(WAL)")
	pragmas.Add("_pragma", "foreign_keys(1)")

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + pragmas.Encode()
}
