// Package sqldb implements the ledger storage on top of a SQL database. The
// sqlite, mysql and postgres dialects are supported.
package sqldb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
	db "github.com/chaos0211/block-dt/foundation/database"
)

//go:embed migrations
var migrationsFS embed.FS

// Store manages the set of APIs for ledger access against a SQL database.
type Store struct {
	db      *sql.DB
	dialect string
}

// Open connects to the database described by the configuration and brings
// its schema up to date.
func Open(cfg db.Config) (*Store, error) {
	sqlDB, err := db.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	s := New(sqlDB, cfg.Dialect)

	if err := s.Migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return s, nil
}

// New constructs a store for an open database connection.
func New(sqlDB *sql.DB, dialect string) *Store {
	return &Store{
		db:      sqlDB,
		dialect: dialect,
	}
}

// Migrate applies the schema migrations for the store's dialect.
func (s *Store) Migrate() error {
	return db.Migrate(s.db, s.dialect, migrationsFS, "migrations/"+s.dialect)
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithinTran runs fn inside a database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (s *Store) WithinTran(ctx context.Context, fn func(storage.Session) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tran: %w", err)
	}

	// Rollback after a commit is a no-op returning sql.ErrTxDone.
	defer tx.Rollback()

	if err := fn(&session{tx: tx, dialect: s.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tran: %w", err)
	}

	return nil
}

// View runs fn inside a database transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(storage.Session) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin view: %w", err)
	}
	defer tx.Rollback()

	return fn(&session{tx: tx, dialect: s.dialect})
}

// StatusCheck returns nil if it can successfully talk to the database.
func (s *Store) StatusCheck(ctx context.Context) error {
	return db.StatusCheck(ctx, s.db)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
