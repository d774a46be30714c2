package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects the SQL flavour of the underlying database.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// Repository runs reads and transactional units of work against the store.
type Repository interface {
	// Queries returns an accessor bound to no transaction.
	Queries() Queries
	// WithTx runs fn in one database transaction. The transaction commits
	// only when fn returns nil.
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

// Store implements Repository over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ Repository = (*Store)(nil)

func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Open connects to postgres (lib/pq) or sqlite (modernc.org/sqlite) and
// pings the database.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		db      *sql.DB
		err     error
		dialect Dialect
	)

	switch driver {
	case "postgres":
		dialect = Postgres
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	case "sqlite":
		dialect = SQLite
		db, err = sql.Open("sqlite", SQLiteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		// A single connection serialises writers; every transaction
		// starts with BEGIN IMMEDIATE.
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewStore(db, dialect), nil
}

// SQLiteDSN turns a file path into a DSN with the pragmas the store relies
// on. A value that already carries a query string is returned unchanged.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
}

func (s *Store) DB() *sql.DB { return s.db }
func (s *Store) Dialect() Dialect { return s.dialect }
func (s *Store) Close() error { return s.db.Close() }
func (s *Store) Queries() Queries { return &queries{ex: s.db, dialect: s.dialect} }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(q Queries) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback()

	if err := fn(&queries{ex: dbTx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// IsConstraintViolation reports whether err is a uniqueness, foreign key or
// check failure raised by either database.
func IsConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
