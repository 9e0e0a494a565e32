package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/example/aal-logistics/api-go/internal/model"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Options tune how the store opens transactions.
type Options struct {
	// Serializable runs every unit of work at serializable isolation. Only
	// honoured by postgres; sqlite already serialises writers.
	Serializable bool
}

// Store implements persistence for clients, jobs and invoices on top of a
// relational database. Every method joins the transaction carried by ctx
// when called inside InTx.
type Store struct {
	db   *sqlx.DB
	opts Options
}

// Open connects to the database, applies the schema and returns a Store.
func Open(ctx context.Context, driver, dsn string, opts Options) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// one long-lived connection: in-memory databases are per connection and sqlite has a single writer anyway
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := ApplySchema(db.DB, driver); err != nil {
		db.Close()
		return nil, err
	}
	return New(db, opts), nil
}

// sqliteDSN adds the foreign_keys pragma to the DSN so that every
// connection the pool opens enforces it, not only the first one.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// New wraps an existing handle without touching the schema.
func New(db *sqlx.DB, opts Options) *Store {
	return &Store{db: db, opts: opts}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DriverName() string { return s.db.DriverName() }

type txKey struct{}

// InTx runs fn as one unit of work. The transaction travels in the context
// passed to fn; nested calls reuse it. fn's error rolls everything back.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	var txOpts *sql.TxOptions
	if s.opts.Serializable && s.db.DriverName() == DriverPostgres {
		txOpts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	tx, err := s.db.BeginTxx(ctx, txOpts)
	if err != nil {
		return translate(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

func (s *Store) inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return ok
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.ext(ctx).ExecContext(ctx, s.db.Rebind(query), args...)
	return res, translate(err)
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	return translate(sqlx.GetContext(ctx, s.ext(ctx), dest, s.db.Rebind(query), args...))
}

func (s *Store) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return translate(sqlx.SelectContext(ctx, s.ext(ctx), dest, s.db.Rebind(query), args...))
}

// translate maps driver errors onto the model error taxonomy while keeping
// the driver error in the chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrUniquenessConflict),
		errors.Is(err, model.ErrSerializationFailure),
		errors.Is(err, model.ErrPersistence):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return model.ErrNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %w", model.ErrUniquenessConflict, err)
	case isSerializationFailure(err):
		return fmt.Errorf("%w: %w", model.ErrSerializationFailure, err)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: referenced record does not exist: %w", model.ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE")
		}
	}
	return false
}

// isSerializationFailure matches postgres serialization_failure and
// deadlock_detected, which serializable allocation raises for the losing
// transaction instead of a unique violation.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "FOREIGN KEY")
		}
	}
	return false
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
