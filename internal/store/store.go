// Package store is the SQLite data access layer for users, posts and
// comments.
package store

import (
	"context"
	"database/sql"
	"embed"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	eventbus "github.com/hanpama/blogql/internal/eventbus"
	events "github.com/hanpama/blogql/internal/events"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write violates a unique constraint.
	ErrConflict = errors.New("store: conflict")
	// ErrInvalidReference is returned when a write points at a missing parent row.
	ErrInvalidReference = errors.New("store: invalid reference")
)

// Config holds database settings.
type Config struct {
	Path           string `mapstructure:"path"`
	MaxOpenConns   int    `mapstructure:"max_open_conns"`
	SkipMigrations bool   `mapstructure:"skip_migrations"`
}

// Store wraps a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database at cfg.Path (":memory:" for a private in-memory
// database) and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	memory := cfg.Path == "" || cfg.Path == ":memory:"
	dsn := ":memory:"
	if !memory {
		dsn = "file:" + cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if memory {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping sqlite")
	}
	if memory {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "enable foreign keys")
		}
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if !cfg.SkipMigrations {
		if err := s.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate applies every pending embedded migration.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "load migrations")
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return errors.Wrap(err, "migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return errors.Wrap(err, "create migrator")
	}
	// m.Close would close s.db through the driver; only the source is released.
	defer src.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// Page bounds a list query. Take 0 means no limit.
type Page struct {
	Skip uint64
	Take uint64
}

func (p Page) apply(b sq.SelectBuilder) sq.SelectBuilder {
	if p.Take > 0 {
		b = b.Limit(p.Take)
	}
	if p.Skip > 0 {
		if p.Take == 0 {
			// SQLite only accepts OFFSET after LIMIT
			b = b.Limit(1<<63 - 1)
		}
		b = b.Offset(p.Skip)
	}
	return b
}

type scanner interface {
	Scan(dest ...any) error
}

func selectAll[T any](ctx context.Context, s *Store, b sq.SelectBuilder, scan func(scanner) (T, error)) ([]T, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.publish(ctx, query, args, 0, start, err)
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			s.publish(ctx, query, args, int64(len(out)), start, err)
			return nil, errors.Wrap(err, "scan row")
		}
		out = append(out, v)
	}
	err = rows.Err()
	s.publish(ctx, query, args, int64(len(out)), start, err)
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func selectOne[T any](ctx context.Context, s *Store, b sq.SelectBuilder, scan func(scanner) (T, error)) (T, error) {
	items, err := selectAll(ctx, s, b.Limit(1), scan)
	if err != nil {
		var zero T
		return zero, err
	}
	if len(items) == 0 {
		var zero T
		return zero, ErrNotFound
	}
	return items[0], nil
}

func (s *Store) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build statement")
	}
	start := time.Now()
	res, err := s.db.ExecContext(ctx, query, args...)
	var affected int64
	if err == nil {
		affected, _ = res.RowsAffected()
	}
	s.publish(ctx, query, args, affected, start, err)
	if err != nil {
		return nil, mapError(err)
	}
	return res, nil
}

// execOne runs a statement that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	res, err := s.exec(ctx, b)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return res, nil
}

func (s *Store) publish(ctx context.Context, query string, args []any, rows int64, start time.Time, err error) {
	eventbus.Publish(ctx, events.Query{
		SQL:      query,
		Args:     args,
		Rows:     rows,
		Duration: time.Since(start),
		Err:      err,
	})
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return errors.Wrap(ErrConflict, constraintDetail(se.Error()))
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return errors.Wrap(ErrInvalidReference, constraintDetail(se.Error()))
		}
	}
	return errors.WithStack(err)
}

// constraintDetail extracts "users.email" from "UNIQUE constraint failed: users.email (2067)".
func constraintDetail(msg string) string {
	if i := strings.Index(msg, "failed: "); i >= 0 {
		msg = msg[i+len("failed: "):]
	}
	if i := strings.Index(msg, " ("); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
