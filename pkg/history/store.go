// Package history keeps past audit reports in a local sqlite database so runs of
// the same policy can be listed and compared.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/user/gosec-audit/pkg/log"

	// sqlite driver
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when no run matches the lookup.
	ErrNotFound = errors.New("audit run not found")
	// ErrAmbiguous is returned when a run id prefix matches more than one run.
	ErrAmbiguous = errors.New("run id prefix is ambiguous")
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is the run history database.
type Store struct {
	db   *sqlx.DB
	path string
}

type options struct {
	dbFile         string
	migrationsFS   fs.FS
	migrationsPath string
}

// Option configures Open.
type Option func(o *options)

// WithDatabaseFile overrides the database location.
func WithDatabaseFile(path string) Option {
	return func(o *options) {
		o.dbFile = path
	}
}

// WithMigrations replaces the embedded schema migrations.
func WithMigrations(filesystem fs.FS, path string) Option {
	return func(o *options) {
		o.migrationsFS = filesystem
		o.migrationsPath = path
	}
}

// DefaultPath returns ~/.gosec-audit/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gosec-audit", "history.db"), nil
}

// Open opens (creating if needed) the history database and brings its schema up
// to date.
func Open(opts ...Option) (*Store, error) {
	o := options{migrationsFS: migrations, migrationsPath: "migrations"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dbFile == "" {
		path, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve history database path: %w", err)
		}
		o.dbFile = path
	}
	if err := os.MkdirAll(filepath.Dir(o.dbFile), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+o.dbFile+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(o.dbFile, db, o.migrationsFS, o.migrationsPath); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: sqlx.NewDb(db, "sqlite"), path: o.dbFile}, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}

func runMigrations(dbFile string, db *sql.DB, migrationsFS fs.FS, migrationsPath string) error {
	src, err := iofs.New(migrationsFS, migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	defer src.Close()

	driver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return err
	}
	mig, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}

	// Parallel `run` invocations (CI matrix jobs on one host) share the database.
	lock := flock.New(filepath.Join(filepath.Dir(dbFile), ".history-migration.lock"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("timeout waiting for migration lock")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("failed to release migration lock", "error", err)
		}
	}()

	version, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("history database is in dirty state at version %d, manual intervention required", version)
	}

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
