package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// errClosed is returned by every operation on a closed Database
var errClosed = errors.New("database connection is closed")

// Database is a connection to a file listing database
type Database struct {
	db   *sql.DB
	path string
}

// DatabaseOptions configures how the listing database is opened
type DatabaseOptions struct {
	// Path to the SQLite database file
	Path string

	// ReadOnly opens an existing database without write access
	ReadOnly bool

	// WALMode enables write-ahead logging
	WALMode bool

	// ForeignKeys enables foreign key constraint checking
	ForeignKeys bool

	// BusyTimeout sets the timeout for locked database operations
	BusyTimeout time.Duration
}

// DefaultDatabaseOptions returns the options used for exports
func DefaultDatabaseOptions(path string) *DatabaseOptions {
	return &DatabaseOptions{
		Path:        path,
		WALMode:     true,
		ForeignKeys: true,
		BusyTimeout: 30 * time.Second,
	}
}

// NewDatabase opens the database described by options. A writable database
// is created along with its directory when missing; a read-only one must exist.
func NewDatabase(options *DatabaseOptions) (*Database, error) {
	if options == nil {
		return nil, fmt.Errorf("database options cannot be nil")
	}
	if options.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if options.ReadOnly {
		if _, err := os.Stat(options.Path); err != nil {
			return nil, &fs.PathError{Op: "open", Path: options.Path, Err: fs.ErrNotExist}
		}
	} else if err := ensureDirectory(options.Path); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", connectionString(options))
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", options.Path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("testing database connection: %w", err)
	}

	return &Database{db: db, path: options.Path}, nil
}

// Path returns the database file path
func (d *Database) Path() string {
	return d.path
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}

	err := d.db.Close()
	d.db = nil
	if err != nil {
		return fmt.Errorf("closing database connection: %w", err)
	}
	return nil
}

// BeginTx starts a new transaction with the given options
func (d *Database) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if d.db == nil {
		return nil, errClosed
	}

	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}

// Exec executes a statement that returns no rows
func (d *Database) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if d.db == nil {
		return nil, errClosed
	}

	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return result, nil
}

// Query executes a query that returns rows
func (d *Database) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if d.db == nil {
		return nil, errClosed
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// QueryRow executes a query expected to return at most one row
func (d *Database) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

// HasUserTables reports whether the database holds any table besides SQLite's
// own and the '_' prefixed metadata tables
func (d *Database) HasUserTables(ctx context.Context) (bool, error) {
	if d.db == nil {
		return false, errClosed
	}

	var count int
	row := d.QueryRow(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite%' AND substr(name, 1, 1) <> '_'`)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("checking for user tables: %w", err)
	}
	return count > 0, nil
}

// connectionString builds a go-sqlite3 DSN. Settings go through the driver's
// underscore parameters so they apply to every pooled connection.
func connectionString(options *DatabaseOptions) string {
	params := url.Values{}

	if options.ReadOnly {
		params.Set("mode", "ro")
	} else {
		if options.WALMode {
			params.Set("_journal_mode", "WAL")
		}
		params.Set("_synchronous", "NORMAL")
	}

	if options.ForeignKeys {
		params.Set("_foreign_keys", "1")
	}
	if options.BusyTimeout > 0 {
		params.Set("_busy_timeout", strconv.FormatInt(options.BusyTimeout.Milliseconds(), 10))
	}
	params.Set("_cache_size", "10000")

	return "file:" + options.Path + "?" + params.Encode()
}

func ensureDirectory(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
