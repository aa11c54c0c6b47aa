// Package sqlitedb opens the single-file SQLite databases used by the stores
// and applies their versioned schema migrations.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go, FTS5 always built in
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3, cgo; FTS5 needs the sqlite_fts5 tag
)

// Options control how a database file is opened.
type Options struct {
	Driver      string
	BusyTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Driver == "" {
		o.Driver = DriverModernc
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
	return o
}

// Open opens (or creates) the database at path with WAL journaling.
// Parent directories are created if needed. The pool is pinned to a single
// connection; callers serialize access on top of that.
func Open(path string, opts Options) (*sql.DB, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlitedb: create directory: %w", err)
	}

	dsn, err := buildDSN(path, opts)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: open %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlitedb: ping %s: %w", path, err)
	}
	return conn, nil
}

func buildDSN(path string, opts Options) (string, error) {
	ms := opts.BusyTimeout.Milliseconds()
	switch opts.Driver {
	case DriverModernc:
		return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path, ms), nil
	case DriverMattn:
		return fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", path, ms), nil
	default:
		return "", fmt.Errorf("sqlitedb: unsupported driver %q", opts.Driver)
	}
}

// HasFTS5 reports whether the linked SQLite library was compiled with FTS5.
func HasFTS5(ctx context.Context, db *sql.DB) bool {
	var used int
	if err := db.QueryRowContext(ctx, `SELECT sqlite_compileoption_used('ENABLE_FTS5')`).Scan(&used); err != nil {
		return false
	}
	return used == 1
}
