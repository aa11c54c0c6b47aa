package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

const versionTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TEXT NOT NULL
);`

// Migration is one ordered schema step.
type Migration struct {
	Version int
	Name    string
	// Up applies the step inside the migration transaction. Steps must be
	// safe to run against a database that already has the change (files
	// written before versions were recorded).
	Up func(ctx context.Context, tx *sql.Tx) error
}

// Exec returns an Up func that runs a fixed SQL script.
func Exec(script string) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, script)
		return err
	}
}

// AddColumn returns an Up func that adds a column unless it already exists.
func AddColumn(table, column, decl string) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		exists, err := ColumnExists(ctx, tx, table, column)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl))
		return err
	}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ColumnExists reports whether table has a column with the given name.
func ColumnExists(ctx context.Context, q queryer, table, column string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT count(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlitedb: table info %s: %w", table, err)
	}
	return n > 0, nil
}

// Version returns the highest applied migration version, 0 for a fresh file.
func Version(ctx context.Context, db *sql.DB) (int, error) {
	if _, err := db.ExecContext(ctx, versionTableSQL); err != nil {
		return 0, fmt.Errorf("sqlitedb: create version table: %w", err)
	}
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("sqlitedb: read version: %w", err)
	}
	return int(v.Int64), nil
}

// Migrate applies every migration newer than the recorded version, in
// ascending order, each in its own transaction together with its version row.
func Migrate(ctx context.Context, db *sql.DB, migrations []Migration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	current, err := Version(ctx, db)
	if err != nil {
		return err
	}

	pending := make([]Migration, 0, len(migrations))
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, m := range pending {
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("sqlitedb: migration %d (%s): %w", m.Version, m.Name, err)
		}
		logger.Info("applied migration", slog.Int("version", m.Version), slog.String("name", m.Name))
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := m.Up(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Name, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return tx.Commit()
}
