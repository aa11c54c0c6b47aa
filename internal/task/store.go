// Package task stores structured todos extracted from transcripts.
package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/ambient/internal/apperr"
	"github.com/starford/ambient/internal/lane"
	"github.com/starford/ambient/internal/models"
	"github.com/starford/ambient/internal/sqlitedb"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// Change kinds reported to the OnChange callback.
const (
	ChangeCreated  = "created"
	ChangeUpdated  = "updated"
	ChangeExecuted = "executed"
	ChangeDeleted  = "deleted"
)

const todoColumns = `id, content, priority, project_id, created_at, is_executed, execution_output, execution_date`

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithDriver selects the database/sql driver.
func WithDriver(driver string) Option {
	return func(s *Store) { s.dbOpts.Driver = driver }
}

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) { s.dbOpts.BusyTimeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithOnChange registers a callback run after each committed mutation.
func WithOnChange(fn func(kind, id string)) Option {
	return func(s *Store) { s.onChange = fn }
}

// Store is the todo database. See transcript.Store for the inert-store contract.
type Store struct {
	path     string
	dbOpts   sqlitedb.Options
	logger   *slog.Logger
	now      func() time.Time
	onChange func(kind, id string)

	db        *sql.DB
	lane      *lane.Lane
	closeOnce sync.Once
}

// New opens the task database at path and brings its schema up to date.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: slog.Default().With("component", "task"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	db, err := sqlitedb.Open(path, s.dbOpts)
	if err == nil {
		if err = sqlitedb.Migrate(context.Background(), db, migrations, s.logger); err != nil {
			db.Close()
		}
	}
	if err != nil {
		s.logger.Error("task store unavailable",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return s
	}

	s.db = db
	s.lane = lane.New("task", 0, s.logger)
	s.logger.Info("task store opened", slog.String("path", path))
	return s
}

// Available reports whether the database was opened successfully.
func (s *Store) Available() bool { return s.db != nil }

// Close drains pending work and closes the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.db == nil {
			return
		}
		s.lane.Close()
		err = s.db.Close()
	})
	return err
}

// Insert creates an unexecuted todo with no project.
//
// The returned record is always well-formed. Known priority labels are
// normalized to upper case; any other label is stored as given. When the
// write fails the error is logged and returned alongside the record, which
// is then not persisted.
func (s *Store) Insert(ctx context.Context, content string, priority models.Priority) (models.Todo, error) {
	todo := models.Todo{
		ID:        uuid.NewString(),
		Content:   content,
		Priority:  normalizePriority(priority),
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}

	if strings.TrimSpace(content) == "" {
		s.logger.Warn("inserting todo with blank content", slog.String("id", todo.ID))
	}
	if !s.Available() {
		s.logger.Warn("insert todo dropped, store unavailable", slog.String("id", todo.ID))
		return todo, apperr.ErrUnavailable
	}

	jobCtx := context.WithoutCancel(ctx)
	err := s.lane.Do(ctx, func() error {
		_, err := s.db.ExecContext(jobCtx,
			`INSERT INTO structured_todos (id, content, priority, created_at, is_executed) VALUES (?, ?, ?, ?, 0)`,
			todo.ID, todo.Content, nullString(string(todo.Priority)), todo.CreatedAt.Format(timeLayout))
		return err
	})
	if err != nil {
		s.logger.Error("insert todo", slog.String("id", todo.ID), slog.String("error", err.Error()))
		return todo, fmt.Errorf("task: insert: %w", err)
	}
	s.notify(ChangeCreated, todo.ID)
	return todo, nil
}

// SetProject links a todo to a project. An empty projectID clears the link.
func (s *Store) SetProject(ctx context.Context, id, projectID string) error {
	return s.update(ctx, id, `UPDATE structured_todos SET project_id = ? WHERE id = ?`, nullString(projectID), id)
}

// UpdateContent replaces the todo text.
func (s *Store) UpdateContent(ctx context.Context, id, content string) error {
	if err := validation.Validate(content, validation.Required); err != nil {
		return fmt.Errorf("%w: content: %v", apperr.ErrInvalidInput, err)
	}
	return s.update(ctx, id, `UPDATE structured_todos SET content = ? WHERE id = ?`, content, id)
}

func (s *Store) update(ctx context.Context, id, stmt string, args ...any) error {
	if !s.Available() {
		return apperr.ErrUnavailable
	}
	jobCtx := context.WithoutCancel(ctx)
	err := s.lane.Do(ctx, func() error {
		res, err := s.db.ExecContext(jobCtx, stmt, args...)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
	if err != nil {
		s.logUpdateErr("update todo", id, err)
		return wrap("update", err)
	}
	s.notify(ChangeUpdated, id)
	return nil
}

// MarkExecuted records the output of running a todo. Repeated calls
// overwrite the current output and date; each call is kept in the history
// returned by Executions.
func (s *Store) MarkExecuted(ctx context.Context, id, output string) error {
	if !s.Available() {
		return apperr.ErrUnavailable
	}
	at := s.now().UTC().Format(timeLayout)

	jobCtx := context.WithoutCancel(ctx)
	err := s.lane.Do(ctx, func() error {
		tx, err := s.db.BeginTx(jobCtx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit

		res, err := tx.ExecContext(jobCtx, `
			UPDATE structured_todos
			SET is_executed = 1, execution_output = ?, execution_date = ?
			WHERE id = ?`, output, at, id)
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(jobCtx,
			`INSERT INTO todo_executions (todo_id, output, executed_at) VALUES (?, ?, ?)`,
			id, output, at); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		s.logUpdateErr("mark todo executed", id, err)
		return wrap("mark executed", err)
	}
	s.notify(ChangeExecuted, id)
	return nil
}

// Delete removes a todo and its execution history.
func (s *Store) Delete(ctx context.Context, id string) error {
	if !s.Available() {
		return apperr.ErrUnavailable
	}
	jobCtx := context.WithoutCancel(ctx)
	err := s.lane.Do(ctx, func() error {
		tx, err := s.db.BeginTx(jobCtx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		res, err := tx.ExecContext(jobCtx, `DELETE FROM structured_todos WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(jobCtx, `DELETE FROM todo_executions WHERE todo_id = ?`, id); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		s.logUpdateErr("delete todo", id, err)
		return wrap("delete", err)
	}
	s.notify(ChangeDeleted, id)
	return nil
}

// All returns every todo, newest first.
func (s *Store) All(ctx context.Context) ([]models.Todo, error) {
	return s.list(ctx, `SELECT `+todoColumns+` FROM structured_todos ORDER BY created_at DESC, rowid DESC`)
}

// Pending returns todos not yet executed, newest first.
func (s *Store) Pending(ctx context.Context) ([]models.Todo, error) {
	return s.list(ctx, `SELECT `+todoColumns+` FROM structured_todos
		WHERE is_executed = 0 ORDER BY created_at DESC, rowid DESC`)
}

// ByProject returns the todos linked to projectID, newest first.
func (s *Store) ByProject(ctx context.Context, projectID string) ([]models.Todo, error) {
	return s.list(ctx, `SELECT `+todoColumns+` FROM structured_todos
		WHERE project_id = ? ORDER BY created_at DESC, rowid DESC`, projectID)
}

// Get returns one todo or apperr.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (models.Todo, error) {
	todos, err := s.list(ctx, `SELECT `+todoColumns+` FROM structured_todos WHERE id = ?`, id)
	if err != nil {
		return models.Todo{}, err
	}
	if len(todos) == 0 {
		return models.Todo{}, fmt.Errorf("task %s: %w", id, apperr.ErrNotFound)
	}
	return todos[0], nil
}

// Executions returns the execution history of a todo, oldest first.
func (s *Store) Executions(ctx context.Context, id string) ([]models.TodoExecution, error) {
	if !s.Available() {
		return nil, apperr.ErrUnavailable
	}
	jobCtx := context.WithoutCancel(ctx)
	return lane.Query(ctx, s.lane, func() ([]models.TodoExecution, error) {
		rows, err := s.db.QueryContext(jobCtx, `
			SELECT todo_id, output, executed_at
			FROM todo_executions
			WHERE todo_id = ?
			ORDER BY id ASC`, id)
		if err != nil {
			return nil, fmt.Errorf("task: executions: %w", err)
		}
		defer rows.Close()

		out := []models.TodoExecution{}
		for rows.Next() {
			var (
				e  models.TodoExecution
				at string
			)
			if err := rows.Scan(&e.TodoID, &e.Output, &at); err != nil {
				return nil, fmt.Errorf("task: scan execution: %w", err)
			}
			if e.ExecutedAt, err = time.Parse(timeLayout, at); err != nil {
				return nil, fmt.Errorf("task: parse executed_at: %w", err)
			}
			out = append(out, e)
		}
		return out, rows.Err()
	})
}

func (s *Store) list(ctx context.Context, q string, args ...any) ([]models.Todo, error) {
	if !s.Available() {
		return nil, apperr.ErrUnavailable
	}
	jobCtx := context.WithoutCancel(ctx)
	return lane.Query(ctx, s.lane, func() ([]models.Todo, error) {
		rows, err := s.db.QueryContext(jobCtx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("task: query: %w", err)
		}
		defer rows.Close()

		out := []models.Todo{}
		for rows.Next() {
			t, err := scanTodo(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return out, rows.Err()
	})
}

// scanTodo reads one row. A row is reported executed only when the flag,
// output and date are all present, so callers always see a consistent record.
func scanTodo(rows *sql.Rows) (models.Todo, error) {
	var (
		t                     models.Todo
		priority, project     sql.NullString
		created               string
		executed              int
		output, executionDate sql.NullString
	)
	if err := rows.Scan(&t.ID, &t.Content, &priority, &project, &created, &executed, &output, &executionDate); err != nil {
		return t, fmt.Errorf("task: scan: %w", err)
	}
	t.Priority = models.Priority(priority.String)
	t.ProjectID = project.String

	var err error
	if t.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return t, fmt.Errorf("task: parse created_at %q: %w", created, err)
	}

	if executed != 0 && output.Valid && executionDate.Valid {
		at, err := time.Parse(timeLayout, executionDate.String)
		if err != nil {
			return t, fmt.Errorf("task: parse execution_date %q: %w", executionDate.String, err)
		}
		out := output.String
		t.IsExecuted = true
		t.ExecutionOutput = &out
		t.ExecutionDate = &at
	}
	return t, nil
}

func normalizePriority(p models.Priority) models.Priority {
	trimmed := strings.TrimSpace(string(p))
	switch up := models.Priority(strings.ToUpper(trimmed)); up {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
		return up
	}
	return models.Priority(trimmed)
}

func (s *Store) notify(kind, id string) {
	if s.onChange != nil {
		s.onChange(kind, id)
	}
}

func (s *Store) logUpdateErr(msg, id string, err error) {
	if errors.Is(err, errNoRow) {
		s.logger.Warn(msg+": no such todo", slog.String("id", id))
		return
	}
	s.logger.Error(msg, slog.String("id", id), slog.String("error", err.Error()))
}

var errNoRow = errors.New("no row affected")

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errNoRow
	}
	return nil
}

func wrap(op string, err error) error {
	if errors.Is(err, errNoRow) {
		return fmt.Errorf("task: %s: %w", op, apperr.ErrNotFound)
	}
	return fmt.Errorf("task: %s: %w", op, err)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
