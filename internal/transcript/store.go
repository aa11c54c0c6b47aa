// Package transcript persists transcribed utterances in SQLite and keeps a
// full-text projection of them for search.
package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/ambient/internal/apperr"
	"github.com/starford/ambient/internal/lane"
	"github.com/starford/ambient/internal/models"
	"github.com/starford/ambient/internal/sqlitedb"
)

const (
	defaultLimit = 50
	timeLayout   = "2006-01-02T15:04:05.000000Z"
)

var migrations = []sqlitedb.Migration{
	{
		Version: 1,
		Name:    "create transcripts",
		Up: sqlitedb.Exec(`
			CREATE TABLE IF NOT EXISTS transcripts (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TEXT NOT NULL,
				duration   REAL NOT NULL DEFAULT 0,
				text       TEXT NOT NULL,
				audio_path TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at);
		`),
	},
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithDriver selects the database/sql driver (sqlitedb.DriverModernc or sqlitedb.DriverMattn).
func WithDriver(driver string) Option {
	return func(s *Store) { s.dbOpts.Driver = driver }
}

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) { s.dbOpts.BusyTimeout = d }
}

// WithOnSave registers a callback invoked on the lane after each committed insert.
func WithOnSave(fn func(models.TranscriptRecord)) Option {
	return func(s *Store) { s.onSave = fn }
}

// WithClock overrides the time source used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the transcript database. A Store whose file could not be opened
// is inert: reads return apperr.ErrUnavailable and writes are dropped.
//
// A ctx passed to a method only bounds admission to the queue. Work that has
// been queued runs to completion even if ctx is cancelled afterwards.
type Store struct {
	path   string
	dbOpts sqlitedb.Options
	logger *slog.Logger
	onSave func(models.TranscriptRecord)
	now    func() time.Time

	db        *sql.DB
	lane      *lane.Lane
	fts       bool
	closeOnce sync.Once
}

// New opens the transcript database at path. It never fails; check Available.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: slog.Default().With("component", "transcript"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	db, err := s.open(context.Background())
	if err != nil {
		s.logger.Error("transcript store unavailable",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return s
	}
	s.db = db
	s.lane = lane.New("transcript", 0, s.logger)
	s.logger.Info("transcript store opened",
		slog.String("path", path),
		slog.Bool("fts5", s.fts))
	return s
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	db, err := sqlitedb.Open(s.path, s.dbOpts)
	if err != nil {
		return nil, err
	}
	if err := sqlitedb.Migrate(ctx, db, migrations, s.logger); err != nil {
		db.Close()
		return nil, err
	}
	if sqlitedb.HasFTS5(ctx, db) {
		if err := ensureFTS(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("transcript: fts schema: %w", err)
		}
		s.fts = true
	}
	return db, nil
}

// Available reports whether the database was opened successfully.
func (s *Store) Available() bool { return s.db != nil }

// FullText reports whether searches go through the FTS5 index.
func (s *Store) FullText() bool { return s.fts }

// Save queues a transcript for insertion and returns immediately.
// Failures are logged and the record is dropped.
func (s *Store) Save(text string, duration float64, audioPath string) {
	if !s.Available() {
		s.logger.Warn("dropping transcript, store unavailable")
		return
	}
	createdAt := s.now()
	err := s.lane.Submit(func() {
		if _, err := s.insert(context.Background(), createdAt, text, duration, audioPath); err != nil {
			s.logger.Error("save transcript", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		s.logger.Warn("dropping transcript", slog.String("error", err.Error()))
	}
}

// Append inserts a transcript and waits for the assigned record.
func (s *Store) Append(ctx context.Context, text string, duration float64, audioPath string) (models.TranscriptRecord, error) {
	if !s.Available() {
		return models.TranscriptRecord{}, apperr.ErrUnavailable
	}
	createdAt := s.now()
	jobCtx := context.WithoutCancel(ctx)
	return lane.Query(ctx, s.lane, func() (models.TranscriptRecord, error) {
		return s.insert(jobCtx, createdAt, text, duration, audioPath)
	})
}

// insert runs on the lane. The FTS row is written by trigger in the same transaction.
func (s *Store) insert(ctx context.Context, createdAt time.Time, text string, duration float64, audioPath string) (models.TranscriptRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.TranscriptRecord{}, fmt.Errorf("transcript: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	createdAt = createdAt.UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO transcripts (created_at, duration, text, audio_path) VALUES (?, ?, ?, ?)`,
		createdAt.Format(timeLayout), duration, text, audioPath)
	if err != nil {
		return models.TranscriptRecord{}, fmt.Errorf("transcript: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.TranscriptRecord{}, fmt.Errorf("transcript: last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.TranscriptRecord{}, fmt.Errorf("transcript: commit: %w", err)
	}

	rec := models.TranscriptRecord{
		ID:        id,
		CreatedAt: createdAt.Truncate(time.Microsecond),
		Duration:  duration,
		Text:      text,
		AudioPath: audioPath,
	}
	if s.onSave != nil {
		s.onSave(rec)
	}
	return rec, nil
}

// Recent returns up to limit transcripts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.TranscriptRecord, error) {
	if !s.Available() {
		return nil, apperr.ErrUnavailable
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	jobCtx := context.WithoutCancel(ctx)
	return lane.Query(ctx, s.lane, func() ([]models.TranscriptRecord, error) {
		return s.query(jobCtx, `
			SELECT id, created_at, duration, text, audio_path
			FROM transcripts
			ORDER BY id DESC
			LIMIT ?`, limit)
	})
}

// Between returns transcripts with from <= created_at < to, oldest first.
func (s *Store) Between(ctx context.Context, from, to time.Time) ([]models.TranscriptRecord, error) {
	if !s.Available() {
		return nil, apperr.ErrUnavailable
	}
	if !from.Before(to) {
		return []models.TranscriptRecord{}, nil
	}
	jobCtx := context.WithoutCancel(ctx)
	return lane.Query(ctx, s.lane, func() ([]models.TranscriptRecord, error) {
		return s.query(jobCtx, `
			SELECT id, created_at, duration, text, audio_path
			FROM transcripts
			WHERE created_at >= ? AND created_at < ?
			ORDER BY id ASC`,
			from.UTC().Format(timeLayout), to.UTC().Format(timeLayout))
	})
}

// Count returns the number of stored transcripts.
func (s *Store) Count(ctx context.Context) (int, error) {
	if !s.Available() {
		return 0, apperr.ErrUnavailable
	}
	jobCtx := context.WithoutCancel(ctx)
	return lane.Query(ctx, s.lane, func() (int, error) {
		var n int
		if err := s.db.QueryRowContext(jobCtx, `SELECT count(*) FROM transcripts`).Scan(&n); err != nil {
			return 0, fmt.Errorf("transcript: count: %w", err)
		}
		return n, nil
	})
}

// Close drains queued writes and closes the database.
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

func (s *Store) query(ctx context.Context, q string, args ...any) ([]models.TranscriptRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("transcript: query: %w", err)
	}
	defer rows.Close()

	out := []models.TranscriptRecord{}
	for rows.Next() {
		var (
			r       models.TranscriptRecord
			created string
		)
		if err := rows.Scan(&r.ID, &created, &r.Duration, &r.Text, &r.AudioPath); err != nil {
			return nil, fmt.Errorf("transcript: scan: %w", err)
		}
		r.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("transcript: parse created_at %q: %w", created, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
