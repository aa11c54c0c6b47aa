package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/starford/ambient/internal/capture"
	"github.com/starford/ambient/internal/models"
	"github.com/starford/ambient/internal/task"
	"github.com/starford/ambient/internal/transcript"
)

var errConfigRequired = errors.New("config is required")

// NewLogger returns the JSON logger used by every command.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Hooks receive store change notifications. Nil fields are ignored.
type Hooks struct {
	TranscriptSaved func(models.TranscriptRecord)
	TodoChanged     func(kind, id string)
	CaptureChanged  func(kind string, c models.Capture)
}

// Stores bundles the three stores opened from one data directory.
//
// Transcripts and Tasks are always non-nil but may be inert. Captures is nil
// when the capture directory could not be prepared.
type Stores struct {
	Transcripts *transcript.Store
	Tasks       *task.Store
	Captures    *capture.Index
}

// OpenStores opens every store under cfg.Storage.DataDir.
func OpenStores(cfg *Config, logger *slog.Logger, hooks Hooks) *Stores {
	tOpts := []transcript.Option{
		transcript.WithLogger(logger.With("component", "transcript")),
		transcript.WithDriver(cfg.SQLite.Driver),
		transcript.WithBusyTimeout(cfg.SQLite.BusyTimeout),
	}
	if hooks.TranscriptSaved != nil {
		tOpts = append(tOpts, transcript.WithOnSave(hooks.TranscriptSaved))
	}

	kOpts := []task.Option{
		task.WithLogger(logger.With("component", "task")),
		task.WithDriver(cfg.SQLite.Driver),
		task.WithBusyTimeout(cfg.SQLite.BusyTimeout),
	}
	if hooks.TodoChanged != nil {
		kOpts = append(kOpts, task.WithOnChange(hooks.TodoChanged))
	}

	cOpts := []capture.Option{
		capture.WithLogger(logger.With("component", "capture")),
		capture.WithMaxCaptures(cfg.Captures.Max),
		capture.WithUnattachedWindow(cfg.Captures.UnattachedWindow),
	}
	if hooks.CaptureChanged != nil {
		cOpts = append(cOpts, capture.WithOnChange(hooks.CaptureChanged))
	}

	s := &Stores{
		Transcripts: transcript.New(cfg.Storage.TranscriptsPath(), tOpts...),
		Tasks:       task.New(cfg.Storage.TasksPath(), kOpts...),
	}

	captures, err := capture.New(cfg.Storage.CapturesPath(), cOpts...)
	if err != nil {
		logger.Error("capture index unavailable",
			slog.String("dir", cfg.Storage.CapturesPath()),
			slog.String("error", err.Error()))
	} else {
		s.Captures = captures
	}
	return s
}

// Close closes both databases.
func (s *Stores) Close() error {
	return errors.Join(
		wrapClose("transcripts", s.Transcripts.Close()),
		wrapClose("tasks", s.Tasks.Close()),
	)
}

func wrapClose(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("close %s: %w", name, err)
}
