// Package testutil provides shared test helpers that open stores in temp dirs.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/ambient/internal/capture"
	"github.com/starford/ambient/internal/task"
	"github.com/starford/ambient/internal/transcript"
)

// Transcripts opens a transcript store in a temp dir, closed on cleanup.
func Transcripts(t *testing.T, opts ...transcript.Option) *transcript.Store {
	t.Helper()
	s := transcript.New(filepath.Join(t.TempDir(), "transcripts.db"), opts...)
	if !s.Available() {
		t.Fatal("transcript store unavailable")
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Tasks opens a task store in a temp dir, closed on cleanup.
func Tasks(t *testing.T, opts ...task.Option) *task.Store {
	t.Helper()
	s := task.New(filepath.Join(t.TempDir(), "tasks.db"), opts...)
	if !s.Available() {
		t.Fatal("task store unavailable")
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Captures creates a capture index over a temp dir.
func Captures(t *testing.T, opts ...capture.Option) *capture.Index {
	t.Helper()
	x, err := capture.New(filepath.Join(t.TempDir(), "captures"), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return x
}

// PNG is a minimal valid 1x1 PNG image.
var PNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}
