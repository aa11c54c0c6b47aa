// Package models defines the domain types shared by the stores.
package models

import "time"

// TranscriptRecord is one transcribed utterance. Records are immutable once stored.
type TranscriptRecord struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Duration  float64   `json:"duration_seconds"`
	Text      string    `json:"text"`
	AudioPath string    `json:"audio_path"`
}

// Priority is the optional urgency label of a todo.
type Priority string

const (
	PriorityNone   Priority = ""
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Todo is an actionable item extracted from transcripts.
//
// IsExecuted is true exactly when ExecutionOutput and ExecutionDate are set.
type Todo struct {
	ID              string     `json:"id"`
	Content         string     `json:"content"`
	Priority        Priority   `json:"priority,omitempty"`
	ProjectID       string     `json:"project_id,omitempty"` // soft reference, not enforced
	CreatedAt       time.Time  `json:"created_at"`
	IsExecuted      bool       `json:"is_executed"`
	ExecutionOutput *string    `json:"execution_output,omitempty"`
	ExecutionDate   *time.Time `json:"execution_date,omitempty"`
}

// TodoExecution is one entry of a todo's execution history.
type TodoExecution struct {
	TodoID     string    `json:"todo_id"`
	Output     string    `json:"output"`
	ExecutedAt time.Time `json:"executed_at"`
}

// CaptureKind says where a capture came from.
type CaptureKind string

const (
	KindScreenshot     CaptureKind = "screenshot"
	KindClipboardImage CaptureKind = "clipboard-image"
	KindURL            CaptureKind = "url"
)

// Capture is an ambient artifact that may later be attached to a task.
type Capture struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	SessionID string      `json:"session_id,omitempty"` // empty means session-agnostic
	Kind      CaptureKind `json:"kind"`
	FilePath  string      `json:"file_path,omitempty"` // empty for URL captures
	Preview   string      `json:"preview"`
	Attached  bool        `json:"attached"`
}

// Attachment is a capture file loaded for hand-off to a downstream task.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	Data     []byte `json:"-"`
}
