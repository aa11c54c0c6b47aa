package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ambient/internal/models"
)

// CreateTranscriptRequest is the body of POST /transcripts.
type CreateTranscriptRequest struct {
	Text      string  `json:"text" example:"meeting about roadmap Q3"`
	Duration  float64 `json:"duration_seconds" example:"4.2"`
	AudioPath string  `json:"audio_path" example:"/recordings/2026-05-04/0915.wav"`
}

// Validate checks the request fields.
func (r CreateTranscriptRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required),
		validation.Field(&r.Duration, validation.Min(0.0)),
	)
}

// TranscriptListResponse wraps transcript listings.
type TranscriptListResponse struct {
	Transcripts []models.TranscriptRecord `json:"transcripts"`
}

// SearchResponse wraps search hits.
type SearchResponse struct {
	Results []models.TranscriptRecord `json:"results"`
}

const maxPriorityRunes = 32

// CreateTodoRequest is the body of POST /todos.
type CreateTodoRequest struct {
	Content  string          `json:"content" example:"buy milk"`
	Priority models.Priority `json:"priority,omitempty" example:"LOW"`
}

// Validate checks the request fields. Priority is a free-form label.
func (r CreateTodoRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required),
		validation.Field(&r.Priority, validation.RuneLength(0, maxPriorityRunes)),
	)
}

// UpdateTodoRequest is the body of PATCH /todos/{id}. Absent fields are left
// unchanged; an empty project_id clears the project.
type UpdateTodoRequest struct {
	Content   *string `json:"content,omitempty"`
	ProjectID *string `json:"project_id,omitempty"`
}

// Validate checks the request fields.
func (r UpdateTodoRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.NilOrNotEmpty),
	)
}

// ExecuteTodoRequest is the body of POST /todos/{id}/execute.
type ExecuteTodoRequest struct {
	Output string `json:"output" example:"done"`
}

// TodoListResponse wraps todo listings.
type TodoListResponse struct {
	Todos []models.Todo `json:"todos"`
}

// ExecutionListResponse wraps a todo's execution history.
type ExecutionListResponse struct {
	Executions []models.TodoExecution `json:"executions"`
}

// CreateURLCaptureRequest is the body of POST /captures/url.
type CreateURLCaptureRequest struct {
	URL       string `json:"url" example:"https://go.dev/doc"`
	SessionID string `json:"session_id,omitempty"`
}

// AttachCapturesRequest is the body of POST /captures/attach.
type AttachCapturesRequest struct {
	IDs []string `json:"ids"`
}

// Validate checks the request fields.
func (r AttachCapturesRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDs, validation.Required),
	)
}

// CaptureListResponse wraps capture listings.
type CaptureListResponse struct {
	Captures []models.Capture `json:"captures"`
}

// AttachCapturesResponse reports how many captures changed state.
type AttachCapturesResponse struct {
	Attached int `json:"attached"`
}

// PurgeResponse reports how many captures and files were removed.
type PurgeResponse struct {
	Removed int `json:"removed"`
}

// StatsResponse summarizes store sizes. Captures is null when the capture
// index is unavailable.
type StatsResponse struct {
	Transcripts int  `json:"transcripts"`
	FullText    bool `json:"full_text"`
	Captures    *int `json:"captures"`
}
