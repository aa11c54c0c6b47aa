package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ambient/internal/models"
)

// TranscriptStore is the transcript surface used by the API.
type TranscriptStore interface {
	Available() bool
	Save(text string, duration float64, audioPath string)
	Append(ctx context.Context, text string, duration float64, audioPath string) (models.TranscriptRecord, error)
	Search(ctx context.Context, query string, limit int) ([]models.TranscriptRecord, error)
	Recent(ctx context.Context, limit int) ([]models.TranscriptRecord, error)
	Between(ctx context.Context, from, to time.Time) ([]models.TranscriptRecord, error)
	Count(ctx context.Context) (int, error)
	FullText() bool
}

// TaskStore is the todo surface used by the API.
type TaskStore interface {
	Insert(ctx context.Context, content string, priority models.Priority) (models.Todo, error)
	Get(ctx context.Context, id string) (models.Todo, error)
	All(ctx context.Context) ([]models.Todo, error)
	Pending(ctx context.Context) ([]models.Todo, error)
	ByProject(ctx context.Context, projectID string) ([]models.Todo, error)
	SetProject(ctx context.Context, id, projectID string) error
	UpdateContent(ctx context.Context, id, content string) error
	MarkExecuted(ctx context.Context, id, output string) error
	Executions(ctx context.Context, id string) ([]models.TodoExecution, error)
	Delete(ctx context.Context, id string) error
}

// CaptureIndex is the capture surface used by the API.
type CaptureIndex interface {
	RegisterImageData(data []byte, kind models.CaptureKind, sessionID, mimeType, ext string) (*models.Capture, bool)
	RegisterURL(url, sessionID string) (*models.Capture, bool)
	RecentUnattached(sessionID string, since time.Time) []models.Capture
	MarkAttached(ids ...string) int
	Get(id string) (models.Capture, bool)
	PurgeOldCaptures(retentionDays int) int
	Len() int
}

// Deps are the stores served by the router. A nil CaptureIndex makes the
// capture routes answer 503.
type Deps struct {
	Transcripts   TranscriptStore
	Tasks         TaskStore
	Captures      CaptureIndex
	RetentionDays int
}

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events behind the same auth.
func NewRouter(d Deps, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := &Handler{
		transcripts:   d.Transcripts,
		tasks:         d.Tasks,
		captures:      d.Captures,
		retentionDays: d.RetentionDays,
	}

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/transcripts", func(r chi.Router) {
		r.Get("/", h.ListTranscripts)
		r.Post("/", h.CreateTranscript)
		r.Get("/search", h.SearchTranscripts)
	})

	r.Route("/todos", func(r chi.Router) {
		r.Get("/", h.ListTodos)
		r.Post("/", h.CreateTodo)
		r.Get("/{id}", h.GetTodo)
		r.Patch("/{id}", h.UpdateTodo)
		r.Delete("/{id}", h.DeleteTodo)
		r.Post("/{id}/execute", h.ExecuteTodo)
		r.Get("/{id}/executions", h.ListExecutions)
	})

	r.Route("/captures", func(r chi.Router) {
		r.Use(h.requireCaptures)
		r.Post("/", h.UploadCapture)
		r.Post("/url", h.CreateURLCapture)
		r.Get("/unattached", h.ListUnattached)
		r.Post("/attach", h.AttachCaptures)
		r.Post("/purge", h.PurgeCaptures)
		r.Get("/{id}/file", h.CaptureFile)
	})

	r.Get("/stats", h.Stats)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// Handler holds API route handlers.
type Handler struct {
	transcripts   TranscriptStore
	tasks         TaskStore
	captures      CaptureIndex
	retentionDays int
}

func (h *Handler) requireCaptures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.captures == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody("capture index unavailable"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
