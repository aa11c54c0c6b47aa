// Package mcpserver exposes the stores as MCP (Model Context Protocol) tools
// over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ambient/internal/models"
)

const defaultLimit = 20

// Transcripts is the transcript surface used by the tools.
type Transcripts interface {
	Search(ctx context.Context, query string, limit int) ([]models.TranscriptRecord, error)
	Recent(ctx context.Context, limit int) ([]models.TranscriptRecord, error)
}

// Tasks is the todo surface used by the tools.
type Tasks interface {
	Insert(ctx context.Context, content string, priority models.Priority) (models.Todo, error)
	All(ctx context.Context) ([]models.Todo, error)
	Pending(ctx context.Context) ([]models.Todo, error)
	ByProject(ctx context.Context, projectID string) ([]models.Todo, error)
	MarkExecuted(ctx context.Context, id, output string) error
	Get(ctx context.Context, id string) (models.Todo, error)
}

// Captures is the capture surface used by the tools.
type Captures interface {
	RegisterImageData(data []byte, kind models.CaptureKind, sessionID, mimeType, ext string) (*models.Capture, bool)
	RecentUnattached(sessionID string, since time.Time) []models.Capture
}

// Server wraps the MCP server.
type Server struct {
	mcp         *server.MCPServer
	transcripts Transcripts
	tasks       Tasks
	captures    Captures
}

// New creates an MCP server with every tool registered.
func New(transcripts Transcripts, tasks Tasks, captures Captures) *Server {
	s := &Server{transcripts: transcripts, tasks: tasks, captures: captures}

	s.mcp = server.NewMCPServer(
		"Ambient",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("search_transcripts",
		mcp.WithDescription("Full-text search over transcribed speech, newest first. "+
			"Matches whole words and substrings of three or more characters."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search terms; all must match")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
	), s.searchTranscripts)

	s.mcp.AddTool(mcp.NewTool("recent_transcripts",
		mcp.WithDescription("Most recent transcripts, newest first."),
		mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
	), s.recentTranscripts)

	s.mcp.AddTool(mcp.NewTool("list_todos",
		mcp.WithDescription("List structured todos, newest first."),
		mcp.WithBoolean("pending", mcp.Description("Only todos not yet executed")),
		mcp.WithString("project", mcp.Description("Only todos linked to this project id")),
	), s.listTodos)

	s.mcp.AddTool(mcp.NewTool("add_todo",
		mcp.WithDescription("Create a todo."),
		mcp.WithString("content", mcp.Required(), mcp.Description("What needs doing")),
		mcp.WithString("priority", mcp.Description("Optional label; LOW, MEDIUM and HIGH are normalized, anything else is kept as given")),
	), s.addTodo)

	s.mcp.AddTool(mcp.NewTool("complete_todo",
		mcp.WithDescription("Record the output of executing a todo. Calling it again replaces the output; "+
			"earlier runs stay in the execution history."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Todo id")),
		mcp.WithString("output", mcp.Required(), mcp.Description("Execution result")),
	), s.completeTodo)

	s.mcp.AddTool(mcp.NewTool("recent_captures",
		mcp.WithDescription("Unattached screenshots, clipboard images and URLs captured recently, oldest first. "+
			"Captures without a session are included for every session."),
		mcp.WithString("session", mcp.Description("Session id (empty for all sessions)")),
		mcp.WithNumber("since_seconds", mcp.Description("Look-back in seconds (default 120)")),
	), s.recentCaptures)

	s.mcp.AddTool(mcp.NewTool("capture_image",
		mcp.WithDescription("Register an image capture from a base64 data URI (PNG, JPEG, GIF or WebP)."),
		mcp.WithString("data_uri", mcp.Required(), mcp.Description("data:<mime>;base64,<payload>")),
		mcp.WithString("kind", mcp.Description("Capture kind"), mcp.Enum("screenshot", "clipboard-image")),
		mcp.WithString("session", mcp.Description("Owning session id")),
	), s.captureImage)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchTranscripts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.transcripts.Search(ctx, query, req.GetInt("limit", defaultLimit))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) recentTranscripts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	results, err := s.transcripts.Recent(ctx, req.GetInt("limit", defaultLimit))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) listTodos(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		todos []models.Todo
		err   error
	)
	switch project := req.GetString("project", ""); {
	case project != "":
		todos, err = s.tasks.ByProject(ctx, project)
	case req.GetBool("pending", false):
		todos, err = s.tasks.Pending(ctx)
	default:
		todos, err = s.tasks.All(ctx)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(todos)
}

func (s *Server) addTodo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(content) == "" {
		return mcp.NewToolResultError("content must not be blank"), nil
	}
	todo, err := s.tasks.Insert(ctx, content, models.Priority(req.GetString("priority", "")))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(todo)
}

func (s *Server) completeTodo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	output, err := req.RequireString("output")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.tasks.MarkExecuted(ctx, id, output); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	todo, err := s.tasks.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(todo)
}

func (s *Server) recentCaptures(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.captures == nil {
		return mcp.NewToolResultError("capture index unavailable"), nil
	}
	var since time.Time
	if secs := req.GetFloat("since_seconds", 0); secs > 0 {
		since = time.Now().Add(-time.Duration(secs * float64(time.Second)))
	}
	return jsonResult(s.captures.RecentUnattached(req.GetString("session", ""), since))
}
