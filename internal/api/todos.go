package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ambient/internal/models"
)

// ListTodos handles GET /api/todos.
//
//	@Summary		List todos, newest first
//	@Tags			todos
//	@Produce		json
//	@Param			project	query		string	false	"Only todos linked to this project"
//	@Param			pending	query		bool	false	"Only todos not yet executed"
//	@Success		200		{object}	TodoListResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/todos [get]
func (h *Handler) ListTodos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()

	var (
		todos []models.Todo
		err   error
	)
	switch {
	case q.Get("project") != "":
		todos, err = h.tasks.ByProject(ctx, q.Get("project"))
	case q.Get("pending") == "true":
		todos, err = h.tasks.Pending(ctx)
	default:
		todos, err = h.tasks.All(ctx)
	}
	if err != nil {
		writeStoreError(w, err, "list todos failed")
		return
	}
	writeJSON(w, http.StatusOK, TodoListResponse{Todos: todos})
}

// CreateTodo handles POST /api/todos.
//
//	@Summary		Create a todo
//	@Tags			todos
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateTodoRequest	true	"Todo to create"
//	@Success		201		{object}	models.Todo
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/todos [post]
func (h *Handler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	var req CreateTodoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	todo, err := h.tasks.Insert(r.Context(), req.Content, req.Priority)
	if err != nil {
		writeStoreError(w, err, "create todo failed", slog.String("id", todo.ID))
		return
	}
	writeJSON(w, http.StatusCreated, todo)
}

// GetTodo handles GET /api/todos/{id}.
//
//	@Summary		Get a todo
//	@Tags			todos
//	@Produce		json
//	@Param			id	path		string	true	"Todo id"
//	@Success		200	{object}	models.Todo
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/todos/{id} [get]
func (h *Handler) GetTodo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	todo, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "get todo failed", slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, todo)
}

// UpdateTodo handles PATCH /api/todos/{id}.
//
//	@Summary		Change a todo's content or project
//	@Tags			todos
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Todo id"
//	@Param			body	body		UpdateTodoRequest	true	"Fields to change"
//	@Success		200		{object}	models.Todo
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/todos/{id} [patch]
func (h *Handler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateTodoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	ctx := r.Context()
	if req.Content != nil {
		if err := h.tasks.UpdateContent(ctx, id, *req.Content); err != nil {
			writeStoreError(w, err, "update todo content failed", slog.String("id", id))
			return
		}
	}
	if req.ProjectID != nil {
		if err := h.tasks.SetProject(ctx, id, *req.ProjectID); err != nil {
			writeStoreError(w, err, "set todo project failed", slog.String("id", id))
			return
		}
	}
	h.GetTodo(w, r)
}

// ExecuteTodo handles POST /api/todos/{id}/execute.
//
//	@Summary		Record the output of executing a todo
//	@Tags			todos
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Todo id"
//	@Param			body	body		ExecuteTodoRequest	true	"Execution output"
//	@Success		200		{object}	models.Todo
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/todos/{id}/execute [post]
func (h *Handler) ExecuteTodo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ExecuteTodoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.tasks.MarkExecuted(r.Context(), id, req.Output); err != nil {
		writeStoreError(w, err, "mark todo executed failed", slog.String("id", id))
		return
	}
	h.GetTodo(w, r)
}

// ListExecutions handles GET /api/todos/{id}/executions.
//
//	@Summary		Execution history of a todo, oldest first
//	@Tags			todos
//	@Produce		json
//	@Param			id	path		string	true	"Todo id"
//	@Success		200	{object}	ExecutionListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/todos/{id}/executions [get]
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()
	if _, err := h.tasks.Get(ctx, id); err != nil {
		writeStoreError(w, err, "get todo failed", slog.String("id", id))
		return
	}
	history, err := h.tasks.Executions(ctx, id)
	if err != nil {
		writeStoreError(w, err, "list executions failed", slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, ExecutionListResponse{Executions: history})
}

// DeleteTodo handles DELETE /api/todos/{id}.
//
//	@Summary		Delete a todo
//	@Tags			todos
//	@Param			id	path	string	true	"Todo id"
//	@Success		204	"Todo deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/todos/{id} [delete]
func (h *Handler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.tasks.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err, "delete todo failed", slog.String("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
