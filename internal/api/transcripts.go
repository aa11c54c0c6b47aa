package api

import (
	"log/slog"
	"net/http"

	"github.com/starford/ambient/internal/apperr"
)

// ListTranscripts handles GET /api/transcripts.
//
//	@Summary		Recent transcripts, or a time range when from/to are given
//	@Tags			transcripts
//	@Produce		json
//	@Param			limit	query		int		false	"Max results (recent mode)"
//	@Param			from	query		string	false	"RFC 3339 lower bound, inclusive"
//	@Param			to		query		string	false	"RFC 3339 upper bound, exclusive"
//	@Success		200		{object}	TranscriptListResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/transcripts [get]
func (h *Handler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	from, errFrom := queryTime(r, "from")
	to, errTo := queryTime(r, "to")
	if errFrom != nil || errTo != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to must be RFC 3339 timestamps"))
		return
	}

	ctx := r.Context()
	var err error
	resp := TranscriptListResponse{}
	if !from.IsZero() || !to.IsZero() {
		if from.IsZero() || to.IsZero() {
			writeJSON(w, http.StatusBadRequest, errorBody("from and to must be given together"))
			return
		}
		resp.Transcripts, err = h.transcripts.Between(ctx, from, to)
	} else {
		resp.Transcripts, err = h.transcripts.Recent(ctx, queryInt(r, "limit"))
	}
	if err != nil {
		writeStoreError(w, err, "list transcripts failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateTranscript handles POST /api/transcripts.
//
// By default the insert is queued and 202 is returned. With ?wait=true the
// call blocks and returns the stored record.
//
//	@Summary		Store a transcript
//	@Tags			transcripts
//	@Accept			json
//	@Produce		json
//	@Param			wait	query		bool					false	"Wait for the insert"
//	@Param			body	body		CreateTranscriptRequest	true	"Transcript"
//	@Success		201		{object}	models.TranscriptRecord
//	@Success		202
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/transcripts [post]
func (h *Handler) CreateTranscript(w http.ResponseWriter, r *http.Request) {
	var req CreateTranscriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if !h.transcripts.Available() {
		writeStoreError(w, apperr.ErrUnavailable, "")
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		rec, err := h.transcripts.Append(r.Context(), req.Text, req.Duration, req.AudioPath)
		if err != nil {
			writeStoreError(w, err, "append transcript failed")
			return
		}
		writeJSON(w, http.StatusCreated, rec)
		return
	}

	h.transcripts.Save(req.Text, req.Duration, req.AudioPath)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// SearchTranscripts handles GET /api/transcripts/search.
//
//	@Summary		Full-text search across transcripts, newest first
//	@Tags			transcripts
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/transcripts/search [get]
func (h *Handler) SearchTranscripts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	results, err := h.transcripts.Search(r.Context(), q, queryInt(r, "limit"))
	if err != nil {
		writeStoreError(w, err, "search failed", slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
