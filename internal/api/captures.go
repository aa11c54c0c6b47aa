package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ambient/internal/capture"
	"github.com/starford/ambient/internal/models"
)

// UploadCapture handles POST /api/captures (multipart/form-data).
//
//	@Summary		Register an image capture
//	@Tags			captures
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"PNG, JPEG, GIF or WebP image"
//	@Param			kind	formData	string	false	"screenshot (default) or clipboard-image"
//	@Param			session	formData	string	false	"Owning session id"
//	@Success		201		{object}	models.Capture
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/captures [post]
func (h *Handler) UploadCapture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, capture.MaxImageBytes+1<<20)
	if err := r.ParseMultipartForm(capture.MaxImageBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, capture.MaxImageBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	mimeType, ext, err := capture.DetectImage(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	kind := models.CaptureKind(r.FormValue("kind"))
	if kind == "" {
		kind = models.KindScreenshot
	}
	if kind != models.KindScreenshot && kind != models.KindClipboardImage {
		writeJSON(w, http.StatusBadRequest, errorBody("kind must be screenshot or clipboard-image"))
		return
	}

	c, ok := h.captures.RegisterImageData(data, kind, r.FormValue("session"), mimeType, ext)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to store capture"))
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// CreateURLCapture handles POST /api/captures/url.
//
//	@Summary		Register a copied URL
//	@Tags			captures
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateURLCaptureRequest	true	"URL capture"
//	@Success		201		{object}	models.Capture
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/captures/url [post]
func (h *Handler) CreateURLCapture(w http.ResponseWriter, r *http.Request) {
	var req CreateURLCaptureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, ok := h.captures.RegisterURL(req.URL, req.SessionID)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("url must not be blank"))
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListUnattached handles GET /api/captures/unattached.
//
//	@Summary		Recent captures not yet attached to a task, oldest first
//	@Tags			captures
//	@Produce		json
//	@Param			session	query		string	false	"Session id; session-less captures always match"
//	@Param			since	query		string	false	"RFC 3339 lower bound (default: two minutes ago)"
//	@Success		200		{object}	CaptureListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/captures/unattached [get]
func (h *Handler) ListUnattached(w http.ResponseWriter, r *http.Request) {
	since, err := queryTime(r, "since")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("since must be an RFC 3339 timestamp"))
		return
	}
	captures := h.captures.RecentUnattached(r.URL.Query().Get("session"), since)
	writeJSON(w, http.StatusOK, CaptureListResponse{Captures: captures})
}

// AttachCaptures handles POST /api/captures/attach.
//
//	@Summary		Mark captures as attached to a task
//	@Tags			captures
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AttachCapturesRequest	true	"Capture ids"
//	@Success		200		{object}	AttachCapturesResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/captures/attach [post]
func (h *Handler) AttachCaptures(w http.ResponseWriter, r *http.Request) {
	var req AttachCapturesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, AttachCapturesResponse{Attached: h.captures.MarkAttached(req.IDs...)})
}

// PurgeCaptures handles POST /api/captures/purge.
//
//	@Summary		Delete captures older than the retention period
//	@Tags			captures
//	@Produce		json
//	@Param			days	query		int	false	"Retention in days (default from config)"
//	@Success		200		{object}	PurgeResponse
//	@Security		BearerAuth
//	@Router			/captures/purge [post]
func (h *Handler) PurgeCaptures(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days")
	if days <= 0 {
		days = h.retentionDays
	}
	writeJSON(w, http.StatusOK, PurgeResponse{Removed: h.captures.PurgeOldCaptures(days)})
}

// CaptureFile handles GET /api/captures/{id}/file.
//
//	@Summary		Download the image behind a capture
//	@Tags			captures
//	@Produce		image/png,image/jpeg,image/gif,image/webp
//	@Param			id	path	string	true	"Capture id"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/captures/{id}/file [get]
func (h *Handler) CaptureFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := h.captures.Get(id)
	if !ok || c.FilePath == "" {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	att, err := capture.LoadAttachment(c.FilePath)
	if err != nil {
		writeStoreError(w, err, "load capture failed", slog.String("id", id))
		return
	}
	w.Header().Set("Content-Type", att.MIMEType)
	w.Header().Set("Content-Length", strconv.FormatInt(att.Size, 10))
	w.Header().Set("ETag", `"`+att.Checksum+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(att.Data)
}
