package api

import "net/http"

// Stats handles GET /api/stats.
//
//	@Summary		Store sizes and whether transcript search uses the FTS index
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	n, err := h.transcripts.Count(r.Context())
	if err != nil {
		writeStoreError(w, err, "count transcripts failed")
		return
	}

	resp := StatsResponse{Transcripts: n, FullText: h.transcripts.FullText()}
	if h.captures != nil {
		c := h.captures.Len()
		resp.Captures = &c
	}
	writeJSON(w, http.StatusOK, resp)
}
