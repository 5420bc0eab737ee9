package gateway

import "net/http"

// handleLatestGet serves the latest-search snapshot the dashboard polls.
// Always 200: an empty slot is a valid snapshot with no results, so the
// dashboard never has to special-case a 404.
func (h *Handler) handleLatestGet(w http.ResponseWriter, r *http.Request) {
	if !h.negotiateJSON(w, r) {
		return
	}
	snap, err := h.bridge.Read(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to read snapshot", "err", err)
		writeJSON(w, http.StatusInternalServerError, oauthErrorBody{Code: "server_error", Description: "snapshot store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleLatestDelete clears the snapshot slot, typically after the dashboard
// has rendered it.
func (h *Handler) handleLatestDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.bridge.Clear(r.Context()); err != nil {
		h.log.ErrorContext(r.Context(), "failed to clear snapshot", "err", err)
		writeJSON(w, http.StatusInternalServerError, oauthErrorBody{Code: "server_error", Description: "snapshot store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}
