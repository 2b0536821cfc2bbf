package httpapi

import "net/http"

// handleResult implements spec.md §6's GET /result/{name}: stream a
// previously written result file's bytes back to the caller.
func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	h.Results.ServeHTTP(w, r, name)
}
