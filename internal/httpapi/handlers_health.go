package httpapi

import (
	"net/http"

	"github.com/yungbote/neurod/internal/httpapi/httputil"
)

const daemonVersion = "0.1.0"

// handleRoot implements spec.md §6's GET / heartbeat.
func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "neurod",
		"version": daemonVersion,
	})
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReadyz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
