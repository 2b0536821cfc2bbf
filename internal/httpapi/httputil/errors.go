package httputil

import (
	"net/http"

	"github.com/yungbote/neurod/internal/platform/apierr"
)

// WriteAPIError renders err in spec.md §6's {error, msg, status_code,
// data?} shape, deriving the HTTP status from the error's declared kind.
func WriteAPIError(w http.ResponseWriter, err error) {
	ae := apierr.As(err)
	WriteJSON(w, ae.Status(), ae.ToResponse())
}

// WriteError renders a plain message in the same response shape, for
// failures that occur before an apierr.Error has been constructed (e.g.
// malformed request bodies).
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]any{
		"error":       http.StatusText(status),
		"msg":         message,
		"status_code": status,
	})
}
