package httpapi

import (
	"net/http"

	"github.com/yungbote/neurod/internal/httpapi/httputil"
	"github.com/yungbote/neurod/internal/platform/apierr"
	"github.com/yungbote/neurod/internal/scheduler"
)

// statusLabel renders a scheduler.State in spec.md §6's job-descriptor
// status vocabulary: {Initializing, In Progress, Done, Error, Interrupted}.
func statusLabel(s scheduler.State) string {
	switch s {
	case scheduler.Init, scheduler.Queued:
		return "Initializing"
	case scheduler.Running:
		return "In Progress"
	case scheduler.Done:
		return "Done"
	case scheduler.Error:
		return "Error"
	case scheduler.Interrupted:
		return "Interrupted"
	default:
		return string(s)
	}
}

// jobDescriptor renders job in spec.md §6's job-descriptor shape:
// {uid, status, data, result?, error?}.
func jobDescriptor(job *scheduler.Job) map[string]any {
	desc := map[string]any{
		"uid":    job.ID,
		"status": statusLabel(job.State()),
		"data":   job.Progress(),
	}
	if value, err, terminal := job.Result(); terminal {
		if err != nil {
			desc["error"] = apierr.As(err).ToResponse()
		} else {
			desc["result"] = value
		}
	}
	return desc
}

// handleAsyncGet implements spec.md §6's GET /async/get/{uid}.
func (h *Handler) handleAsyncGet(w http.ResponseWriter, r *http.Request) {
	job, err := h.Scheduler.Get(r.PathValue("uid"))
	if err != nil {
		httputil.WriteAPIError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, jobDescriptor(job))
}

// handleAsyncCancel implements spec.md §6's GET /async/cancel/{uid}.
func (h *Handler) handleAsyncCancel(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if err := h.Scheduler.Cancel(uid); err != nil {
		httputil.WriteAPIError(w, err)
		return
	}
	job, err := h.Scheduler.Get(uid)
	if err != nil {
		httputil.WriteAPIError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, jobDescriptor(job))
}
