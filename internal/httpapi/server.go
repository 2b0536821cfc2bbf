// Package httpapi implements spec.md §6's HTTP surface: every operation has
// a synchronous form at <path> and an asynchronous form at /async<path>,
// grounded on the teacher's internal/inference/httpapi/server.go
// net/http.ServeMux wiring and on hivemind_daemon/server/server.py's
// wrap_sync/wrap_async pairing (re-expressed here as the sync/async
// methods below, each driven by a builder that turns one *http.Request
// into a scheduler.JobFunc).
package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/neurod/internal/catalog"
	"github.com/yungbote/neurod/internal/config"
	"github.com/yungbote/neurod/internal/downloader"
	"github.com/yungbote/neurod/internal/httpapi/httputil"
	"github.com/yungbote/neurod/internal/installer"
	"github.com/yungbote/neurod/internal/loader"
	"github.com/yungbote/neurod/internal/pipeline"
	"github.com/yungbote/neurod/internal/platform/logger"
	"github.com/yungbote/neurod/internal/registry"
	"github.com/yungbote/neurod/internal/repository"
	"github.com/yungbote/neurod/internal/resultfile"
	"github.com/yungbote/neurod/internal/scheduler"
	"github.com/yungbote/neurod/internal/storage"
)

// Deps bundles every component the HTTP surface calls into. Built once at
// startup by internal/app and handed to NewHandler.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	Scheduler  *scheduler.Scheduler
	Pipeline   *pipeline.Pipeline
	Catalog    *catalog.Catalog
	Installer  *installer.Installer
	Downloader *downloader.Downloader
	Loader     *loader.Loader
	Registry   *registry.Registry
	Results    *resultfile.Store
	Repository *repository.Repository
	Layout     *storage.Layout
}

// Handler holds the dependencies every route needs.
type Handler struct {
	Deps
}

func NewServer(cfg *config.Config, log *logger.Logger, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           h,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout.Duration,
		IdleTimeout:       cfg.HTTP.IdleTimeout.Duration,
		WriteTimeout:      0,
	}
}

func NewHandler(deps Deps) http.Handler {
	h := &Handler{Deps: deps}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", h.handleRoot)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /result/{name}", h.handleResult)
	mux.HandleFunc("GET /async/get/{uid}", h.handleAsyncGet)
	mux.HandleFunc("GET /async/cancel/{uid}", h.handleAsyncCancel)

	mux.HandleFunc("POST /package/search", h.handlePackageSearch)
	mux.HandleFunc("GET /package/list", h.handlePackageList)

	h.registerTwin(mux, "POST /run/{pkg}/{fn}", h.buildRun)
	h.registerTwin(mux, "POST /_run/{pkg}/{model}", h.buildRunRaw)
	h.registerTwin(mux, "POST /package/install", h.buildPackageInstall(true))
	h.registerTwin(mux, "POST /package/fetch", h.buildPackageInstall(false))
	h.registerTwin(mux, "POST /package/activate", h.buildPackageActivate)
	h.registerTwin(mux, "POST /package/deactivate", h.buildPackageDeactivate)
	h.registerTwin(mux, "POST /package/remove", h.buildPackageRemove)

	var handler http.Handler = mux
	handler = recoverMiddleware(deps.Logger)(handler)
	handler = accessLogMiddleware(deps.Logger)(handler)
	handler = requestIDMiddleware()(handler)
	return handler
}

// jobBuilder turns one request into the unit of work a scheduler worker
// will run, or an error if the request itself is malformed.
type jobBuilder func(w http.ResponseWriter, r *http.Request) (scheduler.JobFunc, error)

// registerTwin registers pattern (e.g. "POST /run/{pkg}/{fn}") as both its
// synchronous form and, prefixed with /async, its asynchronous form, per
// spec.md §6.
func (h *Handler) registerTwin(mux *http.ServeMux, pattern string, build jobBuilder) {
	method, path, ok := splitPattern(pattern)
	if !ok {
		panic("httpapi: malformed route pattern " + pattern)
	}
	mux.HandleFunc(pattern, h.syncHandler(build))
	mux.HandleFunc(method+" /async"+path, h.asyncHandler(build))
}

func splitPattern(pattern string) (method, path string, ok bool) {
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == ' ' {
			return pattern[:i], pattern[i+1:], true
		}
	}
	return "", "", false
}

func (h *Handler) submit(r *http.Request, fn scheduler.JobFunc) (*scheduler.Job, error) {
	return h.Scheduler.Submit(scheduler.RequestInfo{Method: r.Method + " " + r.URL.Path, ReceivedAt: time.Now()}, fn)
}

// syncHandler blocks until the job terminates and writes its result (or
// error) directly, per hivemind's wrap_sync.
func (h *Handler) syncHandler(build jobBuilder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn, err := build(w, r)
		if err != nil {
			httputil.WriteAPIError(w, err)
			return
		}
		job, err := h.submit(r, fn)
		if err != nil {
			httputil.WriteAPIError(w, err)
			return
		}
		value, err := h.Scheduler.Await(r.Context(), job)
		if err != nil {
			httputil.WriteAPIError(w, err)
			return
		}
		if value == nil {
			value = map[string]any{"status": "OK"}
		}
		httputil.WriteJSON(w, http.StatusOK, value)
	}
}

// asyncHandler submits the job and returns its descriptor immediately, per
// hivemind's wrap_async.
func (h *Handler) asyncHandler(build jobBuilder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn, err := build(w, r)
		if err != nil {
			httputil.WriteAPIError(w, err)
			return
		}
		job, err := h.submit(r, fn)
		if err != nil {
			httputil.WriteAPIError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, jobDescriptor(job))
	}
}
