package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/yungbote/neurod/internal/catalog"
	"github.com/yungbote/neurod/internal/httpapi/httputil"
	"github.com/yungbote/neurod/internal/platform/apierr"
	"github.com/yungbote/neurod/internal/registry"
	"github.com/yungbote/neurod/internal/scheduler"
	"github.com/yungbote/neurod/internal/tensor"
)

// activeLookup builds a registry.ActivePackageLookup bound to the job's own
// transactional session, per spec.md §4.6's resolve_active contract.
func activeLookup(jc *scheduler.JobContext) registry.ActivePackageLookup {
	return func(name string) (uuid.UUID, error) {
		sess, ok := jc.Session.(*catalog.Session)
		if !ok {
			return uuid.Nil, apierr.New(apierr.InternalError, "job has no catalog session", nil)
		}
		p, err := sess.PackageActive(name)
		if err != nil {
			return uuid.Nil, err
		}
		return p.ID, nil
	}
}

// buildRun implements spec.md §6's POST /run/{pkg}/{fn}: invoke a
// registered function.
func (h *Handler) buildRun(w http.ResponseWriter, r *http.Request) (scheduler.JobFunc, error) {
	pkg := r.PathValue("pkg")
	fn := r.PathValue("fn")

	inputs := map[string]any{}
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(w, r, h.Config.HTTP.MaxRequestBytes, &inputs); err != nil {
			return nil, apierr.New(apierr.ValidationError, "request body must be JSON", nil)
		}
	}

	return func(jc *scheduler.JobContext) (any, error) {
		return h.Pipeline.Call(jc.Ctx, activeLookup(jc), pkg, fn, inputs)
	}, nil
}

// buildRunRaw implements spec.md §6's POST /_run/{pkg}/{model}: run exactly
// this model with exactly these tensors, bypassing the registry.
func (h *Handler) buildRunRaw(w http.ResponseWriter, r *http.Request) (scheduler.JobFunc, error) {
	pkg := r.PathValue("pkg")
	model := r.PathValue("model")

	var raw map[string]map[string]any
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(w, r, h.Config.HTTP.MaxRequestBytes, &raw); err != nil {
			return nil, apierr.New(apierr.ValidationError, "request body must be a JSON object of wire tensors", nil)
		}
	}

	inputs := make(map[string]tensor.Tensor, len(raw))
	for name, wire := range raw {
		t, err := tensor.Decode(wire)
		if err != nil {
			return nil, err
		}
		inputs[name] = t
	}

	return func(jc *scheduler.JobContext) (any, error) {
		sess, ok := jc.Session.(*catalog.Session)
		if !ok {
			return nil, apierr.New(apierr.InternalError, "job has no catalog session", nil)
		}
		p, err := sess.PackageActive(pkg)
		if err != nil {
			return nil, err
		}
		outputs, err := h.Pipeline.CallRaw(jc.Ctx, p.ID, model, inputs)
		if err != nil {
			return nil, err
		}
		encoded := make(map[string]any, len(outputs))
		for name, t := range outputs {
			encoded[name] = tensor.Encode(t)
		}
		return encoded, nil
	}, nil
}
