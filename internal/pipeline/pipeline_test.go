package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurod/internal/catalog"
	"github.com/yungbote/neurod/internal/engine"
	"github.com/yungbote/neurod/internal/engine/mock"
	"github.com/yungbote/neurod/internal/platform/apierr"
	"github.com/yungbote/neurod/internal/registry"
	"github.com/yungbote/neurod/internal/tensor"
)

type fakeModels struct {
	models map[string]catalog.Model // keyed by packageID.String()+"/"+name
	dir    string
}

func (f *fakeModels) ModelByPackageAndName(packageID uuid.UUID, name string) (catalog.Model, error) {
	m, ok := f.models[packageID.String()+"/"+name]
	if !ok {
		return catalog.Model{}, apierr.New(apierr.MissingEntry, "no such model", nil)
	}
	return m, nil
}

func (f *fakeModels) InstallDirFor(packageID uuid.UUID) string { return f.dir }

type directSessions struct {
	eng engine.Engine
}

func (d *directSessions) Get(ctx context.Context, path string) (engine.Session, error) {
	return d.eng.OpenSession(ctx, path)
}

func newTestPipeline(t *testing.T, pkgID uuid.UUID, reg *registry.Registry) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	models := &fakeModels{
		models: map[string]catalog.Model{
			pkgID.String() + "/m1": {PackageID: pkgID, Name: "m1", InstallPath: "m1.json"},
		},
		dir: dir,
	}
	return New(reg, models, &directSessions{eng: mock.New()}), dir
}

func writeDescriptor(t *testing.T, dir string) {
	t.Helper()
	content := `{
		"inputs": [{"name": "x", "dtype": "float32", "shape": [1, 2]}],
		"outputs": [{"name": "y", "dtype": "float32", "shape": [1, 2]}]
	}`
	require.NoError(t, os.WriteFile(dir+"/m1.json", []byte(content), 0o644))
}

func TestCallRaw_RunsModelDirectly(t *testing.T) {
	pkgID := uuid.New()
	reg := registry.New()
	p, dir := newTestPipeline(t, pkgID, reg)
	writeDescriptor(t, dir)

	inputs := map[string]tensor.Tensor{"x": tensor.FromFloat32([]int{1, 2}, []float32{1, 2})}
	out, err := p.CallRaw(context.Background(), pkgID, "m1", inputs)
	require.NoError(t, err)
	require.Contains(t, out, "y")
}

func TestCall_FullPipeline(t *testing.T) {
	pkgID := uuid.New()
	reg := registry.New()
	p, dir := newTestPipeline(t, pkgID, reg)
	writeDescriptor(t, dir)

	reg.Register(pkgID, registry.Registration{
		FunctionName: "predict",
		ModelName:    "m1",
		InputTransform: func(inputs map[string]any) (registry.TransformResult, error) {
			return registry.TransformResult{
				Tensors: map[string]tensor.Tensor{"x": tensor.FromFloat32([]int{1, 2}, []float32{1, 2})},
				Context: "ctx-value",
			}, nil
		},
		WantsContext: true,
		OutputTransform: func(outputs map[string]tensor.Tensor, ctx any) (any, error) {
			return map[string]any{"ok": true, "ctx": ctx}, nil
		},
	})

	lookup := func(name string) (uuid.UUID, error) { return pkgID, nil }
	result, err := p.Call(context.Background(), lookup, "pkg", "predict", map[string]any{})
	require.NoError(t, err)
	m, ok := result.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "ctx-value", m["ctx"])
}

func TestCall_MissingFunction(t *testing.T) {
	pkgID := uuid.New()
	reg := registry.New()
	p, _ := newTestPipeline(t, pkgID, reg)
	lookup := func(name string) (uuid.UUID, error) { return pkgID, nil }

	_, err := p.Call(context.Background(), lookup, "pkg", "nope", map[string]any{})
	require.Error(t, err)
	require.Equal(t, apierr.MissingFunction, apierr.As(err).Kind)
}

func TestCall_InputTransformErrorBecomesPackageError(t *testing.T) {
	pkgID := uuid.New()
	reg := registry.New()
	p, _ := newTestPipeline(t, pkgID, reg)

	reg.Register(pkgID, registry.Registration{
		FunctionName: "predict",
		ModelName:    "m1",
		InputTransform: func(inputs map[string]any) (registry.TransformResult, error) {
			return registry.TransformResult{}, errors.New("boom")
		},
		OutputTransform: func(outputs map[string]tensor.Tensor, ctx any) (any, error) { return nil, nil },
	})
	lookup := func(name string) (uuid.UUID, error) { return pkgID, nil }

	_, err := p.Call(context.Background(), lookup, "pkg", "predict", map[string]any{})
	require.Error(t, err)
	require.Equal(t, apierr.PackageError, apierr.As(err).Kind)
}

func TestCall_ValidationErrorOnMissingSchemaField(t *testing.T) {
	pkgID := uuid.New()
	reg := registry.New()
	p, _ := newTestPipeline(t, pkgID, reg)

	reg.Register(pkgID, registry.Registration{
		FunctionName: "predict",
		ModelName:    "m1",
		InputSchema:  map[string]string{"text": "string"},
		InputTransform: func(inputs map[string]any) (registry.TransformResult, error) {
			return registry.TransformResult{}, nil
		},
		OutputTransform: func(outputs map[string]tensor.Tensor, ctx any) (any, error) { return nil, nil },
	})
	lookup := func(name string) (uuid.UUID, error) { return pkgID, nil }

	_, err := p.Call(context.Background(), lookup, "pkg", "predict", map[string]any{})
	require.Error(t, err)
	require.Equal(t, apierr.ValidationError, apierr.As(err).Kind)
}

func TestCall_CancelledContext(t *testing.T) {
	pkgID := uuid.New()
	reg := registry.New()
	p, _ := newTestPipeline(t, pkgID, reg)
	reg.Register(pkgID, registry.Registration{
		FunctionName:    "predict",
		ModelName:       "m1",
		InputTransform:  func(inputs map[string]any) (registry.TransformResult, error) { return registry.TransformResult{}, nil },
		OutputTransform: func(outputs map[string]tensor.Tensor, ctx any) (any, error) { return nil, nil },
	})
	lookup := func(name string) (uuid.UUID, error) { return pkgID, nil }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Call(ctx, lookup, "pkg", "predict", map[string]any{})
	require.Error(t, err)
	require.Equal(t, apierr.JobInterrupted, apierr.As(err).Kind)
}
