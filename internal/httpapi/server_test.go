package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurod/internal/catalog"
	"github.com/yungbote/neurod/internal/config"
	"github.com/yungbote/neurod/internal/downloader"
	"github.com/yungbote/neurod/internal/engine"
	"github.com/yungbote/neurod/internal/engine/mock"
	"github.com/yungbote/neurod/internal/installer"
	"github.com/yungbote/neurod/internal/loader"
	"github.com/yungbote/neurod/internal/pipeline"
	"github.com/yungbote/neurod/internal/platform/logger"
	"github.com/yungbote/neurod/internal/registry"
	"github.com/yungbote/neurod/internal/repository"
	"github.com/yungbote/neurod/internal/resultfile"
	"github.com/yungbote/neurod/internal/scheduler"
	"github.com/yungbote/neurod/internal/storage"
	"github.com/yungbote/neurod/internal/tensor"
)

type modelLookupAdapter struct {
	cat    *catalog.Catalog
	layout *storage.Layout
}

func (a modelLookupAdapter) ModelByPackageAndName(packageID uuid.UUID, name string) (catalog.Model, error) {
	sess := a.cat.Session()
	defer sess.Rollback()
	return sess.ModelByPackageAndName(packageID, name)
}

func (a modelLookupAdapter) InstallDirFor(packageID uuid.UUID) string {
	sess := a.cat.Session()
	defer sess.Rollback()
	pkg, err := sess.PackageByID(packageID)
	if err != nil {
		return ""
	}
	return a.layout.InstallDir(pkg.InstallPath)
}

// engineCacheAdapter adapts *engine.Cache to pipeline.SessionSource.
type engineCacheAdapter struct{ c *engine.Cache }

func (a engineCacheAdapter) Get(ctx context.Context, path string) (engine.Session, error) {
	return a.c.Get(ctx, path)
}

func newTestServer(t *testing.T) (*httptest.Server, *catalog.Catalog, *storage.Layout, *registry.Registry) {
	t.Helper()

	root := t.TempDir()
	layout, err := storage.New(root)
	require.NoError(t, err)

	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared"
	cat, err := catalog.Open(dsn)
	require.NoError(t, err)

	reg := registry.New()
	ldr := loader.New(reg)
	mockEngine := mock.New()

	models := modelLookupAdapter{cat: cat, layout: layout}
	sessions := engineCacheAdapter{c: engine.NewCache(mockEngine, time.Minute, 8)}
	pl := pipeline.New(reg, models, sessions)

	inst := installer.New(layout, ldr)
	dl := downloader.New(layout, nil)
	results := resultfile.New(layout)
	repo := repository.New("", nil)

	log, err := logger.New("development")
	require.NoError(t, err)

	sch := scheduler.New(4, 64, 200*time.Millisecond, func() (scheduler.Session, error) {
		return cat.Session(), nil
	}, nil)
	sch.Start()
	t.Cleanup(sch.Stop)

	cfg := &config.Config{HTTP: config.HTTPConfig{MaxRequestBytes: 1 << 20}}

	h := NewHandler(Deps{
		Config:     cfg,
		Logger:     log,
		Scheduler:  sch,
		Pipeline:   pl,
		Catalog:    cat,
		Installer:  inst,
		Downloader: dl,
		Loader:     ldr,
		Registry:   reg,
		Results:    results,
		Repository: repo,
		Layout:     layout,
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, cat, layout, reg
}

func TestHeartbeat(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "neurod", body["service"])
}

func TestHealthz(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAsyncGet_UnknownJob(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/async/get/deadbeef")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPackageFetchWithoutActivating(t *testing.T) {
	srv, _, layout, _ := newTestServer(t)

	stageDir := t.TempDir()
	require.NoError(t, installer.WriteMetaForTest(stageDir, installer.Manifest{
		Name:    "greeter",
		Module:  "handler.so",
		Version: "1.0.0",
		Model: map[string]installer.ModelEntry{
			"m1": {Type: "json", File: "clf.json"},
		},
	}))
	require.NoError(t, os.WriteFile(filepath.Join(stageDir, "handler.so"), []byte("stub"), 0o644))
	descriptor := `{"inputs":[{"name":"x","dtype":"float32","shape":[1]}],"outputs":[{"name":"y","dtype":"float32","shape":[1]}]}`
	require.NoError(t, os.WriteFile(filepath.Join(stageDir, "clf.json"), []byte(descriptor), 0o644))

	body, err := json.Marshal(map[string]string{"localfile": stageDir})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/package/fetch", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetchResult map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fetchResult))
	require.NotEmpty(t, fetchResult["package_id"])
	require.Equal(t, false, fetchResult["activated"])

	_, err = os.Stat(layout.InstallDir(fetchResult["install_id"].(string)))
	require.NoError(t, err)
}

func TestPackageFetch_RejectsAmbiguousBody(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	body, err := json.Marshal(map[string]string{"name": "x", "localfile": "/tmp/y"})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/package/fetch", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAsyncRunAndCancel(t *testing.T) {
	srv, cat, _, reg := newTestServer(t)

	pkgID := uuid.New()
	sess := cat.Session()
	require.NoError(t, sess.InsertPackage(&catalog.Package{ID: pkgID, Name: "slowpkg", Version: "1.0.0", Active: true, InstallPath: "install-1"}))
	require.NoError(t, sess.Commit())

	started := make(chan struct{})
	release := make(chan struct{})
	reg.Register(pkgID, registryRegistrationThatBlocks(started, release))

	resp, err := http.Post(srv.URL+"/async/run/slowpkg/slow", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var desc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&desc))
	uid, _ := desc["uid"].(string)
	require.NotEmpty(t, uid)

	<-started
	cancelResp, err := http.Get(srv.URL + "/async/cancel/" + uid)
	require.NoError(t, err)
	defer cancelResp.Body.Close()
	require.Equal(t, http.StatusOK, cancelResp.StatusCode)
	close(release)

	require.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/async/get/" + uid)
		require.NoError(t, err)
		defer r.Body.Close()
		var d map[string]any
		_ = json.NewDecoder(r.Body).Decode(&d)
		return d["status"] == "Interrupted"
	}, time.Second, 10*time.Millisecond)
}

func registryRegistrationThatBlocks(started, release chan struct{}) registry.Registration {
	return registry.Registration{
		FunctionName: "slow",
		ModelName:    "slow",
		InputTransform: func(inputs map[string]any) (registry.TransformResult, error) {
			close(started)
			<-release
			return registry.TransformResult{Tensors: map[string]tensor.Tensor{}}, nil
		},
		OutputTransform: func(outputs map[string]tensor.Tensor, ctx any) (any, error) {
			return map[string]any{}, nil
		},
	}
}
