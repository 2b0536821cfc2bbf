// Package app wires every component together: config, catalog, storage
// layout, the download/install/load pipeline, the scheduler, and the HTTP
// surface. Grounded on the teacher's internal/inference/app/app.go.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yungbote/neurod/internal/catalog"
	"github.com/yungbote/neurod/internal/config"
	"github.com/yungbote/neurod/internal/downloader"
	"github.com/yungbote/neurod/internal/engine"
	"github.com/yungbote/neurod/internal/engine/mock"
	"github.com/yungbote/neurod/internal/httpapi"
	"github.com/yungbote/neurod/internal/installer"
	"github.com/yungbote/neurod/internal/loader"
	"github.com/yungbote/neurod/internal/pipeline"
	"github.com/yungbote/neurod/internal/platform/logger"
	"github.com/yungbote/neurod/internal/registry"
	"github.com/yungbote/neurod/internal/repository"
	"github.com/yungbote/neurod/internal/resultfile"
	"github.com/yungbote/neurod/internal/scheduler"
	"github.com/yungbote/neurod/internal/storage"

	"github.com/google/uuid"
)

// catalogModelLookup adapts *catalog.Catalog to pipeline.ModelLookup,
// opening a short-lived read-only session per lookup.
type catalogModelLookup struct {
	cat    *catalog.Catalog
	layout *storage.Layout
}

func (l catalogModelLookup) ModelByPackageAndName(packageID uuid.UUID, name string) (catalog.Model, error) {
	sess := l.cat.Session()
	defer sess.Rollback()
	return sess.ModelByPackageAndName(packageID, name)
}

func (l catalogModelLookup) InstallDirFor(packageID uuid.UUID) string {
	sess := l.cat.Session()
	defer sess.Rollback()
	pkg, err := sess.PackageByID(packageID)
	if err != nil {
		return ""
	}
	return l.layout.InstallDir(pkg.InstallPath)
}

type App struct {
	Log    *logger.Logger
	Config *config.Config

	catalog   *catalog.Catalog
	scheduler *scheduler.Scheduler
	server    *http.Server
}

// catalogSessionOpener opens a *catalog.Session as each job's
// scheduler.Session, letting the scheduler commit/roll back the worker's
// catalog transaction without importing internal/catalog.
type catalogSessionOpener struct {
	cat *catalog.Catalog
}

func (o catalogSessionOpener) open() (scheduler.Session, error) {
	return o.cat.Session(), nil
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	layout, err := storage.New(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("init storage layout: %w", err)
	}

	cat, err := catalog.Open(layout.CatalogDB())
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	reg := registry.New()
	ldr := loader.New(reg)
	inst := installer.New(layout, ldr)
	dl := downloader.New(layout, nil)
	repo := repository.New(cfg.RepositoryURL, nil)
	results := resultfile.New(layout)

	mockEngine := mock.New()
	cache := engine.NewCache(mockEngine, cfg.Engine.SessionCacheTTL.Duration, cfg.Scheduler.WorkerCount)

	models := catalogModelLookup{cat: cat, layout: layout}
	pl := pipeline.New(reg, models, cache)

	promReg := prometheus.DefaultRegisterer
	metrics := scheduler.NewMetrics(promReg)
	opener := catalogSessionOpener{cat: cat}
	sch := scheduler.New(cfg.Scheduler.WorkerCount, cfg.Scheduler.QueueCapacity, cfg.Scheduler.CacheHoldTime.Duration, opener.open, metrics)

	handler := httpapi.NewHandler(httpapi.Deps{
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

	srv := httpapi.NewServer(cfg, log, handler)

	return &App{
		Log:       log,
		Config:    cfg,
		catalog:   cat,
		scheduler: sch,
		server:    srv,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start()
	defer a.scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	a.Log.Info("neurod listening", "addr", a.Config.HTTP.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout.Duration)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
