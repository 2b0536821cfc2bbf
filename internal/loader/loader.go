// Package loader implements spec.md §4.5's handler loader: it executes a
// package's handler module under a process-wide single-loader discipline so
// the module's function registrations are unambiguously attributed.
package loader

import (
	"os"
	"plugin"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/neurod/internal/platform/apierr"
	"github.com/yungbote/neurod/internal/registry"
)

// PackageContext is the explicit capability handed to a handler module's
// entrypoint, per spec.md §9's design note: "(a) an explicit PackageContext
// passed to the handler's entrypoint." It identifies the package currently
// loading so the module's Register calls attribute correctly, without
// relying on an implicit global the handler code must discover on its own.
type PackageContext struct {
	PackageID uuid.UUID
	registry  *registry.Registry
}

// Register forwards a function registration to the daemon's registry,
// attributing it to the package currently loading. First registration per
// (package, fn_name) wins; duplicates are ignored, matching spec.md §4.6.
func (pc *PackageContext) Register(reg registry.Registration) {
	pc.registry.Register(pc.PackageID, reg)
}

// Loader serializes concurrent activate calls through a single mutex, per
// spec.md §4.5: "exactly one package is loading at any instant."
type Loader struct {
	mu       sync.Mutex
	registry *registry.Registry
}

func New(reg *registry.Registry) *Loader {
	return &Loader{registry: reg}
}

// entrypointSymbol is the exported symbol name a handler module's plugin
// must provide: func Register(ctx *loader.PackageContext).
const entrypointSymbol = "Register"

// symbolLookup is the slice of *plugin.Plugin's method set Load actually
// needs. Exercising the missing-symbol and wrong-signature failure paths
// doesn't require compiling a real .so: tests substitute openPlugin with a
// fake implementing this interface.
type symbolLookup interface {
	Lookup(symName string) (plugin.Symbol, error)
}

var openPlugin = func(path string) (symbolLookup, error) {
	return plugin.Open(path)
}

// Load opens the module at modulePath (a Go plugin built from the
// manifest's `module` entry) and invokes its Register entrypoint with a
// PackageContext naming packageID, after chdir'ing into installDir so
// relative paths inside the handler resolve against the package's own
// files. The working directory is restored on every exit path.
func (l *Loader) Load(packageID uuid.UUID, installDir, modulePath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cwd, err := os.Getwd()
	if err != nil {
		return apierr.Wrap(apierr.PackageInstallError, err)
	}
	if err := os.Chdir(installDir); err != nil {
		return apierr.Wrap(apierr.PackageInstallError, err)
	}
	defer func() { _ = os.Chdir(cwd) }()

	p, err := openPlugin(modulePath)
	if err != nil {
		return apierr.New(apierr.PackageInstallError, err.Error(), nil)
	}
	sym, err := p.Lookup(entrypointSymbol)
	if err != nil {
		return apierr.New(apierr.PackageInstallError, "handler module has no Register entrypoint", nil)
	}
	entry, ok := sym.(func(*PackageContext))
	if !ok {
		return apierr.New(apierr.PackageInstallError, "handler module's Register has the wrong signature", nil)
	}

	ctx := &PackageContext{PackageID: packageID, registry: l.registry}
	return l.runHandler(ctx, entry)
}

// runHandler invokes the module's Register function, converting a panic
// (the Go analogue of an uncaught Python exception from module-load side
// effects) into PackageInstallError, per spec.md §4.5's failure policy.
func (l *Loader) runHandler(ctx *PackageContext, entry func(*PackageContext)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apierr.New(apierr.PackageInstallError, "handler module panicked during load", map[string]any{"panic": r})
		}
	}()
	entry(ctx)
	return nil
}
