// Package registry implements spec.md §4.6's function registry: the
// in-memory map from (package_id, function_name) to a handler record,
// resolved at call time against the catalog's notion of "active."
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/neurod/internal/platform/apierr"
	"github.com/yungbote/neurod/internal/tensor"
)

// TransformResult is the tagged-sum return shape from an input transform,
// per spec.md §9: either a plain tensor mapping, or a (mapping, context)
// pair where Context is forwarded opaquely to the output transform.
type TransformResult struct {
	Tensors map[string]tensor.Tensor
	Context any
}

// InputTransform maps raw inputs to named tensors, optionally carrying a
// context value forward to the matching OutputTransform.
type InputTransform func(inputs map[string]any) (TransformResult, error)

// OutputTransform maps named output tensors (and, if WantsContext, the
// input transform's context value) to the call's final JSON result.
type OutputTransform func(outputs map[string]tensor.Tensor, ctx any) (any, error)

// Registration is one function's handler record, grounded on spec.md §3's
// "Function registration (in-memory)" entity.
type Registration struct {
	// PackageID is stamped in by Register; callers constructing a
	// Registration to pass in need not set it.
	PackageID       uuid.UUID
	FunctionName    string
	ModelName       string
	InputTransform  InputTransform
	OutputTransform OutputTransform
	// WantsContext records, at registration time, whether OutputTransform
	// was registered to receive the input transform's context value. Go
	// can't inspect a closure's arity at call time the way the Python
	// original uses inspect.signature, so this is decided once up front.
	WantsContext bool
	InputSchema  map[string]string // field name -> declared type ("tensor", "string", ...)
}

// Registry maps package_id -> function_name -> Registration. Grounded on
// the teacher's sync.RWMutex-guarded Handler registry shape, extended to a
// two-level key per spec.md §4.6.
type Registry struct {
	mu    sync.RWMutex
	byPkg map[uuid.UUID]map[string]Registration
}

func New() *Registry {
	return &Registry{byPkg: make(map[uuid.UUID]map[string]Registration)}
}

// Register adds reg under (packageID, reg.FunctionName). First registration
// wins; duplicates are silently ignored, per spec.md §4.6.
func (r *Registry) Register(packageID uuid.UUID, reg Registration) {
	if reg.FunctionName == "" {
		return
	}
	if reg.ModelName == "" {
		reg.ModelName = reg.FunctionName
	}
	reg.PackageID = packageID
	r.mu.Lock()
	defer r.mu.Unlock()
	fns, ok := r.byPkg[packageID]
	if !ok {
		fns = make(map[string]Registration)
		r.byPkg[packageID] = fns
	}
	if _, exists := fns[reg.FunctionName]; exists {
		return
	}
	fns[reg.FunctionName] = reg
}

// Get looks up a registration by package id and function name directly
// (used once the caller already knows the active package id).
func (r *Registry) Get(packageID uuid.UUID, fnName string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fns, ok := r.byPkg[packageID]
	if !ok {
		return Registration{}, false
	}
	reg, ok := fns[fnName]
	return reg, ok
}

// Clear removes all registrations for a package, per spec.md §4.6's
// "invoked on deactivate/remove."
func (r *Registry) Clear(packageID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byPkg, packageID)
}

// ActivePackageLookup resolves the currently-active package id for a
// package name; implemented by the catalog session in practice.
type ActivePackageLookup func(pkgName string) (uuid.UUID, error)

// ResolveActive implements spec.md §4.6's resolve_active: find the active
// catalog row for pkgName, then the registration under (row.id, fnName).
func (r *Registry) ResolveActive(pkgName, fnName string, lookup ActivePackageLookup) (Registration, error) {
	pkgID, err := lookup(pkgName)
	if err != nil {
		return Registration{}, apierr.New(apierr.MissingFunction, "package "+pkgName+" is not active", nil)
	}
	reg, ok := r.Get(pkgID, fnName)
	if !ok {
		return Registration{}, apierr.New(apierr.MissingFunction, "no such function "+fnName+" on package "+pkgName, nil)
	}
	return reg, nil
}
