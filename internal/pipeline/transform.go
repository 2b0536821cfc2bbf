package pipeline

import (
	"github.com/yungbote/neurod/internal/platform/apierr"
	"github.com/yungbote/neurod/internal/registry"
	"github.com/yungbote/neurod/internal/tensor"
)

// runInputTransform calls handler.InputTransform, converting a panic or a
// non-daemon error into PackageError per spec.md §4.7 step 3's error
// discipline. Step 4's "every value is a tensor, every key a string" is
// enforced for free by TransformResult.Tensors's Go type.
func runInputTransform(handler registry.Registration, inputs map[string]any) (result registry.TransformResult, err error) {
	if handler.InputTransform == nil {
		return registry.TransformResult{}, apierr.New(apierr.PackageError, "handler "+handler.FunctionName+" has no input_transform registered", nil)
	}
	defer func() {
		if r := recover(); r != nil {
			err = apierr.New(apierr.PackageError, "input_transform panicked", map[string]any{"panic": r})
		}
	}()
	result, err = handler.InputTransform(inputs)
	if err != nil {
		err = asHandlerError(err)
	}
	return result, err
}

// runOutputTransform calls handler.OutputTransform, forwarding ctx only if
// the registration recorded that the transform wants it (spec.md §9's
// register-time arity decision).
func runOutputTransform(handler registry.Registration, outputs map[string]tensor.Tensor, ctx any) (result any, err error) {
	if handler.OutputTransform == nil {
		return nil, apierr.New(apierr.PackageError, "handler "+handler.FunctionName+" has no output_transform registered", nil)
	}
	defer func() {
		if r := recover(); r != nil {
			err = apierr.New(apierr.PackageError, "output_transform panicked", map[string]any{"panic": r})
		}
	}()
	if handler.WantsContext {
		result, err = handler.OutputTransform(outputs, ctx)
	} else {
		result, err = handler.OutputTransform(outputs, nil)
	}
	if err != nil {
		err = asHandlerError(err)
	}
	return result, err
}

// asHandlerError preserves an already-typed daemon error, otherwise wraps
// err as PackageError, per spec.md §4.7's "exceptions from the transform
// (other than daemon errors) become PackageError."
func asHandlerError(err error) error {
	if ae, ok := err.(*apierr.Error); ok {
		return ae
	}
	return apierr.New(apierr.PackageError, err.Error(), nil)
}
