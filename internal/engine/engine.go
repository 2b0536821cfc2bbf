// Package engine defines the adapter boundary between the daemon and a
// neural-network runtime, generalized from the teacher's chat-completion
// shaped Engine interface into spec.md §4.8's session-per-model shape.
package engine

import (
	"context"

	"github.com/yungbote/neurod/internal/tensor"
)

// IOSpec describes one named tensor slot a loaded model declares, either
// as an input it accepts or an output it can produce.
type IOSpec struct {
	Name  string
	DType tensor.DType
	Shape []int
}

// Session is one loaded model, opened from a file on disk. The real
// tensor runtime behind Session is out of scope (spec.md §1): the daemon
// only needs Inputs/Outputs/Run and a Close to release native resources.
type Session interface {
	Inputs() []IOSpec
	Outputs() []IOSpec
	// Run executes the loaded model, producing the named outputs from the
	// supplied named inputs.
	Run(ctx context.Context, outputNames []string, inputs map[string]tensor.Tensor) (map[string]tensor.Tensor, error)
	Close() error
}

// Engine opens model sessions from file paths. internal/engine/mock is the
// only adapter shipped, matching spec.md §1's framing of the real runtime
// as an opaque out-of-scope collaborator.
type Engine interface {
	OpenSession(ctx context.Context, path string) (Session, error)
}
