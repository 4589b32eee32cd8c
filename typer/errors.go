package typer

import (
	"fmt"

	"github.com/chazu/garnet/pkg/ast"
)

// InferenceError reports a node whose type conflicts with a declared
// constraint or could not be determined. Err holds the reason an
// unresolved node was waiting, such as a *types.OverloadError.
type InferenceError struct {
	Node     ast.Node
	Position ast.Position
	Message  string
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Position, e.Message)
}

func (e *InferenceError) Unwrap() error { return e.Err }
