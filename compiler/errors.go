package compiler

import (
	"fmt"

	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/pkg/types"
)

// CastError reports a conversion the target format cannot express:
// primitive to reference, reference to primitive, or boolean to number.
type CastError struct {
	Node     ast.Node
	Position ast.Position
	From, To *types.Type
}

func (e *CastError) Error() string {
	return fmt.Sprintf("%s: cannot cast %s to %s", e.Position, e.From, e.To)
}

// StructuralError reports a tree the compiler cannot lower, such as a
// non-boolean condition or code where only definitions are allowed.
type StructuralError struct {
	Node     ast.Node
	Position ast.Position
	Message  string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %s", e.Position, e.Message)
}

func structural(n ast.Node, format string, args ...any) error {
	return &StructuralError{Node: n, Position: n.Pos(), Message: fmt.Sprintf(format, args...)}
}

// lookupError places a failed method lookup at the call site.
func lookupError(n ast.Node, err error) error {
	return fmt.Errorf("%s: %w", n.Pos(), err)
}
