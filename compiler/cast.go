package compiler

import (
	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/pkg/bytecode"
	"github.com/chazu/garnet/pkg/types"
)

// conversions between the stack kinds int, long, float and double, indexed
// like arithOps.
var conversions = [4][4]bytecode.Opcode{
	{bytecode.OpNop, bytecode.OpI2L, bytecode.OpI2F, bytecode.OpI2D},
	{bytecode.OpL2I, bytecode.OpNop, bytecode.OpL2F, bytecode.OpL2D},
	{bytecode.OpF2I, bytecode.OpF2L, bytecode.OpNop, bytecode.OpF2D},
	{bytecode.OpD2I, bytecode.OpD2L, bytecode.OpD2F, bytecode.OpNop},
}

// narrowing truncates an int to the sub-int kinds.
var narrowing = map[types.Kind]bytecode.Opcode{
	types.KindByte:  bytecode.OpI2B,
	types.KindShort: bytecode.OpI2S,
	types.KindChar:  bytecode.OpI2C,
}

// stackConvert emits the conversion between the stack kinds carrying from
// and to, if they differ.
func stackConvert(mb *bytecode.MethodBuilder, from, to *types.Type) {
	if op := conversions[numericIndex(from.Kind())][numericIndex(to.Kind())]; op != bytecode.OpNop {
		mb.Emit(op)
	}
}

// widen converts a value of type from already on the stack so it can be
// used where to is expected. Only numeric values change representation.
func widen(mb *bytecode.MethodBuilder, from, to *types.Type) {
	if from == nil || to == nil || !from.IsNumeric() || !to.IsNumeric() {
		return
	}
	stackConvert(mb, from, to)
}

func (c *Compiler) cast(n *ast.Cast, typ *types.Type, expression bool) error {
	if !expression {
		return c.compile(n.Value, false)
	}
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	if err := c.compile(n.Value, true); err != nil {
		return err
	}
	from := c.typeOf(n.Value)
	switch {
	case from.Equal(typ), from.IsUnreachable():
	case from.IsNumeric() && typ.IsNumeric():
		stackConvert(mb, from, typ)
		if op, ok := narrowing[typ.Kind()]; ok {
			mb.Emit(op)
		}
	case from.Kind() == types.KindBoolean && typ.Kind() == types.KindBoolean:
	case from.IsReference() && typ.IsReference():
		if !typ.IsParent(from) {
			mb.TypeInsn(bytecode.OpCheckCast, typ.Descriptor())
		}
	default:
		return &CastError{Node: n, Position: n.Pos(), From: from, To: typ}
	}
	return nil
}
