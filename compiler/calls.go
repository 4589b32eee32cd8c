package compiler

import (
	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/pkg/bytecode"
	"github.com/chazu/garnet/pkg/types"
)

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (c *Compiler) argTypes(args []ast.Node) []*types.Type {
	out := make([]*types.Type, len(args))
	for i, a := range args {
		out[i] = c.typeOf(a)
	}
	return out
}

func (c *Compiler) call(n *ast.Call, expression bool) error {
	target := c.typeOf(n.Target)
	m, err := c.reg.FindMethod(target, n.Name, c.argTypes(n.Args))
	if err != nil {
		return lookupError(n, err)
	}
	return c.invoke(n, m, n.Target, n.Args, expression)
}

// functionalCall calls a method on the implicit receiver. In an instance
// method a static method of the class is found too.
func (c *Compiler) functionalCall(n *ast.FunctionalCall, expression bool) error {
	f := c.frame()
	self := f.typ
	if f.static {
		self = self.Meta()
	}
	args := c.argTypes(n.Args)
	m, err := c.reg.FindMethod(self, n.Name, args)
	if err != nil && !self.IsMeta() {
		if sm, serr := c.reg.FindMethod(self.Meta(), n.Name, args); serr == nil {
			m, err = sm, nil
		}
	}
	if err != nil {
		return lookupError(n, err)
	}
	return c.invoke(n, m, nil, n.Args, expression)
}

func (c *Compiler) super(n *ast.Super, expression bool) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	f := c.frame()
	def := c.tree.Method(n)
	if def == nil || f.static {
		return structural(n, "super outside of an instance method")
	}
	super := f.typ.Superclass()
	if super == nil {
		return structural(n, "%s has no superclass", f.typ)
	}

	var args []*types.Type
	var names []string
	if n.Bare {
		names = def.Def().Args.Names()
		for _, name := range names {
			args = append(args, c.localType(n, name))
		}
	} else {
		args = c.argTypes(n.Args)
	}
	m, err := c.reg.FindMethod(super, def.NodeName(), args)
	if err != nil {
		return lookupError(n, err)
	}

	mb.Load("self", 0)
	if n.Bare {
		for i, name := range names {
			slot, _ := mb.Local(name)
			mb.Load(args[i].Descriptor(), slot)
			widen(mb, args[i], m.Params[i])
		}
	} else if err := c.arguments(n.Args, m.Params); err != nil {
		return err
	}
	mb.Invoke(bytecode.OpInvokeSpecial, m.Owner.Descriptor(), m.Name, m.Descriptor())
	return c.discard(mb, m.Return, expression)
}

func (c *Compiler) arguments(args []ast.Node, params []*types.Type) error {
	for i, a := range args {
		if err := c.compileAs(a, params[i]); err != nil {
			return err
		}
	}
	return nil
}

// discard drops a call's result when it is not wanted.
func (c *Compiler) discard(mb *bytecode.MethodBuilder, ret *types.Type, expression bool) error {
	if !expression && !ret.IsVoid() && !ret.IsUnreachable() {
		mb.Emit(bytecode.OpPop)
	}
	return nil
}

// invoke emits a call of m. A nil target means the implicit receiver.
func (c *Compiler) invoke(n ast.Node, m *types.MethodType, target ast.Node, args []ast.Node, expression bool) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	switch m.Kind {
	case types.MethodIntrinsic:
		return c.intrinsic(n, m, target, args, expression)

	case types.MethodConstructor:
		owner := m.Owner.Descriptor()
		mb.TypeInsn(bytecode.OpNew, owner)
		if expression {
			mb.Emit(bytecode.OpDup)
		}
		if err := c.arguments(args, m.Params); err != nil {
			return err
		}
		mb.Invoke(bytecode.OpInvokeSpecial, owner, types.ConstructorName, m.Descriptor())
		return nil

	case types.MethodStatic:
		switch target.(type) {
		case nil, *ast.Constant, *ast.Self:
		default:
			if err := c.compile(target, false); err != nil {
				return err
			}
		}
		if err := c.arguments(args, m.Params); err != nil {
			return err
		}
		mb.Invoke(bytecode.OpInvokeStatic, m.Owner.Descriptor(), m.Name, m.Descriptor())
		return c.discard(mb, m.Return, expression)
	}

	if target == nil {
		if c.frame().static {
			return structural(n, "instance method %s called from a static context", m.Name)
		}
		mb.Load("self", 0)
	} else if err := c.compile(target, true); err != nil {
		return err
	}
	if err := c.arguments(args, m.Params); err != nil {
		return err
	}
	op := bytecode.OpInvokeVirtual
	if m.Kind == types.MethodInterface {
		op = bytecode.OpInvokeInterface
	}
	mb.Invoke(op, m.Owner.Descriptor(), m.Name, m.Descriptor())
	return c.discard(mb, m.Return, expression)
}

// ---------------------------------------------------------------------------
// Intrinsics
// ---------------------------------------------------------------------------

// arithmetic opcodes indexed by operand kind: int, long, float, double.
var arithOps = map[types.Intrinsic][4]bytecode.Opcode{
	types.OpAdd: {bytecode.OpIAdd, bytecode.OpLAdd, bytecode.OpFAdd, bytecode.OpDAdd},
	types.OpSub: {bytecode.OpISub, bytecode.OpLSub, bytecode.OpFSub, bytecode.OpDSub},
	types.OpMul: {bytecode.OpIMul, bytecode.OpLMul, bytecode.OpFMul, bytecode.OpDMul},
	types.OpDiv: {bytecode.OpIDiv, bytecode.OpLDiv, bytecode.OpFDiv, bytecode.OpDDiv},
	types.OpRem: {bytecode.OpIRem, bytecode.OpLRem, bytecode.OpFRem, bytecode.OpDRem},
	types.OpNeg: {bytecode.OpINeg, bytecode.OpLNeg, bytecode.OpFNeg, bytecode.OpDNeg},
}

// numericIndex maps a numeric kind to its slot in arithOps.
func numericIndex(k types.Kind) int {
	switch k {
	case types.KindLong:
		return 1
	case types.KindFloat:
		return 2
	case types.KindDouble:
		return 3
	}
	return 0
}

func (c *Compiler) intrinsic(n ast.Node, m *types.MethodType, target ast.Node, args []ast.Node, expression bool) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	if m.Op.IsComparison() {
		if !expression {
			if err := c.compile(target, false); err != nil {
				return err
			}
			return c.compile(args[0], false)
		}
		return c.booleanValue(n)
	}

	switch m.Op {
	case types.OpAdd, types.OpSub, types.OpMul, types.OpDiv, types.OpRem, types.OpNeg:
		if err := c.compileAs(target, m.Owner); err != nil {
			return err
		}
		if err := c.arguments(args, m.Params); err != nil {
			return err
		}
		mb.Emit(arithOps[m.Op][numericIndex(m.Owner.Kind())])
	case types.OpConcat:
		if err := c.compile(target, true); err != nil {
			return err
		}
		if err := c.compile(args[0], true); err != nil {
			return err
		}
		mb.Concat(c.typeOf(args[0]).Descriptor())
	case types.OpArrayLength:
		if err := c.compile(target, true); err != nil {
			return err
		}
		mb.Emit(bytecode.OpArrayLength)
	case types.OpArrayLoad:
		if err := c.compile(target, true); err != nil {
			return err
		}
		if err := c.arguments(args, m.Params); err != nil {
			return err
		}
		mb.ArrayLoad(m.Return.Descriptor())
	case types.OpArrayStore:
		if err := c.compile(target, true); err != nil {
			return err
		}
		if err := c.arguments(args, m.Params); err != nil {
			return err
		}
		mb.ArrayStore(m.Params[1].Descriptor())
		return nil
	default:
		return structural(n, "unsupported operator %s", m.Name)
	}
	return c.discard(mb, m.Return, expression)
}

// comparison returns the intrinsic comparison n calls, if any.
func (c *Compiler) comparison(n ast.Node) (*ast.Call, *types.MethodType) {
	call, ok := n.(*ast.Call)
	if !ok {
		return nil, nil
	}
	m, err := c.reg.FindMethod(c.typeOf(call.Target), call.Name, c.argTypes(call.Args))
	if err != nil || m.Kind != types.MethodIntrinsic || !m.Op.IsComparison() {
		return nil, nil
	}
	return call, m
}

var (
	// jumps taken when two ints compare by the operator
	icmpJumps = map[types.Intrinsic]bytecode.Opcode{
		types.OpEq: bytecode.OpIfICmpEq, types.OpNe: bytecode.OpIfICmpNe,
		types.OpLt: bytecode.OpIfICmpLt, types.OpGe: bytecode.OpIfICmpGe,
		types.OpGt: bytecode.OpIfICmpGt, types.OpLe: bytecode.OpIfICmpLe,
	}
	// jumps taken when a three-way comparison result satisfies the operator
	zeroJumps = map[types.Intrinsic]bytecode.Opcode{
		types.OpEq: bytecode.OpIfEq, types.OpNe: bytecode.OpIfNe,
		types.OpLt: bytecode.OpIfLt, types.OpGe: bytecode.OpIfGe,
		types.OpGt: bytecode.OpIfGt, types.OpLe: bytecode.OpIfLe,
	}
	negated = map[types.Intrinsic]types.Intrinsic{
		types.OpEq: types.OpNe, types.OpNe: types.OpEq,
		types.OpLt: types.OpGe, types.OpGe: types.OpLt,
		types.OpGt: types.OpLe, types.OpLe: types.OpGt,
	}
)

// compare emits a comparison that jumps to target when its outcome equals
// when. NaN operands make every comparison but != false.
func (c *Compiler) compare(call *ast.Call, m *types.MethodType, target *bytecode.Label, when bool) error {
	mb, err := c.method(call)
	if err != nil {
		return err
	}
	if err := c.compileAs(call.Target, m.Owner); err != nil {
		return err
	}
	if err := c.compileAs(call.Args[0], m.Params[0]); err != nil {
		return err
	}
	op := m.Op
	if !when {
		op = negated[op]
	}
	// NaN must land on the false side: the G variants push 1 and the L
	// variants -1.
	gt := m.Op == types.OpLt || m.Op == types.OpLe
	switch m.Owner.Kind() {
	case types.KindLong:
		mb.Emit(bytecode.OpLCmp)
		mb.Jump(zeroJumps[op], target)
	case types.KindFloat:
		if gt {
			mb.Emit(bytecode.OpFCmpG)
		} else {
			mb.Emit(bytecode.OpFCmpL)
		}
		mb.Jump(zeroJumps[op], target)
	case types.KindDouble:
		if gt {
			mb.Emit(bytecode.OpDCmpG)
		} else {
			mb.Emit(bytecode.OpDCmpL)
		}
		mb.Jump(zeroJumps[op], target)
	case types.KindReference:
		if op == types.OpEq {
			mb.Jump(bytecode.OpIfACmpEq, target)
		} else {
			mb.Jump(bytecode.OpIfACmpNe, target)
		}
	default:
		mb.Jump(icmpJumps[op], target)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Print and raise
// ---------------------------------------------------------------------------

// print writes each value through the runtime's out stream. The last value
// of a println uses println; a println without values prints a newline.
func (c *Compiler) print(n *ast.Print) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	stream := c.reg.Lookup(types.PrintStreamName)
	out := func() {
		mb.FieldInsn(bytecode.OpGetStatic, types.SystemName, "out", types.PrintStreamName)
	}
	if len(n.Values) == 0 {
		if n.Newline {
			out()
			mb.Invoke(bytecode.OpInvokeVirtual, types.PrintStreamName, "println", "()void")
		}
		return nil
	}
	for i, v := range n.Values {
		name := "print"
		if n.Newline && i == len(n.Values)-1 {
			name = "println"
		}
		m, err := c.reg.FindMethod(stream, name, []*types.Type{c.typeOf(v)})
		if err != nil {
			return lookupError(v, err)
		}
		out()
		if err := c.compileAs(v, m.Params[0]); err != nil {
			return err
		}
		mb.Invoke(bytecode.OpInvokeVirtual, types.PrintStreamName, name, m.Descriptor())
	}
	return nil
}

// raise throws the value; a string is wrapped in a RuntimeException.
func (c *Compiler) raise(n *ast.Raise) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	if n.Value == nil {
		return structural(n, "raise needs an exception")
	}
	str := c.reg.String()
	if c.typeOf(n.Value).Equal(str) {
		rte := c.reg.Lookup(types.RuntimeExcName)
		mb.TypeInsn(bytecode.OpNew, rte.Descriptor())
		mb.Emit(bytecode.OpDup)
		if err := c.compile(n.Value, true); err != nil {
			return err
		}
		mb.Invoke(bytecode.OpInvokeSpecial, rte.Descriptor(), types.ConstructorName, types.Descriptor(nil, []*types.Type{str}))
	} else if err := c.compile(n.Value, true); err != nil {
		return err
	}
	mb.Emit(bytecode.OpAThrow)
	return nil
}
