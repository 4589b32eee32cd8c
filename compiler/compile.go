package compiler

import (
	"math"

	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/pkg/bytecode"
	"github.com/chazu/garnet/pkg/types"
)

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func (c *Compiler) typeOf(n ast.Node) *types.Type {
	return c.typer.TypeOf(n.ID())
}

// compile emits n. A void node asked for a value is compiled as a statement
// followed by null. Jumps leave nothing, since control never continues past
// them.
func (c *Compiler) compile(n ast.Node, expression bool) error {
	if script, ok := n.(*ast.Script); ok {
		return c.defineMain(script.Body)
	}
	typ := c.typeOf(n)
	if typ == nil {
		return structural(n, "%s has no inferred type", ast.Kind(n))
	}
	if f := c.frame(); f != nil && f.method != nil {
		f.method.Line(n.Pos().Line)
	}
	if terminal(n) {
		expression = false
	}
	if expression && typ.IsVoid() {
		if err := c.compileNode(n, typ, false); err != nil {
			return err
		}
		mb, err := c.method(n)
		if err != nil {
			return err
		}
		mb.Emit(bytecode.OpAConstNull)
		return nil
	}
	return c.compileNode(n, typ, expression)
}

// compileAs compiles n for its value and widens it to want.
func (c *Compiler) compileAs(n ast.Node, want *types.Type) error {
	if err := c.compile(n, true); err != nil {
		return err
	}
	if terminal(n) {
		return nil
	}
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	widen(mb, c.typeOf(n), want)
	return nil
}

func (c *Compiler) compileNode(n ast.Node, typ *types.Type, expression bool) error {
	switch n := n.(type) {
	// Definitions
	case ast.Definition:
		return c.definition(n, expression, func() error { return c.defineMethod(n) })
	case *ast.ClassDefinition:
		return c.definition(n, expression, func() error { return c.defineClass(n) })
	case *ast.InterfaceDeclaration:
		return c.definition(n, expression, func() error { return c.defineInterface(n) })
	case *ast.Import, *ast.Noop:
		return nil

	// Structure
	case *ast.Body:
		return c.body(n, expression)

	// Literals
	case *ast.Fixnum, *ast.Float, *ast.String, *ast.Boolean, *ast.Null:
		if !expression {
			return nil
		}
		return c.literal(n, typ)
	case *ast.Self:
		return c.self(n, expression)
	case *ast.Constant:
		if expression {
			return structural(n, "type %s is not a value", n.Name)
		}
		return nil
	case *ast.EmptyArray:
		return c.emptyArray(n, typ, expression)

	// Variables
	case *ast.Local:
		return c.local(n, typ, expression)
	case *ast.LocalAssignment:
		return c.localAssign(n, n.Name, n.Value, typ, expression)
	case *ast.LocalDeclaration:
		return c.localDeclare(n, typ, expression)
	case *ast.Field:
		return c.field(n, n.Name, typ, expression)
	case *ast.FieldAssignment:
		return c.fieldAssign(n, typ, expression)
	case *ast.FieldDeclaration:
		if _, err := c.method(n); err != nil {
			return err
		}
		c.declareField(n.Name, typ)
		if expression {
			return c.field(n, n.Name, typ, true)
		}
		return nil

	// Calls
	case *ast.Call:
		return c.call(n, expression)
	case *ast.FunctionalCall:
		return c.functionalCall(n, expression)
	case *ast.Super:
		return c.super(n, expression)
	case *ast.Cast:
		return c.cast(n, typ, expression)
	case *ast.Print:
		return c.print(n)

	// Control flow
	case *ast.If:
		return c.branch(n, typ, expression)
	case *ast.And, *ast.Or, *ast.Not:
		return c.logical(n, expression)
	case *ast.Loop:
		return c.whileLoop(n)
	case *ast.ForEach:
		return c.forLoop(n)
	case *ast.Break, *ast.Next, *ast.Redo:
		return c.jump(n)
	case *ast.Return:
		return c.ret(n)
	case *ast.Raise:
		return c.raise(n)
	case *ast.Rescue:
		return c.rescue(n, typ, expression)
	case *ast.Ensure:
		return c.ensure(n, typ, expression)
	}
	return structural(n, "cannot compile %s here", ast.Kind(n))
}

// definition compiles a nested definition. Definitions have no value; in
// expression mode they leave null.
func (c *Compiler) definition(n ast.Node, expression bool, define func() error) error {
	if err := define(); err != nil {
		return err
	}
	if expression {
		mb, err := c.method(n)
		if err != nil {
			return err
		}
		mb.Emit(bytecode.OpAConstNull)
	}
	return nil
}

// body compiles every statement but the last for effect; the last one is
// compiled in the body's own mode.
func (c *Compiler) body(n *ast.Body, expression bool) error {
	last := len(n.Children) - 1
	for i, child := range n.Children {
		if err := c.compile(child, expression && i == last); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

func (c *Compiler) literal(n ast.Node, typ *types.Type) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	switch n := n.(type) {
	case *ast.Fixnum:
		if typ.Kind() == types.KindLong || n.Value < math.MinInt32 || n.Value > math.MaxInt32 {
			mb.PushLong(n.Value)
		} else {
			mb.PushInt(int32(n.Value))
		}
	case *ast.Float:
		mb.PushDouble(n.Value)
	case *ast.String:
		mb.PushString(n.Value)
	case *ast.Boolean:
		if n.Value {
			mb.Emit(bytecode.OpIConst1)
		} else {
			mb.Emit(bytecode.OpIConst0)
		}
	case *ast.Null:
		mb.Emit(bytecode.OpAConstNull)
	}
	return nil
}

func (c *Compiler) self(n *ast.Self, expression bool) error {
	if !expression {
		return nil
	}
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	if c.frame().static {
		return structural(n, "self has no value in a static context")
	}
	mb.Load("self", 0)
	return nil
}

func (c *Compiler) emptyArray(n *ast.EmptyArray, typ *types.Type, expression bool) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	if err := c.compileAs(n.Size, c.reg.Int()); err != nil {
		return err
	}
	mb.TypeInsn(bytecode.OpNewArray, typ.Component().Descriptor())
	if !expression {
		mb.Emit(bytecode.OpPop)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Locals and fields
// ---------------------------------------------------------------------------

func (c *Compiler) local(n *ast.Local, typ *types.Type, expression bool) error {
	if !expression {
		return nil
	}
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	slot, err := mb.DeclareLocal(n.Name)
	if err != nil {
		return err
	}
	mb.Load(typ.Descriptor(), slot)
	return nil
}

// localAssign stores value into the local called name. typ is the local's
// type; an unreachable assignment only evaluates its value.
func (c *Compiler) localAssign(n ast.Node, name string, value ast.Node, typ *types.Type, expression bool) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	if typ.IsUnreachable() {
		return c.compile(value, true)
	}
	slot, err := mb.DeclareLocal(name)
	if err != nil {
		return err
	}
	if err := c.compileAs(value, typ); err != nil {
		return err
	}
	if expression {
		mb.Emit(bytecode.OpDup)
	}
	mb.Store(typ.Descriptor(), slot)
	return nil
}

func (c *Compiler) localDeclare(n *ast.LocalDeclaration, typ *types.Type, expression bool) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	slot, err := mb.DeclareLocal(n.Name)
	if err != nil {
		return err
	}
	mb.PushDefault(typ.Descriptor())
	if expression {
		mb.Emit(bytecode.OpDup)
	}
	mb.Store(typ.Descriptor(), slot)
	return nil
}

func (c *Compiler) fieldOp(static, load bool) bytecode.Opcode {
	switch {
	case static && load:
		return bytecode.OpGetStatic
	case static:
		return bytecode.OpPutStatic
	case load:
		return bytecode.OpGetField
	}
	return bytecode.OpPutField
}

func (c *Compiler) field(n ast.Node, name string, typ *types.Type, expression bool) error {
	if !expression {
		return nil
	}
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	f := c.frame()
	name, typ = c.declareField(name, typ)
	if !f.static {
		mb.Load("self", 0)
	}
	mb.FieldInsn(c.fieldOp(f.static, true), f.class.Name(), name, typ.Descriptor())
	return nil
}

func (c *Compiler) fieldAssign(n *ast.FieldAssignment, typ *types.Type, expression bool) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	if typ.IsUnreachable() {
		return c.compile(n.Value, true)
	}
	f := c.frame()
	name, typ := c.declareField(n.Name, typ)
	if !f.static {
		mb.Load("self", 0)
	}
	if err := c.compileAs(n.Value, typ); err != nil {
		return err
	}
	if expression {
		if f.static {
			mb.Emit(bytecode.OpDup)
		} else {
			mb.Emit(bytecode.OpDupX1)
		}
	}
	mb.FieldInsn(c.fieldOp(f.static, false), f.class.Name(), name, typ.Descriptor())
	return nil
}

// localType returns the type the typer learned for a local bound at n.
func (c *Compiler) localType(n ast.Node, name string) *types.Type {
	scope := c.tree.Root().ID()
	if s := c.tree.Scope(n); s != nil {
		scope = s.ID()
	}
	return c.typer.LocalType(scope, name)
}
