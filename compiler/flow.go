package compiler

import (
	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/pkg/bytecode"
	"github.com/chazu/garnet/pkg/types"
)

// ---------------------------------------------------------------------------
// Conditions
// ---------------------------------------------------------------------------

// terminal reports whether control never continues past n.
func terminal(n ast.Node) bool {
	switch n.(type) {
	case *ast.Return, *ast.Raise, *ast.Break, *ast.Next, *ast.Redo:
		return true
	}
	return false
}

// jumpIf emits cond so that control reaches target when cond evaluates to
// when and falls through otherwise.
func (c *Compiler) jumpIf(cond ast.Node, target *bytecode.Label, when bool) error {
	mb, err := c.method(cond)
	if err != nil {
		return err
	}
	typ := c.typeOf(cond)
	if typ == nil {
		return structural(cond, "%s has no inferred type", ast.Kind(cond))
	}
	if typ.IsUnreachable() {
		return c.compile(cond, false)
	}
	if typ.Kind() != types.KindBoolean {
		return structural(cond, "expected boolean, found %s", typ)
	}

	switch n := cond.(type) {
	case *ast.Not:
		return c.jumpIf(n.Value, target, !when)
	case *ast.And:
		if !when {
			if err := c.jumpIf(n.Left, target, false); err != nil {
				return err
			}
			return c.jumpIf(n.Right, target, false)
		}
		skip := mb.NewLabel()
		if err := c.jumpIf(n.Left, skip, false); err != nil {
			return err
		}
		if err := c.jumpIf(n.Right, target, true); err != nil {
			return err
		}
		mb.Mark(skip)
		return nil
	case *ast.Or:
		if when {
			if err := c.jumpIf(n.Left, target, true); err != nil {
				return err
			}
			return c.jumpIf(n.Right, target, true)
		}
		skip := mb.NewLabel()
		if err := c.jumpIf(n.Left, skip, true); err != nil {
			return err
		}
		if err := c.jumpIf(n.Right, target, false); err != nil {
			return err
		}
		mb.Mark(skip)
		return nil
	case *ast.Boolean:
		if n.Value == when {
			mb.Jump(bytecode.OpGoto, target)
		}
		return nil
	}

	if call, m := c.comparison(cond); call != nil {
		mb.Line(call.Pos().Line)
		return c.compare(call, m, target, when)
	}
	if err := c.compile(cond, true); err != nil {
		return err
	}
	if when {
		mb.Jump(bytecode.OpIfNe, target)
	} else {
		mb.Jump(bytecode.OpIfEq, target)
	}
	return nil
}

// booleanValue leaves 1 or 0 for a condition.
func (c *Compiler) booleanValue(n ast.Node) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	no, done := mb.NewLabel(), mb.NewLabel()
	if err := c.jumpIf(n, no, false); err != nil {
		return err
	}
	mb.Emit(bytecode.OpIConst1)
	mb.Jump(bytecode.OpGoto, done)
	mb.Mark(no)
	mb.Emit(bytecode.OpIConst0)
	mb.Mark(done)
	return nil
}

// logical compiles and, or and not. For effect only the short circuit is
// kept.
func (c *Compiler) logical(n ast.Node, expression bool) error {
	if expression {
		return c.booleanValue(n)
	}
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	switch n := n.(type) {
	case *ast.Not:
		return c.compile(n.Value, false)
	case *ast.And:
		done := mb.NewLabel()
		if err := c.jumpIf(n.Left, done, false); err != nil {
			return err
		}
		if err := c.compile(n.Right, false); err != nil {
			return err
		}
		mb.Mark(done)
	case *ast.Or:
		done := mb.NewLabel()
		if err := c.jumpIf(n.Left, done, true); err != nil {
			return err
		}
		if err := c.compile(n.Right, false); err != nil {
			return err
		}
		mb.Mark(done)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Branches
// ---------------------------------------------------------------------------

// arm compiles one side of a conditional. A missing side with a value to
// produce leaves the default of typ.
func (c *Compiler) arm(mb *bytecode.MethodBuilder, n ast.Node, typ *types.Type, value bool) error {
	switch {
	case n == nil:
		if value {
			mb.PushDefault(typ.Descriptor())
		}
		return nil
	case value:
		return c.compileAs(n, typ)
	}
	return c.compile(n, false)
}

func (c *Compiler) branch(n *ast.If, typ *types.Type, expression bool) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	value := expression && !typ.IsUnreachable()
	done := mb.NewLabel()

	// Without a value to produce, a missing arm costs nothing.
	if !value && (n.Body == nil || n.Else == nil) {
		arm, when := n.Body, false
		if n.Body == nil {
			arm, when = n.Else, true
		}
		if err := c.jumpIf(n.Condition, done, when); err != nil {
			return err
		}
		if err := c.statement(arm); err != nil {
			return err
		}
		mb.Mark(done)
		return nil
	}

	els := mb.NewLabel()
	if err := c.jumpIf(n.Condition, els, false); err != nil {
		return err
	}
	if err := c.arm(mb, n.Body, typ, value); err != nil {
		return err
	}
	if n.Body == nil || !terminal(n.Body) {
		mb.Jump(bytecode.OpGoto, done)
	}
	mb.Mark(els)
	if err := c.arm(mb, n.Else, typ, value); err != nil {
		return err
	}
	mb.Mark(done)
	return nil
}

// ---------------------------------------------------------------------------
// Loops
// ---------------------------------------------------------------------------

func (c *Compiler) enterLoop(mb *bytecode.MethodBuilder) *loop {
	f := c.frame()
	l := &loop{brk: mb.NewLabel(), redo: mb.NewLabel(), next: mb.NewLabel(), regions: len(f.regions)}
	f.loops = append(f.loops, l)
	return l
}

func (c *Compiler) exitLoop() {
	f := c.frame()
	f.loops = f.loops[:len(f.loops)-1]
}

func (c *Compiler) statement(n ast.Node) error {
	if n == nil {
		return nil
	}
	return c.compile(n, false)
}

// whileLoop compiles while and until loops. A check-first loop tests
// before every iteration:
//
//	init; test: if !cond goto break; pre; redo: body; next: post; goto test; break:
//
// and a post-test loop after:
//
//	init; top: pre; redo: body; next: post; if cond goto top; break:
//
// An until loop inverts both tests.
func (c *Compiler) whileLoop(n *ast.Loop) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	if n.Condition == nil {
		return structural(n, "loop without a condition")
	}
	if err := c.statement(n.Init); err != nil {
		return err
	}
	l := c.enterLoop(mb)
	defer c.exitLoop()

	top := mb.NewLabel()
	mb.Mark(top)
	if n.CheckFirst {
		if err := c.jumpIf(n.Condition, l.brk, n.Negative); err != nil {
			return err
		}
	}
	if err := c.statement(n.Pre); err != nil {
		return err
	}
	mb.Mark(l.redo)
	if err := c.statement(n.Body); err != nil {
		return err
	}
	mb.Mark(l.next)
	if err := c.statement(n.Post); err != nil {
		return err
	}
	if n.CheckFirst {
		mb.Jump(bytecode.OpGoto, top)
	} else if err := c.jumpIf(n.Condition, top, !n.Negative); err != nil {
		return err
	}
	mb.Mark(l.brk)
	return nil
}

// forLoop walks an array by index or an iterable through its iterator.
func (c *Compiler) forLoop(n *ast.ForEach) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	iter := c.typeOf(n.Iter)
	elem := c.localType(n, n.Var)
	if elem == nil {
		return structural(n, "loop variable %s has no inferred type", n.Var)
	}
	if err := c.compile(n.Iter, true); err != nil {
		return err
	}
	slot, err := mb.DeclareLocal(n.Var)
	if err != nil {
		return err
	}
	if iter.IsArray() {
		return c.arrayLoop(mb, n, iter, elem, slot)
	}
	return c.iteratorLoop(mb, n, iter, elem, slot)
}

func (c *Compiler) arrayLoop(mb *bytecode.MethodBuilder, n *ast.ForEach, iter, elem *types.Type, slot uint8) error {
	arr, err := mb.Temp()
	if err != nil {
		return err
	}
	length, err := mb.Temp()
	if err != nil {
		return err
	}
	index, err := mb.Temp()
	if err != nil {
		return err
	}
	mb.Emit(bytecode.OpDup)
	mb.Store(iter.Descriptor(), arr)
	mb.Emit(bytecode.OpArrayLength)
	mb.Store("int", length)
	mb.Emit(bytecode.OpIConst0)
	mb.Store("int", index)

	l := c.enterLoop(mb)
	defer c.exitLoop()

	test := mb.NewLabel()
	mb.Mark(test)
	mb.Load("int", index)
	mb.Load("int", length)
	mb.Jump(bytecode.OpIfICmpGe, l.brk)
	mb.Load(iter.Descriptor(), arr)
	mb.Load("int", index)
	mb.ArrayLoad(iter.Component().Descriptor())
	widen(mb, iter.Component(), elem)
	mb.Store(elem.Descriptor(), slot)
	mb.Mark(l.redo)
	if err := c.statement(n.Body); err != nil {
		return err
	}
	mb.Mark(l.next)
	mb.IInc(index, 1)
	mb.Jump(bytecode.OpGoto, test)
	mb.Mark(l.brk)
	return nil
}

func (c *Compiler) iteratorLoop(mb *bytecode.MethodBuilder, n *ast.ForEach, iter, elem *types.Type, slot uint8) error {
	if elem.IsPrimitive() {
		return structural(n, "cannot bind %s from an iterator", elem)
	}
	m, err := c.reg.FindMethod(iter, "iterator", nil)
	if err != nil {
		return lookupError(n.Iter, err)
	}
	op := bytecode.OpInvokeVirtual
	if m.Kind == types.MethodInterface {
		op = bytecode.OpInvokeInterface
	}
	mb.Invoke(op, m.Owner.Descriptor(), m.Name, m.Descriptor())
	it, err := mb.Temp()
	if err != nil {
		return err
	}
	mb.Store(types.IteratorName, it)

	l := c.enterLoop(mb)
	defer c.exitLoop()

	mb.Mark(l.next)
	mb.Load(types.IteratorName, it)
	mb.Invoke(bytecode.OpInvokeInterface, types.IteratorName, "hasNext", "()boolean")
	mb.Jump(bytecode.OpIfEq, l.brk)
	mb.Load(types.IteratorName, it)
	mb.Invoke(bytecode.OpInvokeInterface, types.IteratorName, "next", "()"+types.ObjectName)
	if !elem.Equal(c.reg.Object()) {
		mb.TypeInsn(bytecode.OpCheckCast, elem.Descriptor())
	}
	mb.Store(elem.Descriptor(), slot)
	mb.Mark(l.redo)
	if err := c.statement(n.Body); err != nil {
		return err
	}
	mb.Jump(bytecode.OpGoto, l.next)
	mb.Mark(l.brk)
	return nil
}

// ---------------------------------------------------------------------------
// Jumps
// ---------------------------------------------------------------------------

// region is an open protected range: the body of a rescue or an ensure.
// Jumps out of a region end its current segment; a new one starts after
// the jump.
type region struct {
	ensure   *ast.Ensure // nil for a rescue
	nesting  int
	start    *bytecode.Label
	handlers []catch
}

type catch struct {
	handler *bytecode.Label
	typ     string
}

// openRegion starts a protected range at the current offset.
func (c *Compiler) openRegion(mb *bytecode.MethodBuilder, ensure *ast.Ensure, handlers ...catch) *region {
	f := c.frame()
	r := &region{ensure: ensure, nesting: len(f.regions) + 1, start: mb.NewLabel(), handlers: handlers}
	mb.Mark(r.start)
	f.regions = append(f.regions, r)
	return r
}

// closeRegion ends the last segment of the innermost region and pops it.
func (c *Compiler) closeRegion(mb *bytecode.MethodBuilder) {
	f := c.frame()
	r := f.regions[len(f.regions)-1]
	f.regions = f.regions[:len(f.regions)-1]
	r.endSegment(mb)
}

func (r *region) endSegment(mb *bytecode.MethodBuilder) {
	end := mb.NewLabel()
	mb.Mark(end)
	for _, h := range r.handlers {
		mb.TryCatchNested(r.nesting, r.start, end, h.handler, h.typ)
	}
}

// leave ends the segments of the regions opened at or above depth,
// innermost first, inlining each ensure clause right after its own segment
// ends so the clause is covered only by the regions outside it. resume
// starts the new segments once the jump is emitted.
func (c *Compiler) leave(mb *bytecode.MethodBuilder, depth int) (resume func(), err error) {
	f := c.frame()
	saved := f.regions
	defer func() { f.regions = saved }()
	for i := len(saved) - 1; i >= depth; i-- {
		r := saved[i]
		r.endSegment(mb)
		if r.ensure == nil {
			continue
		}
		f.regions = saved[:i]
		if err := c.statement(r.ensure.Clause); err != nil {
			return nil, err
		}
	}
	return func() {
		for _, r := range saved[depth:] {
			r.start = mb.NewLabel()
			mb.Mark(r.start)
		}
	}, nil
}

func (c *Compiler) jump(n ast.Node) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	l := c.frame().loop()
	if l == nil {
		return structural(n, "%s outside of a loop", ast.Kind(n))
	}
	resume, err := c.leave(mb, l.regions)
	if err != nil {
		return err
	}
	switch n.(type) {
	case *ast.Break:
		mb.Jump(bytecode.OpGoto, l.brk)
	case *ast.Next:
		mb.Jump(bytecode.OpGoto, l.next)
	default:
		mb.Jump(bytecode.OpGoto, l.redo)
	}
	resume()
	return nil
}

// ret returns from the method, running every open ensure clause after the
// value is computed.
func (c *Compiler) ret(n *ast.Return) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	f := c.frame()
	desc := "void"
	if _, ctor := c.tree.Method(n).(*ast.ConstructorDefinition); !ctor && !f.ret.IsVoid() && !f.ret.IsUnreachable() {
		desc = f.ret.Descriptor()
	}

	var resume func()
	switch {
	case desc == "void":
		if err := c.statement(n.Value); err != nil {
			return err
		}
		if resume, err = c.leave(mb, 0); err != nil {
			return err
		}
	case n.Value == nil:
		if resume, err = c.leave(mb, 0); err != nil {
			return err
		}
		mb.PushDefault(desc)
	default:
		if err := c.compileAs(n.Value, f.ret); err != nil {
			return err
		}
		if len(f.regions) == 0 {
			resume = func() {}
			break
		}
		tmp, err := mb.Temp()
		if err != nil {
			return err
		}
		mb.Store(desc, tmp)
		if resume, err = c.leave(mb, 0); err != nil {
			return err
		}
		mb.Load(desc, tmp)
	}
	mb.Return(desc)
	resume()
	return nil
}

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

// rescue protects the body with one handler per clause. A clause without
// types catches Exception. Operands pushed before the rescue stay on the
// stack when a handler runs.
func (c *Compiler) rescue(n *ast.Rescue, typ *types.Type, expression bool) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	value := expression && !typ.IsUnreachable()
	done := mb.NewLabel()

	handlers := make([]*bytecode.Label, len(n.Clauses))
	var catches []catch
	for i, clause := range n.Clauses {
		handlers[i] = mb.NewLabel()
		if len(clause.Types) == 0 {
			catches = append(catches, catch{handlers[i], types.ExceptionName})
			continue
		}
		for _, ref := range clause.Types {
			t := c.reg.Lookup(string(ref))
			if t == nil {
				return structural(clause, "unknown exception type %s", ref)
			}
			catches = append(catches, catch{handlers[i], t.Descriptor()})
		}
	}

	c.openRegion(mb, nil, catches...)
	err = c.arm(mb, n.Body, typ, value)
	c.closeRegion(mb)
	if err != nil {
		return err
	}
	mb.Jump(bytecode.OpGoto, done)

	for i, clause := range n.Clauses {
		mb.Mark(handlers[i])
		mb.Line(clause.Pos().Line)
		if clause.Name != "" {
			slot, err := mb.DeclareLocal(clause.Name)
			if err != nil {
				return err
			}
			mb.Store(types.ThrowableName, slot)
		} else {
			mb.Emit(bytecode.OpPop)
		}
		if err := c.arm(mb, clause.Body, typ, value); err != nil {
			return err
		}
		mb.Jump(bytecode.OpGoto, done)
	}
	mb.Mark(done)
	return nil
}

// ensure runs the clause after the body on normal exit, and on exceptional
// exit before rethrowing. Jumps out of the body run it themselves, outside
// the protected range.
func (c *Compiler) ensure(n *ast.Ensure, typ *types.Type, expression bool) error {
	mb, err := c.method(n)
	if err != nil {
		return err
	}
	value := expression && !typ.IsUnreachable()
	handler, done := mb.NewLabel(), mb.NewLabel()

	c.openRegion(mb, n, catch{handler, ""})
	err = c.arm(mb, n.Body, typ, value)
	c.closeRegion(mb)
	if err != nil {
		return err
	}

	var result uint8
	if value {
		if result, err = mb.Temp(); err != nil {
			return err
		}
		mb.Store(typ.Descriptor(), result)
	}
	if err := c.statement(n.Clause); err != nil {
		return err
	}
	if value {
		mb.Load(typ.Descriptor(), result)
	}
	mb.Jump(bytecode.OpGoto, done)

	mb.Mark(handler)
	exc, err := mb.Temp()
	if err != nil {
		return err
	}
	mb.Store(types.ThrowableName, exc)
	if err := c.statement(n.Clause); err != nil {
		return err
	}
	mb.Load(types.ThrowableName, exc)
	mb.Emit(bytecode.OpAThrow)
	mb.Mark(done)
	return nil
}
