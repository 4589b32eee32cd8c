package typer

import (
	"math"

	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/pkg/types"
)

// ---------------------------------------------------------------------------
// Rule dispatch
// ---------------------------------------------------------------------------

// infer runs the rule for n's kind. It returns nil when n must wait.
func (t *Typer) infer(n ast.Node) *types.Type {
	r := t.reg
	switch n := n.(type) {
	case *ast.Script:
		if n.Body != nil && t.Infer(n.Body) == nil {
			return nil
		}
		return r.Void()
	case *ast.Body:
		return t.inferBody(n)
	case *ast.Noop:
		return r.Void()
	case *ast.Import:
		r.Alias(n.Short, n.Long)
		return r.Void()

	// Literals
	case *ast.Fixnum:
		if n.Value < math.MinInt32 || n.Value > math.MaxInt32 {
			return r.Long()
		}
		return r.Int()
	case *ast.Float:
		return r.Double()
	case *ast.String:
		return r.String()
	case *ast.Boolean:
		return r.Boolean()
	case *ast.Null:
		return r.Null()
	case *ast.Self:
		return t.selfType(n)
	case *ast.Constant:
		typ := r.Lookup(n.Name)
		if typ == nil {
			return t.waitFor(n, "unknown type %s", n.Name)
		}
		return typ.Meta()
	case *ast.EmptyArray:
		return t.inferEmptyArray(n)

	// Variables
	case *ast.Local:
		if typ := t.LocalType(t.scopeOf(n), n.Name); typ != nil {
			return typ
		}
		return t.waitFor(n, "undefined local %s", n.Name)
	case *ast.LocalAssignment:
		return t.inferAssignment(n, n.Value, func(v *types.Type) *types.Type {
			return t.LearnLocalType(t.scopeOf(n), n.Name, v)
		})
	case *ast.LocalDeclaration:
		return t.inferDeclaration(n, n.Type, func(v *types.Type) *types.Type {
			return t.LearnLocalType(t.scopeOf(n), n.Name, v)
		})
	case *ast.Field:
		self := t.selfType(n)
		if self == nil {
			return nil
		}
		if typ := t.FieldType(self, n.Name); typ != nil {
			return typ
		}
		return t.waitFor(n, "undefined field %s", n.Name)
	case *ast.FieldAssignment:
		self := t.selfType(n)
		if self == nil {
			t.Infer(n.Value)
			return nil
		}
		return t.inferAssignment(n, n.Value, func(v *types.Type) *types.Type {
			return t.LearnFieldType(self, n.Name, v)
		})
	case *ast.FieldDeclaration:
		self := t.fieldOwner(n)
		if self == nil {
			return nil
		}
		return t.inferDeclaration(n, n.Type, func(v *types.Type) *types.Type {
			return t.LearnFieldType(self, n.Name, v)
		})

	// Calls
	case *ast.Call:
		return t.inferCall(n)
	case *ast.FunctionalCall:
		return t.inferFunctionalCall(n)
	case *ast.Super:
		return t.inferSuper(n)
	case *ast.Cast:
		v := t.Infer(n.Value)
		typ := t.lookup(n.Type)
		if v == nil {
			return nil
		}
		if typ == nil {
			return t.waitFor(n, "unknown type %s", n.Type)
		}
		return typ

	// Control flow
	case *ast.If:
		return t.inferIf(n)
	case *ast.And:
		return t.inferLogical(n, n.Left, n.Right)
	case *ast.Or:
		return t.inferLogical(n, n.Left, n.Right)
	case *ast.Not:
		v := t.Infer(n.Value)
		if v == nil {
			return nil
		}
		t.checkBoolean(n.Value, v)
		return r.Boolean()
	case *ast.Loop:
		return t.inferLoop(n)
	case *ast.ForEach:
		return t.inferForEach(n)
	case *ast.Break, *ast.Next, *ast.Redo:
		if !t.inLoop(n) {
			t.errorAt(n, "%s outside of a loop", ast.Kind(n))
		}
		return r.Unreachable()
	case *ast.Return:
		if n.Value == nil {
			return r.Void()
		}
		return t.Infer(n.Value)
	case *ast.Raise:
		return t.inferRaise(n)
	case *ast.Rescue:
		return t.inferRescue(n)
	case *ast.RescueClause:
		return t.inferRescueClause(n)
	case *ast.Ensure:
		body := t.Infer(n.Body)
		clause := t.inferOptional(n.Clause)
		if body == nil || clause == nil {
			return nil
		}
		return body
	case *ast.Print:
		return t.inferPrint(n)

	// Definitions
	case *ast.ClassDefinition:
		return t.inferClass(n)
	case *ast.InterfaceDeclaration:
		typ := t.declare(n)
		body := t.inferOptional(n.Body)
		if typ == nil {
			return t.waitFor(n, "unknown supertype of %s", n.Name)
		}
		if body == nil {
			return nil
		}
		return typ
	case *ast.ConstructorDefinition:
		return t.inferConstructor(n)
	case *ast.MethodDefinition:
		return t.inferMethod(n)
	case *ast.Arguments:
		ok := true
		for _, a := range n.Nodes() {
			if t.Infer(a) == nil {
				ok = false
			}
		}
		if !ok {
			return nil
		}
		return r.Void()
	case *ast.RequiredArgument:
		return t.inferArgument(n, n.Name, nil)
	case *ast.OptionalArgument:
		return t.inferArgument(n, n.Name, n.Value)
	case *ast.RestArgument:
		return t.inferArgument(n, n.Name, nil)
	case *ast.BlockArgument:
		return t.inferArgument(n, n.Name, nil)
	}
	t.errorAt(n, "no inference rule for %s", ast.Kind(n))
	return r.Void()
}

// inferOptional infers n, treating a missing node as void.
func (t *Typer) inferOptional(n ast.Node) *types.Type {
	if n == nil {
		return t.reg.Void()
	}
	return t.Infer(n)
}

// inferAll infers every node and returns their types, or nil when any must
// wait. Every node is tried so all of them are queued in one pass.
func (t *Typer) inferAll(nodes []ast.Node) ([]*types.Type, bool) {
	out := make([]*types.Type, len(nodes))
	ok := true
	for i, n := range nodes {
		if out[i] = t.Infer(n); out[i] == nil {
			ok = false
		}
	}
	return out, ok
}

// ---------------------------------------------------------------------------
// Context
// ---------------------------------------------------------------------------

// scopeOf returns the scope owning the locals visible at n.
func (t *Typer) scopeOf(n ast.Node) ast.NodeID {
	if s := t.tree.Scope(n); s != nil {
		return s.ID()
	}
	return t.tree.Root().ID()
}

// isStatic reports whether code at n runs without an instance: in a static
// method, at script level, or in a class body outside any method.
func (t *Typer) isStatic(n ast.Node) bool {
	m := t.tree.Method(n)
	if m == nil {
		return true
	}
	return m.Def().Static || t.tree.Class(m) == nil
}

// classType returns the instance type of the class enclosing n, or the
// unit type at script level. It is nil while the class is undeclared.
func (t *Typer) classType(n ast.Node) *types.Type {
	switch c := t.tree.Class(n).(type) {
	case *ast.ClassDefinition:
		return t.reg.Lookup(c.Name)
	case *ast.InterfaceDeclaration:
		return t.reg.Lookup(c.Name)
	}
	return t.self
}

// selfType returns the type of self at n: the class type, or its meta type
// in a static context.
func (t *Typer) selfType(n ast.Node) *types.Type {
	typ := t.classType(n)
	if typ == nil {
		return t.waitFor(n, "enclosing class is not declared")
	}
	if t.isStatic(n) {
		return typ.Meta()
	}
	return typ
}

// fieldOwner returns the type a field declaration at n adds its field to:
// the instance type in a class body, otherwise the type of self.
func (t *Typer) fieldOwner(n ast.Node) *types.Type {
	if _, ok := t.tree.Class(n).(*ast.ClassDefinition); !ok || t.tree.Method(n) != nil {
		return t.selfType(n)
	}
	if typ := t.classType(n); typ != nil {
		return typ
	}
	return t.waitFor(n, "enclosing class is not declared")
}

// inLoop reports whether a jump at n has a loop to jump in, without
// crossing a method boundary.
func (t *Typer) inLoop(n ast.Node) bool {
	found := false
	t.tree.Ancestors(n, func(a ast.Node) bool {
		switch a.(type) {
		case *ast.Loop, *ast.ForEach:
			found = true
			return false
		case ast.Definition, *ast.ClassDefinition, *ast.Script:
			return false
		}
		return true
	})
	return found
}

func (t *Typer) checkBoolean(n ast.Node, typ *types.Type) {
	if typ != t.reg.Boolean() && !typ.IsUnreachable() {
		t.errorAt(n, "expected boolean, found %s", typ)
	}
}

// join returns the type of a construct whose value comes from either a or
// b. Incompatible references join to object; a void side makes the whole
// void. Other mismatches are reported at n and the result is void.
func (t *Typer) join(n ast.Node, a, b *types.Type) *types.Type {
	if c := types.Common(a, b); c != nil {
		return c
	}
	switch {
	case a.IsVoid() || b.IsVoid():
		return t.reg.Void()
	case a.IsReference() && b.IsReference():
		return t.reg.Object()
	}
	t.errorAt(n, "branches have incompatible types %s and %s", a, b)
	return t.reg.Void()
}

// ---------------------------------------------------------------------------
// Rules
// ---------------------------------------------------------------------------

func (t *Typer) inferBody(n *ast.Body) *types.Type {
	typs, ok := t.inferAll(n.Children)
	if !ok {
		return nil
	}
	if len(typs) == 0 {
		return t.reg.Void()
	}
	return typs[len(typs)-1]
}

func (t *Typer) inferEmptyArray(n *ast.EmptyArray) *types.Type {
	size := t.Infer(n.Size)
	comp := t.lookup(n.Component)
	if size == nil {
		return nil
	}
	if comp == nil {
		return t.waitFor(n, "unknown type %s", n.Component)
	}
	if !t.reg.Int().IsParent(size) {
		t.errorAt(n.Size, "array size must be int, found %s", size)
	}
	return comp.Array()
}

// inferAssignment types an assignment of value to a variable. learn
// records the value's type and returns the variable's type; the value must
// fit it.
func (t *Typer) inferAssignment(n, value ast.Node, learn func(*types.Type) *types.Type) *types.Type {
	v := t.Infer(value)
	if v == nil {
		return nil
	}
	if v.IsUnreachable() {
		return v
	}
	if v.IsVoid() {
		t.errorAt(value, "cannot assign a void value to %s", n.(ast.Named).NodeName())
		return v
	}
	declared := learn(v)
	if !declared.IsParent(v) {
		t.errorAt(n, "cannot assign %s to %s of type %s", v, n.(ast.Named).NodeName(), declared)
	}
	return declared
}

func (t *Typer) inferDeclaration(n ast.Node, ref ast.TypeRef, learn func(*types.Type) *types.Type) *types.Type {
	typ := t.lookup(ref)
	if typ == nil {
		return t.waitFor(n, "unknown type %s", ref)
	}
	if declared := learn(typ); !declared.Equal(typ) {
		t.errorAt(n, "%s already has type %s", n.(ast.Named).NodeName(), declared)
	}
	return typ
}

func (t *Typer) inferCall(n *ast.Call) *types.Type {
	target := t.Infer(n.Target)
	args, ok := t.inferAll(n.Args)
	if target == nil || !ok {
		return nil
	}
	m, err := t.reg.FindMethod(target, n.Name, args)
	if err != nil {
		return t.waitErr(n, err)
	}
	return m.Return
}

func (t *Typer) inferFunctionalCall(n *ast.FunctionalCall) *types.Type {
	args, ok := t.inferAll(n.Args)
	self := t.selfType(n)
	if !ok || self == nil {
		return nil
	}
	if n.Name == ast.ConstructorName {
		t.errorAt(n, "initialize may only be called as the first statement of a constructor")
		return t.reg.Void()
	}
	m, err := t.reg.FindMethod(self, n.Name, args)
	if err != nil && !self.IsMeta() {
		if sm, serr := t.reg.FindMethod(self.Meta(), n.Name, args); serr == nil {
			m, err = sm, nil
		}
	}
	if err != nil {
		return t.waitErr(n, err)
	}
	return m.Return
}

func (t *Typer) inferSuper(n *ast.Super) *types.Type {
	def := t.tree.Method(n)
	if def == nil {
		t.errorAt(n, "super outside of a method")
		return t.reg.Void()
	}
	var args []*types.Type
	if n.Bare {
		scope := def.ID()
		for _, name := range def.Def().Args.Names() {
			typ := t.LocalType(scope, name)
			if typ == nil {
				return t.waitFor(n, "argument %s is not typed yet", name)
			}
			args = append(args, typ)
		}
	} else {
		var ok bool
		if args, ok = t.inferAll(n.Args); !ok {
			return nil
		}
	}
	self := t.selfType(n)
	if self == nil {
		return nil
	}
	super := self.Superclass()
	if super == nil {
		t.errorAt(n, "%s has no superclass", self)
		return t.reg.Void()
	}
	m, err := t.reg.FindMethod(super, def.NodeName(), args)
	if err != nil {
		return t.waitErr(n, err)
	}
	return m.Return
}

func (t *Typer) inferIf(n *ast.If) *types.Type {
	cond := t.Infer(n.Condition)
	var body, els *types.Type
	ok := cond != nil
	if n.Body != nil {
		if body = t.Infer(n.Body); body == nil {
			ok = false
		}
	}
	if n.Else != nil {
		if els = t.Infer(n.Else); els == nil {
			ok = false
		}
	}
	if !ok {
		return nil
	}
	t.checkBoolean(n.Condition, cond)
	switch {
	case body == nil && els == nil:
		return t.reg.Void()
	case body == nil:
		return defaultable(t.reg, els)
	case els == nil:
		return defaultable(t.reg, body)
	}
	return t.join(n, body, els)
}

// defaultable is the type of a conditional with one branch: the branch's
// type, whose default value fills the other path. An unreachable branch
// leaves only the missing path, which has no value.
func defaultable(r *types.Registry, typ *types.Type) *types.Type {
	if typ.IsUnreachable() {
		return r.Void()
	}
	return typ
}

func (t *Typer) inferLogical(n, left, right ast.Node) *types.Type {
	l := t.Infer(left)
	rt := t.Infer(right)
	if l == nil || rt == nil {
		return nil
	}
	t.checkBoolean(left, l)
	t.checkBoolean(right, rt)
	return t.reg.Boolean()
}

func (t *Typer) inferLoop(n *ast.Loop) *types.Type {
	ok := true
	for _, part := range []ast.Node{n.Init, n.Condition, n.Pre, n.Body, n.Post} {
		if part != nil && t.Infer(part) == nil {
			ok = false
		}
	}
	if !ok {
		return nil
	}
	if n.Condition == nil {
		t.errorAt(n, "loop without a condition")
	} else {
		t.checkBoolean(n.Condition, t.TypeOf(n.Condition.ID()))
	}
	return t.reg.Void()
}

// ElementType returns the type a for-each loop binds for each element of
// iter: the component of an array, or object through the iterator
// protocol. It returns nil when iter cannot be iterated.
func ElementType(r *types.Registry, iter *types.Type) *types.Type {
	if iter.IsArray() {
		return iter.Component()
	}
	if iterable := r.Lookup(types.IterableName); iterable != nil && iterable.IsParent(iter) && !iter.IsNull() {
		return r.Object()
	}
	return nil
}

func (t *Typer) inferForEach(n *ast.ForEach) *types.Type {
	iter := t.Infer(n.Iter)
	if iter == nil {
		t.inferOptional(n.Body)
		return nil
	}
	elem := ElementType(t.reg, iter)
	if elem == nil {
		t.errorAt(n.Iter, "cannot iterate over %s", iter)
		elem = t.reg.Object()
	}
	if declared := t.LearnLocalType(t.scopeOf(n), n.Var, elem); !declared.IsParent(elem) {
		t.errorAt(n, "cannot assign %s to %s of type %s", elem, n.Var, declared)
	}
	if t.inferOptional(n.Body) == nil {
		return nil
	}
	return t.reg.Void()
}

func (t *Typer) inferRaise(n *ast.Raise) *types.Type {
	if n.Value == nil {
		t.errorAt(n, "raise needs an exception")
		return t.reg.Unreachable()
	}
	v := t.Infer(n.Value)
	if v == nil {
		return nil
	}
	throwable := t.reg.Lookup(types.ThrowableName)
	if v != t.reg.String() && !throwable.IsParent(v) {
		t.errorAt(n.Value, "cannot raise %s", v)
	}
	return t.reg.Unreachable()
}

func (t *Typer) inferRescue(n *ast.Rescue) *types.Type {
	result := t.Infer(n.Body)
	ok := result != nil
	for _, c := range n.Clauses {
		ct := t.Infer(c)
		if ct == nil {
			ok = false
			continue
		}
		if ok {
			result = t.join(n, result, ct)
		}
	}
	if !ok {
		return nil
	}
	return result
}

// CaughtType returns the type a rescue clause binds its exception to.
func CaughtType(r *types.Registry, caught []*types.Type) *types.Type {
	if len(caught) == 0 {
		return r.Lookup(types.ExceptionName)
	}
	typ := caught[0]
	for _, c := range caught[1:] {
		if typ = types.Common(typ, c); typ == nil {
			return r.Lookup(types.ThrowableName)
		}
	}
	return typ
}

func (t *Typer) inferRescueClause(n *ast.RescueClause) *types.Type {
	caught, ok := t.lookupAll(n.Types)
	if !ok {
		t.inferOptional(n.Body)
		return t.waitFor(n, "unknown exception type in %v", n.Types)
	}
	throwable := t.reg.Lookup(types.ThrowableName)
	for _, c := range caught {
		if !throwable.IsParent(c) {
			t.errorAt(n, "%s is not an exception type", c)
		}
	}
	if n.Name != "" {
		exc := CaughtType(t.reg, caught)
		if declared := t.LearnLocalType(t.scopeOf(n), n.Name, exc); !declared.IsParent(exc) {
			t.errorAt(n, "cannot assign %s to %s of type %s", exc, n.Name, declared)
		}
	}
	return t.inferOptional(n.Body)
}

func (t *Typer) inferPrint(n *ast.Print) *types.Type {
	vals, ok := t.inferAll(n.Values)
	if !ok {
		return nil
	}
	out := t.reg.Lookup(types.PrintStreamName)
	for i, v := range vals {
		if _, err := t.reg.FindMethod(out, "print", []*types.Type{v}); err != nil {
			t.errorAt(n.Values[i], "cannot print %s", v)
		}
	}
	return t.reg.Void()
}
