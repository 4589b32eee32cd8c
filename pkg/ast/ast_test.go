package ast

import (
	"testing"
)

func body(children ...Node) *Body { return &Body{Children: children} }

func TestTreeNumbering(t *testing.T) {
	lit := &Fixnum{Value: 1}
	assign := &LocalAssignment{Name: "a", Value: lit}
	root := &Script{Body: body(assign)}

	if lit.ID() != NoNode {
		t.Errorf("ID before NewTree = %d, want NoNode", lit.ID())
	}
	tree, err := NewTree(root)
	if err != nil {
		t.Fatal(err)
	}
	if tree.Len() != 4 {
		t.Errorf("Len() = %d, want 4", tree.Len())
	}
	if root.ID() != 0 || lit.ID() != 3 {
		t.Errorf("ids = %d, %d; want pre-order 0, 3", root.ID(), lit.ID())
	}
	if tree.Parent(lit) != Node(assign) {
		t.Errorf("Parent(lit) = %v, want assignment", tree.Parent(lit))
	}
	if tree.Parent(root) != nil {
		t.Error("root must have no parent")
	}
	if tree.Node(assign.ID()) != Node(assign) {
		t.Error("Node(id) does not round-trip")
	}

	if _, err := NewTree(&Script{Body: lit}); err == nil {
		t.Error("adding a node to a second tree should fail")
	}
}

func TestTreeScopeClassMethod(t *testing.T) {
	use := &Local{Name: "x"}
	method := &MethodDefinition{Name: "m", Args: &Arguments{}, Body: body(use)}
	class := &ClassDefinition{Name: "Foo", Body: body(method)}
	top := &Local{Name: "y"}
	root := &Script{Body: body(class, top)}
	tree, err := NewTree(root)
	if err != nil {
		t.Fatal(err)
	}

	if tree.Scope(use) != ScopeOwner(method) {
		t.Errorf("Scope(use) = %v, want method", tree.Scope(use))
	}
	if tree.Scope(method) != ScopeOwner(class) {
		t.Errorf("Scope(method) = %v, want class", tree.Scope(method))
	}
	if tree.Scope(top) != ScopeOwner(root) {
		t.Errorf("Scope(top) = %v, want script", tree.Scope(top))
	}
	if tree.Class(use) != Node(class) {
		t.Errorf("Class(use) = %v, want class", tree.Class(use))
	}
	if tree.Class(top) != nil {
		t.Errorf("Class(top) = %v, want nil", tree.Class(top))
	}
	if tree.Method(use) != Definition(method) {
		t.Errorf("Method(use) = %v, want method", tree.Method(use))
	}
	if tree.Method(top) != nil {
		t.Error("script-level code has no enclosing method")
	}
	if !tree.Contains(method, use) || tree.Contains(method, top) {
		t.Error("Contains gave the wrong answer")
	}
	if !tree.Contains(use, use) {
		t.Error("a node contains itself")
	}
}

func TestChildrenEvaluationOrder(t *testing.T) {
	target := &Local{Name: "a"}
	arg := &Fixnum{Value: 2}
	call := &Call{Target: target, Name: "+", Args: []Node{arg}}
	kids := Children(call)
	if len(kids) != 2 || kids[0] != Node(target) || kids[1] != Node(arg) {
		t.Errorf("Children(call) = %v, want target then args", kids)
	}

	loop := &Loop{Condition: &Boolean{Value: true}, Body: body(), CheckFirst: true}
	if n := len(Children(loop)); n != 2 {
		t.Errorf("len(Children(loop)) = %d, want 2 (nil parts omitted)", n)
	}

	var nilBody *Body
	if n := len(Children(&If{Condition: &Boolean{}, Body: nilBody})); n != 1 {
		t.Errorf("typed nil child not skipped: %d children", n)
	}
}

func TestConstructorDelegatesToInitialize(t *testing.T) {
	args := &Arguments{Required: []*RequiredArgument{{Name: "a"}}}
	delegate := &FunctionalCall{Name: ConstructorName, Args: []Node{&Local{Name: "a"}, &Fixnum{Value: 3}}}
	rest := &Local{Name: "a"}
	c := NewConstructorDefinition(Signature{}, args, body(delegate, rest), nil)

	if !c.Delegates || c.CallsSuper {
		t.Errorf("Delegates = %v, CallsSuper = %v; want true, false", c.Delegates, c.CallsSuper)
	}
	if len(c.DelegateArgs) != 2 {
		t.Errorf("len(DelegateArgs) = %d, want 2", len(c.DelegateArgs))
	}
	b := c.Body.(*Body)
	if _, ok := b.Children[0].(*Noop); !ok {
		t.Errorf("first statement = %s, want noop", Kind(b.Children[0]))
	}
	if b.Children[1] != Node(rest) {
		t.Error("later statements must be kept")
	}
	if c.Name != ConstructorName || Kind(c) != "constructor" {
		t.Errorf("name = %q, kind = %q", c.Name, Kind(c))
	}
}

func TestConstructorBareSuper(t *testing.T) {
	args := &Arguments{
		Required: []*RequiredArgument{{Name: "a"}},
		Optional: []*OptionalArgument{{Name: "b", Value: &Fixnum{Value: 1}}},
	}
	sup := At(&Super{Bare: true}, 4, 3)
	c := NewConstructorDefinition(Signature{}, args, body(body(sup)), nil)

	if !c.Delegates || !c.CallsSuper {
		t.Fatalf("Delegates = %v, CallsSuper = %v; want true, true", c.Delegates, c.CallsSuper)
	}
	var names []string
	for _, a := range c.DelegateArgs {
		l, ok := a.(*Local)
		if !ok {
			t.Fatalf("delegate arg is %s, want local", Kind(a))
		}
		if l.Pos().Line != 4 {
			t.Errorf("forwarded arg position = %s, want line 4", l.Pos())
		}
		names = append(names, l.Name)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("forwarded args = %v, want [a b]", names)
	}
	inner := c.Body.(*Body).Children[0].(*Body)
	if _, ok := inner.Children[0].(*Noop); !ok {
		t.Error("nested super statement was not replaced")
	}

	// the forwarded locals are part of the tree
	tree, err := NewTree(&Script{Body: c})
	if err != nil {
		t.Fatal(err)
	}
	if tree.Method(c.DelegateArgs[0]) != Definition(c) {
		t.Error("delegate args must belong to the constructor")
	}
}

func TestConstructorWithoutDelegation(t *testing.T) {
	c := NewConstructorDefinition(Signature{}, nil, &Call{Target: &Self{}, Name: "foo"}, nil)
	if c.Delegates || c.Args == nil {
		t.Errorf("Delegates = %v, Args = %v", c.Delegates, c.Args)
	}
	c = NewConstructorDefinition(Signature{}, nil, &FunctionalCall{Name: "setup"}, nil)
	if c.Delegates {
		t.Error("a call of another method is not delegation")
	}
	c = NewConstructorDefinition(Signature{}, nil, &Super{Args: []Node{&Fixnum{Value: 1}}}, nil)
	if !c.CallsSuper || len(c.DelegateArgs) != 1 {
		t.Errorf("super(1): CallsSuper = %v, args = %d", c.CallsSuper, len(c.DelegateArgs))
	}
	if _, ok := c.Body.(*Noop); !ok {
		t.Errorf("body = %s, want noop", Kind(c.Body))
	}
}

func TestArgumentsOrder(t *testing.T) {
	a := &Arguments{
		Required: []*RequiredArgument{{Name: "a"}},
		Optional: []*OptionalArgument{{Name: "b", Value: &Fixnum{}}},
		Rest:     &RestArgument{Name: "c"},
		Block:    &BlockArgument{Name: "d"},
	}
	names := a.Names()
	want := []string{"a", "b", "c", "d"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if len(a.Nodes()) != 4 {
		t.Errorf("len(Nodes()) = %d, want 4", len(a.Nodes()))
	}
}

func TestFieldName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"@a", "a"},
		{"@@count", "count"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := FieldName(tt.in); got != tt.want {
			t.Errorf("FieldName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
