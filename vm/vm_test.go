package vm

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/garnet/compiler"
	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/pkg/bytecode"
	"github.com/chazu/garnet/typer"
)

func body(stmts ...ast.Node) *ast.Body { return &ast.Body{Children: stmts} }

func script(stmts ...ast.Node) *ast.Script { return &ast.Script{Body: body(stmts...)} }

func local(name string) *ast.Local { return &ast.Local{Name: name} }

func num(v int64) *ast.Fixnum { return &ast.Fixnum{Value: v} }

func str(s string) *ast.String { return &ast.String{Value: s} }

func call(target ast.Node, name string, args ...ast.Node) *ast.Call {
	return &ast.Call{Target: target, Name: name, Args: args}
}

func assign(name string, value ast.Node) *ast.LocalAssignment {
	return &ast.LocalAssignment{Name: name, Value: value}
}

func printLine(values ...ast.Node) *ast.Print { return &ast.Print{Values: values, Newline: true} }

func rescue(b ast.Node, typ ast.TypeRef, clause ast.Node) *ast.Rescue {
	return &ast.Rescue{Body: b, Clauses: []*ast.RescueClause{{Types: []ast.TypeRef{typ}, Name: "e", Body: clause}}}
}

func printMessage() ast.Node { return printLine(call(local("e"), "getMessage")) }

// compile runs inference and code generation over root.
func compile(t *testing.T, root ast.Node) []*bytecode.Unit {
	t.Helper()
	tree, err := ast.NewTree(root)
	if err != nil {
		t.Fatal(err)
	}
	ty := typer.New(tree, nil, typer.WithUnitName("Test"))
	ty.Infer(tree.Root())
	if err := ty.Resolve(true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	c, err := compiler.New("test.gt", tree, ty)
	if err != nil {
		t.Fatalf("compiler.New: %v", err)
	}
	if err := c.Compile(tree.Root(), false); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var units []*bytecode.Unit
	err = c.Generate(func(_ string, cb *bytecode.ClassBuilder) error {
		units = append(units, cb.Unit())
		return nil
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return units
}

// run compiles and runs root, returning what it printed.
func run(t *testing.T, root ast.Node, opts ...Option) (string, error) {
	t.Helper()
	var out bytes.Buffer
	machine := New(append([]Option{WithOutput(&out)}, opts...)...)
	if err := machine.Load(compile(t, root)...); err != nil {
		t.Fatalf("Load: %v", err)
	}
	err := machine.Run(context.Background(), "Test", nil)
	return out.String(), err
}

func expectOutput(t *testing.T, root ast.Node, want string) {
	t.Helper()
	got, err := run(t, root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPrint(t *testing.T) {
	expectOutput(t, script(
		printLine(str("answer "), num(42)),
		&ast.Print{Values: []ast.Node{&ast.Boolean{Value: true}}},
		printLine(),
		printLine(&ast.Float{Value: 2}),
		printLine(call(str("n="), "+", num(1<<40))),
	), "answer 42\ntrue\n2.0\nn=1099511627776\n")
}

func TestArithmetic(t *testing.T) {
	expectOutput(t, script(
		assign("a", num(7)),
		printLine(call(local("a"), "/", num(2))),
		printLine(call(local("a"), "%", num(4))),
		printLine(call(call(local("a"), "-@"), "*", num(3))),
		printLine(call(num(1<<40), "+", num(1<<40))),
		printLine(&ast.Cast{Type: "int", Value: &ast.Float{Value: 3.7}}),
		printLine(&ast.Cast{Type: "byte", Value: num(300)}),
	), "3\n3\n-21\n2199023255552\n3\n44\n")
}

func TestWhileLoop(t *testing.T) {
	loop := &ast.Loop{
		Condition:  call(local("i"), "<", num(3)),
		Body:       body(printLine(local("i")), assign("i", call(local("i"), "+", num(1)))),
		CheckFirst: true,
	}
	expectOutput(t, script(assign("i", num(0)), loop), "0\n1\n2\n")
}

func TestTelescopingOverloadsAgree(t *testing.T) {
	args := &ast.Arguments{
		Required: []*ast.RequiredArgument{{Name: "n"}},
		Optional: []*ast.OptionalArgument{{Name: "step", Value: num(2)}},
	}
	f := &ast.MethodDefinition{
		Name:      "f",
		Args:      args,
		Signature: ast.Signature{Params: map[string]ast.TypeRef{"n": "int"}},
		Body:      body(call(local("n"), "*", local("step"))),
	}
	expectOutput(t, script(f,
		printLine(&ast.FunctionalCall{Name: "f", Args: []ast.Node{num(3)}}),
		printLine(&ast.FunctionalCall{Name: "f", Args: []ast.Node{num(3), num(2)}}),
		printLine(&ast.FunctionalCall{Name: "f", Args: []ast.Node{num(3), num(5)}}),
	), "6\n6\n15\n")
}

func TestEnsureAlwaysRuns(t *testing.T) {
	tests := []struct {
		name string
		root ast.Node
		want string
	}{
		{
			name: "normal exit",
			root: script(&ast.Ensure{Body: printLine(str("body")), Clause: printLine(str("ensure"))}),
			want: "body\nensure\n",
		},
		{
			name: "break",
			root: script(&ast.Loop{
				Condition:  &ast.Boolean{Value: true},
				CheckFirst: true,
				Body:       &ast.Ensure{Body: body(&ast.Break{}), Clause: printLine(str("ensure"))},
			}, printLine(str("after"))),
			want: "ensure\nafter\n",
		},
		{
			name: "exception",
			root: script(rescue(
				&ast.Ensure{Body: &ast.Raise{Value: str("boom")}, Clause: printLine(str("ensure"))},
				"RuntimeException", printMessage())),
			want: "ensure\nboom\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectOutput(t, tt.root, tt.want)
		})
	}
}

func TestRaisingEnsureClauseRunsOnce(t *testing.T) {
	failing := func(name string) ast.Node {
		return body(printLine(str(name)), &ast.Raise{Value: str(name + " failed")})
	}
	leave := &ast.MethodDefinition{
		Name: "leave",
		Body: body(&ast.Ensure{Body: body(printLine(str("body")), &ast.Return{}), Clause: failing("ensure")}),
	}
	tests := []struct {
		name string
		root ast.Node
		want string
	}{
		{
			name: "break",
			root: script(rescue(&ast.Loop{
				Condition:  &ast.Boolean{Value: true},
				CheckFirst: true,
				Body:       &ast.Ensure{Body: body(printLine(str("body")), &ast.Break{}), Clause: failing("ensure")},
			}, "RuntimeException", printMessage())),
			want: "body\nensure\nensure failed\n",
		},
		{
			name: "return",
			root: script(leave, rescue(&ast.FunctionalCall{Name: "leave"}, "RuntimeException", printMessage())),
			want: "body\nensure\nensure failed\n",
		},
		{
			name: "nested break",
			root: script(rescue(&ast.Loop{
				Condition:  &ast.Boolean{Value: true},
				CheckFirst: true,
				Body: &ast.Ensure{
					Body:   &ast.Ensure{Body: body(printLine(str("body")), &ast.Break{}), Clause: failing("inner")},
					Clause: printLine(str("outer")),
				},
			}, "RuntimeException", printMessage())),
			want: "body\ninner\nouter\ninner failed\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectOutput(t, tt.root, tt.want)
		})
	}
}

func TestRescueAsOperand(t *testing.T) {
	quotient := &ast.Rescue{
		Body:    call(num(1), "/", local("z")),
		Clauses: []*ast.RescueClause{{Types: []ast.TypeRef{"ArithmeticException"}, Body: num(-1)}},
	}
	expectOutput(t, script(
		assign("z", num(0)),
		assign("x", call(num(10), "+", quotient)),
		printLine(local("x")),
	), "9\n")
}

func TestConditionalValueDefaultsWithoutElse(t *testing.T) {
	expectOutput(t, script(
		assign("i", num(0)),
		printLine(&ast.If{Condition: call(local("i"), "==", num(1)), Body: num(5)}),
	), "0\n")
}

func TestClassBodyFieldPerInstance(t *testing.T) {
	decl := &ast.FieldDeclaration{Name: "@count", Type: "int"}
	bump := &ast.MethodDefinition{Name: "bump", Body: body(&ast.FieldAssignment{
		Name:  "@count",
		Value: call(&ast.Field{Name: "@count"}, "+", num(1)),
	})}
	get := &ast.MethodDefinition{Name: "count", Signature: ast.Signature{Return: "int"}, Body: body(&ast.Field{Name: "@count"})}
	counter := &ast.ClassDefinition{Name: "Counter", Body: body(decl, bump, get)}

	expectOutput(t, script(counter,
		assign("a", call(&ast.Constant{Name: "Counter"}, "new")),
		assign("b", call(&ast.Constant{Name: "Counter"}, "new")),
		call(local("a"), "bump"),
		call(local("a"), "bump"),
		call(local("b"), "bump"),
		printLine(call(local("a"), "count"), str(" "), call(local("b"), "count")),
	), "2 1\n")
}

func TestPopUnderflow(t *testing.T) {
	defer func() {
		if r := recover(); r != errStackUnderflow {
			t.Errorf("recover() = %v, want %v", r, errStackUnderflow)
		}
	}()
	(&frame{}).pop()
}

func TestDivisionByZeroIsRescued(t *testing.T) {
	expectOutput(t, script(
		assign("z", num(0)),
		rescue(printLine(call(num(1), "/", local("z"))), "ArithmeticException", printMessage()),
	), "/ by zero\n")
}

func TestUncaughtException(t *testing.T) {
	_, err := run(t, script(&ast.Raise{Value: str("bad")}))
	var u *UncaughtError
	if !errors.As(err, &u) {
		t.Fatalf("err = %v, want *UncaughtError", err)
	}
	if u.Message() != "bad" {
		t.Errorf("Message() = %q, want %q", u.Message(), "bad")
	}
	if got, want := u.Error(), "uncaught RuntimeException: bad"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if len(u.Trace) != 1 || !strings.HasPrefix(u.Trace[0], "Test.main") {
		t.Errorf("Trace = %v", u.Trace)
	}
	if !strings.Contains(u.StackTrace(), "\tat Test.main") {
		t.Errorf("StackTrace() = %q", u.StackTrace())
	}
}

func TestListIteration(t *testing.T) {
	expectOutput(t, script(
		assign("l", call(&ast.Constant{Name: "List"}, "new")),
		call(local("l"), "add", str("a")),
		call(local("l"), "add", str("b")),
		&ast.ForEach{Var: "x", Iter: local("l"), Body: printLine(local("x"))},
		printLine(call(local("l"), "size")),
	), "a\nb\n2\n")
}

func TestArrays(t *testing.T) {
	expectOutput(t, script(
		assign("xs", &ast.EmptyArray{Component: "int", Size: num(3)}),
		call(local("xs"), "[]=", num(1), num(5)),
		call(local("xs"), "[]=", num(2), num(4)),
		assign("s", num(0)),
		&ast.ForEach{Var: "x", Iter: local("xs"), Body: assign("s", call(local("s"), "+", local("x")))},
		printLine(call(local("xs"), "length"), str(" "), local("s")),
		rescue(printLine(call(local("xs"), "[]", num(3))), "IndexOutOfBoundsException", printMessage()),
	), "3 9\nIndex 3 out of bounds for length 3\n")
}

func TestClassDispatch(t *testing.T) {
	ctor := ast.NewConstructorDefinition(ast.Signature{Params: map[string]ast.TypeRef{"x": "int"}},
		&ast.Arguments{Required: []*ast.RequiredArgument{{Name: "x"}}},
		body(&ast.FieldAssignment{Name: "@x", Value: local("x")}), nil)
	getter := &ast.MethodDefinition{Name: "x", Signature: ast.Signature{Return: "int"}, Body: body(&ast.Field{Name: "@x"})}
	show := &ast.MethodDefinition{
		Name:      "toString",
		Signature: ast.Signature{Return: "string"},
		Body:      body(call(str("Point "), "+", &ast.Field{Name: "@x"})),
	}
	point := &ast.ClassDefinition{Name: "Point", Body: body(ctor, getter, show)}

	expectOutput(t, script(point,
		assign("p", call(&ast.Constant{Name: "Point"}, "new", num(7))),
		printLine(call(local("p"), "x")),
		printLine(local("p")),
	), "7\nPoint 7\n")
}

func TestStackOverflow(t *testing.T) {
	r := &ast.MethodDefinition{
		Name:      "r",
		Args:      &ast.Arguments{Required: []*ast.RequiredArgument{{Name: "n"}}},
		Signature: ast.Signature{Params: map[string]ast.TypeRef{"n": "int"}, Return: "int"},
		Body:      body(&ast.FunctionalCall{Name: "r", Args: []ast.Node{local("n")}}),
	}
	_, err := run(t, script(r, &ast.FunctionalCall{Name: "r", Args: []ast.Node{num(1)}}), WithMaxDepth(64))
	if !errors.Is(err, ErrStackOverflow) {
		t.Errorf("err = %v, want %v", err, ErrStackOverflow)
	}
}

func TestCancellation(t *testing.T) {
	machine := New(WithOutput(&bytes.Buffer{}))
	if err := machine.Load(compile(t, script(printLine(str("never"))))...); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := machine.Run(ctx, "Test", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want %v", err, context.Canceled)
	}
}

func TestLoadBytes(t *testing.T) {
	var images [][]byte
	for _, u := range compile(t, script(printLine(str("from bytes")))) {
		data, err := bytecode.Marshal(u)
		if err != nil {
			t.Fatal(err)
		}
		images = append(images, data)
	}
	var out bytes.Buffer
	machine := New(WithOutput(&out))
	if err := machine.LoadBytes(images...); err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if err := machine.Run(context.Background(), "Test", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "from bytes\n" {
		t.Errorf("output = %q", out.String())
	}
	if err := machine.LoadBytes(images...); err == nil {
		t.Error("loading a class twice succeeded")
	}
}

func TestInvokeFromGo(t *testing.T) {
	add := &ast.MethodDefinition{
		Name:      "add",
		Args:      &ast.Arguments{Required: []*ast.RequiredArgument{{Name: "a"}, {Name: "b"}}},
		Signature: ast.Signature{Params: map[string]ast.TypeRef{"a": "int", "b": "int"}, Return: "int"},
		Body:      body(call(local("a"), "+", local("b"))),
	}
	machine := New()
	if err := machine.Load(compile(t, script(add))...); err != nil {
		t.Fatal(err)
	}
	v, err := machine.InvokeStatic(context.Background(), "Test", "add", "(int,int)int", int32(2), int32(3))
	if err != nil {
		t.Fatal(err)
	}
	if v != int32(5) {
		t.Errorf("add(2, 3) = %v, want 5", v)
	}
	list, err := machine.Instantiate(context.Background(), "List", "()void")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := machine.InvokeVirtual(context.Background(), list, "add", "(object)boolean", "x"); err != nil {
		t.Fatal(err)
	}
	s, err := machine.InvokeVirtual(context.Background(), list, "toString", "()string")
	if err != nil || s != "[x]" {
		t.Errorf("toString() = %v, %v, want [x]", s, err)
	}
}
