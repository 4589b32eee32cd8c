package compiler

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/pkg/bytecode"
	"github.com/chazu/garnet/typer"
)

// ---------------------------------------------------------------------------
// Tree helpers
// ---------------------------------------------------------------------------

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

func required(names ...string) *ast.Arguments {
	a := &ast.Arguments{}
	for _, n := range names {
		a.Required = append(a.Required, &ast.RequiredArgument{Name: n})
	}
	return a
}

func def(name string, args *ast.Arguments, params map[string]ast.TypeRef, ret ast.TypeRef, b ast.Node) *ast.MethodDefinition {
	return &ast.MethodDefinition{
		Name:      name,
		Args:      args,
		Signature: ast.Signature{Params: params, Return: ret},
		Body:      b,
	}
}

// build infers root and returns a compiler for it.
func build(t *testing.T, root ast.Node) (*Compiler, *ast.Tree) {
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
	c, err := New("test.gt", tree, ty)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, tree
}

// compileScript compiles root and returns the generated units by name.
func compileScript(t *testing.T, root ast.Node) map[string]*bytecode.Unit {
	t.Helper()
	c, tree := build(t, root)
	if err := c.Compile(tree.Root(), false); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	units := make(map[string]*bytecode.Unit)
	err := c.Generate(func(filename string, cb *bytecode.ClassBuilder) error {
		units[cb.Name()] = cb.Unit()
		return nil
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return units
}

func method(t *testing.T, u *bytecode.Unit, name, desc string) *bytecode.Method {
	t.Helper()
	if u == nil {
		t.Fatal("unit was not generated")
	}
	m := u.FindMethod(name, desc)
	if m == nil {
		t.Fatalf("%s has no method %s%s:\n%s", u.Name, name, desc, u.Disassemble())
	}
	return m
}

func ops(s string) []string { return strings.Fields(s) }

func checkOps(t *testing.T, m *bytecode.Method, want string) {
	t.Helper()
	if got := m.Ops(); !reflect.DeepEqual(got, ops(want)) {
		t.Errorf("%s%s ops = %v, want %v", m.Name, m.Desc, got, ops(want))
	}
}

func count(list []string, op string) int {
	n := 0
	for _, o := range list {
		if o == op {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestAddMethod(t *testing.T) {
	add := def("add", required("a", "b"), map[string]ast.TypeRef{"a": "int", "b": "int"}, "int",
		body(call(local("a"), "+", local("b"))))
	units := compileScript(t, script(add))

	u := units["Test"]
	m := method(t, u, "add", "(int,int)int")
	if !m.Static {
		t.Error("script methods should be static")
	}
	checkOps(t, m, "ILOAD ILOAD IADD IRETURN")
	checkOps(t, method(t, u, MainName, MainDescriptor), "RETURN")
}

func TestTelescopingOverloads(t *testing.T) {
	args := required("name")
	args.Optional = []*ast.OptionalArgument{{Name: "loud", Value: &ast.Boolean{Value: false}}}
	greet := def("greet", args, map[string]ast.TypeRef{"name": "string"}, "", body(local("name")))
	units := compileScript(t, script(greet))

	u := units["Test"]
	if n := len(u.MethodsNamed("greet")); n != 2 {
		t.Fatalf("greet has %d forms, want 2", n)
	}
	checkOps(t, method(t, u, "greet", "(string,boolean)string"), "ALOAD ARETURN")
	checkOps(t, method(t, u, "greet", "(string)string"), "ALOAD ICONST_0 INVOKESTATIC ARETURN")
}

func TestWhileLoopWirings(t *testing.T) {
	loops := []struct {
		name              string
		checkFirst, until bool
		want              string
	}{
		{"while", true, false, "ICONST_0 ISTORE ILOAD BIPUSH IF_ICMPGE ILOAD ICONST_1 IADD ISTORE GOTO RETURN"},
		{"until", true, true, "ICONST_0 ISTORE ILOAD BIPUSH IF_ICMPLT ILOAD ICONST_1 IADD ISTORE GOTO RETURN"},
		{"do while", false, false, "ICONST_0 ISTORE ILOAD ICONST_1 IADD ISTORE ILOAD BIPUSH IF_ICMPLT RETURN"},
		{"do until", false, true, "ICONST_0 ISTORE ILOAD ICONST_1 IADD ISTORE ILOAD BIPUSH IF_ICMPGE RETURN"},
	}
	for _, l := range loops {
		t.Run(l.name, func(t *testing.T) {
			loop := &ast.Loop{
				Condition:  call(local("i"), "<", num(10)),
				Body:       body(assign("i", call(local("i"), "+", num(1)))),
				CheckFirst: l.checkFirst,
				Negative:   l.until,
			}
			units := compileScript(t, script(assign("i", num(0)), loop))
			checkOps(t, method(t, units["Test"], MainName, MainDescriptor), l.want)
		})
	}
}

func TestRescueSingleRange(t *testing.T) {
	clause := &ast.RescueClause{
		Types: []ast.TypeRef{"RuntimeException"},
		Name:  "e",
		Body:  call(local("e"), "getMessage"),
	}
	r := &ast.Rescue{Body: &ast.Raise{Value: str("boom")}, Clauses: []*ast.RescueClause{clause}}
	units := compileScript(t, script(r))

	m := method(t, units["Test"], MainName, MainDescriptor)
	checkOps(t, m, "NEW DUP LDC INVOKESPECIAL ATHROW GOTO ASTORE ALOAD INVOKEVIRTUAL POP GOTO RETURN")
	if len(m.Handlers) != 1 {
		t.Fatalf("handlers = %v, want one", m.Handlers)
	}
	h := m.Handlers[0]
	if h.Type != "RuntimeException" || h.Start != 0 || h.Target <= h.End {
		t.Errorf("handler = %+v", h)
	}
}

func TestEnsureReplayedOnBreak(t *testing.T) {
	loop := &ast.Loop{
		Condition:  &ast.Boolean{Value: true},
		CheckFirst: true,
		Body: &ast.Ensure{
			Body:   body(printLine(str("body")), &ast.Break{}),
			Clause: printLine(str("cleanup")),
		},
	}
	units := compileScript(t, script(loop))
	m := method(t, units["Test"], MainName, MainDescriptor)

	// The body, then the clause before the break, on normal exit and before
	// rethrowing.
	if n := count(m.Ops(), "GETSTATIC"); n != 4 {
		t.Fatalf("ensure clause emitted %d times, want 3:\n%s", n-1, units["Test"].DisassembleMethod(m))
	}
	if len(m.Handlers) != 1 || m.Handlers[0].Type != "" {
		t.Fatalf("handlers = %+v, want one catch-all", m.Handlers)
	}

	// The replayed clause is outside the protected range.
	ins, err := bytecode.Decode(m.Code)
	if err != nil {
		t.Fatal(err)
	}
	var prints []int
	for _, in := range ins {
		if in.Op == bytecode.OpGetStatic {
			prints = append(prints, in.Offset)
		}
	}
	if h := m.Handlers[0]; int(h.End) > prints[1] {
		t.Errorf("handler %+v covers the replayed clause at %04X", h, prints[1])
	}
}

func TestRescueOperandKeepsStackDepth(t *testing.T) {
	clause := &ast.RescueClause{Types: []ast.TypeRef{"ArithmeticException"}, Body: num(-1)}
	quotient := &ast.Rescue{Body: call(num(1), "/", local("z")), Clauses: []*ast.RescueClause{clause}}
	units := compileScript(t, script(assign("z", num(0)), assign("x", call(num(10), "+", quotient))))

	m := method(t, units["Test"], MainName, MainDescriptor)
	if len(m.Handlers) != 1 {
		t.Fatalf("handlers = %+v, want one", m.Handlers)
	}
	if h := m.Handlers[0]; h.Depth != 1 || h.Type != "ArithmeticException" {
		t.Errorf("handler = %+v, want depth 1 for the pending 10", h)
	}
}

func TestCasts(t *testing.T) {
	casts := []struct {
		name  string
		value ast.Node
		to    ast.TypeRef
		want  string
	}{
		{"double to int", &ast.Float{Value: 3.7}, "int", "LDC D2I ISTORE RETURN"},
		{"same type", num(3), "int", "BIPUSH ISTORE RETURN"},
		{"long to byte", num(1 << 40), "byte", "LDC L2I I2B ISTORE RETURN"},
		{"int to double", num(2), "double", "BIPUSH I2D DSTORE RETURN"},
	}
	for _, c := range casts {
		t.Run(c.name, func(t *testing.T) {
			units := compileScript(t, script(assign("x", &ast.Cast{Type: c.to, Value: c.value})))
			checkOps(t, method(t, units["Test"], MainName, MainDescriptor), c.want)
		})
	}
}

func TestCastError(t *testing.T) {
	c, tree := build(t, script(&ast.Cast{Type: "string", Value: num(1)}))
	err := c.Compile(tree.Root(), false)
	var ce *CastError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CastError", err)
	}
	if !strings.Contains(err.Error(), "cannot cast int to string") {
		t.Errorf("err = %v", err)
	}
}

func TestConditionalWidensBranches(t *testing.T) {
	cond := &ast.If{Condition: &ast.Boolean{Value: true}, Body: num(1), Else: num(1 << 40)}
	units := compileScript(t, script(assign("x", cond)))
	checkOps(t, method(t, units["Test"], MainName, MainDescriptor), "ICONST_1 I2L GOTO LDC LSTORE RETURN")
}

func TestConditionalStatementWithoutElse(t *testing.T) {
	cond := &ast.If{Condition: call(local("i"), "==", num(0)), Body: printLine(str("zero"))}
	units := compileScript(t, script(assign("i", num(0)), cond))
	checkOps(t, method(t, units["Test"], MainName, MainDescriptor),
		"ICONST_0 ISTORE ILOAD ICONST_0 IF_ICMPNE GETSTATIC LDC INVOKEVIRTUAL RETURN")
}

func TestConditionalValueWithoutElse(t *testing.T) {
	arms := []struct {
		name string
		body ast.Node
		want string
	}{
		{"int", num(5), "ICONST_0 ISTORE ILOAD ICONST_1 IF_ICMPNE BIPUSH GOTO ICONST_0 ISTORE RETURN"},
		{"double", &ast.Float{Value: 2.5}, "ICONST_0 ISTORE ILOAD ICONST_1 IF_ICMPNE LDC GOTO DCONST_0 DSTORE RETURN"},
		{"string", str("one"), "ICONST_0 ISTORE ILOAD ICONST_1 IF_ICMPNE LDC GOTO ACONST_NULL ASTORE RETURN"},
	}
	for _, a := range arms {
		t.Run(a.name, func(t *testing.T) {
			cond := &ast.If{Condition: call(local("i"), "==", num(1)), Body: a.body}
			units := compileScript(t, script(assign("i", num(0)), assign("x", cond)))
			checkOps(t, method(t, units["Test"], MainName, MainDescriptor), a.want)
		})
	}
}

func TestLogicalValue(t *testing.T) {
	and := &ast.And{Left: &ast.Boolean{Value: true}, Right: call(local("i"), ">", num(1))}
	units := compileScript(t, script(assign("i", num(0)), assign("b", and)))
	checkOps(t, method(t, units["Test"], MainName, MainDescriptor),
		"ICONST_0 ISTORE ILOAD ICONST_1 IF_ICMPLE ICONST_1 GOTO ICONST_0 ISTORE RETURN")
}

func TestStaticFieldInScript(t *testing.T) {
	units := compileScript(t, script(&ast.FieldAssignment{Name: "@count", Value: num(1)}))
	u := units["Test"]
	checkOps(t, method(t, u, MainName, MainDescriptor), "ICONST_1 PUTSTATIC RETURN")
	f, ok := u.FindField("count")
	if !ok || !f.Static || f.Desc != "int" {
		t.Errorf("field count = %+v, %v", f, ok)
	}
}

func TestClassUnits(t *testing.T) {
	ctor := ast.NewConstructorDefinition(ast.Signature{Params: map[string]ast.TypeRef{"x": "int"}},
		required("x"), body(&ast.FieldAssignment{Name: "@x", Value: local("x")}), nil)
	getter := def("x", nil, nil, "int", body(&ast.Field{Name: "@x"}))
	point := &ast.ClassDefinition{Name: "Point", Body: body(ctor, getter)}
	empty := &ast.ClassDefinition{Name: "Empty"}
	units := compileScript(t, script(point, empty))

	p := units["Point"]
	checkOps(t, method(t, p, "initialize", "(int)void"), "ALOAD INVOKESPECIAL ALOAD ILOAD PUTFIELD RETURN")
	checkOps(t, method(t, p, "x", "()int"), "ALOAD GETFIELD IRETURN")
	if f, ok := p.FindField("x"); !ok || f.Static {
		t.Errorf("field x = %+v, %v", f, ok)
	}
	checkOps(t, method(t, units["Empty"], "initialize", "()void"), "ALOAD INVOKESPECIAL RETURN")
	if p.Super != "object" {
		t.Errorf("Point super = %q, want object", p.Super)
	}
}

func TestClassBodyFieldDeclaration(t *testing.T) {
	decl := &ast.FieldDeclaration{Name: "@count", Type: "int"}
	getter := def("count", nil, nil, "int", body(&ast.Field{Name: "@count"}))
	bump := def("bump", nil, nil, "", body(&ast.FieldAssignment{
		Name:  "@count",
		Value: call(&ast.Field{Name: "@count"}, "+", num(1)),
	}))
	counter := &ast.ClassDefinition{Name: "Counter", Body: body(decl, getter, bump)}
	units := compileScript(t, script(counter))

	u := units["Counter"]
	f, ok := u.FindField("count")
	if !ok || f.Static || f.Desc != "int" {
		t.Errorf("field count = %+v, %v, want an int instance field", f, ok)
	}
	checkOps(t, method(t, u, "count", "()int"), "ALOAD GETFIELD IRETURN")
	for _, m := range u.Methods {
		if m.Name != "bump" {
			continue
		}
		if ops := m.Ops(); count(ops, "PUTFIELD") != 1 || count(ops, "PUTSTATIC") != 0 {
			t.Errorf("bump ops = %v", ops)
		}
	}
}

func TestDeterministicOutput(t *testing.T) {
	tree := func() ast.Node {
		args := required("n")
		args.Optional = []*ast.OptionalArgument{{Name: "step", Value: num(2)}}
		f := def("f", args, map[string]ast.TypeRef{"n": "int"}, "", body(call(local("n"), "*", local("step"))))
		return script(f, printLine(str("a"), num(1)), &ast.FieldAssignment{Name: "@z", Value: str("q")})
	}
	image := func() []byte {
		c, tr := build(t, tree())
		if err := c.Compile(tr.Root(), false); err != nil {
			t.Fatal(err)
		}
		data, err := c.Unit().Bytes()
		if err != nil {
			t.Fatal(err)
		}
		return data
	}
	if a, b := image(), image(); !bytes.Equal(a, b) {
		t.Error("compiling the same tree twice produced different units")
	}
}

func TestGenerateOnce(t *testing.T) {
	c, tree := build(t, script(num(1)))
	if err := c.Compile(tree.Root(), false); err != nil {
		t.Fatal(err)
	}
	var names []string
	sink := func(filename string, cb *bytecode.ClassBuilder) error {
		names = append(names, filename)
		return nil
	}
	if err := c.Generate(sink); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"Test.gbc"}) {
		t.Errorf("generated %v, want [Test.gbc]", names)
	}
	if err := c.Generate(sink); err == nil {
		t.Error("second Generate should fail")
	}
	if err := c.Compile(tree.Root(), false); err == nil || !strings.Contains(err.Error(), "compile after generate") {
		t.Errorf("Compile after Generate = %v", err)
	}
}

func TestSinkError(t *testing.T) {
	c, tree := build(t, script(num(1)))
	if err := c.Compile(tree.Root(), false); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("disk full")
	err := c.Generate(func(string, *bytecode.ClassBuilder) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped sink error", err)
	}
}

func TestNewRejectsFailedInference(t *testing.T) {
	tree, err := ast.NewTree(script(&ast.If{Condition: num(1), Body: num(2)}))
	if err != nil {
		t.Fatal(err)
	}
	ty := typer.New(tree, nil)
	ty.Infer(tree.Root())
	_ = ty.Resolve(true)
	if _, err := New("x.gt", tree, ty); err == nil || !strings.Contains(err.Error(), "expected boolean, found int") {
		t.Errorf("New = %v, want inference failure", err)
	}
}
