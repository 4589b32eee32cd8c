package ast

import (
	"strings"
	"testing"
)

const classDoc = `
kind: "script"
body: {kind: "body", children: [
	{kind: "class", name: "Point", line: 2, column: 1, body: {kind: "body", children: [
		{
			kind: "method"
			name: "initialize"
			args: {required: ["x"], optional: [{name: "y", value: {kind: "fixnum", value: 0}}]}
			signature: {params: {x: "int", y: "int"}}
			body: {kind: "body", children: [
				{kind: "super"},
				{kind: "field_assignment", name: "@x", value: {kind: "local", name: "x"}},
			]}
		},
		{
			kind: "method"
			name: "norm"
			static: true
			annotations: [{name: "Signature", values: {return: "double"}}]
			body: {kind: "float", value: 1.5}
		},
	]}},
	{kind: "print", newline: true, values: [{kind: "string", value: "hi"}]},
]}
`

func TestDecodeClass(t *testing.T) {
	tree, err := Decode([]byte(classDoc), "point.cue")
	if err != nil {
		t.Fatal(err)
	}
	root, ok := tree.Root().(*Script)
	if !ok {
		t.Fatalf("root = %s, want script", Kind(tree.Root()))
	}
	stmts := root.Body.(*Body).Children
	if len(stmts) != 2 {
		t.Fatalf("len(statements) = %d, want 2", len(stmts))
	}

	class := stmts[0].(*ClassDefinition)
	if class.Name != "Point" || class.Pos().Line != 2 {
		t.Errorf("class = %q at %s", class.Name, class.Pos())
	}
	members := class.Body.(*Body).Children

	ctor, ok := members[0].(*ConstructorDefinition)
	if !ok {
		t.Fatalf("initialize decoded as %s, want constructor", Kind(members[0]))
	}
	if !ctor.CallsSuper || len(ctor.DelegateArgs) != 2 {
		t.Errorf("bare super: CallsSuper = %v, args = %d", ctor.CallsSuper, len(ctor.DelegateArgs))
	}
	if ctor.Signature.Params["y"] != "int" {
		t.Errorf("param y type = %q, want int", ctor.Signature.Params["y"])
	}
	if names := ctor.Args.Names(); len(names) != 2 || names[1] != "y" {
		t.Errorf("args = %v, want [x y]", names)
	}

	norm := members[1].(*MethodDefinition)
	if !norm.Static {
		t.Error("norm should be static")
	}
	if len(norm.Annotations) != 1 || norm.Annotations[0].Values["return"] != "double" {
		t.Errorf("annotations = %+v", norm.Annotations)
	}
	if f, ok := norm.Body.(*Float); !ok || f.Value != 1.5 {
		t.Errorf("body = %v, want float 1.5", norm.Body)
	}

	p := stmts[1].(*Print)
	if !p.Newline || len(p.Values) != 1 {
		t.Errorf("print = %+v", p)
	}

	if tree.Method(ctor.DelegateArgs[0]) != Definition(ctor) {
		t.Error("forwarded super args are not in the constructor")
	}
}

func TestDecodeWrapsExpression(t *testing.T) {
	tree, err := Decode([]byte(`{"kind": "fixnum", "value": 3000000000}`), "big.json")
	if err != nil {
		t.Fatal(err)
	}
	root := tree.Root().(*Script)
	if f := root.Body.(*Fixnum); f.Value != 3000000000 {
		t.Errorf("value = %d", f.Value)
	}
}

func TestDecodeLoopDefaults(t *testing.T) {
	doc := `kind: "loop", condition: {kind: "boolean", value: true}, body: {kind: "break"}`
	tree, err := Decode([]byte(doc), "loop.cue")
	if err != nil {
		t.Fatal(err)
	}
	loop := tree.Root().(*Script).Body.(*Loop)
	if !loop.CheckFirst || loop.Negative {
		t.Errorf("CheckFirst = %v, Negative = %v; want true, false", loop.CheckFirst, loop.Negative)
	}
}

func TestDecodeRescue(t *testing.T) {
	doc := `
kind: "rescue"
body: {kind: "raise", value: {kind: "string", value: "boom"}}
clauses: [{kind: "rescue_clause", types: ["RuntimeException"], name: "e", body: {kind: "local", name: "e"}}]
`
	tree, err := Decode([]byte(doc), "rescue.cue")
	if err != nil {
		t.Fatal(err)
	}
	r := tree.Root().(*Script).Body.(*Rescue)
	if len(r.Clauses) != 1 || r.Clauses[0].Types[0] != "RuntimeException" || r.Clauses[0].Name != "e" {
		t.Errorf("clauses = %+v", r.Clauses)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		doc  string
		want string
	}{
		{`kind: "wibble"`, "unknown node kind"},
		{`kind: "rescue", clauses: [{kind: "noop"}]`, "rescue clause expected"},
		{`kind: "method", name: "m", args: {optional: [{name: "a"}]}`, "has no default"},
		{`kind: "body", children: [1]`, "expected a node"},
		{`kind: "string", value: 3`, "value"},
		{`kind: `, "bad.cue"},
	}
	for _, tt := range tests {
		_, err := Decode([]byte(tt.doc), "bad.cue")
		if err == nil {
			t.Errorf("Decode(%q) succeeded, want error", tt.doc)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Decode(%q) error = %q, want it to mention %q", tt.doc, err, tt.want)
		}
	}
}
