package ast

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Decode reads a tree document and builds its Tree. Documents are CUE (JSON
// is valid CUE): every node is a struct with a "kind" field naming its kind
// as returned by Kind, plus optional "line" and "column" fields.
//
//	kind: "script"
//	body: {kind: "body", children: [
//		{kind: "print", newline: true, values: [{kind: "string", value: "hi"}]},
//	]}
//
// A document that is not itself a script is wrapped in one.
func Decode(src []byte, filename string) (*Tree, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	d := &decoder{filename: filename}
	root, err := d.node(v)
	if err != nil {
		return nil, err
	}
	if _, ok := root.(*Script); !ok {
		root = At(&Script{Body: root}, 1, 1)
	}
	return NewTree(root)
}

type decoder struct {
	filename string
}

func (d *decoder) errorf(v cue.Value, format string, args ...any) error {
	return fmt.Errorf("%s:%s: %s", d.filename, d.position(v), fmt.Sprintf(format, args...))
}

func (d *decoder) position(v cue.Value) Position {
	line, _ := d.int(v, "line")
	col, _ := d.int(v, "column")
	if line == 0 {
		if p := v.Pos(); p.IsValid() {
			return Position{Line: p.Line(), Column: p.Column()}
		}
	}
	return Position{Line: int(line), Column: int(col)}
}

func field(v cue.Value, name string) cue.Value {
	return v.LookupPath(cue.MakePath(cue.Str(name)))
}

func (d *decoder) string(v cue.Value, name string) (string, error) {
	f := field(v, name)
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", d.errorf(v, "%s: %v", name, err)
	}
	return s, nil
}

func (d *decoder) int(v cue.Value, name string) (int64, error) {
	f := field(v, name)
	if !f.Exists() {
		return 0, nil
	}
	return f.Int64()
}

func (d *decoder) bool(v cue.Value, name string) (bool, error) {
	f := field(v, name)
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, d.errorf(v, "%s: %v", name, err)
	}
	return b, nil
}

func (d *decoder) types(v cue.Value, name string) ([]TypeRef, error) {
	f := field(v, name)
	if !f.Exists() {
		return nil, nil
	}
	var names []string
	if err := f.Decode(&names); err != nil {
		return nil, d.errorf(v, "%s: %v", name, err)
	}
	refs := make([]TypeRef, len(names))
	for i, n := range names {
		refs[i] = TypeRef(n)
	}
	return refs, nil
}

// child decodes an optional node-valued field.
func (d *decoder) child(v cue.Value, name string) (Node, error) {
	f := field(v, name)
	if !f.Exists() || f.Kind() == cue.NullKind {
		return nil, nil
	}
	return d.node(f)
}

// list decodes a list of nodes.
func (d *decoder) list(v cue.Value, name string) ([]Node, error) {
	f := field(v, name)
	if !f.Exists() {
		return nil, nil
	}
	it, err := f.List()
	if err != nil {
		return nil, d.errorf(v, "%s: %v", name, err)
	}
	var out []Node
	for it.Next() {
		n, err := d.node(it.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (d *decoder) annotations(v cue.Value) ([]*Annotation, error) {
	f := field(v, "annotations")
	if !f.Exists() {
		return nil, nil
	}
	var raw []struct {
		Name   string            `json:"name"`
		Values map[string]string `json:"values"`
	}
	if err := f.Decode(&raw); err != nil {
		return nil, d.errorf(v, "annotations: %v", err)
	}
	out := make([]*Annotation, len(raw))
	for i, a := range raw {
		out[i] = &Annotation{Name: a.Name, Values: a.Values}
	}
	return out, nil
}

func (d *decoder) signature(v cue.Value) (Signature, error) {
	var sig Signature
	f := field(v, "signature")
	if !f.Exists() {
		return sig, nil
	}
	var raw struct {
		Params map[string]string `json:"params"`
		Return string            `json:"return"`
		Throws []string          `json:"throws"`
	}
	if err := f.Decode(&raw); err != nil {
		return sig, d.errorf(v, "signature: %v", err)
	}
	if len(raw.Params) > 0 {
		sig.Params = make(map[string]TypeRef, len(raw.Params))
		for k, t := range raw.Params {
			sig.Params[k] = TypeRef(t)
		}
	}
	sig.Return = TypeRef(raw.Return)
	for _, t := range raw.Throws {
		sig.Throws = append(sig.Throws, TypeRef(t))
	}
	return sig, nil
}

func (d *decoder) arguments(v cue.Value) (*Arguments, error) {
	args := &Arguments{}
	f := field(v, "args")
	if !f.Exists() {
		return args, nil
	}
	args.Position = d.position(f)
	var required []string
	if r := field(f, "required"); r.Exists() {
		if err := r.Decode(&required); err != nil {
			return nil, d.errorf(f, "required: %v", err)
		}
	}
	for _, name := range required {
		args.Required = append(args.Required, &RequiredArgument{nodeMeta: nodeMeta{Position: args.Position}, Name: name})
	}
	if o := field(f, "optional"); o.Exists() {
		it, err := o.List()
		if err != nil {
			return nil, d.errorf(f, "optional: %v", err)
		}
		for it.Next() {
			name, err := d.string(it.Value(), "name")
			if err != nil {
				return nil, err
			}
			value, err := d.child(it.Value(), "value")
			if err != nil {
				return nil, err
			}
			if value == nil {
				return nil, d.errorf(it.Value(), "optional argument %q has no default", name)
			}
			args.Optional = append(args.Optional, &OptionalArgument{nodeMeta: nodeMeta{Position: d.position(it.Value())}, Name: name, Value: value})
		}
	}
	rest, err := d.string(f, "rest")
	if err != nil {
		return nil, err
	}
	if rest != "" {
		args.Rest = &RestArgument{nodeMeta: nodeMeta{Position: args.Position}, Name: rest}
	}
	block, err := d.string(f, "block")
	if err != nil {
		return nil, err
	}
	if block != "" {
		args.Block = &BlockArgument{nodeMeta: nodeMeta{Position: args.Position}, Name: block}
	}
	return args, nil
}

// node decodes one node. The first error from a field read is kept in firstErr so
// that each case stays a flat list of field reads.
func (d *decoder) node(v cue.Value) (Node, error) {
	if v.Kind() != cue.StructKind {
		return nil, d.errorf(v, "expected a node, got %s", v.Kind())
	}
	kind, err := d.string(v, "kind")
	if err != nil {
		return nil, err
	}

	var firstErr error
	check := func(e error) {
		if e != nil && firstErr == nil {
			firstErr = e
		}
	}
	str := func(name string) string { s, e := d.string(v, name); check(e); return s }
	flag := func(name string) bool { b, e := d.bool(v, name); check(e); return b }
	kid := func(name string) Node { n, e := d.child(v, name); check(e); return n }
	kids := func(name string) []Node { n, e := d.list(v, name); check(e); return n }
	typeList := func(name string) []TypeRef { t, e := d.types(v, name); check(e); return t }

	var n Node
	switch kind {
	case "script":
		n = &Script{Body: kid("body")}
	case "body":
		n = &Body{Children: kids("children")}
	case "noop":
		n = &Noop{}
	case "fixnum":
		i, e := field(v, "value").Int64()
		check(e)
		n = &Fixnum{Value: i}
	case "float":
		f, e := field(v, "value").Float64()
		check(e)
		n = &Float{Value: f}
	case "string":
		n = &String{Value: str("value")}
	case "boolean":
		n = &Boolean{Value: flag("value")}
	case "null":
		n = &Null{}
	case "self":
		n = &Self{}
	case "constant":
		n = &Constant{Name: str("name")}
	case "empty_array":
		n = &EmptyArray{Component: TypeRef(str("type")), Size: kid("size")}
	case "local":
		n = &Local{Name: str("name")}
	case "local_assignment":
		n = &LocalAssignment{Name: str("name"), Value: kid("value")}
	case "local_declaration":
		n = &LocalDeclaration{Name: str("name"), Type: TypeRef(str("type"))}
	case "field":
		n = &Field{Name: str("name")}
	case "field_assignment":
		n = &FieldAssignment{Name: str("name"), Value: kid("value")}
	case "field_declaration":
		n = &FieldDeclaration{Name: str("name"), Type: TypeRef(str("type"))}
	case "call":
		n = &Call{Target: kid("target"), Name: str("name"), Args: kids("args")}
	case "functional_call":
		n = &FunctionalCall{Name: str("name"), Args: kids("args")}
	case "super":
		n = &Super{Args: kids("args"), Bare: !field(v, "args").Exists()}
	case "cast":
		n = &Cast{Type: TypeRef(str("type")), Value: kid("value")}
	case "if":
		n = &If{Condition: kid("condition"), Body: kid("body"), Else: kid("else")}
	case "and":
		n = &And{Left: kid("left"), Right: kid("right")}
	case "or":
		n = &Or{Left: kid("left"), Right: kid("right")}
	case "not":
		n = &Not{Value: kid("value")}
	case "loop":
		checkFirst := true
		if field(v, "check_first").Exists() {
			checkFirst = flag("check_first")
		}
		n = &Loop{
			Init:       kid("init"),
			Condition:  kid("condition"),
			Pre:        kid("pre"),
			Body:       kid("body"),
			Post:       kid("post"),
			CheckFirst: checkFirst,
			Negative:   flag("negative"),
		}
	case "for_each":
		n = &ForEach{Var: str("var"), Iter: kid("iter"), Body: kid("body")}
	case "break":
		n = &Break{}
	case "next":
		n = &Next{}
	case "redo":
		n = &Redo{}
	case "return":
		n = &Return{Value: kid("value")}
	case "raise":
		n = &Raise{Value: kid("value")}
	case "rescue":
		r := &Rescue{Body: kid("body")}
		for _, c := range kids("clauses") {
			rc, ok := c.(*RescueClause)
			if !ok {
				check(d.errorf(v, "rescue clause expected, got %s", Kind(c)))
				break
			}
			r.Clauses = append(r.Clauses, rc)
		}
		n = r
	case "rescue_clause":
		n = &RescueClause{Types: typeList("types"), Name: str("name"), Body: kid("body")}
	case "ensure":
		n = &Ensure{Body: kid("body"), Clause: kid("clause")}
	case "print":
		n = &Print{Values: kids("values"), Newline: flag("newline")}
	case "import":
		n = &Import{Short: str("short"), Long: str("long")}
	case "class":
		annotations, e := d.annotations(v)
		check(e)
		n = &ClassDefinition{
			Name:        str("name"),
			Super:       TypeRef(str("super")),
			Interfaces:  typeList("interfaces"),
			Body:        kid("body"),
			Annotations: annotations,
		}
	case "interface":
		n = &InterfaceDeclaration{Name: str("name"), Extends: typeList("extends"), Body: kid("body")}
	case "method", "constructor":
		sig, e := d.signature(v)
		check(e)
		args, e := d.arguments(v)
		check(e)
		annotations, e := d.annotations(v)
		check(e)
		name := str("name")
		if kind == "constructor" || name == ConstructorName {
			n = NewConstructorDefinition(sig, args, kid("body"), annotations)
			break
		}
		n = &MethodDefinition{
			Name:        name,
			Signature:   sig,
			Args:        args,
			Body:        kid("body"),
			Annotations: annotations,
			Static:      flag("static"),
		}
	default:
		return nil, d.errorf(v, "unknown node kind %q", kind)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	n.meta().Position = d.position(v)
	return n, nil
}
