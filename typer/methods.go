package typer

import (
	"strings"

	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/pkg/types"
)

// SignatureAnnotation is the annotation whose values supply parameter types
// (by parameter name), the return type ("return") and thrown types
// ("throws", comma separated) missing from a method's declared signature.
const SignatureAnnotation = "Signature"

// signature is a method's declared signature merged with its annotation
// hints.
type signature struct {
	params map[string]ast.TypeRef
	ret    ast.TypeRef
	throws []ast.TypeRef
}

func (t *Typer) signature(md *ast.MethodDefinition) *signature {
	if sig, ok := t.sigs[md.ID()]; ok {
		return sig
	}
	sig := &signature{
		params: make(map[string]ast.TypeRef, len(md.Signature.Params)),
		ret:    md.Signature.Return,
		throws: md.Signature.Throws,
	}
	for name, ref := range md.Signature.Params {
		sig.params[name] = ref
	}
	for _, a := range md.Annotations {
		if a.Name != SignatureAnnotation {
			continue
		}
		for key, value := range a.Values {
			switch key {
			case "return":
				if sig.ret.Absent() {
					sig.ret = ast.TypeRef(value)
				}
			case "throws":
				if len(sig.throws) == 0 {
					for _, name := range strings.Split(value, ",") {
						if name = strings.TrimSpace(name); name != "" {
							sig.throws = append(sig.throws, ast.TypeRef(name))
						}
					}
				}
			default:
				if _, ok := sig.params[key]; !ok {
					sig.params[key] = ast.TypeRef(value)
				}
			}
		}
	}
	t.sigs[md.ID()] = sig
	return sig
}

// DefiningType returns the type a method is learned on: the enclosing
// class, or the unit type for script-level methods. Static and script-level
// methods live on the meta type.
func (t *Typer) DefiningType(def ast.Definition) *types.Type {
	owner := t.classType(def)
	if owner == nil {
		return nil
	}
	if _, ctor := def.(*ast.ConstructorDefinition); ctor {
		return owner
	}
	if def.Def().Static || t.tree.Class(def) == nil {
		return owner.Meta()
	}
	return owner
}

// isAbstract reports whether def is declared in an interface.
func (t *Typer) isAbstract(def ast.Definition) bool {
	_, ok := t.tree.Scope(def).(*ast.InterfaceDeclaration)
	return ok
}

// inferArgument types a parameter from the method's signature, from its
// default value, or from a type learned for the local elsewhere. The result
// is learned as a local of the method.
func (t *Typer) inferArgument(n ast.Node, name string, value ast.Node) *types.Type {
	def := t.tree.Method(n)
	if def == nil {
		t.errorAt(n, "argument %s outside of a method", name)
		return t.reg.Void()
	}
	ref, declared := t.signature(def.Def()).params[name]
	var typ *types.Type
	if declared {
		if typ = t.lookup(ref); typ == nil {
			if value != nil {
				t.Infer(value)
			}
			return t.waitFor(n, "unknown type %s", ref)
		}
	}

	switch n.(type) {
	case *ast.OptionalArgument:
		v := t.Infer(value)
		if v == nil {
			return nil
		}
		switch {
		case typ != nil:
			if !typ.IsParent(v) {
				t.errorAt(value, "default value of %s is %s, not %s", name, v, typ)
			}
		case v.IsNull() || v.IsVoid() || v.IsUnreachable():
			t.errorAt(value, "cannot infer the type of %s from a %s default", name, v)
			typ = t.reg.Object()
		default:
			typ = v
		}
	case *ast.RestArgument:
		switch {
		case typ == nil:
			typ = t.reg.Object().Array()
		case !typ.IsArray():
			typ = typ.Array()
		}
	default:
		if typ == nil {
			typ = t.LocalType(def.ID(), name)
		}
		if typ == nil {
			return t.waitFor(n, "no type for argument %s", name)
		}
	}
	return t.LearnLocalType(def.ID(), name, typ)
}

// argumentTypes returns the resolved parameter types of def in declaration
// order, with the number of required and optional parameters.
func (t *Typer) argumentTypes(md *ast.MethodDefinition) (params []*types.Type, required, optional int) {
	if md.Args == nil {
		return nil, 0, 0
	}
	for _, a := range md.Args.Nodes() {
		params = append(params, t.TypeOf(a.ID()))
	}
	return params, len(md.Args.Required), len(md.Args.Optional)
}

// OverloadParams returns the parameter lists of the overloads learned for a
// method with the given parameters, shortest first. Overload i takes the
// required parameters, the first i optional ones and the trailing rest and
// block parameters; the last is the full list.
func OverloadParams(params []*types.Type, required, optional int) [][]*types.Type {
	tail := params[required+optional:]
	out := make([][]*types.Type, 0, optional+1)
	for i := 0; i <= optional; i++ {
		p := make([]*types.Type, 0, required+i+len(tail))
		p = append(p, params[:required+i]...)
		p = append(p, tail...)
		out = append(out, p)
	}
	return out
}

// learnOverloads learns the full signature of def and one overload for
// each prefix of its optional parameters.
func (t *Typer) learnOverloads(def ast.Definition, owner *types.Type, ret *types.Type, throws []*types.Type) *types.MethodType {
	md := def.Def()
	params, required, optional := t.argumentTypes(md)
	var full *types.MethodType
	for _, p := range OverloadParams(params, required, optional) {
		full = t.learnMethod(owner, md.Name, p, ret, throws)
	}
	t.defs[def.ID()] = full
	return full
}

// inferMethod is the rule shared by methods and constructors. The result
// is the method's effective return type.
func (t *Typer) inferMethod(def ast.Definition) *types.Type {
	md := def.Def()
	_, isCtor := def.(*ast.ConstructorDefinition)
	owner := t.DefiningType(def)
	if owner == nil {
		if md.Args != nil {
			t.Infer(md.Args)
		}
		t.inferOptional(md.Body)
		return t.waitFor(def, "enclosing class of %s is not declared", md.Name)
	}
	t.log.Debugf("Inferring method %s.%s", owner, md.Name)

	argsDone := md.Args == nil || t.Infer(md.Args) != nil
	sig := t.signature(md)

	var declared *types.Type
	declaredKnown := true
	switch {
	case isCtor:
		declared = t.reg.Void()
	case !sig.ret.Absent():
		if declared = t.lookup(sig.ret); declared == nil {
			declaredKnown = false
			t.waitFor(def, "unknown return type %s", sig.ret)
		}
	}
	throws, throwsKnown := t.lookupAll(sig.throws)
	if !throwsKnown {
		t.waitFor(def, "unknown exception type in %v", sig.throws)
	}

	// Learning the signature before the body lets recursive calls resolve.
	if argsDone && declared != nil && throwsKnown && !t.early[def.ID()] {
		t.early[def.ID()] = true
		t.learnOverloads(def, owner, declared, throws)
	}

	body := t.inferOptional(md.Body)
	if !argsDone || body == nil || !declaredKnown || !throwsKnown {
		return nil
	}

	actual := declared
	if actual == nil {
		actual = body
		if actual.IsUnreachable() {
			actual = t.reg.Void()
		}
	} else if !isCtor && !declared.IsVoid() && !t.isAbstract(def) && !declared.IsParent(body) {
		t.errorAt(def, "inferred return type %s is incompatible with declared %s", body, declared)
	}

	t.learnOverloads(def, owner, actual, throws)
	return actual
}

// inferConstructor types the delegate call's arguments, then the
// constructor as a method, then checks that the constructor it chains to
// exists.
func (t *Typer) inferConstructor(c *ast.ConstructorDefinition) *types.Type {
	if t.tree.Class(c) == nil {
		t.errorAt(c, "constructor outside of a class")
		return t.reg.Void()
	}
	delegateArgs, argsDone := t.inferAll(c.DelegateArgs)
	ret := t.inferMethod(c)
	if !argsDone || ret == nil {
		return nil
	}

	cls := t.classType(c)
	target := cls
	if !c.Delegates || c.CallsSuper {
		if target = cls.Superclass(); target == nil {
			return ret
		}
	}
	if _, err := t.reg.FindConstructor(target, delegateArgs); err != nil {
		return t.waitErr(c, err)
	}
	return ret
}

// hasConstructor reports whether a class body declares a constructor.
func hasConstructor(body ast.Node) bool {
	for _, s := range ast.Statements(body) {
		if _, ok := s.(*ast.ConstructorDefinition); ok {
			return true
		}
	}
	return false
}

// inferClass declares the class, gives it a default constructor when it has
// none, and infers its members.
func (t *Typer) inferClass(n *ast.ClassDefinition) *types.Type {
	typ := t.declare(n)
	if typ == nil {
		t.inferOptional(n.Body)
		return t.waitFor(n, "unknown supertype of %s", n.Name)
	}
	implicit := !hasConstructor(n.Body)
	if implicit {
		t.learnMethod(typ, types.ConstructorName, nil, t.reg.Void(), nil)
	}
	if t.inferOptional(n.Body) == nil {
		return nil
	}
	if super := typ.Superclass(); implicit && super != nil {
		if _, err := t.reg.FindConstructor(super, nil); err != nil {
			return t.waitErr(n, err)
		}
	}
	return typ
}
