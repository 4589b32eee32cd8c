package types

import (
	"errors"
	"sort"
	"strings"
)

// Names of the built-in types every registry knows.
const (
	voidName        = "void"
	ObjectName      = "object"
	StringName      = "string"
	ThrowableName   = "Throwable"
	ExceptionName   = "Exception"
	RuntimeExcName  = "RuntimeException"
	IterableName    = "Iterable"
	IteratorName    = "Iterator"
	ListName        = "List"
	PrintStreamName = "PrintStream"
	SystemName      = "System"

	// ConstructorName is the method name constructors are learned under.
	ConstructorName = "initialize"
)

// TypeFactory populates a registry with built-in types and methods.
type TypeFactory interface {
	DefineTypes(r *Registry)
}

// Registry interns the types of one compilation and the method signatures
// learned for them. It is append-only: a type, once defined, is never
// replaced.
type Registry struct {
	types   map[string]*Type
	aliases map[string]string
	methods map[*Type][]*MethodType

	void, boolean, byte_, short, char, int_, long, float, double *Type
	null, unreachable                                            *Type
}

// NewRegistry creates a registry holding the primitive types, then asks
// factory for the built-in reference types. A nil factory uses Builtins.
func NewRegistry(factory TypeFactory) *Registry {
	r := &Registry{
		types:   make(map[string]*Type),
		aliases: make(map[string]string),
		methods: make(map[*Type][]*MethodType),
	}
	prim := func(k Kind) *Type {
		t := &Type{name: k.String(), kind: k}
		r.types[t.name] = t
		return t
	}
	r.void = prim(KindVoid)
	r.boolean = prim(KindBoolean)
	r.byte_ = prim(KindByte)
	r.short = prim(KindShort)
	r.char = prim(KindChar)
	r.int_ = prim(KindInt)
	r.long = prim(KindLong)
	r.float = prim(KindFloat)
	r.double = prim(KindDouble)
	r.null = prim(KindNull)
	r.unreachable = prim(KindUnreachable)
	r.Define(ObjectName, nil)

	if factory == nil {
		factory = Builtins
	}
	factory.DefineTypes(r)
	return r
}

func (r *Registry) Void() *Type        { return r.void }
func (r *Registry) Boolean() *Type     { return r.boolean }
func (r *Registry) Byte() *Type        { return r.byte_ }
func (r *Registry) Short() *Type       { return r.short }
func (r *Registry) Char() *Type        { return r.char }
func (r *Registry) Int() *Type         { return r.int_ }
func (r *Registry) Long() *Type        { return r.long }
func (r *Registry) Float() *Type       { return r.float }
func (r *Registry) Double() *Type      { return r.double }
func (r *Registry) Null() *Type        { return r.null }
func (r *Registry) Unreachable() *Type { return r.unreachable }
func (r *Registry) Object() *Type      { return r.types[ObjectName] }
func (r *Registry) String() *Type      { return r.types[StringName] }

// Primitive returns the primitive type of kind k.
func (r *Registry) Primitive(k Kind) *Type {
	if k == KindReference {
		return nil
	}
	return r.types[k.String()]
}

// Define registers a reference class. Defining an existing name returns the
// existing type; a missing superclass is filled in, nothing else changes.
func (r *Registry) Define(name string, super *Type, interfaces ...*Type) *Type {
	if t, ok := r.types[name]; ok {
		if t.super == nil && super != nil && t.kind == KindReference && t.name != ObjectName {
			t.super = super
		}
		return t
	}
	if super == nil && name != ObjectName {
		super = r.types[ObjectName]
	}
	t := &Type{name: name, kind: KindReference, super: super, interfaces: interfaces}
	r.types[name] = t
	return t
}

// DefineInterface registers an interface type.
func (r *Registry) DefineInterface(name string, extends ...*Type) *Type {
	if t, ok := r.types[name]; ok {
		return t
	}
	t := &Type{name: name, kind: KindReference, iface: true, interfaces: extends}
	r.types[name] = t
	return t
}

// Alias makes short resolve to the type named long.
func (r *Registry) Alias(short, long string) {
	if short != long {
		r.aliases[short] = long
	}
}

// Lookup resolves a type name. A trailing "[]" denotes an array. It returns
// nil for unknown names.
func (r *Registry) Lookup(name string) *Type {
	if elem, ok := strings.CutSuffix(name, "[]"); ok {
		if t := r.Lookup(elem); t != nil {
			return t.Array()
		}
		return nil
	}
	if long, ok := r.aliases[name]; ok {
		name = long
	}
	return r.types[name]
}

// Names returns the names of the defined types, sorted. The internal null
// and unreachable types are left out.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name, t := range r.types {
		if !t.IsNull() && !t.IsUnreachable() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Learn records a method signature on its owner. Learning the same owner,
// name and parameter list again updates the return and thrown types of the
// existing entry and returns it.
func (r *Registry) Learn(m *MethodType) *MethodType {
	for _, old := range r.methods[m.Owner] {
		if old.Name == m.Name && old.Kind == m.Kind && sameParams(old.Params, m.Params) {
			old.Return = m.Return
			old.Throws = m.Throws
			return old
		}
	}
	r.methods[m.Owner] = append(r.methods[m.Owner], m)
	return m
}

// Methods returns the signatures learned directly on owner.
func (r *Registry) Methods(owner *Type) []*MethodType {
	return r.methods[owner]
}

// FindMethod selects the most specific applicable signature for a call of
// name on target with the given argument types. Calling "new" on a meta type
// selects a constructor of the instance type.
func (r *Registry) FindMethod(target *Type, name string, args []*Type) (*MethodType, error) {
	if target.IsMeta() && name == "new" {
		return r.findConstructor(target.Unmeta(), args)
	}
	if target.IsArray() {
		if m := r.arrayMethod(target, name, args); m != nil {
			return m, nil
		}
	}

	var candidates []*MethodType
	for _, owner := range r.lookupChain(target) {
		for _, m := range r.methods[owner] {
			if m.Name == name && m.Kind != MethodConstructor && m.applicable(args) {
				candidates = append(candidates, m)
			}
		}
	}
	return mostSpecific(target, name, args, candidates)
}

func (r *Registry) findConstructor(cls *Type, args []*Type) (*MethodType, error) {
	m, err := r.FindConstructor(cls, args)
	if err != nil {
		var oe *OverloadError
		if errors.As(err, &oe) {
			oe.Receiver, oe.Name = cls.Meta(), "new"
		}
		return nil, err
	}
	ctor := *m
	ctor.Return = cls
	return &ctor, nil
}

// FindConstructor selects the constructor of cls applicable to args. The
// returned signature describes the learned constructor itself.
func (r *Registry) FindConstructor(cls *Type, args []*Type) (*MethodType, error) {
	var candidates []*MethodType
	for _, m := range r.methods[cls] {
		if m.Kind == MethodConstructor && m.applicable(args) {
			candidates = append(candidates, m)
		}
	}
	return mostSpecific(cls, ConstructorName, args, candidates)
}

func mostSpecific(target *Type, name string, args []*Type, candidates []*MethodType) (*MethodType, error) {
	if len(candidates) == 0 {
		return nil, &OverloadError{Receiver: target, Name: name, Args: args}
	}
	// The lookup chain is walked nearest owner first, so among equally
	// specific signatures the first one is the override.
	for _, c := range candidates {
		best := true
		for _, o := range candidates {
			if o != c && !c.moreSpecific(o) {
				best = false
				break
			}
		}
		if best {
			return c, nil
		}
	}
	return nil, &OverloadError{Receiver: target, Name: name, Args: args, Ambiguous: candidates}
}

// lookupChain lists the owners whose methods apply to target, nearest first.
func (r *Registry) lookupChain(target *Type) []*Type {
	if target.IsPrimitive() {
		chain := []*Type{target}
		switch target.Kind() {
		case KindByte, KindShort, KindChar:
			chain = append(chain, r.int_)
		}
		return chain
	}
	var chain []*Type
	seen := make(map[*Type]bool)
	var visit func(t *Type)
	visit = func(t *Type) {
		var interfaces []*Type
		for c := t; c != nil && !seen[c]; c = c.Superclass() {
			seen[c] = true
			chain = append(chain, c)
			if !c.IsMeta() {
				interfaces = append(interfaces, c.interfaces...)
			}
		}
		for _, i := range interfaces {
			visit(i)
		}
	}
	if target.IsArray() || target.IsNull() {
		visit(r.Object())
		return chain
	}
	visit(target)
	if obj := r.Object(); !target.IsMeta() && !seen[obj] {
		chain = append(chain, obj)
	}
	return chain
}

func (r *Registry) arrayMethod(target *Type, name string, args []*Type) *MethodType {
	switch {
	case name == "length" && len(args) == 0:
		return &MethodType{Owner: target, Name: name, Return: r.int_, Kind: MethodIntrinsic, Op: OpArrayLength}
	case name == "[]" && len(args) == 1 && r.int_.IsParent(args[0]):
		return &MethodType{Owner: target, Name: name, Params: []*Type{r.int_}, Return: target.Component(),
			Kind: MethodIntrinsic, Op: OpArrayLoad}
	case name == "[]=" && len(args) == 2 && r.int_.IsParent(args[0]) && target.Component().IsParent(args[1]):
		return &MethodType{Owner: target, Name: name, Params: []*Type{r.int_, target.Component()},
			Return: r.void, Kind: MethodIntrinsic, Op: OpArrayStore}
	}
	return nil
}
