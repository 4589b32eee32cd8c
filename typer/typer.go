// Package typer assigns a type to every node of a syntax tree.
//
// Inference is a worklist fixpoint. Each node kind has a rule computing its
// type from its children and from signature information. A rule that
// depends on something not yet known returns nil and the node is queued;
// Resolve re-runs queued nodes until the queue drains or a pass makes no
// progress. Types live in a table indexed by NodeID; an entry, once
// resolved, never changes.
package typer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/tliron/commonlog"

	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/pkg/types"
)

// DefaultMaxCycles bounds Resolve when no limit is configured.
const DefaultMaxCycles = 1000

// Option configures a Typer.
type Option func(*config)

type config struct {
	unitName  string
	maxCycles int
	log       commonlog.Logger
}

// WithUnitName sets the name of the type that owns script-level code and
// methods. The default is "Script"; compilers pass UnitName of the source
// file.
func WithUnitName(name string) Option {
	return func(c *config) { c.unitName = name }
}

// WithMaxCycles bounds the number of passes Resolve makes.
func WithMaxCycles(n int) Option {
	return func(c *config) { c.maxCycles = n }
}

// WithLogger replaces the default "garnet.typer" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(c *config) { c.log = log }
}

// UnitName derives the unit type name from a source file name: the base
// name without extension, with characters that cannot appear in a type name
// replaced by underscores.
func UnitName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	name := strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, base)
	if name == "" || unicode.IsDigit(rune(name[0])) {
		name = "Script" + name
	}
	return name
}

type scopeKey struct {
	scope ast.NodeID
	name  string
}

type errorKey struct {
	node ast.NodeID
	msg  string
}

type fieldKey struct {
	owner *types.Type
	name  string
}

// Typer infers the types of one tree. It is not safe for concurrent use;
// create one per compilation unit.
type Typer struct {
	tree      *ast.Tree
	reg       *types.Registry
	self      *types.Type
	log       commonlog.Logger
	maxCycles int

	inferred []*types.Type
	resolved []bool
	progress int

	locals map[scopeKey]*types.Type
	fields map[fieldKey]*types.Type
	defs   map[ast.NodeID]*types.MethodType
	sigs   map[ast.NodeID]*signature
	early  map[ast.NodeID]bool
	why    map[ast.NodeID]error

	queue    []ast.NodeID
	queued   []bool
	errors   []error
	reported map[errorKey]bool
}

// New creates a Typer for tree. Types of classes and interfaces declared in
// the tree are registered in reg up front so forward references resolve. A
// nil reg gets a registry with the built-in types.
func New(tree *ast.Tree, reg *types.Registry, opts ...Option) *Typer {
	cfg := &config{unitName: "Script", maxCycles: DefaultMaxCycles}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.log == nil {
		cfg.log = commonlog.GetLogger("garnet.typer")
	}
	if reg == nil {
		reg = types.NewRegistry(nil)
	}

	t := &Typer{
		tree:      tree,
		reg:       reg,
		log:       cfg.log,
		maxCycles: cfg.maxCycles,
		inferred:  make([]*types.Type, tree.Len()),
		resolved:  make([]bool, tree.Len()),
		queued:    make([]bool, tree.Len()),
		locals:    make(map[scopeKey]*types.Type),
		fields:    make(map[fieldKey]*types.Type),
		defs:      make(map[ast.NodeID]*types.MethodType),
		sigs:      make(map[ast.NodeID]*signature),
		early:     make(map[ast.NodeID]bool),
		why:       make(map[ast.NodeID]error),
		reported:  make(map[errorKey]bool),
	}
	t.self = reg.Define(cfg.unitName, nil)
	t.declareTypes()
	return t
}

// declareTypes registers every class and interface whose supertypes are
// known, repeating until no more can be registered.
func (t *Typer) declareTypes() {
	var pending []ast.Node
	t.tree.Walk(func(n ast.Node) {
		switch n.(type) {
		case *ast.ClassDefinition, *ast.InterfaceDeclaration:
			pending = append(pending, n)
		}
	})
	for len(pending) > 0 {
		var rest []ast.Node
		for _, n := range pending {
			if t.declare(n) == nil {
				rest = append(rest, n)
			}
		}
		if len(rest) == len(pending) {
			return
		}
		pending = rest
	}
}

// declare registers the type of a class or interface node, or returns nil
// when one of its supertypes is unknown.
func (t *Typer) declare(n ast.Node) *types.Type {
	switch n := n.(type) {
	case *ast.ClassDefinition:
		if typ := t.reg.Lookup(n.Name); typ != nil {
			return typ
		}
		var super *types.Type
		if !n.Super.Absent() {
			if super = t.lookup(n.Super); super == nil {
				return nil
			}
		}
		ifaces, ok := t.lookupAll(n.Interfaces)
		if !ok {
			return nil
		}
		return t.reg.Define(n.Name, super, ifaces...)
	case *ast.InterfaceDeclaration:
		if typ := t.reg.Lookup(n.Name); typ != nil {
			return typ
		}
		extends, ok := t.lookupAll(n.Extends)
		if !ok {
			return nil
		}
		return t.reg.DefineInterface(n.Name, extends...)
	}
	return nil
}

// Registry returns the registry types are interned in.
func (t *Typer) Registry() *types.Registry { return t.reg }

// Tree returns the tree being inferred.
func (t *Typer) Tree() *ast.Tree { return t.tree }

// SelfType returns the type owning script-level code.
func (t *Typer) SelfType() *types.Type { return t.self }

// TypeOf returns the resolved type of the node with the given id, or nil.
func (t *Typer) TypeOf(id ast.NodeID) *types.Type {
	if id == ast.NoNode || !t.resolved[id] {
		return nil
	}
	return t.inferred[id]
}

// MethodType returns the full-arity signature learned for a method or
// constructor definition, or nil if it has not been resolved.
func (t *Typer) MethodType(def ast.Definition) *types.MethodType {
	return t.defs[def.ID()]
}

// Errors returns the errors collected so far.
func (t *Typer) Errors() []error { return t.errors }

// Deferred returns the number of nodes waiting in the queue.
func (t *Typer) Deferred() int { return len(t.queue) }

// Infer computes the type of n. It returns nil when the type cannot be
// determined yet, in which case n has been queued for Resolve.
func (t *Typer) Infer(n ast.Node) *types.Type {
	id := n.ID()
	if t.resolved[id] {
		return t.inferred[id]
	}
	typ := t.infer(n)
	if typ == nil {
		t.deferNode(n)
		return nil
	}
	t.inferred[id] = typ
	t.resolved[id] = true
	t.progress++
	delete(t.why, id)
	return typ
}

func (t *Typer) deferNode(n ast.Node) {
	id := n.ID()
	if t.queued[id] {
		return
	}
	t.queued[id] = true
	t.queue = append(t.queue, id)
}

// Resolve retries queued nodes until every node is resolved or a full pass
// resolves nothing new. On such a deadlock with forceErrors set, every node
// still queued is reported as an InferenceError and the queue is cleared;
// without it the queue is kept so the caller may learn more and try again.
// The result joins every error collected so far.
func (t *Typer) Resolve(forceErrors bool) error {
	for cycle := 1; len(t.queue) > 0; cycle++ {
		if t.maxCycles > 0 && cycle > t.maxCycles {
			t.log.Warningf("Giving up after %d cycles", t.maxCycles)
			break
		}
		t.log.Debugf("[Cycle %d]: Started... (%d nodes to resolve)", cycle, len(t.queue))
		before := t.progress
		pending := t.queue
		t.queue = nil
		for _, id := range pending {
			t.queued[id] = false
		}
		for _, id := range pending {
			t.Infer(t.tree.Node(id))
		}
		if t.progress == before {
			t.log.Debugf("[Cycle %d]: Deadlock with %d nodes unresolved", cycle, len(t.queue))
			break
		}
		t.log.Debugf("[Cycle %d]: Complete!", cycle)
	}

	if len(t.queue) > 0 && forceErrors {
		for _, id := range t.queue {
			n := t.tree.Node(id)
			msg := "unable to infer type of " + ast.Kind(n)
			why := t.why[id]
			if why != nil {
				msg += ": " + why.Error()
			}
			t.errors = append(t.errors, &InferenceError{Node: n, Position: n.Pos(), Message: msg, Err: why})
			t.queued[id] = false
		}
		t.queue = nil
	}
	return errors.Join(t.errors...)
}

// LearnMethodType records a method signature on owner and returns ret. A
// meta owner makes the method static; the constructor name on an instance
// type makes it a constructor.
func (t *Typer) LearnMethodType(owner *types.Type, name string, params []*types.Type, ret *types.Type, throws []*types.Type) *types.Type {
	t.learnMethod(owner, name, params, ret, throws)
	return ret
}

func (t *Typer) learnMethod(owner *types.Type, name string, params []*types.Type, ret *types.Type, throws []*types.Type) *types.MethodType {
	kind := types.MethodVirtual
	switch {
	case owner.IsMeta():
		kind = types.MethodStatic
	case name == types.ConstructorName:
		kind = types.MethodConstructor
	case owner.IsInterface():
		kind = types.MethodInterface
	}
	var prev *types.Type
	known := false
	for _, m := range t.reg.Methods(owner) {
		if m.Name == name && m.Kind == kind && sameTypes(m.Params, params) {
			prev, known = m.Return, true
			break
		}
	}
	m := t.reg.Learn(&types.MethodType{Owner: owner, Name: name, Params: params, Return: ret, Throws: throws, Kind: kind})
	if !known || prev != ret {
		t.progress++
		t.log.Debugf("Learned method %s returning %s", m, ret)
	}
	return m
}

func sameTypes(a, b []*types.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// LearnLocalType records the type of a local in scope. The first type
// learned for a name wins; the winning type is returned.
func (t *Typer) LearnLocalType(scope ast.NodeID, name string, typ *types.Type) *types.Type {
	key := scopeKey{scope, name}
	if old, ok := t.locals[key]; ok {
		return old
	}
	t.locals[key] = typ
	t.progress++
	t.log.Debugf("Learned local %s = %s", name, typ)
	return typ
}

// LocalType returns the type of a local in scope, or nil.
func (t *Typer) LocalType(scope ast.NodeID, name string) *types.Type {
	return t.locals[scopeKey{scope, name}]
}

// LearnFieldType records the type of a field of owner. Names may carry the
// field sigil. The first type learned wins and is returned.
func (t *Typer) LearnFieldType(owner *types.Type, name string, typ *types.Type) *types.Type {
	key := fieldKey{owner, ast.FieldName(name)}
	if old, ok := t.fields[key]; ok {
		return old
	}
	t.fields[key] = typ
	t.progress++
	t.log.Debugf("Learned field %s.%s = %s", owner, key.name, typ)
	return typ
}

// FieldType returns the type of a field of owner, or nil.
func (t *Typer) FieldType(owner *types.Type, name string) *types.Type {
	return t.fields[fieldKey{owner, ast.FieldName(name)}]
}

// errorAt records an inference error at n. A rule retried after reporting
// does not report the same error twice.
func (t *Typer) errorAt(n ast.Node, format string, args ...any) {
	e := &InferenceError{Node: n, Position: n.Pos(), Message: fmt.Sprintf(format, args...)}
	key := errorKey{n.ID(), e.Message}
	if t.reported[key] {
		return
	}
	t.reported[key] = true
	t.errors = append(t.errors, e)
}

// waitFor records why n cannot be resolved yet and returns nil.
func (t *Typer) waitFor(n ast.Node, format string, args ...any) *types.Type {
	t.why[n.ID()] = fmt.Errorf(format, args...)
	return nil
}

// waitErr records err as the reason n cannot be resolved yet.
func (t *Typer) waitErr(n ast.Node, err error) *types.Type {
	t.why[n.ID()] = err
	return nil
}

func (t *Typer) lookup(ref ast.TypeRef) *types.Type {
	return t.reg.Lookup(string(ref))
}

func (t *Typer) lookupAll(refs []ast.TypeRef) ([]*types.Type, bool) {
	out := make([]*types.Type, 0, len(refs))
	for _, r := range refs {
		typ := t.lookup(r)
		if typ == nil {
			return nil, false
		}
		out = append(out, typ)
	}
	return out, true
}
