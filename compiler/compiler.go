// Package compiler lowers a typed syntax tree to units for the garnet stack
// machine.
//
// The compiler walks the tree once, after inference has reached its
// fixpoint, reading node types from the typer's table. Every compile call is
// told whether its value must be left on the stack (expression mode) or may
// be dropped (statement mode). The script body becomes the static main
// method of the unit named after the source file; classes and interfaces
// become units of their own.
package compiler

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/pkg/bytecode"
	"github.com/chazu/garnet/pkg/types"
	"github.com/chazu/garnet/typer"
)

// MainName and MainDescriptor identify the entry point of a script unit.
const (
	MainName       = "main"
	MainDescriptor = "(string[])void"
)

// Option configures a Compiler.
type Option func(*config)

type config struct {
	log commonlog.Logger
}

// WithLogger replaces the default "garnet.compiler" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(c *config) { c.log = log }
}

// Sink receives each generated unit with the file name it is conventionally
// stored under.
type Sink func(filename string, unit *bytecode.ClassBuilder) error

type state uint8

const (
	stateUninitialized state = iota
	stateCollecting
	stateGenerating
	stateDone
)

// ---------------------------------------------------------------------------
// Context
// ---------------------------------------------------------------------------

// loop holds the jump targets of the innermost breakable construct and the
// number of protected regions that were open when it was entered.
type loop struct {
	brk, redo, next *bytecode.Label
	regions         int
}

// frame is the context of the class or method being compiled. A class
// frame has no method; only definitions may be compiled in it.
type frame struct {
	class   *bytecode.ClassBuilder
	typ     *types.Type
	method  *bytecode.MethodBuilder
	static  bool
	ret     *types.Type
	loops   []*loop
	regions []*region
}

func (f *frame) loop() *loop {
	if len(f.loops) == 0 {
		return nil
	}
	return f.loops[len(f.loops)-1]
}

// Compiler turns one typed tree into units.
type Compiler struct {
	filename string
	tree     *ast.Tree
	typer    *typer.Typer
	reg      *types.Registry
	log      commonlog.Logger

	file   *bytecode.FileBuilder
	unit   *bytecode.ClassBuilder
	frames []*frame
	state  state
	err    error
}

// New creates a compiler for a tree whose inference has completed. The
// script unit is named after the typer's self type.
func New(filename string, tree *ast.Tree, ty *typer.Typer, opts ...Option) (*Compiler, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.log == nil {
		cfg.log = commonlog.GetLogger("garnet.compiler")
	}
	if ty.Tree() != tree {
		return nil, errors.New("compiler: typer was built for a different tree")
	}
	if n := ty.Deferred(); n > 0 {
		return nil, fmt.Errorf("compiler: inference is incomplete, %d nodes unresolved", n)
	}
	if errs := ty.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("compiler: inference failed: %w", errors.Join(errs...))
	}

	c := &Compiler{
		filename: filename,
		tree:     tree,
		typer:    ty,
		reg:      ty.Registry(),
		log:      cfg.log,
		file:     bytecode.NewFileBuilder(filepath.Base(filename)),
	}
	self := ty.SelfType()
	c.unit = c.file.Class(self.Name(), superName(self))
	return c, nil
}

func superName(t *types.Type) string {
	if s := t.Superclass(); s != nil {
		return s.Name()
	}
	return ""
}

// Unit returns the builder of the script unit.
func (c *Compiler) Unit() *bytecode.ClassBuilder { return c.unit }

// begin guards every entry point: the compiler refuses work after an error
// or once generation has started.
func (c *Compiler) begin() error {
	if c.err != nil {
		return c.err
	}
	if c.state >= stateGenerating {
		return errors.New("compiler: compile after generate")
	}
	c.state = stateCollecting
	return nil
}

func (c *Compiler) fail(err error) error {
	if err != nil && c.err == nil {
		c.err = err
	}
	return err
}

// Compile compiles n. A Script becomes the main method; definitions become
// members. Other nodes need an enclosing method and are compiled into it.
func (c *Compiler) Compile(n ast.Node, expression bool) error {
	if err := c.begin(); err != nil {
		return err
	}
	if err := c.fail(c.compile(n, expression)); err != nil {
		return err
	}
	c.log.Debug("Compilation successful!")
	return nil
}

// DefineMain compiles body as the static main method of the script unit.
func (c *Compiler) DefineMain(body ast.Node) error {
	if err := c.begin(); err != nil {
		return err
	}
	return c.fail(c.defineMain(body))
}

// DefineMethod compiles a method or constructor, with one forwarding
// overload for each optional parameter.
func (c *Compiler) DefineMethod(def ast.Definition) error {
	if err := c.begin(); err != nil {
		return err
	}
	return c.fail(c.defineMethod(def))
}

// DefineClass compiles a class into its own unit.
func (c *Compiler) DefineClass(def *ast.ClassDefinition) error {
	if err := c.begin(); err != nil {
		return err
	}
	return c.fail(c.defineClass(def))
}

// DefineInterface compiles an interface into its own unit.
func (c *Compiler) DefineInterface(decl *ast.InterfaceDeclaration) error {
	if err := c.begin(); err != nil {
		return err
	}
	return c.fail(c.defineInterface(decl))
}

// Generate hands every unit to sink in the order the units were started.
// It may be called once; the compiler accepts no work afterwards.
func (c *Compiler) Generate(sink Sink) error {
	if c.err != nil {
		return c.err
	}
	if c.state >= stateGenerating {
		return errors.New("compiler: generate called twice")
	}
	c.state = stateGenerating
	defer func() { c.state = stateDone }()

	c.log.Debug("Generating units...")
	for _, cb := range c.file.Classes() {
		c.log.Debugf("  %s", cb.Name())
		if err := sink(cb.Filename(), cb); err != nil {
			return fmt.Errorf("compiler: unit %s: %w", cb.Name(), err)
		}
	}
	c.log.Debug("...done!")
	return nil
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

func (c *Compiler) push(f *frame) { c.frames = append(c.frames, f) }

func (c *Compiler) pop() { c.frames = c.frames[:len(c.frames)-1] }

func (c *Compiler) frame() *frame {
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

// method returns the method being compiled, or a StructuralError naming n
// when code appears outside of one.
func (c *Compiler) method(n ast.Node) (*bytecode.MethodBuilder, error) {
	f := c.frame()
	if f == nil || f.method == nil {
		return nil, structural(n, "%s outside of a method", ast.Kind(n))
	}
	return f.method, nil
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

func (c *Compiler) defineMain(body ast.Node) error {
	c.log.Debug("Starting main method")
	mb, err := c.unit.Method(MainName, MainDescriptor, true)
	if err != nil {
		return err
	}
	mb.BindParam(0, "argv")
	c.push(&frame{class: c.unit, typ: c.typer.SelfType(), method: mb, static: true, ret: c.reg.Void()})
	defer c.pop()

	if body != nil {
		if err := c.compile(body, false); err != nil {
			return err
		}
	}
	mb.Return("void")
	if err := mb.Stop(); err != nil {
		return err
	}
	c.log.Debug("Main method complete!")
	return nil
}

// owner returns the unit and instance type members defined at the current
// point belong to.
func (c *Compiler) owner() (*bytecode.ClassBuilder, *types.Type) {
	if f := c.frame(); f != nil {
		return f.class, f.typ
	}
	return c.unit, c.typer.SelfType()
}

func typeNames(ts []*types.Type) []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Descriptor()
	}
	return names
}

func (c *Compiler) defineMethod(def ast.Definition) error {
	m := c.typer.MethodType(def)
	if m == nil {
		return structural(def, "method %s has no inferred signature", def.NodeName())
	}
	md := def.Def()
	ctor, isCtor := def.(*ast.ConstructorDefinition)
	cls, typ := c.owner()

	var required, optional int
	var names []string
	if md.Args != nil {
		required, optional = len(md.Args.Required), len(md.Args.Optional)
		names = md.Args.Names()
	}
	overloads := typer.OverloadParams(m.Params, required, optional)

	if cls.Unit().Interface {
		for _, params := range overloads {
			if err := cls.AbstractMethod(md.Name, descriptor(m, params)); err != nil {
				return err
			}
		}
		return nil
	}

	full := overloads[len(overloads)-1]
	c.log.Debugf("Starting new method %s(%s)", md.Name, strings.Join(typeNames(full), ", "))
	mb, err := c.startMethod(cls, m, full)
	if err != nil {
		return err
	}
	for i, name := range names {
		mb.BindParam(i, name)
	}
	c.push(&frame{class: cls, typ: typ, method: mb, static: m.IsStatic(), ret: m.Return})
	err = c.methodBody(md, ctor, isCtor, m)
	c.pop()
	if err != nil {
		return err
	}

	for i := 0; i < optional; i++ {
		if err := c.forward(cls, typ, md, m, overloads[i], overloads[i+1], required+i); err != nil {
			return err
		}
	}
	c.log.Debugf("Method %s(%s) complete!", md.Name, strings.Join(typeNames(full), ", "))
	return nil
}

// descriptor renders the descriptor of m's overload taking params.
func descriptor(m *types.MethodType, params []*types.Type) string {
	if m.Kind == types.MethodConstructor {
		return types.Descriptor(nil, params)
	}
	return types.Descriptor(m.Return, params)
}

func (c *Compiler) startMethod(cls *bytecode.ClassBuilder, m *types.MethodType, params []*types.Type) (*bytecode.MethodBuilder, error) {
	mb, err := cls.Method(m.Name, descriptor(m, params), m.IsStatic())
	if err != nil {
		return nil, err
	}
	if len(m.Throws) > 0 {
		mb.Method().Throws = typeNames(m.Throws)
	}
	return mb, nil
}

// returnDesc is the descriptor of the value a method returns.
func returnDesc(m *types.MethodType) string {
	if m.Kind == types.MethodConstructor || m.Return.IsUnreachable() {
		return "void"
	}
	return m.Return.Descriptor()
}

func (c *Compiler) methodBody(md *ast.MethodDefinition, ctor *ast.ConstructorDefinition, isCtor bool, m *types.MethodType) error {
	mb := c.frame().method
	mb.Line(md.Pos().Line)
	if isCtor {
		if err := c.constructorPrologue(ctor); err != nil {
			return err
		}
	}
	desc := returnDesc(m)
	if md.Body != nil {
		var err error
		if desc == "void" {
			err = c.compile(md.Body, false)
		} else {
			err = c.compileAs(md.Body, m.Return)
		}
		if err != nil {
			return err
		}
	} else if desc != "void" {
		mb.PushDefault(desc)
	}
	mb.Return(desc)
	return mb.Stop()
}

// constructorPrologue chains to the delegate constructor extracted from the
// body, or to the superclass's no-argument constructor.
func (c *Compiler) constructorPrologue(ctor *ast.ConstructorDefinition) error {
	f := c.frame()
	target := f.typ
	if !ctor.Delegates || ctor.CallsSuper {
		target = f.typ.Superclass()
	}
	if target == nil {
		return nil
	}
	args := make([]*types.Type, len(ctor.DelegateArgs))
	for i, a := range ctor.DelegateArgs {
		args[i] = c.typer.TypeOf(a.ID())
	}
	m, err := c.reg.FindConstructor(target, args)
	if err != nil {
		return lookupError(ctor, err)
	}
	f.method.Load("self", 0)
	for i, a := range ctor.DelegateArgs {
		if err := c.compileAs(a, m.Params[i]); err != nil {
			return err
		}
	}
	f.method.Invoke(bytecode.OpInvokeSpecial, target.Descriptor(), types.ConstructorName, m.Descriptor())
	return nil
}

// forward emits the overload taking params, which supplies the default of
// the optional parameter at index missing and calls the overload taking
// next.
func (c *Compiler) forward(cls *bytecode.ClassBuilder, typ *types.Type, md *ast.MethodDefinition, m *types.MethodType, params, next []*types.Type, missing int) error {
	c.log.Debugf("Starting new method %s(%s)", md.Name, strings.Join(typeNames(params), ", "))
	mb, err := c.startMethod(cls, m, params)
	if err != nil {
		return err
	}
	names := md.Args.Names()
	tail := len(params) - missing
	// Supplied parameters keep their names so later defaults can use them.
	for i := 0; i < missing; i++ {
		mb.BindParam(i, names[i])
	}
	for i := 0; i < tail; i++ {
		mb.BindParam(missing+i, names[len(names)-tail+i])
	}
	c.push(&frame{class: cls, typ: typ, method: mb, static: m.IsStatic(), ret: m.Return})
	defer c.pop()

	mb.Line(md.Pos().Line)
	if !m.IsStatic() {
		mb.Load("self", 0)
	}
	for i := 0; i < missing; i++ {
		mb.Load(params[i].Descriptor(), mb.Param(i))
	}
	if err := c.compileAs(md.Args.Optional[missing-len(md.Args.Required)].Value, next[missing]); err != nil {
		return err
	}
	for i := missing; i < len(params); i++ {
		mb.Load(params[i].Descriptor(), mb.Param(i))
	}

	desc := descriptor(m, next)
	switch {
	case m.Kind == types.MethodConstructor:
		mb.Invoke(bytecode.OpInvokeSpecial, cls.Name(), m.Name, desc)
	case m.IsStatic():
		mb.Invoke(bytecode.OpInvokeStatic, cls.Name(), m.Name, desc)
	default:
		mb.Invoke(bytecode.OpInvokeVirtual, cls.Name(), m.Name, desc)
	}
	mb.Return(returnDesc(m))
	return mb.Stop()
}

func hasConstructor(body ast.Node) bool {
	for _, s := range ast.Statements(body) {
		if _, ok := s.(*ast.ConstructorDefinition); ok {
			return true
		}
	}
	return false
}

func (c *Compiler) defineClass(def *ast.ClassDefinition) error {
	typ := c.reg.Lookup(def.Name)
	if typ == nil {
		return structural(def, "class %s was not declared", def.Name)
	}
	cls := c.file.Class(typ.Name(), superName(typ), typeNames(typ.Interfaces())...)
	c.push(&frame{class: cls, typ: typ, static: true})
	defer c.pop()

	if !hasConstructor(def.Body) {
		if err := c.defaultConstructor(def, cls, typ); err != nil {
			return err
		}
	}
	return c.members(def.Body)
}

func (c *Compiler) defineInterface(decl *ast.InterfaceDeclaration) error {
	typ := c.reg.Lookup(decl.Name)
	if typ == nil {
		return structural(decl, "interface %s was not declared", decl.Name)
	}
	cls := c.file.Interface(typ.Name(), typeNames(typ.Interfaces())...)
	c.push(&frame{class: cls, typ: typ, static: true})
	defer c.pop()
	return c.members(decl.Body)
}

// defaultConstructor emits the implicit constructor of a class declaring
// none: it only chains to the superclass.
func (c *Compiler) defaultConstructor(def *ast.ClassDefinition, cls *bytecode.ClassBuilder, typ *types.Type) error {
	mb, err := cls.Method(types.ConstructorName, "()void", false)
	if err != nil {
		return err
	}
	mb.Line(def.Pos().Line)
	if super := typ.Superclass(); super != nil {
		if _, err := c.reg.FindConstructor(super, nil); err != nil {
			return lookupError(def, err)
		}
		mb.Load("self", 0)
		mb.Invoke(bytecode.OpInvokeSpecial, super.Descriptor(), types.ConstructorName, "()void")
	}
	mb.Return("void")
	return mb.Stop()
}

// members compiles a class or interface body. Only definitions, field
// declarations and imports may appear in it.
func (c *Compiler) members(body ast.Node) error {
	for _, s := range ast.Statements(body) {
		switch s := s.(type) {
		case ast.Definition:
			if err := c.defineMethod(s); err != nil {
				return err
			}
		case *ast.ClassDefinition:
			if err := c.defineClass(s); err != nil {
				return err
			}
		case *ast.InterfaceDeclaration:
			if err := c.defineInterface(s); err != nil {
				return err
			}
		case *ast.FieldDeclaration:
			// Class body declarations are instance fields.
			c.defineField(s.Name, c.typer.TypeOf(s.ID()), c.frame().class.Unit().Interface)
		case *ast.Noop, *ast.Import:
		default:
			return structural(s, "%s is not allowed in a class body", ast.Kind(s))
		}
	}
	return nil
}

// declareField declares a field of the current unit on first use. The
// first declaration fixes the field's type.
func (c *Compiler) declareField(name string, typ *types.Type) (string, *types.Type) {
	return c.defineField(name, typ, c.frame().static)
}

func (c *Compiler) defineField(name string, typ *types.Type, static bool) (string, *types.Type) {
	f := c.frame()
	name = ast.FieldName(name)
	if fd, ok := f.class.Unit().FindField(name); ok {
		if declared := c.reg.Lookup(fd.Desc); declared != nil {
			return name, declared
		}
		return name, typ
	}
	f.class.Field(name, typ.Descriptor(), static)
	return name, typ
}
