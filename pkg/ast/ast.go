// Package ast defines the syntax tree consumed by the type inference engine
// and the bytecode compiler.
//
// The node set is closed: every node kind is declared here and implements
// Node through an unexported marker. Nodes are added to a Tree, which assigns
// each a NodeID and records parent links as indices, so upward searches for
// the enclosing scope, class or method are index walks.
package ast

import "fmt"

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for garnet
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// NodeID indexes a node in its Tree.
type NodeID int32

// NoNode is the parent of the root.
const NoNode NodeID = -1

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Position
	// ID returns the node's index in its tree, or NoNode before the node
	// has been added to one.
	ID() NodeID
	meta() *nodeMeta
}

type nodeMeta struct {
	Position Position
	id       NodeID
	inTree   bool
}

func (m *nodeMeta) Pos() Position { return m.Position }

func (m *nodeMeta) ID() NodeID {
	if !m.inTree {
		return NoNode
	}
	return m.id
}

func (m *nodeMeta) meta() *nodeMeta { return m }

// At sets a node's position. It returns the node for chaining.
func At[N Node](n N, line, column int) N {
	n.meta().Position = Position{Line: line, Column: column}
	return n
}

// TypeRef names a type: "int", "string[]", "Foo". The empty TypeRef means
// the type was not declared.
type TypeRef string

// Absent reports whether no type was given.
func (t TypeRef) Absent() bool { return t == "" }

// Annotation is a marker attached to a definition, such as
// Signature{a: "int", return: "string"}.
type Annotation struct {
	Name   string
	Values map[string]string
}

// ---------------------------------------------------------------------------
// Capabilities
// ---------------------------------------------------------------------------

// Named is implemented by nodes that carry a name.
type Named interface {
	Node
	NodeName() string
}

// Annotated is implemented by nodes that carry annotations.
type Annotated interface {
	Node
	AnnotationList() []*Annotation
}

// ScopeOwner is implemented by nodes that own a local variable table:
// scripts, class and interface bodies, methods and constructors.
type ScopeOwner interface {
	Node
	scopeOwner()
}

// Definition is implemented by method and constructor definitions.
type Definition interface {
	ScopeOwner
	Named
	Def() *MethodDefinition
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

// Fixnum is an integer literal. Values outside the int range are longs.
type Fixnum struct {
	nodeMeta
	Value int64
}

// Float is a floating-point literal of type double.
type Float struct {
	nodeMeta
	Value float64
}

// String is a string literal.
type String struct {
	nodeMeta
	Value string
}

// Boolean is true or false.
type Boolean struct {
	nodeMeta
	Value bool
}

// Null is the null literal.
type Null struct{ nodeMeta }

// Self is the receiver of the current method.
type Self struct{ nodeMeta }

// Constant names a type used as a value, as the receiver in Foo.new. Its
// type is the meta type of the named type.
type Constant struct {
	nodeMeta
	Name string
}

// EmptyArray allocates an array of Size default elements.
type EmptyArray struct {
	nodeMeta
	Component TypeRef
	Size      Node
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// Local reads a local variable.
type Local struct {
	nodeMeta
	Name string
}

// LocalAssignment stores into a local variable, declaring it on first use.
type LocalAssignment struct {
	nodeMeta
	Name  string
	Value Node
}

// LocalDeclaration declares a typed local without a value.
type LocalDeclaration struct {
	nodeMeta
	Name string
	Type TypeRef
}

// Field reads a field. Name keeps its "@" sigil.
type Field struct {
	nodeMeta
	Name string
}

// FieldAssignment stores into a field. Name keeps its "@" sigil.
type FieldAssignment struct {
	nodeMeta
	Name  string
	Value Node
}

// FieldDeclaration declares a typed field. Name keeps its "@" sigil.
type FieldDeclaration struct {
	nodeMeta
	Name string
	Type TypeRef
}

// FieldName strips the field sigil from name.
func FieldName(name string) string {
	for len(name) > 0 && name[0] == '@' {
		name = name[1:]
	}
	return name
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// Call invokes Name on Target. Operators are calls too: a + b is a Call of
// "+" on a, and indexing is a Call of "[]" or "[]=".
type Call struct {
	nodeMeta
	Target Node
	Name   string
	Args   []Node
}

// FunctionalCall invokes Name on the implicit receiver.
type FunctionalCall struct {
	nodeMeta
	Name string
	Args []Node
}

// Super invokes the superclass implementation of the enclosing method.
// A bare super (no parentheses) forwards every declared argument.
type Super struct {
	nodeMeta
	Args []Node
	Bare bool
}

// Cast converts Value to Type.
type Cast struct {
	nodeMeta
	Type  TypeRef
	Value Node
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// Body is a sequence of statements. Its value is the value of the last one.
type Body struct {
	nodeMeta
	Children []Node
}

// Noop does nothing. It replaces statements that were consumed elsewhere.
type Noop struct{ nodeMeta }

// If evaluates Body when Condition holds and Else otherwise. Either branch
// may be nil.
type If struct {
	nodeMeta
	Condition Node
	Body      Node
	Else      Node
}

// And is the short-circuit conjunction.
type And struct {
	nodeMeta
	Left, Right Node
}

// Or is the short-circuit disjunction.
type Or struct {
	nodeMeta
	Left, Right Node
}

// Not negates a boolean.
type Not struct {
	nodeMeta
	Value Node
}

// Loop is a while or until loop. CheckFirst tests before the first
// iteration; Negative loops until the condition holds. Init runs once, Pre
// runs before and Post after every iteration of Body.
type Loop struct {
	nodeMeta
	Init       Node
	Condition  Node
	Pre        Node
	Body       Node
	Post       Node
	CheckFirst bool
	Negative   bool
}

// ForEach binds Var to each element of Iter and evaluates Body.
type ForEach struct {
	nodeMeta
	Var  string
	Iter Node
	Body Node
}

// Break leaves the innermost loop.
type Break struct{ nodeMeta }

// Next starts the next iteration of the innermost loop.
type Next struct{ nodeMeta }

// Redo restarts the current iteration without testing the condition.
type Redo struct{ nodeMeta }

// Return leaves the method. A nil Value returns nothing.
type Return struct {
	nodeMeta
	Value Node
}

// Raise throws Value. A string is wrapped in a RuntimeException.
type Raise struct {
	nodeMeta
	Value Node
}

// Rescue evaluates Body and hands exceptions raised in it to the first
// matching clause.
type Rescue struct {
	nodeMeta
	Body    Node
	Clauses []*RescueClause
}

// RescueClause handles exceptions of Types (Exception when empty), binding
// the exception to Name when it is set.
type RescueClause struct {
	nodeMeta
	Types []TypeRef
	Name  string
	Body  Node
}

// Ensure evaluates Body and then Clause on every exit from Body.
type Ensure struct {
	nodeMeta
	Body   Node
	Clause Node
}

// Print writes Values to standard output, followed by a newline when
// Newline is set.
type Print struct {
	nodeMeta
	Values  []Node
	Newline bool
}

// ---------------------------------------------------------------------------
// Definitions
// ---------------------------------------------------------------------------

// Script is the root of a compilation unit. Its body becomes the unit's
// main method; definitions in it become members of the unit type.
type Script struct {
	nodeMeta
	Body Node
}

// Import makes Short an alias for the type named Long.
type Import struct {
	nodeMeta
	Short string
	Long  string
}

// ClassDefinition declares a class.
type ClassDefinition struct {
	nodeMeta
	Name        string
	Super       TypeRef
	Interfaces  []TypeRef
	Body        Node
	Annotations []*Annotation
}

// InterfaceDeclaration declares an interface. Methods declared in it are
// abstract.
type InterfaceDeclaration struct {
	nodeMeta
	Name    string
	Extends []TypeRef
	Body    Node
}

// Signature holds the declared types of a method. Any entry may be absent
// and left to inference.
type Signature struct {
	Params map[string]TypeRef
	Return TypeRef
	Throws []TypeRef
}

// MethodDefinition declares a method.
type MethodDefinition struct {
	nodeMeta
	Name        string
	Signature   Signature
	Args        *Arguments
	Body        Node
	Annotations []*Annotation
	Static      bool
}

// ConstructorDefinition declares a constructor. Delegation to another
// constructor is extracted from the first statement by
// NewConstructorDefinition.
type ConstructorDefinition struct {
	MethodDefinition
	DelegateArgs []Node
	CallsSuper   bool
	Delegates    bool
}

// ConstructorName is the name constructors are declared with.
const ConstructorName = "initialize"

// NewConstructorDefinition creates a constructor. When the first statement
// of body is a call of initialize (delegation within the class) or super
// (delegation to the superclass), the call's arguments become DelegateArgs
// and the statement is replaced with a Noop. A bare super forwards every
// declared argument.
func NewConstructorDefinition(sig Signature, args *Arguments, body Node, annotations []*Annotation) *ConstructorDefinition {
	if args == nil {
		args = &Arguments{}
	}
	c := &ConstructorDefinition{MethodDefinition: MethodDefinition{
		Name:        ConstructorName,
		Signature:   sig,
		Args:        args,
		Body:        body,
		Annotations: annotations,
	}}

	first, replace := firstStatement(body)
	switch s := first.(type) {
	case *FunctionalCall:
		if s.Name != ConstructorName {
			return c
		}
		c.Delegates = true
		c.DelegateArgs = s.Args
	case *Super:
		c.Delegates = true
		c.CallsSuper = true
		if s.Bare {
			for _, name := range args.Names() {
				c.DelegateArgs = append(c.DelegateArgs, At(&Local{Name: name}, s.Position.Line, s.Position.Column))
			}
		} else {
			c.DelegateArgs = s.Args
		}
	default:
		return c
	}
	noop := At(&Noop{}, first.Pos().Line, first.Pos().Column)
	if replace != nil {
		replace(noop)
	} else {
		c.Body = noop
	}
	return c
}

// firstStatement returns the first statement of body and, when it is nested
// in a Body, a function replacing it there.
func firstStatement(body Node) (Node, func(Node)) {
	b, ok := body.(*Body)
	if !ok {
		return body, nil
	}
	if len(b.Children) == 0 {
		return nil, nil
	}
	if inner, ok := b.Children[0].(*Body); ok {
		return firstStatement(inner)
	}
	return b.Children[0], func(n Node) { b.Children[0] = n }
}

// Arguments is a method's parameter list. The four slots keep required
// parameters before optional ones, before the rest parameter, before the
// block parameter.
type Arguments struct {
	nodeMeta
	Required []*RequiredArgument
	Optional []*OptionalArgument
	Rest     *RestArgument
	Block    *BlockArgument
}

// RequiredArgument is a parameter without a default.
type RequiredArgument struct {
	nodeMeta
	Name string
}

// OptionalArgument is a parameter with a default value.
type OptionalArgument struct {
	nodeMeta
	Name  string
	Value Node
}

// RestArgument collects the remaining arguments into an array.
type RestArgument struct {
	nodeMeta
	Name string
}

// BlockArgument is the trailing closure parameter.
type BlockArgument struct {
	nodeMeta
	Name string
}

// Names returns every parameter name in declaration order.
func (a *Arguments) Names() []string {
	if a == nil {
		return nil
	}
	var names []string
	for _, r := range a.Required {
		names = append(names, r.Name)
	}
	for _, o := range a.Optional {
		names = append(names, o.Name)
	}
	if a.Rest != nil {
		names = append(names, a.Rest.Name)
	}
	if a.Block != nil {
		names = append(names, a.Block.Name)
	}
	return names
}

// Nodes returns every argument node in declaration order.
func (a *Arguments) Nodes() []Node {
	if a == nil {
		return nil
	}
	var out []Node
	for _, r := range a.Required {
		out = append(out, r)
	}
	for _, o := range a.Optional {
		out = append(out, o)
	}
	if a.Rest != nil {
		out = append(out, a.Rest)
	}
	if a.Block != nil {
		out = append(out, a.Block)
	}
	return out
}

// ---------------------------------------------------------------------------
// Capability implementations
// ---------------------------------------------------------------------------

func (*Script) scopeOwner()               {}
func (*ClassDefinition) scopeOwner()      {}
func (*InterfaceDeclaration) scopeOwner() {}
func (*MethodDefinition) scopeOwner()     {}

func (n *Constant) NodeName() string             { return n.Name }
func (n *Local) NodeName() string                { return n.Name }
func (n *LocalAssignment) NodeName() string      { return n.Name }
func (n *LocalDeclaration) NodeName() string     { return n.Name }
func (n *Field) NodeName() string                { return n.Name }
func (n *FieldAssignment) NodeName() string      { return n.Name }
func (n *FieldDeclaration) NodeName() string     { return n.Name }
func (n *Call) NodeName() string                 { return n.Name }
func (n *FunctionalCall) NodeName() string       { return n.Name }
func (n *ClassDefinition) NodeName() string      { return n.Name }
func (n *InterfaceDeclaration) NodeName() string { return n.Name }
func (n *MethodDefinition) NodeName() string     { return n.Name }
func (n *RequiredArgument) NodeName() string     { return n.Name }
func (n *OptionalArgument) NodeName() string     { return n.Name }
func (n *RestArgument) NodeName() string         { return n.Name }
func (n *BlockArgument) NodeName() string        { return n.Name }

func (n *ClassDefinition) AnnotationList() []*Annotation  { return n.Annotations }
func (n *MethodDefinition) AnnotationList() []*Annotation { return n.Annotations }

// Def returns the method part of a definition.
func (n *MethodDefinition) Def() *MethodDefinition { return n }

// Kind returns the node's kind name as used in tree documents and
// diagnostics.
func Kind(n Node) string {
	switch n.(type) {
	case *Script:
		return "script"
	case *Body:
		return "body"
	case *Noop:
		return "noop"
	case *Fixnum:
		return "fixnum"
	case *Float:
		return "float"
	case *String:
		return "string"
	case *Boolean:
		return "boolean"
	case *Null:
		return "null"
	case *Self:
		return "self"
	case *Constant:
		return "constant"
	case *EmptyArray:
		return "empty_array"
	case *Local:
		return "local"
	case *LocalAssignment:
		return "local_assignment"
	case *LocalDeclaration:
		return "local_declaration"
	case *Field:
		return "field"
	case *FieldAssignment:
		return "field_assignment"
	case *FieldDeclaration:
		return "field_declaration"
	case *Call:
		return "call"
	case *FunctionalCall:
		return "functional_call"
	case *Super:
		return "super"
	case *Cast:
		return "cast"
	case *If:
		return "if"
	case *And:
		return "and"
	case *Or:
		return "or"
	case *Not:
		return "not"
	case *Loop:
		return "loop"
	case *ForEach:
		return "for_each"
	case *Break:
		return "break"
	case *Next:
		return "next"
	case *Redo:
		return "redo"
	case *Return:
		return "return"
	case *Raise:
		return "raise"
	case *Rescue:
		return "rescue"
	case *RescueClause:
		return "rescue_clause"
	case *Ensure:
		return "ensure"
	case *Print:
		return "print"
	case *Import:
		return "import"
	case *ClassDefinition:
		return "class"
	case *InterfaceDeclaration:
		return "interface"
	case *ConstructorDefinition:
		return "constructor"
	case *MethodDefinition:
		return "method"
	case *Arguments:
		return "arguments"
	case *RequiredArgument:
		return "required_argument"
	case *OptionalArgument:
		return "optional_argument"
	case *RestArgument:
		return "rest_argument"
	case *BlockArgument:
		return "block_argument"
	}
	return fmt.Sprintf("%T", n)
}
