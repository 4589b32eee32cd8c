package ast

import "fmt"

// Tree is an arena holding every node of one compilation unit. Nodes are
// numbered in document order; parent links are NodeIDs.
type Tree struct {
	nodes   []Node
	parents []NodeID
}

// NewTree numbers every node reachable from root and records parent links.
// A node may appear in only one place in one tree.
func NewTree(root Node) (*Tree, error) {
	t := &Tree{}
	if err := t.add(root, NoNode); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) add(n Node, parent NodeID) error {
	m := n.meta()
	if m.inTree {
		return fmt.Errorf("%s: %s node already belongs to a tree", m.Position, Kind(n))
	}
	m.id = NodeID(len(t.nodes))
	m.inTree = true
	t.nodes = append(t.nodes, n)
	t.parents = append(t.parents, parent)
	for _, c := range Children(n) {
		if err := t.add(c, m.id); err != nil {
			return err
		}
	}
	return nil
}

// Root returns the root node.
func (t *Tree) Root() Node { return t.nodes[0] }

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node with the given id.
func (t *Tree) Node(id NodeID) Node { return t.nodes[id] }

// Parent returns the parent of n, or nil for the root.
func (t *Tree) Parent(n Node) Node {
	p := t.parents[n.ID()]
	if p == NoNode {
		return nil
	}
	return t.nodes[p]
}

// Ancestors calls fn for each ancestor of n, nearest first, until fn
// returns false.
func (t *Tree) Ancestors(n Node, fn func(Node) bool) {
	for p := t.parents[n.ID()]; p != NoNode; p = t.parents[p] {
		if !fn(t.nodes[p]) {
			return
		}
	}
}

// Scope returns the nearest scope owner enclosing n. A scope owner's own
// scope is its parent's; arguments and bodies of a method belong to the
// method.
func (t *Tree) Scope(n Node) ScopeOwner {
	var found ScopeOwner
	t.Ancestors(n, func(a Node) bool {
		if s, ok := a.(ScopeOwner); ok {
			found = s
			return false
		}
		return true
	})
	return found
}

// Class returns the nearest class or interface enclosing n, or nil when n
// is at script level.
func (t *Tree) Class(n Node) Node {
	var found Node
	t.Ancestors(n, func(a Node) bool {
		switch a.(type) {
		case *ClassDefinition, *InterfaceDeclaration:
			found = a
			return false
		}
		return true
	})
	return found
}

// Method returns the nearest method or constructor enclosing n.
func (t *Tree) Method(n Node) Definition {
	var found Definition
	t.Ancestors(n, func(a Node) bool {
		if d, ok := a.(Definition); ok {
			found = d
			return false
		}
		return true
	})
	return found
}

// Contains reports whether n lies inside the subtree rooted at outer.
func (t *Tree) Contains(outer, n Node) bool {
	if outer == nil || n == nil {
		return false
	}
	if outer.ID() == n.ID() {
		return true
	}
	inside := false
	t.Ancestors(n, func(a Node) bool {
		if a.ID() == outer.ID() {
			inside = true
			return false
		}
		return true
	})
	return inside
}

// Walk calls fn for every node in document order.
func (t *Tree) Walk(fn func(Node)) {
	for _, n := range t.nodes {
		fn(n)
	}
}

// Children returns the direct children of n in evaluation order. Nil
// children are omitted.
func Children(n Node) []Node {
	var out []Node
	add := func(ns ...Node) {
		for _, c := range ns {
			if c != nil && !isNilNode(c) {
				out = append(out, c)
			}
		}
	}
	switch n := n.(type) {
	case *Script:
		add(n.Body)
	case *Body:
		add(n.Children...)
	case *EmptyArray:
		add(n.Size)
	case *LocalAssignment:
		add(n.Value)
	case *FieldAssignment:
		add(n.Value)
	case *Call:
		add(n.Target)
		add(n.Args...)
	case *FunctionalCall:
		add(n.Args...)
	case *Super:
		add(n.Args...)
	case *Cast:
		add(n.Value)
	case *If:
		add(n.Condition, n.Body, n.Else)
	case *And:
		add(n.Left, n.Right)
	case *Or:
		add(n.Left, n.Right)
	case *Not:
		add(n.Value)
	case *Loop:
		add(n.Init, n.Condition, n.Pre, n.Body, n.Post)
	case *ForEach:
		add(n.Iter, n.Body)
	case *Return:
		add(n.Value)
	case *Raise:
		add(n.Value)
	case *Rescue:
		add(n.Body)
		for _, c := range n.Clauses {
			add(c)
		}
	case *RescueClause:
		add(n.Body)
	case *Ensure:
		add(n.Body, n.Clause)
	case *Print:
		add(n.Values...)
	case *ClassDefinition:
		add(n.Body)
	case *InterfaceDeclaration:
		add(n.Body)
	case *MethodDefinition:
		add(n.Args, n.Body)
	case *ConstructorDefinition:
		add(n.Args)
		add(n.DelegateArgs...)
		add(n.Body)
	case *Arguments:
		add(n.Nodes()...)
	case *OptionalArgument:
		add(n.Value)
	}
	return out
}

// isNilNode catches typed nil pointers stored in Node fields.
func isNilNode(n Node) bool {
	switch n := n.(type) {
	case *Arguments:
		return n == nil
	case *Body:
		return n == nil
	case *RescueClause:
		return n == nil
	}
	return false
}

// Statements flattens nested bodies into the statements they hold. A
// non-body node is its own single statement; nil has none.
func Statements(n Node) []Node {
	if n == nil || isNilNode(n) {
		return nil
	}
	b, ok := n.(*Body)
	if !ok {
		return []Node{n}
	}
	var out []Node
	for _, c := range b.Children {
		out = append(out, Statements(c)...)
	}
	return out
}
