// Package types models the values the type inference engine assigns to
// syntax nodes: primitives, references, arrays and meta (class-object) types.
//
// Types are interned by a Registry. Two types with the same name, array flag
// and meta flag obtained from one Registry are the same *Type, so pointer
// comparison is identity. Equal compares identities for callers that mix
// types from different registries.
package types

import "fmt"

// Kind classifies a Type.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBoolean
	KindByte
	KindShort
	KindChar
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindNull
	KindUnreachable
	KindReference
)

var kindNames = [...]string{
	KindVoid:        "void",
	KindBoolean:     "boolean",
	KindByte:        "byte",
	KindShort:       "short",
	KindChar:        "char",
	KindInt:         "int",
	KindLong:        "long",
	KindFloat:       "float",
	KindDouble:      "double",
	KindNull:        "null",
	KindUnreachable: "unreachable",
	KindReference:   "reference",
}

// String returns the kind's name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// widening rank for numeric primitives; char widens to int and above.
var numericRank = map[Kind]int{
	KindByte:   1,
	KindShort:  2,
	KindChar:   2,
	KindInt:    3,
	KindLong:   4,
	KindFloat:  5,
	KindDouble: 6,
}

// Type is a compile-time type. The zero value is not usable; obtain types
// from a Registry.
type Type struct {
	name       string
	kind       Kind
	array      bool
	meta       bool
	iface      bool
	component  *Type // element type for arrays
	base       *Type // instance type for meta types
	super      *Type
	interfaces []*Type

	arrayOf *Type
	metaOf  *Type
}

// Name returns the unqualified name, without array or meta decoration.
func (t *Type) Name() string { return t.name }

// Kind returns the type's kind. Arrays and meta types are references.
func (t *Type) Kind() Kind { return t.kind }

// String renders the type the way it appears in diagnostics.
func (t *Type) String() string {
	switch {
	case t == nil:
		return "<unknown>"
	case t.meta:
		return t.base.String() + " meta"
	case t.array:
		return t.component.String() + "[]"
	default:
		return t.name
	}
}

// Descriptor returns the name used for this type in emitted member
// references. Meta types share the descriptor of their instance type.
func (t *Type) Descriptor() string {
	if t.meta {
		return t.base.Descriptor()
	}
	return t.String()
}

// IsPrimitive reports whether values of t live directly on the stack.
func (t *Type) IsPrimitive() bool {
	return t.kind >= KindBoolean && t.kind <= KindDouble
}

// IsNumeric reports whether t is a numeric primitive.
func (t *Type) IsNumeric() bool {
	_, ok := numericRank[t.kind]
	return ok
}

// IsWide reports whether t is long or double.
func (t *Type) IsWide() bool { return t.kind == KindLong || t.kind == KindDouble }

// IsReference reports whether t is an object, array, meta or null type.
func (t *Type) IsReference() bool { return t.kind == KindReference || t.kind == KindNull }

func (t *Type) IsVoid() bool        { return t.kind == KindVoid }
func (t *Type) IsNull() bool        { return t.kind == KindNull }
func (t *Type) IsUnreachable() bool { return t.kind == KindUnreachable }
func (t *Type) IsArray() bool       { return t.array }
func (t *Type) IsMeta() bool        { return t.meta }
func (t *Type) IsInterface() bool   { return t.iface }

// Component returns the element type of an array, or nil.
func (t *Type) Component() *Type { return t.component }

// Superclass returns the direct superclass, or nil.
func (t *Type) Superclass() *Type {
	if t.meta {
		if t.base.super == nil {
			return nil
		}
		return t.base.super.Meta()
	}
	return t.super
}

// Interfaces returns the directly implemented interfaces.
func (t *Type) Interfaces() []*Type { return t.interfaces }

// Array returns the array type whose component is t.
func (t *Type) Array() *Type {
	if t.arrayOf == nil {
		t.arrayOf = &Type{kind: KindReference, array: true, component: t}
	}
	return t.arrayOf
}

// Meta returns the class-object type of t. Meta of a meta type is itself.
func (t *Type) Meta() *Type {
	if t.meta {
		return t
	}
	if t.metaOf == nil {
		t.metaOf = &Type{name: t.name, kind: KindReference, meta: true, base: t}
	}
	return t.metaOf
}

// Unmeta returns the instance type of a meta type, or t itself.
func (t *Type) Unmeta() *Type {
	if t.meta {
		return t.base
	}
	return t
}

// Equal compares the identity (name, array, meta) of two types.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	if t.array != o.array || t.meta != o.meta {
		return false
	}
	switch {
	case t.array:
		return t.component.Equal(o.component)
	case t.meta:
		return t.base.Equal(o.base)
	}
	return t.name == o.name && t.kind == o.kind
}

// IsParent reports whether a value of type o may be used where t is
// expected: identity, primitive widening, null to reference, subclassing
// and interface implementation. An unreachable o fits anywhere.
func (t *Type) IsParent(o *Type) bool {
	if t == nil || o == nil {
		return false
	}
	if t.Equal(o) || o.IsUnreachable() {
		return true
	}
	switch {
	case t.IsVoid() || o.IsVoid() || t.IsUnreachable():
		return false
	case t.IsPrimitive() || o.IsPrimitive():
		if !t.IsNumeric() || !o.IsNumeric() {
			return false
		}
		if o.kind == KindChar {
			return numericRank[t.kind] >= numericRank[KindInt]
		}
		if t.kind == KindChar {
			return false
		}
		return numericRank[t.kind] >= numericRank[o.kind]
	case o.IsNull():
		return t.IsReference()
	case t.meta || o.meta:
		return t.meta && o.meta && t.base.IsParent(o.base)
	case t.array:
		if !o.array {
			return false
		}
		if t.component.IsPrimitive() || o.component.IsPrimitive() {
			return t.component.Equal(o.component)
		}
		return t.component.IsParent(o.component)
	case t.name == ObjectName:
		return true
	case o.array:
		return false
	}
	return o.inherits(t)
}

func (t *Type) inherits(ancestor *Type) bool {
	for c := t; c != nil; c = c.super {
		if c.Equal(ancestor) {
			return true
		}
		for _, i := range c.interfaces {
			if i.inherits(ancestor) {
				return true
			}
		}
	}
	return false
}

// Common returns the narrowest of a and b that accepts both, or nil when
// neither is a parent of the other.
func Common(a, b *Type) *Type {
	switch {
	case a == nil || b == nil:
		return nil
	case a.IsUnreachable():
		return b
	case b.IsUnreachable():
		return a
	case a.IsParent(b):
		return a
	case b.IsParent(a):
		return b
	}
	return nil
}
