package types

import (
	"fmt"
	"strings"
)

// MethodKind tells the code generator how a method is invoked.
type MethodKind uint8

const (
	MethodVirtual MethodKind = iota
	MethodStatic
	MethodInterface
	MethodConstructor
	MethodIntrinsic
)

// Intrinsic names an operation the code generator emits inline instead of
// as a call.
type Intrinsic uint8

const (
	OpNone Intrinsic = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpNeg
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpConcat
	OpArrayLength
	OpArrayLoad
	OpArrayStore
)

var intrinsicNames = map[string]Intrinsic{
	"+":  OpAdd,
	"-":  OpSub,
	"*":  OpMul,
	"/":  OpDiv,
	"%":  OpRem,
	"-@": OpNeg,
	"==": OpEq,
	"!=": OpNe,
	"<":  OpLt,
	"<=": OpLe,
	">":  OpGt,
	">=": OpGe,
}

// IsComparison reports whether op produces a boolean from two operands.
func (op Intrinsic) IsComparison() bool { return op >= OpEq && op <= OpGe }

// MethodType is a learned or built-in method signature.
type MethodType struct {
	// Owner is the declaring type; the meta type for static methods.
	Owner  *Type
	Name   string
	Params []*Type
	Return *Type
	Throws []*Type
	Kind   MethodKind
	Op     Intrinsic
}

// IsStatic reports whether the method is invoked without a receiver.
func (m *MethodType) IsStatic() bool { return m.Kind == MethodStatic }

// Descriptor renders the parameter and return types, e.g. "(int,string)void".
// Constructors always describe a void return.
func (m *MethodType) Descriptor() string {
	ret := m.Return
	if m.Kind == MethodConstructor {
		ret = nil
	}
	return Descriptor(ret, m.Params)
}

// Descriptor renders a method descriptor; a nil return means void.
func Descriptor(ret *Type, params []*Type) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.Descriptor())
	}
	sb.WriteByte(')')
	if ret == nil {
		sb.WriteString(voidName)
	} else {
		sb.WriteString(ret.Descriptor())
	}
	return sb.String()
}

func (m *MethodType) String() string {
	return fmt.Sprintf("%s.%s(%s)", m.Owner, m.Name, joinTypes(m.Params))
}

func joinTypes(ts []*Type) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}

func sameParams(a, b []*Type) bool {
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

func (m *MethodType) applicable(args []*Type) bool {
	if len(m.Params) != len(args) {
		return false
	}
	for i, p := range m.Params {
		if !p.IsParent(args[i]) {
			return false
		}
	}
	return true
}

// moreSpecific reports whether every parameter of m is accepted by o.
func (m *MethodType) moreSpecific(o *MethodType) bool {
	for i, p := range o.Params {
		if !p.IsParent(m.Params[i]) {
			return false
		}
	}
	return true
}

// OverloadError reports a call site with no single applicable signature.
type OverloadError struct {
	Receiver  *Type
	Name      string
	Args      []*Type
	Ambiguous []*MethodType
}

func (e *OverloadError) Error() string {
	if len(e.Ambiguous) > 0 {
		alts := make([]string, len(e.Ambiguous))
		for i, m := range e.Ambiguous {
			alts[i] = m.String()
		}
		return fmt.Sprintf("ambiguous call %s.%s(%s): candidates %s",
			e.Receiver, e.Name, joinTypes(e.Args), strings.Join(alts, "; "))
	}
	return fmt.Sprintf("no method %s.%s(%s)", e.Receiver, e.Name, joinTypes(e.Args))
}
