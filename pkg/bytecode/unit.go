package bytecode

import (
	"fmt"
	"strings"
)

// FormatVersion is the current unit format version.
// Increment when making incompatible changes to the format.
const FormatVersion uint16 = 1

// Magic bytes for unit files: "GRBC" (Garnet ByteCode)
var Magic = []byte{'G', 'R', 'B', 'C'}

// ConstTag identifies the kind of a constant pool entry.
type ConstTag uint8

const (
	ConstInt ConstTag = iota + 1
	ConstLong
	ConstFloat
	ConstDouble
	ConstString
	ConstClass
	ConstField
	ConstMethod
)

// Constant is one constant pool entry. Numeric entries use Int or Float,
// strings and class references use Str, member references use Owner, Name
// and Desc.
type Constant struct {
	Tag   ConstTag `cbor:"1,keyasint"`
	Int   int64    `cbor:"2,keyasint,omitempty"`
	Float float64  `cbor:"3,keyasint,omitempty"`
	Str   string   `cbor:"4,keyasint,omitempty"`
	Owner string   `cbor:"5,keyasint,omitempty"`
	Name  string   `cbor:"6,keyasint,omitempty"`
	Desc  string   `cbor:"7,keyasint,omitempty"`
}

func (c Constant) String() string {
	switch c.Tag {
	case ConstInt, ConstLong:
		return fmt.Sprintf("%d", c.Int)
	case ConstFloat, ConstDouble:
		return fmt.Sprintf("%g", c.Float)
	case ConstString:
		return fmt.Sprintf("%q", c.Str)
	case ConstClass:
		return c.Str
	case ConstField:
		return fmt.Sprintf("%s.%s:%s", c.Owner, c.Name, c.Desc)
	case ConstMethod:
		return fmt.Sprintf("%s.%s%s", c.Owner, c.Name, c.Desc)
	}
	return fmt.Sprintf("Constant(%d)", c.Tag)
}

// Handler is one exception table entry. Code in [Start, End) that raises an
// instance of Type (any throwable when Type is empty) continues at Target
// with the stack cut to Depth values and the exception pushed.
type Handler struct {
	Start  uint32 `cbor:"1,keyasint"`
	End    uint32 `cbor:"2,keyasint"`
	Target uint32 `cbor:"3,keyasint"`
	Type   string `cbor:"4,keyasint,omitempty"`
	Depth  uint32 `cbor:"5,keyasint,omitempty"`
}

// LineEntry maps a code offset to a source line.
type LineEntry struct {
	Offset uint32 `cbor:"1,keyasint"`
	Line   uint32 `cbor:"2,keyasint"`
}

// Field describes a field declared by a unit.
type Field struct {
	Name   string `cbor:"1,keyasint"`
	Desc   string `cbor:"2,keyasint"`
	Static bool   `cbor:"3,keyasint,omitempty"`
}

// Method is the assembled form of one method.
type Method struct {
	Name      string      `cbor:"1,keyasint"`
	Desc      string      `cbor:"2,keyasint"`
	Static    bool        `cbor:"3,keyasint,omitempty"`
	Abstract  bool        `cbor:"4,keyasint,omitempty"`
	MaxLocals uint16      `cbor:"5,keyasint"`
	Code      []byte      `cbor:"6,keyasint,omitempty"`
	Handlers  []Handler   `cbor:"7,keyasint,omitempty"`
	Lines     []LineEntry `cbor:"8,keyasint,omitempty"`
	Throws    []string    `cbor:"9,keyasint,omitempty"`
}

// Line returns the source line for a code offset, or 0.
func (m *Method) Line(offset uint32) uint32 {
	for i := len(m.Lines) - 1; i >= 0; i-- {
		if m.Lines[i].Offset <= offset {
			return m.Lines[i].Line
		}
	}
	return 0
}

// Unit is one named binary unit: a class or interface with its constant
// pool, fields and methods.
type Unit struct {
	ID         string     `cbor:"1,keyasint"`
	Name       string     `cbor:"2,keyasint"`
	Super      string     `cbor:"3,keyasint,omitempty"`
	Interfaces []string   `cbor:"4,keyasint,omitempty"`
	Interface  bool       `cbor:"5,keyasint,omitempty"`
	Source     string     `cbor:"6,keyasint,omitempty"`
	Pool       []Constant `cbor:"7,keyasint,omitempty"`
	Fields     []Field    `cbor:"8,keyasint,omitempty"`
	Methods    []*Method  `cbor:"9,keyasint,omitempty"`
}

// FindMethod returns the method with the given name and descriptor.
func (u *Unit) FindMethod(name, desc string) *Method {
	for _, m := range u.Methods {
		if m.Name == name && m.Desc == desc {
			return m
		}
	}
	return nil
}

// MethodsNamed returns every method called name, in declaration order.
func (u *Unit) MethodsNamed(name string) []*Method {
	var out []*Method
	for _, m := range u.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// FindField returns the declared field called name.
func (u *Unit) FindField(name string) (Field, bool) {
	for _, f := range u.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ValueKind is the stack representation of a type descriptor.
type ValueKind uint8

const (
	KindVoid ValueKind = iota
	KindInt            // int, boolean, byte, short, char
	KindLong
	KindFloat
	KindDouble
	KindRef
)

// KindOf maps a type descriptor to the stack kind that carries it.
func KindOf(desc string) ValueKind {
	switch desc {
	case "void":
		return KindVoid
	case "int", "boolean", "byte", "short", "char":
		return KindInt
	case "long":
		return KindLong
	case "float":
		return KindFloat
	case "double":
		return KindDouble
	}
	return KindRef
}

// ParseDescriptor splits a method descriptor such as "(int,string)void"
// into parameter and return descriptors.
func ParseDescriptor(desc string) (params []string, ret string, err error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", fmt.Errorf("malformed descriptor %q", desc)
	}
	end := strings.IndexByte(desc, ')')
	if end < 0 || end == len(desc)-1 {
		return nil, "", fmt.Errorf("malformed descriptor %q", desc)
	}
	if inner := desc[1:end]; inner != "" {
		params = strings.Split(inner, ",")
	}
	return params, desc[end+1:], nil
}
