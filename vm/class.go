package vm

import (
	"context"
	"fmt"

	"github.com/chazu/garnet/pkg/bytecode"
)

// Native implements a method in Go. Throwing is done by returning a
// *Throw.
type Native func(ctx context.Context, vm *VM, self Value, args []Value) (Value, error)

// Class is a loaded unit or a native class.
type Class struct {
	Name       string
	Super      *Class
	Interfaces []*Class
	Interface  bool

	unit    *bytecode.Unit
	methods map[string]*method
	statics map[string]Value
}

// method is a callable member: decoded bytecode or a native.
type method struct {
	class  *Class
	name   string
	desc   string
	static bool

	def    *bytecode.Method
	code   []bytecode.Instruction
	index  map[int]int // code offset -> instruction index
	params int

	native Native
}

func memberKey(name, desc string) string { return name + desc }

func newClass(name string) *Class {
	return &Class{Name: name, methods: make(map[string]*method), statics: make(map[string]Value)}
}

// Unit returns the unit the class was loaded from, or nil for a native
// class.
func (c *Class) Unit() *bytecode.Unit { return c.unit }

// IsSubclassOf reports whether c is o, extends it or implements it.
func (c *Class) IsSubclassOf(o *Class) bool {
	for k := c; k != nil; k = k.Super {
		if k == o {
			return true
		}
		for _, i := range k.Interfaces {
			if i.IsSubclassOf(o) {
				return true
			}
		}
	}
	return false
}

// find looks name+desc up in c, its superclasses and then its interfaces.
func (c *Class) find(name, desc string) *method {
	key := memberKey(name, desc)
	for k := c; k != nil; k = k.Super {
		if m, ok := k.methods[key]; ok && (m.def == nil || !m.def.Abstract) {
			return m
		}
	}
	for k := c; k != nil; k = k.Super {
		for _, i := range k.Interfaces {
			if m := i.find(name, desc); m != nil {
				return m
			}
		}
	}
	return nil
}

// staticOwner returns the class in c's chain that holds the static field
// name, defaulting to c.
func (c *Class) staticOwner(name string) *Class {
	for k := c; k != nil; k = k.Super {
		if _, ok := k.statics[name]; ok {
			return k
		}
	}
	return c
}

func (c *Class) defineNative(name, desc string, fn Native) {
	params, _, _ := bytecode.ParseDescriptor(desc)
	c.methods[memberKey(name, desc)] = &method{class: c, name: name, desc: desc, params: len(params), native: fn}
}

// loadMethod decodes a unit method.
func (c *Class) loadMethod(def *bytecode.Method) error {
	params, _, err := bytecode.ParseDescriptor(def.Desc)
	if err != nil {
		return err
	}
	m := &method{class: c, name: def.Name, desc: def.Desc, static: def.Static, def: def, params: len(params)}
	if !def.Abstract {
		if m.code, err = bytecode.Decode(def.Code); err != nil {
			return fmt.Errorf("%s.%s%s: %w", c.Name, def.Name, def.Desc, err)
		}
		m.index = make(map[int]int, len(m.code))
		for i, in := range m.code {
			m.index[in.Offset] = i
		}
	}
	c.methods[memberKey(def.Name, def.Desc)] = m
	return nil
}

func (m *method) String() string { return m.class.Name + "." + m.name + m.desc }

// line returns the source line of the instruction at index pc.
func (m *method) line(pc int) uint32 {
	if m.def == nil || pc >= len(m.code) {
		return 0
	}
	return m.def.Line(uint32(m.code[pc].Offset))
}
