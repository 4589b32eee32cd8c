package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/garnet/pkg/bytecode"
)

// MainName and MainDescriptor identify the entry point Run calls.
const (
	MainName       = "main"
	MainDescriptor = "(string[])void"
)

// DefaultMaxDepth bounds the call stack.
const DefaultMaxDepth = 2048

// ErrStackOverflow is returned when a call would exceed the maximum depth.
var ErrStackOverflow = errors.New("vm: stack overflow")

// Option configures a VM.
type Option func(*VM)

// WithOutput redirects the out stream of System. The default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithMaxDepth sets the maximum call depth.
func WithMaxDepth(n int) Option {
	return func(vm *VM) { vm.maxDepth = n }
}

// WithLogger replaces the default "garnet.vm" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(vm *VM) { vm.log = log }
}

// VM loads units and runs them. A VM is not safe for concurrent use.
type VM struct {
	classes  map[string]*Class
	out      io.Writer
	log      commonlog.Logger
	maxDepth int
	depth    int
	nextID   uint32
}

// New creates a VM with the native runtime classes loaded.
func New(opts ...Option) *VM {
	vm := &VM{
		classes:  make(map[string]*Class),
		out:      os.Stdout,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.log == nil {
		vm.log = commonlog.GetLogger("garnet.vm")
	}
	vm.defineNatives()
	return vm
}

// Class returns a loaded class.
func (vm *VM) Class(name string) (*Class, bool) {
	c, ok := vm.classes[name]
	return c, ok
}

// Load adds units to the VM. Superclasses and interfaces may be among the
// units or already loaded.
func (vm *VM) Load(units ...*bytecode.Unit) error {
	var loaded []*Class
	for _, u := range units {
		if _, ok := vm.classes[u.Name]; ok {
			return fmt.Errorf("vm: class %s is already loaded", u.Name)
		}
		c := newClass(u.Name)
		c.unit = u
		c.Interface = u.Interface
		for _, m := range u.Methods {
			if err := c.loadMethod(m); err != nil {
				return fmt.Errorf("vm: %w", err)
			}
		}
		for _, f := range u.Fields {
			if f.Static {
				c.statics[f.Name] = zero(f.Desc)
			}
		}
		vm.classes[u.Name] = c
		loaded = append(loaded, c)
		vm.log.Debugf("loaded %s (%d methods)", u.Name, len(u.Methods))
	}
	for _, c := range loaded {
		if err := vm.link(c); err != nil {
			return err
		}
	}
	return nil
}

// LoadBytes decodes and loads encoded units.
func (vm *VM) LoadBytes(images ...[]byte) error {
	units := make([]*bytecode.Unit, len(images))
	for i, data := range images {
		u, err := bytecode.Unmarshal(data)
		if err != nil {
			return fmt.Errorf("vm: %w", err)
		}
		units[i] = u
	}
	return vm.Load(units...)
}

func (vm *VM) link(c *Class) error {
	u := c.unit
	if u.Super != "" {
		super, ok := vm.classes[u.Super]
		if !ok {
			return fmt.Errorf("vm: superclass %s of %s is not loaded", u.Super, c.Name)
		}
		c.Super = super
	} else if !c.Interface && c.Name != objectName {
		c.Super = vm.classes[objectName]
	}
	for _, name := range u.Interfaces {
		i, ok := vm.classes[name]
		if !ok {
			return fmt.Errorf("vm: interface %s of %s is not loaded", name, c.Name)
		}
		c.Interfaces = append(c.Interfaces, i)
	}
	return nil
}

// Run calls the main method of the named class with args.
func (vm *VM) Run(ctx context.Context, class string, args []string) error {
	argv := newArray(stringName, len(args))
	for i, a := range args {
		argv.Values[i] = a
	}
	_, err := vm.InvokeStatic(ctx, class, MainName, MainDescriptor, argv)
	return err
}

// InvokeStatic calls a static method. An exception that escapes it is
// returned as an *UncaughtError.
func (vm *VM) InvokeStatic(ctx context.Context, class, name, desc string, args ...Value) (Value, error) {
	c, ok := vm.classes[class]
	if !ok {
		return nil, fmt.Errorf("vm: class %s is not loaded", class)
	}
	m := c.find(name, desc)
	if m == nil || !m.static {
		return nil, fmt.Errorf("vm: no static method %s.%s%s", class, name, desc)
	}
	return vm.uncaught(vm.call(ctx, m, args))
}

// InvokeVirtual calls an instance method on self.
func (vm *VM) InvokeVirtual(ctx context.Context, self Value, name, desc string, args ...Value) (Value, error) {
	c := vm.classOf(self)
	if c == nil {
		return nil, fmt.Errorf("vm: cannot call %s on %v", name, self)
	}
	m := c.find(name, desc)
	if m == nil {
		return nil, fmt.Errorf("vm: no method %s.%s%s", c.Name, name, desc)
	}
	return vm.uncaught(vm.call(ctx, m, append([]Value{self}, args...)))
}

// Instantiate creates an object through its class's constructor taking
// desc.
func (vm *VM) Instantiate(ctx context.Context, class, desc string, args ...Value) (*Object, error) {
	c, ok := vm.classes[class]
	if !ok {
		return nil, fmt.Errorf("vm: class %s is not loaded", class)
	}
	obj := vm.newObject(c)
	m := c.methods[memberKey(constructorName, desc)]
	if m == nil {
		return nil, fmt.Errorf("vm: no constructor %s%s", class, desc)
	}
	if _, err := vm.uncaught(vm.call(ctx, m, append([]Value{obj}, args...))); err != nil {
		return nil, err
	}
	return obj, nil
}

func (vm *VM) uncaught(v Value, err error) (Value, error) {
	var t *Throw
	if errors.As(err, &t) {
		return nil, &UncaughtError{Exception: t.Exception, Trace: t.trace}
	}
	return v, err
}

func (vm *VM) newObject(c *Class) *Object {
	vm.nextID++
	return &Object{Class: c, Fields: make(map[string]Value), id: vm.nextID}
}

// classOf returns the runtime class of a reference value.
func (vm *VM) classOf(v Value) *Class {
	switch v := v.(type) {
	case *Object:
		return v.Class
	case string:
		return vm.classes[stringName]
	case *Array:
		return vm.classes[objectName]
	}
	return nil
}

// isInstance reports whether v can be used where the descriptor class is
// expected. Arrays match object and arrays of the same descriptor.
func (vm *VM) isInstance(v Value, desc string) bool {
	if a, ok := v.(*Array); ok {
		return desc == objectName || desc == a.Component+"[]"
	}
	c := vm.classOf(v)
	target, ok := vm.classes[desc]
	return c != nil && ok && c.IsSubclassOf(target)
}
