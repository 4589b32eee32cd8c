package vm

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"strings"

	"github.com/chazu/garnet/pkg/types"
)

const (
	objectName      = types.ObjectName
	stringName      = types.StringName
	constructorName = types.ConstructorName

	arithmeticName = "ArithmeticException"
	indexName      = "IndexOutOfBoundsException"
	nullName       = "NullPointerException"
	classCastName  = "ClassCastException"
	listIterName   = "ListIterator"
)

// defineNatives installs the runtime classes every program links against.
func (vm *VM) defineNatives() {
	define := func(name string, super *Class, interfaces ...*Class) *Class {
		c := newClass(name)
		c.Super = super
		c.Interfaces = interfaces
		vm.classes[name] = c
		return c
	}
	iface := func(name string) *Class {
		c := define(name, nil)
		c.Interface = true
		return c
	}

	obj := define(objectName, nil)
	obj.defineNative(constructorName, "()void", func(context.Context, *VM, Value, []Value) (Value, error) {
		return nil, nil
	})
	obj.defineNative("toString", "()string", func(_ context.Context, vm *VM, self Value, _ []Value) (Value, error) {
		if o, ok := self.(*Object); ok {
			return fmt.Sprintf("%s@%x", o.Class.Name, o.id), nil
		}
		s, _ := display(self)
		return s, nil
	})
	obj.defineNative("equals", "(object)boolean", func(_ context.Context, _ *VM, self Value, args []Value) (Value, error) {
		return boolValue(self == args[0]), nil
	})
	obj.defineNative("hashCode", "()int", func(_ context.Context, _ *VM, self Value, _ []Value) (Value, error) {
		switch v := self.(type) {
		case *Object:
			return int32(v.id), nil
		case string:
			h := fnv.New32a()
			h.Write([]byte(v))
			return int32(h.Sum32()), nil
		}
		return int32(0), nil
	})

	vm.defineString(define(stringName, obj))

	throwable := define(types.ThrowableName, obj)
	throwable.defineNative(constructorName, "()void", func(context.Context, *VM, Value, []Value) (Value, error) {
		return nil, nil
	})
	throwable.defineNative(constructorName, "(string)void", func(_ context.Context, _ *VM, self Value, args []Value) (Value, error) {
		self.(*Object).Fields[messageField] = args[0]
		return nil, nil
	})
	throwable.defineNative("getMessage", "()string", func(_ context.Context, _ *VM, self Value, _ []Value) (Value, error) {
		return self.(*Object).Fields[messageField], nil
	})
	throwable.defineNative("toString", "()string", func(_ context.Context, _ *VM, self Value, _ []Value) (Value, error) {
		return (&Throw{Exception: self.(*Object)}).Error(), nil
	})
	exception := define(types.ExceptionName, throwable)
	runtime := define(types.RuntimeExcName, exception)
	for _, name := range []string{arithmeticName, indexName, nullName, classCastName} {
		define(name, runtime)
	}

	iterator := iface(types.IteratorName)
	iterable := iface(types.IterableName)
	vm.defineList(define(types.ListName, obj, iterable), define(listIterName, obj, iterator))

	out := define(types.PrintStreamName, obj)
	vm.definePrintStream(out)
	system := define(types.SystemName, obj)
	stream := vm.newObject(out)
	stream.Native = io.Writer(vm.out)
	system.statics["out"] = stream
}

func (vm *VM) defineString(str *Class) {
	runes := func(self Value) []rune { return []rune(self.(string)) }
	str.defineNative("length", "()int", func(_ context.Context, _ *VM, self Value, _ []Value) (Value, error) {
		return int32(len(runes(self))), nil
	})
	str.defineNative("charAt", "(int)char", func(_ context.Context, vm *VM, self Value, args []Value) (Value, error) {
		r, i := runes(self), args[0].(int32)
		if i < 0 || int(i) >= len(r) {
			return nil, vm.throwNew(indexName, fmt.Sprintf("Index %d out of bounds for length %d", i, len(r)))
		}
		return int32(r[i]), nil
	})
	str.defineNative("substring", "(int,int)string", func(_ context.Context, vm *VM, self Value, args []Value) (Value, error) {
		r, b, e := runes(self), args[0].(int32), args[1].(int32)
		if b < 0 || e > int32(len(r)) || b > e {
			return nil, vm.throwNew(indexName, fmt.Sprintf("begin %d, end %d, length %d", b, e, len(r)))
		}
		return string(r[b:e]), nil
	})
	str.defineNative("concat", "(string)string", func(_ context.Context, vm *VM, self Value, args []Value) (Value, error) {
		if args[0] == nil {
			return nil, vm.throwNew(nullName, "concat of null")
		}
		return self.(string) + args[0].(string), nil
	})
	str.defineNative("toString", "()string", func(_ context.Context, _ *VM, self Value, _ []Value) (Value, error) {
		return self, nil
	})
	str.defineNative("equals", "(object)boolean", func(_ context.Context, _ *VM, self Value, args []Value) (Value, error) {
		s, ok := args[0].(string)
		return boolValue(ok && s == self.(string)), nil
	})
}

type listState struct {
	values []Value
}

type listIterState struct {
	list *listState
	next int
}

func (vm *VM) defineList(list, iter *Class) {
	state := func(self Value) *listState { return self.(*Object).Native.(*listState) }
	list.defineNative(constructorName, "()void", func(_ context.Context, _ *VM, self Value, _ []Value) (Value, error) {
		self.(*Object).Native = &listState{}
		return nil, nil
	})
	list.defineNative("add", "(object)boolean", func(_ context.Context, _ *VM, self Value, args []Value) (Value, error) {
		l := state(self)
		l.values = append(l.values, args[0])
		return int32(1), nil
	})
	list.defineNative("get", "(int)object", func(_ context.Context, vm *VM, self Value, args []Value) (Value, error) {
		l, i := state(self), args[0].(int32)
		if i < 0 || int(i) >= len(l.values) {
			return nil, vm.throwNew(indexName, fmt.Sprintf("Index %d out of bounds for length %d", i, len(l.values)))
		}
		return l.values[i], nil
	})
	list.defineNative("size", "()int", func(_ context.Context, _ *VM, self Value, _ []Value) (Value, error) {
		return int32(len(state(self).values)), nil
	})
	list.defineNative("iterator", "()"+types.IteratorName, func(_ context.Context, vm *VM, self Value, _ []Value) (Value, error) {
		it := vm.newObject(iter)
		it.Native = &listIterState{list: state(self)}
		return it, nil
	})
	list.defineNative("toString", "()string", func(ctx context.Context, vm *VM, self Value, _ []Value) (Value, error) {
		var parts []string
		for _, v := range state(self).values {
			s, err := vm.stringify(ctx, v)
			if err != nil {
				return nil, err
			}
			parts = append(parts, s)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	})

	cursor := func(self Value) *listIterState { return self.(*Object).Native.(*listIterState) }
	iter.defineNative("hasNext", "()boolean", func(_ context.Context, _ *VM, self Value, _ []Value) (Value, error) {
		c := cursor(self)
		return boolValue(c.next < len(c.list.values)), nil
	})
	iter.defineNative("next", "()"+objectName, func(_ context.Context, vm *VM, self Value, _ []Value) (Value, error) {
		c := cursor(self)
		if c.next >= len(c.list.values) {
			return nil, vm.throwNew(types.RuntimeExcName, "no more elements")
		}
		c.next++
		return c.list.values[c.next-1], nil
	})
}

func (vm *VM) definePrintStream(out *Class) {
	write := func(self Value, s string) error {
		_, err := io.WriteString(self.(*Object).Native.(io.Writer), s)
		return err
	}
	for _, p := range []string{"boolean", "char", "int", "long", "float", "double", stringName, objectName} {
		for _, name := range []string{"print", "println"} {
			p, newline := p, name == "println"
			out.defineNative(name, "("+p+")void", func(ctx context.Context, vm *VM, self Value, args []Value) (Value, error) {
				var s string
				switch p {
				case "boolean":
					s = formatBoolean(args[0].(int32))
				case "char":
					s = string(rune(args[0].(int32)))
				default:
					var err error
					if s, err = vm.stringify(ctx, args[0]); err != nil {
						return nil, err
					}
				}
				if newline {
					s += "\n"
				}
				return nil, write(self, s)
			})
		}
	}
	out.defineNative("println", "()void", func(_ context.Context, _ *VM, self Value, _ []Value) (Value, error) {
		return nil, write(self, "\n")
	})
}

// stringify renders v for printing and concatenation. Objects are asked
// through their toString method.
func (vm *VM) stringify(ctx context.Context, v Value) (string, error) {
	if s, ok := display(v); ok {
		return s, nil
	}
	obj := v.(*Object)
	m := obj.Class.find("toString", "()"+stringName)
	if m == nil {
		return "", fmt.Errorf("vm: %s has no toString", obj.Class.Name)
	}
	r, err := vm.call(ctx, m, []Value{obj})
	if err != nil {
		return "", err
	}
	s, _ := display(r)
	return s, nil
}
