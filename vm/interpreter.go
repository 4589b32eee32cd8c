package vm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/chazu/garnet/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// frame is the execution state of one bytecode method activation.
type frame struct {
	m      *method
	locals []Value
	stack  []Value
}

func (f *frame) push(v Value) { f.stack = append(f.stack, v) }

// errStackUnderflow reports code popping more values than it pushed.
var errStackUnderflow = errors.New("operand stack underflow")

func (f *frame) pop() Value {
	if len(f.stack) == 0 {
		panic(errStackUnderflow)
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) peek() Value {
	if len(f.stack) == 0 {
		panic(errStackUnderflow)
	}
	return f.stack[len(f.stack)-1]
}

func (f *frame) popInt() int32      { return f.pop().(int32) }
func (f *frame) popLong() int64     { return f.pop().(int64) }
func (f *frame) popFloat() float32  { return f.pop().(float32) }
func (f *frame) popDouble() float64 { return f.pop().(float64) }

// call runs m with args, the receiver first for instance methods.
func (vm *VM) call(ctx context.Context, m *method, args []Value) (Value, error) {
	if m.native != nil {
		var self Value
		if !m.static {
			self, args = args[0], args[1:]
		}
		return m.native(ctx, vm, self, args)
	}
	if m.def.Abstract {
		return nil, fmt.Errorf("vm: %s is abstract", m)
	}
	if vm.depth >= vm.maxDepth {
		return nil, ErrStackOverflow
	}
	vm.depth++
	defer func() { vm.depth-- }()

	f := &frame{m: m, locals: make([]Value, max(int(m.def.MaxLocals), len(args)))}
	copy(f.locals, args)
	return vm.execute(ctx, f)
}

// ---------------------------------------------------------------------------
// Main interpreter loop
// ---------------------------------------------------------------------------

// checkInterval is how many instructions run between cancellation checks.
const checkInterval = 1024

func (vm *VM) execute(ctx context.Context, f *frame) (result Value, err error) {
	m := f.m
	pool := m.class.unit.Pool
	pc := 0
	var in bytecode.Instruction

	// Malformed code surfaces as a failed type assertion or index.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vm: %s at %04X: %v", m, in.Offset, r)
		}
	}()

	for steps := 0; ; steps++ {
		if steps%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if pc >= len(m.code) {
			return nil, fmt.Errorf("vm: %s runs past the end of its code", m)
		}
		in = m.code[pc]
		pc++

		var thrown error
		switch op := in.Op; op {

		// Stack
		case bytecode.OpNop:
		case bytecode.OpPop:
			f.pop()
		case bytecode.OpDup:
			f.push(f.peek())
		case bytecode.OpDupX1:
			v1, v2 := f.pop(), f.pop()
			f.push(v1)
			f.push(v2)
			f.push(v1)
		case bytecode.OpDupX2:
			v1, v2, v3 := f.pop(), f.pop(), f.pop()
			f.push(v1)
			f.push(v3)
			f.push(v2)
			f.push(v1)
		case bytecode.OpSwap:
			v1, v2 := f.pop(), f.pop()
			f.push(v1)
			f.push(v2)

		// Constants
		case bytecode.OpAConstNull:
			f.push(nil)
		case bytecode.OpIConstM1:
			f.push(int32(-1))
		case bytecode.OpIConst0:
			f.push(int32(0))
		case bytecode.OpIConst1:
			f.push(int32(1))
		case bytecode.OpLConst0:
			f.push(int64(0))
		case bytecode.OpFConst0:
			f.push(float32(0))
		case bytecode.OpDConst0:
			f.push(float64(0))
		case bytecode.OpBIPush, bytecode.OpSIPush:
			f.push(int32(in.Operand))
		case bytecode.OpLdc:
			f.push(constant(pool[in.Operand]))

		// Locals
		case bytecode.OpILoad, bytecode.OpLLoad, bytecode.OpFLoad, bytecode.OpDLoad, bytecode.OpALoad:
			f.push(f.locals[in.Operand])
		case bytecode.OpIStore, bytecode.OpLStore, bytecode.OpFStore, bytecode.OpDStore, bytecode.OpAStore:
			f.locals[in.Operand] = f.pop()
		case bytecode.OpIInc:
			f.locals[in.Operand] = f.locals[in.Operand].(int32) + int32(in.Extra)

		// Arithmetic
		case bytecode.OpIAdd, bytecode.OpISub, bytecode.OpIMul, bytecode.OpIDiv, bytecode.OpIRem:
			b, a := f.popInt(), f.popInt()
			if (op == bytecode.OpIDiv || op == bytecode.OpIRem) && b == 0 {
				thrown = vm.throwNew(arithmeticName, "/ by zero")
				break
			}
			f.push(intArith(op, a, b))
		case bytecode.OpLAdd, bytecode.OpLSub, bytecode.OpLMul, bytecode.OpLDiv, bytecode.OpLRem:
			b, a := f.popLong(), f.popLong()
			if (op == bytecode.OpLDiv || op == bytecode.OpLRem) && b == 0 {
				thrown = vm.throwNew(arithmeticName, "/ by zero")
				break
			}
			f.push(longArith(op, a, b))
		case bytecode.OpFAdd, bytecode.OpFSub, bytecode.OpFMul, bytecode.OpFDiv, bytecode.OpFRem:
			b, a := f.popFloat(), f.popFloat()
			f.push(float32(floatArith(op, float64(a), float64(b))))
		case bytecode.OpDAdd, bytecode.OpDSub, bytecode.OpDMul, bytecode.OpDDiv, bytecode.OpDRem:
			b, a := f.popDouble(), f.popDouble()
			f.push(floatArith(op, a, b))
		case bytecode.OpINeg:
			f.push(-f.popInt())
		case bytecode.OpLNeg:
			f.push(-f.popLong())
		case bytecode.OpFNeg:
			f.push(-f.popFloat())
		case bytecode.OpDNeg:
			f.push(-f.popDouble())

		// Conversions
		case bytecode.OpI2L:
			f.push(int64(f.popInt()))
		case bytecode.OpI2F:
			f.push(float32(f.popInt()))
		case bytecode.OpI2D:
			f.push(float64(f.popInt()))
		case bytecode.OpL2I:
			f.push(int32(f.popLong()))
		case bytecode.OpL2F:
			f.push(float32(f.popLong()))
		case bytecode.OpL2D:
			f.push(float64(f.popLong()))
		case bytecode.OpF2I:
			f.push(toInt(float64(f.popFloat())))
		case bytecode.OpF2L:
			f.push(toLong(float64(f.popFloat())))
		case bytecode.OpF2D:
			f.push(float64(f.popFloat()))
		case bytecode.OpD2I:
			f.push(toInt(f.popDouble()))
		case bytecode.OpD2L:
			f.push(toLong(f.popDouble()))
		case bytecode.OpD2F:
			f.push(float32(f.popDouble()))
		case bytecode.OpI2B:
			f.push(int32(int8(f.popInt())))
		case bytecode.OpI2C:
			f.push(int32(uint16(f.popInt())))
		case bytecode.OpI2S:
			f.push(int32(int16(f.popInt())))

		// Comparison
		case bytecode.OpLCmp:
			b, a := f.popLong(), f.popLong()
			f.push(compare(a, b))
		case bytecode.OpFCmpL, bytecode.OpFCmpG:
			b, a := f.popFloat(), f.popFloat()
			f.push(compareFloat(float64(a), float64(b), op == bytecode.OpFCmpG))
		case bytecode.OpDCmpL, bytecode.OpDCmpG:
			b, a := f.popDouble(), f.popDouble()
			f.push(compareFloat(a, b, op == bytecode.OpDCmpG))

		// Control flow
		case bytecode.OpIfEq, bytecode.OpIfNe, bytecode.OpIfLt, bytecode.OpIfGe, bytecode.OpIfGt, bytecode.OpIfLe:
			if holds(op, f.popInt(), 0) {
				pc = m.index[in.Operand]
			}
		case bytecode.OpIfICmpEq, bytecode.OpIfICmpNe, bytecode.OpIfICmpLt,
			bytecode.OpIfICmpGe, bytecode.OpIfICmpGt, bytecode.OpIfICmpLe:
			b, a := f.popInt(), f.popInt()
			if holds(op, a, b) {
				pc = m.index[in.Operand]
			}
		case bytecode.OpIfACmpEq, bytecode.OpIfACmpNe:
			b, a := f.pop(), f.pop()
			if (a == b) == (op == bytecode.OpIfACmpEq) {
				pc = m.index[in.Operand]
			}
		case bytecode.OpIfNull, bytecode.OpIfNonNull:
			if (f.pop() == nil) == (op == bytecode.OpIfNull) {
				pc = m.index[in.Operand]
			}
		case bytecode.OpGoto:
			pc = m.index[in.Operand]

		// Objects and fields
		case bytecode.OpNew:
			name := pool[in.Operand].Str
			c, ok := vm.classes[name]
			if !ok {
				return nil, fmt.Errorf("vm: class %s is not loaded", name)
			}
			f.push(vm.newObject(c))
		case bytecode.OpCheckCast:
			name := pool[in.Operand].Str
			if v := f.peek(); v != nil && !vm.isInstance(v, name) {
				thrown = vm.throwNew(classCastName, fmt.Sprintf("%s cannot be cast to %s", vm.typeName(v), name))
			}
		case bytecode.OpInstanceOf:
			v := f.pop()
			f.push(boolValue(v != nil && vm.isInstance(v, pool[in.Operand].Str)))
		case bytecode.OpGetField:
			ref := pool[in.Operand]
			obj, ok := f.pop().(*Object)
			if !ok {
				thrown = vm.throwNew(nullName, "read of field "+ref.Name)
				break
			}
			v, ok := obj.Fields[ref.Name]
			if !ok {
				v = zero(ref.Desc)
			}
			f.push(v)
		case bytecode.OpPutField:
			ref := pool[in.Operand]
			v := f.pop()
			obj, ok := f.pop().(*Object)
			if !ok {
				thrown = vm.throwNew(nullName, "write of field "+ref.Name)
				break
			}
			obj.Fields[ref.Name] = v
		case bytecode.OpGetStatic:
			ref := pool[in.Operand]
			c, ok := vm.classes[ref.Owner]
			if !ok {
				return nil, fmt.Errorf("vm: class %s is not loaded", ref.Owner)
			}
			v, ok := c.staticOwner(ref.Name).statics[ref.Name]
			if !ok {
				v = zero(ref.Desc)
			}
			f.push(v)
		case bytecode.OpPutStatic:
			ref := pool[in.Operand]
			c, ok := vm.classes[ref.Owner]
			if !ok {
				return nil, fmt.Errorf("vm: class %s is not loaded", ref.Owner)
			}
			c.staticOwner(ref.Name).statics[ref.Name] = f.pop()

		// Invocation
		case bytecode.OpInvokeVirtual, bytecode.OpInvokeInterface, bytecode.OpInvokeSpecial, bytecode.OpInvokeStatic:
			var v Value
			var ret string
			v, ret, thrown = vm.invoke(ctx, f, op, pool[in.Operand])
			if thrown == nil && ret != "void" {
				f.push(v)
			}

		// Arrays
		case bytecode.OpNewArray:
			n := f.popInt()
			if n < 0 {
				thrown = vm.throwNew(indexName, fmt.Sprintf("negative array size %d", n))
				break
			}
			f.push(newArray(pool[in.Operand].Str, int(n)))
		case bytecode.OpArrayLength:
			a, ok := f.pop().(*Array)
			if !ok {
				thrown = vm.throwNew(nullName, "length of null array")
				break
			}
			f.push(int32(len(a.Values)))
		case bytecode.OpIALoad, bytecode.OpLALoad, bytecode.OpFALoad, bytecode.OpDALoad, bytecode.OpAALoad:
			i := f.popInt()
			a, ok := f.pop().(*Array)
			if thrown = vm.checkIndex(a, ok, i); thrown == nil {
				f.push(a.Values[i])
			}
		case bytecode.OpIAStore, bytecode.OpLAStore, bytecode.OpFAStore, bytecode.OpDAStore, bytecode.OpAAStore:
			v := f.pop()
			i := f.popInt()
			a, ok := f.pop().(*Array)
			if thrown = vm.checkIndex(a, ok, i); thrown == nil {
				a.Values[i] = v
			}

		// Strings
		case bytecode.OpConcat:
			right, left := f.pop(), f.pop()
			var s string
			if s, thrown = vm.concat(ctx, left, right, byte(in.Operand)); thrown == nil {
				f.push(s)
			}

		// Return
		case bytecode.OpIReturn, bytecode.OpLReturn, bytecode.OpFReturn, bytecode.OpDReturn, bytecode.OpAReturn:
			return f.pop(), nil
		case bytecode.OpReturn:
			return nil, nil
		case bytecode.OpAThrow:
			obj, ok := f.pop().(*Object)
			if !ok {
				thrown = vm.throwNew(nullName, "throw of null")
				break
			}
			thrown = &Throw{Exception: obj}

		default:
			return nil, fmt.Errorf("vm: %s: unsupported opcode %s", m, op)
		}

		if thrown == nil {
			continue
		}
		var t *Throw
		if !errors.As(thrown, &t) {
			return nil, thrown
		}
		h, ok := vm.handlerFor(m, in.Offset, t.Exception.Class)
		if !ok {
			t.trace = append(t.trace, vm.traceLine(m, pc-1))
			return nil, t
		}
		if int(h.Depth) > len(f.stack) {
			return nil, fmt.Errorf("vm: %s: handler at %04X expects %d operands, found %d", m, h.Target, h.Depth, len(f.stack))
		}
		f.stack = append(f.stack[:h.Depth], t.Exception)
		pc = m.index[int(h.Target)]
	}
}

// invoke resolves and calls a method reference with arguments from f's
// stack. It returns the result and the callee's return descriptor.
func (vm *VM) invoke(ctx context.Context, f *frame, op bytecode.Opcode, ref bytecode.Constant) (Value, string, error) {
	params, ret, err := bytecode.ParseDescriptor(ref.Desc)
	if err != nil {
		return nil, "", err
	}
	n := len(params)
	if op != bytecode.OpInvokeStatic {
		n++
	}
	args := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = f.pop()
	}

	var m *method
	switch op {
	case bytecode.OpInvokeStatic, bytecode.OpInvokeSpecial:
		c, ok := vm.classes[ref.Owner]
		if !ok {
			return nil, ret, fmt.Errorf("vm: class %s is not loaded", ref.Owner)
		}
		m = c.find(ref.Name, ref.Desc)
	default:
		c := vm.classOf(args[0])
		if c == nil {
			return nil, ret, vm.throwNew(nullName, fmt.Sprintf("call of %s on null", ref.Name))
		}
		m = c.find(ref.Name, ref.Desc)
	}
	if m == nil {
		return nil, ret, fmt.Errorf("vm: no method %s.%s%s", ref.Owner, ref.Name, ref.Desc)
	}
	if op == bytecode.OpInvokeSpecial && args[0] == nil {
		return nil, ret, vm.throwNew(nullName, fmt.Sprintf("call of %s on null", ref.Name))
	}
	v, err := vm.call(ctx, m, args)
	return v, ret, err
}

func (vm *VM) checkIndex(a *Array, ok bool, i int32) error {
	if !ok {
		return vm.throwNew(nullName, "index of null array")
	}
	if i < 0 || int(i) >= len(a.Values) {
		return vm.throwNew(indexName, fmt.Sprintf("Index %d out of bounds for length %d", i, len(a.Values)))
	}
	return nil
}

func (vm *VM) concat(ctx context.Context, left, right Value, kind byte) (string, error) {
	l, err := vm.stringify(ctx, left)
	if err != nil {
		return "", err
	}
	var r string
	switch kind {
	case bytecode.ConcatBoolean:
		r = formatBoolean(right.(int32))
	case bytecode.ConcatChar:
		r = string(rune(right.(int32)))
	default:
		if r, err = vm.stringify(ctx, right); err != nil {
			return "", err
		}
	}
	return l + r, nil
}

func (vm *VM) typeName(v Value) string {
	if a, ok := v.(*Array); ok {
		return a.Component + "[]"
	}
	if c := vm.classOf(v); c != nil {
		return c.Name
	}
	return fmt.Sprintf("%T", v)
}

func (vm *VM) traceLine(m *method, pc int) string {
	source := m.class.unit.Source
	if line := m.line(pc); line > 0 {
		return fmt.Sprintf("%s(%s:%d)", m, source, line)
	}
	return fmt.Sprintf("%s(%s)", m, source)
}

// ---------------------------------------------------------------------------
// Primitive helpers
// ---------------------------------------------------------------------------

func constant(c bytecode.Constant) Value {
	switch c.Tag {
	case bytecode.ConstInt:
		return int32(c.Int)
	case bytecode.ConstLong:
		return c.Int
	case bytecode.ConstFloat:
		return float32(c.Float)
	case bytecode.ConstDouble:
		return c.Float
	}
	return c.Str
}

func intArith(op bytecode.Opcode, a, b int32) int32 {
	switch op {
	case bytecode.OpIAdd:
		return a + b
	case bytecode.OpISub:
		return a - b
	case bytecode.OpIMul:
		return a * b
	case bytecode.OpIDiv:
		return a / b
	}
	return a % b
}

func longArith(op bytecode.Opcode, a, b int64) int64 {
	switch op {
	case bytecode.OpLAdd:
		return a + b
	case bytecode.OpLSub:
		return a - b
	case bytecode.OpLMul:
		return a * b
	case bytecode.OpLDiv:
		return a / b
	}
	return a % b
}

func floatArith(op bytecode.Opcode, a, b float64) float64 {
	switch op {
	case bytecode.OpFAdd, bytecode.OpDAdd:
		return a + b
	case bytecode.OpFSub, bytecode.OpDSub:
		return a - b
	case bytecode.OpFMul, bytecode.OpDMul:
		return a * b
	case bytecode.OpFDiv, bytecode.OpDDiv:
		return a / b
	}
	return math.Mod(a, b)
}

// toInt truncates toward zero, saturating at the int range; NaN is 0.
func toInt(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

func toLong(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

func compare[T int64 | float64](a, b T) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareFloat orders a and b; an unordered pair yields 1 when nanIsGreater
// and -1 otherwise.
func compareFloat(a, b float64, nanIsGreater bool) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		if nanIsGreater {
			return 1
		}
		return -1
	}
	return compare(a, b)
}

// holds evaluates the condition of an int jump.
func holds(op bytecode.Opcode, a, b int32) bool {
	switch op {
	case bytecode.OpIfEq, bytecode.OpIfICmpEq:
		return a == b
	case bytecode.OpIfNe, bytecode.OpIfICmpNe:
		return a != b
	case bytecode.OpIfLt, bytecode.OpIfICmpLt:
		return a < b
	case bytecode.OpIfGe, bytecode.OpIfICmpGe:
		return a >= b
	case bytecode.OpIfGt, bytecode.OpIfICmpGt:
		return a > b
	}
	return a <= b
}
