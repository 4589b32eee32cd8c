package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// FileBuilder collects the units produced from one source file.
type FileBuilder struct {
	Source  string
	classes []*ClassBuilder
}

// NewFileBuilder creates a builder for units compiled from source.
func NewFileBuilder(source string) *FileBuilder {
	return &FileBuilder{Source: source}
}

// Class starts a new unit. Classes are returned by Classes in the order they
// were started.
func (f *FileBuilder) Class(name, super string, interfaces ...string) *ClassBuilder {
	c := &ClassBuilder{unit: &Unit{
		ID:         UnitID(name),
		Name:       name,
		Super:      super,
		Interfaces: interfaces,
		Source:     f.Source,
	}}
	c.poolIndex = make(map[Constant]uint16)
	f.classes = append(f.classes, c)
	return c
}

// Interface starts a new interface unit.
func (f *FileBuilder) Interface(name string, extends ...string) *ClassBuilder {
	c := f.Class(name, "", extends...)
	c.unit.Interface = true
	return c
}

// Classes returns the units started so far.
func (f *FileBuilder) Classes() []*ClassBuilder { return f.classes }

// ClassBuilder assembles one unit.
type ClassBuilder struct {
	unit      *Unit
	poolIndex map[Constant]uint16
	methods   []*MethodBuilder
}

// Name returns the unit's name.
func (c *ClassBuilder) Name() string { return c.unit.Name }

// Unit returns the assembled unit. Methods that have not been stopped are
// not included.
func (c *ClassBuilder) Unit() *Unit { return c.unit }

// Filename returns the file name the unit is conventionally stored under.
func (c *ClassBuilder) Filename() string { return c.unit.Name + ".gbc" }

// Field declares a field. Declaring an existing name returns false and
// changes nothing.
func (c *ClassBuilder) Field(name, desc string, static bool) bool {
	if _, ok := c.unit.FindField(name); ok {
		return false
	}
	c.unit.Fields = append(c.unit.Fields, Field{Name: name, Desc: desc, Static: static})
	return true
}

// HasField reports whether name has been declared.
func (c *ClassBuilder) HasField(name string) bool {
	_, ok := c.unit.FindField(name)
	return ok
}

// Method begins assembling a method. The receiver, when not static, occupies
// slot 0; parameters follow in order.
func (c *ClassBuilder) Method(name, desc string, static bool) (*MethodBuilder, error) {
	params, _, err := ParseDescriptor(desc)
	if err != nil {
		return nil, err
	}
	if c.unit.FindMethod(name, desc) != nil {
		return nil, fmt.Errorf("duplicate method %s.%s%s", c.unit.Name, name, desc)
	}
	for _, m := range c.methods {
		if m.method.Name == name && m.method.Desc == desc {
			return nil, fmt.Errorf("duplicate method %s.%s%s", c.unit.Name, name, desc)
		}
	}
	m := &MethodBuilder{
		class:  c,
		method: &Method{Name: name, Desc: desc, Static: static},
		locals: make(map[string]uint8),
	}
	if !static {
		m.locals["self"] = 0
		m.next = 1
	}
	m.params = len(params)
	m.next += len(params)
	c.methods = append(c.methods, m)
	return m, nil
}

// AbstractMethod declares a method without code.
func (c *ClassBuilder) AbstractMethod(name, desc string) error {
	if c.unit.FindMethod(name, desc) != nil {
		return fmt.Errorf("duplicate method %s.%s%s", c.unit.Name, name, desc)
	}
	c.unit.Methods = append(c.unit.Methods, &Method{Name: name, Desc: desc, Abstract: true})
	return nil
}

// constant adds an entry to the pool and returns its index.
// If the entry already exists, returns the existing index.
func (c *ClassBuilder) constant(k Constant) uint16 {
	if idx, ok := c.poolIndex[k]; ok {
		return idx
	}
	idx := uint16(len(c.unit.Pool))
	c.unit.Pool = append(c.unit.Pool, k)
	c.poolIndex[k] = idx
	return idx
}

// ClassRef returns the pool index of a class reference.
func (c *ClassBuilder) ClassRef(name string) uint16 {
	return c.constant(Constant{Tag: ConstClass, Str: name})
}

// FieldRef returns the pool index of a field reference.
func (c *ClassBuilder) FieldRef(owner, name, desc string) uint16 {
	return c.constant(Constant{Tag: ConstField, Owner: owner, Name: name, Desc: desc})
}

// MethodRef returns the pool index of a method reference.
func (c *ClassBuilder) MethodRef(owner, name, desc string) uint16 {
	return c.constant(Constant{Tag: ConstMethod, Owner: owner, Name: name, Desc: desc})
}

// ----------------------------------------------------------------------------
// Methods
// ----------------------------------------------------------------------------

// Label marks a code position. Jumps to a label that has not been placed
// yet are patched when Mark places it.
type Label struct {
	pos     int
	placed  bool
	patches []int

	// depth is the operand stack depth at the label; known once a jump to
	// it or a reachable Mark has fixed it.
	depth int
	known bool
}

type tryRange struct {
	start, end, handler *Label
	typ                 string
	nesting             int
}

// MethodBuilder assembles the code of one method.
type MethodBuilder struct {
	class  *ClassBuilder
	method *Method
	locals map[string]uint8
	params int
	next   int
	tries  []tryRange
	labels []*Label
	line   uint32
	done   bool
	err    error

	depth int
	dead  bool // the previous instruction never falls through
}

// Name returns the method name.
func (m *MethodBuilder) Name() string { return m.method.Name }

// Descriptor returns the method descriptor.
func (m *MethodBuilder) Descriptor() string { return m.method.Desc }

// Static reports whether the method has no receiver.
func (m *MethodBuilder) Static() bool { return m.method.Static }

// Class returns the unit the method belongs to.
func (m *MethodBuilder) Class() *ClassBuilder { return m.class }

// Offset returns the current code offset.
func (m *MethodBuilder) Offset() int { return len(m.method.Code) }

// Code returns the code emitted so far.
func (m *MethodBuilder) Code() []byte { return m.method.Code }

// Param returns the slot holding parameter i.
func (m *MethodBuilder) Param(i int) uint8 {
	if m.method.Static {
		return uint8(i)
	}
	return uint8(i + 1)
}

// DeclareLocal assigns a slot to name the first time it is seen. Later
// declarations of the same name reuse the slot.
func (m *MethodBuilder) DeclareLocal(name string) (uint8, error) {
	if slot, ok := m.locals[name]; ok {
		return slot, nil
	}
	slot, err := m.Temp()
	if err != nil {
		return 0, err
	}
	m.locals[name] = slot
	return slot, nil
}

// BindParam names the slot of parameter i.
func (m *MethodBuilder) BindParam(i int, name string) {
	m.locals[name] = m.Param(i)
}

// Local returns the slot of a declared local.
func (m *MethodBuilder) Local(name string) (uint8, bool) {
	slot, ok := m.locals[name]
	return slot, ok
}

// Temp allocates an anonymous slot.
func (m *MethodBuilder) Temp() (uint8, error) {
	if m.next > math.MaxUint8 {
		return 0, fmt.Errorf("%s.%s: too many locals", m.class.unit.Name, m.method.Name)
	}
	slot := uint8(m.next)
	m.next++
	return slot, nil
}

// Line records that code emitted from here on comes from a source line.
func (m *MethodBuilder) Line(line int) {
	if line <= 0 || uint32(line) == m.line {
		return
	}
	m.line = uint32(line)
	m.method.Lines = append(m.method.Lines, LineEntry{Offset: uint32(len(m.method.Code)), Line: m.line})
}

// Emit appends a single-byte opcode to the code section.
func (m *MethodBuilder) Emit(op Opcode) int {
	return m.EmitWithOperand(op)
}

// EmitWithOperand appends an opcode with operand bytes.
func (m *MethodBuilder) EmitWithOperand(op Opcode, operands ...byte) int {
	offset := len(m.method.Code)
	m.method.Code = append(m.method.Code, byte(op))
	m.method.Code = append(m.method.Code, operands...)
	m.effect(op)
	return offset
}

// effect applies the fixed stack effect of op. Invocations are adjusted
// by Invoke from their descriptor.
func (m *MethodBuilder) effect(op Opcode) {
	info := GetOpcodeInfo(op)
	if info.StackPop > 0 {
		m.depth -= info.StackPop
	}
	if info.StackPush > 0 {
		m.depth += info.StackPush
	}
	if op == OpGoto || op.IsReturn() {
		m.dead = true
	}
}

// Depth returns the operand stack depth at the current offset.
func (m *MethodBuilder) Depth() int { return m.depth }

// EmitIndex appends an opcode with a 16-bit pool index.
func (m *MethodBuilder) EmitIndex(op Opcode, idx uint16) int {
	return m.EmitWithOperand(op, byte(idx>>8), byte(idx))
}

// NewLabel creates an unplaced label.
func (m *MethodBuilder) NewLabel() *Label {
	l := &Label{}
	m.labels = append(m.labels, l)
	return l
}

// Mark places l at the current offset and patches pending jumps to it.
func (m *MethodBuilder) Mark(l *Label) {
	switch {
	case l.known && m.dead:
		m.depth, m.dead = l.depth, false
	case !l.known:
		l.depth, l.known = m.depth, !m.dead
	}
	l.pos = len(m.method.Code)
	l.placed = true
	for _, p := range l.patches {
		m.patch(p, l.pos)
	}
	l.patches = nil
}

// Jump emits a jump instruction to l.
func (m *MethodBuilder) Jump(op Opcode, l *Label) {
	if !op.IsJump() {
		panic(fmt.Sprintf("bytecode: %s is not a jump", op))
	}
	offset := len(m.method.Code)
	m.method.Code = append(m.method.Code, byte(op), 0xFF, 0xFF) // Placeholder
	m.effect(op)
	if !l.known {
		l.depth, l.known = m.depth, true
	}
	if l.placed {
		m.patch(offset+1, l.pos)
	} else {
		l.patches = append(l.patches, offset+1)
	}
}

// patch writes the jump offset relative to the end of the instruction.
// An offset outside the int16 range fails the method at Stop.
func (m *MethodBuilder) patch(placeholder, target int) {
	delta := target - (placeholder + 2)
	if delta < math.MinInt16 || delta > math.MaxInt16 {
		if m.err == nil {
			m.err = fmt.Errorf("%s.%s: jump at %04X spans %d bytes, more than a 16-bit offset holds",
				m.class.unit.Name, m.method.Name, placeholder-1, delta)
		}
		return
	}
	binary.BigEndian.PutUint16(m.method.Code[placeholder:], uint16(int16(delta)))
}

// TryCatch registers a protected range. An empty typ catches everything.
// The handler starts with the stack as it was at start plus the exception.
func (m *MethodBuilder) TryCatch(start, end, handler *Label, typ string) {
	m.TryCatchNested(0, start, end, handler, typ)
}

// TryCatchNested registers a protected range at a nesting level. Stop
// orders the handler table so deeper ranges are searched first; ranges of
// the same level keep their registration order.
func (m *MethodBuilder) TryCatchNested(nesting int, start, end, handler *Label, typ string) {
	if !handler.known {
		handler.depth, handler.known = start.depth+1, true
	}
	m.tries = append(m.tries, tryRange{start: start, end: end, handler: handler, typ: typ, nesting: nesting})
}

// ----------------------------------------------------------------------------
// Typed helpers
// ----------------------------------------------------------------------------

var (
	loadOps   = [...]Opcode{KindInt: OpILoad, KindLong: OpLLoad, KindFloat: OpFLoad, KindDouble: OpDLoad, KindRef: OpALoad}
	storeOps  = [...]Opcode{KindInt: OpIStore, KindLong: OpLStore, KindFloat: OpFStore, KindDouble: OpDStore, KindRef: OpAStore}
	returnOps = [...]Opcode{KindVoid: OpReturn, KindInt: OpIReturn, KindLong: OpLReturn, KindFloat: OpFReturn, KindDouble: OpDReturn, KindRef: OpAReturn}
	aloadOps  = [...]Opcode{KindInt: OpIALoad, KindLong: OpLALoad, KindFloat: OpFALoad, KindDouble: OpDALoad, KindRef: OpAALoad}
	astoreOps = [...]Opcode{KindInt: OpIAStore, KindLong: OpLAStore, KindFloat: OpFAStore, KindDouble: OpDAStore, KindRef: OpAAStore}
)

// Load pushes the local in slot, typed by desc.
func (m *MethodBuilder) Load(desc string, slot uint8) {
	m.EmitWithOperand(loadOps[nonVoid(desc)], slot)
}

// Store pops into the local in slot, typed by desc.
func (m *MethodBuilder) Store(desc string, slot uint8) {
	m.EmitWithOperand(storeOps[nonVoid(desc)], slot)
}

// Return emits the return instruction for a value of desc.
func (m *MethodBuilder) Return(desc string) {
	m.Emit(returnOps[KindOf(desc)])
}

// ArrayLoad emits the element load for an array whose component is desc.
func (m *MethodBuilder) ArrayLoad(desc string) {
	m.Emit(aloadOps[nonVoid(desc)])
}

// ArrayStore emits the element store for an array whose component is desc.
func (m *MethodBuilder) ArrayStore(desc string) {
	m.Emit(astoreOps[nonVoid(desc)])
}

func nonVoid(desc string) ValueKind {
	k := KindOf(desc)
	if k == KindVoid {
		panic("bytecode: void has no stack representation")
	}
	return k
}

// PushInt pushes an int constant using the shortest encoding.
func (m *MethodBuilder) PushInt(v int32) {
	switch {
	case v == -1:
		m.Emit(OpIConstM1)
	case v == 0:
		m.Emit(OpIConst0)
	case v == 1:
		m.Emit(OpIConst1)
	case v >= math.MinInt8 && v <= math.MaxInt8:
		m.EmitWithOperand(OpBIPush, byte(int8(v)))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		m.EmitWithOperand(OpSIPush, byte(uint16(v)>>8), byte(uint16(v)))
	default:
		m.EmitIndex(OpLdc, m.class.constant(Constant{Tag: ConstInt, Int: int64(v)}))
	}
}

// PushLong pushes a long constant.
func (m *MethodBuilder) PushLong(v int64) {
	if v == 0 {
		m.Emit(OpLConst0)
		return
	}
	m.EmitIndex(OpLdc, m.class.constant(Constant{Tag: ConstLong, Int: v}))
}

// PushFloat pushes a float constant.
func (m *MethodBuilder) PushFloat(v float32) {
	if v == 0 && !math.Signbit(float64(v)) {
		m.Emit(OpFConst0)
		return
	}
	m.EmitIndex(OpLdc, m.class.constant(Constant{Tag: ConstFloat, Float: float64(v)}))
}

// PushDouble pushes a double constant.
func (m *MethodBuilder) PushDouble(v float64) {
	if v == 0 && !math.Signbit(v) {
		m.Emit(OpDConst0)
		return
	}
	m.EmitIndex(OpLdc, m.class.constant(Constant{Tag: ConstDouble, Float: v}))
}

// PushString pushes a string constant.
func (m *MethodBuilder) PushString(s string) {
	m.EmitIndex(OpLdc, m.class.constant(Constant{Tag: ConstString, Str: s}))
}

// PushDefault pushes the zero value of desc.
func (m *MethodBuilder) PushDefault(desc string) {
	switch KindOf(desc) {
	case KindInt:
		m.Emit(OpIConst0)
	case KindLong:
		m.Emit(OpLConst0)
	case KindFloat:
		m.Emit(OpFConst0)
	case KindDouble:
		m.Emit(OpDConst0)
	default:
		m.Emit(OpAConstNull)
	}
}

// Invoke emits a call instruction for owner.name desc.
func (m *MethodBuilder) Invoke(op Opcode, owner, name, desc string) {
	m.EmitIndex(op, m.class.MethodRef(owner, name, desc))
	params, ret, _ := ParseDescriptor(desc)
	m.depth -= len(params)
	if op != OpInvokeStatic {
		m.depth--
	}
	if ret != "void" {
		m.depth++
	}
}

// FieldInsn emits a field access instruction.
func (m *MethodBuilder) FieldInsn(op Opcode, owner, name, desc string) {
	m.EmitIndex(op, m.class.FieldRef(owner, name, desc))
}

// TypeInsn emits NEW, CHECKCAST, INSTANCEOF or NEWARRAY with a class operand.
func (m *MethodBuilder) TypeInsn(op Opcode, class string) {
	m.EmitIndex(op, m.class.ClassRef(class))
}

// IInc adds delta to the int local in slot.
func (m *MethodBuilder) IInc(slot uint8, delta int8) {
	m.EmitWithOperand(OpIInc, slot, byte(delta))
}

// Concat emits a string concatenation whose right operand has kind desc.
func (m *MethodBuilder) Concat(desc string) {
	m.EmitWithOperand(OpConcat, concatKind(desc))
}

// Concat operand values.
const (
	ConcatRef byte = iota
	ConcatInt
	ConcatLong
	ConcatFloat
	ConcatDouble
	ConcatBoolean
	ConcatChar
)

func concatKind(desc string) byte {
	switch desc {
	case "boolean":
		return ConcatBoolean
	case "char":
		return ConcatChar
	}
	switch KindOf(desc) {
	case KindInt:
		return ConcatInt
	case KindLong:
		return ConcatLong
	case KindFloat:
		return ConcatFloat
	case KindDouble:
		return ConcatDouble
	}
	return ConcatRef
}

// Stop finishes the method: resolves try ranges, checks every label was
// placed and adds the method to its unit.
func (m *MethodBuilder) Stop() error {
	if m.done {
		return fmt.Errorf("%s.%s: method already stopped", m.class.unit.Name, m.method.Name)
	}
	if m.err != nil {
		return m.err
	}
	for i, l := range m.labels {
		if !l.placed && len(l.patches) > 0 {
			return fmt.Errorf("%s.%s: label %d used but never placed", m.class.unit.Name, m.method.Name, i)
		}
	}
	sort.SliceStable(m.tries, func(i, j int) bool { return m.tries[i].nesting > m.tries[j].nesting })
	for _, t := range m.tries {
		if !t.start.placed || !t.end.placed || !t.handler.placed {
			return fmt.Errorf("%s.%s: unplaced try range label", m.class.unit.Name, m.method.Name)
		}
		if t.start.pos == t.end.pos {
			// Empty protected region.
			continue
		}
		m.method.Handlers = append(m.method.Handlers, Handler{
			Start:  uint32(t.start.pos),
			End:    uint32(t.end.pos),
			Target: uint32(t.handler.pos),
			Type:   t.typ,
			Depth:  uint32(max(t.start.depth, 0)),
		})
	}
	m.method.MaxLocals = uint16(m.next)
	m.done = true
	m.class.unit.Methods = append(m.class.unit.Methods, m.method)
	return nil
}

// Method returns the assembled method. It is complete only after Stop.
func (m *MethodBuilder) Method() *Method { return m.method }
