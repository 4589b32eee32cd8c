package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
//
// Values occupy one stack slot and one local slot each, regardless of width.
// Typed instruction families carry an I (int, boolean, byte, short, char),
// L (long), F (float), D (double) or A (reference) prefix.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop   Opcode = 0x00 // No operation
	OpPop   Opcode = 0x01 // Pop top of stack
	OpDup   Opcode = 0x02 // Duplicate top of stack
	OpDupX1 Opcode = 0x03 // Duplicate top and insert it beneath the second: a b -> b a b
	OpDupX2 Opcode = 0x04 // Duplicate top and insert it beneath the third: a b c -> c a b c
	OpSwap  Opcode = 0x05 // Swap top two stack elements

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpAConstNull Opcode = 0x10 // Push null
	OpIConst0    Opcode = 0x11 // Push int 0 (also false)
	OpIConst1    Opcode = 0x12 // Push int 1 (also true)
	OpIConstM1   Opcode = 0x13 // Push int -1
	OpLConst0    Opcode = 0x14 // Push long 0
	OpFConst0    Opcode = 0x15 // Push float 0
	OpDConst0    Opcode = 0x16 // Push double 0
	OpBIPush     Opcode = 0x17 // Push small int: OpBIPush <value:i8>
	OpSIPush     Opcode = 0x18 // Push short int: OpSIPush <value:i16>
	OpLdc        Opcode = 0x19 // Push pool constant: OpLdc <index:u16>

	// ========================================================================
	// Local variables (0x20-0x2F)
	// ========================================================================

	OpILoad  Opcode = 0x20 // Push local: OpILoad <slot:u8>
	OpLLoad  Opcode = 0x21
	OpFLoad  Opcode = 0x22
	OpDLoad  Opcode = 0x23
	OpALoad  Opcode = 0x24
	OpIStore Opcode = 0x25 // Pop into local: OpIStore <slot:u8>
	OpLStore Opcode = 0x26
	OpFStore Opcode = 0x27
	OpDStore Opcode = 0x28
	OpAStore Opcode = 0x29
	OpIInc   Opcode = 0x2A // Add to int local: OpIInc <slot:u8> <delta:i8>

	// ========================================================================
	// Arithmetic (0x30-0x4F)
	// ========================================================================

	OpIAdd Opcode = 0x30
	OpLAdd Opcode = 0x31
	OpFAdd Opcode = 0x32
	OpDAdd Opcode = 0x33
	OpISub Opcode = 0x34
	OpLSub Opcode = 0x35
	OpFSub Opcode = 0x36
	OpDSub Opcode = 0x37
	OpIMul Opcode = 0x38
	OpLMul Opcode = 0x39
	OpFMul Opcode = 0x3A
	OpDMul Opcode = 0x3B
	OpIDiv Opcode = 0x3C
	OpLDiv Opcode = 0x3D
	OpFDiv Opcode = 0x3E
	OpDDiv Opcode = 0x3F
	OpIRem Opcode = 0x40
	OpLRem Opcode = 0x41
	OpFRem Opcode = 0x42
	OpDRem Opcode = 0x43
	OpINeg Opcode = 0x44
	OpLNeg Opcode = 0x45
	OpFNeg Opcode = 0x46
	OpDNeg Opcode = 0x47

	// ========================================================================
	// Conversions (0x50-0x5F)
	// ========================================================================

	OpI2L Opcode = 0x50
	OpI2F Opcode = 0x51
	OpI2D Opcode = 0x52
	OpL2I Opcode = 0x53
	OpL2F Opcode = 0x54
	OpL2D Opcode = 0x55
	OpF2I Opcode = 0x56
	OpF2L Opcode = 0x57
	OpF2D Opcode = 0x58
	OpD2I Opcode = 0x59
	OpD2L Opcode = 0x5A
	OpD2F Opcode = 0x5B
	OpI2B Opcode = 0x5C
	OpI2C Opcode = 0x5D
	OpI2S Opcode = 0x5E

	// ========================================================================
	// Comparison (0x60-0x6F)
	// ========================================================================

	OpLCmp  Opcode = 0x60 // Pop two longs, push -1, 0 or 1
	OpFCmpL Opcode = 0x61 // Pop two floats, push -1, 0 or 1; NaN pushes -1
	OpFCmpG Opcode = 0x62 // As OpFCmpL; NaN pushes 1
	OpDCmpL Opcode = 0x63
	OpDCmpG Opcode = 0x64

	// ========================================================================
	// Control flow (0x70-0x8F)
	// ========================================================================

	OpIfEq      Opcode = 0x70 // Jump if int == 0: OpIfEq <offset:i16>
	OpIfNe      Opcode = 0x71
	OpIfLt      Opcode = 0x72
	OpIfGe      Opcode = 0x73
	OpIfGt      Opcode = 0x74
	OpIfLe      Opcode = 0x75
	OpIfICmpEq  Opcode = 0x76 // Pop two ints, jump if equal: OpIfICmpEq <offset:i16>
	OpIfICmpNe  Opcode = 0x77
	OpIfICmpLt  Opcode = 0x78
	OpIfICmpGe  Opcode = 0x79
	OpIfICmpGt  Opcode = 0x7A
	OpIfICmpLe  Opcode = 0x7B
	OpIfACmpEq  Opcode = 0x7C // Pop two references, jump if identical
	OpIfACmpNe  Opcode = 0x7D
	OpIfNull    Opcode = 0x7E
	OpIfNonNull Opcode = 0x7F
	OpGoto      Opcode = 0x80 // Unconditional jump: OpGoto <offset:i16>

	// ========================================================================
	// Objects and fields (0x90-0x9F)
	// ========================================================================

	OpNew        Opcode = 0x90 // Allocate instance: OpNew <class:u16>
	OpCheckCast  Opcode = 0x91 // Verify reference type: OpCheckCast <class:u16>
	OpInstanceOf Opcode = 0x92 // Push 1 if reference is an instance: OpInstanceOf <class:u16>
	OpGetField   Opcode = 0x93 // Pop object, push field: OpGetField <field:u16>
	OpPutField   Opcode = 0x94 // Pop value and object, store field: OpPutField <field:u16>
	OpGetStatic  Opcode = 0x95 // Push static field: OpGetStatic <field:u16>
	OpPutStatic  Opcode = 0x96 // Pop into static field: OpPutStatic <field:u16>

	// ========================================================================
	// Invocation (0xA0-0xAF)
	// ========================================================================

	OpInvokeVirtual   Opcode = 0xA0 // Dispatch on receiver class: <method:u16>
	OpInvokeStatic    Opcode = 0xA1 // Call without receiver: <method:u16>
	OpInvokeSpecial   Opcode = 0xA2 // Call exactly the named owner's method: <method:u16>
	OpInvokeInterface Opcode = 0xA3 // Dispatch through an interface: <method:u16>

	// ========================================================================
	// Arrays (0xB0-0xBF)
	// ========================================================================

	OpNewArray    Opcode = 0xB0 // Pop length, push array: OpNewArray <component:u16>
	OpArrayLength Opcode = 0xB1
	OpIALoad      Opcode = 0xB2 // Pop index and array, push element
	OpLALoad      Opcode = 0xB3
	OpFALoad      Opcode = 0xB4
	OpDALoad      Opcode = 0xB5
	OpAALoad      Opcode = 0xB6
	OpIAStore     Opcode = 0xB7 // Pop value, index and array, store element
	OpLAStore     Opcode = 0xB8
	OpFAStore     Opcode = 0xB9
	OpDAStore     Opcode = 0xBA
	OpAAStore     Opcode = 0xBB

	// ========================================================================
	// Strings (0xC0-0xC7)
	// ========================================================================

	OpConcat Opcode = 0xC0 // Pop value and string, push concatenation: OpConcat <kind:u8>

	// ========================================================================
	// Return and exceptions (0xF0-0xFF)
	// ========================================================================

	OpIReturn Opcode = 0xF0
	OpLReturn Opcode = 0xF1
	OpFReturn Opcode = 0xF2
	OpDReturn Opcode = 0xF3
	OpAReturn Opcode = 0xF4
	OpReturn  Opcode = 0xF5 // Return from a void method
	OpAThrow  Opcode = 0xF6 // Pop a throwable and raise it
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // How many values popped from stack (-1 = variable)
	StackPush  int    // How many values pushed to stack (-1 = variable)
	OperandLen int    // Number of operand bytes following the opcode
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:   {"NOP", 0, 0, 0},
	OpPop:   {"POP", 1, 0, 0},
	OpDup:   {"DUP", 1, 2, 0},
	OpDupX1: {"DUP_X1", 2, 3, 0},
	OpDupX2: {"DUP_X2", 3, 4, 0},
	OpSwap:  {"SWAP", 2, 2, 0},

	// Constants
	OpAConstNull: {"ACONST_NULL", 0, 1, 0},
	OpIConst0:    {"ICONST_0", 0, 1, 0},
	OpIConst1:    {"ICONST_1", 0, 1, 0},
	OpIConstM1:   {"ICONST_M1", 0, 1, 0},
	OpLConst0:    {"LCONST_0", 0, 1, 0},
	OpFConst0:    {"FCONST_0", 0, 1, 0},
	OpDConst0:    {"DCONST_0", 0, 1, 0},
	OpBIPush:     {"BIPUSH", 0, 1, 1},
	OpSIPush:     {"SIPUSH", 0, 1, 2},
	OpLdc:        {"LDC", 0, 1, 2},

	// Local variables
	OpILoad:  {"ILOAD", 0, 1, 1},
	OpLLoad:  {"LLOAD", 0, 1, 1},
	OpFLoad:  {"FLOAD", 0, 1, 1},
	OpDLoad:  {"DLOAD", 0, 1, 1},
	OpALoad:  {"ALOAD", 0, 1, 1},
	OpIStore: {"ISTORE", 1, 0, 1},
	OpLStore: {"LSTORE", 1, 0, 1},
	OpFStore: {"FSTORE", 1, 0, 1},
	OpDStore: {"DSTORE", 1, 0, 1},
	OpAStore: {"ASTORE", 1, 0, 1},
	OpIInc:   {"IINC", 0, 0, 2},

	// Arithmetic
	OpIAdd: {"IADD", 2, 1, 0},
	OpLAdd: {"LADD", 2, 1, 0},
	OpFAdd: {"FADD", 2, 1, 0},
	OpDAdd: {"DADD", 2, 1, 0},
	OpISub: {"ISUB", 2, 1, 0},
	OpLSub: {"LSUB", 2, 1, 0},
	OpFSub: {"FSUB", 2, 1, 0},
	OpDSub: {"DSUB", 2, 1, 0},
	OpIMul: {"IMUL", 2, 1, 0},
	OpLMul: {"LMUL", 2, 1, 0},
	OpFMul: {"FMUL", 2, 1, 0},
	OpDMul: {"DMUL", 2, 1, 0},
	OpIDiv: {"IDIV", 2, 1, 0},
	OpLDiv: {"LDIV", 2, 1, 0},
	OpFDiv: {"FDIV", 2, 1, 0},
	OpDDiv: {"DDIV", 2, 1, 0},
	OpIRem: {"IREM", 2, 1, 0},
	OpLRem: {"LREM", 2, 1, 0},
	OpFRem: {"FREM", 2, 1, 0},
	OpDRem: {"DREM", 2, 1, 0},
	OpINeg: {"INEG", 1, 1, 0},
	OpLNeg: {"LNEG", 1, 1, 0},
	OpFNeg: {"FNEG", 1, 1, 0},
	OpDNeg: {"DNEG", 1, 1, 0},

	// Conversions
	OpI2L: {"I2L", 1, 1, 0},
	OpI2F: {"I2F", 1, 1, 0},
	OpI2D: {"I2D", 1, 1, 0},
	OpL2I: {"L2I", 1, 1, 0},
	OpL2F: {"L2F", 1, 1, 0},
	OpL2D: {"L2D", 1, 1, 0},
	OpF2I: {"F2I", 1, 1, 0},
	OpF2L: {"F2L", 1, 1, 0},
	OpF2D: {"F2D", 1, 1, 0},
	OpD2I: {"D2I", 1, 1, 0},
	OpD2L: {"D2L", 1, 1, 0},
	OpD2F: {"D2F", 1, 1, 0},
	OpI2B: {"I2B", 1, 1, 0},
	OpI2C: {"I2C", 1, 1, 0},
	OpI2S: {"I2S", 1, 1, 0},

	// Comparison
	OpLCmp:  {"LCMP", 2, 1, 0},
	OpFCmpL: {"FCMPL", 2, 1, 0},
	OpFCmpG: {"FCMPG", 2, 1, 0},
	OpDCmpL: {"DCMPL", 2, 1, 0},
	OpDCmpG: {"DCMPG", 2, 1, 0},

	// Control flow
	OpIfEq:      {"IFEQ", 1, 0, 2},
	OpIfNe:      {"IFNE", 1, 0, 2},
	OpIfLt:      {"IFLT", 1, 0, 2},
	OpIfGe:      {"IFGE", 1, 0, 2},
	OpIfGt:      {"IFGT", 1, 0, 2},
	OpIfLe:      {"IFLE", 1, 0, 2},
	OpIfICmpEq:  {"IF_ICMPEQ", 2, 0, 2},
	OpIfICmpNe:  {"IF_ICMPNE", 2, 0, 2},
	OpIfICmpLt:  {"IF_ICMPLT", 2, 0, 2},
	OpIfICmpGe:  {"IF_ICMPGE", 2, 0, 2},
	OpIfICmpGt:  {"IF_ICMPGT", 2, 0, 2},
	OpIfICmpLe:  {"IF_ICMPLE", 2, 0, 2},
	OpIfACmpEq:  {"IF_ACMPEQ", 2, 0, 2},
	OpIfACmpNe:  {"IF_ACMPNE", 2, 0, 2},
	OpIfNull:    {"IFNULL", 1, 0, 2},
	OpIfNonNull: {"IFNONNULL", 1, 0, 2},
	OpGoto:      {"GOTO", 0, 0, 2},

	// Objects and fields
	OpNew:        {"NEW", 0, 1, 2},
	OpCheckCast:  {"CHECKCAST", 1, 1, 2},
	OpInstanceOf: {"INSTANCEOF", 1, 1, 2},
	OpGetField:   {"GETFIELD", 1, 1, 2},
	OpPutField:   {"PUTFIELD", 2, 0, 2},
	OpGetStatic:  {"GETSTATIC", 0, 1, 2},
	OpPutStatic:  {"PUTSTATIC", 1, 0, 2},

	// Invocation
	OpInvokeVirtual:   {"INVOKEVIRTUAL", -1, -1, 2},
	OpInvokeStatic:    {"INVOKESTATIC", -1, -1, 2},
	OpInvokeSpecial:   {"INVOKESPECIAL", -1, -1, 2},
	OpInvokeInterface: {"INVOKEINTERFACE", -1, -1, 2},

	// Arrays
	OpNewArray:    {"NEWARRAY", 1, 1, 2},
	OpArrayLength: {"ARRAYLENGTH", 1, 1, 0},
	OpIALoad:      {"IALOAD", 2, 1, 0},
	OpLALoad:      {"LALOAD", 2, 1, 0},
	OpFALoad:      {"FALOAD", 2, 1, 0},
	OpDALoad:      {"DALOAD", 2, 1, 0},
	OpAALoad:      {"AALOAD", 2, 1, 0},
	OpIAStore:     {"IASTORE", 3, 0, 0},
	OpLAStore:     {"LASTORE", 3, 0, 0},
	OpFAStore:     {"FASTORE", 3, 0, 0},
	OpDAStore:     {"DASTORE", 3, 0, 0},
	OpAAStore:     {"AASTORE", 3, 0, 0},

	// Strings
	OpConcat: {"CONCAT", 2, 1, 1},

	// Return
	OpIReturn: {"IRETURN", 1, 0, 0},
	OpLReturn: {"LRETURN", 1, 0, 0},
	OpFReturn: {"FRETURN", 1, 0, 0},
	OpDReturn: {"DRETURN", 1, 0, 0},
	OpAReturn: {"ARETURN", 1, 0, 0},
	OpReturn:  {"RETURN", 0, 0, 0},
	OpAThrow:  {"ATHROW", 1, 0, 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpIfEq && op <= OpGoto
}

// IsReturn returns true if this opcode leaves the method.
func (op Opcode) IsReturn() bool {
	return op >= OpIReturn && op <= OpAThrow
}

// IsInvoke returns true if this opcode calls a method.
func (op Opcode) IsInvoke() bool {
	return op >= OpInvokeVirtual && op <= OpInvokeInterface
}

// IsConversion returns true if this opcode converts between primitive kinds.
func (op Opcode) IsConversion() bool {
	return op >= OpI2L && op <= OpI2S
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}

// Negate returns the conditional jump with the opposite sense, or op itself
// for opcodes that are not conditional jumps.
func (op Opcode) Negate() Opcode {
	switch op {
	case OpIfEq:
		return OpIfNe
	case OpIfNe:
		return OpIfEq
	case OpIfLt:
		return OpIfGe
	case OpIfGe:
		return OpIfLt
	case OpIfGt:
		return OpIfLe
	case OpIfLe:
		return OpIfGt
	case OpIfICmpEq:
		return OpIfICmpNe
	case OpIfICmpNe:
		return OpIfICmpEq
	case OpIfICmpLt:
		return OpIfICmpGe
	case OpIfICmpGe:
		return OpIfICmpLt
	case OpIfICmpGt:
		return OpIfICmpLe
	case OpIfICmpLe:
		return OpIfICmpGt
	case OpIfACmpEq:
		return OpIfACmpNe
	case OpIfACmpNe:
		return OpIfACmpEq
	case OpIfNull:
		return OpIfNonNull
	case OpIfNonNull:
		return OpIfNull
	}
	return op
}
