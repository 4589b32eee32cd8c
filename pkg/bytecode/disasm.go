package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Instruction is one decoded instruction.
type Instruction struct {
	Offset  int
	Op      Opcode
	Operand int // slot, pool index, immediate or jump target; 0 if none
	Extra   int // IInc delta
}

// Decode splits code into instructions. Jump operands are resolved to
// absolute targets.
func Decode(code []byte) ([]Instruction, error) {
	var out []Instruction
	for offset := 0; offset < len(code); {
		op := Opcode(code[offset])
		info, ok := opcodeInfoTable[op]
		if !ok {
			return out, fmt.Errorf("unknown opcode 0x%02X at %04X", byte(op), offset)
		}
		end := offset + 1 + info.OperandLen
		if end > len(code) {
			return out, fmt.Errorf("truncated %s at %04X", info.Name, offset)
		}
		in := Instruction{Offset: offset, Op: op}
		switch {
		case op.IsJump():
			in.Operand = end + int(int16(binary.BigEndian.Uint16(code[offset+1:])))
		case op == OpBIPush:
			in.Operand = int(int8(code[offset+1]))
		case op == OpSIPush:
			in.Operand = int(int16(binary.BigEndian.Uint16(code[offset+1:])))
		case op == OpIInc:
			in.Operand = int(code[offset+1])
			in.Extra = int(int8(code[offset+2]))
		case info.OperandLen == 1:
			in.Operand = int(code[offset+1])
		case info.OperandLen == 2:
			in.Operand = int(binary.BigEndian.Uint16(code[offset+1:]))
		}
		out = append(out, in)
		offset = end
	}
	return out, nil
}

// Ops returns the opcode names of a method's code, in order. It is a
// convenience for comparing instruction shapes.
func (m *Method) Ops() []string {
	ins, _ := Decode(m.Code)
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.Op.String()
	}
	return names
}

// Disassemble returns a human-readable listing of every method in the unit.
func (u *Unit) Disassemble() string {
	var sb strings.Builder

	kind := "class"
	if u.Interface {
		kind = "interface"
	}
	sb.WriteString(fmt.Sprintf("; === %s %s ===\n", kind, u.Name))
	sb.WriteString(fmt.Sprintf("; Garnet Bytecode v%d id=%s\n", FormatVersion, u.ID))
	if u.Super != "" {
		sb.WriteString(fmt.Sprintf("; extends %s\n", u.Super))
	}
	if len(u.Interfaces) > 0 {
		sb.WriteString(fmt.Sprintf("; implements %s\n", strings.Join(u.Interfaces, ", ")))
	}
	if u.Source != "" {
		sb.WriteString(fmt.Sprintf("; source %s\n", u.Source))
	}
	for _, f := range u.Fields {
		static := ""
		if f.Static {
			static = "static "
		}
		sb.WriteString(fmt.Sprintf("; field %s%s %s\n", static, f.Name, f.Desc))
	}

	// Constants
	if len(u.Pool) > 0 {
		sb.WriteString("; Constants:\n")
		for i, k := range u.Pool {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, k))
		}
	}

	for _, m := range u.Methods {
		sb.WriteString("\n")
		sb.WriteString(u.DisassembleMethod(m))
	}
	return sb.String()
}

// DisassembleMethod returns a listing of one method of the unit.
func (u *Unit) DisassembleMethod(m *Method) string {
	var sb strings.Builder
	static := ""
	if m.Static {
		static = "static "
	}
	if m.Abstract {
		sb.WriteString(fmt.Sprintf("abstract %s%s\n", m.Name, m.Desc))
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("%s%s%s ; locals=%d\n", static, m.Name, m.Desc, m.MaxLocals))

	ins, err := Decode(m.Code)
	for _, in := range ins {
		line := u.formatInstruction(in)
		if src := m.Line(uint32(in.Offset)); src > 0 {
			sb.WriteString(fmt.Sprintf("%04X  %-40s ; line %d\n", in.Offset, line, src))
		} else {
			sb.WriteString(fmt.Sprintf("%04X  %s\n", in.Offset, line))
		}
	}
	if err != nil {
		sb.WriteString(fmt.Sprintf("; error: %v\n", err))
	}
	for _, h := range m.Handlers {
		typ := h.Type
		if typ == "" {
			typ = "any"
		}
		sb.WriteString(fmt.Sprintf("; try %04X-%04X -> %04X %s depth=%d\n", h.Start, h.End, h.Target, typ, h.Depth))
	}
	return sb.String()
}

// formatInstruction renders one instruction, resolving pool operands.
func (u *Unit) formatInstruction(in Instruction) string {
	info := GetOpcodeInfo(in.Op)
	switch {
	case info.OperandLen == 0:
		return info.Name
	case in.Op.IsJump():
		return fmt.Sprintf("%s -> %04X", info.Name, in.Operand)
	case in.Op == OpIInc:
		return fmt.Sprintf("%s %d %+d", info.Name, in.Operand, in.Extra)
	case in.Op == OpLdc || in.Op == OpNew || in.Op == OpCheckCast || in.Op == OpInstanceOf ||
		in.Op == OpNewArray || in.Op.IsInvoke() ||
		(in.Op >= OpGetField && in.Op <= OpPutStatic):
		if in.Operand < len(u.Pool) {
			return fmt.Sprintf("%s %d ; %s", info.Name, in.Operand, u.Pool[in.Operand])
		}
	}
	return fmt.Sprintf("%s %d", info.Name, in.Operand)
}

// InstructionCount returns the number of instructions in the method.
// Note: This iterates through all code, so it's O(n).
func (m *Method) InstructionCount() int {
	count := 0
	offset := 0
	for offset < len(m.Code) {
		op := Opcode(m.Code[offset])
		offset += op.InstructionLen()
		count++
	}
	return count
}
