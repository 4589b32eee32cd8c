package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "NOP"},
		{OpDupX1, "DUP_X1"},
		{OpLdc, "LDC"},
		{OpIAdd, "IADD"},
		{OpD2I, "D2I"},
		{OpIfICmpGe, "IF_ICMPGE"},
		{OpGoto, "GOTO"},
		{OpInvokeSpecial, "INVOKESPECIAL"},
		{OpAThrow, "ATHROW"},
	}

	for _, tt := range tests {
		got := tt.op.String()
		if got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	op := Opcode(0xEE)
	if got := op.String(); !strings.HasPrefix(got, "UNKNOWN") {
		t.Errorf("Unknown opcode should return UNKNOWN, got %q", got)
	}
}

func TestOpcodeCategories(t *testing.T) {
	if !OpGoto.IsJump() || !OpIfNonNull.IsJump() || OpIAdd.IsJump() {
		t.Error("IsJump misclassifies opcodes")
	}
	if !OpReturn.IsReturn() || !OpAThrow.IsReturn() || OpGoto.IsReturn() {
		t.Error("IsReturn misclassifies opcodes")
	}
	if !OpInvokeInterface.IsInvoke() || OpNew.IsInvoke() {
		t.Error("IsInvoke misclassifies opcodes")
	}
	if !OpI2S.IsConversion() || OpLCmp.IsConversion() {
		t.Error("IsConversion misclassifies opcodes")
	}
}

func TestNegate(t *testing.T) {
	for _, op := range AllOpcodes() {
		if !op.IsJump() || op == OpGoto {
			continue
		}
		if got := op.Negate().Negate(); got != op {
			t.Errorf("%s.Negate().Negate() = %s", op, got)
		}
		if op.Negate() == op {
			t.Errorf("%s.Negate() returned itself", op)
		}
	}
	if OpGoto.Negate() != OpGoto {
		t.Error("GOTO has no negation")
	}
}
