package bytecode

import (
	"bytes"
	"reflect"
	"testing"
)

func buildAdder(t *testing.T) *ClassBuilder {
	t.Helper()
	f := NewFileBuilder("adder.cue")
	c := f.Class("Adder", "object")
	c.Field("count", "int", false)
	m, err := c.Method("add", "(int,int)int", true)
	if err != nil {
		t.Fatal(err)
	}
	m.Line(1)
	m.Load("int", m.Param(0))
	m.Load("int", m.Param(1))
	m.Emit(OpIAdd)
	m.Return("int")
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestMarshalRoundTrip(t *testing.T) {
	c := buildAdder(t)
	data, err := c.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, Magic) {
		t.Fatalf("missing magic: % x", data[:4])
	}

	u, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(u, c.Unit()) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", u, c.Unit())
	}
}

func TestMarshalDeterministic(t *testing.T) {
	a, err := buildAdder(t).Bytes()
	if err != nil {
		t.Fatal(err)
	}
	b, err := buildAdder(t).Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("encoding the same unit twice produced different bytes")
	}
}

func TestUnitIDStable(t *testing.T) {
	if UnitID("Adder") != UnitID("Adder") {
		t.Error("UnitID is not stable")
	}
	if UnitID("Adder") == UnitID("Other") {
		t.Error("UnitID collides for different names")
	}
}

func TestUnmarshalRejectsBadInput(t *testing.T) {
	if _, err := Unmarshal([]byte("GR")); err == nil {
		t.Error("expected error for short input")
	}
	if _, err := Unmarshal([]byte("XXXX\x00\x01\xa0")); err == nil {
		t.Error("expected error for bad magic")
	}
	if _, err := Unmarshal([]byte("GRBC\xff\xff\xa0")); err == nil {
		t.Error("expected error for future version")
	}
}
