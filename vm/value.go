package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/garnet/pkg/bytecode"
)

// Value is one stack or local slot. The dynamic type follows the stack
// kind of the slot: int32 for int, boolean, byte, short and char, int64,
// float32, float64, string, *Object, *Array, or nil for null.
type Value any

// Object is an instance of a loaded or native class.
type Object struct {
	Class  *Class
	Fields map[string]Value

	// Native holds the state of native classes such as List.
	Native any

	id uint32
}

// Array is a fixed-length array of values of one component descriptor.
type Array struct {
	Component string
	Values    []Value
}

// zero returns the default value of a type descriptor.
func zero(desc string) Value {
	switch bytecode.KindOf(desc) {
	case bytecode.KindInt:
		return int32(0)
	case bytecode.KindLong:
		return int64(0)
	case bytecode.KindFloat:
		return float32(0)
	case bytecode.KindDouble:
		return float64(0)
	}
	return nil
}

func newArray(component string, n int) *Array {
	a := &Array{Component: component, Values: make([]Value, n)}
	z := zero(component)
	for i := range a.Values {
		a.Values[i] = z
	}
	return a
}

// formatDouble renders integral values with a trailing ".0".
func formatDouble(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// display renders a primitive or string the way print shows it.
func display(v Value) (string, bool) {
	switch v := v.(type) {
	case nil:
		return "null", true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float32:
		return formatDouble(float64(v), 32), true
	case float64:
		return formatDouble(v, 64), true
	case string:
		return v, true
	case *Array:
		return fmt.Sprintf("%s[%d]", v.Component, len(v.Values)), true
	}
	return "", false
}

func formatBoolean(v int32) string {
	if v != 0 {
		return "true"
	}
	return "false"
}

func boolValue(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
