package types

import (
	"errors"
	"sort"
	"testing"
)

func TestRegistryInterns(t *testing.T) {
	r := NewRegistry(nil)

	if r.Lookup("int") != r.Int() {
		t.Error("Lookup(int) is not the interned int")
	}
	if r.Lookup("string[]") != r.String().Array() {
		t.Error("array types are not interned")
	}
	if r.String().Meta() != r.String().Meta() {
		t.Error("meta types are not interned")
	}
	if r.Lookup("Nope") != nil {
		t.Error("unknown name should resolve to nil")
	}
	if got := r.Define(StringName, nil); got != r.String() {
		t.Error("redefining a type must return the existing one")
	}
}

func TestTypeStrings(t *testing.T) {
	r := NewRegistry(nil)
	tests := []struct {
		typ  *Type
		want string
	}{
		{r.Int(), "int"},
		{r.Int().Array(), "int[]"},
		{r.String().Meta(), "string meta"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
	if got := r.String().Meta().Descriptor(); got != "string" {
		t.Errorf("meta Descriptor() = %q, want %q", got, "string")
	}
}

func TestIsParentWidening(t *testing.T) {
	r := NewRegistry(nil)
	tests := []struct {
		to, from *Type
		want     bool
	}{
		{r.Int(), r.Int(), true},
		{r.Long(), r.Int(), true},
		{r.Double(), r.Float(), true},
		{r.Int(), r.Long(), false},
		{r.Int(), r.Char(), true},
		{r.Char(), r.Byte(), false},
		{r.Short(), r.Char(), false},
		{r.Int(), r.Boolean(), false},
		{r.Boolean(), r.Boolean(), true},
		{r.Int(), r.Unreachable(), true},
		{r.Void(), r.Int(), false},
	}
	for _, tt := range tests {
		if got := tt.to.IsParent(tt.from); got != tt.want {
			t.Errorf("%s.IsParent(%s) = %v, want %v", tt.to, tt.from, got, tt.want)
		}
	}
}

func TestIsParentReferences(t *testing.T) {
	r := NewRegistry(nil)
	exc := r.Lookup(ExceptionName)
	rte := r.Lookup(RuntimeExcName)
	list := r.Lookup(ListName)
	iterable := r.Lookup(IterableName)

	tests := []struct {
		to, from *Type
		want     bool
	}{
		{exc, rte, true},
		{rte, exc, false},
		{r.Object(), r.String(), true},
		{r.String(), r.Null(), true},
		{r.Int(), r.Null(), false},
		{iterable, list, true},
		{r.Object(), iterable, true},
		{r.Object(), r.Int().Array(), true},
		{r.Object().Array(), r.String().Array(), true},
		{r.Long().Array(), r.Int().Array(), false},
		{r.Object(), r.Int(), false},
		{exc.Meta(), rte.Meta(), true},
		{exc, rte.Meta(), false},
	}
	for _, tt := range tests {
		if got := tt.to.IsParent(tt.from); got != tt.want {
			t.Errorf("%s.IsParent(%s) = %v, want %v", tt.to, tt.from, got, tt.want)
		}
	}
}

func TestCommon(t *testing.T) {
	r := NewRegistry(nil)
	if got := Common(r.Int(), r.Long()); got != r.Long() {
		t.Errorf("Common(int, long) = %s, want long", got)
	}
	if got := Common(r.Unreachable(), r.String()); got != r.String() {
		t.Errorf("Common(unreachable, string) = %s, want string", got)
	}
	if got := Common(r.Int(), r.String()); got != nil {
		t.Errorf("Common(int, string) = %s, want nil", got)
	}
}

func TestFindMethodMostSpecific(t *testing.T) {
	r := NewRegistry(nil)
	out := r.Lookup(PrintStreamName)

	m, err := r.FindMethod(out, "println", []*Type{r.Int()})
	if err != nil {
		t.Fatal(err)
	}
	if m.Params[0] != r.Int() {
		t.Errorf("println(int) chose %s", m)
	}

	// byte widens to int, which is more specific than long, float or double.
	m, err = r.FindMethod(out, "println", []*Type{r.Byte()})
	if err != nil {
		t.Fatal(err)
	}
	if m.Params[0] != r.Int() {
		t.Errorf("println(byte) chose %s", m)
	}

	m, err = r.FindMethod(out, "println", []*Type{r.Lookup(ListName)})
	if err != nil {
		t.Fatal(err)
	}
	if m.Params[0] != r.Object() {
		t.Errorf("println(List) chose %s", m)
	}
}

func TestFindMethodErrors(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.FindMethod(r.String(), "frobnicate", []*Type{r.Int()})
	var oe *OverloadError
	if !errors.As(err, &oe) {
		t.Fatalf("err = %v, want *OverloadError", err)
	}
	if want := "no method string.frobnicate(int)"; oe.Error() != want {
		t.Errorf("Error() = %q, want %q", oe.Error(), want)
	}

	foo := r.Define("Foo", nil)
	r.Learn(&MethodType{Owner: foo, Name: "f", Params: []*Type{r.Int(), r.Long()}, Return: r.Void()})
	r.Learn(&MethodType{Owner: foo, Name: "f", Params: []*Type{r.Long(), r.Int()}, Return: r.Void()})
	_, err = r.FindMethod(foo, "f", []*Type{r.Int(), r.Int()})
	if !errors.As(err, &oe) || len(oe.Ambiguous) != 2 {
		t.Errorf("err = %v, want ambiguous overload", err)
	}
}

func TestFindMethodInheritance(t *testing.T) {
	r := NewRegistry(nil)
	base := r.Define("Base", nil)
	derived := r.Define("Derived", base)
	r.Learn(&MethodType{Owner: base, Name: "name", Return: r.String()})
	r.Learn(&MethodType{Owner: derived, Name: "toString", Return: r.String()})

	m, err := r.FindMethod(derived, "name", nil)
	if err != nil || m.Owner != base {
		t.Errorf("inherited lookup = %v, %v", m, err)
	}
	m, err = r.FindMethod(derived, "toString", nil)
	if err != nil || m.Owner != derived {
		t.Errorf("override lookup = %v, %v", m, err)
	}
}

func TestFindMethodStaticAndConstructor(t *testing.T) {
	r := NewRegistry(nil)
	foo := r.Define("Foo", nil)
	r.Learn(&MethodType{Owner: foo.Meta(), Name: "make", Return: foo, Kind: MethodStatic})
	r.Learn(&MethodType{Owner: foo, Name: ConstructorName, Params: []*Type{r.Int()}, Return: r.Void(), Kind: MethodConstructor})

	m, err := r.FindMethod(foo.Meta(), "make", nil)
	if err != nil || !m.IsStatic() {
		t.Errorf("static lookup = %v, %v", m, err)
	}
	if _, err := r.FindMethod(foo, "make", nil); err == nil {
		t.Error("static method must not be found on instances")
	}

	m, err = r.FindMethod(foo.Meta(), "new", []*Type{r.Int()})
	if err != nil {
		t.Fatal(err)
	}
	if m.Return != foo || m.Kind != MethodConstructor {
		t.Errorf("new = %+v, want constructor returning Foo", m)
	}
	if got := m.Descriptor(); got != "(int)void" {
		t.Errorf("constructor Descriptor() = %q, want (int)void", got)
	}

	_, err = r.FindMethod(foo.Meta(), "new", nil)
	var oe *OverloadError
	if !errors.As(err, &oe) || oe.Name != "new" {
		t.Errorf("err = %v, want no method Foo meta.new()", err)
	}
}

func TestArrayIntrinsics(t *testing.T) {
	r := NewRegistry(nil)
	arr := r.Int().Array()

	m, err := r.FindMethod(arr, "length", nil)
	if err != nil || m.Op != OpArrayLength || m.Return != r.Int() {
		t.Errorf("length = %+v, %v", m, err)
	}
	m, err = r.FindMethod(arr, "[]", []*Type{r.Short()})
	if err != nil || m.Op != OpArrayLoad || m.Return != r.Int() {
		t.Errorf("[] = %+v, %v", m, err)
	}
	m, err = r.FindMethod(arr, "[]=", []*Type{r.Int(), r.Int()})
	if err != nil || m.Op != OpArrayStore {
		t.Errorf("[]= = %+v, %v", m, err)
	}
	if _, err := r.FindMethod(arr, "[]=", []*Type{r.Int(), r.Long()}); err == nil {
		t.Error("storing long into int[] should not resolve")
	}
}

func TestOperators(t *testing.T) {
	r := NewRegistry(nil)

	m, err := r.FindMethod(r.Int(), "+", []*Type{r.Int()})
	if err != nil || m.Op != OpAdd || m.Return != r.Int() {
		t.Errorf("int + int = %+v, %v", m, err)
	}
	m, err = r.FindMethod(r.Char(), "<", []*Type{r.Int()})
	if err != nil || m.Op != OpLt || m.Return != r.Boolean() {
		t.Errorf("char < int = %+v, %v", m, err)
	}
	m, err = r.FindMethod(r.String(), "+", []*Type{r.Int()})
	if err != nil || m.Op != OpConcat || m.Params[0] != r.Int() {
		t.Errorf("string + int = %+v, %v", m, err)
	}
	if _, err := r.FindMethod(r.Boolean(), "+", []*Type{r.Boolean()}); err == nil {
		t.Error("boolean + boolean should not resolve")
	}
}

func TestLearnUpdatesExisting(t *testing.T) {
	r := NewRegistry(nil)
	foo := r.Define("Foo", nil)
	first := r.Learn(&MethodType{Owner: foo, Name: "f", Params: []*Type{r.Int()}, Return: r.Int()})
	second := r.Learn(&MethodType{Owner: foo, Name: "f", Params: []*Type{r.Int()}, Return: r.Long()})
	if first != second {
		t.Error("learning the same signature twice must return the existing entry")
	}
	if first.Return != r.Long() {
		t.Errorf("Return = %s, want long", first.Return)
	}
	if n := len(r.Methods(foo)); n != 1 {
		t.Errorf("len(Methods) = %d, want 1", n)
	}
}

func TestAlias(t *testing.T) {
	r := NewRegistry(nil)
	r.Alias("RTE", RuntimeExcName)
	if r.Lookup("RTE") != r.Lookup(RuntimeExcName) {
		t.Error("alias did not resolve")
	}
	if r.Lookup("RTE[]") != r.Lookup(RuntimeExcName).Array() {
		t.Error("alias array did not resolve")
	}
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry(nil)
	r.Define("Zebra", nil)
	names := r.Names()
	has := make(map[string]bool, len(names))
	for _, n := range names {
		has[n] = true
	}
	for _, want := range []string{"int", "object", "List", "Zebra"} {
		if !has[want] {
			t.Errorf("Names() is missing %s: %v", want, names)
		}
	}
	if has[r.Null().Name()] || has[r.Unreachable().Name()] {
		t.Errorf("Names() lists internal types: %v", names)
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("Names() is not sorted: %v", names)
	}
}
