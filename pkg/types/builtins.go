package types

// Builtins is the default TypeFactory. It defines the reference types the
// runtime provides natively and the intrinsic operators on primitives.
var Builtins TypeFactory = builtinFactory{}

type builtinFactory struct{}

func (builtinFactory) DefineTypes(r *Registry) {
	obj := r.Object()
	str := r.Define(StringName, obj)
	throwable := r.Define(ThrowableName, obj)
	exception := r.Define(ExceptionName, throwable)
	runtimeExc := r.Define(RuntimeExcName, exception)
	for _, name := range []string{"ArithmeticException", "IndexOutOfBoundsException", "NullPointerException", "ClassCastException"} {
		r.Define(name, runtimeExc)
	}
	iterator := r.DefineInterface(IteratorName)
	iterable := r.DefineInterface(IterableName)
	list := r.Define(ListName, obj, iterable)
	out := r.Define(PrintStreamName, obj)
	r.Define(SystemName, obj)

	virtual := func(owner *Type, name string, ret *Type, params ...*Type) {
		kind := MethodVirtual
		if owner.IsInterface() {
			kind = MethodInterface
		}
		r.Learn(&MethodType{Owner: owner, Name: name, Params: params, Return: ret, Kind: kind})
	}
	ctor := func(owner *Type, params ...*Type) {
		r.Learn(&MethodType{Owner: owner, Name: ConstructorName, Params: params, Return: r.void, Kind: MethodConstructor})
	}

	ctor(obj)
	virtual(obj, "toString", str)
	virtual(obj, "equals", r.boolean, obj)
	virtual(obj, "hashCode", r.int_)

	ctor(str)
	virtual(str, "length", r.int_)
	virtual(str, "charAt", r.char, r.int_)
	virtual(str, "substring", str, r.int_, r.int_)
	virtual(str, "concat", str, str)

	for _, t := range []*Type{throwable, exception, runtimeExc} {
		ctor(t)
		ctor(t, str)
	}
	for _, name := range []string{"ArithmeticException", "IndexOutOfBoundsException", "NullPointerException", "ClassCastException"} {
		t := r.Lookup(name)
		ctor(t)
		ctor(t, str)
	}
	virtual(throwable, "getMessage", str)

	virtual(iterator, "hasNext", r.boolean)
	virtual(iterator, "next", obj)
	virtual(iterable, "iterator", iterator)

	ctor(list)
	virtual(list, "add", r.boolean, obj)
	virtual(list, "get", obj, r.int_)
	virtual(list, "size", r.int_)
	virtual(list, "iterator", iterator)

	for _, p := range []*Type{r.boolean, r.char, r.int_, r.long, r.float, r.double, str, obj} {
		virtual(out, "print", r.void, p)
		virtual(out, "println", r.void, p)
	}
	virtual(out, "println", r.void)

	defineOperators(r)
}

func defineOperators(r *Registry) {
	op := func(owner *Type, name string, ret *Type, params ...*Type) {
		r.Learn(&MethodType{Owner: owner, Name: name, Params: params, Return: ret,
			Kind: MethodIntrinsic, Op: intrinsicNames[name]})
	}
	for _, t := range []*Type{r.int_, r.long, r.float, r.double} {
		for _, name := range []string{"+", "-", "*", "/", "%"} {
			op(t, name, t, t)
		}
		op(t, "-@", t)
		for _, name := range []string{"<", "<=", ">", ">=", "==", "!="} {
			op(t, name, r.boolean, t)
		}
	}
	op(r.boolean, "==", r.boolean, r.boolean)
	op(r.boolean, "!=", r.boolean, r.boolean)

	obj := r.Object()
	op(obj, "==", r.boolean, obj)
	op(obj, "!=", r.boolean, obj)

	str := r.String()
	for _, t := range []*Type{str, r.boolean, r.char, r.int_, r.long, r.float, r.double, obj} {
		r.Learn(&MethodType{Owner: str, Name: "+", Params: []*Type{t}, Return: str,
			Kind: MethodIntrinsic, Op: OpConcat})
	}
}
