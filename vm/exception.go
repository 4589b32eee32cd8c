package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/garnet/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Exception signaling
// ---------------------------------------------------------------------------

// Throw carries a thrown exception object up the Go call stack until a
// handler takes it.
type Throw struct {
	Exception *Object
	trace     []string
}

func (t *Throw) Error() string {
	msg, _ := t.Exception.Fields[messageField].(string)
	if msg == "" {
		return t.Exception.Class.Name
	}
	return t.Exception.Class.Name + ": " + msg
}

// UncaughtError reports an exception that left the entry method. Trace
// lists the frames it unwound, innermost first.
type UncaughtError struct {
	Exception *Object
	Trace     []string
}

func (e *UncaughtError) Error() string {
	t := &Throw{Exception: e.Exception}
	return "uncaught " + t.Error()
}

// StackTrace renders the exception with one "at" line per frame.
func (e *UncaughtError) StackTrace() string {
	var b strings.Builder
	b.WriteString(e.Error())
	for _, f := range e.Trace {
		fmt.Fprintf(&b, "\n\tat %s", f)
	}
	return b.String()
}

// Message returns the exception's message, or "".
func (e *UncaughtError) Message() string {
	msg, _ := e.Exception.Fields[messageField].(string)
	return msg
}

const messageField = "message"

// throwNew creates an exception of the named class and returns it as an
// error for the interpreter to unwind with.
func (vm *VM) throwNew(class, message string) error {
	c, ok := vm.classes[class]
	if !ok {
		return fmt.Errorf("vm: exception class %s is not loaded", class)
	}
	obj := vm.newObject(c)
	obj.Fields[messageField] = message
	return &Throw{Exception: obj}
}

// handlerFor returns the handler in m covering offset for an exception of
// class c.
func (vm *VM) handlerFor(m *method, offset int, c *Class) (bytecode.Handler, bool) {
	for _, h := range m.def.Handlers {
		if offset < int(h.Start) || offset >= int(h.End) {
			continue
		}
		if h.Type == "" {
			return h, true
		}
		if hc, ok := vm.classes[h.Type]; ok && c.IsSubclassOf(hc) {
			return h, true
		}
	}
	return bytecode.Handler{}, false
}
