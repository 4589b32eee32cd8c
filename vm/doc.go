// Package vm loads units produced by the compiler and interprets their
// bytecode.
//
// Each call of a bytecode method runs in its own Go frame, so exceptions
// unwind as *Throw errors until a frame's exception table covers the
// faulting offset. Runtime classes such as object, string, List and
// PrintStream are implemented natively in Go; loaded units may extend
// them. Values use int32 for every int-sized primitive, int64, float32,
// float64, string, *Object and *Array.
package vm
