// Package bytecode assembles and encodes units for the garnet stack machine.
//
// A unit is class shaped: a name, a superclass, interfaces, a constant pool,
// fields and methods. Each method carries its own code, exception table and
// line table. Units are built through three builders:
//
//   - FileBuilder collects every unit compiled from one source file.
//
//   - ClassBuilder owns a unit's constant pool and declares its fields and
//     methods.
//
//   - MethodBuilder emits instructions, allocates local slots, places labels
//     and records protected ranges. Jumps use 16-bit offsets relative to the
//     end of the jump instruction and are patched when their label is placed.
//
// # Value model
//
// Every value occupies one stack slot and one local slot. Typed instruction
// families mirror the stack kinds returned by KindOf: int (also boolean,
// byte, short and char), long, float, double and reference.
//
// # Encoding
//
// Marshal writes the magic "GRBC", a big-endian format version and the unit
// as canonical CBOR, so encoding the same unit twice yields identical bytes.
// Unit identifiers are UUIDv5 values derived from the unit name.
package bytecode
