// Package vm implements the jolt runtime core.
//
// This package contains:
//   - Exact-width primitive types and untyped 64-bit storage slots
//   - Generation-checked reference handles (array, object, interface)
//   - The shared heap that owns every record a reference can name
//   - Per-thread call stacks of activation frames
//   - Thread contexts (program counter, call stack, scheduling state)
//
// The interpreter, class loader and collector are built on top of this
// package; none of them live here.
package vm
