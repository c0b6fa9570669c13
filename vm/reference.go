package vm

import "fmt"

// ---------------------------------------------------------------------------
// Reference: opaque handle into the heap
// ---------------------------------------------------------------------------

// Reference is an opaque handle naming one heap record.
//
// Layout:
//   - low 32 bits: record index (index 0 is never issued)
//   - high 32 bits: generation of that index when the handle was issued
//
// A handle says nothing about the record's kind; the heap looks it up.
// The generation lets the heap reject handles to reclaimed records even
// after their index has been reused.
type Reference uint64

// Null is the distinguished handle that resolves to no record.
const Null Reference = 0

const indexMask uint64 = 0x00000000FFFFFFFF

func makeReference(index, gen uint32) Reference {
	return Reference(uint64(gen)<<32 | uint64(index))
}

// IsNull reports whether r is the null handle.
func (r Reference) IsNull() bool {
	return r == Null
}

// Index returns the record index encoded in r.
func (r Reference) Index() uint32 {
	return uint32(uint64(r) & indexMask)
}

// Generation returns the index generation encoded in r.
func (r Reference) Generation() uint32 {
	return uint32(uint64(r) >> 32)
}

func (r Reference) String() string {
	if r.IsNull() {
		return "null"
	}
	return fmt.Sprintf("ref#%d.%d", r.Index(), r.Generation())
}

// ArrayRef is a reference known to name an array record.
type ArrayRef Reference

// ObjectRef is a reference known to name an object record.
type ObjectRef Reference

// InterfaceRef is a reference known to name an interface-dispatch record.
type InterfaceRef Reference

func (r ArrayRef) Reference() Reference     { return Reference(r) }
func (r ObjectRef) Reference() Reference    { return Reference(r) }
func (r InterfaceRef) Reference() Reference { return Reference(r) }

func (r ArrayRef) IsNull() bool     { return Reference(r).IsNull() }
func (r ObjectRef) IsNull() bool    { return Reference(r).IsNull() }
func (r InterfaceRef) IsNull() bool { return Reference(r).IsNull() }
