package vm

import (
	"fmt"
	"iter"
	"math"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// RecordKind and Descriptor
// ---------------------------------------------------------------------------

// RecordKind distinguishes the three kinds of heap record.
type RecordKind uint8

const (
	RecordArray RecordKind = iota + 1
	RecordObject
	RecordInterface
)

func (k RecordKind) String() string {
	switch k {
	case RecordArray:
		return "array"
	case RecordObject:
		return "object"
	case RecordInterface:
		return "interface"
	default:
		return fmt.Sprintf("RecordKind(%d)", uint8(k))
	}
}

// Descriptor is the size descriptor passed to Heap.Allocate.
//
//   - arrays: Elem is the element kind, Length the element count
//   - objects: Fields is the per-field layout
//   - interfaces: Length is the number of dispatch entries, each a reference
type Descriptor struct {
	Elem   SlotKind
	Length int
	Fields []SlotKind
}

// ArrayOf describes an array of length elements of kind elem.
func ArrayOf(elem SlotKind, length int) Descriptor {
	return Descriptor{Elem: elem, Length: length}
}

// ObjectOf describes an object with the given field layout.
func ObjectOf(fields ...SlotKind) Descriptor {
	return Descriptor{Fields: fields, Length: len(fields)}
}

// InterfaceOf describes an interface-dispatch record with methods entries.
func InterfaceOf(methods int) Descriptor {
	return Descriptor{Elem: KindReference, Length: methods}
}

// validate checks d against kind and returns the slot count.
func (d Descriptor) validate(kind RecordKind) (int, error) {
	switch kind {
	case RecordArray:
		if !d.Elem.Valid() {
			return 0, fmt.Errorf("array element kind %v: %w", d.Elem, ErrInvalidDescriptor)
		}
		if d.Length < 0 {
			return 0, fmt.Errorf("array length %d: %w", d.Length, ErrInvalidDescriptor)
		}
		return d.Length, nil
	case RecordObject:
		for i, f := range d.Fields {
			if !f.Valid() {
				return 0, fmt.Errorf("field %d kind %v: %w", i, f, ErrInvalidDescriptor)
			}
		}
		return len(d.Fields), nil
	case RecordInterface:
		if d.Length < 0 {
			return 0, fmt.Errorf("interface entries %d: %w", d.Length, ErrInvalidDescriptor)
		}
		return d.Length, nil
	default:
		return 0, fmt.Errorf("record kind %v: %w", kind, ErrInvalidDescriptor)
	}
}

// recordHeaderBytes is the accounting cost of a record before its slots.
const recordHeaderBytes = 16

// MaxRecordSlots is the largest slot count a single record may have.
// Larger requests fail with ErrOutOfMemory.
const MaxRecordSlots = math.MaxInt32

// footprint is the accounted size of a record with n slots. Callers bound n
// with recordBytes first.
func footprint(n int) int64 {
	return recordHeaderBytes + 8*int64(n)
}

// recordBytes is footprint with an overflow guard. ok is false when n is
// above MaxRecordSlots.
func recordBytes(n int) (int64, bool) {
	if n < 0 || n > MaxRecordSlots || int64(n) > (math.MaxInt64-recordHeaderBytes)/8 {
		return 0, false
	}
	return footprint(n), true
}

// ---------------------------------------------------------------------------
// Record: one heap-resident array, object or dispatch table
// ---------------------------------------------------------------------------

// Record is the storage behind a reference. Records are created and owned
// by a Heap; callers get them from Heap.Resolve and never construct them.
//
// Slot reads and writes are not synchronized by the record. Guest-level
// visibility between threads is the interpreter's concern.
type Record struct {
	kind   RecordKind
	elem   SlotKind
	layout []SlotKind
	slots  []Slot
	length int

	index uint32
	gen   uint32

	live   atomic.Bool
	marked atomic.Bool
}

func newRecord(kind RecordKind, d Descriptor, n int) *Record {
	r := &Record{
		kind:   kind,
		elem:   d.Elem,
		slots:  make([]Slot, n),
		length: n,
	}
	if kind == RecordObject {
		r.layout = append([]SlotKind(nil), d.Fields...)
	}
	return r
}

// Kind returns the record kind.
func (r *Record) Kind() RecordKind { return r.kind }

// Len returns the number of slots (elements, fields or dispatch entries).
func (r *Record) Len() int { return r.length }

// Bytes returns the record's accounted size.
func (r *Record) Bytes() int64 { return footprint(r.length) }

// ElemKind returns the element kind of an array, KindReference for an
// interface record, and 0 for objects.
func (r *Record) ElemKind() SlotKind {
	if r.kind == RecordObject {
		return 0
	}
	return r.elem
}

// FieldKind returns the static kind of slot i.
func (r *Record) FieldKind(i int) (SlotKind, error) {
	if i < 0 || i >= r.length {
		return 0, fmt.Errorf("%v slot %d of %d: %w", r.kind, i, r.length, ErrIndexOutOfBounds)
	}
	if r.kind == RecordObject {
		return r.layout[i], nil
	}
	return r.elem, nil
}

// Live reports whether the record has not been reclaimed.
func (r *Record) Live() bool { return r.live.Load() }

// Reference returns the handle the record was issued under.
func (r *Record) Reference() Reference { return makeReference(r.index, r.gen) }

// Load returns slot i.
func (r *Record) Load(i int) (Slot, error) {
	if !r.live.Load() {
		return ZeroSlot, fmt.Errorf("load from %v: %w", r.Reference(), ErrInvalidReference)
	}
	if i < 0 || i >= len(r.slots) {
		return ZeroSlot, fmt.Errorf("%v index %d of %d: %w", r.kind, i, len(r.slots), ErrIndexOutOfBounds)
	}
	return r.slots[i], nil
}

// Store writes slot i.
func (r *Record) Store(i int, v Slot) error {
	if !r.live.Load() {
		return fmt.Errorf("store to %v: %w", r.Reference(), ErrInvalidReference)
	}
	if i < 0 || i >= len(r.slots) {
		return fmt.Errorf("%v index %d of %d: %w", r.kind, i, len(r.slots), ErrIndexOutOfBounds)
	}
	r.slots[i] = v
	return nil
}

// ReferenceSlots yields the index and value of every reference-kinded slot
// holding a non-null handle. Collectors trace through it.
func (r *Record) ReferenceSlots() iter.Seq2[int, Reference] {
	return func(yield func(int, Reference) bool) {
		if !r.live.Load() {
			return
		}
		for i, s := range r.slots {
			kind := r.elem
			if r.kind == RecordObject {
				kind = r.layout[i]
			}
			if kind != KindReference || s.Ref().IsNull() {
				continue
			}
			if !yield(i, s.Ref()) {
				return
			}
		}
	}
}

// Mark sets the collector mark bit and reports whether it was already set.
func (r *Record) Mark() bool { return r.marked.Swap(true) }

// Marked reports the collector mark bit.
func (r *Record) Marked() bool { return r.marked.Load() }

// ClearMark resets the collector mark bit.
func (r *Record) ClearMark() { r.marked.Store(false) }
