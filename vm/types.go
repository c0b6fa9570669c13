package vm

import (
	"fmt"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Primitive types
// ---------------------------------------------------------------------------

// Byte is an 8-bit signed integer.
type Byte int8

// Short is a 16-bit signed integer.
type Short int16

// Int is a 32-bit signed integer.
type Int int32

// Long is a 64-bit signed integer.
type Long int64

// Char is a 16-bit unsigned UTF-16 code unit.
type Char uint16

// Float is a 32-bit IEEE 754 value.
type Float float32

// Double is a 64-bit IEEE 754 value.
type Double float64

// ReturnAddress is a 32-bit program counter value.
type ReturnAddress uint32

// ReturnAddressWide is a 64-bit program counter value, used when code or
// jump targets need the full native word.
type ReturnAddressWide uint64

// Widths are fixed on every platform. Each line fails to compile if the
// Go representation ever drifts from the required size.
var (
	_ [1]struct{} = [unsafe.Sizeof(Byte(0))]struct{}{}
	_ [2]struct{} = [unsafe.Sizeof(Short(0))]struct{}{}
	_ [4]struct{} = [unsafe.Sizeof(Int(0))]struct{}{}
	_ [8]struct{} = [unsafe.Sizeof(Long(0))]struct{}{}
	_ [2]struct{} = [unsafe.Sizeof(Char(0))]struct{}{}
	_ [4]struct{} = [unsafe.Sizeof(Float(0))]struct{}{}
	_ [8]struct{} = [unsafe.Sizeof(Double(0))]struct{}{}
	_ [4]struct{} = [unsafe.Sizeof(ReturnAddress(0))]struct{}{}
	_ [8]struct{} = [unsafe.Sizeof(ReturnAddressWide(0))]struct{}{}
	_ [8]struct{} = [unsafe.Sizeof(Slot(0))]struct{}{}
)

// ---------------------------------------------------------------------------
// SlotKind
// ---------------------------------------------------------------------------

// SlotKind names the static type of a storage slot. The heap uses it to
// describe record layouts; slots themselves carry no kind at runtime.
type SlotKind uint8

const (
	KindByte SlotKind = iota + 1
	KindShort
	KindInt
	KindLong
	KindChar
	KindFloat
	KindDouble
	KindReference
	KindReturnAddress
)

var slotKindNames = [...]string{
	KindByte:          "byte",
	KindShort:         "short",
	KindInt:           "int",
	KindLong:          "long",
	KindChar:          "char",
	KindFloat:         "float",
	KindDouble:        "double",
	KindReference:     "reference",
	KindReturnAddress: "returnAddress",
}

// Valid reports whether k is one of the defined kinds.
func (k SlotKind) Valid() bool {
	return k >= KindByte && k <= KindReturnAddress
}

// IsPrimitive reports whether k is one of the seven numeric kinds.
func (k SlotKind) IsPrimitive() bool {
	return k >= KindByte && k <= KindDouble
}

// Width returns the natural size in bytes of a value of kind k.
// References report the handle size.
func (k SlotKind) Width() int {
	switch k {
	case KindByte:
		return 1
	case KindShort, KindChar:
		return 2
	case KindInt, KindFloat, KindReturnAddress:
		return 4
	case KindLong, KindDouble, KindReference:
		return 8
	default:
		return 0
	}
}

func (k SlotKind) String() string {
	if k.Valid() {
		return slotKindNames[k]
	}
	return fmt.Sprintf("SlotKind(%d)", uint8(k))
}
