// Package snapshot captures thread contexts and heaps as CBOR images.
//
// A thread image holds everything needed to park a thread and resume it
// later with an identical pc, state and frame contents. A heap image is a
// diagnostic dump of every handle the heap still knows about, tombstones
// included.
package snapshot

// ImageVersion is written into every image.
const ImageVersion = 1

// ThreadImage is a suspended thread.
type ThreadImage struct {
	Version     byte         `cbor:"1,keyasint"`
	ID          [16]byte     `cbor:"2,keyasint"`
	PC          uint64       `cbor:"3,keyasint"`
	AddressMode uint8        `cbor:"4,keyasint"`
	State       int32        `cbor:"5,keyasint"`
	MaxDepth    int          `cbor:"6,keyasint"`
	Frames      []FrameImage `cbor:"7,keyasint,omitempty"` // bottom first
	TakenAt     int64        `cbor:"8,keyasint"`           // unix nanoseconds
}

// FrameImage is one activation record.
type FrameImage struct {
	ReturnPC  uint64   `cbor:"1,keyasint"`
	MaxLocals int      `cbor:"2,keyasint"`
	MaxStack  int      `cbor:"3,keyasint"`
	Locals    []uint64 `cbor:"4,keyasint,omitempty"`
	Operands  []uint64 `cbor:"5,keyasint,omitempty"` // bottom first
}

// HeapImage is a dump of a heap.
type HeapImage struct {
	Version      byte          `cbor:"1,keyasint"`
	Records      []RecordImage `cbor:"2,keyasint,omitempty"`
	LiveBytes    int64         `cbor:"3,keyasint"`
	Allocations  uint64        `cbor:"4,keyasint"`
	Reclamations uint64        `cbor:"5,keyasint"`
	TakenAt      int64         `cbor:"6,keyasint"`
}

// RecordImage is one heap record. Tombstones carry no slots.
type RecordImage struct {
	Reference uint64   `cbor:"1,keyasint"`
	Kind      uint8    `cbor:"2,keyasint"`
	Elem      uint8    `cbor:"3,keyasint,omitempty"`
	Fields    []uint8  `cbor:"4,keyasint,omitempty"` // object layout
	Len       int      `cbor:"5,keyasint"`
	Live      bool     `cbor:"6,keyasint"`
	Slots     []uint64 `cbor:"7,keyasint,omitempty"`
}
