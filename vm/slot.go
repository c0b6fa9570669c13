package vm

import "math"

// Slot is an untyped 64-bit storage cell. Locals, operand stack entries and
// heap record fields are all slots.
//
// Encoding:
//   - Byte, Short, Int, Long: sign-extended two's complement
//   - Char, ReturnAddress: zero-extended
//   - Float: IEEE 754 single bits in the low 32 bits
//   - Double: IEEE 754 double bits
//   - Reference: the raw handle
//
// The float encodings go through math.Float32bits/Float64bits, so every bit
// pattern (signalling NaNs and payloads included) survives a round trip.
type Slot uint64

// ZeroSlot is the default value of every freshly allocated slot: integer
// zero, +0.0, and the null reference all encode as zero.
const ZeroSlot Slot = 0

func FromByte(v Byte) Slot     { return Slot(uint64(int64(v))) }
func FromShort(v Short) Slot   { return Slot(uint64(int64(v))) }
func FromInt(v Int) Slot       { return Slot(uint64(int64(v))) }
func FromLong(v Long) Slot     { return Slot(uint64(v)) }
func FromChar(v Char) Slot     { return Slot(uint64(v)) }
func FromFloat(v Float) Slot   { return Slot(math.Float32bits(float32(v))) }
func FromDouble(v Double) Slot { return Slot(math.Float64bits(float64(v))) }
func FromRef(r Reference) Slot { return Slot(r) }

// FromReturnAddress stores a narrow return address.
func FromReturnAddress(a ReturnAddress) Slot { return Slot(uint64(a)) }

// FromReturnAddressWide stores a wide return address.
func FromReturnAddressWide(a ReturnAddressWide) Slot { return Slot(uint64(a)) }

func (s Slot) Byte() Byte     { return Byte(int8(s)) }
func (s Slot) Short() Short   { return Short(int16(s)) }
func (s Slot) Int() Int       { return Int(int32(s)) }
func (s Slot) Long() Long     { return Long(int64(s)) }
func (s Slot) Char() Char     { return Char(uint16(s)) }
func (s Slot) Float() Float   { return Float(math.Float32frombits(uint32(s))) }
func (s Slot) Double() Double { return Double(math.Float64frombits(uint64(s))) }
func (s Slot) Ref() Reference { return Reference(s) }

func (s Slot) ReturnAddress() ReturnAddress         { return ReturnAddress(uint32(s)) }
func (s Slot) ReturnAddressWide() ReturnAddressWide { return ReturnAddressWide(uint64(s)) }
