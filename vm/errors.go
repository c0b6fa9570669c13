package vm

import "errors"

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// The four core failure kinds. Every operation that can fail wraps one of
// these (or one of the secondary errors below) with fmt.Errorf and %w, so
// callers test with errors.Is.
var (
	// ErrOutOfMemory means the heap could not satisfy an allocation.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrInvalidReference means a handle was null, stale or reclaimed, or
	// named a record of the wrong kind.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrStackOverflow means a push would exceed the configured frame depth.
	ErrStackOverflow = errors.New("stack overflow")

	// ErrStackUnderflow means a pop on an empty call stack.
	ErrStackUnderflow = errors.New("stack underflow")
)

// Secondary errors.
var (
	ErrIndexOutOfBounds  = errors.New("index out of bounds")
	ErrInvalidDescriptor = errors.New("invalid size descriptor")
	ErrLocalIndex        = errors.New("local variable index out of range")
	ErrOperandOverflow   = errors.New("operand stack overflow")
	ErrOperandUnderflow  = errors.New("operand stack underflow")
	ErrAddressRange      = errors.New("address out of range for addressing mode")
	ErrIllegalState      = errors.New("illegal thread state transition")
	ErrThreadTerminated  = errors.New("thread terminated")
)

// Fault is how the interpreter should surface a core error.
type Fault uint8

const (
	// FaultNone is returned for a nil error.
	FaultNone Fault = iota
	FaultOutOfMemory
	FaultNullReference
	FaultStackOverflow
	FaultIndexOutOfBounds
	// FaultInternal covers interpreter bugs and malformed bytecode. It is
	// fatal to the thread that hit it.
	FaultInternal
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultOutOfMemory:
		return "OutOfMemory"
	case FaultNullReference:
		return "NullReference"
	case FaultStackOverflow:
		return "StackOverflow"
	case FaultIndexOutOfBounds:
		return "IndexOutOfBounds"
	default:
		return "Internal"
	}
}

// Recoverable reports whether guest code may observe and handle the fault.
func (f Fault) Recoverable() bool {
	switch f {
	case FaultOutOfMemory, FaultNullReference, FaultStackOverflow, FaultIndexOutOfBounds:
		return true
	default:
		return false
	}
}

// Classify maps an error returned by this package onto a Fault.
// Errors from outside the taxonomy are FaultInternal.
func Classify(err error) Fault {
	switch {
	case err == nil:
		return FaultNone
	case errors.Is(err, ErrOutOfMemory):
		return FaultOutOfMemory
	case errors.Is(err, ErrInvalidReference):
		return FaultNullReference
	case errors.Is(err, ErrStackOverflow):
		return FaultStackOverflow
	case errors.Is(err, ErrIndexOutOfBounds):
		return FaultIndexOutOfBounds
	default:
		return FaultInternal
	}
}
