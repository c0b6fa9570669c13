package vm

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Thread states and addressing modes
// ---------------------------------------------------------------------------

// ThreadState is a thread's scheduling state.
type ThreadState int32

const (
	ThreadUninitialized ThreadState = iota
	ThreadRunning
	ThreadBlocked
	ThreadTerminated
)

func (s ThreadState) String() string {
	switch s {
	case ThreadUninitialized:
		return "uninitialized"
	case ThreadRunning:
		return "running"
	case ThreadBlocked:
		return "blocked"
	case ThreadTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("ThreadState(%d)", int32(s))
	}
}

// AddressMode selects the width of a thread's program counter.
type AddressMode uint8

const (
	// AddressWide uses the full 64-bit ReturnAddressWide range.
	AddressWide AddressMode = iota
	// AddressNarrow restricts the program counter to 32 bits.
	AddressNarrow
)

// Valid reports whether m is AddressWide or AddressNarrow.
func (m AddressMode) Valid() bool { return m == AddressWide || m == AddressNarrow }

func (m AddressMode) String() string {
	switch m {
	case AddressWide:
		return "wide"
	case AddressNarrow:
		return "narrow"
	}
	return fmt.Sprintf("AddressMode(%d)", uint8(m))
}

// ---------------------------------------------------------------------------
// Thread: per-thread execution context
// ---------------------------------------------------------------------------

// ThreadOptions configures NewThread.
type ThreadOptions struct {
	ID            uuid.UUID // generated when zero
	MaxStackDepth int       // DefaultMaxStackDepth when zero
	AddressMode   AddressMode
}

// ThreadStatus is what a scheduler needs to park and resume a thread.
type ThreadStatus struct {
	ID    uuid.UUID
	PC    ReturnAddressWide
	Depth int
	State ThreadState
}

// Thread bundles a program counter and a call stack. Only the goroutine
// running the thread may mutate it; PC, Depth, State and Status may be read
// from anywhere.
type Thread struct {
	id    uuid.UUID
	mode  AddressMode
	stack *CallStack

	pc    atomic.Uint64
	depth atomic.Int32
	state atomic.Int32
}

// NewThread creates a thread with a zero program counter and an empty stack.
func NewThread(opts ThreadOptions) *Thread {
	id := opts.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &Thread{
		id:    id,
		mode:  opts.AddressMode,
		stack: NewCallStack(opts.MaxStackDepth),
	}
}

// ID returns the thread's identity.
func (t *Thread) ID() uuid.UUID { return t.id }

// AddressMode returns the thread's program counter width.
func (t *Thread) AddressMode() AddressMode { return t.mode }

// PC returns the program counter.
func (t *Thread) PC() ReturnAddressWide { return ReturnAddressWide(t.pc.Load()) }

// NarrowPC returns the program counter truncated to 32 bits. In narrow mode
// SetPC guarantees nothing is lost.
func (t *Thread) NarrowPC() ReturnAddress { return ReturnAddress(uint32(t.pc.Load())) }

// SetPC sets the program counter. Narrow threads reject addresses above
// 32 bits.
func (t *Thread) SetPC(addr ReturnAddressWide) error {
	if t.mode == AddressNarrow && uint64(addr) > math.MaxUint32 {
		return fmt.Errorf("set pc %#x: %w", uint64(addr), ErrAddressRange)
	}
	t.pc.Store(uint64(addr))
	return nil
}

// State returns the scheduling state.
func (t *Thread) State() ThreadState { return ThreadState(t.state.Load()) }

// Stack returns the thread's call stack.
func (t *Thread) Stack() *CallStack { return t.stack }

// Depth returns the number of frames on the thread's stack.
func (t *Thread) Depth() int { return int(t.depth.Load()) }

// CurrentFrame returns the topmost frame, or nil before the first push and
// after the outermost return.
func (t *Thread) CurrentFrame() *Frame { return t.stack.Top() }

// PushFrame pushes a frame for a method invocation. The current program
// counter is saved as the frame's ReturnPC. The first push starts the
// thread.
func (t *Thread) PushFrame(size FrameSize) (*Frame, error) {
	if t.State() == ThreadTerminated {
		return nil, fmt.Errorf("push frame on thread %s: %w", t.id, ErrThreadTerminated)
	}
	f, err := t.stack.Push(size)
	if err != nil {
		return nil, err
	}
	f.ReturnPC = t.PC()
	t.depth.Store(int32(t.stack.Depth()))
	t.state.CompareAndSwap(int32(ThreadUninitialized), int32(ThreadRunning))
	return f, nil
}

// PopFrame pops the topmost frame. The program counter is left alone; the
// interpreter restores it from the popped frame's ReturnPC if it wants to.
// Popping the outermost frame terminates the thread.
func (t *Thread) PopFrame() (*Frame, error) {
	f, err := t.stack.Pop()
	if err != nil {
		return nil, fmt.Errorf("thread %s: %w", t.id, err)
	}
	t.depth.Store(int32(t.stack.Depth()))
	if t.stack.Empty() {
		t.state.Store(int32(ThreadTerminated))
	}
	return f, nil
}

// Block moves a running thread to Blocked.
func (t *Thread) Block() error {
	return t.transition(ThreadRunning, ThreadBlocked)
}

// Unblock moves a blocked thread back to Running.
func (t *Thread) Unblock() error {
	return t.transition(ThreadBlocked, ThreadRunning)
}

// Terminate marks a thread with an empty stack as Terminated. Threads with
// frames terminate by returning from them.
func (t *Thread) Terminate() error {
	if !t.stack.Empty() {
		return fmt.Errorf("terminate thread %s with %d frames: %w", t.id, t.stack.Depth(), ErrIllegalState)
	}
	t.state.Store(int32(ThreadTerminated))
	return nil
}

func (t *Thread) transition(from, to ThreadState) error {
	if !t.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("thread %s: %v -> %v from %v: %w", t.id, from, to, t.State(), ErrIllegalState)
	}
	return nil
}

// Status returns the thread's scheduling snapshot.
func (t *Thread) Status() ThreadStatus {
	return ThreadStatus{
		ID:    t.id,
		PC:    t.PC(),
		Depth: t.Depth(),
		State: t.State(),
	}
}
