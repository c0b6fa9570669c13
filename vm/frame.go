package vm

import "fmt"

// ---------------------------------------------------------------------------
// Frame: activation record for one method invocation
// ---------------------------------------------------------------------------

// MaxFrameSlots bounds FrameSize.MaxLocals and FrameSize.MaxStack, matching
// the u2 limits of a class file's Code attribute.
const MaxFrameSlots = 65535

// FrameSize fixes the shape of a frame when it is pushed.
type FrameSize struct {
	MaxLocals int // local variable slots (arguments included)
	MaxStack  int // operand stack capacity
}

// Frame is one activation record. It exclusively owns its locals and
// operand stack; nothing else aliases them.
type Frame struct {
	// ReturnPC is the caller's program counter at the time of the push.
	ReturnPC ReturnAddressWide

	locals   []Slot
	operands []Slot
	sp       int // next free operand slot

	depth int // 1-based position in the owning stack; 0 once popped
}

func newFrame(size FrameSize) *Frame {
	return &Frame{
		locals:   make([]Slot, size.MaxLocals),
		operands: make([]Slot, size.MaxStack),
	}
}

// Depth returns the frame's 1-based position in its call stack, or 0 if the
// frame has been popped.
func (f *Frame) Depth() int { return f.depth }

// Size returns the shape the frame was created with.
func (f *Frame) Size() FrameSize {
	return FrameSize{MaxLocals: len(f.locals), MaxStack: len(f.operands)}
}

// Local returns local variable i.
func (f *Frame) Local(i int) (Slot, error) {
	if i < 0 || i >= len(f.locals) {
		return ZeroSlot, fmt.Errorf("local %d of %d: %w", i, len(f.locals), ErrLocalIndex)
	}
	return f.locals[i], nil
}

// SetLocal stores v in local variable i.
func (f *Frame) SetLocal(i int, v Slot) error {
	if i < 0 || i >= len(f.locals) {
		return fmt.Errorf("local %d of %d: %w", i, len(f.locals), ErrLocalIndex)
	}
	f.locals[i] = v
	return nil
}

// Push pushes v onto the operand stack.
func (f *Frame) Push(v Slot) error {
	if f.sp >= len(f.operands) {
		return fmt.Errorf("push at sp=%d, max=%d: %w", f.sp, len(f.operands), ErrOperandOverflow)
	}
	f.operands[f.sp] = v
	f.sp++
	return nil
}

// Pop pops the top operand.
func (f *Frame) Pop() (Slot, error) {
	if f.sp <= 0 {
		return ZeroSlot, fmt.Errorf("pop at sp=0: %w", ErrOperandUnderflow)
	}
	f.sp--
	v := f.operands[f.sp]
	f.operands[f.sp] = ZeroSlot
	return v, nil
}

// Peek returns the top operand without popping it.
func (f *Frame) Peek() (Slot, error) {
	if f.sp <= 0 {
		return ZeroSlot, fmt.Errorf("peek at sp=0: %w", ErrOperandUnderflow)
	}
	return f.operands[f.sp-1], nil
}

// OperandDepth returns the number of operands on the stack.
func (f *Frame) OperandDepth() int { return f.sp }

// Locals returns the local variable slots. The slice aliases the frame.
func (f *Frame) Locals() []Slot { return f.locals }

// Operands returns the live operands, bottom first. The slice aliases the frame.
func (f *Frame) Operands() []Slot { return f.operands[:f.sp] }
