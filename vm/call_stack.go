package vm

import (
	"fmt"
	"iter"
	"math"
)

// DefaultMaxStackDepth is the frame limit used when none is configured.
const DefaultMaxStackDepth = 1024

// MaxStackDepthLimit caps any configured frame limit.
const MaxStackDepthLimit = math.MaxInt32

// CallStack is one thread's chain of frames, stored contiguously with the
// topmost frame last. A frame's caller is the frame one index below it, so
// popping can never leave a dangling back-link.
//
// A CallStack belongs to a single thread and is not safe for concurrent use.
type CallStack struct {
	frames   []*Frame
	maxDepth int
}

// NewCallStack creates an empty stack holding at most maxDepth frames.
// A non-positive maxDepth selects DefaultMaxStackDepth; larger values are
// clamped to MaxStackDepthLimit.
func NewCallStack(maxDepth int) *CallStack {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxStackDepth
	}
	if maxDepth > MaxStackDepthLimit {
		maxDepth = MaxStackDepthLimit
	}
	initial := maxDepth
	if initial > 16 {
		initial = 16
	}
	return &CallStack{
		frames:   make([]*Frame, 0, initial),
		maxDepth: maxDepth,
	}
}

// Push creates a new frame on top of the stack. On failure the stack is
// left exactly as it was.
func (s *CallStack) Push(size FrameSize) (*Frame, error) {
	if size.MaxLocals < 0 || size.MaxStack < 0 {
		return nil, fmt.Errorf("push frame %+v: negative size: %w", size, ErrInvalidDescriptor)
	}
	if size.MaxLocals > MaxFrameSlots || size.MaxStack > MaxFrameSlots {
		return nil, fmt.Errorf("push frame %+v: over %d slots: %w", size, MaxFrameSlots, ErrInvalidDescriptor)
	}
	if len(s.frames) >= s.maxDepth {
		return nil, fmt.Errorf("push frame at depth %d (max %d): %w", len(s.frames), s.maxDepth, ErrStackOverflow)
	}
	f := newFrame(size)
	s.frames = append(s.frames, f)
	f.depth = len(s.frames)
	return f, nil
}

// Pop removes and returns the topmost frame. The returned frame is detached:
// its Depth is 0 and Caller no longer finds it.
func (s *CallStack) Pop() (*Frame, error) {
	n := len(s.frames)
	if n == 0 {
		return nil, fmt.Errorf("pop frame: %w", ErrStackUnderflow)
	}
	f := s.frames[n-1]
	s.frames[n-1] = nil
	s.frames = s.frames[:n-1]
	f.depth = 0
	return f, nil
}

// Top returns the topmost frame without removing it, or nil if the stack is
// empty.
func (s *CallStack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Depth returns the number of frames on the stack.
func (s *CallStack) Depth() int { return len(s.frames) }

// MaxDepth returns the configured frame limit.
func (s *CallStack) MaxDepth() int { return s.maxDepth }

// Empty reports whether the stack holds no frames.
func (s *CallStack) Empty() bool { return len(s.frames) == 0 }

// Caller returns the frame that was on top when f was pushed, or nil if f
// is the bottom frame or does not belong to this stack.
func (s *CallStack) Caller(f *Frame) *Frame {
	if f == nil || f.depth < 2 || f.depth > len(s.frames) || s.frames[f.depth-1] != f {
		return nil
	}
	return s.frames[f.depth-2]
}

// Frames yields the frames from top to bottom.
func (s *CallStack) Frames() iter.Seq[*Frame] {
	return func(yield func(*Frame) bool) {
		for i := len(s.frames) - 1; i >= 0; i-- {
			if !yield(s.frames[i]) {
				return
			}
		}
	}
}
