package snapshot

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/jolt/vm"
)

// ErrInvalidImage means an image is inconsistent or from another version.
var ErrInvalidImage = errors.New("invalid snapshot image")

// ---------------------------------------------------------------------------
// Threads
// ---------------------------------------------------------------------------

// CaptureThread records t. The thread must not run while it is captured;
// a scheduler calls this on a parked thread.
func CaptureThread(t *vm.Thread) *ThreadImage {
	img := &ThreadImage{
		Version:     ImageVersion,
		ID:          t.ID(),
		PC:          uint64(t.PC()),
		AddressMode: uint8(t.AddressMode()),
		State:       int32(t.State()),
		MaxDepth:    t.Stack().MaxDepth(),
		TakenAt:     time.Now().UnixNano(),
	}
	for f := range t.Stack().Frames() {
		size := f.Size()
		img.Frames = append(img.Frames, FrameImage{
			ReturnPC:  uint64(f.ReturnPC),
			MaxLocals: size.MaxLocals,
			MaxStack:  size.MaxStack,
			Locals:    slotBits(f.Locals()),
			Operands:  slotBits(f.Operands()),
		})
	}
	slices.Reverse(img.Frames)
	return img
}

// RestoreThread rebuilds a thread from img. The restored thread has the
// image's ID, pc, address mode, depth limit, state and frames.
func RestoreThread(img *ThreadImage) (*vm.Thread, error) {
	state := vm.ThreadState(img.State)
	switch state {
	case vm.ThreadUninitialized, vm.ThreadTerminated:
		if len(img.Frames) > 0 {
			return nil, fmt.Errorf("snapshot: %v thread with %d frames: %w", state, len(img.Frames), ErrInvalidImage)
		}
	case vm.ThreadRunning, vm.ThreadBlocked:
		if len(img.Frames) == 0 {
			return nil, fmt.Errorf("snapshot: %v thread without frames: %w", state, ErrInvalidImage)
		}
	default:
		return nil, fmt.Errorf("snapshot: thread state %d: %w", img.State, ErrInvalidImage)
	}

	mode := vm.AddressMode(img.AddressMode)
	if !mode.Valid() {
		return nil, fmt.Errorf("snapshot: address mode %d: %w", img.AddressMode, ErrInvalidImage)
	}
	if img.MaxDepth < 0 || img.MaxDepth > vm.MaxStackDepthLimit {
		return nil, fmt.Errorf("snapshot: depth limit %d: %w", img.MaxDepth, ErrInvalidImage)
	}
	for i, fi := range img.Frames {
		if fi.MaxLocals < 0 || fi.MaxLocals > vm.MaxFrameSlots || fi.MaxStack < 0 || fi.MaxStack > vm.MaxFrameSlots {
			return nil, fmt.Errorf("snapshot: frame %d size %d/%d: %w", i, fi.MaxLocals, fi.MaxStack, ErrInvalidImage)
		}
		if len(fi.Locals) > fi.MaxLocals {
			return nil, fmt.Errorf("snapshot: frame %d has %d locals, max %d: %w", i, len(fi.Locals), fi.MaxLocals, ErrInvalidImage)
		}
		if len(fi.Operands) > fi.MaxStack {
			return nil, fmt.Errorf("snapshot: frame %d has %d operands, max %d: %w", i, len(fi.Operands), fi.MaxStack, ErrInvalidImage)
		}
	}

	t := vm.NewThread(vm.ThreadOptions{
		ID:            uuid.UUID(img.ID),
		MaxStackDepth: img.MaxDepth,
		AddressMode:   mode,
	})

	for i, fi := range img.Frames {
		if err := t.SetPC(vm.ReturnAddressWide(fi.ReturnPC)); err != nil {
			return nil, fmt.Errorf("snapshot: frame %d: %w: %w", i, ErrInvalidImage, err)
		}
		f, err := t.PushFrame(vm.FrameSize{MaxLocals: fi.MaxLocals, MaxStack: fi.MaxStack})
		if err != nil {
			return nil, fmt.Errorf("snapshot: frame %d: %w: %w", i, ErrInvalidImage, err)
		}
		for j, bits := range fi.Locals {
			if err := f.SetLocal(j, vm.Slot(bits)); err != nil {
				return nil, fmt.Errorf("snapshot: frame %d: %w: %w", i, ErrInvalidImage, err)
			}
		}
		for _, bits := range fi.Operands {
			if err := f.Push(vm.Slot(bits)); err != nil {
				return nil, fmt.Errorf("snapshot: frame %d: %w: %w", i, ErrInvalidImage, err)
			}
		}
	}

	if err := t.SetPC(vm.ReturnAddressWide(img.PC)); err != nil {
		return nil, fmt.Errorf("snapshot: %w: %w", ErrInvalidImage, err)
	}

	switch state {
	case vm.ThreadBlocked:
		if err := t.Block(); err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
	case vm.ThreadTerminated:
		if err := t.Terminate(); err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
	}
	return t, nil
}

func slotBits(slots []vm.Slot) []uint64 {
	if len(slots) == 0 {
		return nil
	}
	out := make([]uint64, len(slots))
	for i, s := range slots {
		out[i] = uint64(s)
	}
	return out
}

// ---------------------------------------------------------------------------
// Heaps
// ---------------------------------------------------------------------------

// CaptureHeap dumps h: every live record with its slots, then every
// tombstone still on record. Records are ordered by index.
func CaptureHeap(h *vm.Heap) *HeapImage {
	stats := h.Stats()
	img := &HeapImage{
		Version:      ImageVersion,
		LiveBytes:    stats.LiveBytes,
		Allocations:  stats.Allocations,
		Reclamations: stats.Reclamations,
		TakenAt:      time.Now().UnixNano(),
	}

	h.Each(func(rec *vm.Record) bool {
		ri := RecordImage{
			Reference: uint64(rec.Reference()),
			Kind:      uint8(rec.Kind()),
			Elem:      uint8(rec.ElemKind()),
			Len:       rec.Len(),
			Live:      true,
			Slots:     make([]uint64, 0, rec.Len()),
		}
		for i := 0; i < rec.Len(); i++ {
			s, err := rec.Load(i)
			if err != nil {
				// Reclaimed while we were walking.
				return true
			}
			ri.Slots = append(ri.Slots, uint64(s))
			if rec.Kind() == vm.RecordObject {
				k, _ := rec.FieldKind(i)
				ri.Fields = append(ri.Fields, uint8(k))
			}
		}
		img.Records = append(img.Records, ri)
		return true
	})

	for _, info := range h.Tombstones() {
		img.Records = append(img.Records, RecordImage{
			Reference: uint64(info.Reference),
			Kind:      uint8(info.Kind),
			Elem:      uint8(info.Elem),
			Len:       info.Len,
		})
	}

	slices.SortFunc(img.Records, func(a, b RecordImage) int {
		ia, ib := vm.Reference(a.Reference).Index(), vm.Reference(b.Reference).Index()
		switch {
		case ia < ib:
			return -1
		case ia > ib:
			return 1
		default:
			return 0
		}
	})
	return img
}
