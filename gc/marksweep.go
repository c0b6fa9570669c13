// Package gc is a stop-the-world mark-sweep collector for a vm.Heap.
//
// Slots carry no runtime type, so the collector cannot find roots on its
// own. The interpreter supplies them through a RootSource; everything
// reachable from a root through reference-kinded record slots survives,
// everything else is reclaimed.
package gc

import (
	"sync"
	"time"

	"github.com/chazu/jolt/vm"
)

// RootSource yields every reference the mutators can still reach directly
// (locals, operands, statics). It stops early when yield returns false.
type RootSource func(yield func(vm.Reference) bool)

// Stats describes one collection cycle.
type Stats struct {
	Roots        int
	InvalidRoots int // roots that no longer resolved
	Marked       int
	Swept        int
	BytesFreed   int64
	Duration     time.Duration
	Timestamp    time.Time
}

// Collect runs one full mark-sweep cycle over h. The caller must make sure
// no mutator touches the heap until Collect returns.
func Collect(h *vm.Heap, roots RootSource) *Stats {
	start := time.Now()
	stats := &Stats{Timestamp: start}

	h.Each(func(rec *vm.Record) bool {
		rec.ClearMark()
		return true
	})

	var stack []*vm.Record
	push := func(ref vm.Reference) {
		rec, err := h.Resolve(ref)
		if err != nil {
			stats.InvalidRoots++
			return
		}
		if !rec.Mark() {
			stats.Marked++
			stack = append(stack, rec)
		}
	}

	if roots != nil {
		roots(func(ref vm.Reference) bool {
			stats.Roots++
			if !ref.IsNull() {
				push(ref)
			}
			return true
		})
	}

	for len(stack) > 0 {
		rec := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, ref := range rec.ReferenceSlots() {
			child, err := h.Resolve(ref)
			if err != nil {
				// A dangling field is the mutator's bug; nothing to trace.
				continue
			}
			if !child.Mark() {
				stats.Marked++
				stack = append(stack, child)
			}
		}
	}

	h.Each(func(rec *vm.Record) bool {
		if rec.Marked() {
			rec.ClearMark()
			return true
		}
		bytes := rec.Bytes()
		if err := h.Reclaim(rec.Reference()); err == nil {
			stats.Swept++
			stats.BytesFreed += bytes
		}
		return true
	})

	stats.Duration = time.Since(start)
	return stats
}

// ---------------------------------------------------------------------------
// RootSet: explicitly pinned roots
// ---------------------------------------------------------------------------

// RootSet is a counted set of pinned references. Embedders that track roots
// themselves (statics, JNI-style global handles) pin them here and hand
// Source to the collector.
type RootSet struct {
	mu   sync.Mutex
	refs map[vm.Reference]int
}

// NewRootSet creates an empty set.
func NewRootSet() *RootSet {
	return &RootSet{refs: make(map[vm.Reference]int)}
}

// Pin adds one pin on ref. Null is ignored.
func (s *RootSet) Pin(ref vm.Reference) {
	if ref.IsNull() {
		return
	}
	s.mu.Lock()
	s.refs[ref]++
	s.mu.Unlock()
}

// Unpin drops one pin on ref.
func (s *RootSet) Unpin(ref vm.Reference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.refs[ref]; n > 1 {
		s.refs[ref] = n - 1
	} else {
		delete(s.refs, ref)
	}
}

// Len returns the number of distinct pinned references.
func (s *RootSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs)
}

// Source returns a RootSource over a snapshot of the pinned references.
func (s *RootSet) Source() RootSource {
	return func(yield func(vm.Reference) bool) {
		s.mu.Lock()
		refs := make([]vm.Reference, 0, len(s.refs))
		for ref := range s.refs {
			refs = append(refs, ref)
		}
		s.mu.Unlock()

		for _, ref := range refs {
			if !yield(ref) {
				return
			}
		}
	}
}

// Roots concatenates several sources.
func Roots(sources ...RootSource) RootSource {
	return func(yield func(vm.Reference) bool) {
		stopped := false
		for _, src := range sources {
			if src == nil || stopped {
				continue
			}
			src(func(ref vm.Reference) bool {
				if !yield(ref) {
					stopped = true
					return false
				}
				return true
			})
		}
	}
}
