package vm

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Heap: shared owner of every record
// ---------------------------------------------------------------------------

// HeapOptions bounds a heap. Zero values mean unlimited.
type HeapOptions struct {
	MaxBytes   int64 // accounted bytes across live records
	MaxRecords int   // live records
}

// HeapStats is a point-in-time view of heap occupancy.
type HeapStats struct {
	LiveRecords  int
	LiveBytes    int64
	Indices      int // indices ever handed out
	FreeIndices  int // reclaimed indices awaiting reuse
	Allocations  uint64
	Reclamations uint64
	MaxBytes     int64
	MaxRecords   int
}

// RecordInfo is collector/diagnostic bookkeeping for one handle. It stays
// available for a reclaimed record until its index is reused.
type RecordInfo struct {
	Reference  Reference
	Kind       RecordKind
	Elem       SlotKind
	Len        int
	Bytes      int64
	Generation uint32
	Live       bool
}

// Heap is the process-wide arena. Every array, object and interface-dispatch
// record belongs to exactly one heap and is named by generation-checked
// references. Heaps are explicit values; independent heaps share nothing.
//
// Allocate, Resolve, Reclaim and the introspection methods are safe for
// concurrent use. The heap lock is never held while calling back into
// caller code.
type Heap struct {
	mu      sync.RWMutex
	records []*Record // indexed by Reference.Index; entry 0 unused
	free    []uint32  // reclaimed indices, LIFO

	liveRecords int
	liveBytes   int64

	maxBytes   int64
	maxRecords int

	allocations  atomic.Uint64
	reclamations atomic.Uint64
}

// NewHeap creates an empty heap.
func NewHeap(opts HeapOptions) *Heap {
	return &Heap{
		records:    make([]*Record, 1, 64),
		maxBytes:   opts.MaxBytes,
		maxRecords: opts.MaxRecords,
	}
}

// Allocate reserves a record of the given kind and size and returns a
// handle that has never been issued before by this heap.
func (h *Heap) Allocate(kind RecordKind, d Descriptor) (Reference, error) {
	n, err := d.validate(kind)
	if err != nil {
		return Null, fmt.Errorf("allocate %v: %w", kind, err)
	}

	size, ok := recordBytes(n)
	if !ok {
		return Null, fmt.Errorf("allocate %v of %d slots (max %d): %w", kind, n, MaxRecordSlots, ErrOutOfMemory)
	}
	if err := h.precheck(kind, size); err != nil {
		return Null, err
	}

	// Build outside the lock; the record is published complete.
	rec := newRecord(kind, d, n)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.maxRecords > 0 && h.liveRecords >= h.maxRecords {
		return Null, fmt.Errorf("allocate %v: %d records live (limit %d): %w",
			kind, h.liveRecords, h.maxRecords, ErrOutOfMemory)
	}
	if h.maxBytes > 0 && h.liveBytes+size > h.maxBytes {
		return Null, fmt.Errorf("allocate %v of %d bytes: %d of %d bytes in use: %w",
			kind, size, h.liveBytes, h.maxBytes, ErrOutOfMemory)
	}

	var index, gen uint32
	if k := len(h.free); k > 0 {
		index = h.free[k-1]
		h.free = h.free[:k-1]
		gen = h.records[index].gen + 1
	} else {
		if uint64(len(h.records)) > math.MaxUint32 {
			return Null, fmt.Errorf("allocate %v: handle space exhausted: %w", kind, ErrOutOfMemory)
		}
		index = uint32(len(h.records))
		gen = 1
		h.records = append(h.records, nil)
	}

	rec.index = index
	rec.gen = gen
	rec.live.Store(true)
	h.records[index] = rec

	h.liveRecords++
	h.liveBytes += size
	h.allocations.Add(1)

	return makeReference(index, gen), nil
}

// precheck rejects a request that cannot fit before its slots are made.
// Allocate repeats the check under the write lock.
func (h *Heap) precheck(kind RecordKind, size int64) error {
	if h.maxBytes <= 0 {
		return nil
	}
	if size > h.maxBytes {
		return fmt.Errorf("allocate %v of %d bytes: limit %d bytes: %w", kind, size, h.maxBytes, ErrOutOfMemory)
	}
	h.mu.RLock()
	used := h.liveBytes
	h.mu.RUnlock()
	if used+size > h.maxBytes {
		return fmt.Errorf("allocate %v of %d bytes: %d of %d bytes in use: %w",
			kind, size, used, h.maxBytes, ErrOutOfMemory)
	}
	return nil
}

// Resolve returns the live record named by ref.
func (h *Heap) Resolve(ref Reference) (*Record, error) {
	if ref.IsNull() {
		return nil, fmt.Errorf("resolve null: %w", ErrInvalidReference)
	}

	h.mu.RLock()
	rec := h.lookup(ref)
	h.mu.RUnlock()

	if rec == nil {
		return nil, fmt.Errorf("resolve %v: unknown handle: %w", ref, ErrInvalidReference)
	}
	if !rec.live.Load() {
		return nil, fmt.Errorf("resolve %v: reclaimed: %w", ref, ErrInvalidReference)
	}
	return rec, nil
}

// lookup returns the record currently registered under ref, live or not.
// Caller holds h.mu.
func (h *Heap) lookup(ref Reference) *Record {
	idx := ref.Index()
	if idx == 0 || int(idx) >= len(h.records) {
		return nil
	}
	rec := h.records[idx]
	if rec == nil || rec.gen != ref.Generation() {
		return nil
	}
	return rec
}

// Reclaim tombstones the record named by ref and returns its bytes to the
// budget. The handle and any copy of it fail to resolve from now on. Only a
// collector that has proved ref unreachable may call this.
func (h *Heap) Reclaim(ref Reference) error {
	if ref.IsNull() {
		return fmt.Errorf("reclaim null: %w", ErrInvalidReference)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rec := h.lookup(ref)
	if rec == nil || !rec.live.Load() {
		return fmt.Errorf("reclaim %v: %w", ref, ErrInvalidReference)
	}

	rec.live.Store(false)
	rec.slots = nil
	rec.marked.Store(false)

	h.liveRecords--
	h.liveBytes -= rec.Bytes()
	h.reclamations.Add(1)

	// An index whose generation would wrap is retired for good.
	if rec.gen < math.MaxUint32 {
		h.free = append(h.free, rec.index)
	}
	return nil
}

// Describe returns bookkeeping for ref. It reports false for null, for
// handles the heap never issued and for reclaimed records whose index has
// since been reused.
func (h *Heap) Describe(ref Reference) (RecordInfo, bool) {
	if ref.IsNull() {
		return RecordInfo{}, false
	}
	h.mu.RLock()
	rec := h.lookup(ref)
	h.mu.RUnlock()
	if rec == nil {
		return RecordInfo{}, false
	}
	return rec.info(), true
}

func (r *Record) info() RecordInfo {
	return RecordInfo{
		Reference:  r.Reference(),
		Kind:       r.kind,
		Elem:       r.ElemKind(),
		Len:        r.length,
		Bytes:      r.Bytes(),
		Generation: r.gen,
		Live:       r.live.Load(),
	}
}

// IsLive reports whether ref currently resolves.
func (h *Heap) IsLive(ref Reference) bool {
	info, ok := h.Describe(ref)
	return ok && info.Live
}

// Each calls fn for every live record until fn returns false. It walks a
// copy of the record table taken under the read lock, so fn may call back
// into the heap (including Reclaim).
func (h *Heap) Each(fn func(*Record) bool) {
	h.mu.RLock()
	live := make([]*Record, 0, h.liveRecords)
	for _, rec := range h.records[1:] {
		if rec != nil && rec.live.Load() {
			live = append(live, rec)
		}
	}
	h.mu.RUnlock()

	for _, rec := range live {
		if !fn(rec) {
			return
		}
	}
}

// Tombstones returns bookkeeping for every reclaimed record whose index has
// not been reused yet.
func (h *Heap) Tombstones() []RecordInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []RecordInfo
	for _, rec := range h.records[1:] {
		if rec != nil && !rec.live.Load() {
			out = append(out, rec.info())
		}
	}
	return out
}

// Stats returns current occupancy counters.
func (h *Heap) Stats() HeapStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HeapStats{
		LiveRecords:  h.liveRecords,
		LiveBytes:    h.liveBytes,
		Indices:      len(h.records) - 1,
		FreeIndices:  len(h.free),
		Allocations:  h.allocations.Load(),
		Reclamations: h.reclamations.Load(),
		MaxBytes:     h.maxBytes,
		MaxRecords:   h.maxRecords,
	}
}

// ---------------------------------------------------------------------------
// Typed entry points
// ---------------------------------------------------------------------------

// AllocateArray allocates an array of length elements of kind elem.
func (h *Heap) AllocateArray(elem SlotKind, length int) (ArrayRef, error) {
	ref, err := h.Allocate(RecordArray, ArrayOf(elem, length))
	return ArrayRef(ref), err
}

// AllocateObject allocates an object with the given field layout.
func (h *Heap) AllocateObject(fields ...SlotKind) (ObjectRef, error) {
	ref, err := h.Allocate(RecordObject, ObjectOf(fields...))
	return ObjectRef(ref), err
}

// AllocateInterface allocates an interface-dispatch record with methods entries.
func (h *Heap) AllocateInterface(methods int) (InterfaceRef, error) {
	ref, err := h.Allocate(RecordInterface, InterfaceOf(methods))
	return InterfaceRef(ref), err
}

// ResolveArray resolves ref and checks that it names an array.
func (h *Heap) ResolveArray(ref ArrayRef) (*Record, error) {
	return h.resolveKind(Reference(ref), RecordArray)
}

// ResolveObject resolves ref and checks that it names an object.
func (h *Heap) ResolveObject(ref ObjectRef) (*Record, error) {
	return h.resolveKind(Reference(ref), RecordObject)
}

// ResolveInterface resolves ref and checks that it names a dispatch record.
func (h *Heap) ResolveInterface(ref InterfaceRef) (*Record, error) {
	return h.resolveKind(Reference(ref), RecordInterface)
}

func (h *Heap) resolveKind(ref Reference, want RecordKind) (*Record, error) {
	rec, err := h.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if rec.kind != want {
		return nil, fmt.Errorf("resolve %v: %v record used as %v: %w", ref, rec.kind, want, ErrInvalidReference)
	}
	return rec, nil
}
