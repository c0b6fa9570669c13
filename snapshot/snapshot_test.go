package snapshot

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/chazu/jolt/vm"
)

// parkedThread builds a thread two frames deep with locals and operands.
func parkedThread(t *testing.T) *vm.Thread {
	t.Helper()
	th := vm.NewThread(vm.ThreadOptions{MaxStackDepth: 16})

	_ = th.SetPC(0x100)
	outer, err := th.PushFrame(vm.FrameSize{MaxLocals: 2, MaxStack: 3})
	if err != nil {
		t.Fatal(err)
	}
	_ = outer.SetLocal(0, vm.FromInt(-5))
	_ = outer.SetLocal(1, vm.FromDouble(vm.Double(math.NaN())))
	_ = outer.Push(vm.FromLong(99))

	_ = th.SetPC(0x180)
	inner, err := th.PushFrame(vm.FrameSize{MaxLocals: 1, MaxStack: 2})
	if err != nil {
		t.Fatal(err)
	}
	_ = inner.SetLocal(0, vm.FromRef(vm.Reference(3<<32|7)))
	_ = inner.Push(vm.FromFloat(vm.Float(math.Inf(1))))
	_ = inner.Push(vm.FromChar('x'))

	_ = th.SetPC(0x1A4)
	return th
}

func assertSameThread(t *testing.T, want, got *vm.Thread) {
	t.Helper()
	if got.ID() != want.ID() || got.PC() != want.PC() || got.State() != want.State() {
		t.Fatalf("status = %+v, want %+v", got.Status(), want.Status())
	}
	if got.Depth() != want.Depth() || got.Stack().MaxDepth() != want.Stack().MaxDepth() {
		t.Fatalf("depth = %d/%d, want %d/%d", got.Depth(), got.Stack().MaxDepth(), want.Depth(), want.Stack().MaxDepth())
	}

	var wf, gf []*vm.Frame
	for f := range want.Stack().Frames() {
		wf = append(wf, f)
	}
	for f := range got.Stack().Frames() {
		gf = append(gf, f)
	}
	for i := range wf {
		if wf[i].ReturnPC != gf[i].ReturnPC || wf[i].Size() != gf[i].Size() {
			t.Errorf("frame %d header differs", i)
		}
		if !slotsEqual(wf[i].Locals(), gf[i].Locals()) {
			t.Errorf("frame %d locals %v, want %v", i, gf[i].Locals(), wf[i].Locals())
		}
		if !slotsEqual(wf[i].Operands(), gf[i].Operands()) {
			t.Errorf("frame %d operands %v, want %v", i, gf[i].Operands(), wf[i].Operands())
		}
	}
}

func slotsEqual(a, b []vm.Slot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Thread images
// ---------------------------------------------------------------------------

func TestThreadCaptureRestore(t *testing.T) {
	th := parkedThread(t)
	if err := th.Block(); err != nil {
		t.Fatal(err)
	}

	img := CaptureThread(th)
	if len(img.Frames) != 2 || img.Frames[0].ReturnPC != 0x100 || img.Frames[1].ReturnPC != 0x180 {
		t.Fatalf("frames not stored bottom first: %+v", img.Frames)
	}

	data, err := MarshalThread(img)
	if err != nil {
		t.Fatalf("MarshalThread: %v", err)
	}
	decoded, err := UnmarshalThread(data)
	if err != nil {
		t.Fatalf("UnmarshalThread: %v", err)
	}
	restored, err := RestoreThread(decoded)
	if err != nil {
		t.Fatalf("RestoreThread: %v", err)
	}
	assertSameThread(t, th, restored)

	// The restored thread keeps running from where it was parked.
	if err := restored.Unblock(); err != nil {
		t.Fatal(err)
	}
	if _, err := restored.PopFrame(); err != nil {
		t.Fatal(err)
	}
	if restored.CurrentFrame().OperandDepth() != 1 {
		t.Error("outer frame operands lost")
	}
}

func TestThreadEncodingIsDeterministic(t *testing.T) {
	img := CaptureThread(parkedThread(t))
	a, _ := MarshalThread(img)
	b, _ := MarshalThread(img)
	if !bytes.Equal(a, b) {
		t.Error("canonical encoding produced different bytes")
	}
}

func TestRestoreTerminatedAndFreshThreads(t *testing.T) {
	fresh := vm.NewThread(vm.ThreadOptions{AddressMode: vm.AddressNarrow})
	got, err := RestoreThread(CaptureThread(fresh))
	if err != nil {
		t.Fatal(err)
	}
	assertSameThread(t, fresh, got)
	if got.AddressMode() != vm.AddressNarrow {
		t.Error("address mode lost")
	}

	done := vm.NewThread(vm.ThreadOptions{})
	_, _ = done.PushFrame(vm.FrameSize{})
	_, _ = done.PopFrame()
	got, err = RestoreThread(CaptureThread(done))
	if err != nil {
		t.Fatal(err)
	}
	if got.State() != vm.ThreadTerminated {
		t.Errorf("state = %v, want terminated", got.State())
	}
}

func TestRestoreRejectsInconsistentImages(t *testing.T) {
	base := CaptureThread(parkedThread(t))

	cases := map[string]func(img *ThreadImage){
		"running without frames": func(img *ThreadImage) { img.Frames = nil },
		"terminated with frames": func(img *ThreadImage) { img.State = int32(vm.ThreadTerminated) },
		"unknown state":          func(img *ThreadImage) { img.State = 42 },
		"too many locals": func(img *ThreadImage) {
			img.Frames[0].Locals = append(img.Frames[0].Locals, 1, 2, 3)
		},
		"too many operands": func(img *ThreadImage) {
			img.Frames[1].Operands = append(img.Frames[1].Operands, 1)
		},
		"too deep": func(img *ThreadImage) { img.MaxDepth = 1 },
		"narrow pc overflow": func(img *ThreadImage) {
			img.AddressMode = uint8(vm.AddressNarrow)
			img.PC = math.MaxUint32 + 1
		},
		"unknown address mode": func(img *ThreadImage) { img.AddressMode = 7 },
		"negative depth limit": func(img *ThreadImage) { img.MaxDepth = -1 },
		"huge locals":          func(img *ThreadImage) { img.Frames[0].MaxLocals = math.MaxInt / 4 },
		"huge operand stack":   func(img *ThreadImage) { img.Frames[1].MaxStack = vm.MaxFrameSlots + 1 },
		"negative frame size":  func(img *ThreadImage) { img.Frames[0].MaxStack = -1 },
	}
	for name, mutate := range cases {
		img := *base
		img.Frames = append([]FrameImage(nil), base.Frames...)
		for i := range img.Frames {
			img.Frames[i].Locals = append([]uint64(nil), base.Frames[i].Locals...)
			img.Frames[i].Operands = append([]uint64(nil), base.Frames[i].Operands...)
		}
		mutate(&img)
		if _, err := RestoreThread(&img); !errors.Is(err, ErrInvalidImage) {
			t.Errorf("%s: err = %v, want ErrInvalidImage", name, err)
		}
	}
}

func TestRestoreRejectsDecodedOversizedFrame(t *testing.T) {
	img := CaptureThread(parkedThread(t))
	img.Frames[1].MaxLocals = math.MaxInt / 4
	data, err := MarshalThread(img)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := UnmarshalThread(data)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := RestoreThread(decoded); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("err = %v, want ErrInvalidImage", err)
	}
}

func TestUnmarshalRejectsWrongVersion(t *testing.T) {
	img := CaptureThread(vm.NewThread(vm.ThreadOptions{}))
	img.Version = 9
	data, _ := MarshalThread(img)
	if _, err := UnmarshalThread(data); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("err = %v, want ErrInvalidImage", err)
	}
	if _, err := UnmarshalThread([]byte{0xFF, 0x00}); err == nil {
		t.Error("garbage decoded without error")
	}
}

// ---------------------------------------------------------------------------
// Heap images
// ---------------------------------------------------------------------------

func TestCaptureHeap(t *testing.T) {
	h := vm.NewHeap(vm.HeapOptions{})
	arr, _ := h.AllocateArray(vm.KindInt, 3)
	obj, _ := h.AllocateObject(vm.KindReference, vm.KindDouble)
	dead, _ := h.AllocateInterface(2)

	rec, _ := h.ResolveArray(arr)
	_ = rec.Store(2, vm.FromInt(-1))
	orec, _ := h.ResolveObject(obj)
	_ = orec.Store(0, vm.FromRef(arr.Reference()))
	_ = h.Reclaim(dead.Reference())

	img := CaptureHeap(h)
	data, err := MarshalHeap(img)
	if err != nil {
		t.Fatal(err)
	}
	img, err = UnmarshalHeap(data)
	if err != nil {
		t.Fatal(err)
	}

	if len(img.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(img.Records))
	}
	a, o, d := img.Records[0], img.Records[1], img.Records[2]
	if vm.Reference(a.Reference) != arr.Reference() || !a.Live || vm.Slot(a.Slots[2]).Int() != -1 {
		t.Errorf("array record = %+v", a)
	}
	if vm.RecordKind(o.Kind) != vm.RecordObject || len(o.Fields) != 2 || vm.SlotKind(o.Fields[0]) != vm.KindReference {
		t.Errorf("object record = %+v", o)
	}
	if vm.Reference(o.Slots[0]) != arr.Reference() {
		t.Errorf("object field 0 = %#x", o.Slots[0])
	}
	if d.Live || d.Slots != nil || d.Len != 2 || vm.RecordKind(d.Kind) != vm.RecordInterface {
		t.Errorf("tombstone = %+v", d)
	}
	if img.Allocations != 3 || img.Reclamations != 1 {
		t.Errorf("counters = %d/%d", img.Allocations, img.Reclamations)
	}
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

func TestStoreThreadSnapshots(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	th := parkedThread(t)
	first := CaptureThread(th)
	id1, err := store.SaveThread(first, "before")
	if err != nil {
		t.Fatalf("SaveThread: %v", err)
	}

	_, _ = th.PopFrame()
	second := CaptureThread(th)
	second.TakenAt = first.TakenAt + 1
	id2, err := store.SaveThread(second, "after")
	if err != nil {
		t.Fatal(err)
	}
	if id1 == id2 {
		t.Fatal("entries share an ID")
	}

	got, err := store.LoadThread(id1)
	if err != nil {
		t.Fatalf("LoadThread: %v", err)
	}
	restored, err := RestoreThread(got)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Depth() != 2 {
		t.Errorf("restored depth = %d, want 2", restored.Depth())
	}

	latest, err := store.LatestThread(th.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(latest.Frames) != 1 {
		t.Errorf("latest frames = %d, want 1", len(latest.Frames))
	}

	entries, err := store.ListThread(th.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Label != "before" || entries[1].Label != "after" {
		t.Errorf("entries = %+v", entries)
	}
	if entries[0].Size == 0 || entries[0].Thread != th.ID() {
		t.Errorf("entry = %+v", entries[0])
	}

	if _, err := store.LoadThread(9999); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("LoadThread(missing) err = %v", err)
	}
	if _, err := store.LatestThread(uuid.New()); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("LatestThread(unknown) err = %v", err)
	}
}

func TestStoreHeapSnapshots(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	h := vm.NewHeap(vm.HeapOptions{})
	_, _ = h.AllocateArray(vm.KindByte, 32)

	id, err := store.SaveHeap(CaptureHeap(h), "boot")
	if err != nil {
		t.Fatalf("SaveHeap: %v", err)
	}
	img, err := store.LoadHeap(id)
	if err != nil {
		t.Fatalf("LoadHeap: %v", err)
	}
	if len(img.Records) != 1 || img.Records[0].Len != 32 {
		t.Errorf("heap image = %+v", img)
	}
	if _, err := store.LoadHeap(id + 1); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("LoadHeap(missing) err = %v", err)
	}
}
