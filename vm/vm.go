package vm

import (
	"context"
	"sort"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map"
	"golang.org/x/sync/errgroup"
)

// ---------------------------------------------------------------------------
// VM: one heap plus the threads that share it
// ---------------------------------------------------------------------------

// Options configures a VM.
type Options struct {
	Heap          HeapOptions
	MaxStackDepth int
	AddressMode   AddressMode
}

// DefaultOptions returns an unlimited heap, DefaultMaxStackDepth and wide
// addressing.
func DefaultOptions() Options {
	return Options{MaxStackDepth: DefaultMaxStackDepth}
}

// VM owns a heap and a table of the threads running against it. Several
// VMs may exist in one process; they share nothing.
type VM struct {
	Heap *Heap

	opts    Options
	threads cmap.ConcurrentMap // uuid string -> *Thread
}

// NewVM creates a VM with an empty heap and no threads.
func NewVM(opts Options) *VM {
	return &VM{
		Heap:    NewHeap(opts.Heap),
		opts:    opts,
		threads: cmap.New(),
	}
}

// Options returns the options the VM was created with.
func (vm *VM) Options() Options { return vm.opts }

// ThreadOptions returns the options used for threads created by the VM.
func (vm *VM) ThreadOptions() ThreadOptions {
	return ThreadOptions{
		MaxStackDepth: vm.opts.MaxStackDepth,
		AddressMode:   vm.opts.AddressMode,
	}
}

// NewThread creates and registers a new thread.
func (vm *VM) NewThread() *Thread {
	t := NewThread(vm.ThreadOptions())
	vm.AttachThread(t)
	return t
}

// AttachThread registers an existing thread, such as one restored from a
// snapshot. A thread with the same ID is replaced.
func (vm *VM) AttachThread(t *Thread) {
	vm.threads.Set(t.ID().String(), t)
}

// Thread looks up a registered thread.
func (vm *VM) Thread(id uuid.UUID) (*Thread, bool) {
	v, ok := vm.threads.Get(id.String())
	if !ok {
		return nil, false
	}
	return v.(*Thread), true
}

// DetachThread removes a thread from the table.
func (vm *VM) DetachThread(id uuid.UUID) {
	vm.threads.Remove(id.String())
}

// ThreadCount returns the number of registered threads.
func (vm *VM) ThreadCount() int {
	return vm.threads.Count()
}

// Threads returns the registered threads ordered by ID.
func (vm *VM) Threads() []*Thread {
	out := make([]*Thread, 0, vm.threads.Count())
	for item := range vm.threads.IterBuffered() {
		out = append(out, item.Val.(*Thread))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID().String() < out[j].ID().String()
	})
	return out
}

// ThreadFunc is the body of a guest thread run by VM.Run.
type ThreadFunc func(ctx context.Context, t *Thread) error

// Run executes each function on its own goroutine with a freshly registered
// thread and waits for all of them. The context passed to the functions is
// cancelled as soon as one of them fails; Run returns the first error.
// Threads are detached when their function returns.
func (vm *VM) Run(ctx context.Context, fns ...ThreadFunc) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		t := vm.NewThread()
		g.Go(func() error {
			defer vm.DetachThread(t.ID())
			return fn(ctx, t)
		})
	}
	return g.Wait()
}
