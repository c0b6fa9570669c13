package gc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/jolt/vm"
)

var log = commonlog.GetLogger("jolt.gc")

// ---------------------------------------------------------------------------
// Collector: periodic mark-sweep
// ---------------------------------------------------------------------------

// DefaultInterval is the default time between periodic collections.
const DefaultInterval = 30 * time.Second

// Options configures a Collector.
type Options struct {
	Interval time.Duration // DefaultInterval when zero
	Enabled  bool
}

// Pauser stops and restarts the mutators around a collection. Without one
// the embedder must only call CollectNow while mutators are parked and must
// not Start the periodic loop.
type Pauser interface {
	StopTheWorld()
	StartTheWorld()
}

// Collector runs Collect on a heap, on demand or on a timer.
type Collector struct {
	heap     *vm.Heap
	roots    RootSource
	pauser   Pauser
	interval time.Duration
	enabled  atomic.Bool

	cycleMu sync.Mutex // one cycle at a time
	mu      sync.Mutex // protects start/stop lifecycle
	stop    chan struct{}
	stopped chan struct{}

	cycles    atomic.Uint64
	lastStats atomic.Pointer[Stats]
}

// NewCollector creates a collector for h. Start must be called to run it
// periodically.
func NewCollector(h *vm.Heap, roots RootSource, opts Options) *Collector {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	c := &Collector{
		heap:     h,
		roots:    roots,
		interval: interval,
	}
	c.enabled.Store(opts.Enabled)
	return c
}

// SetPauser installs the stop-the-world hook.
func (c *Collector) SetPauser(p Pauser) {
	c.cycleMu.Lock()
	c.pauser = p
	c.cycleMu.Unlock()
}

// Start begins the periodic loop. Calling Start twice runs one loop.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})

	stopCh := c.stop
	stoppedCh := c.stopped
	go c.loop(stopCh, stoppedCh)
	log.Debugf("collector started, interval %s", c.interval)
}

// Stop halts the periodic loop and waits for it. Safe to call repeatedly or
// on a collector that never started.
func (c *Collector) Stop() {
	c.mu.Lock()
	stopCh := c.stop
	stoppedCh := c.stopped
	c.stop = nil
	c.stopped = nil
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
		log.Debug("collector stopped")
	}
}

// SetEnabled toggles periodic collection. The loop keeps ticking while
// disabled but skips cycles.
func (c *Collector) SetEnabled(enabled bool) { c.enabled.Store(enabled) }

// IsEnabled reports whether periodic collection is on.
func (c *Collector) IsEnabled() bool { return c.enabled.Load() }

// Interval returns the periodic collection interval.
func (c *Collector) Interval() time.Duration { return c.interval }

// CollectCount returns the number of completed cycles.
func (c *Collector) CollectCount() uint64 { return c.cycles.Load() }

// LastStats returns the most recent cycle's statistics, or nil.
func (c *Collector) LastStats() *Stats { return c.lastStats.Load() }

// CollectNow runs one cycle immediately, regardless of Enabled.
func (c *Collector) CollectNow() *Stats {
	return c.cycle()
}

func (c *Collector) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if c.enabled.Load() {
				c.cycle()
			}
		}
	}
}

func (c *Collector) cycle() *Stats {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	if c.pauser != nil {
		c.pauser.StopTheWorld()
		defer c.pauser.StartTheWorld()
	}

	stats := Collect(c.heap, c.roots)
	c.cycles.Add(1)
	c.lastStats.Store(stats)

	log.Infof("gc: %d roots, %d marked, %d swept (%d bytes) in %s",
		stats.Roots, stats.Marked, stats.Swept, stats.BytesFreed, stats.Duration)
	if stats.InvalidRoots > 0 {
		log.Warningf("gc: %d roots did not resolve", stats.InvalidRoots)
	}
	return stats
}
