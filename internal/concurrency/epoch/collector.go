// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kianostad/lfreclaim/internal/base"
)

// DefaultCollectInterval is the collector's default scan period.
const DefaultCollectInterval = 100 * time.Millisecond

// Collector recomputes the minimum active id of a set of tables in the
// background. Tables also refresh opportunistically every refresh interval
// of new ids; the collector bounds how stale the minimum gets when id
// allocation is slow.
type Collector struct {
	tables   []*Table
	interval time.Duration
	logger   base.Logger
	onScan   func(time.Duration)

	started atomic.Bool
	stop    atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewCollector creates a collector scanning tables every interval. A
// non-positive interval selects DefaultCollectInterval.
func NewCollector(interval time.Duration, tables ...*Table) *Collector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &Collector{
		tables:   tables,
		interval: interval,
		logger:   base.NoopLogger{},
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger. It must be called before Start.
func (c *Collector) SetLogger(l base.Logger) {
	if l != nil {
		c.logger = l
	}
}

// OnScan registers a hook receiving the duration of every scan cycle. It
// must be called before Start.
func (c *Collector) OnScan(fn func(time.Duration)) {
	c.onScan = fn
}

// Start begins background collection. Starting a stopped or already
// running collector does nothing.
func (c *Collector) Start() {
	if c.stop.Load() || !c.started.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go c.run()
	c.logger.Infof("epoch: collector started over %d tables, interval %s", len(c.tables), c.interval)
}

// Stop gracefully stops the collector and waits for the background
// goroutine to exit.
func (c *Collector) Stop() {
	if c.stop.Swap(true) {
		return
	}
	close(c.done)
	c.wg.Wait()
	if c.started.Load() {
		c.logger.Infof("epoch: collector stopped")
	}
}

// run is the main collection loop.
func (c *Collector) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.done:
			return
		}
	}
}

// collect performs one scan cycle.
func (c *Collector) collect() {
	start := time.Now()
	for _, t := range c.tables {
		if t.closed.Load() {
			continue
		}
		t.ComputeMinActiveID()
	}
	if c.onScan != nil {
		c.onScan(time.Since(start))
	}
}

// ForceCollect performs an immediate scan cycle on the calling goroutine.
func (c *Collector) ForceCollect() {
	c.collect()
}
