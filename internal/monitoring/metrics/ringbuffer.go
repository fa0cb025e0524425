// Licensed under the MIT License. See LICENSE file in the project root for details.

package metrics

import (
	"sort"
	"sync"
	"time"
)

// LatencyStats summarizes the samples held by a DurationRingBuffer.
type LatencyStats struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

// DurationRingBuffer is a bounded, mutex-guarded ring of durations. Once
// full, each push overwrites the oldest sample.
type DurationRingBuffer struct {
	mu    sync.RWMutex
	buf   []time.Duration
	next  int
	count int
}

// NewDurationRingBuffer creates a ring holding up to capacity samples. A
// non-positive capacity is raised to one.
func NewDurationRingBuffer(capacity int) *DurationRingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &DurationRingBuffer{buf: make([]time.Duration, capacity)}
}

// Push records a sample.
func (rb *DurationRingBuffer) Push(d time.Duration) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buf[rb.next] = d
	rb.next = (rb.next + 1) % len(rb.buf)
	if rb.count < len(rb.buf) {
		rb.count++
	}
}

// Len returns the number of samples held.
func (rb *DurationRingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Average returns the mean of the held samples, or zero.
func (rb *DurationRingBuffer) Average() time.Duration {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range rb.samplesLocked() {
		total += d
	}
	return total / time.Duration(rb.count)
}

// Stats computes summary statistics over the held samples.
func (rb *DurationRingBuffer) Stats() LatencyStats {
	rb.mu.RLock()
	values := append([]time.Duration(nil), rb.samplesLocked()...)
	rb.mu.RUnlock()

	if len(values) == 0 {
		return LatencyStats{}
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	var total time.Duration
	for _, v := range values {
		total += v
	}
	return LatencyStats{
		Count: uint64(len(values)),
		Min:   values[0],
		Max:   values[len(values)-1],
		Mean:  total / time.Duration(len(values)),
		P50:   percentile(values, 0.50),
		P95:   percentile(values, 0.95),
		P99:   percentile(values, 0.99),
	}
}

// samplesLocked returns the held samples in buffer order. Order does not
// matter to any caller.
func (rb *DurationRingBuffer) samplesLocked() []time.Duration {
	return rb.buf[:rb.count]
}

// percentile returns the nearest-rank percentile of sorted values.
func percentile(sorted []time.Duration, p float64) time.Duration {
	return sorted[int(float64(len(sorted)-1)*p)]
}
