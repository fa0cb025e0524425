// Licensed under the MIT License. See LICENSE file in the project root for details.

package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	minLatency = 10 * time.Nanosecond
	maxLatency = 10 * time.Second
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 2)
}

// latencies collects one histogram per worker and merges them on demand.
// Workers record into their own histogram, so recording takes no lock.
type latencies struct {
	mu    sync.Mutex
	hists []*hdrhistogram.Histogram
}

// worker returns a histogram owned by a single worker.
func (l *latencies) worker() *hdrhistogram.Histogram {
	h := newHistogram()
	l.mu.Lock()
	l.hists = append(l.hists, h)
	l.mu.Unlock()
	return h
}

// observe clamps elapsed to the histogram range and records it.
func observe(h *hdrhistogram.Histogram, elapsed time.Duration) {
	if elapsed < minLatency {
		elapsed = minLatency
	} else if elapsed > maxLatency {
		elapsed = maxLatency
	}
	if err := h.RecordValue(elapsed.Nanoseconds()); err != nil {
		// Values are clamped to the configured range, so this never happens.
		panic(fmt.Sprintf("recording value: %s", err))
	}
}

// merged returns the union of every worker histogram.
func (l *latencies) merged() *hdrhistogram.Histogram {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := newHistogram()
	for _, h := range l.hists {
		out.Merge(h)
	}
	return out
}
