// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package metrics provides monitoring and observability for reclamation
// tables and freelists.
//
// A Metrics instance owns one background goroutine. It consumes latency
// events (claims, retires and collector scans) from a buffered channel into
// ring buffers, and periodically samples a set of Sources for their retire,
// reclaim and pool counters.
//
// # Key Features
//
//   - Non-blocking event recording; events are dropped when the buffer is full
//   - Bounded latency history per operation with percentile summaries
//   - Periodic sampling of tables and freelists
//   - Prometheus text and JSON exports
//   - A prometheus.Collector for registry-based scraping
//
// # Usage Examples
//
//	m := metrics.New(metrics.DefaultConfig(),
//	    metrics.FreelistSource("nodes", fl))
//	defer m.Close()
//
//	collector := epoch.NewCollector(0, fl.Table())
//	collector.OnScan(m.RecordScan)
//	collector.Start()
//	defer collector.Stop()
//
//	start := time.Now()
//	n := fl.Claim(idx)
//	m.RecordClaim(time.Since(start))
//
//	text, err := m.ExportPrometheus()
//
// # Dangers and Warnings
//
//   - **Background Goroutine**: Close must be called to stop it.
//   - **Event Loss**: Events are dropped rather than blocking the caller;
//     the dropped count is reported.
//   - **Stale Samples**: Source samples are as old as the sample interval.
package metrics

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Event types.
const (
	EventClaim  = "claim"
	EventRetire = "retire"
	EventScan   = "scan"
)

// Config configures a Metrics instance.
type Config struct {
	// BufferSize is the capacity of the event channel.
	BufferSize int `json:"buffer_size"`
	// LatencyBuffer is the number of samples kept per event type.
	LatencyBuffer int `json:"latency_buffer"`
	// SampleInterval is how often sources are sampled. Zero disables
	// periodic sampling; Sample can still be called directly.
	SampleInterval time.Duration `json:"sample_interval"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:     10000,
		LatencyBuffer:  1000,
		SampleInterval: time.Second,
	}
}

// Event is a single recorded operation.
type Event struct {
	Type     string
	Duration time.Duration
}

// OperationCounts counts recorded events by type.
type OperationCounts struct {
	Claim   uint64 `json:"claim"`
	Retire  uint64 `json:"retire"`
	Scan    uint64 `json:"scan"`
	Dropped uint64 `json:"dropped"`
}

// LatencyMetrics holds the latency summaries by event type.
type LatencyMetrics struct {
	Claim  LatencyStats `json:"claim"`
	Retire LatencyStats `json:"retire"`
	Scan   LatencyStats `json:"scan"`
}

// Snapshot is a complete view of the collected metrics.
type Snapshot struct {
	Operations    OperationCounts `json:"operations"`
	Latency       LatencyMetrics  `json:"latency"`
	Sources       []Sample        `json:"sources"`
	SampledAt     time.Time       `json:"sampled_at"`
	Configuration Config          `json:"config"`
}

// Metrics collects events and source samples.
type Metrics struct {
	config  Config
	sources []Source
	events  chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	counts    OperationCounts
	latencies map[string]*DurationRingBuffer
	samples   []Sample
	sampledAt time.Time
}

// New creates a Metrics instance observing sources and starts its
// background goroutine.
func New(config Config, sources ...Source) *Metrics {
	def := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	if config.LatencyBuffer <= 0 {
		config.LatencyBuffer = def.LatencyBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Metrics{
		config:  config,
		sources: sources,
		events:  make(chan Event, config.BufferSize),
		ctx:     ctx,
		cancel:  cancel,
		latencies: map[string]*DurationRingBuffer{
			EventClaim:  NewDurationRingBuffer(config.LatencyBuffer),
			EventRetire: NewDurationRingBuffer(config.LatencyBuffer),
			EventScan:   NewDurationRingBuffer(config.LatencyBuffer),
		},
	}
	m.Sample()

	m.wg.Add(1)
	go m.run()
	return m
}

// run processes events and samples sources until Close.
func (m *Metrics) run() {
	defer m.wg.Done()

	var tick <-chan time.Time
	if m.config.SampleInterval > 0 {
		ticker := time.NewTicker(m.config.SampleInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case ev := <-m.events:
			m.process(ev)
		case <-tick:
			m.Sample()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Metrics) process(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Type {
	case EventClaim:
		m.counts.Claim++
	case EventRetire:
		m.counts.Retire++
	case EventScan:
		m.counts.Scan++
	default:
		return
	}
	m.latencies[ev.Type].Push(ev.Duration)
}

func (m *Metrics) record(typ string, d time.Duration) {
	select {
	case m.events <- Event{Type: typ, Duration: d}:
	default:
		m.mu.Lock()
		m.counts.Dropped++
		m.mu.Unlock()
	}
}

// RecordClaim records the latency of a freelist claim.
func (m *Metrics) RecordClaim(d time.Duration) { m.record(EventClaim, d) }

// RecordRetire records the latency of a retire.
func (m *Metrics) RecordRetire(d time.Duration) { m.record(EventRetire, d) }

// RecordScan records the duration of a collector scan cycle. Its signature
// matches epoch.Collector.OnScan.
func (m *Metrics) RecordScan(d time.Duration) { m.record(EventScan, d) }

// Sample observes every source now.
func (m *Metrics) Sample() {
	samples := make([]Sample, 0, len(m.sources))
	for _, s := range m.sources {
		samples = append(samples, s.Sample())
	}
	m.mu.Lock()
	m.samples = samples
	m.sampledAt = time.Now()
	m.mu.Unlock()
}

// GetStats returns a snapshot of the current metrics.
func (m *Metrics) GetStats() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Snapshot{
		Operations: m.counts,
		Latency: LatencyMetrics{
			Claim:  m.latencies[EventClaim].Stats(),
			Retire: m.latencies[EventRetire].Stats(),
			Scan:   m.latencies[EventScan].Stats(),
		},
		Sources:       append([]Sample(nil), m.samples...),
		SampledAt:     m.sampledAt,
		Configuration: m.config,
	}
}

// ExportPrometheus renders the snapshot in the Prometheus text format.
// It goes through the same descriptors as Collector, so a scrape and an
// export name every series identically.
func (m *Metrics) ExportPrometheus() (string, error) {
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(snapshotCollector{stats: m.GetStats()}); err != nil {
		return "", errors.Wrap(err, "metrics: registering snapshot")
	}
	families, err := reg.Gather()
	if err != nil {
		return "", errors.Wrap(err, "metrics: gathering snapshot")
	}
	var b strings.Builder
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&b, mf); err != nil {
			return "", errors.Wrapf(err, "metrics: encoding %s", mf.GetName())
		}
	}
	return b.String(), nil
}

// ExportJSON renders the snapshot as indented JSON.
func (m *Metrics) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(m.GetStats(), "", "  ")
}

// Close stops the background goroutine. Events recorded after Close are
// never processed.
func (m *Metrics) Close() {
	m.cancel()
	m.wg.Wait()
}
