// Licensed under the MIT License. See LICENSE file in the project root for details.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var sourceLabel = []string{"source"}

var (
	descRetired = prometheus.NewDesc("lfreclaim_retired_total",
		"Nodes retired.", sourceLabel, nil)
	descReclaimed = prometheus.NewDesc("lfreclaim_reclaimed_total",
		"Nodes reclaimed.", sourceLabel, nil)
	descOutstanding = prometheus.NewDesc("lfreclaim_outstanding",
		"Retired nodes awaiting reclamation.", sourceLabel, nil)
	descActive = prometheus.NewDesc("lfreclaim_active_participants",
		"Descriptors with an open window.", sourceLabel, nil)
	descLag = prometheus.NewDesc("lfreclaim_min_active_lag",
		"Distance between the global id and the cached minimum active id.", sourceLabel, nil)
	descPoolNodes = prometheus.NewDesc("lfreclaim_pool_nodes",
		"Freelist nodes by state.", []string{"source", "state"}, nil)
	descPoolAllocated = prometheus.NewDesc("lfreclaim_pool_allocated_nodes",
		"Freelist nodes allocated.", sourceLabel, nil)
	descPoolForced = prometheus.NewDesc("lfreclaim_pool_forced_allocations_total",
		"Blocks allocated while the backbuffer was starved.", sourceLabel, nil)

	descOperations = prometheus.NewDesc("lfreclaim_operations_total",
		"Recorded operations by type.", []string{"operation"}, nil)
	descDropped = prometheus.NewDesc("lfreclaim_events_dropped_total",
		"Events dropped because the buffer was full.", nil, nil)
	descLatency = prometheus.NewDesc("lfreclaim_latency_nanoseconds",
		"Mean latency by operation.", []string{"operation"}, nil)
)

// Collector exposes sources to a Prometheus registry. Sources are sampled
// on every scrape.
type Collector struct {
	sources []Source
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over sources.
func NewCollector(sources ...Source) *Collector {
	return &Collector{sources: sources}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descRetired
	ch <- descReclaimed
	ch <- descOutstanding
	ch <- descActive
	ch <- descLag
	ch <- descPoolNodes
	ch <- descPoolAllocated
	ch <- descPoolForced
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, src := range c.sources {
		collectSample(ch, src.Sample())
	}
}

func collectSample(ch chan<- prometheus.Metric, s Sample) {
	name := s.Source
	ch <- prometheus.MustNewConstMetric(descRetired, prometheus.CounterValue, float64(s.Retired), name)
	ch <- prometheus.MustNewConstMetric(descReclaimed, prometheus.CounterValue, float64(s.Reclaimed), name)
	ch <- prometheus.MustNewConstMetric(descOutstanding, prometheus.GaugeValue, float64(s.Outstanding), name)
	ch <- prometheus.MustNewConstMetric(descActive, prometheus.GaugeValue, float64(s.Active), name)

	var lag float64
	if s.GlobalID > s.MinActiveID {
		lag = float64(s.GlobalID - s.MinActiveID)
	}
	ch <- prometheus.MustNewConstMetric(descLag, prometheus.GaugeValue, lag, name)

	if p := s.Pool; p != nil {
		ch <- prometheus.MustNewConstMetric(descPoolNodes, prometheus.GaugeValue, float64(p.Available), name, "available")
		ch <- prometheus.MustNewConstMetric(descPoolNodes, prometheus.GaugeValue, float64(p.Backbuffer), name, "backbuffer")
		ch <- prometheus.MustNewConstMetric(descPoolNodes, prometheus.GaugeValue, float64(p.Claimed), name, "claimed")
		ch <- prometheus.MustNewConstMetric(descPoolAllocated, prometheus.GaugeValue, float64(p.Allocated), name)
		ch <- prometheus.MustNewConstMetric(descPoolForced, prometheus.CounterValue, float64(p.Forced), name)
	}
}

// snapshotCollector exposes a Snapshot taken earlier: the recorded
// operations plus the samples cached at that time.
type snapshotCollector struct {
	stats Snapshot
}

func (c snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	ops := c.stats.Operations
	lat := c.stats.Latency
	for _, op := range []struct {
		name  string
		count uint64
		mean  time.Duration
	}{
		{EventClaim, ops.Claim, lat.Claim.Mean},
		{EventRetire, ops.Retire, lat.Retire.Mean},
		{EventScan, ops.Scan, lat.Scan.Mean},
	} {
		ch <- prometheus.MustNewConstMetric(descOperations, prometheus.CounterValue, float64(op.count), op.name)
		ch <- prometheus.MustNewConstMetric(descLatency, prometheus.GaugeValue, float64(op.mean.Nanoseconds()), op.name)
	}
	ch <- prometheus.MustNewConstMetric(descDropped, prometheus.CounterValue, float64(ops.Dropped))
	for _, s := range c.stats.Sources {
		collectSample(ch, s)
	}
}
