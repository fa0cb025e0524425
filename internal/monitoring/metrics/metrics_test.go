// Licensed under the MIT License. See LICENSE file in the project root for details.

package metrics

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kianostad/lfreclaim/internal/concurrency/epoch"
	"github.com/kianostad/lfreclaim/internal/storage/freelist"
	"go.uber.org/goleak"
)

type payload struct{ v int }

func (p *payload) Reset() { p.v = 0 }

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New(Config{})
	defer m.Close()

	cfg := m.GetStats().Configuration
	if cfg.BufferSize != DefaultConfig().BufferSize {
		t.Errorf("Expected default buffer size, got %d", cfg.BufferSize)
	}
	if cfg.LatencyBuffer != DefaultConfig().LatencyBuffer {
		t.Errorf("Expected default latency buffer, got %d", cfg.LatencyBuffer)
	}
}

func TestRecordEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New(DefaultConfig())
	defer m.Close()

	m.RecordClaim(100 * time.Microsecond)
	m.RecordRetire(200 * time.Microsecond)
	m.RecordScan(time.Millisecond)

	waitFor(t, func() bool {
		ops := m.GetStats().Operations
		return ops.Claim == 1 && ops.Retire == 1 && ops.Scan == 1
	})

	lat := m.GetStats().Latency
	if lat.Claim.Mean != 100*time.Microsecond {
		t.Errorf("Expected claim latency 100µs, got %v", lat.Claim.Mean)
	}
	if lat.Retire.Mean != 200*time.Microsecond {
		t.Errorf("Expected retire latency 200µs, got %v", lat.Retire.Mean)
	}
	if lat.Scan.Max != time.Millisecond {
		t.Errorf("Expected scan max 1ms, got %v", lat.Scan.Max)
	}
}

func TestDroppedEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New(Config{BufferSize: 1})
	// Stop the consumer so the buffer stays full.
	m.Close()

	m.RecordClaim(time.Microsecond)
	m.RecordClaim(time.Microsecond)
	m.RecordClaim(time.Microsecond)

	if got := m.GetStats().Operations.Dropped; got != 2 {
		t.Errorf("Expected 2 dropped events, got %d", got)
	}
}

func TestConcurrentRecording(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New(DefaultConfig())
	defer m.Close()

	const goroutines, perGoroutine = 10, 100
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				m.RecordClaim(time.Microsecond)
				m.RecordRetire(time.Microsecond)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perGoroutine)
	waitFor(t, func() bool {
		ops := m.GetStats().Operations
		return ops.Claim == want && ops.Retire == want
	})
}

func TestSampleSources(t *testing.T) {
	defer goleak.VerifyNone(t)

	sys := epoch.NewSystem(2)
	idx, err := sys.AssignIndex()
	if err != nil {
		t.Fatal(err)
	}
	table := epoch.NewTable(sys)
	fl := freelist.New[payload](sys, 4, 2)
	defer fl.Close()

	table.Descriptor(idx).Retire(&epoch.Node{})
	fl.Claim(idx)

	m := New(Config{SampleInterval: time.Millisecond},
		TableSource("table", table),
		FreelistSource("pool", fl))
	defer m.Close()

	first := m.GetStats().SampledAt
	waitFor(t, func() bool { return m.GetStats().SampledAt.After(first) })

	samples := m.GetStats().Sources
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}
	if samples[0].Source != "table" || samples[0].Retired != 1 || samples[0].Outstanding != 1 {
		t.Errorf("Unexpected table sample %+v", samples[0])
	}
	if samples[0].Pool != nil {
		t.Error("Expected no pool data for a table source")
	}
	pool := samples[1].Pool
	if pool == nil {
		t.Fatal("Expected pool data for a freelist source")
	}
	if pool.Claimed != 1 || pool.Allocated != 12 || pool.Available != 7 {
		t.Errorf("Unexpected pool sample %+v", *pool)
	}
}

func TestExportJSON(t *testing.T) {
	defer goleak.VerifyNone(t)

	table := epoch.NewTable(epoch.NewSystem(1))
	m := New(DefaultConfig(), TableSource("t", table))
	defer m.Close()

	m.RecordScan(time.Millisecond)
	waitFor(t, func() bool { return m.GetStats().Operations.Scan == 1 })

	data, err := m.ExportJSON()
	if err != nil {
		t.Fatal(err)
	}
	var parsed Snapshot
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Expected valid JSON, got error: %v", err)
	}
	if parsed.Operations.Scan != 1 || len(parsed.Sources) != 1 {
		t.Errorf("Unexpected round trip %+v", parsed)
	}
}

func TestExportPrometheus(t *testing.T) {
	defer goleak.VerifyNone(t)

	fl := freelist.New[payload](epoch.NewSystem(1), 4, 2)
	defer fl.Close()
	m := New(DefaultConfig(), FreelistSource("pool", fl))
	defer m.Close()

	m.RecordClaim(time.Microsecond)
	waitFor(t, func() bool { return m.GetStats().Operations.Claim == 1 })

	out, err := m.ExportPrometheus()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	for _, want := range []string{
		`lfreclaim_operations_total{operation="claim"} 1`,
		`lfreclaim_operations_total{operation="scan"} 0`,
		`lfreclaim_events_dropped_total 0`,
		`lfreclaim_outstanding{source="pool"} 0`,
		`lfreclaim_pool_nodes{source="pool",state="available"} 8`,
		`lfreclaim_pool_nodes{source="pool",state="backbuffer"} 4`,
		`# TYPE lfreclaim_retired_total counter`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected export to contain %q:\n%s", want, out)
		}
	}
}

func TestRingBufferAverage(t *testing.T) {
	rb := NewDurationRingBuffer(5)
	rb.Push(100 * time.Microsecond)
	rb.Push(200 * time.Microsecond)
	rb.Push(300 * time.Microsecond)

	if avg := rb.Average(); avg != 200*time.Microsecond {
		t.Errorf("Expected average 200µs, got %v", avg)
	}
}

func TestRingBufferOverflow(t *testing.T) {
	rb := NewDurationRingBuffer(3)
	for i := 1; i <= 4; i++ {
		rb.Push(time.Duration(i*100) * time.Microsecond)
	}

	if rb.Len() != 3 {
		t.Errorf("Expected 3 samples, got %d", rb.Len())
	}
	// The oldest sample (100µs) was overwritten.
	if avg := rb.Average(); avg != 300*time.Microsecond {
		t.Errorf("Expected average 300µs, got %v", avg)
	}
}

func TestRingBufferEmpty(t *testing.T) {
	rb := NewDurationRingBuffer(0)
	if rb.Average() != 0 {
		t.Error("Expected zero average for an empty buffer")
	}
	if rb.Stats() != (LatencyStats{}) {
		t.Error("Expected zero stats for an empty buffer")
	}
}

func TestRingBufferStats(t *testing.T) {
	rb := NewDurationRingBuffer(10)
	for i := 5; i >= 1; i-- {
		rb.Push(time.Duration(i*100) * time.Microsecond)
	}

	stats := rb.Stats()
	if stats.Count != 5 {
		t.Errorf("Expected count 5, got %d", stats.Count)
	}
	if stats.Min != 100*time.Microsecond || stats.Max != 500*time.Microsecond {
		t.Errorf("Expected range 100µs..500µs, got %v..%v", stats.Min, stats.Max)
	}
	if stats.Mean != 300*time.Microsecond || stats.P50 != 300*time.Microsecond {
		t.Errorf("Expected mean and p50 300µs, got %v and %v", stats.Mean, stats.P50)
	}
	// Nearest rank over 5 values: index int(4*0.95) = 3.
	if stats.P95 != 400*time.Microsecond || stats.P99 != 400*time.Microsecond {
		t.Errorf("Expected p95 and p99 400µs, got %v and %v", stats.P95, stats.P99)
	}
}
