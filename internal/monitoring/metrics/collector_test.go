// Licensed under the MIT License. See LICENSE file in the project root for details.

package metrics

import (
	"strings"
	"testing"

	"github.com/kianostad/lfreclaim/internal/concurrency/epoch"
	"github.com/kianostad/lfreclaim/internal/storage/freelist"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, c prometheus.Collector) map[string][]*dto.Metric {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)

	out := map[string][]*dto.Metric{}
	for _, f := range families {
		out[f.GetName()] = f.GetMetric()
	}
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestCollectorTable(t *testing.T) {
	sys := epoch.NewSystem(2)
	table := epoch.NewTable(sys)
	d := table.Descriptor(0)
	for i := 0; i < 3; i++ {
		d.Retire(&epoch.Node{})
	}
	table.ComputeMinActiveID()
	d.ReclaimEligible()
	d.Retire(&epoch.Node{})

	got := gather(t, NewCollector(TableSource("index", table)))

	require.Len(t, got["lfreclaim_retired_total"], 1)
	m := got["lfreclaim_retired_total"][0]
	require.Equal(t, "index", labelValue(m, "source"))
	require.Equal(t, 4.0, m.GetCounter().GetValue())
	require.Equal(t, 3.0, got["lfreclaim_reclaimed_total"][0].GetCounter().GetValue())
	require.Equal(t, 1.0, got["lfreclaim_outstanding"][0].GetGauge().GetValue())
	require.Equal(t, 0.0, got["lfreclaim_active_participants"][0].GetGauge().GetValue())
	require.NotContains(t, got, "lfreclaim_pool_nodes")
}

func TestCollectorFreelist(t *testing.T) {
	sys := epoch.NewSystem(2)
	idx, err := sys.AssignIndex()
	require.NoError(t, err)
	fl := freelist.New[payload](sys, 4, 2)
	defer fl.Close()
	fl.Claim(idx)
	fl.Claim(idx)

	got := gather(t, NewCollector(FreelistSource("pool", fl)))

	states := map[string]float64{}
	for _, m := range got["lfreclaim_pool_nodes"] {
		require.Equal(t, "pool", labelValue(m, "source"))
		states[labelValue(m, "state")] = m.GetGauge().GetValue()
	}
	require.Equal(t, map[string]float64{"available": 6, "backbuffer": 4, "claimed": 2}, states)
	require.Equal(t, 12.0, got["lfreclaim_pool_allocated_nodes"][0].GetGauge().GetValue())
	require.Equal(t, 0.0, got["lfreclaim_pool_forced_allocations_total"][0].GetCounter().GetValue())
}

func TestExportMatchesCollector(t *testing.T) {
	fl := freelist.New[payload](epoch.NewSystem(1), 4, 2)
	defer fl.Close()
	src := FreelistSource("pool", fl)

	m := New(Config{SampleInterval: 0}, src)
	defer m.Close()
	m.Sample()

	text, err := m.ExportPrometheus()
	require.NoError(t, err)
	for name := range gather(t, NewCollector(src)) {
		require.True(t, strings.Contains(text, "# TYPE "+name+" "), "export is missing %s:\n%s", name, text)
	}
}
