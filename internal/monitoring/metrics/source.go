// Licensed under the MIT License. See LICENSE file in the project root for details.

package metrics

import (
	"github.com/kianostad/lfreclaim/internal/concurrency/epoch"
	"github.com/kianostad/lfreclaim/internal/storage/freelist"
)

// Sample is one observation of a reclamation source.
type Sample struct {
	Source      string `json:"source"`
	Capacity    int    `json:"capacity"`
	Active      int    `json:"active"`
	GlobalID    uint64 `json:"global_id"`
	MinActiveID uint64 `json:"min_active_id"`
	Retired     uint64 `json:"retired"`
	Reclaimed   uint64 `json:"reclaimed"`
	Outstanding uint64 `json:"outstanding"`

	// Pool is set for freelist sources.
	Pool *PoolSample `json:"pool,omitempty"`
}

// PoolSample carries a freelist's node accounting.
type PoolSample struct {
	Blocks     int   `json:"blocks"`
	Allocated  int64 `json:"allocated"`
	Available  int64 `json:"available"`
	Backbuffer int64 `json:"backbuffer"`
	Claimed    int64 `json:"claimed"`
	Forced     int64 `json:"forced"`
}

// Source is anything the sampler can observe.
type Source interface {
	Name() string
	Sample() Sample
}

type tableSource struct {
	name  string
	table *epoch.Table
}

// TableSource observes a transaction table.
func TableSource(name string, t *epoch.Table) Source {
	return tableSource{name: name, table: t}
}

func (s tableSource) Name() string { return s.name }

func (s tableSource) Sample() Sample {
	return sampleTable(s.name, s.table)
}

func sampleTable(name string, t *epoch.Table) Sample {
	st := t.Stats()
	return Sample{
		Source:      name,
		Capacity:    st.Capacity,
		Active:      st.Active,
		GlobalID:    uint64(st.GlobalID),
		MinActiveID: uint64(st.MinActiveID),
		Retired:     st.Retired,
		Reclaimed:   st.Reclaimed,
		Outstanding: st.Outstanding,
	}
}

// Pool is the part of a freelist the sampler reads. Every
// *freelist.Freelist satisfies it.
type Pool interface {
	Table() *epoch.Table
	Stats() freelist.Stats
}

type poolSource struct {
	name string
	pool Pool
}

// FreelistSource observes a freelist and its private table.
func FreelistSource(name string, p Pool) Source {
	return poolSource{name: name, pool: p}
}

func (s poolSource) Name() string { return s.name }

func (s poolSource) Sample() Sample {
	smp := sampleTable(s.name, s.pool.Table())
	st := s.pool.Stats()
	smp.Pool = &PoolSample{
		Blocks:     st.Blocks,
		Allocated:  st.Allocated,
		Available:  st.Available,
		Backbuffer: st.Backbuffer,
		Claimed:    st.Claimed,
		Forced:     st.Forced,
	}
	return smp
}
