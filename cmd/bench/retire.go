// Licensed under the MIT License. See LICENSE file in the project root for details.

package main

import (
	"math/rand/v2"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kianostad/lfreclaim/internal/concurrency/epoch"
	"github.com/kianostad/lfreclaim/internal/monitoring/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var retireConfig struct {
	readRatio float64
}

var retireCmd = &cobra.Command{
	Use:   "retire",
	Short: "replace a shared node under concurrent readers",
	Args:  cobra.NoArgs,
	RunE:  runRetire,
}

// sharedNode is the value readers load. Reclaiming it marks it dead so a
// reader that still holds it can tell.
type sharedNode struct {
	epoch.Node
	dead atomic.Bool
}

func newSharedNode() *sharedNode {
	n := &sharedNode{}
	n.OnReclaim = func() { n.dead.Store(true) }
	return n
}

func runRetire(cmd *cobra.Command, args []string) error {
	if r := retireConfig.readRatio; r < 0 || r > 1 {
		return errors.Newf("read ratio %.2f outside [0, 1]", r)
	}
	var results []result
	for _, workers := range concurrency {
		r, err := retireOnce(workers)
		if err != nil {
			return err
		}
		results = append(results, r)
	}
	printResults(os.Stdout, "shared pointer retire", results)
	return nil
}

func retireOnce(workers int) (result, error) {
	sys := epoch.NewSystem(workers)
	table := epoch.NewTable(sys,
		epoch.WithRefreshInterval(refreshInterval),
		epoch.WithLogger(logger()))

	m := metrics.New(metrics.Config{SampleInterval: 0}, metrics.TableSource("shared", table))
	defer m.Close()
	stop := startCollector(m, table)

	var shared atomic.Pointer[sharedNode]
	shared.Store(newSharedNode())

	var lat latencies
	var g errgroup.Group
	start := time.Now()
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			idx, err := sys.AssignIndex()
			if err != nil {
				return err
			}
			defer sys.FreeIndex(&idx)

			d := table.Descriptor(idx)
			h := lat.worker()
			for i := 0; i < opsPerWorker; i++ {
				t := time.Now()
				if rand.Float64() < retireConfig.readRatio {
					d.StartRead()
					dead := shared.Load().dead.Load()
					d.End()
					if dead {
						return errors.Newf("worker %d read a reclaimed node", idx)
					}
				} else {
					old := shared.Swap(newSharedNode())
					d.Retire(old)
					m.RecordRetire(time.Since(t))
				}
				observe(h, time.Since(t))
			}
			return nil
		})
	}
	err := g.Wait()
	elapsed := time.Since(start)
	stop()
	if err != nil {
		return result{}, err
	}

	m.Sample()
	if err := printMetrics(m); err != nil {
		return result{}, err
	}
	r := result{
		workers:     workers,
		elapsed:     elapsed,
		hist:        lat.merged(),
		outstanding: table.Outstanding(),
		reclaimed:   table.TotalReclaimed(),
	}
	table.Close()
	return r, nil
}
