// Licensed under the MIT License. See LICENSE file in the project root for details.

package main

import (
	"os"
	"time"

	"github.com/kianostad/lfreclaim/internal/base"
	"github.com/kianostad/lfreclaim/internal/concurrency/epoch"
	"github.com/kianostad/lfreclaim/internal/monitoring/metrics"
	"github.com/kianostad/lfreclaim/internal/storage/freelist"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// claimBatch is how many nodes a worker holds before retiring them.
const claimBatch = 8

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "claim and retire freelist nodes",
	Args:  cobra.NoArgs,
	RunE:  runClaim,
}

type record struct {
	key, val uint64
}

func (r *record) Reset() { *r = record{} }

func logger() base.Logger {
	if verbose {
		return base.DefaultLogger{}
	}
	return base.NoopLogger{}
}

func runClaim(cmd *cobra.Command, args []string) error {
	var results []result
	for _, workers := range concurrency {
		r, err := claimOnce(workers)
		if err != nil {
			return err
		}
		results = append(results, r)
	}
	printResults(os.Stdout, "claim/retire", results)
	return nil
}

func claimOnce(workers int) (result, error) {
	sys := epoch.NewSystem(workers)
	fl := freelist.New[record](sys, blockSize, initialBlocks,
		freelist.WithRefreshInterval(refreshInterval),
		freelist.WithLogger(logger()))

	m := metrics.New(metrics.Config{SampleInterval: 0}, metrics.FreelistSource("freelist", fl))
	defer m.Close()
	stop := startCollector(m, fl.Table())

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

			h := lat.worker()
			held := make([]*freelist.Node[record], 0, claimBatch)
			for i := 0; i < opsPerWorker; i++ {
				t := time.Now()
				n := fl.Claim(idx)
				elapsed := time.Since(t)
				observe(h, elapsed)
				m.RecordClaim(elapsed)

				n.Value.key = uint64(i)
				held = append(held, n)
				if len(held) == claimBatch {
					t = time.Now()
					for _, n := range held {
						fl.Retire(idx, n)
					}
					m.RecordRetire(time.Since(t) / claimBatch)
					held = held[:0]
				}
			}
			for _, n := range held {
				fl.Retire(idx, n)
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
	s := fl.Stats()
	r := result{
		workers:     workers,
		elapsed:     elapsed,
		hist:        lat.merged(),
		forced:      s.Forced,
		outstanding: uint64(s.Retired),
		reclaimed:   fl.Table().TotalReclaimed(),
	}
	if err := fl.CheckInvariants(); err != nil {
		return result{}, err
	}
	fl.Close()
	return r, nil
}

// startCollector starts a background collector over tables, if enabled,
// and returns a function stopping it.
func startCollector(m *metrics.Metrics, tables ...*epoch.Table) func() {
	if collectInterval <= 0 {
		return func() {}
	}
	c := epoch.NewCollector(collectInterval, tables...)
	c.SetLogger(logger())
	c.OnScan(m.RecordScan)
	c.Start()
	return c.Stop
}

func printMetrics(m *metrics.Metrics) error {
	if !showMetrics {
		return nil
	}
	text, err := m.ExportPrometheus()
	if err != nil {
		return err
	}
	_, err = os.Stdout.WriteString(text)
	return err
}
