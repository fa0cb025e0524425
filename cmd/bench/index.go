// Licensed under the MIT License. See LICENSE file in the project root for details.

package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kianostad/lfreclaim/internal/concurrency/epoch"
	"github.com/kianostad/lfreclaim/internal/monitoring/metrics"
	"github.com/kianostad/lfreclaim/internal/storage/freelist"
	"github.com/kianostad/lfreclaim/internal/storage/index"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var indexConfig struct {
	keys      int
	buckets   uint64
	readRatio float64
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "mixed reads and writes against a snapshot hash index",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	if r := indexConfig.readRatio; r < 0 || r > 1 {
		return errors.Newf("read ratio %.2f outside [0, 1]", r)
	}
	if indexConfig.keys <= 0 {
		return errors.Newf("key count %d must be positive", indexConfig.keys)
	}
	var results []result
	for _, workers := range concurrency {
		r, err := indexOnce(workers)
		if err != nil {
			return err
		}
		results = append(results, r)
	}
	printResults(os.Stdout, "hash index", results)
	return nil
}

func indexOnce(workers int) (result, error) {
	sys := epoch.NewSystem(workers + 1)
	h, err := newIndex(sys)
	if err != nil {
		return result{}, err
	}

	m := metrics.New(metrics.Config{SampleInterval: 0}, metrics.FreelistSource("index", h))
	defer m.Close()
	stop := startCollector(m, h.Table())

	keys := make([][]byte, indexConfig.keys)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%08d", i))
	}
	if err := populate(sys, h, keys); err != nil {
		return result{}, err
	}

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

			hist := lat.worker()
			for i := 0; i < opsPerWorker; i++ {
				k := rand.IntN(len(keys))
				t := time.Now()
				if rand.Float64() < indexConfig.readRatio {
					// Keys are never deleted, so a miss means a bucket was
					// recycled under a reader.
					if v, ok := h.Get(idx, keys[k]); !ok || v%len(keys) != k {
						return errors.Newf("worker %d: key %d read %d, %t", idx, k, v, ok)
					}
				} else {
					h.Put(idx, keys[k], k+len(keys)*i)
					m.RecordRetire(time.Since(t))
				}
				observe(hist, time.Since(t))
			}
			return nil
		})
	}
	err = g.Wait()
	elapsed := time.Since(start)
	stop()
	if err != nil {
		return result{}, err
	}

	m.Sample()
	if err := printMetrics(m); err != nil {
		return result{}, err
	}
	s := h.Stats()
	r := result{
		workers:     workers,
		elapsed:     elapsed,
		hist:        lat.merged(),
		forced:      s.Forced,
		outstanding: uint64(s.Retired),
		reclaimed:   h.Table().TotalReclaimed(),
	}
	if err := h.CheckInvariants(); err != nil {
		return result{}, err
	}
	h.Close()
	return r, nil
}

func newIndex(sys *epoch.System) (h *index.HashIndex[int], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("bucket count %d: %v", indexConfig.buckets, r)
		}
	}()
	return index.NewHashIndex[int](sys, indexConfig.buckets,
		freelist.WithRefreshInterval(refreshInterval),
		freelist.WithLogger(logger())), nil
}

func populate(sys *epoch.System, h *index.HashIndex[int], keys [][]byte) error {
	idx, err := sys.AssignIndex()
	if err != nil {
		return err
	}
	defer sys.FreeIndex(&idx)
	for i, k := range keys {
		h.Put(idx, k, i)
	}
	return nil
}
