// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main provides stress benchmarks for the reclamation library.
//
// Each command runs a workload at several concurrency levels and prints a
// table of throughput and latency percentiles collected in HDR histograms.
//
// # Usage
//
//	go run ./cmd/bench claim -c 1,2,4,8 -n 100000
//	go run ./cmd/bench retire -c 4,16 --read-ratio 0.9 --metrics
//	go run ./cmd/bench index -c 8 --keys 4096 --buckets 1024
//
// # Commands
//
//   - claim: every worker claims freelist nodes and retires them in
//     batches, exercising the available list, backbuffer swaps and
//     recycling
//   - retire: workers share a single pointer; readers open read windows
//     and load it, writers replace it and retire the old node
//   - index: workers read and overwrite keys of a hash index whose
//     bucket snapshots are recycled through a freelist
//
// # Dangers and Warnings
//
//   - **Resource Consumption**: High concurrency levels saturate every core.
//   - **Garbage Collection**: Go's GC may impact results unpredictably.
package main

import (
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	concurrency     []int
	opsPerWorker    int
	blockSize       int
	initialBlocks   int
	refreshInterval uint64
	collectInterval time.Duration
	showMetrics     bool
	verbose         bool
)

var rootCmd = &cobra.Command{
	Use:   "bench [command] (flags)",
	Short: "lfreclaim stress benchmarks",
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(claimCmd, retireCmd, indexCmd)

	for _, cmd := range []*cobra.Command{claimCmd, retireCmd, indexCmd} {
		cmd.Flags().IntSliceVarP(
			&concurrency, "concurrency", "c", []int{1, 2, 4, 8, 16, 32}, "worker counts to run, in order")
		cmd.Flags().IntVarP(
			&opsPerWorker, "ops", "n", 100000, "operations per worker")
		cmd.Flags().Uint64Var(
			&refreshInterval, "refresh-interval", 100, "new ids between opportunistic minimum refreshes")
		cmd.Flags().DurationVar(
			&collectInterval, "collect-interval", 10*time.Millisecond, "background collector period (0 disables)")
		cmd.Flags().BoolVar(
			&showMetrics, "metrics", false, "print Prometheus metrics after each run")
		cmd.Flags().BoolVarP(
			&verbose, "verbose", "v", false, "log collector and freelist events")
	}

	claimCmd.Flags().IntVar(
		&blockSize, "block-size", 256, "freelist block size")
	claimCmd.Flags().IntVar(
		&initialBlocks, "initial-blocks", 4, "freelist blocks made available up front")

	retireCmd.Flags().Float64Var(
		&retireConfig.readRatio, "read-ratio", 0.9, "fraction of operations that only read")

	indexCmd.Flags().IntVar(
		&indexConfig.keys, "keys", 4096, "number of keys in the index")
	indexCmd.Flags().Uint64Var(
		&indexConfig.buckets, "buckets", 1024, "bucket count (power of 2)")
	indexCmd.Flags().Float64Var(
		&indexConfig.readRatio, "read-ratio", 0.9, "fraction of operations that only read")

	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}
