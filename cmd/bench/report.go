// Licensed under the MIT License. See LICENSE file in the project root for details.

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/olekukonko/tablewriter"
)

// result is one row of a benchmark report.
type result struct {
	workers     int
	elapsed     time.Duration
	hist        *hdrhistogram.Histogram
	forced      int64
	outstanding uint64
	reclaimed   uint64
}

func (r result) row() []string {
	ops := r.hist.TotalCount()
	q := func(p float64) string {
		return time.Duration(r.hist.ValueAtQuantile(p)).String()
	}
	return []string{
		fmt.Sprintf("%d", r.workers),
		fmt.Sprintf("%d", ops),
		fmt.Sprintf("%.0f", float64(ops)/r.elapsed.Seconds()),
		q(50), q(95), q(99),
		time.Duration(r.hist.Max()).String(),
		fmt.Sprintf("%d", r.reclaimed),
		fmt.Sprintf("%d", r.outstanding),
		fmt.Sprintf("%d", r.forced),
	}
}

func printResults(w io.Writer, title string, results []result) {
	fmt.Fprintf(w, "\n%s\n", title)
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"Workers", "Ops", "Ops/sec", "p50", "p95", "p99", "Max", "Reclaimed", "Outstanding", "Forced"})
	for _, r := range results {
		tbl.Append(r.row())
	}
	tbl.Render()
}
