// Licensed under the MIT License. See LICENSE file in the project root for details.

package lfreclaim

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kianostad/lfreclaim/internal/base"
	"github.com/kianostad/lfreclaim/internal/concurrency/epoch"
)

// Default option values.
const (
	DefaultCapacity        = 1024
	DefaultRefreshInterval = epoch.DefaultRefreshInterval
	DefaultBlockSize       = 256
	DefaultInitialBlocks   = 4
	DefaultCollectInterval = epoch.DefaultCollectInterval
)

// Options holds the configuration of systems, tables, freelists and
// collectors. The zero value is usable after EnsureDefaults.
type Options struct {
	// Capacity is the number of transaction indexes a System hands out,
	// i.e. the maximum number of concurrent participants.
	Capacity int

	// RefreshInterval is the number of new global ids between two
	// opportunistic recomputations of a table's minimum active id.
	RefreshInterval uint64

	// BlockSize is the number of nodes a freelist allocates at a time. It
	// must be greater than one.
	BlockSize int

	// InitialBlocks is the number of blocks a freelist makes available on
	// construction. Values of one or less trade block size for a second
	// block.
	InitialBlocks int

	// CollectInterval is the scan period of a background Collector.
	CollectInterval time.Duration

	// Logger receives teardown and starvation messages. Defaults to a
	// logger that discards everything.
	Logger Logger
}

// EnsureDefaults fills in zero fields with their defaults and returns the
// receiver. A nil receiver yields a new Options with every default set.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.Capacity == 0 {
		o.Capacity = DefaultCapacity
	}
	if o.RefreshInterval == 0 {
		o.RefreshInterval = DefaultRefreshInterval
	}
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.InitialBlocks == 0 {
		o.InitialBlocks = DefaultInitialBlocks
	}
	if o.CollectInterval == 0 {
		o.CollectInterval = DefaultCollectInterval
	}
	if o.Logger == nil {
		o.Logger = base.NoopLogger{}
	}
	return o
}

// Validate reports every inconsistent option. It presumes EnsureDefaults
// was called.
func (o *Options) Validate() error {
	var buf strings.Builder
	if o.Capacity < 1 {
		fmt.Fprintf(&buf, "Capacity (%d) must be >= 1\n", o.Capacity)
	}
	if o.BlockSize < 2 {
		fmt.Fprintf(&buf, "BlockSize (%d) must be >= 2\n", o.BlockSize)
	}
	if o.InitialBlocks < 0 {
		fmt.Fprintf(&buf, "InitialBlocks (%d) must be >= 0\n", o.InitialBlocks)
	}
	if o.CollectInterval < 0 {
		fmt.Fprintf(&buf, "CollectInterval (%s) must be >= 0\n", o.CollectInterval)
	}
	if buf.Len() == 0 {
		return nil
	}
	return errors.Mark(errors.Newf("lfreclaim: %s", strings.TrimSuffix(buf.String(), "\n")), ErrInvalidOptions)
}
