// Licensed under the MIT License. See LICENSE file in the project root for details.

package lfreclaim

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kianostad/lfreclaim/internal/base"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

type entry struct{ key, val uint64 }

func (e *entry) Reset() { *e = entry{} }

func TestOptions(t *testing.T) {
	Convey("Given nil options", t, func() {
		var opts *Options

		Convey("When ensuring defaults", func() {
			opts = opts.EnsureDefaults()

			Convey("Then every field has its default", func() {
				So(opts.Capacity, ShouldEqual, DefaultCapacity)
				So(opts.RefreshInterval, ShouldEqual, DefaultRefreshInterval)
				So(opts.BlockSize, ShouldEqual, DefaultBlockSize)
				So(opts.InitialBlocks, ShouldEqual, DefaultInitialBlocks)
				So(opts.CollectInterval, ShouldEqual, DefaultCollectInterval)
				So(opts.Logger, ShouldHaveSameTypeAs, base.NoopLogger{})
				So(opts.Validate(), ShouldBeNil)
			})
		})
	})

	Convey("Given options with set fields", t, func() {
		opts := &Options{Capacity: 8, BlockSize: 16}
		opts.EnsureDefaults()

		Convey("Then set fields are kept", func() {
			So(opts.Capacity, ShouldEqual, 8)
			So(opts.BlockSize, ShouldEqual, 16)
		})
	})

	Convey("Given invalid options", t, func() {
		opts := (&Options{Capacity: -1, BlockSize: 1, InitialBlocks: -2}).EnsureDefaults()
		err := opts.Validate()

		Convey("Then every problem is reported", func() {
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrInvalidOptions), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "Capacity (-1)")
			So(err.Error(), ShouldContainSubstring, "BlockSize (1)")
			So(err.Error(), ShouldContainSubstring, "InitialBlocks (-2)")
		})

		Convey("Then constructors refuse them", func() {
			sys, err := NewSystem(opts)
			So(sys, ShouldBeNil)
			So(errors.Is(err, ErrInvalidOptions), ShouldBeTrue)

			fl, err := NewFreelist[entry](newTestSystem(t), opts)
			So(fl, ShouldBeNil)
			So(errors.Is(err, ErrInvalidOptions), ShouldBeTrue)
		})
	})
}

// newTestSystem builds a small system.
func newTestSystem(t *testing.T) *System {
	sys, err := NewSystem(&Options{Capacity: 4})
	if err != nil {
		t.Fatal(err)
	}
	return sys
}

func TestPublicAPI(t *testing.T) {
	defer goleak.VerifyNone(t)

	Convey("Given a system, a table and a freelist built from options", t, func() {
		opts := &Options{Capacity: 4, BlockSize: 8, InitialBlocks: 2, CollectInterval: time.Millisecond}
		sys, err := NewSystem(opts)
		So(err, ShouldBeNil)

		idx, err := sys.AssignIndex()
		So(err, ShouldBeNil)
		So(idx, ShouldNotEqual, InvalidIndex)

		table := NewTable(sys, opts)
		fl, err := NewFreelist[entry](sys, opts)
		So(err, ShouldBeNil)

		collector := NewCollector(opts, table, fl.Table())
		collector.Start()

		Convey("When a node is retired from the table and a window closes", func() {
			reclaimed := make(chan struct{})
			d := table.Descriptor(idx)
			d.Start(ReadJoin)
			d.Retire(&Node{OnReclaim: func() { close(reclaimed) }})
			d.End()

			Convey("Then the collector and the next retire reclaim it", func() {
				deadline := time.After(time.Second)
				done := false
				for !done {
					d.Retire(&Node{})
					select {
					case <-reclaimed:
						done = true
					case <-deadline:
						t.Fatal("node was not reclaimed")
					case <-time.After(time.Millisecond):
					}
				}
				So(table.TotalReclaimed(), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When claiming and retiring freelist nodes", func() {
			var nodes []*FreelistNode[entry]
			for i := 0; i < 4; i++ {
				n := fl.Claim(idx)
				n.Value.key = uint64(i)
				nodes = append(nodes, n)
			}
			for _, n := range nodes {
				fl.Retire(idx, n)
			}

			Convey("Then the accounting stays balanced", func() {
				So(fl.CheckInvariants(), ShouldBeNil)
				So(fl.Stats().Retired, ShouldEqual, 4)
			})
		})

		Reset(func() {
			collector.Stop()
			fl.Close()
			table.Close()
			sys.FreeIndex(&idx)
		})
	})
}

func TestCapacityExhausted(t *testing.T) {
	Convey("Given a system with a single index", t, func() {
		sys, err := NewSystem(&Options{Capacity: 1})
		So(err, ShouldBeNil)
		_, err = sys.AssignIndex()
		So(err, ShouldBeNil)

		Convey("Then a second participant is refused", func() {
			idx, err := sys.AssignIndex()
			So(idx, ShouldEqual, InvalidIndex)
			So(errors.Is(err, ErrCapacityExhausted), ShouldBeTrue)
		})
	})
}
