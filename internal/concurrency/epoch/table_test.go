// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import (
	"strings"
	"testing"

	"github.com/kianostad/lfreclaim/internal/base"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTableGlobalIDs(t *testing.T) {
	Convey("Given a new table", t, func() {
		sys := NewSystem(4)
		table := NewTable(sys)

		Convey("Initially", func() {
			So(table.CurrentGlobalID(), ShouldEqual, 0)
			So(table.MinActiveID(), ShouldEqual, 0)
			So(table.ActiveCount(), ShouldEqual, 0)
			So(table.System(), ShouldEqual, sys)
		})

		Convey("When requesting new global ids", func() {
			a := table.NewGlobalID()
			b := table.NewGlobalID()

			Convey("Then they increase and the current id follows", func() {
				So(a, ShouldEqual, 1)
				So(b, ShouldEqual, 2)
				So(table.CurrentGlobalID(), ShouldEqual, 2)
			})

			Convey("Then reading the current id does not advance it", func() {
				table.CurrentGlobalID()
				So(table.CurrentGlobalID(), ShouldEqual, 2)
			})
		})
	})
}

func TestTableMinActiveID(t *testing.T) {
	Convey("Given a table with two participants", t, func() {
		table := NewTable(NewSystem(4))
		d0 := table.Descriptor(0)
		d1 := table.Descriptor(1)

		Convey("When nobody participates", func() {
			table.NewGlobalID()
			table.NewGlobalID()
			minID := table.ComputeMinActiveID()

			Convey("Then the minimum is above every id handed out", func() {
				So(minID, ShouldBeGreaterThan, 2)
				So(table.MinActiveID(), ShouldEqual, minID)
			})
		})

		Convey("When descriptors join at different ids", func() {
			table.NewGlobalID() // 1
			table.NewGlobalID() // 2
			d0.StartRead()      // joins at 2
			table.NewGlobalID() // 3
			d1.StartWrite()     // joins at 4

			Convey("Then the minimum is the oldest window", func() {
				So(table.ComputeMinActiveID(), ShouldEqual, 2)
				So(table.ActiveCount(), ShouldEqual, 2)
			})

			Convey("When the oldest window closes", func() {
				d0.End()

				Convey("Then the minimum moves to the next one", func() {
					So(table.ComputeMinActiveID(), ShouldEqual, 4)
					So(table.ActiveCount(), ShouldEqual, 1)
				})
			})
		})

		Convey("When the refresh interval elapses", func() {
			small := NewTable(NewSystem(2), WithRefreshInterval(5))
			for i := 0; i < 4; i++ {
				small.NewGlobalID()
			}
			So(small.MinActiveID(), ShouldEqual, 0)
			small.NewGlobalID()

			Convey("Then the minimum was recomputed without being asked", func() {
				So(small.MinActiveID(), ShouldBeGreaterThan, 5)
			})
		})
	})
}

func TestTableDescriptorBounds(t *testing.T) {
	Convey("Given a table over a system of capacity 2", t, func() {
		table := NewTable(NewSystem(2))

		Convey("Then descriptors are bound back to the table", func() {
			d := table.Descriptor(1)
			So(d.Table(), ShouldEqual, table)
			So(d.Index(), ShouldEqual, 1)
			So(d.ID(), ShouldEqual, InvalidID)
			So(d.State(), ShouldEqual, Idle)
		})

		Convey("Then out of range indexes panic", func() {
			So(func() { table.Descriptor(2) }, ShouldPanic)
			So(func() { table.Descriptor(InvalidIndex) }, ShouldPanic)
		})
	})
}

func TestTableStatsAndClose(t *testing.T) {
	Convey("Given a table with retired nodes", t, func() {
		logger := &base.InMemLogger{}
		table := NewTable(NewSystem(2), WithLogger(logger))
		d := table.Descriptor(0)

		reclaimed := 0
		for i := 0; i < 3; i++ {
			d.Retire(&Node{OnReclaim: func() { reclaimed++ }})
		}

		Convey("Then the aggregates count them", func() {
			s := table.Stats()
			So(s.Retired, ShouldEqual, 3)
			So(s.Reclaimed, ShouldEqual, 0)
			So(s.Outstanding, ShouldEqual, 3)
			So(table.TotalRetired(), ShouldEqual, 3)
			So(table.Outstanding(), ShouldEqual, 3)
			So(s.String(), ShouldContainSubstring, "outstanding 3")
		})

		Convey("When the table is closed", func() {
			table.Close()

			Convey("Then every retired node is reclaimed", func() {
				So(reclaimed, ShouldEqual, 3)
				So(table.TotalReclaimed(), ShouldEqual, 3)
				So(table.Outstanding(), ShouldEqual, 0)
			})

			Convey("Then the teardown is logged", func() {
				msgs := logger.Messages()
				So(len(msgs), ShouldEqual, 1)
				So(strings.Contains(msgs[0], "reclaimed 3"), ShouldBeTrue)
			})

			Convey("Then closing again does nothing", func() {
				table.Close()
				So(reclaimed, ShouldEqual, 3)
			})
		})
	})
}

func TestIDString(t *testing.T) {
	Convey("IDs format as numbers, the sentinel as invalid", t, func() {
		So(ID(42).String(), ShouldEqual, "42")
		So(InvalidID.String(), ShouldEqual, "invalid")
	})
}
