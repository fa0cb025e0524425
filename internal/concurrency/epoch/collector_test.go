// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/kianostad/lfreclaim/internal/base"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

func TestCollectorLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	Convey("Given a collector over two tables", t, func() {
		t1 := NewTable(NewSystem(2))
		t2 := NewTable(NewSystem(2))
		c := NewCollector(time.Millisecond, t1, t2)
		logger := &base.InMemLogger{}
		c.SetLogger(logger)

		var scans atomic.Int64
		c.OnScan(func(time.Duration) { scans.Add(1) })

		Convey("When it runs for a while", func() {
			t1.NewGlobalID()
			t2.NewGlobalID()
			t2.NewGlobalID()
			c.Start()
			c.Start()
			deadline := time.Now().Add(time.Second)
			for scans.Load() < 3 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			c.Stop()

			Convey("Then both minimums were refreshed", func() {
				So(scans.Load(), ShouldBeGreaterThanOrEqualTo, 3)
				So(t1.MinActiveID(), ShouldBeGreaterThan, 1)
				So(t2.MinActiveID(), ShouldBeGreaterThan, 2)
			})

			Convey("Then start and stop were logged once each", func() {
				So(len(logger.Messages()), ShouldEqual, 2)
			})

			Convey("Then stopping again and restarting do nothing", func() {
				c.Stop()
				c.Start()
				n := scans.Load()
				time.Sleep(5 * time.Millisecond)
				So(scans.Load(), ShouldEqual, n)
			})
		})

		Convey("When stopped without being started", func() {
			c.Stop()

			Convey("Then nothing was logged", func() {
				So(logger.Messages(), ShouldBeEmpty)
			})
		})
	})
}

func TestCollectorForceCollect(t *testing.T) {
	Convey("Given a collector that was never started", t, func() {
		table := NewTable(NewSystem(2))
		closed := NewTable(NewSystem(2))
		closed.Close()
		c := NewCollector(0, table, closed)

		Convey("When forcing a scan", func() {
			table.NewGlobalID()
			c.ForceCollect()

			Convey("Then the live table was refreshed and the closed one skipped", func() {
				So(table.MinActiveID(), ShouldBeGreaterThan, 1)
				So(closed.MinActiveID(), ShouldEqual, 0)
			})
		})

		Convey("Then the default interval is used", func() {
			So(c.interval, ShouldEqual, DefaultCollectInterval)
		})
	})
}
