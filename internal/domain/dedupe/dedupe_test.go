package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/callout/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new deduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("A new ID is recorded", func() {
			So(d.SeenAndRecord(ctx, "msg-1"), ShouldBeFalse)
			So(d.Size(), ShouldEqual, 1)
		})

		Convey("A repeated ID is reported as seen", func() {
			d.SeenAndRecord(ctx, "msg-1")
			So(d.SeenAndRecord(ctx, "msg-1"), ShouldBeTrue)
			So(d.Size(), ShouldEqual, 1)
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 4; i++ {
			So(d.SeenAndRecord(ctx, fmt.Sprintf("msg-%d", i)), ShouldBeFalse)
		}

		Convey("The oldest ID is evicted first", func() {
			So(d.Size(), ShouldEqual, 3)
			So(d.SeenAndRecord(ctx, "msg-4"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "msg-2"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "msg-1"), ShouldBeFalse)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("msg-%d", i))
		}

		Convey("Nothing is evicted", func() {
			So(d.Size(), ShouldEqual, 1000)
			So(d.SeenAndRecord(ctx, "msg-0"), ShouldBeTrue)
		})
	})

	Convey("Given concurrent callers racing on one ID", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh := 0
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(ctx, "shared") {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Exactly one caller records it", func() {
			So(fresh, ShouldEqual, 1)
		})
	})
}
