package wheel_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/wheel"
	. "github.com/smartystreets/goconvey/convey"
)

func entry(id, text string, status model.WheelStatus) model.WheelEntry {
	return model.WheelEntry{ID: id, RoundID: "r1", Text: text, Status: status}
}

func TestSpin(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	Convey("Given approved and rejected entries", t, func() {
		entries := []model.WheelEntry{
			entry("w1", "Sing a song", model.WheelApproved),
			entry("w2", "Do ten pushups", model.WheelRejected),
			entry("w3", "Dance", model.WheelApproved),
			entry("w4", "Pending one", model.WheelPending),
		}
		req := wheel.Request{RoundID: "r1", LoserID: "p1", Seed: "room-1:r1", Entries: entries, Now: now}

		Convey("Only approved entries can be selected", func() {
			res, err := wheel.Spin(req)
			So(err, ShouldBeNil)
			So(res.Selected.ID, ShouldBeIn, []string{"w1", "w3"})
			So(res.Spin.SelectedEntryID, ShouldEqual, res.Selected.ID)
			So(res.Spin.LoserPlayerID, ShouldEqual, "p1")
			So(res.Spin.EntriesJSON, ShouldNotContainSubstring, "w2")
			So(res.Selected.Weight, ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("The same seed reproduces the same selection", func() {
			a, _ := wheel.Spin(req)
			b, _ := wheel.Spin(req)
			So(b.Selected.ID, ShouldEqual, a.Selected.ID)
			So(b.Spin.EntriesJSON, ShouldEqual, a.Spin.EntriesJSON)

			Convey("And replay verifies the stored record", func() {
				got, err := wheel.Replay(a.Spin)
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, a.Selected.ID)
			})

			Convey("And a tampered record fails replay", func() {
				tampered := a.Spin
				if tampered.SelectedEntryID == "w1" {
					tampered.SelectedEntryID = "w3"
				} else {
					tampered.SelectedEntryID = "w1"
				}
				_, err := wheel.Replay(tampered)
				So(errors.Is(err, wheel.ErrReplayMismatch), ShouldBeTrue)
			})
		})

		Convey("Frequently used punishments weigh less", func() {
			var usage wheel.Usage
			for i := 0; i < 20; i++ {
				usage.Record("sing a song")
			}
			So(usage.Weight("Sing  A Song"), ShouldBeLessThan, usage.Weight("Dance"))
			So(usage.Weight("Sing a song"), ShouldBeGreaterThanOrEqualTo, 1)
		})
	})

	Convey("Given nothing approved", t, func() {
		_, err := wheel.Spin(wheel.Request{Seed: "s", Entries: []model.WheelEntry{entry("w1", "x", model.WheelPending)}})
		So(errors.Is(err, wheel.ErrNoEntries), ShouldBeTrue)
	})
}

func TestPickLoser(t *testing.T) {
	Convey("Given round totals", t, func() {
		Convey("The lowest total loses", func() {
			id, ok := wheel.PickLoser(map[string]float64{"a": 5, "b": 1, "c": 3}, "s")
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, "b")
		})

		Convey("Ties resolve deterministically", func() {
			totals := map[string]float64{"a": 0, "b": 0, "c": 4}
			first, _ := wheel.PickLoser(totals, "room:r1")
			for i := 0; i < 10; i++ {
				again, _ := wheel.PickLoser(totals, "room:r1")
				So(again, ShouldEqual, first)
			}
			So(first, ShouldBeIn, []string{"a", "b"})
		})

		Convey("No players means no loser", func() {
			_, ok := wheel.PickLoser(nil, "s")
			So(ok, ShouldBeFalse)
		})
	})
}
