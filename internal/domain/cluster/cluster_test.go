package cluster_test

import (
	"fmt"
	"testing"

	"github.com/okian/callout/internal/domain/cluster"
	"github.com/okian/callout/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func vote(player, text string, t float64) model.Vote {
	return model.Vote{ID: player + "-" + fmt.Sprint(t), RoundID: "r1", PlayerID: player, NormalizedText: text, TVideoSec: t}
}

func seqIDs() cluster.Option {
	n := 0
	return cluster.WithIDFunc(func() string {
		n++
		return fmt.Sprintf("c%d", n)
	})
}

func TestClustererAdd(t *testing.T) {
	Convey("Given an empty clusterer with a one second window", t, func() {
		c := cluster.New(seqIDs())

		Convey("Nearby calls for the same text merge", func() {
			first := c.Add(vote("a", "cat jumps", 10.0), 1)
			second := c.Add(vote("b", "cat jumps", 10.4), 1)

			So(first.Created, ShouldBeTrue)
			So(second.Created, ShouldBeFalse)
			So(second.Cluster.ID, ShouldEqual, first.Cluster.ID)
			So(second.Cluster.Count(), ShouldEqual, 2)
			So(second.Cluster.TCenter, ShouldAlmostEqual, 10.2, 1e-9)
			So(second.Cluster.TMin, ShouldEqual, 10.0)
			So(second.Cluster.TMax, ShouldEqual, 10.4)

			Convey("A distant call opens a separate cluster", func() {
				third := c.Add(vote("c", "cat jumps", 50.0), 1)
				So(third.Created, ShouldBeTrue)
				So(third.Cluster.ID, ShouldNotEqual, first.Cluster.ID)
				So(c.Len(), ShouldEqual, 2)
			})
		})

		Convey("Chaining widens the cluster", func() {
			c.Add(vote("a", "goal", 10.0), 1)
			c.Add(vote("b", "goal", 10.9), 1)
			res := c.Add(vote("c", "goal", 11.8), 1)
			So(res.Created, ShouldBeFalse)
			So(res.Cluster.TMax-res.Cluster.TMin, ShouldAlmostEqual, 1.8, 1e-9)
		})

		Convey("A repeat call from the same player is a duplicate", func() {
			c.Add(vote("a", "goal", 10.0), 1)
			res := c.Add(vote("a", "goal", 10.5), 1)
			So(res.Duplicate, ShouldBeTrue)
			So(res.Cluster.Count(), ShouldEqual, 1)
			So(res.Cluster.TCenter, ShouldEqual, 10.0)
		})

		Convey("Different texts never share a cluster", func() {
			c.Add(vote("a", "goal", 10.0), 1)
			res := c.Add(vote("b", "foul", 10.0), 1)
			So(res.Created, ShouldBeTrue)
		})

		Convey("Earliest picks the lowest timestamp", func() {
			c.Add(vote("a", "goal", 10.5), 1)
			res := c.Add(vote("b", "goal", 10.1), 1)
			So(res.Cluster.Earliest().PlayerID, ShouldEqual, "b")
			So(res.Cluster.Voters(), ShouldResemble, []string{"a", "b"})
			t, ok := res.Cluster.CallTime("a")
			So(ok, ShouldBeTrue)
			So(t, ShouldEqual, 10.5)
		})
	})
}

func TestClustererLifecycle(t *testing.T) {
	Convey("Given clusters for several texts", t, func() {
		c := cluster.New(seqIDs())
		a := c.Add(vote("a", "goal", 10), 1).Cluster
		b := c.Add(vote("a", "foul", 20), 1).Cluster
		c.Add(vote("a", "goal", 40), 1)

		Convey("Open lists them in creation order", func() {
			open := c.Open()
			So(len(open), ShouldEqual, 3)
			So(open[0].ID, ShouldEqual, "c1")
			So(open[2].ID, ShouldEqual, "c3")
		})

		Convey("Remove drops one and sets its final state", func() {
			removed, ok := c.Remove(a.ID, cluster.StateConfirmed)
			So(ok, ShouldBeTrue)
			So(removed.State, ShouldEqual, cluster.StateConfirmed)
			_, ok = c.Get(a.ID)
			So(ok, ShouldBeFalse)
			_, ok = c.Remove(a.ID, cluster.StateConfirmed)
			So(ok, ShouldBeFalse)

			Convey("A later call at the same time opens a fresh cluster", func() {
				res := c.Add(vote("b", "goal", 10.2), 1)
				So(res.Created, ShouldBeTrue)
			})
		})

		Convey("FindNear locates by center", func() {
			got, ok := c.FindNear("goal", 39, 2)
			So(ok, ShouldBeTrue)
			So(got.ID, ShouldEqual, "c3")
			_, ok = c.FindNear("goal", 25, 2)
			So(ok, ShouldBeFalse)
		})

		Convey("Flush discards everything", func() {
			flushed := c.Flush()
			So(len(flushed), ShouldEqual, 3)
			So(b.State, ShouldEqual, cluster.StateDiscarded)
			So(c.Len(), ShouldEqual, 0)
		})
	})
}
