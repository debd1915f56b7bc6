package simulate_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/okian/callout/internal/adapters/http/api"
	"github.com/okian/callout/internal/adapters/pubsub"
	"github.com/okian/callout/internal/adapters/repository/sqlite"
	"github.com/okian/callout/internal/adapters/ws"
	service "github.com/okian/callout/internal/app"
	"github.com/okian/callout/internal/domain/text"
	"github.com/okian/callout/internal/simulate"
	. "github.com/smartystreets/goconvey/convey"
)

func newStack(t *testing.T, audit bool) *httptest.Server {
	t.Helper()
	bus := pubsub.NewBus(pubsub.WithBuffer(1024))
	opts := []service.Option{
		service.WithPublisher(bus),
		service.WithIdleTimeout(0),
		service.WithVoteRate(100, 100),
	}
	if audit {
		store, err := sqlite.Open(filepath.Join(t.TempDir(), "audit.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = store.Close() })
		opts = append(opts, service.WithAuditStore(store))
	}
	svc := service.New(opts...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	router := httprouter.New()
	api.NewServer(svc, api.WithSockets(ws.NewHub(svc, bus)), api.WithStats(svc)).Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		svc.Stop()
		bus.Close()
	})
	return srv
}

func TestNewScript(t *testing.T) {
	Convey("Given a seed", t, func() {
		a := simulate.NewScript(7, 5, 8, 0.6, 2, 10)
		b := simulate.NewScript(7, 5, 8, 0.6, 2, 10)

		Convey("The script is reproducible", func() {
			So(a, ShouldResemble, b)
			So(a.Picks, ShouldHaveLength, 5)
			So(a.Moments, ShouldHaveLength, 8)
		})

		Convey("Moments are spaced past the cooldown and votes stay in the window", func() {
			for i, mo := range a.Moments {
				if i > 0 {
					So(mo.TSec-a.Moments[i-1].TSec, ShouldBeGreaterThan, 12.0)
				}
				for _, v := range mo.Votes {
					So(text.Normalize(v.Text), ShouldEqual, text.Normalize(mo.Text))
					So(v.TSec, ShouldBeGreaterThanOrEqualTo, mo.TSec)
					So(v.TSec, ShouldBeLessThan, mo.TSec+2)
				}
			}
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running server with an audit store", t, func() {
		srv := newStack(t, true)
		out := filepath.Join(t.TempDir(), "reports", "run.json")

		Convey("When every caller reacts to every moment", func() {
			report, err := simulate.Run(context.Background(), simulate.Config{
				BaseURL:    srv.URL,
				Players:    4,
				Moments:    5,
				VoteProb:   1,
				Seed:       42,
				Pace:       20 * time.Millisecond,
				Settle:     2 * time.Second,
				OutputFile: out,
			})

			Convey("Then each moment is confirmed once and late callers hit the cooldown", func() {
				So(err, ShouldBeNil)
				So(report.Players, ShouldHaveLength, 4)
				So(report.Stats.VotesSent, ShouldEqual, 20)
				So(report.Stats.EventsConfirmed, ShouldEqual, 5)
				So(report.Stats.Rejections["cooldown"], ShouldEqual, 10)
				So(report.Stats.ClustersDiscarded, ShouldEqual, 0)
				So(report.Scoreboard, ShouldHaveLength, 4)
			})

			Convey("And the spin replays on the server", func() {
				So(err, ShouldBeNil)
				So(report.Spin, ShouldNotBeNil)
				So(report.Spin.Verified, ShouldBeTrue)
				So(report.Spin.Spin.LoserPlayerID, ShouldNotBeEmpty)
			})

			Convey("And the report is written", func() {
				So(err, ShouldBeNil)
				raw, readErr := os.ReadFile(out)
				So(readErr, ShouldBeNil)
				var saved simulate.Report
				So(json.Unmarshal(raw, &saved), ShouldBeNil)
				So(saved.RoomID, ShouldEqual, report.RoomID)
			})
		})
	})

	Convey("Given a server without an audit store", t, func() {
		srv := newStack(t, false)

		Convey("The run completes without replay verification", func() {
			report, err := simulate.Run(context.Background(), simulate.Config{
				BaseURL: srv.URL, Players: 3, Moments: 2, VoteProb: 1, Seed: 1, Pace: 10 * time.Millisecond,
			})
			So(err, ShouldBeNil)
			So(report.Spin, ShouldNotBeNil)
			So(report.Spin.Verified, ShouldBeFalse)
		})
	})

	Convey("Given an invalid config", t, func() {
		_, err := simulate.Run(context.Background(), simulate.Config{BaseURL: "http://127.0.0.1:1", Players: 1})
		So(errors.Is(err, simulate.ErrInvalidConfig), ShouldBeTrue)
	})

	Convey("Given no server", t, func() {
		_, err := simulate.Run(context.Background(), simulate.Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
		So(errors.Is(err, simulate.ErrUnhealthy), ShouldBeTrue)
	})
}
