package service_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/okian/callout/internal/adapters/pubsub"
	"github.com/okian/callout/internal/adapters/repository/sqlite"
	service "github.com/okian/callout/internal/app"
	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/wheel"
	. "github.com/smartystreets/goconvey/convey"
)

func TestServiceIntegration(t *testing.T) {
	Convey("Given a unanimous room backed by an audit store", t, func() {
		ctx := context.Background()
		store, err := sqlite.Open(filepath.Join(t.TempDir(), "audit.db"))
		So(err, ShouldBeNil)
		defer store.Close()

		bus := pubsub.NewBus()
		settings := model.DefaultRoomSettings()
		settings.TwoPlayerMode = model.ModeUnanimous

		svc := service.New(
			service.WithPublisher(bus),
			service.WithAuditStore(store),
			service.WithIdleTimeout(0),
			service.WithDefaultSettings(settings),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		info, err := svc.CreateRoom(ctx, "Host", nil)
		So(err, ShouldBeNil)
		sub := bus.Subscribe(info.RoomID)
		defer sub.Close()
		room := info.RoomID
		host := message.Meta{PlayerID: info.HostID}

		ana, err := svc.Join(ctx, room, "Ana")
		So(err, ShouldBeNil)
		ben, err := svc.Join(ctx, room, "Ben")
		So(err, ShouldBeNil)

		So(svc.Submit(ctx, room, message.StartRound{Meta: host}), ShouldBeNil)
		var started message.RoundStarted
		So(next(sub, message.KindRoundStarted, &started), ShouldBeNil)
		rid := started.RoundID

		So(svc.Submit(ctx, room, message.LockParlay{
			Meta: message.Meta{PlayerID: ana}, RoundID: rid, Text: "Red card", Punishment: "Ten pushups",
		}), ShouldBeNil)
		var entry message.WheelEntryUpdated
		So(next(sub, message.KindWheelEntryUpdated, &entry), ShouldBeNil)
		So(svc.Submit(ctx, room, message.LockParlay{
			Meta: message.Meta{PlayerID: ben}, RoundID: rid, Text: "Goal",
		}), ShouldBeNil)
		So(svc.Submit(ctx, room, message.StartPlayback{Meta: host, RoundID: rid}), ShouldBeNil)

		Convey("When both players call the same moment", func() {
			So(svc.Submit(ctx, room, message.SubmitVote{
				Meta: message.Meta{PlayerID: ana, MessageID: "m1"}, RoundID: rid, TVideoSec: 10, Text: "red card",
			}), ShouldBeNil)
			So(svc.Submit(ctx, room, message.SubmitVote{
				Meta: message.Meta{PlayerID: ben, MessageID: "m1"}, RoundID: rid, TVideoSec: 10.4, Text: "  Red   CARD",
			}), ShouldBeNil)

			var confirmed message.EventConfirmed
			So(next(sub, message.KindEventConfirmed, &confirmed), ShouldBeNil)
			var scores message.ScoresUpdated
			So(next(sub, message.KindScoresUpdated, &scores), ShouldBeNil)

			Convey("The event is confirmed, scored and audited", func() {
				So(confirmed.Event.NormalizedText, ShouldEqual, "red card")
				So(confirmed.Event.TVideoSec, ShouldAlmostEqual, 10.2, 1e-9)
				So(confirmed.Event.Source, ShouldEqual, model.SourceConsensus)

				So(len(scores.Updates), ShouldEqual, 1)
				So(scores.Updates[0].PlayerID, ShouldEqual, ana)
				So(scores.Updates[0].Reason, ShouldEqual, "parlay_hit_fast_tap")

				board, err := svc.Scoreboard(ctx, room, 10)
				So(err, ShouldBeNil)
				So(board[0].PlayerID, ShouldEqual, ana)
				So(board[0].Score, ShouldAlmostEqual, scores.Updates[0].NewTotal, 1e-6)

				events, err := store.ListEvents(ctx, room, rid)
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 1)
				So(events[0].ID, ShouldEqual, confirmed.Event.ID)
				So(events[0].AwardedTo, ShouldResemble, []string{ana})
			})

			Convey("And the round ends with a replayable wheel spin", func() {
				So(svc.Submit(ctx, room, message.ModerateWheelEntry{
					Meta: host, RoundID: rid, EntryID: entry.Entry.ID, Approved: true,
				}), ShouldBeNil)
				So(svc.Submit(ctx, room, message.EndRound{Meta: host, RoundID: rid}), ShouldBeNil)
				var ended message.RoundEnded
				So(next(sub, message.KindRoundEnded, &ended), ShouldBeNil)
				So(ended.Scoreboard[0].PlayerID, ShouldEqual, ana)

				So(svc.Submit(ctx, room, message.SpinWheel{Meta: host, RoundID: rid, Seed: "seed-A"}), ShouldBeNil)
				var spun message.WheelSpun
				So(next(sub, message.KindWheelSpun, &spun), ShouldBeNil)
				So(spun.Spin.LoserPlayerID, ShouldEqual, ben)
				So(spun.Entry.Text, ShouldEqual, "Ten pushups")

				stored, err := svc.Spin(ctx, spun.Spin.ID)
				So(err, ShouldBeNil)
				So(stored.SelectedEntryID, ShouldEqual, entry.Entry.ID)
				picked, err := wheel.Replay(stored)
				So(err, ShouldBeNil)
				So(picked.ID, ShouldEqual, entry.Entry.ID)

				usage, err := store.PunishmentUsage(ctx)
				So(err, ShouldBeNil)
				So(usage.ByText["ten pushups"], ShouldEqual, 1)

				snap, err := svc.Room(ctx, room)
				So(err, ShouldBeNil)
				So(snap.Phase, ShouldEqual, message.PhaseEnded)
			})
		})
	})
}
