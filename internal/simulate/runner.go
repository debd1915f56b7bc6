package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/callout/internal/domain/message"
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/types"
	"github.com/okian/callout/pkg/logger"
)

const settlePoll = 50 * time.Millisecond

// Report is the outcome of a run.
type Report struct {
	RoomID     string            `json:"room_id"`
	HostID     string            `json:"host_id"`
	JoinURL    string            `json:"join_url"`
	Players    map[string]string `json:"players"`
	Script     Script            `json:"script"`
	Stats      Stats             `json:"stats"`
	Scoreboard []types.Entry     `json:"scoreboard"`
	Spin       *SpinCheck        `json:"spin,omitempty"`
}

type run struct {
	cfg    Config
	client *httpClient
	log    logger.Logger
	report *Report
	tally  *tally

	host    *seat
	callers []*seat
	roundID string

	wheelMu sync.Mutex
	pending []string
	tracked map[string]bool
}

// Run executes a complete simulated round and verifies the results.
func Run(ctx context.Context, config Config) (*Report, error) {
	cfg := config.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	r := &run{
		cfg:     cfg,
		client:  newHTTPClient(cfg.BaseURL, cfg.Timeout),
		tracked: make(map[string]bool),
		log:     cfg.Logger.Named("simulate"),
		report: &Report{
			Players: make(map[string]string),
			Stats:   Stats{Rejections: make(map[string]int), StartTime: time.Now()},
		},
	}
	defer r.closeSeats()

	r.log.Info(ctx, "starting simulated party",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("moments", cfg.Moments),
		logger.Float64("voteProb", cfg.VoteProb),
		logger.Any("seed", cfg.Seed))

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"health check", r.checkHealth},
		{"room setup", r.setupRoom},
		{"parlays", r.lockParlays},
		{"playback", r.playback},
		{"settle", r.settle},
		{"end round", r.endRound},
		{"wheel", r.spinWheel},
		{"verification", r.verify},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return r.report, fmt.Errorf("%s failed: %w", step.name, err)
		}
	}

	r.closeSeats()
	st := &r.report.Stats
	st.EndTime = time.Now()
	st.Duration = st.EndTime.Sub(st.StartTime)
	r.displayFinalStats(ctx)

	if cfg.OutputFile != "" {
		if err := saveReport(cfg.OutputFile, r.report); err != nil {
			r.log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}
	return r.report, nil
}

func (r *run) checkHealth(ctx context.Context) error {
	if err := r.client.health(ctx); err != nil {
		return errors.Join(ErrUnhealthy, err)
	}
	return nil
}

// setupRoom creates the room, connects the host, then joins and connects
// every caller.
func (r *run) setupRoom(ctx context.Context) error {
	created, err := r.client.createRoom(ctx, "host", r.cfg.Settings)
	if err != nil {
		return err
	}
	r.report.RoomID, r.report.HostID, r.report.JoinURL = created.RoomID, created.HostID, created.JoinURL
	r.tally = &tally{observer: created.HostID, stats: &r.report.Stats, onEntry: r.trackEntry}

	snap, err := r.client.room(ctx, created.RoomID)
	if err != nil {
		return err
	}
	r.report.Script = NewScript(r.cfg.Seed, r.cfg.Players, r.cfg.Moments, r.cfg.VoteProb,
		snap.Settings.VoteWindowSec, snap.Settings.CooldownPerTextSec)

	if r.host, err = dial(ctx, r.client, created.RoomID, created.HostID, r.tally); err != nil {
		return err
	}

	joined := make(map[string]bool, r.cfg.Players)
	for i := 0; i < r.cfg.Players; i++ {
		id, err := r.client.join(ctx, created.RoomID, playerName(i))
		if err != nil {
			return fmt.Errorf("join %s: %w", playerName(i), err)
		}
		r.report.Players[id] = playerName(i)
		joined[id] = false
		s, err := dial(ctx, r.client, created.RoomID, id, r.tally)
		if err != nil {
			return err
		}
		r.callers = append(r.callers, s)
	}

	actx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	for remaining := len(joined); remaining > 0; remaining-- {
		_, err := r.host.await(actx, message.KindPlayerJoined, "", func(raw json.RawMessage) bool {
			var pj message.PlayerJoined
			if json.Unmarshal(raw, &pj) != nil {
				return false
			}
			seen, ok := joined[pj.PlayerID]
			joined[pj.PlayerID] = true
			return ok && !seen
		})
		if err != nil {
			return err
		}
	}
	r.log.Info(ctx, "room ready", logger.String("roomID", created.RoomID), logger.Int("players", len(joined)))
	return nil
}

// lockParlays starts the round and has every caller lock its scripted pick.
func (r *run) lockParlays(ctx context.Context) error {
	actx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if err := r.host.send(message.KindStartRound, message.StartRound{Meta: newMeta(r.host.playerID)}); err != nil {
		return err
	}
	raw, err := r.host.await(actx, message.KindRoundStarted, message.KindStartRound, nil)
	if err != nil {
		return err
	}
	var rs message.RoundStarted
	if err := json.Unmarshal(raw, &rs); err != nil {
		return err
	}
	r.roundID = rs.RoundID

	for _, pick := range r.report.Script.Picks {
		s := r.callers[pick.Caller]
		cmd := message.LockParlay{
			Meta:       newMeta(s.playerID),
			RoundID:    r.roundID,
			Text:       pick.Text,
			Punishment: pick.Punishment,
			Frequency:  model.FrequencyMultiple,
		}
		if err := s.send(message.KindLockParlay, cmd); err != nil {
			return err
		}
	}
	for range r.report.Script.Picks {
		if _, err := r.host.await(actx, message.KindParlayLocked, "", nil); err != nil {
			return err
		}
	}
	return nil
}

// playback goes live and sends every scripted vote, one moment at a time.
func (r *run) playback(ctx context.Context) error {
	actx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	if err := r.host.send(message.KindStartPlayback, message.StartPlayback{Meta: newMeta(r.host.playerID), RoundID: r.roundID}); err != nil {
		return err
	}
	live := func(raw json.RawMessage) bool {
		var pc message.PhaseChanged
		return json.Unmarshal(raw, &pc) == nil && pc.Phase == message.PhaseLive
	}
	if _, err := r.host.await(actx, message.KindPhaseChanged, message.KindStartPlayback, live); err != nil {
		return err
	}

	var sent, failed int64
	for i, mo := range r.report.Script.Moments {
		var wg sync.WaitGroup
		for _, v := range mo.Votes {
			wg.Add(1)
			go func(v Vote) {
				defer wg.Done()
				s := r.callers[v.Caller]
				err := s.send(message.KindSubmitVote, message.SubmitVote{
					Meta:      newMeta(s.playerID),
					RoundID:   r.roundID,
					TVideoSec: v.TSec,
					Text:      v.Text,
				})
				if err != nil {
					atomic.AddInt64(&failed, 1)
					return
				}
				atomic.AddInt64(&sent, 1)
			}(v)
		}
		wg.Wait()

		if r.cfg.Verbose {
			r.log.Info(ctx, "moment played",
				logger.Int("moment", i+1),
				logger.String("text", mo.Text),
				logger.Int("votes", len(mo.Votes)))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.Pace):
		}
	}

	r.report.Stats.VotesSent = int(sent)
	r.report.Stats.VotesFailed = int(failed)
	return nil
}

// settle waits for open clusters to time out or resolve.
func (r *run) settle(ctx context.Context) error {
	deadline := time.Now().Add(r.cfg.Settle)
	for {
		snap, err := r.client.room(ctx, r.report.RoomID)
		if err != nil {
			return err
		}
		if snap.OpenClusters == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			r.log.Warn(ctx, "clusters still open, ending round anyway", logger.Int("open", snap.OpenClusters))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(settlePoll):
		}
	}
}

func (r *run) endRound(ctx context.Context) error {
	actx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	if err := r.host.send(message.KindEndRound, message.EndRound{Meta: newMeta(r.host.playerID), RoundID: r.roundID}); err != nil {
		return err
	}
	raw, err := r.host.await(actx, message.KindRoundEnded, message.KindEndRound, nil)
	if err != nil {
		return err
	}
	var ended message.RoundEnded
	if err := json.Unmarshal(raw, &ended); err != nil {
		return err
	}
	r.report.Scoreboard = ended.Scoreboard
	return nil
}

func (r *run) trackEntry(e model.WheelEntry) {
	if e.Status != model.WheelPending {
		return
	}
	r.wheelMu.Lock()
	defer r.wheelMu.Unlock()
	if r.tracked[e.ID] {
		return
	}
	r.tracked[e.ID] = true
	r.pending = append(r.pending, e.ID)
}

// spinWheel approves every submitted punishment and spins once.
func (r *run) spinWheel(ctx context.Context) error {
	actx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	r.wheelMu.Lock()
	pending := append([]string(nil), r.pending...)
	r.wheelMu.Unlock()

	for _, id := range pending {
		cmd := message.ModerateWheelEntry{Meta: newMeta(r.host.playerID), RoundID: r.roundID, EntryID: id, Approved: true}
		if err := r.host.send(message.KindModerateWheelEntry, cmd); err != nil {
			return err
		}
		_, err := r.host.await(actx, message.KindWheelEntryUpdated, message.KindModerateWheelEntry, func(raw json.RawMessage) bool {
			var u message.WheelEntryUpdated
			return json.Unmarshal(raw, &u) == nil && u.Entry.ID == id && u.Entry.Status == model.WheelApproved
		})
		if err != nil {
			return err
		}
	}
	if len(pending) == 0 {
		r.log.Info(ctx, "no wheel entries, skipping spin")
		return nil
	}

	seed := "sim-" + strconv.FormatUint(r.cfg.Seed, 10)
	if err := r.host.send(message.KindSpinWheel, message.SpinWheel{Meta: newMeta(r.host.playerID), RoundID: r.roundID, Seed: seed}); err != nil {
		return err
	}
	raw, err := r.host.await(actx, message.KindWheelSpun, message.KindSpinWheel, nil)
	if err != nil {
		return err
	}
	var spun message.WheelSpun
	if err := json.Unmarshal(raw, &spun); err != nil {
		return err
	}

	check, err := r.client.spin(ctx, spun.Spin.ID)
	var se *statusError
	switch {
	case errors.As(err, &se) && se.Status == http.StatusServiceUnavailable:
		r.log.Info(ctx, "audit store disabled, spin not verified")
		check = SpinCheck{Spin: spun.Spin, Text: spun.Entry.Text}
	case err != nil:
		return err
	case !check.Verified:
		return fmt.Errorf("%w: spin %s did not replay: %s", ErrInconsistent, check.Spin.ID, check.Mismatch)
	}
	r.report.Spin = &check
	return nil
}

// verify checks the stored scoreboard against the round's final standings
// and that every rank is a competition rank.
func (r *run) verify(ctx context.Context) error {
	board, err := r.client.scoreboard(ctx, r.report.RoomID, min(r.cfg.Players, 100))
	if err != nil {
		return err
	}
	if err := verifyOrdering(board); err != nil {
		return err
	}

	final := make(map[string]float64, len(r.report.Scoreboard))
	for _, e := range r.report.Scoreboard {
		final[e.PlayerID] = e.Score
	}
	for _, e := range board {
		want, ok := final[e.PlayerID]
		if !ok {
			continue
		}
		if math.Abs(want-e.Score) > 1e-6 {
			return fmt.Errorf("%w: %s has %.3f stored, %.3f at round end", ErrInconsistent, e.PlayerID, e.Score, want)
		}
		got, err := r.client.rank(ctx, r.report.RoomID, e.PlayerID)
		if err != nil {
			return err
		}
		if got.Rank != e.Rank {
			return fmt.Errorf("%w: %s ranked %d alone, %d on the board", ErrInconsistent, e.PlayerID, got.Rank, e.Rank)
		}
	}
	return nil
}

// verifyOrdering checks descending scores with tied scores sharing a rank.
func verifyOrdering(board []types.Entry) error {
	for i, e := range board {
		want := i + 1
		if i > 0 && e.Score == board[i-1].Score {
			want = board[i-1].Rank
		}
		if i > 0 && e.Score > board[i-1].Score {
			return fmt.Errorf("%w: entry %d outscores entry %d", ErrInconsistent, i, i-1)
		}
		if e.Rank != want {
			return fmt.Errorf("%w: entry %d has rank %d, want %d", ErrInconsistent, i, e.Rank, want)
		}
	}
	return nil
}

// closeSeats waits for every reader to stop, so Stats is safe to read after.
func (r *run) closeSeats() {
	if r.host != nil {
		r.host.close()
		r.host = nil
	}
	for _, s := range r.callers {
		s.close()
	}
	r.callers = nil
}

func (r *run) displayFinalStats(ctx context.Context) {
	st := r.report.Stats
	var votesPerSecond float64
	if st.Duration > 0 {
		votesPerSecond = float64(st.VotesSent) / st.Duration.Seconds()
	}
	rejected := 0
	for _, n := range st.Rejections {
		rejected += n
	}
	r.log.Info(ctx, "final statistics",
		logger.Int("votesSent", st.VotesSent),
		logger.Int("votesFailed", st.VotesFailed),
		logger.Int("votesRejected", rejected),
		logger.Int("eventsConfirmed", st.EventsConfirmed),
		logger.Int("clustersDiscarded", st.ClustersDiscarded),
		logger.Duration("duration", st.Duration),
		logger.Float64("votesPerSecond", votesPerSecond))
	for i, e := range r.report.Scoreboard {
		if i == 10 {
			break
		}
		r.log.Info(ctx, "standing",
			logger.Int("rank", e.Rank),
			logger.String("player", r.report.Players[e.PlayerID]),
			logger.Float64("score", e.Score))
	}
}
