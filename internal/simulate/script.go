package simulate

import (
	"math/rand/v2"
	"strconv"
	"strings"
)

// Callouts are the texts simulated players shout.
var Callouts = []string{
	"Goal", "Red card", "Offside", "Penalty", "Corner",
	"Yellow card", "Header", "Save", "Free kick", "VAR check",
}

// Punishments seed the wheel through parlays.
var Punishments = []string{
	"Ten pushups", "Sing the anthem", "Drink water", "Do a lap", "Tell a joke",
}

// Moment is one on-screen happening and the callers who react to it.
type Moment struct {
	Text  string  `json:"text"`
	TSec  float64 `json:"t_sec"`
	Votes []Vote  `json:"votes"`
}

// Vote is one scripted call.
type Vote struct {
	Caller int     `json:"caller"`
	TSec   float64 `json:"t_sec"`
	Text   string  `json:"text"`
}

// Pick is a caller's parlay.
type Pick struct {
	Caller     int    `json:"caller"`
	Text       string `json:"text"`
	Punishment string `json:"punishment"`
}

// Script is the deterministic plan of a run.
type Script struct {
	Picks   []Pick   `json:"picks"`
	Moments []Moment `json:"moments"`
}

// NewScript derives the plan from seed. Moments are spaced further apart than
// window plus cooldown so each forms its own cluster.
func NewScript(seed uint64, players, moments int, voteProb, windowSec, cooldownSec float64) Script {
	rng := rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
	spacing := windowSec + cooldownSec + 1

	var s Script
	for p := 0; p < players; p++ {
		s.Picks = append(s.Picks, Pick{
			Caller:     p,
			Text:       Callouts[rng.IntN(len(Callouts))],
			Punishment: Punishments[rng.IntN(len(Punishments))],
		})
	}
	for m := 0; m < moments; m++ {
		mo := Moment{Text: Callouts[rng.IntN(len(Callouts))], TSec: float64(m+1) * spacing}
		for p := 0; p < players; p++ {
			if rng.Float64() >= voteProb {
				continue
			}
			text := mo.Text
			// Some callers mangle the text; normalization should still match.
			switch rng.IntN(4) {
			case 0:
				text = "  " + strings.ReplaceAll(text, " ", "\t") + " "
			case 1:
				text = strings.ToUpper(text)
			}
			mo.Votes = append(mo.Votes, Vote{
				Caller: p,
				TSec:   mo.TSec + rng.Float64()*windowSec*0.8,
				Text:   text,
			})
		}
		s.Moments = append(s.Moments, mo)
	}
	return s
}

func playerName(i int) string { return "player-" + strconv.Itoa(i+1) }
