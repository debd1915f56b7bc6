package main

import (
	"github.com/okian/callout/internal/simulate"
	"github.com/okian/callout/pkg/logger"
	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	cfg := simulate.Config{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play a scripted round against a running server and verify the scoreboard.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.Logger = logger.Get()
			_, err := simulate.Run(cmd.Context(), cfg)
			return err
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(normalizeFlag)
	fs.StringVarP(&cfg.BaseURL, "url", "u", "http://localhost:8080", "base URL of the server")
	fs.IntVarP(&cfg.Players, "players", "p", simulate.DefaultPlayers, "callers to join, not counting the host")
	fs.IntVarP(&cfg.Moments, "moments", "m", simulate.DefaultMoments, "scripted moments to play")
	fs.Float64Var(&cfg.VoteProb, "vote-prob", simulate.DefaultVoteProb, "chance each caller reacts to a moment")
	fs.Uint64Var(&cfg.Seed, "seed", 1, "script seed")
	fs.DurationVar(&cfg.Pace, "pace", simulate.DefaultPace, "wall-clock gap between moments")
	fs.DurationVar(&cfg.Settle, "settle", simulate.DefaultSettle, "how long to wait for open clusters")
	fs.DurationVar(&cfg.Timeout, "timeout", simulate.DefaultTimeout, "request and await timeout")
	fs.StringVarP(&cfg.OutputFile, "output", "o", "", "write a JSON report to this file")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log every moment")

	return cmd
}
