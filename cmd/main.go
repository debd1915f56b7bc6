package main

import (
	"os"
	"strings"

	"github.com/okian/callout/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const releaseVersion = "0.1.0"

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cobra.CheckErr(newCmd().Execute())
}

// newCmd builds the callout command tree.
func newCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "callout",
		Short:         "Real-time call-it-out party game server.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("log-level") {
				return nil
			}
			return logger.SetLevelString(logLevel)
		},
	}

	pfs := cmd.PersistentFlags()
	pfs.SetNormalizeFunc(normalizeFlag)
	pfs.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error (env: CALLOUT_LOG_LEVEL)")

	cmd.AddCommand(newServeCmd(), newSimulateCmd())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("callout v{{.Version}}\n")

	return cmd
}

// normalizeFlag accepts snake_case spellings of every flag.
func normalizeFlag(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}
