package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "streamsynth",
		Short: "Synthesize steady-state schedules for stream graphs",
		Long: `streamsynth balances the initialization multiplicities of a partitioned
stream graph, computes its prime-pump schedule and sizes every channel
buffer. Graph definitions are YAML files; plans are written as YAML.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.String("dir", ".", "project directory holding streamsynth.yaml")
	flags.String("config", "", "explicit configuration file")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("log-file", "", "append logs to this file")
	flags.Bool("log-json", false, "emit JSON log lines")

	root.AddCommand(newSynthCmd(), newCheckCmd(), newViewCmd(), newInitCmd())
	return root
}
