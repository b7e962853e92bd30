package main

import (
	"os"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [chart]",
	Short: "Load, start and follow a chart until it finishes",
	Long: `Loads the chart, refuses to start it if validation fails and prints
every change of the active configuration. With --interactive, lines read
from stdin are fired as events; pause, resume, stop, status and events
are control words.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOptions(cmd, args)
		opts.Watch, _ = cmd.Flags().GetBool("watch")
		opts.Interactive, _ = cmd.Flags().GetBool("interactive")
		return cli.Execute(signals.Context(), opts, os.Stdin, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("watch", "w", false, "Reload and restart whenever a chart source changes")
	runCmd.Flags().Bool("interactive", false, "Read events and control words from stdin")
}
