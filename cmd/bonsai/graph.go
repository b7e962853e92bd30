package main

import (
	"github.com/CentralLabFacilities/bonsai-sub000/internal/cli"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [chart]",
	Short: "Export the chart as a Mermaid flowchart",
	Long:  `Composes the chart and outputs a Mermaid diagram (graph TD) with compound and parallel states as subgraphs.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Graph(signals.Context(), runOptions(cmd, args), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
