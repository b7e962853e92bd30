package main

import (
	"github.com/CentralLabFacilities/bonsai-sub000/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [chart]",
	Short: "Load a chart and report findings without starting it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")
		return cli.Validate(signals.Context(), runOptions(cmd, args), raw, cmd.OutOrStdout())
	},
}

var composeCmd = &cobra.Command{
	Use:   "compose [chart]",
	Short: "Print the chart with every include expanded",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Compose(signals.Context(), runOptions(cmd, args), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd, composeCmd)

	validateCmd.Flags().Bool("raw", false, "Print plain markdown instead of rendering it")
}
