package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bonsai",
	Short: "Bonsai runs robot behaviors as statecharts of skills",
	Long: `Bonsai loads a statechart whose simple states are bound to skills,
validates that every skill outcome is handled and executes it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var signals = cli.NewSignalManager()

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	defer signals.Stop()
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, cli.ErrLoadFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("project", "p", "", "Project file with chart, includes and overrides")
	flags.StringArrayP("include", "i", nil, "Include mapping key=path (repeatable)")
	flags.StringArrayP("set", "s", nil, "Datamodel override name=value (repeatable)")
	flags.Bool("debug", false, "Log at debug level and trace lifecycle hooks")
	flags.Bool("json-log", false, "Log as JSON")
	flags.Bool("strict", false, "Treat validation warnings as errors")
	flags.Bool("allow-unknown", false, "Allow states without a registered skill")
}

// runOptions collects the shared flags; the first argument names the chart.
func runOptions(cmd *cobra.Command, args []string) cli.RunOptions {
	flags := cmd.Flags()
	opts := cli.RunOptions{}
	if len(args) > 0 {
		opts.Chart = args[0]
	}
	opts.Project, _ = flags.GetString("project")
	opts.Includes, _ = flags.GetStringArray("include")
	opts.Set, _ = flags.GetStringArray("set")
	opts.Debug, _ = flags.GetBool("debug")
	opts.JSONLog, _ = flags.GetBool("json-log")
	opts.Strict, _ = flags.GetBool("strict")
	opts.AllowUnknown, _ = flags.GetBool("allow-unknown")
	return opts
}
