package main

import (
	"fmt"
	"strings"

	"github.com/CentralLabFacilities/bonsai-sub000"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of bonsai",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bonsai version %s\n", strings.TrimSpace(bonsai.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
