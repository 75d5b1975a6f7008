package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/normanking/talkinghead/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "talkinghead %s (commit %s, built %s)\n",
			version.Version, version.Commit, version.BuildDate)
	},
}
