package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backcast/backtest"
	"github.com/rustyeddy/backcast/strategies"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the backcast CLI and what it was built with.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "backcast version %s\n", version)
		fmt.Fprintf(out, "strategies: %v\n", strategies.Names())
		fmt.Fprintf(out, "sweep metrics: %v\n", backtest.Metrics())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
