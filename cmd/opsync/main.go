package main

import (
	"os"

	"github.com/patchforge/opsync/cli"
	"github.com/patchforge/opsync/cmd"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"opsync",
		"Cross-process operation status synchronization",
	)

	rootCmd.AddCommand(cmd.NewDaemonCmd())
	rootCmd.AddCommand(cmd.NewOpsCmd())
	rootCmd.AddCommand(cmd.NewReportCmd())
	rootCmd.AddCommand(cmd.NewWatchCmd())
	rootCmd.AddCommand(cmd.NewLogsCmd())
	rootCmd.AddCommand(cmd.NewPathsCmd())
	rootCmd.AddCommand(cmd.NewConfigCmd())
	rootCmd.AddCommand(cli.NewVersionCommand("opsync"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
