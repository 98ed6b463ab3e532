package cmd

import (
	"github.com/spf13/cobra"

	"github.com/patchforge/opsync/cli"
	"github.com/patchforge/opsync/pkg/client"
	"github.com/patchforge/opsync/tui/watch"
)

// NewWatchCmd returns the live terminal view of tracked operations.
func NewWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch operations live in the terminal",
		Long: `Render a live-updating table of all tracked operations. Updates arrive
over the daemon's broadcast stream, the snapshot file watcher, and the poll
fallback; whichever delivers first wins.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			facade := client.NewFacade(client.OptionsFromConfig(cfg))
			if err := facade.Start(cmd.Context()); err != nil {
				return err
			}
			defer facade.Close()

			return watch.Run(facade)
		},
	}
}
