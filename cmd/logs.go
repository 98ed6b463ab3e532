package cmd

import (
	"fmt"
	"os"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/patchforge/opsync/logging"
)

// NewLogsCmd returns the command that prints or follows daemon logs.
func NewLogsCmd() *cobra.Command {
	var (
		follow    bool
		component string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show opsyncd logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := logging.LogFilePath(component)
			if path == "" {
				return fmt.Errorf("cannot resolve log directory")
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("no log file for today at %s", path)
			}

			if !follow {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(data)
				return err
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:    true,
				ReOpen:    true,
				MustExist: true,
				Logger:    tail.DiscardingLogger,
			})
			if err != nil {
				return fmt.Errorf("failed to tail %s: %w", path, err)
			}
			defer t.Cleanup()

			for line := range t.Lines {
				if line.Err != nil {
					return line.Err
				}
				fmt.Println(line.Text)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow the log as it grows")
	cmd.Flags().StringVar(&component, "component", "opsyncd", "Component whose log to show")
	return cmd
}
