package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/patchforge/opsync/cli"
	"github.com/patchforge/opsync/config"
)

// NewConfigCmd shows the effective configuration after defaults and overrides.
func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Display the effective configuration",
		Long: `Shows the configuration opsync is actually using, including the source
file (if any) and the resolved paths after defaults are applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			if path, err := config.FindConfigFile(); err == nil {
				fmt.Printf("# Source: %s\n", path)
			} else {
				fmt.Println("# Source: built-in defaults (no opsync.yml found)")
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(data))

			fmt.Println("# Resolved paths:")
			fmt.Printf("#   snapshot: %s\n", cfg.ResolvedSnapshotPath())
			fmt.Printf("#   socket:   %s\n", cfg.ResolvedSocketPath())
			fmt.Printf("#   pidfile:  %s\n", cfg.ResolvedPidFile())
			return nil
		},
	}
}
