package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/patchforge/opsync/cli"
	"github.com/patchforge/opsync/config"
	"github.com/patchforge/opsync/pkg/client"
	"github.com/patchforge/opsync/pkg/snapshot"
	"github.com/patchforge/opsync/pkg/status"
)

// NewOpsCmd returns the consumer-side operation inspection commands.
func NewOpsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "Inspect tracked operations",
	}

	cmd.AddCommand(newOpsListCmd())
	cmd.AddCommand(newOpsGetCmd())
	cmd.AddCommand(newOpsRemoveCmd())

	return cmd
}

// loadState prefers the live daemon state; when the daemon is down it falls
// back to reading the snapshot file directly, so history stays inspectable.
func loadState(ctx context.Context, cfg *config.Config) (*status.SystemState, error) {
	api := client.NewAPI(cfg.ResolvedSocketPath())
	defer api.Close()

	if api.IsRunning() {
		return api.State(ctx)
	}
	st, err := snapshot.New(cfg.ResolvedSnapshotPath()).Load()
	if err != nil {
		return st, nil // degraded but usable state, failure already logged
	}
	return st, nil
}

func newOpsListCmd() *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			st, err := loadState(cmd.Context(), cfg)
			if err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}

			ops := make([]*status.Operation, 0, len(st.Operations))
			for _, op := range st.Operations {
				if activeOnly && !op.Status.IsActive() {
					continue
				}
				ops = append(ops, op)
			}
			sort.Slice(ops, func(i, j int) bool {
				return ops[i].LastUpdate.After(ops[j].LastUpdate)
			})

			if cli.GetOptions(cmd).JSONOutput {
				data, err := json.MarshalIndent(ops, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			if len(ops) == 0 {
				fmt.Println("No operations")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tAPP\tSTATUS\tPHASE\tPROGRESS\tUPDATED")
			for _, op := range ops {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%3.0f%%\t%s\n",
					op.ID, op.AppName, op.Status, op.Phase.Name,
					op.OverallProgress*100, humanAge(op.LastUpdate))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Show only active operations")
	return cmd
}

func newOpsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <operation-id>",
		Short: "Show one operation in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			st, err := loadState(cmd.Context(), cfg)
			if err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}

			op, ok := st.Operations[args[0]]
			if !ok {
				return fmt.Errorf("no operation with id '%s'", args[0])
			}

			data, err := json.MarshalIndent(op, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func newOpsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <operation-id>",
		Short: "Remove an operation from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			api := client.NewAPI(cfg.ResolvedSocketPath())
			defer api.Close()

			if err := api.RemoveOperation(cmd.Context(), args[0]); err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}
			fmt.Printf("Removed %s\n", args[0])
			return nil
		},
	}
}

func humanAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("2006-01-02 15:04")
	}
}
