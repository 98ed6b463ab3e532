package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patchforge/opsync/cli"
	"github.com/patchforge/opsync/pkg/client"
	"github.com/patchforge/opsync/pkg/status"
)

// NewReportCmd returns the producer-side reporting commands. Packaging
// pipelines call these between their real work steps; every subcommand is a
// thin wrapper over one daemon API call.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report operation progress to the daemon",
		Long: `Report operation status from an external worker (e.g. a packaging
pipeline). Each subcommand maps to one producer API call on the daemon.`,
	}

	cmd.AddCommand(newReportStartCmd())
	cmd.AddCommand(newReportProgressCmd())
	cmd.AddCommand(newReportTransferCmd())
	cmd.AddCommand(newReportCompleteCmd())
	cmd.AddCommand(newReportFailCmd())
	cmd.AddCommand(newReportCancelCmd())

	return cmd
}

func reportAPI(cmd *cobra.Command) (*client.API, error) {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return client.NewAPI(cfg.ResolvedSocketPath()), nil
}

func newReportStartCmd() *cobra.Command {
	var label, app string

	cmd := &cobra.Command{
		Use:   "start <operation-id>",
		Short: "Register a new operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := reportAPI(cmd)
			if err != nil {
				return err
			}
			defer api.Close()

			if err := api.StartOperation(cmd.Context(), args[0], label, app); err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}
			fmt.Printf("Started %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "Human-readable label for the operation")
	cmd.Flags().StringVar(&app, "app", "", "Application the operation belongs to")
	cmd.MarkFlagRequired("label")
	cmd.MarkFlagRequired("app")
	return cmd
}

func newReportProgressCmd() *cobra.Command {
	var (
		statusStr     string
		phase         string
		detail        string
		phaseProgress float64
		overall       float64
	)

	cmd := &cobra.Command{
		Use:   "progress <operation-id>",
		Short: "Report a status or phase transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := reportAPI(cmd)
			if err != nil {
				return err
			}
			defer api.Close()

			var pp *float64
			if cmd.Flags().Changed("phase-progress") {
				pp = &phaseProgress
			}

			err = api.ReportProgress(cmd.Context(), args[0],
				status.Status(statusStr), phase, detail, pp, overall)
			if err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&statusStr, "status", "", "New status (downloading|processing|uploading|completed|error|cancelled)")
	cmd.Flags().StringVar(&phase, "phase", "", "Phase name")
	cmd.Flags().StringVar(&detail, "detail", "", "Phase detail text")
	cmd.Flags().Float64Var(&phaseProgress, "phase-progress", 0, "Phase progress in [0,1]")
	cmd.Flags().Float64Var(&overall, "overall", 0, "Overall progress in [0,1]")
	cmd.MarkFlagRequired("status")
	cmd.MarkFlagRequired("phase")
	return cmd
}

func newReportTransferCmd() *cobra.Command {
	var (
		direction string
		done      int64
		total     int64
	)

	cmd := &cobra.Command{
		Use:   "transfer <operation-id>",
		Short: "Report byte-counted download or upload progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := reportAPI(cmd)
			if err != nil {
				return err
			}
			defer api.Close()

			if err := api.ReportTransfer(cmd.Context(), args[0], direction, done, total); err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "download", "Transfer direction (download|upload)")
	cmd.Flags().Int64Var(&done, "done", 0, "Bytes transferred so far")
	cmd.Flags().Int64Var(&total, "total", 0, "Total bytes (0 if unknown)")
	return cmd
}

func newReportCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <operation-id>",
		Short: "Mark an operation completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := reportAPI(cmd)
			if err != nil {
				return err
			}
			defer api.Close()

			if err := api.CompleteOperation(cmd.Context(), args[0]); err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}
			return nil
		},
	}
}

func newReportFailCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "fail <operation-id>",
		Short: "Mark an operation failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := reportAPI(cmd)
			if err != nil {
				return err
			}
			defer api.Close()

			if err := api.FailOperation(cmd.Context(), args[0], message); err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&message, "message", "", "Error message shown to users")
	cmd.MarkFlagRequired("message")
	return cmd
}

func newReportCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <operation-id>",
		Short: "Mark an operation cancelled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := reportAPI(cmd)
			if err != nil {
				return err
			}
			defer api.Close()

			if err := api.CancelOperation(cmd.Context(), args[0]); err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}
			return nil
		},
	}
}
