package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/marigold/config"
	"github.com/Ramsey-B/marigold/internal/app"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "marigold",
		Short:        "Live student payment dashboard",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newReportCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, flush, err := app.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer flush()

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx, shutdownTimeout)
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "how long to wait for in-flight requests on shutdown")
	return cmd
}

func newReportCmd() *cobra.Command {
	opts := app.ReportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print today's dashboard once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, flush, err := app.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Report(ctx, cfg, logger, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.Format, "format", app.ReportFormatText, "output format: text or json")
	cmd.Flags().DurationVar(&opts.Wait, "wait", 30*time.Second, "how long to wait for the ledger to settle")
	return cmd
}
