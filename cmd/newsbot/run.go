package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func runCmd(configPath *string) *cobra.Command {
	var date string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once (today by default, or resume/recover --date)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" {
				if _, err := time.Parse(time.DateOnly, date); err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
			}
			cfg, logger, err := loadConfig(*configPath, dryRun)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.runner.Run(ctx, date)
			if res != nil {
				fmt.Fprintln(cmd.OutOrStdout(), renderResult(res))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "run date YYYY-MM-DD in the window zone (default today)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log posts instead of publishing them")
	return cmd
}
