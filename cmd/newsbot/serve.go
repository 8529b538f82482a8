package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"newsbot/api"
	"newsbot/orchestrator"
	"newsbot/shared/kafka"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func serveCmd(configPath *string) *cobra.Command {
	var addrFlag string
	var dryRun bool
	var noCron bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, the daily schedule and the Kafka trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath, dryRun)
			if err != nil {
				return err
			}
			if addrFlag != "" {
				cfg.Server.Addr = addrFlag
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			gin.SetMode(gin.ReleaseMode)
			router := api.NewRouter(api.Deps{
				Runner:  a.runner,
				Manager: a.runner.Manager(),
				Store:   a.store,
				Logger:  logger,
			})
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: router}

			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			var scheduler *orchestrator.Scheduler
			if !noCron {
				scheduler = orchestrator.NewScheduler(a.runner, cfg.Window.Location(), logger)
				if err := scheduler.Start(cfg.Scheduler.Cron); err != nil {
					return err
				}
			}

			var consumer *kafka.Consumer
			if cfg.Kafka.Enabled {
				consumer, err = kafka.NewRunRequestConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, a.runner, logger)
				if err != nil {
					// the API and schedule still work without the broker
					logger.Error("failed to create kafka consumer", "error", err)
				} else if err := consumer.Start(ctx); err != nil {
					logger.Error("failed to start kafka consumer", "error", err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "newsbot\n")
			fmt.Fprintf(out, "   API:            http://%s\n", cfg.Server.Addr)
			if scheduler != nil {
				fmt.Fprintf(out, "   Cron Schedule:  %s (%s), next %s\n", cfg.Scheduler.Cron, cfg.Window.Timezone, scheduler.Next().Format(time.RFC3339))
			}
			if consumer != nil {
				fmt.Fprintf(out, "   Kafka topic:    %s\n", cfg.Kafka.Topic)
			}
			fmt.Fprintln(out, "\nPress Ctrl+C to shutdown")

			select {
			case <-ctx.Done():
			case err := <-errCh:
				logger.Error("http server failed", "error", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if scheduler != nil {
				scheduler.Stop(shutdownCtx)
			}
			if consumer != nil {
				if err := consumer.Close(); err != nil {
					logger.Error("kafka consumer close error", "error", err)
				}
			}
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log posts instead of publishing them")
	cmd.Flags().BoolVar(&noCron, "no-cron", false, "disable the daily schedule")
	return cmd
}
